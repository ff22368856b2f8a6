package media

import "testing"

func TestPointCloudResize(t *testing.T) {
	var pc PointCloud

	if !pc.Resize(16) {
		t.Fatal("expected allocation on first resize")
	}
	if pc.Size() != 16 || len(pc.Colors) != 16 {
		t.Fatalf("expected size 16, got %d/%d", pc.Size(), len(pc.Colors))
	}

	first := &pc.Positions[0]
	pc.Used = 5
	if pc.Resize(16) {
		t.Error("expected no allocation for unchanged size")
	}
	if pc.Used != 0 {
		t.Errorf("expected Used reset to 0, got %d", pc.Used)
	}
	if &pc.Positions[0] != first {
		t.Error("positions were reallocated for the same size")
	}

	if !pc.Resize(4) {
		t.Error("expected allocation on size change")
	}
	if pc.Size() != 4 {
		t.Errorf("expected size 4, got %d", pc.Size())
	}
}

func TestPointCloudZeroTail(t *testing.T) {
	var pc PointCloud
	pc.Resize(4)
	for i := range pc.Positions {
		pc.Positions[i] = [3]float32{1, 2, 3}
		pc.Colors[i] = White
	}
	pc.Used = 2

	pc.ZeroTail()

	for i := 0; i < 2; i++ {
		if pc.Colors[i] != White {
			t.Errorf("entry %d was cleared", i)
		}
	}
	for i := 2; i < 4; i++ {
		if pc.Positions[i] != ([3]float32{}) || pc.Colors[i] != 0 {
			t.Errorf("entry %d not zeroed: %v %x", i, pc.Positions[i], pc.Colors[i])
		}
	}
}

func TestPackRGBA(t *testing.T) {
	if got := PackRGBA(0x11, 0x22, 0x33, 0xFF); got != 0xFF332211 {
		t.Errorf("expected 0xFF332211, got %#x", got)
	}
	if PackRGBA(255, 255, 255, 255) != White {
		t.Error("white does not pack to White")
	}
}
