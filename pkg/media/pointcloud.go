package media

// White is the packed RGBA color for opaque white.
const White uint32 = 0xFFFFFFFF

// PointCloud holds parallel arrays of point positions and packed RGBA colors.
// Only the first Used entries are valid; the rest are zero.
type PointCloud struct {
	Positions [][3]float32
	Colors    []uint32
	Used      int
}

// Size returns the capacity of the cloud.
func (pc *PointCloud) Size() int {
	return len(pc.Positions)
}

// Resize makes the cloud hold exactly n entries and resets Used.
// Both arrays are reallocated together, and only when n differs from the
// current size. It reports whether an allocation happened.
func (pc *PointCloud) Resize(n int) bool {
	pc.Used = 0
	if n == len(pc.Positions) && n == len(pc.Colors) {
		return false
	}
	pc.Positions = make([][3]float32, n)
	pc.Colors = make([]uint32, n)
	return true
}

// ZeroTail clears every entry in [Used, Size) in both arrays.
func (pc *PointCloud) ZeroTail() {
	if pc.Used >= len(pc.Positions) {
		return
	}
	clear(pc.Positions[pc.Used:])
	clear(pc.Colors[pc.Used:])
}

// PackRGBA packs a color as little-endian RGBA (R in the lowest byte).
func PackRGBA(r, g, b, a uint8) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(g)<<8 | uint32(r)
}
