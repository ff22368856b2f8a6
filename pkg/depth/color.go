package depth

import "github.com/user/pointstream/pkg/media"

// nv12ToRGBA converts one limited-range BT.601 sample to packed RGBA.
func nv12ToRGBA(y, u, v uint8) uint32 {
	c := int32(y) - 16
	d := int32(u) - 128
	e := int32(v) - 128

	r := clip((298*c + 409*e + 128) >> 8)
	g := clip((298*c - 100*d - 208*e + 128) >> 8)
	b := clip((298*c + 516*d + 128) >> 8)
	return media.PackRGBA(r, g, b, 0xFF)
}

func clip(x int32) uint8 {
	switch {
	case x < 0:
		return 0
	case x > 255:
		return 255
	default:
		return uint8(x)
	}
}
