// Package media defines the decoded frame and point cloud types shared by the
// decoder, depth and exchange packages.
package media

import "fmt"

// MaxPlanes is the maximum number of planes a frame carries.
const MaxPlanes = 3

// PixelFormat identifies the memory layout of a decoded frame.
type PixelFormat int

const (
	FormatNone PixelFormat = iota
	FormatYUV420P
	FormatNV12
	FormatP010LE
	FormatP016LE
	FormatYUV420P10LE
	FormatGray16LE
)

var formatNames = map[PixelFormat]string{
	FormatNone:        "none",
	FormatYUV420P:     "yuv420p",
	FormatNV12:        "nv12",
	FormatP010LE:      "p010le",
	FormatP016LE:      "p016le",
	FormatYUV420P10LE: "yuv420p10le",
	FormatGray16LE:    "gray16le",
}

// String returns the ffmpeg name of the format.
func (f PixelFormat) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParsePixelFormat maps an ffmpeg pixel format name to a PixelFormat.
// An empty name yields FormatNone.
func ParsePixelFormat(name string) (PixelFormat, error) {
	if name == "" {
		return FormatNone, nil
	}
	for f, n := range formatNames {
		if n == name && f != FormatNone {
			return f, nil
		}
	}
	return FormatNone, fmt.Errorf("media: unknown pixel format %q", name)
}

// Layout describes the planes of a frame of a given format and size.
type Layout struct {
	Planes  int
	Strides [MaxPlanes]int
	Rows    [MaxPlanes]int
}

// PlaneSize returns the number of bytes in plane i.
func (l Layout) PlaneSize(i int) int {
	return l.Strides[i] * l.Rows[i]
}

// Size returns the total number of bytes in all planes.
func (l Layout) Size() int {
	total := 0
	for i := 0; i < l.Planes; i++ {
		total += l.PlaneSize(i)
	}
	return total
}

// LayoutOf computes tightly packed plane strides for format at width x height.
func LayoutOf(format PixelFormat, width, height int) (Layout, error) {
	if width <= 0 || height <= 0 {
		return Layout{}, fmt.Errorf("media: invalid dimensions %dx%d", width, height)
	}
	cw := (width + 1) / 2
	ch := (height + 1) / 2

	var l Layout
	switch format {
	case FormatYUV420P:
		l.Planes = 3
		l.Strides = [MaxPlanes]int{width, cw, cw}
		l.Rows = [MaxPlanes]int{height, ch, ch}
	case FormatNV12:
		l.Planes = 2
		l.Strides = [MaxPlanes]int{width, 2 * cw}
		l.Rows = [MaxPlanes]int{height, ch}
	case FormatP010LE, FormatP016LE:
		l.Planes = 2
		l.Strides = [MaxPlanes]int{2 * width, 4 * cw}
		l.Rows = [MaxPlanes]int{height, ch}
	case FormatYUV420P10LE:
		l.Planes = 3
		l.Strides = [MaxPlanes]int{2 * width, 2 * cw, 2 * cw}
		l.Rows = [MaxPlanes]int{height, ch, ch}
	case FormatGray16LE:
		l.Planes = 1
		l.Strides = [MaxPlanes]int{2 * width}
		l.Rows = [MaxPlanes]int{height}
	default:
		return Layout{}, fmt.Errorf("media: no layout for %s", format)
	}
	return l, nil
}
