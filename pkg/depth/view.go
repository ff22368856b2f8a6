package depth

import (
	"errors"
	"fmt"

	"github.com/user/pointstream/pkg/media"
)

// ErrUnsupportedFormat is returned by Validate for frames the unprojector
// cannot interpret.
var ErrUnsupportedFormat = errors.New("depth: unsupported frame format")

// View is a borrowed, read-only look at one depth frame and an optional NV12
// texture. Depth samples are little-endian uint16. A nil Luma means no texture.
type View struct {
	Depth         []byte
	DepthStride   int
	Luma          []byte
	Chroma        []byte // interleaved U,V at half resolution
	TextureStride int
	ChromaStride  int // 0 means TextureStride
	Width         int
	Height        int
}

// NewView builds a view over a depth frame and an optional texture frame.
// It does not retain either frame.
func NewView(depth, texture *media.Frame) View {
	v := View{
		Depth:       depth.Planes[0],
		DepthStride: depth.Strides[0],
		Width:       depth.Width,
		Height:      depth.Height,
	}
	if texture != nil {
		v.Luma = texture.Planes[0]
		v.Chroma = texture.Planes[1]
		v.TextureStride = texture.Strides[0]
		v.ChromaStride = texture.Strides[1]
	}
	return v
}

var depthFormats = map[media.PixelFormat]bool{
	media.FormatP010LE:      true,
	media.FormatP016LE:      true,
	media.FormatYUV420P10LE: true,
	media.FormatGray16LE:    true,
}

// Validate checks that depth carries 16-bit samples with a 2-byte stride per
// pixel and that texture, when present, is an NV12 frame of the same size.
func Validate(depth, texture *media.Frame) error {
	if depth == nil {
		return fmt.Errorf("%w: no depth frame", ErrUnsupportedFormat)
	}
	if depth.Width <= 0 || depth.Height <= 0 {
		return fmt.Errorf("%w: depth frame is %dx%d", ErrUnsupportedFormat, depth.Width, depth.Height)
	}
	if !depthFormats[depth.Format] || depth.Strides[0]/depth.Width != 2 {
		return fmt.Errorf("%w: depth needs 16-bit samples, got %s with stride %d for width %d",
			ErrUnsupportedFormat, depth.Format, depth.Strides[0], depth.Width)
	}
	if len(depth.Planes[0]) < depth.Strides[0]*depth.Height {
		return fmt.Errorf("%w: depth plane holds %d bytes, need %d",
			ErrUnsupportedFormat, len(depth.Planes[0]), depth.Strides[0]*depth.Height)
	}

	if texture == nil {
		return nil
	}
	if texture.Format != media.FormatNV12 {
		return fmt.Errorf("%w: texture needs nv12, got %s", ErrUnsupportedFormat, texture.Format)
	}
	if texture.Width != depth.Width || texture.Height != depth.Height {
		return fmt.Errorf("%w: texture is %dx%d, depth is %dx%d",
			ErrUnsupportedFormat, texture.Width, texture.Height, depth.Width, depth.Height)
	}
	return nil
}
