// Package depth turns 16-bit depth frames into colored point clouds using
// pinhole camera intrinsics and an optional NV12 texture.
package depth

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/user/pointstream/pkg/media"
)

// P010Max is the largest sample value a P010LE depth plane can hold.
const P010Max = 0xFFC0

// ErrInvalidConfig is returned by New for unusable intrinsics.
var ErrInvalidConfig = errors.New("depth: invalid configuration")

// Config holds the camera intrinsics and depth scaling.
type Config struct {
	PPX, PPY  float32 // principal point in pixels
	FX, FY    float32 // focal lengths in pixels
	DepthUnit float32 // raw sample to distance multiplier
	MinMargin float32
	MaxMargin float32
	Scale     float32 // sensor calibration multiplier applied to DepthUnit; 0 means 1
	Filter    bool    // drop points outside (MinDepth, MaxDepth]
}

// Unprojector converts depth views to point clouds. It is immutable and safe
// for concurrent use.
type Unprojector struct {
	cfg      Config
	unit     float32
	minDepth float32
	maxDepth float32
}

// New validates cfg and derives the depth bounds.
func New(cfg Config) (*Unprojector, error) {
	if cfg.FX == 0 || cfg.FY == 0 {
		return nil, fmt.Errorf("%w: focal length must be non-zero (fx=%g fy=%g)", ErrInvalidConfig, cfg.FX, cfg.FY)
	}
	if cfg.DepthUnit <= 0 {
		return nil, fmt.Errorf("%w: depth unit must be positive (got %g)", ErrInvalidConfig, cfg.DepthUnit)
	}
	if cfg.Scale == 0 {
		cfg.Scale = 1
	}
	unit := cfg.DepthUnit * cfg.Scale
	return &Unprojector{
		cfg:      cfg,
		unit:     unit,
		minDepth: cfg.MinMargin,
		maxDepth: P010Max*unit - cfg.MaxMargin,
	}, nil
}

// Config returns the configuration with defaults applied.
func (u *Unprojector) Config() Config { return u.cfg }

// Unit returns the effective raw-to-distance multiplier.
func (u *Unprojector) Unit() float32 { return u.unit }

// MinDepth returns the lower depth bound.
func (u *Unprojector) MinDepth() float32 { return u.minDepth }

// MaxDepth returns the upper depth bound.
func (u *Unprojector) MaxDepth() float32 { return u.maxDepth }

// Unproject fills pc from v. The cloud is resized to the view's pixel count
// when needed, and entries past the last written point are zeroed.
func (u *Unprojector) Unproject(v View, pc *media.PointCloud) {
	pc.Resize(v.Width * v.Height)
	pc.Used = 0

	size := pc.Size()
	textured := v.Luma != nil
	chromaStride := v.ChromaStride
	if chromaStride == 0 {
		chromaStride = v.TextureStride
	}

	ppx, ppy := u.cfg.PPX, u.cfg.PPY
	fx, fy := u.cfg.FX, u.cfg.FY

	for r := 0; r < v.Height && pc.Used < size; r++ {
		row := r * v.DepthStride
		if row+2*v.Width > len(v.Depth) {
			break
		}
		for c := 0; c < v.Width && pc.Used < size; c++ {
			raw := binary.LittleEndian.Uint16(v.Depth[row+2*c:])
			d := float32(raw) * u.unit

			if u.cfg.Filter && (d <= u.minDepth || d > u.maxDepth) {
				continue
			}

			pc.Positions[pc.Used] = [3]float32{
				d * (float32(c) - ppx) / fx,
				-d * (float32(r) - ppy) / fy,
				d,
			}

			color := media.White
			if textured {
				y := v.Luma[r*v.TextureStride+c]
				ci := (r/2)*chromaStride + 2*(c/2)
				color = nv12ToRGBA(y, v.Chroma[ci], v.Chroma[ci+1])
			}
			pc.Colors[pc.Used] = color
			pc.Used++
		}
	}

	pc.ZeroTail()
}
