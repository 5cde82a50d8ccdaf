// Package hiz implements a hierarchical depth buffer used to test whether a
// bounding box is hidden behind what was already drawn.
//
// Depths are window depths in [0, 1], 0 being the near plane. Each level of
// the pyramid halves the resolution of the previous one and keeps the
// farthest depth of the 2x2 texels it covers, so a box whose nearest point is
// behind the stored depth of every texel it overlaps is guaranteed hidden.
package hiz

import (
	"time"

	"github.com/aukilabs/dynbvh/bvh"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

const (
	ErrTypeInvalidDepth = "hiz-invalid-depth"
	ErrTypeInvalidSize  = "hiz-invalid-size"
)

// FarDepth is the depth of an empty pixel.
const FarDepth float32 = 1

// Buffer is a CPU hierarchical-Z pyramid. It implements bvh.OcclusionTester.
//
// A Buffer is not safe for concurrent use.
type Buffer struct {
	levels []level
}

type level struct {
	width  int
	height int
	depth  []float32
}

func (l level) at(x, y int) float32 {
	return l.depth[y*l.width+x]
}

var _ bvh.OcclusionTester = (*Buffer)(nil)

// NewBuffer returns a buffer of the given resolution where every pixel is at
// FarDepth.
func NewBuffer(width, height int) (*Buffer, error) {
	if width <= 0 || height <= 0 {
		return nil, errors.New("invalid depth buffer size").
			WithType(ErrTypeInvalidSize).
			WithTag("width", width).
			WithTag("height", height)
	}

	b := &Buffer{}
	for w, h := width, height; ; w, h = half(w), half(h) {
		b.levels = append(b.levels, level{
			width:  w,
			height: h,
			depth:  make([]float32, w*h),
		})
		if w == 1 && h == 1 {
			break
		}
	}

	b.Clear()
	return b, nil
}

func half(v int) int {
	if v <= 1 {
		return 1
	}
	return (v + 1) / 2
}

func (b *Buffer) Width() int {
	return b.levels[0].width
}

func (b *Buffer) Height() int {
	return b.levels[0].height
}

// Levels returns the number of levels of the pyramid, the full resolution
// one included.
func (b *Buffer) Levels() int {
	return len(b.levels)
}

// Depth returns the depth stored at the given texel of a level.
func (b *Buffer) Depth(lvl, x, y int) float32 {
	return b.levels[lvl].at(x, y)
}

// Clear resets every level to FarDepth.
func (b *Buffer) Clear() {
	for _, l := range b.levels {
		for i := range l.depth {
			l.depth[i] = FarDepth
		}
	}
}

// Update replaces the full resolution depth, row-major with the first row at
// the top of the screen, and rebuilds the pyramid.
func (b *Buffer) Update(depth []float32) error {
	base := b.levels[0]
	if len(depth) != len(base.depth) {
		return errors.New("depth size does not match the buffer").
			WithType(ErrTypeInvalidDepth).
			WithTag("expected", len(base.depth)).
			WithTag("got", len(depth))
	}

	for i, d := range depth {
		if d < 0 || d > 1 || math32.IsNaN(d) {
			return errors.New("depth out of range").
				WithType(ErrTypeInvalidDepth).
				WithTag("index", i).
				WithTag("depth", d)
		}
	}

	copy(base.depth, depth)
	b.Build()
	return nil
}

// Build recomputes every level from the full resolution one.
func (b *Buffer) Build() {
	start := time.Now()

	for i := 1; i < len(b.levels); i++ {
		src := b.levels[i-1]
		dst := b.levels[i]

		for y := 0; y < dst.height; y++ {
			y0 := y * 2
			y1 := min(y0+1, src.height-1)

			for x := 0; x < dst.width; x++ {
				x0 := x * 2
				x1 := min(x0+1, src.width-1)

				dst.depth[y*dst.width+x] = max(
					src.at(x0, y0),
					src.at(x1, y0),
					src.at(x0, y1),
					src.at(x1, y1),
				)
			}
		}
	}

	instrumentBuild(start)
}

// DrawOccluder writes the box as an occluder: the screen rectangle covering
// its projection receives the farthest depth of the box, keeping nearer
// values already stored. It fits boxes facing the camera, such as walls.
// Boxes crossing the near plane are ignored. Build must be called afterwards.
func (b *Buffer) DrawOccluder(viewProj mgl32.Mat4, box bvh.Box) {
	p, ok := project(viewProj, box)
	if !ok {
		return
	}

	base := b.levels[0]
	x0, y0, x1, y1, onScreen := p.pixels(base.width, base.height)
	if !onScreen {
		return
	}

	for y := y0; y <= y1; y++ {
		row := base.depth[y*base.width : (y+1)*base.width]
		for x := x0; x <= x1; x++ {
			row[x] = math32.Min(row[x], p.maxDepth)
		}
	}
}

// TestVisibility reports whether the box may be visible. It is conservative:
// boxes containing the camera or crossing the plane of the eye are always
// visible.
func (b *Buffer) TestVisibility(viewProj, view mgl32.Mat4, box bvh.Box) bool {
	eye := view.Inv().Col(3).Vec3()
	if box.Contains(bvh.Box{Lower: eye, Upper: eye}) {
		return true
	}

	p, ok := project(viewProj, box)
	if !ok {
		return true
	}
	if p.minDepth > 1 {
		return false
	}
	if p.minDepth < 0 {
		return true
	}

	base := b.levels[0]
	x0, y0, x1, y1, onScreen := p.pixels(base.width, base.height)
	if !onScreen {
		return false
	}

	// Read a coarse level so that only a few texels cover the rectangle.
	lvl := 0
	for size := max(x1-x0, y1-y0) + 1; size > 2 && lvl < len(b.levels)-1; size = (size + 1) / 2 {
		lvl++
	}
	l := b.levels[lvl]

	var occluderDepth float32
	for y := y0 >> lvl; y <= y1>>lvl; y++ {
		for x := x0 >> lvl; x <= x1>>lvl; x++ {
			occluderDepth = math32.Max(occluderDepth, l.at(x, y))
		}
	}

	return p.minDepth <= occluderDepth
}

// projection is the screen-space bounding rectangle of a box in normalized
// device coordinates, with its depth range in window depth.
type projection struct {
	minX, minY, maxX, maxY float32
	minDepth, maxDepth     float32
}

// project returns false when a corner of the box is behind the eye.
func project(viewProj mgl32.Mat4, box bvh.Box) (projection, bool) {
	p := projection{
		minX:     math32.Inf(1),
		minY:     math32.Inf(1),
		minDepth: math32.Inf(1),
		maxX:     math32.Inf(-1),
		maxY:     math32.Inf(-1),
		maxDepth: math32.Inf(-1),
	}

	for _, c := range box.Corners() {
		clip := viewProj.Mul4x1(c.Vec4(1))
		if clip[3] <= 1e-6 {
			return p, false
		}

		ndc := clip.Vec3().Mul(1 / clip[3])
		depth := ndc[2]*0.5 + 0.5

		p.minX = math32.Min(p.minX, ndc[0])
		p.maxX = math32.Max(p.maxX, ndc[0])
		p.minY = math32.Min(p.minY, ndc[1])
		p.maxY = math32.Max(p.maxY, ndc[1])
		p.minDepth = math32.Min(p.minDepth, depth)
		p.maxDepth = math32.Max(p.maxDepth, depth)
	}

	return p, true
}

// pixels returns the rectangle clamped to a width x height screen whose
// first row is the top of the screen.
func (p projection) pixels(width, height int) (x0, y0, x1, y1 int, ok bool) {
	if p.maxX < -1 || p.minX > 1 || p.maxY < -1 || p.minY > 1 {
		return 0, 0, 0, 0, false
	}

	x0 = clampPixel((p.minX*0.5+0.5)*float32(width), width)
	x1 = clampPixel((p.maxX*0.5+0.5)*float32(width), width)
	y0 = clampPixel((0.5-p.maxY*0.5)*float32(height), height)
	y1 = clampPixel((0.5-p.minY*0.5)*float32(height), height)
	return x0, y0, x1, y1, true
}

func clampPixel(v float32, size int) int {
	i := int(math32.Floor(v))
	if i < 0 {
		return 0
	}
	if i >= size {
		return size - 1
	}
	return i
}
