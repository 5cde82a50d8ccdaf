package bvh

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Box is an axis-aligned bounding box described by its lower and upper
// corners.
type Box struct {
	Lower mgl32.Vec3 `json:"lower"`
	Upper mgl32.Vec3 `json:"upper"`
}

// NewBox returns the box spanned by two corners given in any order.
func NewBox(a, b mgl32.Vec3) Box {
	return Box{
		Lower: minVec(a, b),
		Upper: maxVec(a, b),
	}
}

// BoxFromCenter returns the box centered on c with the given half extents.
func BoxFromCenter(c, halfExtents mgl32.Vec3) Box {
	return NewBox(c.Sub(halfExtents), c.Add(halfExtents))
}

// Area returns the surface area of the box. It is the cost used by every
// insertion and rotation decision.
func (b Box) Area() float32 {
	d := b.Upper.Sub(b.Lower)
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[2]*d[0])
}

// Union returns the smallest box containing both b and o.
func (b Box) Union(o Box) Box {
	return Box{
		Lower: minVec(b.Lower, o.Lower),
		Upper: maxVec(b.Upper, o.Upper),
	}
}

func (b Box) Contains(o Box) bool {
	return b.Lower[0] <= o.Lower[0] && b.Lower[1] <= o.Lower[1] && b.Lower[2] <= o.Lower[2] &&
		b.Upper[0] >= o.Upper[0] && b.Upper[1] >= o.Upper[1] && b.Upper[2] >= o.Upper[2]
}

func (b Box) Equal(o Box) bool {
	return b.Lower == o.Lower && b.Upper == o.Upper
}

// Expand grows the box by margin on every side.
func (b Box) Expand(margin float32) Box {
	m := mgl32.Vec3{margin, margin, margin}
	return NewBox(b.Lower.Sub(m), b.Upper.Add(m))
}

func (b Box) Center() mgl32.Vec3 {
	return b.Lower.Add(b.Upper).Mul(0.5)
}

func (b Box) Size() mgl32.Vec3 {
	return b.Upper.Sub(b.Lower)
}

// Corners returns the eight corners of the box.
func (b Box) Corners() [8]mgl32.Vec3 {
	l, u := b.Lower, b.Upper
	return [8]mgl32.Vec3{
		{l[0], l[1], l[2]},
		{u[0], l[1], l[2]},
		{l[0], u[1], l[2]},
		{u[0], u[1], l[2]},
		{l[0], l[1], u[2]},
		{u[0], l[1], u[2]},
		{l[0], u[1], u[2]},
		{u[0], u[1], u[2]},
	}
}

// Visible reports whether the box is at least partially inside the frustum.
// It only returns false when the box lies entirely on the outer side of one
// plane, so it never rejects a box that is actually visible.
func (b Box) Visible(f Frustum) bool {
	for i := range f {
		p := &f[i]

		// positive vertex: the corner farthest along the plane normal.
		px := b.Upper[0]
		if p.Normal[0] < 0 {
			px = b.Lower[0]
		}
		py := b.Upper[1]
		if p.Normal[1] < 0 {
			py = b.Lower[1]
		}
		pz := b.Upper[2]
		if p.Normal[2] < 0 {
			pz = b.Lower[2]
		}

		if p.Normal[0]*px+p.Normal[1]*py+p.Normal[2]*pz+p.D < 0 {
			return false
		}
	}
	return true
}

func minVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		math32.Min(a[0], b[0]),
		math32.Min(a[1], b[1]),
		math32.Min(a[2], b[2]),
	}
}

func maxVec(a, b mgl32.Vec3) mgl32.Vec3 {
	return mgl32.Vec3{
		math32.Max(a[0], b[0]),
		math32.Max(a[1], b[1]),
		math32.Max(a[2], b[2]),
	}
}
