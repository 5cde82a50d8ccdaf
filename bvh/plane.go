package bvh

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
)

// Plane is the half-space Normal·p + D >= 0.
type Plane struct {
	Normal mgl32.Vec3
	D      float32
}

// Distance returns the signed distance of p to the plane. It is a true
// distance only for normalized planes.
func (p Plane) Distance(v mgl32.Vec3) float32 {
	return p.Normal.Dot(v) + p.D
}

// Frustum holds the six culling planes in the order left, right, bottom,
// top, near, far. The zero Frustum accepts every box.
type Frustum [6]Plane

const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// ExtractFrustum extracts normalized frustum planes from a combined
// projection * view matrix (Gribb/Hartmann).
func ExtractFrustum(viewProj mgl32.Mat4) Frustum {
	r0, r1, r2, r3 := viewProj.Rows()

	var f Frustum
	f[PlaneLeft] = planeFromVec4(r3.Add(r0))
	f[PlaneRight] = planeFromVec4(r3.Sub(r0))
	f[PlaneBottom] = planeFromVec4(r3.Add(r1))
	f[PlaneTop] = planeFromVec4(r3.Sub(r1))
	f[PlaneNear] = planeFromVec4(r3.Add(r2))
	f[PlaneFar] = planeFromVec4(r3.Sub(r2))
	return f
}

func planeFromVec4(v mgl32.Vec4) Plane {
	p := Plane{
		Normal: v.Vec3(),
		D:      v[3],
	}

	l := math32.Sqrt(p.Normal.Dot(p.Normal))
	if l == 0 {
		return p
	}
	return Plane{
		Normal: p.Normal.Mul(1 / l),
		D:      p.D / l,
	}
}
