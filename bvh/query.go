package bvh

import (
	"time"

	"github.com/bits-and-blooms/bitset"
	"github.com/go-gl/mathgl/mgl32"
)

// OcclusionTester decides whether a box may be visible from a camera. The
// tree treats it as an opaque oracle.
type OcclusionTester interface {
	TestVisibility(viewProj, view mgl32.Mat4, box Box) bool
}

// Marks holds the visibility flags of a culling pass, indexed by node id.
//
// Every node owns a left and a right flag telling whether its children were
// considered visible. A culling pass only clears flags, which lets a second
// pass revisit just the subtrees the first one left visible. The zero value
// marks everything visible.
//
// Marks is owned by the caller: the tree never retains it.
type Marks struct {
	leftCulled  bitset.BitSet
	rightCulled bitset.BitSet
}

// Reset sets every flag of the ids below n to visible.
func (m *Marks) Reset(visible bool, n uint32) {
	m.leftCulled.ClearAll()
	m.rightCulled.ClearAll()
	if visible {
		return
	}

	for id := uint(0); id < uint(n); id++ {
		m.leftCulled.Set(id)
		m.rightCulled.Set(id)
	}
}

// Left reports whether the first child of the node with the given id is
// considered visible.
func (m *Marks) Left(id uint32) bool {
	return !m.leftCulled.Test(uint(id))
}

// Right reports whether the second child of the node with the given id is
// considered visible.
func (m *Marks) Right(id uint32) bool {
	return !m.rightCulled.Test(uint(id))
}

func (m *Marks) SetLeft(id uint32, visible bool) {
	setCulled(&m.leftCulled, id, !visible)
}

func (m *Marks) SetRight(id uint32, visible bool) {
	setCulled(&m.rightCulled, id, !visible)
}

// Visible reports whether n was left visible by the passes run on m.
func (m *Marks) Visible(n *Node) bool {
	if n.parent == nil {
		return m.Left(0)
	}
	if n.isFirstChild() {
		return m.Left(n.parent.id)
	}
	return m.Right(n.parent.id)
}

// cull clears the flag of n. The root has no parent and uses the slot of id
// 0, which is never issued.
func (m *Marks) cull(n *Node) {
	switch {
	case n.parent == nil:
		m.SetLeft(0, false)
	case n.isFirstChild():
		m.SetLeft(n.parent.id, false)
	default:
		m.SetRight(n.parent.id, false)
	}
}

func setCulled(b *bitset.BitSet, id uint32, culled bool) {
	if culled {
		b.Set(uint(id))
		return
	}
	if uint(id) < b.Len() {
		b.Clear(uint(id))
	}
}

// ClearVisibility resets marks so that it covers every id issued by the tree
// with all flags set to visible.
func (t *Tree) ClearVisibility(marks *Marks, visible bool) {
	marks.Reset(visible, t.ids.Issued()+1)
}

// CullByFrustum writes to out the leaves whose box intersects the frustum.
// It returns the number of leaves written and whether visible leaves were
// dropped because out was full.
func (t *Tree) CullByFrustum(f Frustum, marks *Marks, out []*Node) (int, bool) {
	start := time.Now()
	n, truncated := t.cull(marks, out, func(b Box) bool {
		return b.Visible(f)
	})
	frustumQueryMetrics.instrument(start, n, truncated)
	return n, truncated
}

// CullByHiZ is CullByFrustum with the visibility verdict of an occlusion
// tester.
func (t *Tree) CullByHiZ(viewProj, view mgl32.Mat4, oracle OcclusionTester, marks *Marks, out []*Node) (int, bool) {
	start := time.Now()
	n, truncated := t.cull(marks, out, func(b Box) bool {
		return oracle.TestVisibility(viewProj, view, b)
	})
	hizQueryMetrics.instrument(start, n, truncated)
	return n, truncated
}

func (t *Tree) cull(marks *Marks, out []*Node, visible func(Box) bool) (int, bool) {
	if t.root == nil || !marks.Left(0) {
		return 0, false
	}

	count := 0
	truncated := false

	queue := append(t.queue[:0], t.root)
	for i := 0; i < len(queue); i++ {
		n := queue[i]

		if !visible(n.box) {
			marks.cull(n)
			continue
		}

		if n.IsLeaf() {
			if count < len(out) {
				out[count] = n
				count++
			} else {
				truncated = true
			}
			continue
		}

		if marks.Left(n.id) {
			queue = append(queue, n.child1)
		}
		if marks.Right(n.id) {
			queue = append(queue, n.child2)
		}
	}
	t.queue = queue[:0]

	return count, truncated
}
