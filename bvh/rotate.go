package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/chewxy/math32"
)

// OptimizeReport describes a run of OptimizeTreeIterative.
type OptimizeReport struct {
	Iterations int `json:"iterations"`
	Rotations  int `json:"rotations"`

	// The imbalance factor before the first sweep followed by its value after
	// each sweep.
	Imbalance []float64 `json:"imbalance"`
}

// RotateNode tries to lower the area of the tree by exchanging the node or
// one of its children with a node one level up or down:
//   - the node sibling with one of the node children, or
//   - the node with one of its sibling children.
//
// The exchange that shrinks the modified internal node the most is applied,
// only if it strictly reduces its area. The set of leaves and their boxes never
// change and the parent box stays the same. RotateNode is a no-op for the root
// and for leaves. It returns whether a rotation happened.
func (t *Tree) RotateNode(n *Node) bool {
	if n == nil || n.parent == nil || n.IsLeaf() {
		return false
	}

	sibling := n.Sibling()

	var bestGain float32
	var uncle, nephew *Node

	consider := func(gain float32, u, v *Node) {
		if gain > bestGain {
			bestGain = gain
			uncle = u
			nephew = v
		}
	}

	area := n.box.Area()
	consider(area-n.child2.box.Union(sibling.box).Area(), sibling, n.child1)
	consider(area-n.child1.box.Union(sibling.box).Area(), sibling, n.child2)

	if !sibling.IsLeaf() {
		area = sibling.box.Area()
		consider(area-sibling.child2.box.Union(n.box).Area(), n, sibling.child1)
		consider(area-sibling.child1.box.Union(n.box).Area(), n, sibling.child2)
	}

	if uncle == nil {
		return false
	}

	uncleParent := uncle.parent
	nephewParent := nephew.parent
	uncleParent.replaceChild(uncle, nephew)
	nephewParent.replaceChild(nephew, uncle)
	nephewParent.refit()

	instrumentRotation()
	return true
}

// OptimizeTree applies RotateNode to every internal node, visited
// breadth-first, and returns the number of rotations.
func (t *Tree) OptimizeTree() int {
	internals := t.scratch[:0]
	t.walk(func(n *Node) bool {
		if !n.IsLeaf() {
			internals = append(internals, n)
		}
		return true
	})

	rotations := 0
	for _, n := range internals {
		if t.RotateNode(n) {
			rotations++
		}
	}

	clear(internals)
	t.scratch = internals[:0]
	return rotations
}

// OptimizeTreeIterative runs OptimizeTree until the imbalance factor improves
// by less than DefaultMinImprovement or maxIterations sweeps ran.
func (t *Tree) OptimizeTreeIterative(maxIterations int) OptimizeReport {
	report := OptimizeReport{
		Imbalance: []float64{t.Imbalance()},
	}

	for report.Iterations < maxIterations {
		rotations := t.OptimizeTree()
		report.Iterations++
		report.Rotations += rotations

		prev := report.Imbalance[len(report.Imbalance)-1]
		current := t.Imbalance()
		report.Imbalance = append(report.Imbalance, current)

		if rotations == 0 || prev-current < DefaultMinImprovement {
			break
		}
	}

	imbalance := report.Imbalance[len(report.Imbalance)-1]
	instrumentImbalance(imbalance)

	logs.WithTag("iterations", report.Iterations).
		WithTag("rotations", report.Rotations).
		WithTag("imbalance", imbalance).
		WithTag("leaves", t.leafCount).
		Debug("bvh optimized")

	return report
}

// Imbalance returns how much deeper the tree is than a perfectly balanced
// binary tree with the same number of leaves:
//
//	(MaxDepth - log2(leaves)) / max(log2(leaves), 1)
func (t *Tree) Imbalance() float64 {
	if t.leafCount == 0 {
		return 0
	}

	ideal := math32.Log2(float32(t.leafCount))
	return float64((float32(t.MaxDepth()) - ideal) / math32.Max(ideal, 1))
}
