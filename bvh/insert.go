package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/chewxy/math32"
)

// Heuristic selects how Insert picks the sibling of a new leaf.
type Heuristic int

const (
	// HeuristicBranchAndBound walks the tree breadth-first and prunes the
	// subtrees whose lower bound cost cannot beat the best sibling found so
	// far.
	HeuristicBranchAndBound Heuristic = iota

	// HeuristicGlobal evaluates the cost of every node of the tree.
	HeuristicGlobal

	// HeuristicBalanced is HeuristicBranchAndBound with costs scaled by
	// 1 + depth * BalanceWeight, which penalizes deep insertion points.
	HeuristicBalanced

	// HeuristicRoot always pairs the new leaf with the root. It builds a
	// degenerate chain and only exists as a worst case baseline.
	HeuristicRoot
)

func (h Heuristic) String() string {
	switch h {
	case HeuristicBranchAndBound:
		return "branch_and_bound"
	case HeuristicGlobal:
		return "global"
	case HeuristicBalanced:
		return "balanced"
	case HeuristicRoot:
		return "root"
	default:
		return "unknown"
	}
}

// ParseHeuristic returns the heuristic with the given name, as returned by
// Heuristic.String.
func ParseHeuristic(name string) (Heuristic, error) {
	for _, h := range []Heuristic{
		HeuristicBranchAndBound,
		HeuristicGlobal,
		HeuristicBalanced,
		HeuristicRoot,
	} {
		if h.String() == name {
			return h, nil
		}
	}

	return 0, errors.New("unknown heuristic").
		WithType(ErrTypeUnknownHeuristic).
		WithTag("name", name)
}

// Insert adds a leaf with the tree default heuristic.
func (t *Tree) Insert(box Box, data any) *Node {
	return t.InsertLeaf(box, data, t.opts.Heuristic)
}

// InsertLeaf adds a leaf holding box and data, choosing its sibling with h.
// The returned node is the handle to pass to RemoveLeaf and ReInsert.
func (t *Tree) InsertLeaf(box Box, data any, h Heuristic) *Node {
	leaf := t.newNode(NewBox(box.Lower, box.Upper))
	leaf.Data = data

	t.attach(leaf, h)
	t.leafCount++
	instrumentInsert(h)
	return leaf
}

// ReInsert moves a leaf to a new box: the leaf is detached, its box replaced
// and the leaf inserted again with the tree default heuristic. The handle,
// its id and its data stay the same.
func (t *Tree) ReInsert(leaf *Node, box Box) (*Node, error) {
	if err := t.checkLeaf(leaf); err != nil {
		return nil, errors.New("reinserting leaf failed").
			WithType(errors.Type(err)).
			Wrap(err)
	}

	t.detach(leaf)
	leaf.box = NewBox(box.Lower, box.Upper)
	t.attach(leaf, t.opts.Heuristic)
	instrumentReInsert()
	return leaf, nil
}

func (t *Tree) attach(leaf *Node, h Heuristic) {
	if t.root == nil {
		leaf.parent = nil
		t.root = leaf
		return
	}

	sibling := t.findSibling(leaf.box, h)
	oldParent := sibling.parent

	parent := t.newNode(sibling.box.Union(leaf.box))
	parent.child1 = sibling
	parent.child2 = leaf
	sibling.parent = parent
	leaf.parent = parent

	if oldParent == nil {
		t.root = parent
	} else {
		oldParent.replaceChild(sibling, parent)
	}

	for a := parent.parent; a != nil; a = a.parent {
		a.box = a.box.Union(leaf.box)
	}

	if t.opts.RotateOnInsert {
		for a := parent; a != nil; {
			next := a.parent
			t.RotateNode(a)
			a = next
		}
	}
}

func (t *Tree) findSibling(box Box, h Heuristic) *Node {
	switch h {
	case HeuristicRoot:
		return t.root

	case HeuristicGlobal:
		return t.globalSearch(box)

	case HeuristicBalanced:
		return t.branchAndBound(box, t.opts.BalanceWeight)

	default:
		return t.branchAndBound(box, 0)
	}
}

// globalSearch returns the node minimizing the area of its union with box
// plus the area growth of all its ancestors.
func (t *Tree) globalSearch(box Box) *Node {
	best := t.root
	bestCost := math32.Inf(1)

	t.walk(func(n *Node) bool {
		cost := n.box.Union(box).Area()
		for a := n.parent; a != nil; a = a.parent {
			cost += a.box.Union(box).Area() - a.box.Area()
		}

		if cost < bestCost {
			best = n
			bestCost = cost
		}
		return true
	})

	return best
}

// branchAndBound is the pruned version of globalSearch. Each visited node
// stores in inheritedCost the area growth its ancestors would suffer if the
// box was inserted below it. A weight greater than zero scales every cost by
// 1 + depth * weight.
func (t *Tree) branchAndBound(box Box, weight float32) *Node {
	boxArea := box.Area()
	scale := func(cost float32, depth int) float32 {
		return cost * (1 + float32(depth)*weight)
	}

	root := t.root
	root.inheritedCost = 0
	root.depth = 0

	best := root
	bestCost := math32.Inf(1)

	queue := append(t.queue[:0], root)
	for i := 0; i < len(queue); i++ {
		n := queue[i]

		direct := n.box.Union(box).Area()
		if cost := scale(direct+n.inheritedCost, n.depth); cost < bestCost {
			best = n
			bestCost = cost
		}

		if n.IsLeaf() {
			continue
		}

		// No descendant can cost less than the box area plus what every
		// ancestor, this node included, would grow.
		inherited := n.inheritedCost + direct - n.box.Area()
		if scale(boxArea+inherited, n.depth+1) >= bestCost {
			continue
		}

		n.child1.inheritedCost = inherited
		n.child1.depth = n.depth + 1
		n.child2.inheritedCost = inherited
		n.child2.depth = n.depth + 1
		queue = append(queue, n.child1, n.child2)
	}
	t.queue = queue[:0]

	return best
}
