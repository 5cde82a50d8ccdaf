package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	// DefaultBalanceWeight is the per-level cost penalty used by
	// HeuristicBalanced.
	DefaultBalanceWeight = 0.1

	// DefaultMinImprovement is the imbalance improvement under which
	// OptimizeTreeIterative stops.
	DefaultMinImprovement = 0.01
)

// Options configures a Tree.
type Options struct {
	// The heuristic used by Insert and ReInsert.
	Heuristic Heuristic

	// The depth penalty of HeuristicBalanced.
	BalanceWeight float32

	// Rotates every ancestor touched by an insertion.
	RotateOnInsert bool
}

// Tree is a dynamic bounding volume hierarchy.
//
// A Tree is meant to be owned by a single goroutine: mutations and queries
// are not synchronized.
type Tree struct {
	opts Options
	ids  IDPool
	root *Node

	leafCount int

	// Reused between calls to avoid per-frame allocations.
	queue   []*Node
	scratch []*Node
}

// New returns an empty tree.
func New(opts Options) *Tree {
	if opts.BalanceWeight == 0 {
		opts.BalanceWeight = DefaultBalanceWeight
	}
	return &Tree{opts: opts}
}

func (t *Tree) Root() *Node {
	return t.root
}

func (t *Tree) Empty() bool {
	return t.root == nil
}

// LeafCount returns the number of leaves in the tree.
func (t *Tree) LeafCount() int {
	return t.leafCount
}

// IDs returns the identifier pool of the tree.
func (t *Tree) IDs() *IDPool {
	return &t.ids
}

func (t *Tree) Options() Options {
	return t.opts
}

// SetRotateOnInsert toggles the rotation of ancestors after each insertion.
func (t *Tree) SetRotateOnInsert(v bool) {
	t.opts.RotateOnInsert = v
}

// Clear removes every node and resets the identifier pool. Handles obtained
// before the call are invalidated.
func (t *Tree) Clear() {
	count := 0
	t.walk(func(n *Node) bool {
		n.tree = nil
		count++
		return true
	})

	t.root = nil
	t.leafCount = 0
	t.ids.Reset()

	logs.WithTag("nodes", count).Debug("bvh cleared")
}

// FindNode returns the node with the given id.
func (t *Tree) FindNode(id uint32) (*Node, bool) {
	var found *Node
	t.walk(func(n *Node) bool {
		if n.id == id {
			found = n
			return false
		}
		return true
	})
	return found, found != nil
}

// TotalNodeCount returns the number of leaves and internal nodes.
func (t *Tree) TotalNodeCount() int {
	count := 0
	t.walk(func(n *Node) bool {
		count++
		return true
	})
	return count
}

// MaxDepth returns the number of edges between the root and its deepest
// leaf. It returns 0 for an empty tree or a single leaf.
func (t *Tree) MaxDepth() int {
	maxDepth := 0
	t.walk(func(n *Node) bool {
		if n.parent == nil {
			n.depth = 0
		} else {
			n.depth = n.parent.depth + 1
		}
		if n.depth > maxDepth {
			maxDepth = n.depth
		}
		return true
	})
	return maxDepth
}

// walk visits the tree breadth-first until visit returns false.
func (t *Tree) walk(visit func(n *Node) bool) {
	if t.root == nil {
		return
	}

	queue := append(t.queue[:0], t.root)
	for i := 0; i < len(queue); i++ {
		n := queue[i]
		if !visit(n) {
			break
		}
		if !n.IsLeaf() {
			queue = append(queue, n.child1, n.child2)
		}
	}
	t.queue = queue[:0]
}

func (t *Tree) newNode(box Box) *Node {
	return &Node{
		box:  box,
		id:   t.ids.Allocate(),
		tree: t,
	}
}

func (t *Tree) freeNode(n *Node) {
	t.ids.Release(n.id)
	n.tree = nil
	n.parent = nil
	n.child1 = nil
	n.child2 = nil
}
