package bvh

// Node is a node of a Tree. Leaves carry the boxes inserted by callers,
// internal nodes always have exactly two children and a box equal to the union
// of their children boxes.
//
// A *Node returned by Insert is the handle used to move or remove the leaf.
type Node struct {
	// Data is the caller payload of a leaf.
	Data any

	box    Box
	id     uint32
	tree   *Tree
	parent *Node
	child1 *Node
	child2 *Node

	// Scratch values, only meaningful during the call that sets them.
	inheritedCost float32
	depth         int
}

func (n *Node) ID() uint32 {
	return n.id
}

func (n *Node) Box() Box {
	return n.box
}

func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns both children of an internal node, or nil, nil for a leaf.
func (n *Node) Children() (*Node, *Node) {
	return n.child1, n.child2
}

func (n *Node) IsLeaf() bool {
	return n.child1 == nil
}

func (n *Node) IsRoot() bool {
	return n.parent == nil
}

// Sibling returns the other child of the node's parent, or nil for the root.
func (n *Node) Sibling() *Node {
	if n.parent == nil {
		return nil
	}
	if n.parent.child1 == n {
		return n.parent.child2
	}
	return n.parent.child1
}

// isFirstChild reports whether the node sits in its parent's child1 slot.
func (n *Node) isFirstChild() bool {
	return n.parent != nil && n.parent.child1 == n
}

// replaceChild puts newChild in the slot currently held by oldChild.
func (n *Node) replaceChild(oldChild, newChild *Node) {
	if n.child1 == oldChild {
		n.child1 = newChild
	} else {
		n.child2 = newChild
	}
	newChild.parent = n
}

func (n *Node) refit() {
	n.box = n.child1.box.Union(n.child2.box)
}
