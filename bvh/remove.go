package bvh

import (
	"github.com/aukilabs/go-tooling/pkg/errors"
)

// RemoveLeaf removes a leaf from the tree and releases its id. The leaf
// sibling takes the place of their parent, which is released too.
//
// Removing an internal node is a programming error: the tree is left
// untouched and an error of type ErrTypeNotLeaf is returned.
func (t *Tree) RemoveLeaf(leaf *Node) error {
	if err := t.checkLeaf(leaf); err != nil {
		return errors.New("removing leaf failed").
			WithType(errors.Type(err)).
			Wrap(err)
	}

	t.detach(leaf)
	t.freeNode(leaf)
	t.leafCount--
	instrumentRemove()
	return nil
}

func (t *Tree) checkLeaf(n *Node) error {
	if n == nil || n.tree != t {
		return errors.New("node does not belong to the tree").
			WithType(ErrTypeForeignNode)
	}

	if !n.IsLeaf() {
		return errors.New("node is not a leaf").
			WithType(ErrTypeNotLeaf).
			WithTag("node_id", n.id)
	}

	return nil
}

// detach unlinks a leaf without releasing its id. Ancestors are refit from
// their children so their boxes shrink to the remaining leaves.
func (t *Tree) detach(leaf *Node) {
	if leaf == t.root {
		t.root = nil
		return
	}

	parent := leaf.parent
	sibling := leaf.Sibling()
	grandParent := parent.parent

	if grandParent == nil {
		sibling.parent = nil
		t.root = sibling
	} else {
		grandParent.replaceChild(parent, sibling)
		for a := grandParent; a != nil; a = a.parent {
			a.refit()
		}
	}

	t.freeNode(parent)
	leaf.parent = nil
}
