package bvh

import (
	"fmt"
	"io"
	"strings"

	"github.com/aukilabs/go-tooling/pkg/errors"
)

// DebugInfo is a summary of the shape of a tree.
type DebugInfo struct {
	Leaves    int     `json:"leaves"`
	Nodes     int     `json:"nodes"`
	MaxDepth  int     `json:"max_depth"`
	Imbalance float64 `json:"imbalance"`

	// The sum of the internal node areas, the quantity insertion and
	// rotation try to keep low.
	Cost float32 `json:"cost"`

	RootBox   *Box   `json:"root_box,omitempty"`
	IssuedIDs uint32 `json:"issued_ids"`
	FreeIDs   int    `json:"free_ids"`
}

func (t *Tree) DebugInfo() DebugInfo {
	info := DebugInfo{
		Leaves:    t.leafCount,
		MaxDepth:  t.MaxDepth(),
		Imbalance: t.Imbalance(),
		IssuedIDs: t.ids.Issued(),
		FreeIDs:   t.ids.Free(),
	}

	t.walk(func(n *Node) bool {
		info.Nodes++
		if !n.IsLeaf() {
			info.Cost += n.box.Area()
		}
		return true
	})

	if t.root != nil {
		box := t.root.box
		info.RootBox = &box
	}
	return info
}

// ExtractAABB writes the leaf boxes to out, breadth-first, and returns how
// many were written. Internal nodes are skipped.
func (t *Tree) ExtractAABB(out []Box) int {
	count := 0
	t.walk(func(n *Node) bool {
		if count == len(out) {
			return false
		}
		if n.IsLeaf() {
			out[count] = n.box
			count++
		}
		return true
	})
	return count
}

// Print writes an indented dump of the tree, one node per line.
func (t *Tree) Print(w io.Writer) error {
	if t.root == nil {
		_, err := fmt.Fprintln(w, "<empty>")
		return err
	}
	return printNode(w, t.root, 0)
}

func printNode(w io.Writer, n *Node, depth int) error {
	kind := "node"
	if n.IsLeaf() {
		kind = "leaf"
	}

	if _, err := fmt.Fprintf(w, "%s%s %d lower=%v upper=%v area=%g\n",
		strings.Repeat("  ", depth),
		kind,
		n.id,
		n.box.Lower,
		n.box.Upper,
		n.box.Area(),
	); err != nil {
		return err
	}

	if n.IsLeaf() {
		return nil
	}
	if err := printNode(w, n.child1, depth+1); err != nil {
		return err
	}
	return printNode(w, n.child2, depth+1)
}

// Validate checks the structural invariants of the tree: links are
// consistent, internal nodes have two children and the union of their boxes,
// ids are unique and the leaf count is exact.
func (t *Tree) Validate() error {
	if t.root == nil {
		if t.leafCount != 0 {
			return errors.New("empty tree has leaves").
				WithType(ErrTypeInvalidTree).
				WithTag("leaves", t.leafCount)
		}
		return nil
	}

	if t.root.parent != nil {
		return errors.New("root has a parent").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", t.root.id)
	}

	var err error
	leaves := 0
	ids := make(map[uint32]struct{})

	t.walk(func(n *Node) bool {
		err = t.validateNode(n, ids)
		if err != nil {
			return false
		}
		if n.IsLeaf() {
			leaves++
		}
		return true
	})
	if err != nil {
		return err
	}

	if leaves != t.leafCount {
		return errors.New("leaf count mismatch").
			WithType(ErrTypeInvalidTree).
			WithTag("counted", leaves).
			WithTag("expected", t.leafCount)
	}
	return nil
}

func (t *Tree) validateNode(n *Node, ids map[uint32]struct{}) error {
	if n.tree != t {
		return errors.New("node belongs to another tree").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id)
	}

	if n.id == 0 || n.id > t.ids.Issued() {
		return errors.New("node id was not issued by the tree").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id)
	}
	if _, ok := ids[n.id]; ok {
		return errors.New("duplicate node id").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id)
	}
	ids[n.id] = struct{}{}

	if n.IsLeaf() {
		if n.child2 != nil {
			return errors.New("node has a single child").
				WithType(ErrTypeInvalidTree).
				WithTag("node_id", n.id)
		}
		return nil
	}

	if n.child2 == nil {
		return errors.New("node has a single child").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id)
	}

	if n.child1.parent != n || n.child2.parent != n {
		return errors.New("child does not point to its parent").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id)
	}

	if !n.box.Equal(n.child1.box.Union(n.child2.box)) {
		return errors.New("node box is not the union of its children").
			WithType(ErrTypeInvalidTree).
			WithTag("node_id", n.id).
			WithTag("box", n.box)
	}
	return nil
}
