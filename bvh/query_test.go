package bvh

import (
	"math/rand"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
)

type occlusionFunc func(box Box) bool

func (f occlusionFunc) TestVisibility(viewProj, view mgl32.Mat4, box Box) bool {
	return f(box)
}

func TestMarks(t *testing.T) {
	t.Run("zero value is visible", func(t *testing.T) {
		var m Marks
		require.True(t, m.Left(0))
		require.True(t, m.Right(1000))
	})

	t.Run("set and reset", func(t *testing.T) {
		var m Marks
		m.SetLeft(3, false)
		m.SetRight(130, false)
		require.False(t, m.Left(3))
		require.True(t, m.Right(3))
		require.False(t, m.Right(130))

		m.Reset(true, 200)
		require.True(t, m.Left(3))
		require.True(t, m.Right(130))

		m.Reset(false, 200)
		require.False(t, m.Left(3))
		require.False(t, m.Right(199))

		m.SetRight(199, true)
		require.True(t, m.Right(199))
		require.True(t, m.Left(200))
	})

	t.Run("visible flags beyond the issued ids", func(t *testing.T) {
		var m Marks
		m.SetLeft(5000, true)
		require.True(t, m.Left(5000))

		m.SetLeft(5000, false)
		require.False(t, m.Left(5000))
		require.True(t, m.Left(4999))
	})
}

func TestTreeCullByFrustum(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		tree := New(Options{})
		var marks Marks
		out := make([]*Node, 8)

		n, truncated := tree.CullByFrustum(Frustum{}, &marks, out)
		require.Zero(t, n)
		require.False(t, truncated)
	})

	t.Run("zero frustum returns every leaf once", func(t *testing.T) {
		tree, leaves := randomTree(t, 9, 200)
		var marks Marks
		tree.ClearVisibility(&marks, true)

		out := make([]*Node, 256)
		n, truncated := tree.CullByFrustum(Frustum{}, &marks, out)
		require.False(t, truncated)
		require.Equal(t, len(leaves), n)
		require.ElementsMatch(t, leaves, out[:n])
	})

	t.Run("returns exactly the visible leaves", func(t *testing.T) {
		f := testFrustum()
		tree, leaves := randomTree(t, 10, 500)
		var marks Marks
		tree.ClearVisibility(&marks, true)

		out := make([]*Node, len(leaves))
		n, truncated := tree.CullByFrustum(f, &marks, out)
		require.False(t, truncated)

		var expected []*Node
		for _, leaf := range leaves {
			if leaf.Box().Visible(f) {
				expected = append(expected, leaf)
			}
		}
		require.NotEmpty(t, expected)
		require.Less(t, len(expected), len(leaves))
		require.ElementsMatch(t, expected, out[:n])

		for _, leaf := range out[:n] {
			require.True(t, marks.Visible(leaf))
		}
	})

	t.Run("boxes outside the frustum are never returned", func(t *testing.T) {
		f := testFrustum()
		outside := BoxFromCenter(mgl32.Vec3{0, 0, 40}, mgl32.Vec3{1, 1, 1})

		for _, h := range []Heuristic{HeuristicBranchAndBound, HeuristicGlobal, HeuristicBalanced, HeuristicRoot} {
			tree := New(Options{})
			r := rand.New(rand.NewSource(11))
			for i := 0; i < 50; i++ {
				tree.InsertLeaf(randomBox(r, 20, 3), nil, h)
			}
			hidden := tree.InsertLeaf(outside, nil, h)

			var marks Marks
			out := make([]*Node, 64)
			n, _ := tree.CullByFrustum(f, &marks, out)
			require.NotContains(t, out[:n], hidden)
		}
	})

	t.Run("output is truncated", func(t *testing.T) {
		tree, _ := randomTree(t, 12, 20)
		var marks Marks

		out := make([]*Node, 5)
		n, truncated := tree.CullByFrustum(Frustum{}, &marks, out)
		require.Equal(t, 5, n)
		require.True(t, truncated)
		for _, leaf := range out {
			require.NotNil(t, leaf)
			require.True(t, leaf.IsLeaf())
		}
	})
}

func TestTreeCullByHiZ(t *testing.T) {
	viewProj, view := testViewProj()

	t.Run("oracle verdict is applied", func(t *testing.T) {
		tree, leaves := randomTree(t, 13, 100)
		var marks Marks

		left := occlusionFunc(func(b Box) bool {
			return b.Lower[0] < 0
		})

		out := make([]*Node, len(leaves))
		n, truncated := tree.CullByHiZ(viewProj, view, left, &marks, out)
		require.False(t, truncated)

		var expected []*Node
		for _, leaf := range leaves {
			if leaf.Box().Lower[0] < 0 {
				expected = append(expected, leaf)
			}
		}
		require.ElementsMatch(t, expected, out[:n])
	})

	t.Run("second pass only visits what the first left visible", func(t *testing.T) {
		f := testFrustum()
		tree, leaves := randomTree(t, 14, 300)
		var marks Marks
		tree.ClearVisibility(&marks, true)

		out := make([]*Node, len(leaves))
		frustumCount, _ := tree.CullByFrustum(f, &marks, out)
		frustumVisible := append([]*Node(nil), out[:frustumCount]...)

		tested := 0
		oracle := occlusionFunc(func(b Box) bool {
			tested++
			require.True(t, b.Visible(f))
			return true
		})

		n, _ := tree.CullByHiZ(viewProj, view, oracle, &marks, out)
		require.ElementsMatch(t, frustumVisible, out[:n])
		require.Less(t, tested, tree.TotalNodeCount())

		tree.ClearVisibility(&marks, true)
		n, _ = tree.CullByHiZ(viewProj, view, occlusionFunc(func(Box) bool { return true }), &marks, out)
		require.Equal(t, len(leaves), n)
	})

	t.Run("culled root stays culled", func(t *testing.T) {
		tree, _ := randomTree(t, 15, 10)
		var marks Marks

		none := occlusionFunc(func(Box) bool { return false })
		all := occlusionFunc(func(Box) bool { return true })

		out := make([]*Node, 16)
		n, _ := tree.CullByHiZ(viewProj, view, none, &marks, out)
		require.Zero(t, n)
		require.False(t, marks.Visible(tree.Root()))

		n, _ = tree.CullByHiZ(viewProj, view, all, &marks, out)
		require.Zero(t, n)
	})

	t.Run("visibility cleared to invisible", func(t *testing.T) {
		tree, _ := randomTree(t, 16, 10)
		var marks Marks
		tree.ClearVisibility(&marks, false)

		out := make([]*Node, 16)
		n, _ := tree.CullByHiZ(viewProj, view, occlusionFunc(func(Box) bool { return true }), &marks, out)
		require.Zero(t, n)
	})
}

func randomTree(t *testing.T, seed int64, count int) (*Tree, []*Node) {
	r := rand.New(rand.NewSource(seed))
	tree := New(Options{})

	leaves := make([]*Node, 0, count)
	for i := 0; i < count; i++ {
		leaves = append(leaves, tree.Insert(randomBox(r, 50, 4), i))
	}
	require.NoError(t, tree.Validate())
	return tree, leaves
}
