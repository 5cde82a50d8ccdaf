package bvh

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"
)

func TestTreeDebugInfo(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		tree := New(Options{})
		info := tree.DebugInfo()
		require.Equal(t, DebugInfo{}, info)
	})

	t.Run("populated tree", func(t *testing.T) {
		tree := New(Options{})
		tree.Insert(NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}), nil)
		b := tree.Insert(NewBox(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{3, 1, 1}), nil)
		require.NoError(t, tree.RemoveLeaf(b))
		tree.Insert(NewBox(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{3, 1, 1}), nil)

		info := tree.DebugInfo()
		require.Equal(t, 2, info.Leaves)
		require.Equal(t, 3, info.Nodes)
		require.Equal(t, 1, info.MaxDepth)
		require.Equal(t, float32(2*(3+1+3)), info.Cost)
		require.Equal(t, uint32(3), info.IssuedIDs)
		require.Zero(t, info.FreeIDs)
		require.NotNil(t, info.RootBox)
		require.Equal(t, NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{3, 1, 1}), *info.RootBox)
	})
}

func TestTreeExtractAABB(t *testing.T) {
	tree, _ := randomTree(t, 20, 10)

	t.Run("every leaf box", func(t *testing.T) {
		leafBoxes := make(map[Box]int)
		tree.walk(func(n *Node) bool {
			if n.IsLeaf() {
				leafBoxes[n.box]++
			}
			return true
		})

		out := make([]Box, 32)
		n := tree.ExtractAABB(out)
		require.Equal(t, tree.LeafCount(), n)

		for _, b := range out[:n] {
			require.Positive(t, leafBoxes[b], "box %v is not a leaf box", b)
			leafBoxes[b]--
		}
	})

	t.Run("internal boxes are skipped", func(t *testing.T) {
		tree := New(Options{})
		for _, x := range []float32{0, 10, 20} {
			tree.Insert(NewBox(mgl32.Vec3{x, 0, 0}, mgl32.Vec3{x + 1, 1, 1}), nil)
		}

		out := make([]Box, 16)
		n := tree.ExtractAABB(out)
		require.Equal(t, 3, n)
		require.ElementsMatch(t, []Box{
			NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}),
			NewBox(mgl32.Vec3{10, 0, 0}, mgl32.Vec3{11, 1, 1}),
			NewBox(mgl32.Vec3{20, 0, 0}, mgl32.Vec3{21, 1, 1}),
		}, out[:n])
	})

	t.Run("output is full", func(t *testing.T) {
		out := make([]Box, 4)
		n := tree.ExtractAABB(out)
		require.Equal(t, 4, n)
	})

	t.Run("empty tree", func(t *testing.T) {
		require.Zero(t, New(Options{}).ExtractAABB(make([]Box, 4)))
	})
}

func TestTreePrint(t *testing.T) {
	t.Run("empty tree", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, New(Options{}).Print(&buf))
		require.Equal(t, "<empty>\n", buf.String())
	})

	t.Run("populated tree", func(t *testing.T) {
		tree := New(Options{})
		tree.Insert(NewBox(mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 1, 1}), nil)
		tree.Insert(NewBox(mgl32.Vec3{2, 0, 0}, mgl32.Vec3{3, 1, 1}), nil)

		var buf bytes.Buffer
		require.NoError(t, tree.Print(&buf))

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, 3)
		require.True(t, strings.HasPrefix(lines[0], "node 3 "))
		require.True(t, strings.HasPrefix(lines[1], "  leaf 1 "))
		require.True(t, strings.HasPrefix(lines[2], "  leaf 2 "))
	})
}

func TestTreeValidate(t *testing.T) {
	t.Run("valid tree", func(t *testing.T) {
		tree, _ := randomTree(t, 21, 50)
		require.NoError(t, tree.Validate())
	})

	t.Run("stale internal box", func(t *testing.T) {
		tree, _ := randomTree(t, 22, 50)
		tree.Root().box = tree.Root().box.Expand(1)

		err := tree.Validate()
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidTree))
	})

	t.Run("broken parent link", func(t *testing.T) {
		tree, leaves := randomTree(t, 23, 50)
		leaves[10].parent = leaves[10]

		err := tree.Validate()
		require.True(t, errors.IsType(err, ErrTypeInvalidTree))
	})

	t.Run("wrong leaf count", func(t *testing.T) {
		tree, _ := randomTree(t, 24, 50)
		tree.leafCount++

		err := tree.Validate()
		require.True(t, errors.IsType(err, ErrTypeInvalidTree))
	})
}

func TestTreeWriteHeatmap(t *testing.T) {
	t.Run("encodes a bmp", func(t *testing.T) {
		tree, _ := randomTree(t, 25, 100)

		var buf bytes.Buffer
		err := tree.WriteHeatmap(&buf, 64, 32)
		require.NoError(t, err)

		img, err := bmp.Decode(&buf)
		require.NoError(t, err)
		require.Equal(t, 64, img.Bounds().Dx())
		require.Equal(t, 32, img.Bounds().Dy())
	})

	t.Run("empty tree", func(t *testing.T) {
		var buf bytes.Buffer
		err := New(Options{}).WriteHeatmap(&buf, 8, 8)
		require.NoError(t, err)
		require.NotZero(t, buf.Len())
	})

	t.Run("invalid size", func(t *testing.T) {
		var buf bytes.Buffer
		tree := New(Options{})

		err := tree.WriteHeatmap(&buf, 0, 8)
		require.True(t, errors.IsType(err, ErrTypeInvalidHeatmapSize))

		err = tree.WriteHeatmap(&buf, 8, MaxHeatmapSize+1)
		require.True(t, errors.IsType(err, ErrTypeInvalidHeatmapSize))
		require.Zero(t, buf.Len())
	})
}
