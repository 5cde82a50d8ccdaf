package bvh

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDPoolAllocate(t *testing.T) {
	t.Run("returns sequential ids", func(t *testing.T) {
		var pool IDPool

		for i := 1; i <= 5; i++ {
			id := pool.Allocate()
			require.Equal(t, uint32(i), id)
		}
		require.Equal(t, uint32(5), pool.Issued())
	})

	t.Run("returns the last released id first", func(t *testing.T) {
		var pool IDPool

		for i := 1; i <= 5; i++ {
			pool.Allocate()
		}

		pool.Release(2)
		pool.Release(4)
		require.Equal(t, 2, pool.Free())

		require.Equal(t, uint32(4), pool.Allocate())
		require.Equal(t, uint32(2), pool.Allocate())
		require.Equal(t, uint32(6), pool.Allocate())
		require.Zero(t, pool.Free())
	})

	t.Run("reset", func(t *testing.T) {
		var pool IDPool
		pool.Allocate()
		pool.Allocate()
		pool.Release(1)

		pool.Reset()
		require.Zero(t, pool.Issued())
		require.Zero(t, pool.Free())
		require.Equal(t, uint32(1), pool.Allocate())
	})
}
