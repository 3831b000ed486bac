package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet_AddRemove(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		s := NewSet()
		require.NoError(t, s.ApplyDelta(s.Add(7)))

		assert.True(t, s.Contains(7))
		assert.False(t, s.Contains(8))
		assert.Equal(t, 1, s.Len())
	})

	t.Run("remove", func(t *testing.T) {
		s := NewSet()
		require.NoError(t, s.ApplyDelta(s.Add(7)))
		require.NoError(t, s.ApplyDelta(s.Remove(7)))

		assert.False(t, s.Contains(7))
		assert.Equal(t, 0, s.Len())
	})

	t.Run("re-add after remove", func(t *testing.T) {
		s := NewSet()
		require.NoError(t, s.ApplyDelta(s.Add(7)))
		require.NoError(t, s.ApplyDelta(s.Remove(7)))
		require.NoError(t, s.ApplyDelta(s.Add(7)))

		assert.True(t, s.Contains(7))
	})

	t.Run("corrupt delta", func(t *testing.T) {
		s := NewSet()
		assert.Error(t, s.ApplyDelta([]byte("not msgpack")))
	})
}

func TestSet_DigestOrderIndependent(t *testing.T) {
	a := NewSet()
	b := NewSet()

	deltas := [][]byte{a.Add(1), a.Add(2), a.Remove(1), a.Add(3)}
	for _, delta := range deltas {
		require.NoError(t, a.ApplyDelta(delta))
	}
	// Apply in reverse order.
	for i := len(deltas) - 1; i >= 0; i-- {
		require.NoError(t, b.ApplyDelta(deltas[i]))
	}

	assert.Equal(t, a.Digest(), b.Digest())
}

func TestSet_Merge(t *testing.T) {
	t.Run("commutative", func(t *testing.T) {
		a := NewSet()
		require.NoError(t, a.ApplyDelta(a.Add(1)))
		require.NoError(t, a.ApplyDelta(a.Add(2)))

		b := NewSet()
		require.NoError(t, b.ApplyDelta(b.Add(2)))
		require.NoError(t, b.ApplyDelta(b.Add(3)))
		require.NoError(t, b.ApplyDelta(b.Remove(1)))

		ab := NewSet()
		require.NoError(t, ab.Merge(a))
		require.NoError(t, ab.Merge(b))

		ba := NewSet()
		require.NoError(t, ba.Merge(b))
		require.NoError(t, ba.Merge(a))

		assert.Equal(t, ab.Digest(), ba.Digest())
	})

	t.Run("associative", func(t *testing.T) {
		a := NewSet()
		require.NoError(t, a.ApplyDelta(a.Add(1)))
		require.NoError(t, a.ApplyDelta(a.Add(2)))

		b := NewSet()
		require.NoError(t, b.ApplyDelta(b.Remove(2)))
		require.NoError(t, b.ApplyDelta(b.Add(3)))

		c := NewSet()
		require.NoError(t, c.ApplyDelta(c.Add(2)))
		require.NoError(t, c.ApplyDelta(c.Remove(4)))

		// merge(merge(a, b), c)
		left := NewSet()
		require.NoError(t, left.Merge(a))
		require.NoError(t, left.Merge(b))
		require.NoError(t, left.Merge(c))

		// merge(a, merge(b, c))
		bc := NewSet()
		require.NoError(t, bc.Merge(b))
		require.NoError(t, bc.Merge(c))
		right := NewSet()
		require.NoError(t, right.Merge(a))
		require.NoError(t, right.Merge(bc))

		assert.Equal(t, left.Digest(), right.Digest())
	})

	t.Run("idempotent", func(t *testing.T) {
		a := NewSet()
		require.NoError(t, a.ApplyDelta(a.Add(1)))
		require.NoError(t, a.ApplyDelta(a.Remove(2)))

		b := NewSet()
		require.NoError(t, b.Merge(a))
		digest := b.Digest()

		require.NoError(t, b.Merge(a))
		assert.Equal(t, digest, b.Digest())
	})

	t.Run("wrong type", func(t *testing.T) {
		assert.Error(t, NewSet().Merge(NewCounter()))
	})
}

func TestSet_Snapshot(t *testing.T) {
	a := NewSet()
	require.NoError(t, a.ApplyDelta(a.Add(1)))
	require.NoError(t, a.ApplyDelta(a.Add(2)))
	require.NoError(t, a.ApplyDelta(a.Remove(2)))

	snapshot, err := a.Snapshot()
	require.NoError(t, err)

	b := NewSet()
	require.NoError(t, b.ApplySnapshot(snapshot))

	assert.True(t, b.Contains(1))
	assert.False(t, b.Contains(2))
	assert.Equal(t, a.Digest(), b.Digest())
}
