package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounter_Inc(t *testing.T) {
	c := NewCounter()
	c.Inc(1, 5)
	c.Inc(1, 3)
	c.Inc(2, 2)

	assert.Equal(t, uint64(10), c.Value())
}

func TestCounter_DeltaIdempotent(t *testing.T) {
	a := NewCounter()
	delta := a.Inc(1, 5)

	b := NewCounter()
	require.NoError(t, b.ApplyDelta(delta))
	require.NoError(t, b.ApplyDelta(delta))

	assert.Equal(t, uint64(5), b.Value())
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestCounter_DeltaCarriesRunningTotal(t *testing.T) {
	a := NewCounter()
	a.Inc(1, 5)
	delta := a.Inc(1, 3)

	// A replica that missed the first delta still catches up from the
	// second, since deltas carry the replica's running total.
	b := NewCounter()
	require.NoError(t, b.ApplyDelta(delta))

	assert.Equal(t, uint64(8), b.Value())
}

func TestCounter_Merge(t *testing.T) {
	t.Run("commutative", func(t *testing.T) {
		a := NewCounter()
		a.Inc(1, 5)
		a.Inc(2, 1)

		b := NewCounter()
		b.Inc(2, 4)
		b.Inc(3, 2)

		require.NoError(t, a.Merge(b))
		require.NoError(t, b.Merge(a))

		assert.Equal(t, uint64(11), a.Value())
		assert.Equal(t, a.Digest(), b.Digest())
	})

	t.Run("associative", func(t *testing.T) {
		a := NewCounter()
		a.Inc(1, 5)

		b := NewCounter()
		b.Inc(1, 2)
		b.Inc(2, 4)

		c := NewCounter()
		c.Inc(3, 1)

		left := NewCounter()
		require.NoError(t, left.Merge(a))
		require.NoError(t, left.Merge(b))
		require.NoError(t, left.Merge(c))

		bc := NewCounter()
		require.NoError(t, bc.Merge(b))
		require.NoError(t, bc.Merge(c))
		right := NewCounter()
		require.NoError(t, right.Merge(a))
		require.NoError(t, right.Merge(bc))

		assert.Equal(t, uint64(10), left.Value())
		assert.Equal(t, left.Digest(), right.Digest())
	})
}
