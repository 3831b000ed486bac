package lattice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_LastWriterWins(t *testing.T) {
	t.Run("later stamp wins", func(t *testing.T) {
		r := NewRegister()
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "old", Stamp: 100, Writer: 1,
		})))
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "new", Stamp: 200, Writer: 1,
		})))

		assert.Equal(t, "new", r.Get())
	})

	t.Run("earlier stamp loses", func(t *testing.T) {
		r := NewRegister()
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "new", Stamp: 200, Writer: 1,
		})))
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "old", Stamp: 100, Writer: 2,
		})))

		assert.Equal(t, "new", r.Get())
	})

	t.Run("equal stamps break on writer", func(t *testing.T) {
		r := NewRegister()
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "a", Stamp: 100, Writer: 1,
		})))
		require.NoError(t, r.ApplyDelta(marshal(&registerValue{
			Value: "b", Stamp: 100, Writer: 2,
		})))

		assert.Equal(t, "b", r.Get())
	})
}

func TestRegister_Set(t *testing.T) {
	r := NewRegister()
	delta := r.Set("hello", 3)
	assert.Equal(t, "hello", r.Get())

	// Applying its own delta again must not change the value.
	require.NoError(t, r.ApplyDelta(delta))
	assert.Equal(t, "hello", r.Get())

	other := NewRegister()
	require.NoError(t, other.ApplyDelta(delta))
	assert.Equal(t, "hello", other.Get())
	assert.Equal(t, r.Digest(), other.Digest())
}

func TestRegister_Merge(t *testing.T) {
	a := NewRegister()
	require.NoError(t, a.ApplyDelta(marshal(&registerValue{
		Value: "a", Stamp: 100, Writer: 1,
	})))
	b := NewRegister()
	require.NoError(t, b.ApplyDelta(marshal(&registerValue{
		Value: "b", Stamp: 200, Writer: 1,
	})))

	require.NoError(t, a.Merge(b))
	assert.Equal(t, "b", a.Get())

	// Merging the other way agrees.
	require.NoError(t, b.Merge(a))
	assert.Equal(t, a.Digest(), b.Digest())
}

func TestRegister_MergeAssociative(t *testing.T) {
	a := NewRegister()
	require.NoError(t, a.ApplyDelta(marshal(&registerValue{
		Value: "a", Stamp: 100, Writer: 1,
	})))
	b := NewRegister()
	require.NoError(t, b.ApplyDelta(marshal(&registerValue{
		Value: "b", Stamp: 300, Writer: 2,
	})))
	c := NewRegister()
	require.NoError(t, c.ApplyDelta(marshal(&registerValue{
		Value: "c", Stamp: 200, Writer: 3,
	})))

	left := NewRegister()
	require.NoError(t, left.Merge(a))
	require.NoError(t, left.Merge(b))
	require.NoError(t, left.Merge(c))

	bc := NewRegister()
	require.NoError(t, bc.Merge(b))
	require.NoError(t, bc.Merge(c))
	right := NewRegister()
	require.NoError(t, right.Merge(a))
	require.NoError(t, right.Merge(bc))

	assert.Equal(t, "b", left.Get())
	assert.Equal(t, left.Get(), right.Get())
	assert.Equal(t, left.Digest(), right.Digest())
}
