package gossip

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView_New(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		_, err := NewView(0, nil, nil, 1)
		assert.Error(t, err)
	})

	t.Run("contains self", func(t *testing.T) {
		_, err := NewView(0, []NodeID{1, 0, 2}, nil, 1)
		assert.Error(t, err)
	})

	t.Run("duplicate member", func(t *testing.T) {
		_, err := NewView(0, []NodeID{1, 2, 1}, nil, 1)
		assert.Error(t, err)
	})
}

func TestView_SelectFanout(t *testing.T) {
	members := []NodeID{1, 2, 3, 4, 5}
	view, err := NewView(0, members, nil, 1)
	require.NoError(t, err)

	t.Run("no self or duplicates", func(t *testing.T) {
		for i := 0; i < 100; i++ {
			chosen := view.SelectFanout(3)
			require.Len(t, chosen, 3)

			unique := make(map[NodeID]struct{})
			for _, id := range chosen {
				assert.NotEqual(t, NodeID(0), id)
				assert.Contains(t, members, id)
				unique[id] = struct{}{}
			}
			assert.Len(t, unique, 3)
		}
	})

	t.Run("clamped to view size", func(t *testing.T) {
		chosen := view.SelectFanout(100)
		assert.ElementsMatch(t, members, chosen)
	})

	t.Run("zero fanout", func(t *testing.T) {
		assert.Empty(t, view.SelectFanout(0))
	})

	t.Run("fair over many rounds", func(t *testing.T) {
		counts := make(map[NodeID]int)
		rounds := 10000
		for i := 0; i < rounds; i++ {
			for _, id := range view.SelectFanout(1) {
				counts[id]++
			}
		}
		// Each of the 5 members should be chosen roughly a fifth of the
		// time.
		for _, id := range members {
			assert.InDelta(t, rounds/5, counts[id], float64(rounds)/10)
		}
	})
}

func TestView_PrimaryPartition(t *testing.T) {
	isPrimary := func(id NodeID) bool {
		return id < 3
	}
	view, err := NewView(0, []NodeID{1, 2, 3, 4, 5}, isPrimary, 1)
	require.NoError(t, err)

	primaries := view.SelectPrimaries(10)
	assert.ElementsMatch(t, []NodeID{1, 2}, primaries)

	secondaries := view.SelectSecondaries(10)
	assert.ElementsMatch(t, []NodeID{3, 4, 5}, secondaries)
}
