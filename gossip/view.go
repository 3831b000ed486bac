package gossip

import (
	"fmt"
	"math/rand"
)

// View is a node's bounded set of gossip peers, fixed for the run's
// lifetime. In priority mode the view partitions into primary and secondary
// members.
//
// A view is owned by a single engine: at most one round-step executes per
// node at any instant, so selection requires no locking.
type View struct {
	self NodeID

	members     []NodeID
	primaries   []NodeID
	secondaries []NodeID

	rng *rand.Rand
}

// NewView creates a view over the given members. isPrimary designates the
// primary subset (may be nil when running uniform gossip). The view never
// contains the node itself.
func NewView(self NodeID, members []NodeID, isPrimary func(NodeID) bool, seed int64) (*View, error) {
	if len(members) == 0 {
		return nil, fmt.Errorf("empty view")
	}

	unique := make(map[NodeID]struct{}, len(members))
	view := &View{
		self:    self,
		members: make([]NodeID, 0, len(members)),
		rng:     rand.New(rand.NewSource(seed)),
	}
	for _, id := range members {
		if id == self {
			return nil, fmt.Errorf("view contains self: %d", self)
		}
		if _, ok := unique[id]; ok {
			return nil, fmt.Errorf("duplicate view member: %d", id)
		}
		unique[id] = struct{}{}

		view.members = append(view.members, id)
		if isPrimary != nil && isPrimary(id) {
			view.primaries = append(view.primaries, id)
		} else {
			view.secondaries = append(view.secondaries, id)
		}
	}
	return view, nil
}

// Peers returns all view members.
func (v *View) Peers() []NodeID {
	return v.members
}

// NumPeers returns the view size.
func (v *View) NumPeers() int {
	return len(v.members)
}

// SelectFanout selects min(k, view size) members uniformly at random
// without replacement.
func (v *View) SelectFanout(k int) []NodeID {
	return v.sample(v.members, k)
}

// SelectPrimaries selects up to k primary members uniformly at random
// without replacement.
func (v *View) SelectPrimaries(k int) []NodeID {
	return v.sample(v.primaries, k)
}

// SelectSecondaries selects up to k secondary members uniformly at random
// without replacement.
func (v *View) SelectSecondaries(k int) []NodeID {
	return v.sample(v.secondaries, k)
}

// sample draws min(k, len(pool)) elements without replacement using a
// partial Fisher-Yates shuffle over a scratch copy.
func (v *View) sample(pool []NodeID, k int) []NodeID {
	if k <= 0 || len(pool) == 0 {
		return nil
	}
	if k >= len(pool) {
		chosen := make([]NodeID, len(pool))
		copy(chosen, pool)
		return chosen
	}

	scratch := make([]NodeID, len(pool))
	copy(scratch, pool)
	for i := 0; i < k; i++ {
		j := i + v.rng.Intn(len(scratch)-i)
		scratch[i], scratch[j] = scratch[j], scratch[i]
	}
	return scratch[:k]
}
