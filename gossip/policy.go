package gossip

// Policy decides which peers receive an update when a node gossips it.
// Policies are pure peer selection over the node's view; the engine owns
// deduplication and state merging.
type Policy interface {
	// TargetsLocal returns the peers a locally originated update of the
	// given class is sent to.
	TargetsLocal(class PriorityClass) []NodeID

	// TargetsForward returns the peers a received update is forwarded to,
	// given how many times the node has now seen it (1 for a first
	// sighting). Returns nil when the update should not be forwarded.
	TargetsForward(class PriorityClass, seen int) []NodeID
}

// UniformPolicy disseminates all updates with identical policy: a node
// forwards each first-seen update to a random fanout of its whole view.
// All data converges at the same expected rate.
type UniformPolicy struct {
	view   *View
	fanout int
}

func NewUniformPolicy(view *View, fanout int) *UniformPolicy {
	return &UniformPolicy{
		view:   view,
		fanout: fanout,
	}
}

func (p *UniformPolicy) TargetsLocal(_ PriorityClass) []NodeID {
	return p.view.SelectFanout(p.fanout)
}

func (p *UniformPolicy) TargetsForward(_ PriorityClass, seen int) []NodeID {
	// Repeat sightings are not forwarded, otherwise updates would echo
	// around the network forever.
	if seen != 1 {
		return nil
	}
	return p.view.SelectFanout(p.fanout)
}

var _ Policy = &UniformPolicy{}

// PriorityPolicy accelerates propagation between the designated primary
// nodes, trading bandwidth for faster convergence on selected data.
//
// Local updates are pushed to primary peers first. A primary node forwards
// an update to other primaries on its first sighting and to secondaries on
// its second, then stops. A secondary forwards first sightings to other
// secondaries only. The effect is that updates sweep the primary subset in
// few rounds before spilling into the rest of the network, which continues
// to converge at the uniform rate.
//
// Updates tagged ClassPriority are additionally sent with the fanout scaled
// by the configured boost, clamped to the view.
type PriorityPolicy struct {
	view    *View
	fanout  int
	boost   int
	primary bool
}

// NewPriorityPolicy creates the priority policy for a node. primary
// indicates whether the node itself is in the primary subset.
func NewPriorityPolicy(view *View, fanout, boost int, primary bool) *PriorityPolicy {
	if boost < 1 {
		boost = 1
	}
	return &PriorityPolicy{
		view:    view,
		fanout:  fanout,
		boost:   boost,
		primary: primary,
	}
}

func (p *PriorityPolicy) TargetsLocal(class PriorityClass) []NodeID {
	k := p.scaledFanout(class)
	// New updates always enter through the primary subset so they reach
	// consensus among primaries first. If the view has no primary members
	// fall back to the whole view.
	targets := p.view.SelectPrimaries(k)
	if len(targets) == 0 {
		targets = p.view.SelectFanout(k)
	}
	return targets
}

func (p *PriorityPolicy) TargetsForward(class PriorityClass, seen int) []NodeID {
	k := p.scaledFanout(class)
	if p.primary {
		// A primary passes a first sighting on to other primaries, and a
		// second sighting on to secondaries. Anything seen more than twice
		// is a repeat and is dropped.
		switch seen {
		case 1:
			return p.view.SelectPrimaries(k)
		case 2:
			return p.view.SelectSecondaries(k)
		default:
			return nil
		}
	}
	if seen == 1 {
		return p.view.SelectSecondaries(k)
	}
	return nil
}

func (p *PriorityPolicy) scaledFanout(class PriorityClass) int {
	if class == ClassPriority {
		return p.fanout * p.boost
	}
	return p.fanout
}

var _ Policy = &PriorityPolicy{}
