package gossip

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker records update propagation across a run for measurement: the
// round and time at which each node first merged each update, and which
// updates exceeded the loss threshold.
//
// Loss classification is purely informational. It never triggers
// retransmission; structural repair comes from later rounds.
//
// Coverage counts delta observations only. Anti-entropy snapshots carry no
// update IDs, so a node repaired by a snapshot stays unobserved here and
// the update may remain classified as lost even after every replica
// converged. Compare state digests to measure convergence itself.
//
// A single tracker is shared by every node in a run, so it is safe for
// concurrent use.
type Tracker struct {
	mu sync.Mutex

	nodes     int
	lostAfter time.Duration

	updates map[uuid.UUID]*updateTrack
}

type updateTrack struct {
	class  PriorityClass
	origin time.Time

	// observedBy is the set of nodes that merged the update, with the
	// node's local round at observation.
	observedBy map[NodeID]uint64

	// maxRound is the highest local round at which any node observed the
	// update.
	maxRound uint64

	// fullAt is the time the update had been observed by every node, or
	// zero while coverage is partial.
	fullAt time.Time

	totalLatency time.Duration
}

// UpdateStats is the per-update propagation summary exposed to the harness.
type UpdateStats struct {
	ID     uuid.UUID
	Class  PriorityClass
	Origin time.Time

	// Coverage is the number of nodes that merged the update.
	Coverage int

	// MaxRound is the highest local round at which the update was
	// observed.
	MaxRound uint64

	// TimeToFull is the duration from origination until every node had
	// observed the update. Zero while coverage is partial.
	TimeToFull time.Duration

	// MeanLatency is the mean origination-to-merge latency over observing
	// nodes.
	MeanLatency time.Duration

	// Lost indicates the update exceeded the loss threshold before its
	// delta reached every node. Overcounts when nodes were instead
	// repaired by an anti-entropy snapshot, which carries no update IDs.
	Lost bool
}

func NewTracker(nodes int, lostAfter time.Duration) *Tracker {
	return &Tracker{
		nodes:     nodes,
		lostAfter: lostAfter,
		updates:   make(map[uuid.UUID]*updateTrack),
	}
}

// Originated records a new update entering the network at the given node.
func (t *Tracker) Originated(id uuid.UUID, node NodeID, class PriorityClass, origin time.Time, round uint64) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	track, ok := t.updates[id]
	if !ok {
		track = &updateTrack{
			class:      class,
			origin:     origin,
			observedBy: make(map[NodeID]uint64),
		}
		t.updates[id] = track
	}
	track.observe(node, round, origin, t.nodes)
}

// Observed records a node merging the update into its local state. Returns
// the update's origination-to-merge latency, or zero for duplicate or
// unknown observations.
func (t *Tracker) Observed(id uuid.UUID, node NodeID, round uint64, now time.Time) time.Duration {
	if t == nil {
		return 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	track, ok := t.updates[id]
	if !ok {
		// Unknown update: the origin was never registered (e.g. a node
		// outside this run). Nothing to measure.
		return 0
	}
	if _, ok := track.observedBy[node]; ok {
		return 0
	}
	track.observe(node, round, now, t.nodes)
	return now.Sub(track.origin)
}

func (u *updateTrack) observe(node NodeID, round uint64, now time.Time, nodes int) {
	u.observedBy[node] = round
	if round > u.maxRound {
		u.maxRound = round
	}
	u.totalLatency += now.Sub(u.origin)
	if len(u.observedBy) == nodes && u.fullAt.IsZero() {
		u.fullAt = now
	}
}

// Stats returns the propagation summary of every tracked update, with loss
// classified as of the given time.
func (t *Tracker) Stats(now time.Time) []UpdateStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := make([]UpdateStats, 0, len(t.updates))
	for id, track := range t.updates {
		s := UpdateStats{
			ID:       id,
			Class:    track.class,
			Origin:   track.origin,
			Coverage: len(track.observedBy),
			MaxRound: track.maxRound,
		}
		if !track.fullAt.IsZero() {
			s.TimeToFull = track.fullAt.Sub(track.origin)
		}
		if s.Coverage > 0 {
			s.MeanLatency = track.totalLatency / time.Duration(s.Coverage)
		}
		if s.Coverage < t.nodes && now.Sub(track.origin) > t.lostAfter {
			s.Lost = true
		}
		stats = append(stats, s)
	}
	return stats
}

// Lost returns the number of updates classified as lost as of the given
// time.
func (t *Tracker) Lost(now time.Time) int {
	lost := 0
	for _, s := range t.Stats(now) {
		if s.Lost {
			lost++
		}
	}
	return lost
}
