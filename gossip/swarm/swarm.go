// Package swarm assembles a full gossip cluster: it builds the per-node
// views, wires every node to a shared in-process transport, and drives the
// round loops, either with a goroutine per node or with a fixed worker
// pool multiplexing across all nodes.
package swarm

import (
	"context"
	"fmt"
	"io"
	"math/rand"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/gossip/lattice"
	"github.com/pheromesh/pheromesh/gossip/transport"
	"github.com/pheromesh/pheromesh/pkg/log"
)

// queueBuffer is the per-node inbound queue capacity. Sends to a full
// queue are dropped, so the buffer sets how bursty a round may be before
// the transport starts losing messages.
const queueBuffer = 1024

// TransportKind selects the in-process transport driving the swarm.
type TransportKind string

const (
	// TransportChannel gives each node its own goroutine and queue.
	TransportChannel TransportKind = "channel"

	// TransportMultiplex services all nodes with a fixed worker pool,
	// scaling to far larger populations than a goroutine per node.
	TransportMultiplex TransportKind = "multiplex"
)

// StateFactory builds a node's initial mergeable state.
type StateFactory func(id gossip.NodeID) lattice.State

// Swarm is a complete in-process gossip cluster.
type Swarm struct {
	conf *gossip.Config
	kind TransportKind

	engines []*gossip.Engine
	states  []lattice.State

	closer io.Closer

	tracker *gossip.Tracker
	metrics *gossip.Metrics

	logger log.Logger
}

// New builds the cluster: node IDs 0..Nodes-1, each with a reproducible
// random peer view derived from the configured seed, the first Primaries
// IDs designated primary.
func New(
	conf *gossip.Config,
	newState StateFactory,
	kind TransportKind,
	logger log.Logger,
) (*Swarm, error) {
	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if newState == nil {
		return nil, fmt.Errorf("missing state factory")
	}

	tracker := gossip.NewTracker(conf.Nodes, conf.LostTime)
	metrics := gossip.NewMetrics()

	var (
		network *transport.ChannelNetwork
		mux     *transport.Mux
		closer  io.Closer
	)
	switch kind {
	case TransportChannel:
		network = transport.NewChannelNetwork(queueBuffer)
		closer = network
	case TransportMultiplex:
		mux = transport.NewMux(conf.Nodes, queueBuffer)
		closer = mux
	default:
		return nil, fmt.Errorf("unknown transport kind: %s", kind)
	}

	isPrimary := func(id gossip.NodeID) bool {
		return int(id) < conf.Primaries
	}

	s := &Swarm{
		conf:    conf,
		kind:    kind,
		engines: make([]*gossip.Engine, conf.Nodes),
		states:  make([]lattice.State, conf.Nodes),
		closer:  closer,
		tracker: tracker,
		metrics: metrics,
		logger:  logger.WithSubsystem("swarm"),
	}
	for i := 0; i < conf.Nodes; i++ {
		id := gossip.NodeID(i)
		seed := conf.Seed + int64(i)

		members := samplePeers(id, conf.Nodes, conf.PeersPerNode, seed)
		view, err := gossip.NewView(id, members, isPrimary, seed)
		if err != nil {
			closer.Close()
			return nil, fmt.Errorf("node %d: view: %w", id, err)
		}

		var policy gossip.Policy
		if conf.Policy == gossip.PolicyPriority {
			policy = gossip.NewPriorityPolicy(
				view, conf.Fanout, conf.FanoutBoost, isPrimary(id),
			)
		} else {
			policy = gossip.NewUniformPolicy(view, conf.Fanout)
		}

		var tr gossip.Transport
		if kind == TransportChannel {
			tr, err = network.Transport(id)
		} else {
			tr, err = mux.Transport(id)
		}
		if err != nil {
			closer.Close()
			return nil, fmt.Errorf("node %d: transport: %w", id, err)
		}

		state := newState(id)
		engine, err := gossip.NewEngine(
			state, view, tr, policy, conf, tracker, metrics, logger,
		)
		if err != nil {
			closer.Close()
			return nil, fmt.Errorf("node %d: engine: %w", id, err)
		}

		s.engines[i] = engine
		s.states[i] = state
	}
	return s, nil
}

// Run drives every node's round loop until ctx is cancelled or the
// configured run duration elapses.
func (s *Swarm) Run(ctx context.Context) error {
	if s.conf.Time > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.conf.Time)
		defer cancel()
	}
	defer s.closer.Close()

	s.logger.Info(
		"starting swarm",
		zap.Int("nodes", s.conf.Nodes),
		zap.String("transport", string(s.kind)),
		zap.String("policy", s.conf.Policy),
	)

	if s.kind == TransportMultiplex {
		runners := make([]transport.Runner, len(s.engines))
		for i, engine := range s.engines {
			runners[i] = engine
		}
		pool, err := transport.NewPool(s.conf.Workers, s.conf.Interval, runners)
		if err != nil {
			return fmt.Errorf("pool: %w", err)
		}
		return pool.Run(ctx)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, engine := range s.engines {
		engine := engine
		g.Go(func() error {
			engine.Run(ctx)
			return nil
		})
	}
	return g.Wait()
}

// Update injects a locally originated update at the given node.
func (s *Swarm) Update(node gossip.NodeID, delta []byte, class gossip.PriorityClass) (uuid.UUID, error) {
	if int(node) >= len(s.engines) {
		return uuid.Nil, fmt.Errorf("node out of range: %d", node)
	}
	return s.engines[node].Update(delta, class)
}

// State returns the given node's mergeable state.
func (s *Swarm) State(node gossip.NodeID) lattice.State {
	return s.states[node]
}

// States returns every node's state, indexed by node ID.
func (s *Swarm) States() []lattice.State {
	return s.states
}

// Converged reports whether every node's state digest matches. Digests
// may collide so this is a statistical check, suited to measurement
// rather than correctness enforcement.
func (s *Swarm) Converged() bool {
	digest := s.states[0].Digest()
	for _, state := range s.states[1:] {
		if state.Digest() != digest {
			return false
		}
	}
	return true
}

// Tracker returns the run's shared propagation tracker.
func (s *Swarm) Tracker() *gossip.Tracker {
	return s.tracker
}

// Metrics returns the run's shared metrics.
func (s *Swarm) Metrics() *gossip.Metrics {
	return s.metrics
}

// Close stops the underlying transport. Run closes it on return, so Close
// is only needed when the swarm never ran.
func (s *Swarm) Close() error {
	return s.closer.Close()
}

// samplePeers draws peersPerNode distinct peers for the node, uniform over
// the other nodes. Deterministic for a given seed.
func samplePeers(self gossip.NodeID, nodes, peersPerNode int, seed int64) []gossip.NodeID {
	rng := rand.New(rand.NewSource(seed))

	// Dense views shuffle the full candidate list; sparse views (the common
	// case at scale) sample with rejection to avoid materialising it.
	if peersPerNode*2 >= nodes-1 {
		candidates := make([]gossip.NodeID, 0, nodes-1)
		for i := 0; i < nodes; i++ {
			if gossip.NodeID(i) != self {
				candidates = append(candidates, gossip.NodeID(i))
			}
		}
		rng.Shuffle(len(candidates), func(i, j int) {
			candidates[i], candidates[j] = candidates[j], candidates[i]
		})
		return candidates[:peersPerNode]
	}

	chosen := make(map[gossip.NodeID]struct{}, peersPerNode)
	members := make([]gossip.NodeID, 0, peersPerNode)
	for len(members) < peersPerNode {
		// Draw from [0, nodes-2] and shift past self so self is never
		// selected.
		id := gossip.NodeID(rng.Intn(nodes - 1))
		if id >= self {
			id++
		}
		if _, ok := chosen[id]; ok {
			continue
		}
		chosen[id] = struct{}{}
		members = append(members, id)
	}
	return members
}
