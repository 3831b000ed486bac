package swarm

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/gossip/lattice"
	"github.com/pheromesh/pheromesh/pkg/log"
)

func setFactory(_ gossip.NodeID) lattice.State {
	return lattice.NewSet()
}

func testConfig(nodes int) *gossip.Config {
	conf := gossip.DefaultConfig()
	conf.Nodes = nodes
	conf.PeersPerNode = 8
	conf.Fanout = 4
	conf.Interval = time.Millisecond
	conf.Time = 0
	conf.LostTime = time.Second * 30
	conf.AntiEntropyRounds = 10
	return conf
}

// start runs the swarm in the background, returning a stop function that
// cancels the run and waits for it to finish.
func start(t *testing.T, s *Swarm) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		require.NoError(t, s.Run(ctx))
	}()
	return func() {
		cancel()
		<-done
	}
}

// converged reports whether every node's set holds the given number of
// items and all digests agree.
func converged(s *Swarm, items int) bool {
	first := s.State(0).(*lattice.Set)
	if first.Len() != items {
		return false
	}
	return s.Converged()
}

func TestSwarm_New(t *testing.T) {
	t.Run("invalid config", func(t *testing.T) {
		conf := testConfig(1)
		_, err := New(conf, setFactory, TransportMultiplex, log.NewNopLogger())
		assert.Error(t, err)
	})

	t.Run("unknown transport", func(t *testing.T) {
		conf := testConfig(16)
		_, err := New(conf, setFactory, TransportKind("tcp"), log.NewNopLogger())
		assert.Error(t, err)
	})

	t.Run("missing state factory", func(t *testing.T) {
		conf := testConfig(16)
		_, err := New(conf, nil, TransportMultiplex, log.NewNopLogger())
		assert.Error(t, err)
	})
}

func TestSwarm_UniformConvergence(t *testing.T) {
	const (
		nodes   = 1000
		updates = 10
	)

	conf := testConfig(nodes)
	conf.PeersPerNode = 20
	conf.Fanout = 10

	s, err := New(conf, setFactory, TransportMultiplex, log.NewNopLogger())
	require.NoError(t, err)

	stop := start(t, s)
	defer stop()

	rng := rand.New(rand.NewSource(conf.Seed))
	for i := 0; i < updates; i++ {
		node := gossip.NodeID(rng.Intn(nodes))
		set := s.State(node).(*lattice.Set)
		_, err := s.Update(node, set.Add(uint64(i)), gossip.ClassRegular)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return converged(s, updates)
	}, time.Second*30, time.Millisecond*20)

	// Most deltas reach most nodes by push alone; none should be stale
	// enough to classify as lost.
	assert.Equal(t, 0, s.Tracker().Lost(time.Now()))
}

// TestSwarm_TransportEquivalence injects the same updates into a channel
// swarm and a multiplex swarm built from the same seed and checks they
// settle on the same state.
func TestSwarm_TransportEquivalence(t *testing.T) {
	const (
		nodes   = 100
		updates = 20
	)

	run := func(kind TransportKind) lattice.Digest {
		conf := testConfig(nodes)

		s, err := New(conf, setFactory, kind, log.NewNopLogger())
		require.NoError(t, err)

		stop := start(t, s)
		defer stop()

		for i := 0; i < updates; i++ {
			node := gossip.NodeID(i % nodes)
			set := s.State(node).(*lattice.Set)
			_, err := s.Update(node, set.Add(uint64(i)), gossip.ClassRegular)
			require.NoError(t, err)
		}

		require.Eventually(t, func() bool {
			return converged(s, updates)
		}, time.Second*30, time.Millisecond*20)

		return s.State(0).Digest()
	}

	assert.Equal(t, run(TransportChannel), run(TransportMultiplex))
}

// TestSwarm_PriorityConvergesFaster tags half the updates high-priority
// and checks they sweep the network in fewer rounds than regular updates.
func TestSwarm_PriorityConvergesFaster(t *testing.T) {
	const (
		nodes   = 200
		updates = 60
	)

	conf := testConfig(nodes)
	conf.Policy = gossip.PolicyPriority
	conf.Primaries = 20
	conf.Fanout = 2
	conf.FanoutBoost = 4

	s, err := New(conf, setFactory, TransportMultiplex, log.NewNopLogger())
	require.NoError(t, err)

	stop := start(t, s)
	defer stop()

	rng := rand.New(rand.NewSource(conf.Seed))
	for i := 0; i < updates; i++ {
		node := gossip.NodeID(rng.Intn(nodes))
		class := gossip.ClassRegular
		if i%2 == 0 {
			class = gossip.ClassPriority
		}
		set := s.State(node).(*lattice.Set)
		_, err := s.Update(node, set.Add(uint64(i)), class)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return converged(s, updates)
	}, time.Second*60, time.Millisecond*20)

	// Compare the mean highest round at which each class's updates were
	// still spreading. The boosted fanout should sweep the network in
	// fewer rounds.
	var priorityRounds, regularRounds uint64
	var priorityCount, regularCount uint64
	for _, stat := range s.Tracker().Stats(time.Now()) {
		if stat.Class == gossip.ClassPriority {
			priorityRounds += stat.MaxRound
			priorityCount++
		} else {
			regularRounds += stat.MaxRound
			regularCount++
		}
	}
	require.Positive(t, priorityCount)
	require.Positive(t, regularCount)

	assert.Less(
		t,
		float64(priorityRounds)/float64(priorityCount),
		float64(regularRounds)/float64(regularCount),
	)
}

func TestSwarm_Scale(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping scale test")
	}

	const nodes = 25000

	conf := testConfig(nodes)
	conf.PeersPerNode = 20
	conf.Fanout = 10
	conf.Workers = 8

	s, err := New(conf, setFactory, TransportMultiplex, log.NewNopLogger())
	require.NoError(t, err)

	stop := start(t, s)
	defer stop()

	set := s.State(0).(*lattice.Set)
	_, err = s.Update(0, set.Add(42), gossip.ClassRegular)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return converged(s, 1)
	}, time.Second*120, time.Millisecond*100)
}
