package sim

import (
	"context"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/gossip/lattice"
	"github.com/pheromesh/pheromesh/gossip/swarm"
	"github.com/pheromesh/pheromesh/pkg/log"
)

// itemSpace bounds the item values the set workload draws from, so removes
// have a chance of hitting previously added items.
const itemSpace = 1024

type Config struct {
	Gossip *gossip.Config `json:"gossip" yaml:"gossip"`

	// Transport selects the in-process transport, either 'channel' or
	// 'multiplex'.
	Transport string `json:"transport" yaml:"transport"`

	// State selects the replicated state type, either 'set', 'counter' or
	// 'register'.
	State string `json:"state" yaml:"state"`

	// Updates is the total number of updates injected over the run.
	Updates int `json:"updates" yaml:"updates"`

	// UpdateInterval is the delay between injected updates.
	UpdateInterval time.Duration `json:"update_interval" yaml:"update_interval"`

	// PriorityEvery tags every Nth update high-priority. Zero tags none.
	PriorityEvery int `json:"priority_every" yaml:"priority_every"`

	Log log.Config `json:"log" yaml:"log"`
}

func DefaultConfig() *Config {
	return &Config{
		Gossip:         gossip.DefaultConfig(),
		Transport:      string(swarm.TransportMultiplex),
		State:          "set",
		Updates:        100,
		UpdateInterval: time.Millisecond * 50,
		PriorityEvery:  0,
		Log: log.Config{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	if err := c.Gossip.Validate(); err != nil {
		return fmt.Errorf("gossip: %w", err)
	}
	switch swarm.TransportKind(c.Transport) {
	case swarm.TransportChannel, swarm.TransportMultiplex:
	default:
		return fmt.Errorf("unknown transport: %s", c.Transport)
	}
	switch c.State {
	case "set", "counter", "register":
	default:
		return fmt.Errorf("unknown state type: %s", c.State)
	}
	if c.Updates < 0 {
		return fmt.Errorf("updates must not be negative: %d", c.Updates)
	}
	if c.UpdateInterval <= 0 {
		return fmt.Errorf("missing update interval")
	}
	if c.PriorityEvery < 0 {
		return fmt.Errorf("priority every must not be negative: %d", c.PriorityEvery)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	c.Gossip.RegisterFlags(fs)

	fs.StringVar(
		&c.Transport,
		"sim.transport",
		c.Transport,
		`
In-process transport driving the simulation, either 'channel' or
'multiplex'.

The channel transport runs a goroutine per node. The multiplex transport
services all nodes with a fixed worker pool, which scales to much larger
populations.`,
	)
	fs.StringVar(
		&c.State,
		"sim.state",
		c.State,
		`
Replicated state type, either 'set', 'counter' or 'register'.`,
	)
	fs.IntVar(
		&c.Updates,
		"sim.updates",
		c.Updates,
		`
Total number of updates injected over the run, each at a random node.`,
	)
	fs.DurationVar(
		&c.UpdateInterval,
		"sim.update-interval",
		c.UpdateInterval,
		`
Delay between injected updates.`,
	)
	fs.IntVar(
		&c.PriorityEvery,
		"sim.priority-every",
		c.PriorityEvery,
		`
Tag every Nth injected update high-priority. Zero tags none.`,
	)

	c.Log.RegisterFlags(fs)
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sim",
		Short: "run an in-process gossip simulation",
		Long: `Run an in-process gossip simulation.

Builds a swarm of simulated nodes connected by an in-process transport,
injects updates at random nodes, then reports how the updates propagated:
coverage, rounds and time to convergence, and updates classified as lost.

Examples:
  # Simulate 10,000 nodes on a worker pool.
  pheromesh sim --gossip.nodes 10000 --gossip.peers-per-node 20

  # Compare the priority policy, tagging every 10th update high-priority.
  pheromesh sim --gossip.policy priority --gossip.primaries 100 --sim.priority-every 10

  # Use a goroutine per node instead of the worker pool.
  pheromesh sim --sim.transport channel
`,
	}

	conf := DefaultConfig()
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run simulation", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *Config, logger log.Logger) error {
	logger.Info("starting simulation", zap.Any("conf", conf))

	s, err := swarm.New(
		conf.Gossip,
		stateFactory(conf.State),
		swarm.TransportKind(conf.Transport),
		logger,
	)
	if err != nil {
		return fmt.Errorf("swarm: %w", err)
	}

	ctx, cancel := signal.NotifyContext(
		context.Background(), syscall.SIGINT, syscall.SIGTERM,
	)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Stop the injector once the run duration elapses.
		defer cancel()
		return s.Run(ctx)
	})
	g.Go(func() error {
		injectUpdates(ctx, s, conf, logger)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	report(s, logger)
	return nil
}

// injectUpdates originates conf.Updates updates at random nodes, one per
// update interval.
func injectUpdates(ctx context.Context, s *swarm.Swarm, conf *Config, logger log.Logger) {
	rng := rand.New(rand.NewSource(conf.Gossip.Seed))

	ticker := time.NewTicker(conf.UpdateInterval)
	defer ticker.Stop()

	for i := 0; i < conf.Updates; i++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		node := gossip.NodeID(rng.Intn(conf.Gossip.Nodes))
		class := gossip.ClassRegular
		if conf.PriorityEvery > 0 && i%conf.PriorityEvery == 0 {
			class = gossip.ClassPriority
		}

		delta := nextDelta(conf.State, s, node, rng)
		if _, err := s.Update(node, delta, class); err != nil {
			logger.Warn(
				"inject update",
				zap.Uint32("node", uint32(node)),
				zap.Error(err),
			)
		}
	}
}

func stateFactory(state string) swarm.StateFactory {
	switch state {
	case "counter":
		return func(_ gossip.NodeID) lattice.State {
			return lattice.NewCounter()
		}
	case "register":
		return func(_ gossip.NodeID) lattice.State {
			return lattice.NewRegister()
		}
	default:
		return func(_ gossip.NodeID) lattice.State {
			return lattice.NewSet()
		}
	}
}

// nextDelta builds a random local update against the node's own state.
func nextDelta(state string, s *swarm.Swarm, node gossip.NodeID, rng *rand.Rand) []byte {
	switch state {
	case "counter":
		counter := s.State(node).(*lattice.Counter)
		return counter.Inc(uint32(node), uint64(rng.Intn(10)+1))
	case "register":
		register := s.State(node).(*lattice.Register)
		return register.Set(fmt.Sprintf("value-%d", rng.Uint64()), uint32(node))
	default:
		set := s.State(node).(*lattice.Set)
		item := rng.Uint64() % itemSpace
		// Mostly adds, with the occasional remove, so the set keeps
		// growing while exercising both operations.
		if rng.Intn(4) == 0 {
			return set.Remove(item)
		}
		return set.Add(item)
	}
}

// report summarises update propagation per priority class.
func report(s *swarm.Swarm, logger log.Logger) {
	now := time.Now()
	stats := s.Tracker().Stats(now)

	type classSummary struct {
		updates     int
		full        int
		lost        int
		maxRound    uint64
		timeToFull  time.Duration
		meanLatency time.Duration
	}
	summaries := make(map[gossip.PriorityClass]*classSummary)
	for _, stat := range stats {
		summary, ok := summaries[stat.Class]
		if !ok {
			summary = &classSummary{}
			summaries[stat.Class] = summary
		}
		summary.updates++
		if stat.TimeToFull > 0 {
			summary.full++
			summary.timeToFull += stat.TimeToFull
		}
		if stat.Lost {
			summary.lost++
		}
		if stat.MaxRound > summary.maxRound {
			summary.maxRound = stat.MaxRound
		}
		summary.meanLatency += stat.MeanLatency
	}

	for class, summary := range summaries {
		meanTimeToFull := time.Duration(0)
		if summary.full > 0 {
			meanTimeToFull = summary.timeToFull / time.Duration(summary.full)
		}
		meanLatency := time.Duration(0)
		if summary.updates > 0 {
			meanLatency = summary.meanLatency / time.Duration(summary.updates)
		}
		logger.Info(
			"propagation summary",
			zap.String("class", class.String()),
			zap.Int("updates", summary.updates),
			zap.Int("reached-all", summary.full),
			zap.Int("lost", summary.lost),
			zap.Uint64("max-round", summary.maxRound),
			zap.Duration("mean-time-to-full", meanTimeToFull),
			zap.Duration("mean-latency", meanLatency),
		)
	}

	logger.Info(
		"simulation complete",
		zap.Bool("converged", s.Converged()),
		zap.Int("updates", len(stats)),
	)
}
