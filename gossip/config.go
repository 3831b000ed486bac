package gossip

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// PolicyUniform and PolicyPriority name the two round policies.
const (
	PolicyUniform  = "uniform"
	PolicyPriority = "priority"
)

// Config configures a gossip run. All fields are immutable once the run
// starts.
type Config struct {
	// Nodes is the number of gossip participants.
	Nodes int `json:"nodes" yaml:"nodes"`

	// PeersPerNode is the size of each node's static peer view.
	PeersPerNode int `json:"peers_per_node" yaml:"peers_per_node"`

	// Fanout is the number of peers a node contacts per round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// FanoutBoost scales the fanout for updates tagged high-priority when
	// running the priority policy.
	FanoutBoost int `json:"fanout_boost" yaml:"fanout_boost"`

	// Primaries is the number of nodes designated primary. The first
	// Primaries node IDs receive the accelerated policy.
	Primaries int `json:"primaries" yaml:"primaries"`

	// Policy selects the round policy, either 'uniform' or 'priority'.
	Policy string `json:"policy" yaml:"policy"`

	// Interval is the duration of one gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// Time is the run duration. Zero runs until stopped.
	Time time.Duration `json:"time" yaml:"time"`

	// LostTime is the staleness threshold for loss classification: an
	// update not merged into a node's state within LostTime of origination
	// is classified as lost. Informational only, never triggers
	// retransmission.
	LostTime time.Duration `json:"lost_time" yaml:"lost_time"`

	// MaxPacketSize is the maximum size of any encoded message. Bounds the
	// network transport's datagram size.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// Workers is the size of the worker pool servicing simulated nodes
	// when running the multiplex transport.
	Workers int `json:"workers" yaml:"workers"`

	// AntiEntropyRounds sends a digest probe to one random peer every
	// given number of rounds, repairing any divergence left by message
	// loss. Zero disables digest exchange.
	AntiEntropyRounds int `json:"anti_entropy_rounds" yaml:"anti_entropy_rounds"`

	// Seed seeds peer view construction and selection, making simulation
	// topologies reproducible.
	Seed int64 `json:"seed" yaml:"seed"`
}

func DefaultConfig() *Config {
	return &Config{
		Nodes:             16,
		PeersPerNode:      8,
		Fanout:            4,
		FanoutBoost:       2,
		Primaries:         0,
		Policy:            PolicyUniform,
		Interval:          time.Millisecond * 10,
		Time:              time.Second * 10,
		LostTime:          time.Second * 5,
		MaxPacketSize:     1400,
		Workers:           8,
		AntiEntropyRounds: 20,
		Seed:              1,
	}
}

// Validate checks the configuration for inconsistencies. Configuration
// errors are fatal and detected before any round runs.
func (c *Config) Validate() error {
	if c.Nodes < 2 {
		return fmt.Errorf("nodes must be at least 2: %d", c.Nodes)
	}
	if c.PeersPerNode < 1 {
		return fmt.Errorf("peers per node must be positive: %d", c.PeersPerNode)
	}
	if c.PeersPerNode > c.Nodes-1 {
		return fmt.Errorf(
			"peers per node exceeds available peers: %d > %d",
			c.PeersPerNode, c.Nodes-1,
		)
	}
	if c.Fanout < 1 {
		return fmt.Errorf("fanout must be positive: %d", c.Fanout)
	}
	if c.FanoutBoost < 1 {
		return fmt.Errorf("fanout boost must be positive: %d", c.FanoutBoost)
	}
	if c.Primaries < 0 {
		return fmt.Errorf("primaries must not be negative: %d", c.Primaries)
	}
	if c.Primaries > c.Nodes {
		return fmt.Errorf(
			"primaries exceeds node count: %d > %d", c.Primaries, c.Nodes,
		)
	}
	switch c.Policy {
	case PolicyUniform:
	case PolicyPriority:
		if c.Primaries == 0 {
			return fmt.Errorf("priority policy requires primaries")
		}
	default:
		return fmt.Errorf("unknown policy: %s", c.Policy)
	}
	if c.Interval <= 0 {
		return fmt.Errorf("missing interval")
	}
	if c.Time < 0 {
		return fmt.Errorf("time must not be negative")
	}
	if c.LostTime <= 0 {
		return fmt.Errorf("missing lost time")
	}
	if c.MaxPacketSize < 512 {
		return fmt.Errorf("max packet size too small: %d", c.MaxPacketSize)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be positive: %d", c.Workers)
	}
	if c.AntiEntropyRounds < 0 {
		return fmt.Errorf("anti entropy rounds must not be negative")
	}
	return nil
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.IntVar(
		&c.Nodes,
		"gossip.nodes",
		c.Nodes,
		`
Number of nodes in the gossip network.`,
	)
	fs.IntVar(
		&c.PeersPerNode,
		"gossip.peers-per-node",
		c.PeersPerNode,
		`
Number of peers each node knows about.

Views are static random subsets built at construction. Setting this to
'nodes - 1' gives every node a full view but costs memory in larger
networks.`,
	)
	fs.IntVar(
		&c.Fanout,
		"gossip.fanout",
		c.Fanout,
		`
Number of peers a node contacts per gossip round.`,
	)
	fs.IntVar(
		&c.FanoutBoost,
		"gossip.fanout-boost",
		c.FanoutBoost,
		`
Fanout multiplier applied to high-priority updates under the priority
policy.`,
	)
	fs.IntVar(
		&c.Primaries,
		"gossip.primaries",
		c.Primaries,
		`
Number of nodes designated primary.

Primary nodes exchange updates through the accelerated policy, reaching
consensus on new data in fewer rounds than the rest of the network.`,
	)
	fs.StringVar(
		&c.Policy,
		"gossip.policy",
		c.Policy,
		`
Round policy, either 'uniform' or 'priority'.

Uniform gossip disseminates all data with identical policy. Priority gossip
accelerates propagation between primary nodes at the cost of extra
messages.`,
	)
	fs.DurationVar(
		&c.Interval,
		"gossip.interval",
		c.Interval,
		`
Duration of one gossip round.`,
	)
	fs.DurationVar(
		&c.Time,
		"gossip.time",
		c.Time,
		`
Run duration. Zero runs until interrupted.`,
	)
	fs.DurationVar(
		&c.LostTime,
		"gossip.lost-time",
		c.LostTime,
		`
Staleness threshold for loss classification.

An update not merged into a node's state within this duration of its
origination is counted as lost. This is a measurement only; lost updates
are still repaired by later rounds.`,
	)
	fs.IntVar(
		&c.MaxPacketSize,
		"gossip.max-packet-size",
		c.MaxPacketSize,
		`
The maximum size of any encoded gossip message.

Depending on your networks MTU you may be able to increase to include more
data in each packet.`,
	)
	fs.IntVar(
		&c.Workers,
		"gossip.workers",
		c.Workers,
		`
Size of the worker pool servicing simulated nodes on the multiplex
transport.`,
	)
	fs.IntVar(
		&c.AntiEntropyRounds,
		"gossip.anti-entropy-rounds",
		c.AntiEntropyRounds,
		`
Send a digest probe to one random peer every given number of rounds to
repair divergence left by message loss. Zero disables digest exchange.`,
	)
	fs.Int64Var(
		&c.Seed,
		"gossip.seed",
		c.Seed,
		`
Seed for peer view construction and selection. Runs with the same seed and
configuration build identical topologies.`,
	)
}
