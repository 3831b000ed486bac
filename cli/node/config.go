package node

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/pkg/log"
)

type GossipConfig struct {
	// Fanout is the number of peers contacted per gossip round.
	Fanout int `json:"fanout" yaml:"fanout"`

	// FanoutBoost scales the fanout for updates tagged high-priority when
	// running the priority policy.
	FanoutBoost int `json:"fanout_boost" yaml:"fanout_boost"`

	// Policy selects the round policy, either 'uniform' or 'priority'.
	Policy string `json:"policy" yaml:"policy"`

	// Interval is the duration of one gossip round.
	Interval time.Duration `json:"interval" yaml:"interval"`

	// LostTime is the staleness threshold for loss classification.
	LostTime time.Duration `json:"lost_time" yaml:"lost_time"`

	// MaxPacketSize is the maximum size of any encoded message, bounding
	// the UDP datagram size.
	MaxPacketSize int `json:"max_packet_size" yaml:"max_packet_size"`

	// AntiEntropyRounds sends a digest probe to one random peer every
	// given number of rounds. Zero disables digest exchange.
	AntiEntropyRounds int `json:"anti_entropy_rounds" yaml:"anti_entropy_rounds"`
}

type AdminConfig struct {
	// BindAddr is the address to listen for admin connections, serving
	// health, metrics and status endpoints.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`
}

type Config struct {
	// ID is the node's unique identifier within the mesh.
	ID uint32 `json:"id" yaml:"id"`

	// BindAddr is the UDP address to listen for gossip on.
	BindAddr string `json:"bind_addr" yaml:"bind_addr"`

	// AdvertiseAddr is the gossip address advertised to peers. Inferred
	// from the bind address when empty.
	AdvertiseAddr string `json:"advertise_addr" yaml:"advertise_addr"`

	// Peers maps each peer node ID to its gossip address.
	Peers map[uint32]string `json:"peers" yaml:"peers"`

	// Primaries lists the node IDs designated primary under the priority
	// policy.
	Primaries []uint32 `json:"primaries" yaml:"primaries"`

	Gossip GossipConfig `json:"gossip" yaml:"gossip"`

	Admin AdminConfig `json:"admin" yaml:"admin"`

	Log log.Config `json:"log" yaml:"log"`

	// GracefulShutdownTimeout is the duration to wait for pending admin
	// requests when shutting down.
	GracefulShutdownTimeout time.Duration `json:"graceful_shutdown_timeout" yaml:"graceful_shutdown_timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		BindAddr: ":7661",
		Gossip: GossipConfig{
			Fanout:            4,
			FanoutBoost:       2,
			Policy:            gossip.PolicyUniform,
			Interval:          time.Millisecond * 100,
			LostTime:          time.Second * 30,
			MaxPacketSize:     1400,
			AntiEntropyRounds: 20,
		},
		Admin: AdminConfig{
			BindAddr: ":7662",
		},
		Log: log.Config{
			Level: "info",
		},
		GracefulShutdownTimeout: time.Second * 30,
	}
}

func (c *Config) Validate() error {
	if c.BindAddr == "" {
		return fmt.Errorf("missing bind addr")
	}
	if len(c.Peers) == 0 {
		return fmt.Errorf("missing peers")
	}
	for peer, addr := range c.Peers {
		if peer == c.ID {
			return fmt.Errorf("peers contains own id: %d", peer)
		}
		if addr == "" {
			return fmt.Errorf("peer %d: missing addr", peer)
		}
	}
	if c.Gossip.Policy == gossip.PolicyPriority && len(c.Primaries) == 0 {
		return fmt.Errorf("priority policy requires primaries")
	}
	if c.Admin.BindAddr == "" {
		return fmt.Errorf("admin: missing bind addr")
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	if c.GracefulShutdownTimeout <= 0 {
		return fmt.Errorf("missing graceful shutdown timeout")
	}
	// The remaining gossip parameters are checked when the full engine
	// config is assembled.
	return nil
}

// EngineConfig assembles the engine configuration from the node's view of
// the mesh.
func (c *Config) EngineConfig() *gossip.Config {
	conf := gossip.DefaultConfig()
	conf.Nodes = len(c.Peers) + 1
	conf.PeersPerNode = len(c.Peers)
	conf.Fanout = c.Gossip.Fanout
	conf.FanoutBoost = c.Gossip.FanoutBoost
	conf.Primaries = len(c.Primaries)
	conf.Policy = c.Gossip.Policy
	conf.Interval = c.Gossip.Interval
	conf.Time = 0
	conf.LostTime = c.Gossip.LostTime
	conf.MaxPacketSize = c.Gossip.MaxPacketSize
	conf.AntiEntropyRounds = c.Gossip.AntiEntropyRounds
	conf.Seed = time.Now().UnixNano()
	return conf
}

func (c *Config) RegisterFlags(fs *pflag.FlagSet) {
	fs.Uint32Var(
		&c.ID,
		"node.id",
		c.ID,
		`
The node's unique identifier within the mesh.`,
	)
	fs.StringVar(
		&c.BindAddr,
		"node.bind-addr",
		c.BindAddr,
		`
The UDP address to listen for gossip on.`,
	)
	fs.StringVar(
		&c.AdvertiseAddr,
		"node.advertise-addr",
		c.AdvertiseAddr,
		`
Gossip address to advertise to peers. Inferred from the bind address when
empty, resolving '0.0.0.0' to the first private interface address.`,
	)
	fs.IntVar(
		&c.Gossip.Fanout,
		"gossip.fanout",
		c.Gossip.Fanout,
		`
Number of peers contacted per gossip round.`,
	)
	fs.IntVar(
		&c.Gossip.FanoutBoost,
		"gossip.fanout-boost",
		c.Gossip.FanoutBoost,
		`
Fanout multiplier applied to high-priority updates under the priority
policy.`,
	)
	fs.StringVar(
		&c.Gossip.Policy,
		"gossip.policy",
		c.Gossip.Policy,
		`
Round policy, either 'uniform' or 'priority'.`,
	)
	fs.DurationVar(
		&c.Gossip.Interval,
		"gossip.interval",
		c.Gossip.Interval,
		`
Duration of one gossip round.`,
	)
	fs.DurationVar(
		&c.Gossip.LostTime,
		"gossip.lost-time",
		c.Gossip.LostTime,
		`
Staleness threshold for loss classification.`,
	)
	fs.IntVar(
		&c.Gossip.MaxPacketSize,
		"gossip.max-packet-size",
		c.Gossip.MaxPacketSize,
		`
The maximum size of any encoded gossip message.

Depending on your networks MTU you may be able to increase to include more
data in each packet.`,
	)
	fs.IntVar(
		&c.Gossip.AntiEntropyRounds,
		"gossip.anti-entropy-rounds",
		c.Gossip.AntiEntropyRounds,
		`
Send a digest probe to one random peer every given number of rounds to
repair divergence left by message loss. Zero disables digest exchange.`,
	)
	fs.StringVar(
		&c.Admin.BindAddr,
		"admin.bind-addr",
		c.Admin.BindAddr,
		`
The address to listen for admin connections, serving health, metrics and
status endpoints.`,
	)
	fs.DurationVar(
		&c.GracefulShutdownTimeout,
		"server.graceful-shutdown-timeout",
		c.GracefulShutdownTimeout,
		`
Duration to wait for pending admin requests when shutting down.`,
	)

	c.Log.RegisterFlags(fs)
}
