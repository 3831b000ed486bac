package node

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-sockaddr"
	rungroup "github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pheromesh/pheromesh/admin"
	"github.com/pheromesh/pheromesh/gossip"
	"github.com/pheromesh/pheromesh/gossip/lattice"
	"github.com/pheromesh/pheromesh/gossip/transport"
	"github.com/pheromesh/pheromesh/pkg/config"
	"github.com/pheromesh/pheromesh/pkg/log"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "start a gossip node",
		Long: `Start a gossip node.

The node gossips mergeable state with its configured peers over UDP and
serves health, metrics and status endpoints on the admin address.

The peer address book and primary designations are read from a YAML config
file:

  id: 0
  bind_addr: ":7661"
  peers:
    1: "10.26.104.14:7661"
    2: "10.26.104.75:7661"
  primaries: [0, 1]

Examples:
  # Start a node from a config file.
  pheromesh node --config.path node.yaml

  # Start a node overriding the gossip round interval.
  pheromesh node --config.path node.yaml --gossip.interval 50ms
`,
	}

	conf := DefaultConfig()

	var configPath string
	cmd.Flags().StringVar(
		&configPath,
		"config.path",
		"",
		`
YAML config file path.`,
	)

	// Register flags and set default values.
	conf.RegisterFlags(cmd.Flags())

	cmd.Run = func(cmd *cobra.Command, args []string) {
		if configPath != "" {
			if err := config.Load(configPath, conf); err != nil {
				fmt.Printf("load config: %s\n", err.Error())
				os.Exit(1)
			}
		}

		if err := conf.Validate(); err != nil {
			fmt.Printf("invalid config: %s\n", err.Error())
			os.Exit(1)
		}

		logger, err := log.NewLogger(conf.Log.Level, conf.Log.Subsystems)
		if err != nil {
			fmt.Printf("failed to setup logger: %s\n", err.Error())
			os.Exit(1)
		}

		if conf.AdvertiseAddr == "" {
			advertiseAddr, err := advertiseAddrFromBindAddr(conf.BindAddr)
			if err != nil {
				logger.Error("invalid configuration", zap.Error(err))
				os.Exit(1)
			}
			conf.AdvertiseAddr = advertiseAddr
		}

		if err := run(conf, logger); err != nil {
			logger.Error("failed to run node", zap.Error(err))
			os.Exit(1)
		}
	}

	return cmd
}

func run(conf *Config, logger log.Logger) error {
	logger.Info("starting pheromesh node", zap.Any("conf", conf))

	registry := prometheus.NewRegistry()

	metrics := gossip.NewMetrics()
	metrics.Register(registry)

	engineConf := conf.EngineConfig()
	if err := engineConf.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	id := gossip.NodeID(conf.ID)

	peers := make(map[gossip.NodeID]string, len(conf.Peers))
	for peer, addr := range conf.Peers {
		peers[gossip.NodeID(peer)] = addr
	}
	members := viewMembers(conf.Peers)

	primaries := make(map[gossip.NodeID]struct{}, len(conf.Primaries))
	for _, primary := range conf.Primaries {
		primaries[gossip.NodeID(primary)] = struct{}{}
	}
	isPrimary := func(id gossip.NodeID) bool {
		_, ok := primaries[id]
		return ok
	}

	tr, err := transport.NewUDPTransport(
		id,
		conf.BindAddr,
		peers,
		engineConf.MaxPacketSize,
		metrics,
		logger,
	)
	if err != nil {
		return fmt.Errorf("transport: %w", err)
	}
	defer tr.Close()

	logger.Info(
		"gossip listening",
		zap.String("bind-addr", tr.LocalAddr().String()),
		zap.String("advertise-addr", conf.AdvertiseAddr),
	)

	view, err := gossip.NewView(id, members, isPrimary, engineConf.Seed)
	if err != nil {
		return fmt.Errorf("view: %w", err)
	}

	var policy gossip.Policy
	if engineConf.Policy == gossip.PolicyPriority {
		policy = gossip.NewPriorityPolicy(
			view, engineConf.Fanout, engineConf.FanoutBoost, isPrimary(id),
		)
	} else {
		policy = gossip.NewUniformPolicy(view, engineConf.Fanout)
	}

	engine, err := gossip.NewEngine(
		lattice.NewSet(), view, tr, policy, engineConf, nil, metrics, logger,
	)
	if err != nil {
		return fmt.Errorf("engine: %w", err)
	}

	adminLn, err := net.Listen("tcp", conf.Admin.BindAddr)
	if err != nil {
		return fmt.Errorf("admin listen: %s: %w", conf.Admin.BindAddr, err)
	}
	adminServer := admin.NewServer(registry, logger)
	adminServer.AddStatus("/gossip", &status{
		engine:  engine,
		view:    view,
		primary: isPrimary(id),
	})

	var group rungroup.Group

	// Termination handler.
	signalCtx, signalCancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	group.Add(func() error {
		select {
		case sig := <-signalCh:
			logger.Info(
				"received shutdown signal",
				zap.String("signal", sig.String()),
			)
			return nil
		case <-signalCtx.Done():
			return nil
		}
	}, func(error) {
		signalCancel()
	})

	// Gossip engine.
	gossipCtx, gossipCancel := context.WithCancel(context.Background())
	group.Add(func() error {
		engine.Run(gossipCtx)
		return nil
	}, func(error) {
		gossipCancel()
	})

	// Admin server.
	group.Add(func() error {
		if err := adminServer.Serve(adminLn); err != nil {
			return fmt.Errorf("admin server serve: %w", err)
		}
		return nil
	}, func(error) {
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			conf.GracefulShutdownTimeout,
		)
		defer cancel()

		if err := adminServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("failed to gracefully shutdown admin server", zap.Error(err))
		}

		logger.Info("admin server shut down")
	})

	if err := group.Run(); err != nil {
		return err
	}

	logger.Info("shutdown complete")

	return nil
}

// status exposes the node's gossip state on the admin server.
type status struct {
	engine  *gossip.Engine
	view    *gossip.View
	primary bool
}

func (s *status) Register(group *gin.RouterGroup) {
	group.GET("/", s.route)
}

func (s *status) route(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"id":      s.engine.ID(),
		"primary": s.primary,
		"peers":   s.view.Peers(),
		"digest":  fmt.Sprintf("%016x", uint64(s.engine.State().Digest())),
	})
}

// viewMembers returns the peer IDs in sorted order, so the seeded view
// selects the same peer sequence across restarts regardless of map
// iteration order.
func viewMembers(peers map[uint32]string) []gossip.NodeID {
	members := make([]gossip.NodeID, 0, len(peers))
	for peer := range peers {
		members = append(members, gossip.NodeID(peer))
	}
	sort.Slice(members, func(i, j int) bool {
		return members[i] < members[j]
	})
	return members
}

func advertiseAddrFromBindAddr(bindAddr string) (string, error) {
	if strings.HasPrefix(bindAddr, ":") {
		bindAddr = "0.0.0.0" + bindAddr
	}

	host, port, err := net.SplitHostPort(bindAddr)
	if err != nil {
		return "", fmt.Errorf("invalid bind addr: %s: %w", bindAddr, err)
	}

	if host == "0.0.0.0" {
		ip, err := sockaddr.GetPrivateIP()
		if err != nil {
			return "", fmt.Errorf("get interface addr: %w", err)
		}
		if ip == "" {
			return "", fmt.Errorf("no private ip found")
		}
		return ip + ":" + port, nil
	}
	return bindAddr, nil
}
