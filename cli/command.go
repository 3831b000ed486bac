package cli

import (
	"github.com/spf13/cobra"

	"github.com/pheromesh/pheromesh/cli/node"
	"github.com/pheromesh/pheromesh/cli/sim"
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "pheromesh [command] (flags)",
		SilenceUsage: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Long: `Pheromesh disseminates mergeable state across a mesh of nodes
using epidemic gossip.

Nodes push updates to a random subset of their peers each round, so updates
spread exponentially without any coordinator and the network tolerates
message loss. State types are join-semilattices, meaning replicas converge
no matter the order or number of times updates arrive.

Run a large in-process simulation with:

  $ pheromesh sim --gossip.nodes 10000

You can compare uniform gossip against the priority policy, which
accelerates propagation between designated primary nodes:

  $ pheromesh sim --gossip.policy priority --gossip.primaries 100

To run a real node gossiping over UDP, point it at a YAML config describing
its peers:

  $ pheromesh node --config.path node.yaml
`,
	}

	cmd.AddCommand(sim.NewCommand())
	cmd.AddCommand(node.NewCommand())

	return cmd
}

func init() {
	cobra.EnableCommandSorting = false
}
