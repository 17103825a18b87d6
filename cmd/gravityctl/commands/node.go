package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/spf13/cobra"
)

// NewNodeCmd returns the command group acting on a single node.
func NewNodeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Act on a single node",
	}

	cmd.AddCommand(
		newNodeActionCmd("start", "Drive a node to Running", func(ctx context.Context, clu *cluster.Cluster, id string) (bool, error) {
			return clu.SetNode(ctx, id, state.Running)
		}),
		newNodeActionCmd("stop", "Drive a node to Stopped", func(ctx context.Context, clu *cluster.Cluster, id string) (bool, error) {
			return clu.SetNode(ctx, id, state.Stopped)
		}),
		newNodeActionCmd("restart", "Stop and start a node", func(ctx context.Context, clu *cluster.Cluster, id string) (bool, error) {
			n, err := clu.Node(id)
			if err != nil {
				return false, err
			}
			return n.Restart(ctx)
		}),
	)

	return cmd
}

func newNodeActionCmd(use, short string, run func(ctx context.Context, clu *cluster.Cluster, id string) (bool, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:     use + " <node-id>",
		Short:   short,
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			clu, err := cluster.Load(_config)
			if err != nil {
				return err
			}

			ok, err := run(ctx, clu, args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("node %s did not reach the target state", args[0])
			}

			return nil
		},
	}
	AddConfigFlags(cmd)
	return cmd
}
