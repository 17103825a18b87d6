package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/spf13/cobra"
)

var upNodes int

// NewUpCmd returns the command that drives the cluster toward live nodes.
func NewUpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "up",
		Short:   "Drive the cluster to the target number of live nodes",
		PreRunE: loadConfig,
		RunE:    up,
	}
	AddUpFlags(cmd)
	return cmd
}

// AddUpFlags adds flags to the Up command
func AddUpFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().IntVarP(&upNodes, "nodes", "n", -1, "Number of nodes to run; -1 means all of them")
}

func up(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	var ok bool
	if upNodes < 0 {
		ok, err = clu.SetFullLive(ctx)
	} else {
		ok, err = clu.SetLiveNodes(ctx, upNodes)
	}
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("cluster did not converge within %s", _config.ConvergeTimeout)
	}

	return nil
}
