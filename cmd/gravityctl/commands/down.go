package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/spf13/cobra"
)

var downPurge bool

// NewDownCmd returns the command that stops the whole cluster.
func NewDownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "down",
		Short:   "Stop every node of the cluster",
		PreRunE: loadConfig,
		RunE:    down,
	}
	AddDownFlags(cmd)
	return cmd
}

// AddDownFlags adds flags to the Down command
func AddDownFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().BoolVar(&downPurge, "purge", false, "Also kill stray node processes that lost their PID files")
	cmd.Flags().String("node-bin", _config.NodeBin, "Process name of the node binary, for --purge")
}

func down(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	ok, err := clu.SetAllStopped(ctx)
	if err != nil {
		return err
	}

	if downPurge {
		killed, err := clu.Purge(ctx)
		if err != nil {
			return err
		}
		if killed > 0 {
			fmt.Printf("Killed %d stray node processes\n", killed)
		}
	}

	if !ok && !downPurge {
		return fmt.Errorf("cluster did not stop within %s", _config.ConvergeTimeout)
	}

	return nil
}
