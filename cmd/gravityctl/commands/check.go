package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/spf13/cobra"
)

var (
	checkNode  string
	checkDelta uint64
)

// NewCheckCmd returns the command that verifies block progress.
func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "check",
		Short:   "Verify nodes are producing blocks",
		PreRunE: loadConfig,
		RunE:    check,
	}
	AddCheckFlags(cmd)
	return cmd
}

// AddCheckFlags adds flags to the Check command
func AddCheckFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().StringVar(&checkNode, "node", "", "Check a single node; empty checks every live node")
	cmd.Flags().Uint64Var(&checkDelta, "delta", _config.BlockDelta, "Minimum height increase that counts as progress")
	cmd.Flags().Duration("block-wait", _config.BlockWait, "Deadline for observing the increase")
}

func check(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	ok, err := clu.CheckBlockIncreasing(ctx, checkNode, checkDelta)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("blocks are not increasing")
	}

	fmt.Println("Blocks are increasing")

	return nil
}
