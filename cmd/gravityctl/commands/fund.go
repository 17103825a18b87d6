package commands

import (
	"context"
	"fmt"
	"math/big"
	"os/signal"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/spf13/cobra"
)

// defaultFundAmount is one ether in wei.
const defaultFundAmount = "1000000000000000000"

var fundAmount string

// NewFundCmd returns the command that moves ether from the faucet to a
// node's validator account.
func NewFundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fund <node-id>",
		Short:   "Fund a node's validator account from the faucet",
		Args:    cobra.ExactArgs(1),
		PreRunE: loadConfig,
		RunE:    fund,
	}
	AddFundFlags(cmd)
	return cmd
}

// AddFundFlags adds flags to the Fund command
func AddFundFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().StringVar(&fundAmount, "amount", defaultFundAmount, "Amount to transfer, in wei")
}

func fund(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	amount, ok := new(big.Int).SetString(fundAmount, 10)
	if !ok {
		return fmt.Errorf("bad amount: %s", fundAmount)
	}

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	hash, err := clu.Fund(ctx, args[0], amount)
	if err != nil {
		return err
	}

	fmt.Printf("Transfer mined: %s\n", hash.Hex())

	return nil
}
