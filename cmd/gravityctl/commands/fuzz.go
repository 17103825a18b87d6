package commands

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/journal"
	"github.com/Richard1048576/gravity-sdk/src/node"
	"github.com/Richard1048576/gravity-sdk/src/service"
	"github.com/Richard1048576/gravity-sdk/src/validator"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewFuzzCmd returns the command that runs the validator set fuzz.
func NewFuzzCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fuzz",
		Short:   "Fuzz validator set membership across epochs",
		PreRunE: loadConfig,
		RunE:    fuzz,
	}
	AddFuzzFlags(cmd)
	return cmd
}

// AddFuzzFlags adds flags to the Fuzz command
func AddFuzzFlags(cmd *cobra.Command) {
	AddConfigFlags(cmd)
	cmd.Flags().DurationP("duration", "d", _config.FuzzDuration, "Run length; 0 runs until interrupted")
	cmd.Flags().Int64("seed", _config.Seed, "Random seed; 0 picks one from the clock")
	cmd.Flags().String("cli", _config.CLIPath, "Path of the validator admin binary")
	cmd.Flags().String("stake-amount", _config.StakeAmount, "Stake submitted with join commands")
	cmd.Flags().Duration("reconcile-interval", _config.ReconcileInterval, "Cycle period of the fuzz loop")
	cmd.Flags().Duration("height-interval", _config.HeightInterval, "Cycle period of the height monitor")
	cmd.Flags().Uint64("max-height-lag", _config.MaxHeightLag, "Height gap that counts as a wedged node")
	cmd.Flags().String("journal", _config.JournalDir, "Directory of the run journal database")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for the HTTP stats service")
	cmd.Flags().Bool("no-service", _config.NoService, "Do not serve run statistics over HTTP")
}

func fuzz(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	// Interrupts cancel the run context; the loops observe it at their
	// iteration boundaries and exit cleanly.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	// The reconciler's view of the chain comes from a genesis node: it is
	// guaranteed to stay in the validator set for the whole run.
	primary := clu.Nodes()[0]
	for _, n := range clu.Nodes() {
		if n.Role == node.RoleGenesis {
			primary = n
			break
		}
	}

	seed := _config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	logger.WithField("seed", seed).Info("Fuzz seed")

	admin := validator.NewCLI(_config.CLIPath, primary.RPCURL, logger)

	rec := validator.NewReconciler(_config, clu, admin, primary.API(), seed, logger)

	j, err := journal.Open(_config.JournalDir, logger.WithField("prefix", "journal"))
	if err != nil {
		return err
	}
	defer j.Close()
	rec.Journal = j

	tracker := service.NewTracker()
	rec.Tracker = tracker

	mon := validator.NewHeightMonitor(_config, clu, logger)
	mon.Tracker = tracker

	if !_config.NoService {
		go service.NewService(_config.ServiceAddr, tracker, logger).Serve()
	}

	g, gctx := errgroup.WithContext(ctx)

	// The monitor has no duration of its own: it stops when the reconciler
	// is done, and a violation from either side cancels both.
	mctx, mcancel := context.WithCancel(gctx)

	g.Go(func() error {
		defer mcancel()
		return rec.Run(gctx)
	})
	g.Go(func() error {
		return mon.Run(mctx)
	})

	return g.Wait()
}
