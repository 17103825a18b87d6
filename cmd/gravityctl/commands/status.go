package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/Richard1048576/gravity-sdk/src/cluster"
	"github.com/Richard1048576/gravity-sdk/src/node/state"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewStatusCmd returns the command that prints one observation pass over the
// cluster.
func NewStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "status",
		Short:   "Show the observed state of every node",
		PreRunE: loadConfig,
		RunE:    clusterStatus,
	}
	AddConfigFlags(cmd)
	return cmd
}

func clusterStatus(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clu, err := cluster.Load(_config)
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "ROLE", "STATE", "HEIGHT"})

	for _, o := range clu.Status(ctx) {
		height := "-"
		if o.State == state.Running {
			height = strconv.FormatUint(o.Height, 10)
		}
		table.Append([]string{o.Node.ID, string(o.Node.Role), colorState(o.State), height})
	}

	table.Render()

	return nil
}

func colorState(s state.State) string {
	switch s {
	case state.Running:
		return color.GreenString(s.String())
	case state.Stale:
		return color.YellowString(s.String())
	case state.Stopped:
		return color.RedString(s.String())
	default:
		return fmt.Sprint(s)
	}
}
