package commands

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Richard1048576/gravity-sdk/src/journal"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// NewHistoryCmd returns the command that inspects recorded fuzz runs.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "history [run-id]",
		Short:   "List recorded fuzz runs, or dump one run's journal",
		Args:    cobra.MaximumNArgs(1),
		PreRunE: loadConfig,
		RunE:    history,
	}
	AddConfigFlags(cmd)
	cmd.Flags().String("journal", _config.JournalDir, "Directory of the run journal database")
	return cmd
}

func history(cmd *cobra.Command, args []string) error {
	j, err := journal.Open(_config.JournalDir, _config.Logger().WithField("prefix", "journal"))
	if err != nil {
		return err
	}
	defer j.Close()

	if len(args) == 0 {
		runs, err := j.Runs()
		if err != nil {
			return err
		}
		for _, id := range runs {
			fmt.Println(id)
		}
		return nil
	}

	records, err := j.Records(args[0])
	if err != nil {
		if journal.IsNotFound(err) {
			return fmt.Errorf("no records for run %s", args[0])
		}
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"SEQ", "TIME", "KIND", "EPOCH", "NODE", "DETAIL"})

	for _, rec := range records {
		table.Append([]string{
			strconv.FormatUint(rec.Seq, 10),
			rec.Time.Format(time.RFC3339),
			rec.Kind,
			strconv.FormatUint(rec.Epoch, 10),
			rec.Node,
			rec.Detail,
		})
	}

	table.Render()

	return nil
}
