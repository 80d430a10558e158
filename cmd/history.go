package cmd

import (
	"fmt"

	"modsync/internal/formatting"

	"github.com/spf13/cobra"
)

var historyLimit int

// newHistoryCmd creates the command that lists recorded reconciliation runs.
func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [tenant]",
		Short: "List recorded reconciliation runs, newest first",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			if a.history == nil {
				return fmt.Errorf("run history is disabled: set history.enabled in config")
			}

			tenant := ""
			if len(args) == 1 {
				tenant = args[0]
			}
			records, err := a.history.RecentRuns(cmd.Context(), tenant, historyLimit)
			if err != nil {
				return err
			}
			formatting.RenderHistory(cmd.OutOrStdout(), records)
			return nil
		},
	}

	cmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "maximum runs to list")
	return cmd
}
