package cmd

import (
	"modsync/internal/formatting"

	"github.com/spf13/cobra"
)

// newStatusCmd creates the command that shows a tenant's module states.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <tenant>",
		Short: "Show a tenant's modules partitioned by installation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			status, err := a.engine.Status(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			formatting.RenderStatus(cmd.OutOrStdout(), status)
			return nil
		},
	}
}
