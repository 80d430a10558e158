package cmd

import (
	"fmt"

	"modsync/internal/formatting"

	"github.com/spf13/cobra"
)

// newValidateCmd creates the command that checks whether named modules are
// actually installed.
func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <tenant> <module>...",
		Short: "Check which of the named modules a tenant actually has installed",
		Long: `Validate queries the tenant runtime and reports, for each named module,
whether it is currently installed. It is the same check Reconcile runs after
installation, exposed as a standalone diagnostic.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer a.close()

			validated, err := a.engine.Validate(cmd.Context(), args[0], args[1:])
			if err != nil {
				return err
			}
			formatting.RenderValidation(cmd.OutOrStdout(), validated)

			for _, installed := range validated {
				if !installed {
					return fmt.Errorf("one or more modules are not installed")
				}
			}
			return nil
		},
	}
}
