package cmd

import (
	"os"

	"modsync/internal/runtime"
	"modsync/pkg/logging"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeReconcileFailed indicates the run completed but did not reach
	// the desired state; re-running the same command is the retry path.
	ExitCodeReconcileFailed = 2
	// ExitCodeRuntimeUnreachable indicates the tenant runtime could not be
	// reached at all and nothing was attempted.
	ExitCodeRuntimeUnreachable = 3
)

var (
	rootConfigPath string
	rootLogLevel   string
)

// rootCmd represents the base command for the modsync application.
var rootCmd = &cobra.Command{
	Use:   "modsync",
	Short: "Reconcile tenant runtimes toward a desired module set",
	Long: `modsync brings a tenant's managed application runtime from its current
module installation state to a desired state: it resolves transitive
dependencies into a deterministic installation plan, installs one module at a
time, isolates failures to the affected dependency subtree, and validates the
outcome against the runtime. It never uninstalls and never reinstalls a
satisfied module unless explicitly forced.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors
	// that are handled by the application.
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(rootLogLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the
// application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application.
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "modsync version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
// This provides semantic exit codes for scripting and automation.
func getExitCode(err error) int {
	if runtime.IsConnectionError(err) {
		return ExitCodeRuntimeUnreachable
	}
	if _, ok := err.(*reconcileFailedError); ok {
		return ExitCodeReconcileFailed
	}
	return ExitCodeError
}

// reconcileFailedError signals a completed-but-unsuccessful run so Execute
// can map it to its exit code without printing a second error message.
type reconcileFailedError struct{}

func (*reconcileFailedError) Error() string {
	return "reconciliation did not reach the desired state"
}

func init() {
	rootCmd.PersistentFlags().StringVar(&rootConfigPath, "config", "",
		"config directory (default is $HOME/.config/modsync)")
	rootCmd.PersistentFlags().StringVar(&rootLogLevel, "log-level", "info",
		"log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newReconcileCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newValidateCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newWatchCmd())
}
