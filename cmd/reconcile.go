package cmd

import (
	"fmt"
	"os"
	"time"

	"modsync/internal/engine"
	"modsync/internal/formatting"
	"modsync/internal/watcher"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	reconcileModules []string
	reconcileForce   []string
	reconcileAll     bool
	reconcileDir     string
	reconcileQuiet   bool
)

// newReconcileCmd creates the command that runs one reconciliation.
func newReconcileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reconcile [tenant]",
		Short: "Bring a tenant's installed modules to the desired set",
		Long: `Reconcile computes the difference between a tenant's installed modules and
the requested set, resolves transitive dependencies into a deterministic
installation order, and installs the missing modules one at a time.

Already-installed modules are never touched unless named via --force.
Re-running the same command after a partial failure retries only what
failed.

With --all, every tenant manifest in the manifest directory is applied;
different tenants are reconciled in parallel.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runReconcile,
	}

	cmd.Flags().StringSliceVarP(&reconcileModules, "modules", "m", nil,
		"desired modules (required unless --all)")
	cmd.Flags().StringSliceVar(&reconcileForce, "force", nil,
		"installed modules to explicitly reinstall")
	cmd.Flags().BoolVar(&reconcileAll, "all", false,
		"reconcile every tenant manifest in the manifest directory")
	cmd.Flags().StringVar(&reconcileDir, "manifest-dir", "",
		"manifest directory (defaults to watch.manifestDir from config)")
	cmd.Flags().BoolVarP(&reconcileQuiet, "quiet", "q", false,
		"suppress the progress spinner and result table")
	return cmd
}

func runReconcile(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	if reconcileAll {
		return reconcileAllTenants(cmd, a)
	}

	if len(args) != 1 {
		return fmt.Errorf("a tenant argument is required unless --all is given")
	}
	if len(reconcileModules) == 0 {
		return fmt.Errorf("--modules is required unless --all is given")
	}

	tenant := args[0]

	var s *spinner.Spinner
	if !reconcileQuiet {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond)
		s.Suffix = fmt.Sprintf(" reconciling tenant %s...", tenant)
		s.Start()
	}

	result, err := a.engine.Reconcile(cmd.Context(), engine.Request{
		Tenant:         tenant,
		Desired:        reconcileModules,
		ForceReinstall: reconcileForce,
	})

	if s != nil {
		s.Stop()
	}
	if err != nil && result == nil {
		return err
	}

	if !reconcileQuiet {
		formatting.RenderResult(cmd.OutOrStdout(), result)
	}
	if err != nil {
		// Validation could not reach the runtime; the table above is
		// the best accounting available.
		return err
	}
	if !result.Success {
		return &reconcileFailedError{}
	}
	return nil
}

// reconcileAllTenants applies every manifest in the manifest directory.
// Tenants are independent, so they run in parallel.
func reconcileAllTenants(cmd *cobra.Command, a *app) error {
	dir := reconcileDir
	if dir == "" {
		dir = a.cfg.Watch.ManifestDir
	}
	if dir == "" {
		return fmt.Errorf("no manifest directory: set --manifest-dir or watch.manifestDir in config")
	}

	tenants, err := watcher.ListTenants(dir)
	if err != nil {
		return fmt.Errorf("reading manifest directory: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "no tenant manifests found")
		return nil
	}

	var group errgroup.Group
	results := make([]*engine.Result, len(tenants))
	paused := make([]bool, len(tenants))
	for i, tenant := range tenants {
		i, tenant := i, tenant
		group.Go(func() error {
			manifest, err := watcher.LoadManifest(watcher.ManifestPath(dir, tenant))
			if err != nil {
				return err
			}
			if manifest.Paused {
				paused[i] = true
				return nil
			}
			result, err := a.engine.Reconcile(cmd.Context(), engine.Request{
				Tenant:         tenant,
				Desired:        manifest.Modules,
				ForceReinstall: manifest.ForceReinstall,
			})
			results[i] = result
			return err
		})
	}
	groupErr := group.Wait()

	failed := false
	for i, result := range results {
		if paused[i] {
			if !reconcileQuiet {
				fmt.Fprintf(cmd.OutOrStdout(), "tenant %s: paused, skipped\n", tenants[i])
			}
			continue
		}
		if result == nil {
			fmt.Fprintf(os.Stderr, "tenant %s: no result\n", tenants[i])
			failed = true
			continue
		}
		if !reconcileQuiet {
			fmt.Fprintf(cmd.OutOrStdout(), "tenant %s:\n", tenants[i])
			formatting.RenderResult(cmd.OutOrStdout(), result)
		}
		if !result.Success {
			failed = true
		}
	}
	if groupErr != nil {
		return groupErr
	}
	if failed {
		return &reconcileFailedError{}
	}
	return nil
}
