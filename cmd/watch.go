package cmd

import (
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"modsync/internal/watcher"
	"modsync/pkg/logging"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	watchManifestDir string
	watchMetricsAddr string
)

// newWatchCmd creates the command that continuously reconciles tenants
// against their manifest files.
func newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously reconcile tenants against their manifest files",
		Long: `Watch observes a directory of per-tenant manifest files and reconciles a
tenant whenever its manifest changes. Every manifest is also applied once at
startup so tenants converge even without a fresh edit.

Reconciliations for different tenants run in parallel; a single tenant is
never reconciled concurrently.`,
		RunE: runWatch,
	}

	cmd.Flags().StringVar(&watchManifestDir, "manifest-dir", "",
		"manifest directory (defaults to watch.manifestDir from config)")
	cmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "",
		"address to expose Prometheus /metrics on (defaults to watch.metricsAddr from config)")
	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.close()

	dir := watchManifestDir
	if dir == "" {
		dir = a.cfg.Watch.ManifestDir
	}
	if dir == "" {
		return fmt.Errorf("no manifest directory: set --manifest-dir or watch.manifestDir in config")
	}

	metricsAddr := watchMetricsAddr
	if metricsAddr == "" {
		metricsAddr = a.cfg.Watch.MetricsAddr
	}
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		go func() {
			logging.Info("Watch", "Serving metrics on %s", metricsAddr)
			if err := http.ListenAndServe(metricsAddr, mux); err != nil {
				logging.Error("Watch", err, "Metrics server stopped")
			}
		}()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	manager := watcher.NewManager(watcher.ManagerConfig{
		ManifestDir:      dir,
		WorkerCount:      a.cfg.Watch.WorkerCount,
		MaxRetries:       a.cfg.Watch.MaxRetries,
		DebounceInterval: a.cfg.Watch.DebounceInterval.Std(),
	}, a.engine)

	if err := manager.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	logging.Info("Watch", "Shutting down")
	manager.Stop()
	return nil
}
