// Package logging provides the structured logging layer used by every
// modsync subsystem.
//
// It is a thin wrapper around log/slog that tags each entry with the
// subsystem it originated from, so that engine, runtime client and watcher
// output can be filtered independently:
//
//	logging.Init(logging.LevelInfo, os.Stderr)
//	logging.Info("Engine", "reconciled tenant %s in %s", tenant, elapsed)
//	logging.Error("Runtime", err, "discovery failed for tenant %s", tenant)
//
// Init must be called once at startup; until then all log calls are no-ops,
// which keeps library-style use of the engine quiet by default.
package logging
