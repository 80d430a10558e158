// Package watcher keeps tenants continuously converged on their desired
// module state.
//
// Desired state lives as one YAML manifest per tenant in a directory
// (<dir>/<tenant>.yaml). An fsnotify-based Detector reports changed tenants,
// debounced; a deduplicating work queue guarantees at most one queued entry
// per tenant and re-queues tenants whose manifest changed mid-run; a worker
// pool applies manifests through the reconciliation engine. Unreachable
// runtimes are retried with exponential backoff, everything else is handled
// inside the engine's per-module accounting.
//
// The manifest watcher is an optional outer loop: the engine stays fully
// usable for one-shot CLI reconciliation without it.
package watcher
