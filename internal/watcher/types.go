package watcher

import (
	"context"
	"time"
)

// Request asks for one tenant to be reconciled against its manifest.
type Request struct {
	// Tenant is the tenant whose manifest should be applied.
	Tenant string

	// Attempt is the current retry attempt number (starts at 1).
	Attempt int

	// LastError is the error from the previous attempt, if any.
	LastError error
}

// Queue is a deduplicating work queue of tenants awaiting reconciliation.
//
// At most one entry per tenant is queued; a tenant re-added while being
// processed is marked dirty and re-queued when processing finishes, so a
// manifest edit during a long install is never lost.
type Queue interface {
	// Add adds a request to the queue. If the tenant is already queued,
	// the existing entry is updated.
	Add(req Request)

	// Get retrieves the next request from the queue. Blocks until a
	// request is available or the context is cancelled.
	Get(ctx context.Context) (Request, bool)

	// Done marks a request as processed.
	Done(req Request)

	// Len returns the current queue length.
	Len() int

	// Shutdown signals the queue to stop accepting new items.
	Shutdown()
}

// ManagerConfig holds configuration for the watch Manager.
type ManagerConfig struct {
	// ManifestDir is the directory of per-tenant manifest files.
	ManifestDir string

	// WorkerCount is the number of concurrent reconciliation workers.
	// Workers never process the same tenant concurrently (the queue
	// guarantees it; the engine's per-tenant lock backs it up).
	// Defaults to 2 if not specified.
	WorkerCount int

	// MaxRetries is the maximum number of attempts when the tenant
	// runtime is unreachable. Defaults to 5 if not specified.
	MaxRetries int

	// InitialBackoff is the initial requeue delay after an unreachable
	// runtime. Defaults to 1 second if not specified.
	InitialBackoff time.Duration

	// MaxBackoff caps the requeue delay. Defaults to 5 minutes.
	MaxBackoff time.Duration

	// DebounceInterval is how long to wait for additional manifest
	// changes before reconciling. Defaults to 500ms if not specified.
	DebounceInterval time.Duration
}
