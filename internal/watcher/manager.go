package watcher

import (
	"context"
	"errors"
	"os"
	"sync"
	"time"

	"modsync/internal/engine"
	"modsync/internal/runtime"
	"modsync/pkg/logging"
)

// Manager continuously reconciles tenants against their manifest files.
//
// It wires the manifest Detector to a deduplicating work queue and a pool of
// workers that call the engine. A run that fails because the tenant runtime
// is unreachable is retried with exponential backoff; every other failure is
// already accounted for inside the engine's Result and is not retried here
// (the next manifest change or sweep retries it naturally).
type Manager struct {
	mu sync.Mutex

	config ManagerConfig
	engine *engine.Engine

	detector *Detector
	queue    *delayedQueue

	// tenantChanges receives changed tenant names from the detector
	tenantChanges chan string

	ctx        context.Context
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	running    bool
}

// NewManager creates a watch manager.
func NewManager(config ManagerConfig, eng *engine.Engine) *Manager {
	// Apply defaults
	if config.WorkerCount == 0 {
		config.WorkerCount = 2
	}
	if config.MaxRetries == 0 {
		config.MaxRetries = 5
	}
	if config.InitialBackoff == 0 {
		config.InitialBackoff = time.Second
	}
	if config.MaxBackoff == 0 {
		config.MaxBackoff = 5 * time.Minute
	}
	if config.DebounceInterval == 0 {
		config.DebounceInterval = 500 * time.Millisecond
	}

	return &Manager{
		config:        config,
		engine:        eng,
		detector:      NewDetector(config.ManifestDir, config.DebounceInterval),
		queue:         NewDelayedQueue(),
		tenantChanges: make(chan string, 100),
	}
}

// Start begins watching and reconciling. It enqueues every existing
// manifest once so tenants converge even without a fresh change.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return nil
	}
	m.ctx, m.cancelFunc = context.WithCancel(ctx)
	m.running = true
	m.mu.Unlock()

	if err := m.detector.Start(m.ctx, m.tenantChanges); err != nil {
		m.mu.Lock()
		m.running = false
		m.mu.Unlock()
		return err
	}

	// Initial sweep: every known tenant gets reconciled once.
	tenants, err := ListTenants(m.config.ManifestDir)
	if err != nil {
		logging.Warn("Watcher", "Initial manifest sweep failed: %v", err)
	}
	for _, tenant := range tenants {
		m.queue.Add(Request{Tenant: tenant, Attempt: 1})
	}

	m.wg.Add(1)
	go m.processChanges()

	for i := 0; i < m.config.WorkerCount; i++ {
		m.wg.Add(1)
		go m.worker(i)
	}

	logging.Info("Watcher", "Started with %d workers, %d tenants queued", m.config.WorkerCount, len(tenants))
	return nil
}

// Stop shuts the manager down and waits for in-flight work.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	m.mu.Unlock()

	m.detector.Stop()
	m.queue.Shutdown()
	if m.cancelFunc != nil {
		m.cancelFunc()
	}
	m.wg.Wait()
	logging.Info("Watcher", "Stopped")
}

// processChanges forwards detector events into the work queue.
func (m *Manager) processChanges() {
	defer m.wg.Done()
	for {
		select {
		case <-m.ctx.Done():
			return
		case tenant, ok := <-m.tenantChanges:
			if !ok {
				return
			}
			logging.Debug("Watcher", "Manifest change detected for tenant %s", tenant)
			m.queue.Add(Request{Tenant: tenant, Attempt: 1})
		}
	}
}

// worker pulls requests off the queue and reconciles them.
func (m *Manager) worker(id int) {
	defer m.wg.Done()
	for {
		req, ok := m.queue.Get(m.ctx)
		if !ok {
			return
		}
		m.reconcileTenant(req)
		m.queue.Done(req)
	}
}

// reconcileTenant applies one tenant's manifest.
func (m *Manager) reconcileTenant(req Request) {
	path := ManifestPath(m.config.ManifestDir, req.Tenant)
	manifest, err := LoadManifest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Manifest deleted: the engine never uninstalls, so
			// there is simply nothing left to converge.
			logging.Info("Watcher", "Manifest for tenant %s removed, nothing to reconcile", req.Tenant)
			return
		}
		logging.Error("Watcher", err, "Cannot load manifest for tenant %s", req.Tenant)
		return
	}
	if manifest.Paused {
		logging.Info("Watcher", "Tenant %s is paused, skipping", req.Tenant)
		return
	}

	result, err := m.engine.Reconcile(m.ctx, engine.Request{
		Tenant:         req.Tenant,
		Desired:        manifest.Modules,
		ForceReinstall: manifest.ForceReinstall,
	})
	if err != nil && runtime.IsConnectionError(err) {
		m.retry(req, err)
		return
	}
	if err != nil {
		logging.Error("Watcher", err, "Reconcile failed for tenant %s", req.Tenant)
		return
	}
	if !result.Success {
		logging.Warn("Watcher", "Tenant %s reconciled with failures (run %s): %d failed, %d skipped",
			req.Tenant, result.RunID, len(result.Failed), len(result.Skipped)+len(result.Cancelled))
		return
	}
	logging.Info("Watcher", "Tenant %s converged (run %s): %d installed, %d already installed",
		req.Tenant, result.RunID, len(result.Installed), len(result.AlreadyInstalled))
}

// retry requeues a request with exponential backoff after a connection
// failure, up to MaxRetries attempts.
func (m *Manager) retry(req Request, cause error) {
	if req.Attempt >= m.config.MaxRetries {
		logging.Error("Watcher", cause, "Giving up on tenant %s after %d attempts", req.Tenant, req.Attempt)
		return
	}

	backoff := m.retryBackoff(req.Attempt)
	logging.Warn("Watcher", "Tenant %s unreachable (attempt %d/%d), retrying in %s",
		req.Tenant, req.Attempt, m.config.MaxRetries, backoff)
	m.queue.AddAfter(Request{Tenant: req.Tenant, Attempt: req.Attempt + 1, LastError: cause}, backoff)
}

// retryBackoff doubles the initial backoff per attempt, capped at MaxBackoff.
// Doubling in a loop rather than shifting keeps large attempt numbers from
// overflowing the duration.
func (m *Manager) retryBackoff(attempt int) time.Duration {
	backoff := m.config.InitialBackoff
	for i := 1; i < attempt && backoff < m.config.MaxBackoff; i++ {
		backoff *= 2
	}
	if backoff > m.config.MaxBackoff {
		backoff = m.config.MaxBackoff
	}
	return backoff
}
