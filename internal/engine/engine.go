package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"modsync/internal/metrics"
	"modsync/internal/runtime"
	"modsync/pkg/logging"
)

// RunRecorder persists completed reconciliation runs. The engine treats
// recording as best-effort: a recorder failure never fails the run.
type RunRecorder interface {
	RecordRun(ctx context.Context, result *Result) error
}

// Config holds the configuration for the engine.
type Config struct {
	// Client is the tenant runtime control surface. Required.
	Client runtime.Client

	// DiscoveryTimeout bounds each discovery and validation call.
	// Defaults to 30 seconds.
	DiscoveryTimeout time.Duration

	// InstallTimeout bounds each single-module install call.
	// Defaults to 5 minutes.
	InstallTimeout time.Duration

	// SnapshotTTL enables a short-lived discovery cache used only by the
	// read-only Status and Validate operations. Zero disables caching.
	// Reconcile always performs fresh discovery.
	SnapshotTTL time.Duration

	// History, if set, receives every completed reconciliation run.
	History RunRecorder
}

// Engine is the reconciliation orchestrator. It composes discovery, delta
// calculation, dependency resolution, installation and validation into the
// public Reconcile, Status and Validate operations, and serializes all
// Reconcile calls per tenant.
//
// No state survives a call except the per-tenant locks and the optional
// read-only snapshot cache.
type Engine struct {
	client    runtime.Client
	installer *Installer
	validator *Validator
	cfg       Config

	// tenantLocks serializes reconciliation per tenant. Different
	// tenants proceed fully in parallel.
	mu          sync.Mutex
	tenantLocks map[string]*sync.Mutex

	// snapshots is the optional read-only discovery cache.
	cacheMu   sync.Mutex
	snapshots map[string]*Snapshot
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.DiscoveryTimeout == 0 {
		cfg.DiscoveryTimeout = 30 * time.Second
	}
	if cfg.InstallTimeout == 0 {
		cfg.InstallTimeout = 5 * time.Minute
	}
	return &Engine{
		client:      cfg.Client,
		installer:   NewInstaller(cfg.Client, cfg.InstallTimeout),
		validator:   NewValidator(cfg.Client),
		cfg:         cfg,
		tenantLocks: make(map[string]*sync.Mutex),
		snapshots:   make(map[string]*Snapshot),
	}
}

// tenantLock returns the mutex serializing work for one tenant.
func (e *Engine) tenantLock(tenant string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	lock, ok := e.tenantLocks[tenant]
	if !ok {
		lock = &sync.Mutex{}
		e.tenantLocks[tenant] = lock
	}
	return lock
}

// discover performs a fresh discovery call with the configured timeout.
func (e *Engine) discover(ctx context.Context, tenant string) (*Snapshot, error) {
	discoverCtx, cancel := context.WithTimeout(ctx, e.cfg.DiscoveryTimeout)
	defer cancel()

	discovery, err := e.client.DiscoverModules(discoverCtx, tenant)
	if err != nil {
		return nil, err
	}
	snap := NewSnapshot(discovery)

	if e.cfg.SnapshotTTL > 0 {
		e.cacheMu.Lock()
		e.snapshots[tenant] = snap
		e.cacheMu.Unlock()
	}
	return snap, nil
}

// cachedSnapshot returns a fresh-enough cached snapshot or performs a new
// discovery. Only the read-only operations use it.
func (e *Engine) cachedSnapshot(ctx context.Context, tenant string) (*Snapshot, error) {
	if e.cfg.SnapshotTTL > 0 {
		e.cacheMu.Lock()
		snap := e.snapshots[tenant]
		e.cacheMu.Unlock()
		if snap != nil && snap.Age() < e.cfg.SnapshotTTL {
			return snap, nil
		}
	}
	return e.discover(ctx, tenant)
}

// Reconcile brings the tenant's installed module set to cover the desired
// set. It never uninstalls and never reinstalls a satisfied module unless
// the request explicitly forces it.
//
// Only a connection failure returns a non-nil error; every other failure is
// captured in the Result so one bad module never prevents progress on the
// rest. When validation itself cannot reach the runtime, the partial Result
// is returned together with the connection error.
//
// Re-invoking Reconcile with an unchanged desired set is always safe:
// previously installed modules surface as AlreadyInstalled and previously
// failed ones are retried.
func (e *Engine) Reconcile(ctx context.Context, req Request) (*Result, error) {
	lock := e.tenantLock(req.Tenant)
	lock.Lock()
	defer lock.Unlock()

	started := time.Now()
	result := &Result{
		RunID:   uuid.NewString(),
		Tenant:  req.Tenant,
		Started: started,
		Failed:  make(map[string]string),
	}

	logging.Info("Engine", "Reconcile run %s: tenant %s, %d desired modules", result.RunID, req.Tenant, len(req.Desired))

	snap, err := e.discover(ctx, req.Tenant)
	if err != nil {
		// Without a trustworthy baseline no safe delta exists; abort
		// with no install attempted.
		metrics.RecordConnectionError(req.Tenant)
		logging.Error("Engine", err, "Reconcile run %s aborted: discovery failed", result.RunID)
		return nil, err
	}

	delta := ComputeDelta(req.Desired, req.ForceReinstall, snap)
	result.AlreadyInstalled = delta.AlreadyInstalled
	result.Unavailable = delta.Unavailable

	plan := ResolvePlan(delta.Candidates, snap)
	for _, name := range plan.Cyclic {
		result.Failed[name] = "cyclic dependency"
	}
	for name, missing := range plan.UnavailableDeps {
		logging.Warn("Engine", "Module %s excluded: dependency %s is not available", name, missing)
		result.Unavailable = append(result.Unavailable, name)
	}

	// Installed dependencies under the desired set count as AlreadyInstalled
	// even though nothing is done to them: a retry after a partial failure
	// must account for every module the previous call covered.
	result.AlreadyInstalled = append(result.AlreadyInstalled,
		satisfiedDependencies(req.Desired, snap, delta, plan)...)

	logging.Debug("Engine", "Run %s plan: %v", result.RunID, plan.Order)

	outcomes := e.installer.Run(ctx, req.Tenant, plan)
	for name, outcome := range outcomes {
		switch outcome.Kind {
		case OutcomeInstalled:
			result.Installed = append(result.Installed, name)
		case OutcomeFailed:
			result.Failed[name] = outcome.Reason
		case OutcomeSkippedDependency:
			result.Skipped = append(result.Skipped, name)
		case OutcomeSkippedCancellation:
			result.Cancelled = append(result.Cancelled, name)
		}
	}

	// Post-hoc validation: the runtime's word on what is installed beats
	// any per-call return code we saw above.
	validationErr := e.validate(ctx, req.Tenant, result)

	e.finalize(result, req, delta)

	if e.cfg.History != nil {
		if err := e.cfg.History.RecordRun(ctx, result); err != nil {
			logging.Warn("Engine", "Failed to record run %s: %v", result.RunID, err)
		}
	}

	metrics.RecordReconcile(req.Tenant, result.Success, result.Duration)
	metrics.RecordOutcomes(outcomeCounts(result))

	logging.Info("Engine", "Reconcile run %s finished: success=%t installed=%d already=%d unavailable=%d skipped=%d failed=%d",
		result.RunID, result.Success, len(result.Installed), len(result.AlreadyInstalled),
		len(result.Unavailable), len(result.Skipped)+len(result.Cancelled), len(result.Failed))

	if validationErr != nil {
		return result, validationErr
	}
	return result, nil
}

// validate downgrades reported outcomes that the runtime does not confirm.
// Returns an error only when the validation query itself cannot reach the
// runtime.
func (e *Engine) validate(ctx context.Context, tenant string, result *Result) error {
	names := make([]string, 0, len(result.Installed)+len(result.AlreadyInstalled))
	names = append(names, result.Installed...)
	names = append(names, result.AlreadyInstalled...)
	if len(names) == 0 {
		return nil
	}

	validateCtx, cancel := context.WithTimeout(ctx, e.cfg.DiscoveryTimeout)
	defer cancel()

	validated, err := e.validator.Validate(validateCtx, tenant, names)
	if err != nil {
		metrics.RecordConnectionError(tenant)
		logging.Error("Engine", err, "Post-install validation failed for tenant %s", tenant)
		return err
	}

	mismatched := make(map[string]bool)
	for _, name := range missingFrom(validated) {
		logging.Warn("Engine", "Validation mismatch: runtime does not report module %s as installed", name)
		result.Failed[name] = "validation mismatch: module not reported installed"
		mismatched[name] = true
	}
	if len(mismatched) > 0 {
		result.Installed = removeNames(result.Installed, mismatched)
		result.AlreadyInstalled = removeNames(result.AlreadyInstalled, mismatched)
	}
	return nil
}

// finalize sorts the result buckets, computes Success and stamps duration.
func (e *Engine) finalize(result *Result, req Request, delta Delta) {
	sort.Strings(result.AlreadyInstalled)
	sort.Strings(result.Installed)
	sort.Strings(result.Unavailable)
	sort.Strings(result.Skipped)
	sort.Strings(result.Cancelled)

	directUnavailable := make(map[string]bool, len(delta.Unavailable))
	for _, name := range delta.Unavailable {
		directUnavailable[name] = true
	}
	satisfied := make(map[string]bool, len(result.AlreadyInstalled)+len(result.Installed))
	for _, name := range result.AlreadyInstalled {
		satisfied[name] = true
	}
	for _, name := range result.Installed {
		satisfied[name] = true
	}

	result.Success = true
	for _, name := range req.Desired {
		if directUnavailable[name] {
			continue
		}
		if !satisfied[name] {
			result.Success = false
			break
		}
	}

	result.Duration = time.Since(result.Started)

	// A reconcile invalidates any cached snapshot for the tenant.
	e.cacheMu.Lock()
	delete(e.snapshots, result.Tenant)
	e.cacheMu.Unlock()
}

// Status partitions the tenant's modules by their runtime-reported state.
// It is a thin read-only wrapper over discovery and may serve from the
// snapshot cache.
func (e *Engine) Status(ctx context.Context, tenant string) (*Status, error) {
	snap, err := e.cachedSnapshot(ctx, tenant)
	if err != nil {
		return nil, err
	}

	status := &Status{Tenant: tenant}
	for _, name := range snap.AvailableNames() {
		switch snap.State(name) {
		case StateInstalled:
			status.Installed = append(status.Installed, name)
		case StateToInstall:
			status.ToInstall = append(status.ToInstall, name)
		case StateToUpgrade:
			status.ToUpgrade = append(status.ToUpgrade, name)
		default:
			status.Uninstalled = append(status.Uninstalled, name)
		}
	}
	return status, nil
}

// Validate reports, for each named module, whether the tenant runtime
// currently lists it as installed. It is independently callable as a
// diagnostic and may serve from the snapshot cache.
func (e *Engine) Validate(ctx context.Context, tenant string, modules []string) (map[string]bool, error) {
	if e.cfg.SnapshotTTL > 0 {
		e.cacheMu.Lock()
		snap := e.snapshots[tenant]
		e.cacheMu.Unlock()
		if snap != nil && snap.Age() < e.cfg.SnapshotTTL {
			result := make(map[string]bool, len(modules))
			for _, name := range modules {
				result[name] = snap.IsInstalled(name)
			}
			return result, nil
		}
	}

	validateCtx, cancel := context.WithTimeout(ctx, e.cfg.DiscoveryTimeout)
	defer cancel()
	return e.validator.Validate(validateCtx, tenant, modules)
}

// satisfiedDependencies walks the dependency graph under the desired set and
// returns, sorted, every installed module reached along the way that is not
// already claimed by another bucket. Scheduled modules (the force path) and
// direct delta buckets are excluded so each module keeps exactly one outcome.
func satisfiedDependencies(desired []string, snap *Snapshot, delta Delta, plan *Plan) []string {
	claimed := make(map[string]bool)
	for _, name := range delta.AlreadyInstalled {
		claimed[name] = true
	}
	for _, name := range delta.Unavailable {
		claimed[name] = true
	}
	for _, name := range plan.Order {
		claimed[name] = true
	}
	for _, name := range plan.Cyclic {
		claimed[name] = true
	}
	for name := range plan.UnavailableDeps {
		claimed[name] = true
	}

	seen := make(map[string]bool, len(desired))
	queue := make([]string, 0, len(desired))
	for _, name := range desired {
		if !seen[name] {
			seen[name] = true
			queue = append(queue, name)
		}
	}

	var satisfied []string
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range snap.Dependencies(current) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			queue = append(queue, dep)
			if snap.IsInstalled(dep) && !claimed[dep] {
				claimed[dep] = true
				satisfied = append(satisfied, dep)
			}
		}
	}
	sort.Strings(satisfied)
	return satisfied
}

// removeNames filters out the given names, preserving order.
func removeNames(names []string, drop map[string]bool) []string {
	kept := names[:0]
	for _, name := range names {
		if !drop[name] {
			kept = append(kept, name)
		}
	}
	return kept
}

// outcomeCounts tallies the result buckets for metrics.
func outcomeCounts(result *Result) map[string]int {
	return map[string]int{
		string(OutcomeAlreadyInstalled):    len(result.AlreadyInstalled),
		string(OutcomeInstalled):           len(result.Installed),
		string(OutcomeUnavailable):         len(result.Unavailable),
		string(OutcomeSkippedDependency):   len(result.Skipped),
		string(OutcomeSkippedCancellation): len(result.Cancelled),
		string(OutcomeFailed):              len(result.Failed),
	}
}
