package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modsync/internal/runtime"
	"modsync/internal/testing/mock"
)

func newTestEngine(rt runtime.Client) *Engine {
	return New(Config{Client: rt})
}

func TestReconcileFreshInstallWithDependencies(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "account", DependsOn: []string{"base"}},
		mock.ModuleDef{Name: "sale", DependsOn: []string{"account"}},
	)
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"sale"},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.NotEmpty(t, result.RunID)
	assert.Equal(t, []string{"account", "base", "sale"}, result.Installed)
	assert.Empty(t, result.AlreadyInstalled)
	assert.Empty(t, result.Failed)

	// Dependencies were submitted before their dependents, one at a time.
	assert.Equal(t, []string{"acme/base", "acme/account", "acme/sale"}, rt.InstallCalls())
}

func TestReconcileIsIdempotent(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "crm", DependsOn: []string{"base"}},
	)
	eng := newTestEngine(rt)
	req := Request{Tenant: "acme", Desired: []string{"crm"}}

	first, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	require.True(t, first.Success)
	installsAfterFirst := len(rt.InstallCalls())

	second, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, []string{"base", "crm"}, second.AlreadyInstalled)
	assert.Empty(t, second.Installed)

	// The second run submitted nothing.
	assert.Equal(t, installsAfterFirst, len(rt.InstallCalls()))
}

func TestReconcileNeverTouchesInstalledModules(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "sale", DependsOn: []string{"base"}},
	)
	rt.PreInstall("acme", "base")
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"sale", "base"},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"base"}, result.AlreadyInstalled)
	assert.Equal(t, []string{"sale"}, result.Installed)
	assert.Equal(t, []string{"acme/sale"}, rt.InstallCalls())
}

func TestReconcileInstalledModuleGoneFromRegistry(t *testing.T) {
	// A module that is installed but no longer exposed by the registry is
	// still satisfied; the engine must not try to do anything to it.
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	rt.PreInstall("acme", "retired_module")
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"retired_module", "crm"},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"retired_module"}, result.AlreadyInstalled)
	assert.Equal(t, []string{"crm"}, result.Installed)
}

func TestReconcileUnavailableModuleDoesNotBlockOthers(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"ghost", "crm"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"ghost"}, result.Unavailable)
	assert.Equal(t, []string{"crm"}, result.Installed)

	// Success covers the requested modules the registry exposes; the
	// unavailable one is accounted for in its own bucket.
	assert.True(t, result.Success)
}

func TestReconcileMissingTransitiveDependency(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "reporting", DependsOn: []string{"warehouse"}},
		mock.ModuleDef{Name: "warehouse", DependsOn: []string{"ghost"}},
		mock.ModuleDef{Name: "crm"},
	)
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"reporting", "crm"},
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"reporting", "warehouse"}, result.Unavailable)
	assert.Equal(t, []string{"crm"}, result.Installed)
	assert.False(t, result.Success)
	assert.NotContains(t, rt.InstallCalls(), "acme/reporting")
	assert.NotContains(t, rt.InstallCalls(), "acme/warehouse")
}

func TestReconcileFailureIsolation(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "stock", DependsOn: []string{"base"}},
		mock.ModuleDef{Name: "sale", DependsOn: []string{"stock"}},
		mock.ModuleDef{Name: "crm"},
	)
	rt.FailInstall("stock", errors.New("data migration failed"))
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"sale", "crm"},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "data migration failed", result.Failed["stock"])
	assert.Equal(t, []string{"sale"}, result.Skipped)
	assert.Contains(t, result.Installed, "crm")
	assert.Contains(t, result.Installed, "base")
}

func TestReconcileRetryAfterFailureConverges(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "sale", DependsOn: []string{"base"}},
	)
	rt.FailInstall("sale", errors.New("transient error"))
	eng := newTestEngine(rt)
	req := Request{Tenant: "acme", Desired: []string{"sale"}}

	first, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	require.False(t, first.Success)
	require.Contains(t, first.Failed, "sale")

	// The failure clears; re-invoking the identical request converges
	// without re-touching what already succeeded.
	rt.FailInstall("sale", nil)

	second, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, []string{"base"}, second.AlreadyInstalled)
	assert.Equal(t, []string{"sale"}, second.Installed)
}

func TestReconcileRerunReportsSatisfiedDependencies(t *testing.T) {
	// A dependency installed by a previous partial run is not requested and
	// not rescheduled, but it still belongs in the retry's accounting.
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "etl"},
		mock.ModuleDef{Name: "store"},
		mock.ModuleDef{Name: "reporting", DependsOn: []string{"etl", "store"}},
	)
	rt.FailInstall("store", errors.New("install script crashed"))
	eng := newTestEngine(rt)
	req := Request{Tenant: "acme", Desired: []string{"reporting"}}

	first, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, []string{"etl"}, first.Installed)
	require.Equal(t, "install script crashed", first.Failed["store"])
	require.Equal(t, []string{"reporting"}, first.Skipped)

	rt.FailInstall("store", nil)

	second, err := eng.Reconcile(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, second.Success)
	assert.Equal(t, []string{"etl"}, second.AlreadyInstalled)
	assert.Equal(t, []string{"reporting", "store"}, second.Installed)

	// The satisfied dependency was never resubmitted.
	installsOfETL := 0
	for _, call := range rt.InstallCalls() {
		if call == "acme/etl" {
			installsOfETL++
		}
	}
	assert.Equal(t, 1, installsOfETL)
}

func TestReconcileConnectionErrorAborts(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	rt.SetUnreachable(true)
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"crm"},
	})

	require.Error(t, err)
	assert.True(t, runtime.IsConnectionError(err))
	assert.Nil(t, result)
	assert.Empty(t, rt.InstallCalls())
}

func TestReconcileForceReinstall(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "base"},
		mock.ModuleDef{Name: "crm", DependsOn: []string{"base"}},
	)
	rt.PreInstall("acme", "base", "crm")
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:         "acme",
		Desired:        []string{"crm", "base"},
		ForceReinstall: []string{"crm"},
	})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, []string{"crm"}, result.Installed)
	assert.Equal(t, []string{"base"}, result.AlreadyInstalled)

	// Only the forced module was resubmitted; its installed dependency
	// was left alone.
	assert.Equal(t, []string{"acme/crm"}, rt.InstallCalls())
}

func TestReconcileCycleFailsSubtreeOnly(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "a", DependsOn: []string{"b"}},
		mock.ModuleDef{Name: "b", DependsOn: []string{"a"}},
		mock.ModuleDef{Name: "standalone"},
	)
	eng := newTestEngine(rt)

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"a", "standalone"},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "cyclic dependency", result.Failed["a"])
	assert.Equal(t, "cyclic dependency", result.Failed["b"])
	assert.Equal(t, []string{"standalone"}, result.Installed)
}

// lyingRuntime hides one module from every installed-modules report, so a
// reported install success is never confirmed.
type lyingRuntime struct {
	*mock.Runtime
	hide string
}

func (l *lyingRuntime) InstalledModules(ctx context.Context, tenant string) ([]string, error) {
	installed, err := l.Runtime.InstalledModules(ctx, tenant)
	if err != nil {
		return nil, err
	}
	kept := installed[:0]
	for _, name := range installed {
		if name != l.hide {
			kept = append(kept, name)
		}
	}
	return kept, nil
}

func TestReconcileValidationMismatchDowngradesOutcome(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "crm"},
		mock.ModuleDef{Name: "inventory"},
	)
	eng := newTestEngine(&lyingRuntime{Runtime: rt, hide: "crm"})

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"crm", "inventory"},
	})

	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "validation mismatch: module not reported installed", result.Failed["crm"])
	assert.NotContains(t, result.Installed, "crm")
	assert.Equal(t, []string{"inventory"}, result.Installed)
}

// unreachableAfterInstalls makes validation fail with a connection error
// while leaving discovery and installs working.
type unreachableAfterInstalls struct {
	*mock.Runtime
}

func (u *unreachableAfterInstalls) InstalledModules(ctx context.Context, tenant string) ([]string, error) {
	return nil, &runtime.ConnectionError{Tenant: tenant, Err: errors.New("connection reset")}
}

func TestReconcileValidationConnectionErrorReturnsPartialResult(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	eng := newTestEngine(&unreachableAfterInstalls{Runtime: rt})

	result, err := eng.Reconcile(context.Background(), Request{
		Tenant:  "acme",
		Desired: []string{"crm"},
	})

	require.Error(t, err)
	assert.True(t, runtime.IsConnectionError(err))

	// The partial accounting is still returned alongside the error.
	require.NotNil(t, result)
	assert.Equal(t, []string{"crm"}, result.Installed)
}

func TestReconcileTenantsDoNotInterfere(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	eng := newTestEngine(rt)

	var wg sync.WaitGroup
	var mu sync.Mutex
	results := make(map[string]*Result)
	errs := make(map[string]error)
	for _, tenant := range []string{"acme", "globex", "initech"} {
		wg.Add(1)
		go func(tenant string) {
			defer wg.Done()
			result, err := eng.Reconcile(context.Background(), Request{
				Tenant:  tenant,
				Desired: []string{"crm"},
			})
			mu.Lock()
			results[tenant] = result
			errs[tenant] = err
			mu.Unlock()
		}(tenant)
	}
	wg.Wait()

	for tenant, result := range results {
		require.NoError(t, errs[tenant], "tenant %s", tenant)
		assert.True(t, result.Success, "tenant %s", tenant)
		assert.Equal(t, []string{"crm"}, result.Installed, "tenant %s", tenant)
	}
}

// slowInstallClient stretches every install so overlapping calls would be
// observable.
type slowInstallClient struct {
	runtime.Client
	delay time.Duration
}

func (c *slowInstallClient) InstallModule(ctx context.Context, tenant, name string) error {
	time.Sleep(c.delay)
	return c.Client.InstallModule(ctx, tenant, name)
}

func TestReconcileSameTenantIsSerialized(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "a"}, mock.ModuleDef{Name: "b"})
	eng := newTestEngine(&slowInstallClient{Client: rt, delay: 20 * time.Millisecond})
	req := Request{Tenant: "acme", Desired: []string{"a", "b"}}

	var wg sync.WaitGroup
	var mu sync.Mutex
	var results []*Result
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := eng.Reconcile(context.Background(), req)
			mu.Lock()
			results = append(results, result)
			if err != nil {
				t.Errorf("reconcile failed: %v", err)
			}
			mu.Unlock()
		}()
	}
	wg.Wait()

	// Serialized runs mean the second call discovers the first call's
	// installs and submits nothing: each module is installed exactly once.
	assert.ElementsMatch(t, []string{"acme/a", "acme/b"}, rt.InstallCalls())

	require.Len(t, results, 2)
	for _, result := range results {
		assert.True(t, result.Success)
	}
	installedRuns := 0
	alreadyRuns := 0
	for _, result := range results {
		if len(result.Installed) == 2 {
			installedRuns++
		}
		if len(result.AlreadyInstalled) == 2 {
			alreadyRuns++
		}
	}
	assert.Equal(t, 1, installedRuns)
	assert.Equal(t, 1, alreadyRuns)
}

func TestStatusPartitionsByState(t *testing.T) {
	rt := mock.NewRuntime(
		mock.ModuleDef{Name: "crm"},
		mock.ModuleDef{Name: "sale"},
	)
	rt.PreInstall("acme", "crm")
	eng := newTestEngine(rt)

	status, err := eng.Status(context.Background(), "acme")

	require.NoError(t, err)
	assert.Equal(t, "acme", status.Tenant)
	assert.Equal(t, []string{"crm"}, status.Installed)
	assert.Equal(t, []string{"sale"}, status.Uninstalled)
}

func TestValidateReportsPerModule(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"}, mock.ModuleDef{Name: "sale"})
	rt.PreInstall("acme", "crm")
	eng := newTestEngine(rt)

	validated, err := eng.Validate(context.Background(), "acme", []string{"crm", "sale"})

	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"crm": true, "sale": false}, validated)
}

func TestSnapshotCacheServesReadsAndReconcileInvalidates(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	eng := New(Config{Client: rt, SnapshotTTL: time.Minute})

	_, err := eng.Status(context.Background(), "acme")
	require.NoError(t, err)
	_, err = eng.Status(context.Background(), "acme")
	require.NoError(t, err)

	// The second Status was served from cache.
	assert.Equal(t, 1, rt.DiscoverCalls())

	// Reconcile always discovers fresh and drops the cache afterwards.
	_, err = eng.Reconcile(context.Background(), Request{Tenant: "acme", Desired: []string{"crm"}})
	require.NoError(t, err)
	assert.Equal(t, 2, rt.DiscoverCalls())

	_, err = eng.Status(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, 3, rt.DiscoverCalls())
}

// recordingHistory captures recorded runs.
type recordingHistory struct {
	mu   sync.Mutex
	runs []*Result
}

func (h *recordingHistory) RecordRun(ctx context.Context, result *Result) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.runs = append(h.runs, result)
	return nil
}

func TestReconcileRecordsRunHistory(t *testing.T) {
	rt := mock.NewRuntime(mock.ModuleDef{Name: "crm"})
	hist := &recordingHistory{}
	eng := New(Config{Client: rt, History: hist})

	result, err := eng.Reconcile(context.Background(), Request{Tenant: "acme", Desired: []string{"crm"}})
	require.NoError(t, err)

	require.Len(t, hist.runs, 1)
	assert.Equal(t, result.RunID, hist.runs[0].RunID)
	assert.Equal(t, "acme", hist.runs[0].Tenant)
}

func TestResultOutcomesCoverEveryBucket(t *testing.T) {
	result := &Result{
		AlreadyInstalled: []string{"a"},
		Installed:        []string{"b"},
		Unavailable:      []string{"c"},
		Skipped:          []string{"d"},
		Cancelled:        []string{"e"},
		Failed:           map[string]string{"f": "boom"},
	}

	outcomes := result.Outcomes()

	assert.Equal(t, Outcome{Kind: OutcomeAlreadyInstalled}, outcomes["a"])
	assert.Equal(t, Outcome{Kind: OutcomeInstalled}, outcomes["b"])
	assert.Equal(t, Outcome{Kind: OutcomeUnavailable}, outcomes["c"])
	assert.Equal(t, Outcome{Kind: OutcomeSkippedDependency}, outcomes["d"])
	assert.Equal(t, Outcome{Kind: OutcomeSkippedCancellation}, outcomes["e"])
	assert.Equal(t, Outcome{Kind: OutcomeFailed, Reason: "boom"}, outcomes["f"])
}
