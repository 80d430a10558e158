package mock

import (
	"context"
	"errors"
	"sort"
	"sync"

	"modsync/internal/runtime"
)

// ModuleDef declares one module in a mock runtime's registry.
type ModuleDef struct {
	Name      string
	DependsOn []string
}

// Runtime is a scripted, in-memory implementation of runtime.Client.
//
// Tests configure its registry, pre-installed modules and failure behavior,
// then hand it to the engine. All methods are safe for concurrent use.
type Runtime struct {
	mu sync.Mutex

	// available is the registry: module name -> declared dependencies.
	available map[string][]string

	// installed is the per-tenant installed set.
	installed map[string]map[string]bool

	// failInstall maps module names to the error their install returns.
	failInstall map[string]error

	// unreachable makes every call fail with a ConnectionError.
	unreachable bool

	// installCalls records every install invocation in order, as
	// "tenant/module".
	installCalls []string

	// discoverCalls counts discovery invocations.
	discoverCalls int
}

// NewRuntime creates a mock runtime exposing the given modules.
func NewRuntime(modules ...ModuleDef) *Runtime {
	r := &Runtime{
		available:   make(map[string][]string),
		installed:   make(map[string]map[string]bool),
		failInstall: make(map[string]error),
	}
	for _, m := range modules {
		r.available[m.Name] = append([]string(nil), m.DependsOn...)
	}
	return r
}

// PreInstall marks modules as already installed for a tenant.
func (r *Runtime) PreInstall(tenant string, names ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.tenantSet(tenant)
	for _, name := range names {
		set[name] = true
	}
}

// FailInstall makes installing the named module return the given error.
// A nil error clears the failure.
func (r *Runtime) FailInstall(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err == nil {
		delete(r.failInstall, name)
		return
	}
	r.failInstall[name] = err
}

// SetUnreachable toggles connection failures for every call.
func (r *Runtime) SetUnreachable(unreachable bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unreachable = unreachable
}

// InstallCalls returns every install invocation so far, in order.
func (r *Runtime) InstallCalls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.installCalls...)
}

// DiscoverCalls returns how many discovery calls have been made.
func (r *Runtime) DiscoverCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.discoverCalls
}

// tenantSet returns the installed set for a tenant, creating it if needed.
// Callers must hold r.mu.
func (r *Runtime) tenantSet(tenant string) map[string]bool {
	set, ok := r.installed[tenant]
	if !ok {
		set = make(map[string]bool)
		r.installed[tenant] = set
	}
	return set
}

// DiscoverModules implements runtime.Client.
func (r *Runtime) DiscoverModules(ctx context.Context, tenant string) (*runtime.Discovery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.discoverCalls++

	if r.unreachable {
		return nil, &runtime.ConnectionError{Tenant: tenant, Err: errors.New("mock runtime unreachable")}
	}

	set := r.tenantSet(tenant)
	discovery := &runtime.Discovery{}
	for name := range set {
		discovery.Installed = append(discovery.Installed, name)
	}
	sort.Strings(discovery.Installed)

	names := make([]string, 0, len(r.available))
	for name := range r.available {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		state := "uninstalled"
		if set[name] {
			state = "installed"
		}
		discovery.Available = append(discovery.Available, runtime.ModuleInfo{
			Name:      name,
			State:     state,
			DependsOn: append([]string(nil), r.available[name]...),
		})
	}
	return discovery, nil
}

// InstallModule implements runtime.Client.
func (r *Runtime) InstallModule(ctx context.Context, tenant, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.installCalls = append(r.installCalls, tenant+"/"+name)

	if r.unreachable {
		return &runtime.ConnectionError{Tenant: tenant, Err: errors.New("mock runtime unreachable")}
	}
	if err, ok := r.failInstall[name]; ok {
		return err
	}
	if _, ok := r.available[name]; !ok {
		return &runtime.RPCError{Code: 404, Message: "module not found: " + name}
	}
	r.tenantSet(tenant)[name] = true
	return nil
}

// InstalledModules implements runtime.Client.
func (r *Runtime) InstalledModules(ctx context.Context, tenant string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.unreachable {
		return nil, &runtime.ConnectionError{Tenant: tenant, Err: errors.New("mock runtime unreachable")}
	}

	var installed []string
	for name := range r.tenantSet(tenant) {
		installed = append(installed, name)
	}
	sort.Strings(installed)
	return installed, nil
}
