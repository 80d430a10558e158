package engine

import (
	"sort"
	"time"

	"modsync/internal/runtime"
)

// InstallState is the runtime-reported installation state of a module.
// The engine never persists these; they are re-derived on every call.
type InstallState string

const (
	StateUninstalled InstallState = "uninstalled"
	StateToInstall   InstallState = "to install"
	StateInstalled   InstallState = "installed"
	StateToUpgrade   InstallState = "to upgrade"
	StateError       InstallState = "error"
)

// OutcomeKind classifies the fate of one requested or scheduled module
// within a single reconciliation.
type OutcomeKind string

const (
	// OutcomeAlreadyInstalled means the module was installed before the
	// call started and nothing was done to it.
	OutcomeAlreadyInstalled OutcomeKind = "AlreadyInstalled"

	// OutcomeInstalled means the module was installed by this call.
	OutcomeInstalled OutcomeKind = "Installed"

	// OutcomeUnavailable means the registry does not expose the module,
	// directly or through a missing transitive dependency.
	OutcomeUnavailable OutcomeKind = "Unavailable"

	// OutcomeSkippedDependency means a dependency of the module failed
	// earlier in the plan, so the module was never attempted.
	OutcomeSkippedDependency OutcomeKind = "SkippedDueToDependencyFailure"

	// OutcomeSkippedCancellation means the caller cancelled the call
	// before the module was attempted.
	OutcomeSkippedCancellation OutcomeKind = "SkippedDueToCancellation"

	// OutcomeFailed means the install was attempted and did not succeed,
	// or the module sits on a dependency cycle.
	OutcomeFailed OutcomeKind = "Failed"
)

// Outcome is the tagged per-module result. Reason is only set for
// OutcomeFailed and OutcomeUnavailable (when caused by a missing dependency).
type Outcome struct {
	Kind   OutcomeKind
	Reason string
}

// Request describes one reconciliation: bring the tenant's installed module
// set to cover Desired. ForceReinstall opts specific already-installed
// modules into reinstallation; it is never implicit.
type Request struct {
	Tenant         string
	Desired        []string
	ForceReinstall []string
}

// Result is the complete accounting of a reconciliation call. Every module
// named in the request (and every dependency that was scheduled) appears in
// exactly one bucket.
type Result struct {
	RunID  string
	Tenant string

	AlreadyInstalled []string
	Installed        []string
	Unavailable      []string
	Skipped          []string
	Cancelled        []string
	Failed           map[string]string // module -> reason

	// Success is true iff every requested module that the registry
	// exposes ended AlreadyInstalled or Installed. It is the source of
	// truth for callers, not individual per-call return codes.
	Success bool

	Started  time.Time
	Duration time.Duration
}

// Outcomes flattens the result buckets into a per-module map.
func (r *Result) Outcomes() map[string]Outcome {
	out := make(map[string]Outcome)
	for _, m := range r.AlreadyInstalled {
		out[m] = Outcome{Kind: OutcomeAlreadyInstalled}
	}
	for _, m := range r.Installed {
		out[m] = Outcome{Kind: OutcomeInstalled}
	}
	for _, m := range r.Unavailable {
		out[m] = Outcome{Kind: OutcomeUnavailable}
	}
	for _, m := range r.Skipped {
		out[m] = Outcome{Kind: OutcomeSkippedDependency}
	}
	for _, m := range r.Cancelled {
		out[m] = Outcome{Kind: OutcomeSkippedCancellation}
	}
	for m, reason := range r.Failed {
		out[m] = Outcome{Kind: OutcomeFailed, Reason: reason}
	}
	return out
}

// Status is the read-only partition of a tenant's modules by observed state.
type Status struct {
	Tenant      string
	Installed   []string
	ToInstall   []string
	ToUpgrade   []string
	Uninstalled []string
}

// Snapshot is the call-scoped view of a tenant runtime produced by
// discovery. All delta and resolution logic works off a Snapshot so that
// correctness never depends on ambient registry state.
type Snapshot struct {
	installed map[string]bool
	available map[string][]string
	states    map[string]InstallState
	taken     time.Time
}

// NewSnapshot builds a Snapshot from a raw discovery response.
func NewSnapshot(d *runtime.Discovery) *Snapshot {
	s := &Snapshot{
		installed: make(map[string]bool, len(d.Installed)),
		available: make(map[string][]string, len(d.Available)),
		states:    make(map[string]InstallState, len(d.Available)),
		taken:     time.Now(),
	}
	for _, name := range d.Installed {
		s.installed[name] = true
	}
	for _, m := range d.Available {
		deps := make([]string, len(m.DependsOn))
		copy(deps, m.DependsOn)
		s.available[m.Name] = deps
		s.states[m.Name] = InstallState(m.State)
	}
	return s
}

// IsInstalled reports whether the module was installed at discovery time.
func (s *Snapshot) IsInstalled(name string) bool {
	return s.installed[name]
}

// IsAvailable reports whether the registry exposes the module at all.
func (s *Snapshot) IsAvailable(name string) bool {
	_, ok := s.available[name]
	return ok
}

// Dependencies returns a copy of the declared dependencies of a module, or
// nil if the module is not available.
func (s *Snapshot) Dependencies(name string) []string {
	deps, ok := s.available[name]
	if !ok {
		return nil
	}
	depsCopy := make([]string, len(deps))
	copy(depsCopy, deps)
	return depsCopy
}

// State returns the runtime-reported install state of an available module.
func (s *Snapshot) State(name string) InstallState {
	if st, ok := s.states[name]; ok {
		return st
	}
	return StateUninstalled
}

// AvailableNames returns all registry-exposed module names, sorted.
func (s *Snapshot) AvailableNames() []string {
	names := make([]string, 0, len(s.available))
	for name := range s.available {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InstalledNames returns all installed module names, sorted.
func (s *Snapshot) InstalledNames() []string {
	names := make([]string, 0, len(s.installed))
	for name := range s.installed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Age returns how long ago the snapshot was taken.
func (s *Snapshot) Age() time.Duration {
	return time.Since(s.taken)
}
