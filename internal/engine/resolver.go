package engine

import (
	"sort"

	"modsync/pkg/logging"
)

// Plan is the output of dependency resolution: a deterministic,
// dependency-ordered install sequence plus every module that resolution had
// to exclude, with the reason it was excluded.
type Plan struct {
	// Order is the installation sequence. Dependencies of any module in
	// Order that are not already installed appear earlier in Order.
	Order []string

	// UnavailableDeps maps an excluded module to the missing registry
	// module that (directly or transitively) blocks it.
	UnavailableDeps map[string]string

	// Cyclic lists modules that participate in a dependency cycle,
	// sorted by name. They are excluded from Order; unrelated modules
	// still proceed.
	Cyclic []string

	// deps holds the dependency edges restricted to Order, used to
	// propagate install failures to dependents.
	deps map[string][]string
}

// TransitiveDependents returns every module in the plan that directly or
// transitively depends on the given module, sorted by name.
func (p *Plan) TransitiveDependents(name string) []string {
	dependents := make(map[string][]string, len(p.deps))
	for m, deps := range p.deps {
		for _, d := range deps {
			dependents[d] = append(dependents[d], m)
		}
	}

	seen := make(map[string]bool)
	frontier := []string{name}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, dep := range dependents[current] {
			if !seen[dep] {
				seen[dep] = true
				frontier = append(frontier, dep)
			}
		}
	}

	result := make([]string, 0, len(seen))
	for m := range seen {
		result = append(result, m)
	}
	sort.Strings(result)
	return result
}

// ResolvePlan expands the candidate set with its transitive dependencies and
// produces a deterministic topological installation order.
//
// Dependencies that the snapshot reports as installed are never scheduled:
// reinstalling a satisfied dependency is exactly the destructive behavior
// this engine exists to avoid. Candidates themselves may be installed (force
// path); they stay scheduled.
func ResolvePlan(candidates []string, snap *Snapshot) *Plan {
	// Phase 1: expand candidates along availability-graph edges.
	scheduled := make(map[string]bool, len(candidates))
	var queue []string
	for _, name := range candidates {
		if !scheduled[name] {
			scheduled[name] = true
			queue = append(queue, name)
		}
	}

	// missing records modules whose direct dependency is not in the
	// registry at all.
	missing := make(map[string]string)
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range snap.Dependencies(current) {
			if scheduled[dep] {
				continue
			}
			if snap.IsInstalled(dep) {
				// Already satisfied, nothing to schedule.
				continue
			}
			if !snap.IsAvailable(dep) {
				if _, ok := missing[current]; !ok {
					missing[current] = dep
				}
				continue
			}
			scheduled[dep] = true
			queue = append(queue, dep)
		}
	}

	// Phase 2: propagate unavailability to transitive dependents. The
	// recorded reason is always the root missing module, so callers see
	// what is actually absent from the registry.
	dependents := make(map[string][]string)
	for name := range scheduled {
		for _, dep := range snap.Dependencies(name) {
			if scheduled[dep] {
				dependents[dep] = append(dependents[dep], name)
			}
		}
	}

	blocked := make(map[string]string, len(missing))
	var frontier []string
	for name, dep := range missing {
		blocked[name] = dep
		frontier = append(frontier, name)
	}
	for len(frontier) > 0 {
		current := frontier[0]
		frontier = frontier[1:]
		for _, dependent := range dependents[current] {
			if _, ok := blocked[dependent]; !ok {
				blocked[dependent] = blocked[current]
				frontier = append(frontier, dependent)
			}
		}
	}
	if len(blocked) > 0 {
		logging.Debug("Resolver", "Excluded %d modules blocked by unavailable dependencies", len(blocked))
	}

	// Phase 3: Kahn's algorithm over the remaining subgraph. Among the
	// zero-in-degree nodes the lexicographically smallest name is always
	// selected, which makes the order fully deterministic.
	remaining := make(map[string]bool, len(scheduled))
	for name := range scheduled {
		if _, isBlocked := blocked[name]; !isBlocked {
			remaining[name] = true
		}
	}

	inDegree := make(map[string]int, len(remaining))
	planDeps := make(map[string][]string, len(remaining))
	for name := range remaining {
		var deps []string
		for _, dep := range snap.Dependencies(name) {
			if remaining[dep] {
				deps = append(deps, dep)
			}
		}
		sort.Strings(deps)
		planDeps[name] = deps
		inDegree[name] = len(deps)
	}

	var ready []string
	for name, degree := range inDegree {
		if degree == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	order := make([]string, 0, len(remaining))
	for len(ready) > 0 {
		current := ready[0]
		ready = ready[1:]
		order = append(order, current)

		for _, dependent := range dependents[current] {
			if !remaining[dependent] {
				continue
			}
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				idx := sort.SearchStrings(ready, dependent)
				ready = append(ready, "")
				copy(ready[idx+1:], ready[idx:])
				ready[idx] = dependent
			}
		}
	}

	// A non-empty remainder after exhausting zero-in-degree nodes means
	// those modules sit on (or behind) a cycle.
	var cyclic []string
	if len(order) < len(remaining) {
		ordered := make(map[string]bool, len(order))
		for _, name := range order {
			ordered[name] = true
		}
		for name := range remaining {
			if !ordered[name] {
				cyclic = append(cyclic, name)
				delete(planDeps, name)
			}
		}
		sort.Strings(cyclic)
		logging.Warn("Resolver", "Detected dependency cycle involving %d modules: %v", len(cyclic), cyclic)
	}

	return &Plan{
		Order:           order,
		UnavailableDeps: blocked,
		Cyclic:          cyclic,
		deps:            planDeps,
	}
}
