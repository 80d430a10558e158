package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modsync/internal/runtime"
)

// orderIndex maps each module in an order to its position for precedence
// assertions.
func orderIndex(order []string) map[string]int {
	idx := make(map[string]int, len(order))
	for i, name := range order {
		idx[name] = i
	}
	return idx
}

func TestResolvePlanExpandsDependencies(t *testing.T) {
	snap := snapshotOf(nil,
		runtime.ModuleInfo{Name: "sale", DependsOn: []string{"stock", "account"}},
		runtime.ModuleInfo{Name: "stock", DependsOn: []string{"base"}},
		runtime.ModuleInfo{Name: "account", DependsOn: []string{"base"}},
		runtime.ModuleInfo{Name: "base"},
	)

	plan := ResolvePlan([]string{"sale"}, snap)

	require.Empty(t, plan.UnavailableDeps)
	require.Empty(t, plan.Cyclic)
	assert.ElementsMatch(t, []string{"base", "account", "stock", "sale"}, plan.Order)

	idx := orderIndex(plan.Order)
	assert.Less(t, idx["base"], idx["stock"])
	assert.Less(t, idx["base"], idx["account"])
	assert.Less(t, idx["stock"], idx["sale"])
	assert.Less(t, idx["account"], idx["sale"])
}

func TestResolvePlanDeterministicTieBreak(t *testing.T) {
	snap := snapshotOf(nil,
		runtime.ModuleInfo{Name: "zebra"},
		runtime.ModuleInfo{Name: "alpha"},
		runtime.ModuleInfo{Name: "mango"},
	)

	first := ResolvePlan([]string{"zebra", "alpha", "mango"}, snap)
	assert.Equal(t, []string{"alpha", "mango", "zebra"}, first.Order)

	// Identical inputs always produce identical orders.
	for i := 0; i < 20; i++ {
		plan := ResolvePlan([]string{"zebra", "alpha", "mango"}, snap)
		assert.Equal(t, first.Order, plan.Order)
	}
}

func TestResolvePlanSkipsInstalledDependencies(t *testing.T) {
	snap := snapshotOf([]string{"base"},
		runtime.ModuleInfo{Name: "sale", DependsOn: []string{"base"}},
		runtime.ModuleInfo{Name: "base", State: "installed"},
	)

	plan := ResolvePlan([]string{"sale"}, snap)

	assert.Equal(t, []string{"sale"}, plan.Order)
}

func TestResolvePlanInstalledCandidateStaysScheduled(t *testing.T) {
	// A candidate that is already installed reached the resolver via the
	// force path and must not be dropped.
	snap := snapshotOf([]string{"sale"},
		runtime.ModuleInfo{Name: "sale", State: "installed"},
	)

	plan := ResolvePlan([]string{"sale"}, snap)

	assert.Equal(t, []string{"sale"}, plan.Order)
}

func TestResolvePlanMissingDependencyBlocksSubtree(t *testing.T) {
	snap := snapshotOf(nil,
		runtime.ModuleInfo{Name: "reporting", DependsOn: []string{"warehouse"}},
		runtime.ModuleInfo{Name: "warehouse", DependsOn: []string{"ghost"}},
		runtime.ModuleInfo{Name: "crm"},
	)

	plan := ResolvePlan([]string{"reporting", "crm"}, snap)

	// The unrelated module still proceeds.
	assert.Equal(t, []string{"crm"}, plan.Order)

	// Both the module with the missing dependency and everything behind it
	// are excluded, and the reason names the root missing module.
	require.Contains(t, plan.UnavailableDeps, "warehouse")
	require.Contains(t, plan.UnavailableDeps, "reporting")
	assert.Equal(t, "ghost", plan.UnavailableDeps["warehouse"])
	assert.Equal(t, "ghost", plan.UnavailableDeps["reporting"])
}

func TestResolvePlanCycleDetection(t *testing.T) {
	snap := snapshotOf(nil,
		runtime.ModuleInfo{Name: "a", DependsOn: []string{"b"}},
		runtime.ModuleInfo{Name: "b", DependsOn: []string{"a"}},
		runtime.ModuleInfo{Name: "c", DependsOn: []string{"a"}},
		runtime.ModuleInfo{Name: "standalone"},
	)

	plan := ResolvePlan([]string{"a", "c", "standalone"}, snap)

	// The cycle and everything behind it is excluded; the rest proceeds.
	assert.Equal(t, []string{"standalone"}, plan.Order)
	assert.Equal(t, []string{"a", "b", "c"}, plan.Cyclic)
}

func TestResolvePlanEmptyCandidates(t *testing.T) {
	snap := snapshotOf(nil, runtime.ModuleInfo{Name: "a"})

	plan := ResolvePlan(nil, snap)

	assert.Empty(t, plan.Order)
	assert.Empty(t, plan.UnavailableDeps)
	assert.Empty(t, plan.Cyclic)
}

func TestTransitiveDependents(t *testing.T) {
	snap := snapshotOf(nil,
		runtime.ModuleInfo{Name: "base"},
		runtime.ModuleInfo{Name: "stock", DependsOn: []string{"base"}},
		runtime.ModuleInfo{Name: "sale", DependsOn: []string{"stock"}},
		runtime.ModuleInfo{Name: "crm", DependsOn: []string{"base"}},
		runtime.ModuleInfo{Name: "island"},
	)

	plan := ResolvePlan([]string{"sale", "crm", "island"}, snap)

	assert.Equal(t, []string{"crm", "sale", "stock"}, plan.TransitiveDependents("base"))
	assert.Equal(t, []string{"sale"}, plan.TransitiveDependents("stock"))
	assert.Empty(t, plan.TransitiveDependents("island"))
	assert.Empty(t, plan.TransitiveDependents("sale"))
}
