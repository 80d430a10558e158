// Package engine implements the module reconciliation core: it brings a
// tenant runtime's installed-module set from its current state to a
// caller-requested desired state without ever silently destroying existing
// state.
//
// # Pipeline
//
// A Reconcile call runs a fixed pipeline, each stage working on call-scoped
// data only:
//
//	Discovery → Delta → Resolution → Installation → Validation
//
// Discovery snapshots the tenant's installed and available modules. The
// delta calculator partitions the desired set into already-installed,
// unavailable and candidate subsets. The resolver expands candidates with
// their not-yet-installed transitive dependencies, excludes anything blocked
// by a missing registry module, detects cycles, and emits a deterministic
// topological installation order (ties broken by module name). The installer
// executes the plan one module at a time, isolating failures to the failed
// module's dependency subtree. Validation re-queries the runtime so the
// final Result reflects what is actually installed, not what install calls
// claimed.
//
// # Guarantees
//
//   - Reconcile calls for one tenant are serialized; different tenants
//     proceed in parallel.
//   - A non-forced Reconcile never shrinks the installed set and never
//     re-submits an already-installed module.
//   - Re-invoking Reconcile with the same desired set is the documented way
//     to retry failures; it is safe immediately after a partial failure.
//   - The Result enumerates the fate of every requested module; there is no
//     silent partial success.
//
// Only a runtime connection failure aborts a call. Every other failure
// (unavailable module, dependency cycle, install error, timeout) is captured
// per module in the Result.
package engine
