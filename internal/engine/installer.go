package engine

import (
	"context"
	"errors"
	"time"

	"modsync/internal/runtime"
	"modsync/pkg/logging"
)

// Installer executes an installation plan against a tenant runtime, one
// module at a time. Sequential execution is deliberate: a single-module
// install mutates shared tenant state, and batching is what makes naive
// reconcilers destructive.
type Installer struct {
	client  runtime.Client
	timeout time.Duration
}

// NewInstaller creates an Installer. timeout bounds each single-module
// install call; zero means 5 minutes.
func NewInstaller(client runtime.Client, timeout time.Duration) *Installer {
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return &Installer{client: client, timeout: timeout}
}

// Run walks the plan strictly in order and returns an outcome for every
// module in it. A failed or timed-out install marks the module Failed and
// every not-yet-attempted transitive dependent SkippedDueToDependencyFailure;
// modules with no dependency relationship to the failure are still attempted.
// Cancellation marks the untouched remainder SkippedDueToCancellation so the
// caller always receives a complete accounting.
//
// No retries happen here: re-invoking Reconcile with the same desired set is
// the documented recovery path.
func (i *Installer) Run(ctx context.Context, tenant string, plan *Plan) map[string]Outcome {
	outcomes := make(map[string]Outcome, len(plan.Order))

	for _, name := range plan.Order {
		if _, decided := outcomes[name]; decided {
			continue
		}

		if ctx.Err() != nil {
			outcomes[name] = Outcome{Kind: OutcomeSkippedCancellation}
			continue
		}

		installCtx, cancel := context.WithTimeout(ctx, i.timeout)
		err := i.client.InstallModule(installCtx, tenant, name)
		cancel()

		if err == nil {
			logging.Info("Installer", "Installed module %s for tenant %s", name, tenant)
			outcomes[name] = Outcome{Kind: OutcomeInstalled}
			continue
		}

		reason := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			reason = "timeout"
		}
		logging.Error("Installer", err, "Install of module %s failed for tenant %s", name, tenant)
		outcomes[name] = Outcome{Kind: OutcomeFailed, Reason: reason}

		// Everything downstream of the failure can no longer succeed
		// in this call; take it out of the running before it is
		// attempted.
		for _, dependent := range plan.TransitiveDependents(name) {
			if _, decided := outcomes[dependent]; !decided {
				outcomes[dependent] = Outcome{Kind: OutcomeSkippedDependency}
			}
		}
	}

	return outcomes
}
