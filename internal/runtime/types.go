package runtime

import (
	"context"
	"errors"
	"fmt"
)

// ModuleInfo describes a module as reported by a tenant runtime's registry.
type ModuleInfo struct {
	// Name is the unique module identifier, stable across calls.
	Name string `json:"name"`

	// State is the runtime-reported installation state
	// ("uninstalled", "to install", "installed", "to upgrade", "error").
	State string `json:"state"`

	// DependsOn lists the names of modules this module requires.
	DependsOn []string `json:"depends_on,omitempty"`
}

// Discovery is the snapshot a tenant runtime returns for a discovery call.
//
// Installed and Available are independent views: a module can be available
// but not installed, and (after registry pruning) installed but no longer
// available.
type Discovery struct {
	// Installed is the set of currently installed module names.
	Installed []string `json:"installed"`

	// Available lists every module the registry currently exposes,
	// together with its declared dependencies and state.
	Available []ModuleInfo `json:"available"`
}

// Client is the control surface of a managed tenant runtime.
//
// The engine never talks to a runtime through anything else; tests substitute
// a scripted implementation. All methods are blocking I/O and honor the
// context deadline.
type Client interface {
	// DiscoverModules returns the installed and available module sets for
	// a tenant. Transport failures surface as *ConnectionError.
	DiscoverModules(ctx context.Context, tenant string) (*Discovery, error)

	// InstallModule installs a single named module in the tenant runtime.
	// It must only be called for modules the caller has classified as not
	// yet installed, or that were explicitly forced.
	InstallModule(ctx context.Context, tenant, name string) error

	// InstalledModules returns the names of currently installed modules.
	InstalledModules(ctx context.Context, tenant string) ([]string, error)
}

// ConnectionError indicates the tenant runtime could not be reached at all.
// It is the only error class that aborts a whole reconciliation.
type ConnectionError struct {
	Tenant string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("cannot reach runtime for tenant %s: %v", e.Tenant, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// IsConnectionError checks if an error is or wraps a *ConnectionError.
func IsConnectionError(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// RPCError is an application-level error returned by the runtime's control
// endpoint (the runtime was reachable but rejected or failed the operation).
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("runtime error %d: %s", e.Code, e.Message)
}
