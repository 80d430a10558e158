package engine

import (
	"context"
	"sort"

	"modsync/internal/runtime"
)

// Validator re-queries a tenant runtime and checks which of the named
// modules are actually installed. It never trusts earlier per-call return
// codes; a runtime that reports install success but does not list the module
// as installed produces a false entry here.
type Validator struct {
	client runtime.Client
}

// NewValidator creates a Validator.
func NewValidator(client runtime.Client) *Validator {
	return &Validator{client: client}
}

// Validate returns, for each named module, whether the runtime currently
// lists it as installed. Duplicate names collapse to one entry. The only
// error returned is a connection failure.
func (v *Validator) Validate(ctx context.Context, tenant string, modules []string) (map[string]bool, error) {
	installed, err := v.client.InstalledModules(ctx, tenant)
	if err != nil {
		return nil, err
	}

	installedSet := make(map[string]bool, len(installed))
	for _, name := range installed {
		installedSet[name] = true
	}

	result := make(map[string]bool, len(modules))
	for _, name := range modules {
		result[name] = installedSet[name]
	}
	return result, nil
}

// missingFrom returns the sorted subset of modules mapped to false.
func missingFrom(validated map[string]bool) []string {
	var missing []string
	for name, ok := range validated {
		if !ok {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
