package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest is a tenant's desired module state, stored as one YAML file per
// tenant (<manifestDir>/<tenant>.yaml).
type Manifest struct {
	// Modules is the desired module set.
	Modules []string `yaml:"modules"`

	// ForceReinstall opts specific installed modules into reinstallation
	// on the next reconcile. It should normally be empty.
	ForceReinstall []string `yaml:"forceReinstall,omitempty"`

	// Paused suspends reconciliation for this tenant without deleting
	// the manifest.
	Paused bool `yaml:"paused,omitempty"`
}

// LoadManifest reads and validates a tenant manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("malformed manifest %s: %w", path, err)
	}
	if len(manifest.Modules) == 0 {
		return nil, fmt.Errorf("manifest %s declares no modules", path)
	}
	return &manifest, nil
}

// manifestTenant derives the tenant name from a manifest file path, or ""
// if the file is not a manifest.
func manifestTenant(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	if ext != ".yaml" && ext != ".yml" {
		return ""
	}
	tenant := strings.TrimSuffix(base, ext)
	if tenant == "" || strings.HasPrefix(tenant, ".") {
		return ""
	}
	return tenant
}

// ListTenants returns the tenants that have a manifest file in dir, sorted.
func ListTenants(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var tenants []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if tenant := manifestTenant(entry.Name()); tenant != "" {
			tenants = append(tenants, tenant)
		}
	}
	sort.Strings(tenants)
	return tenants, nil
}

// ManifestPath returns the manifest file path for a tenant, preferring an
// existing .yaml over .yml.
func ManifestPath(dir, tenant string) string {
	yamlPath := filepath.Join(dir, tenant+".yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return yamlPath
	}
	ymlPath := filepath.Join(dir, tenant+".yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return ymlPath
	}
	return yamlPath
}
