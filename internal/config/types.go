package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root modsync configuration.
type Config struct {
	Runtime  RuntimeConfig `yaml:"runtime"`
	Engine   EngineConfig  `yaml:"engine,omitempty"`
	Watch    WatchConfig   `yaml:"watch,omitempty"`
	History  HistoryConfig `yaml:"history,omitempty"`
	LogLevel string        `yaml:"logLevel,omitempty"` // debug, info, warn, error (default: info)
}

// RuntimeConfig describes how to reach the managed runtime's control API.
type RuntimeConfig struct {
	Endpoint string   `yaml:"endpoint"`          // Base URL of the control API, e.g. http://runtime.internal:8069
	Login    string   `yaml:"login,omitempty"`   // Control API login
	APIKey   string   `yaml:"apiKey,omitempty"`  // Control API key
	Timeout  Duration `yaml:"timeout,omitempty"` // Per-call HTTP timeout (default: 30s)
}

// EngineConfig tunes the reconciliation engine.
type EngineConfig struct {
	DiscoveryTimeout Duration `yaml:"discoveryTimeout,omitempty"` // Discovery/validation call budget (default: 30s)
	InstallTimeout   Duration `yaml:"installTimeout,omitempty"`   // Single-module install budget (default: 5m)
	SnapshotTTL      Duration `yaml:"snapshotTTL,omitempty"`      // Read-only discovery cache TTL (default: off)
}

// WatchConfig configures the desired-state manifest watcher.
type WatchConfig struct {
	ManifestDir      string   `yaml:"manifestDir,omitempty"`      // Directory of per-tenant manifest files
	WorkerCount      int      `yaml:"workerCount,omitempty"`      // Concurrent reconciliation workers (default: 2)
	DebounceInterval Duration `yaml:"debounceInterval,omitempty"` // Manifest change debounce (default: 500ms)
	MaxRetries       int      `yaml:"maxRetries,omitempty"`       // Retries for unreachable runtimes (default: 5)
	MetricsAddr      string   `yaml:"metricsAddr,omitempty"`      // Address for the /metrics endpoint (default: off)
}

// HistoryConfig configures the reconciliation run history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled,omitempty"`
	Path    string `yaml:"path,omitempty"` // SQLite file path (default: <config dir>/history.db)
}

// Duration wraps time.Duration so config files can say "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// GetDefaultConfig returns the built-in defaults applied before any file or
// flag overrides.
func GetDefaultConfig() Config {
	return Config{
		Runtime: RuntimeConfig{
			Endpoint: "http://localhost:8069",
			Timeout:  Duration(30 * time.Second),
		},
		Engine: EngineConfig{
			DiscoveryTimeout: Duration(30 * time.Second),
			InstallTimeout:   Duration(5 * time.Minute),
		},
		Watch: WatchConfig{
			WorkerCount:      2,
			DebounceInterval: Duration(500 * time.Millisecond),
			MaxRetries:       5,
		},
		LogLevel: "info",
	}
}
