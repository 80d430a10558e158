package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0o644))
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())

	require.NoError(t, err)
	assert.Equal(t, GetDefaultConfig(), cfg)
	assert.Equal(t, "http://localhost:8069", cfg.Runtime.Endpoint)
	assert.Equal(t, 30*time.Second, cfg.Runtime.Timeout.Std())
	assert.Equal(t, 5*time.Minute, cfg.Engine.InstallTimeout.Std())
	assert.Equal(t, 2, cfg.Watch.WorkerCount)
}

func TestLoadConfigOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
runtime:
  endpoint: http://erp.internal:8069
  login: sync-bot
  apiKey: s3cret
  timeout: 45s
engine:
  installTimeout: 10m
  snapshotTTL: 15s
watch:
  manifestDir: /var/lib/modsync/manifests
  workerCount: 4
logLevel: debug
`)

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, "http://erp.internal:8069", cfg.Runtime.Endpoint)
	assert.Equal(t, "sync-bot", cfg.Runtime.Login)
	assert.Equal(t, "s3cret", cfg.Runtime.APIKey)
	assert.Equal(t, 45*time.Second, cfg.Runtime.Timeout.Std())
	assert.Equal(t, 10*time.Minute, cfg.Engine.InstallTimeout.Std())
	assert.Equal(t, 15*time.Second, cfg.Engine.SnapshotTTL.Std())
	assert.Equal(t, "/var/lib/modsync/manifests", cfg.Watch.ManifestDir)
	assert.Equal(t, 4, cfg.Watch.WorkerCount)
	assert.Equal(t, "debug", cfg.LogLevel)

	// Unset keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Engine.DiscoveryTimeout.Std())
	assert.Equal(t, 5, cfg.Watch.MaxRetries)
}

func TestLoadConfigMalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "runtime: [not a mapping")

	_, err := LoadConfig(dir)
	require.Error(t, err)
}

func TestLoadConfigInvalidDuration(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
runtime:
  timeout: soon
`)

	_, err := LoadConfig(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid duration")
}

func TestLoadConfigHistoryPathDefaultsToConfigDir(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
history:
  enabled: true
`)

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, filepath.Join(dir, "history.db"), cfg.History.Path)
}

func TestLoadConfigHistoryPathExplicit(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
history:
  enabled: true
  path: /tmp/custom.db
`)

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, "/tmp/custom.db", cfg.History.Path)
}
