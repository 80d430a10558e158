package cmd

import (
	"fmt"

	"modsync/internal/config"
	"modsync/internal/engine"
	"modsync/internal/history"
	"modsync/internal/runtime"
)

// app bundles the wired components a command needs.
type app struct {
	cfg     config.Config
	engine  *engine.Engine
	history *history.Store
}

// close releases resources held by the app.
func (a *app) close() {
	if a.history != nil {
		a.history.Close()
	}
}

// setup loads configuration and wires the engine. Every command goes through
// here so flag/config precedence behaves identically everywhere.
func setup() (*app, error) {
	configPath := rootConfigPath
	if configPath == "" {
		configPath = config.GetDefaultConfigPathOrPanic()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}

	client := runtime.NewHTTPClient(runtime.HTTPClientConfig{
		Endpoint: cfg.Runtime.Endpoint,
		Login:    cfg.Runtime.Login,
		APIKey:   cfg.Runtime.APIKey,
		Timeout:  cfg.Runtime.Timeout.Std(),
	})

	a := &app{cfg: cfg}

	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return nil, fmt.Errorf("opening history store: %w", err)
		}
		a.history = store
	}

	engineCfg := engine.Config{
		Client:           client,
		DiscoveryTimeout: cfg.Engine.DiscoveryTimeout.Std(),
		InstallTimeout:   cfg.Engine.InstallTimeout.Std(),
		SnapshotTTL:      cfg.Engine.SnapshotTTL.Std(),
	}
	if a.history != nil {
		engineCfg.History = a.history
	}
	a.engine = engine.New(engineCfg)

	return a, nil
}
