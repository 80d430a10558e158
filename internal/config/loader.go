package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modsync/pkg/logging"

	"gopkg.in/yaml.v3"
)

const (
	userConfigDir  = ".config/modsync"
	configFileName = "config.yaml"
)

// GetDefaultConfigPathOrPanic returns the per-user configuration directory.
func GetDefaultConfigPathOrPanic() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		panic(fmt.Errorf("could not determine user config directory: %w", err))
	}
	return filepath.Join(homeDir, userConfigDir)
}

// LoadConfig loads configuration from the specified directory. The directory
// should contain config.yaml; a missing file yields the built-in defaults,
// a malformed file is an error.
func LoadConfig(configPath string) (Config, error) {
	configFilePath := filepath.Join(configPath, configFileName)
	config := GetDefaultConfig()

	data, err := os.ReadFile(configFilePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logging.Info("ConfigLoader", "No config.yaml found at %s, using defaults", configFilePath)
			return config, nil
		}
		return Config{}, err
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		// config malformed
		return Config{}, fmt.Errorf("error loading config from %s: %w", configFilePath, err)
	}

	if config.History.Enabled && config.History.Path == "" {
		config.History.Path = filepath.Join(configPath, "history.db")
	}

	logging.Info("ConfigLoader", "Loaded configuration from %s", configFilePath)
	return config, nil
}
