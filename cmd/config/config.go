package config

import (
	"fmt"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the server
type Config struct {
	// Server configuration
	Port int `envconfig:"PORT" default:"10850"`

	// Directory holding the settings file and the domain-state database.
	DataDir string `envconfig:"DATA_DIR" default:"."`

	// Optional overrides; when empty the paths are derived from DATA_DIR.
	SettingsPath string `envconfig:"SETTINGS_PATH" default:""`
	StateDBPath  string `envconfig:"STATE_DB_PATH" default:""`

	// How often the full in-memory domain state is flushed to storage.
	SaveIntervalSeconds int `envconfig:"SAVE_INTERVAL_SECONDS" default:"30"`

	// How often stale tab ids are swept out of domain records.
	TabSweepIntervalMinutes int `envconfig:"TAB_SWEEP_INTERVAL_MINUTES" default:"5"`
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		return nil, err
	}
	if err := validate(&config); err != nil {
		return nil, err
	}

	if config.SettingsPath == "" {
		config.SettingsPath = filepath.Join(config.DataDir, "settings.yaml")
	}
	if config.StateDBPath == "" {
		config.StateDBPath = filepath.Join(config.DataDir, "domain_states.db")
	}

	return &config, nil
}

func validate(config *Config) error {
	if config.Port <= 0 || config.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if config.DataDir == "" {
		return fmt.Errorf("DATA_DIR is required")
	}
	if config.SaveIntervalSeconds <= 0 {
		return fmt.Errorf("SAVE_INTERVAL_SECONDS must be greater than 0")
	}
	if config.TabSweepIntervalMinutes <= 0 {
		return fmt.Errorf("TAB_SWEEP_INTERVAL_MINUTES must be greater than 0")
	}

	return nil
}
