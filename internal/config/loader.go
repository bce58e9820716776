package config

import (
	"evewatch/internal/types"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default returns a configuration with all defaults applied
func Default() *types.Config {
	var cfg types.Config
	applyDefaults(&cfg)
	return &cfg
}

// LoadConfig reads the configuration from the given path
func LoadConfig(path string) (*types.Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var cfg types.Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// applyDefaults fills unset fields with working defaults
func applyDefaults(cfg *types.Config) {
	if cfg.Input.EveLogPath == "" {
		cfg.Input.EveLogPath = "/var/log/suricata/eve.json"
	}
	if cfg.Input.PollIntervalSeconds <= 0 {
		cfg.Input.PollIntervalSeconds = 10
	}
	if cfg.Input.ReplayLines <= 0 {
		cfg.Input.ReplayLines = 1000
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3000"
	}
	if cfg.Storage.DBPath == "" {
		cfg.Storage.DBPath = "evewatch.db"
	}
	if cfg.Debug.GeneratorIntervalSeconds <= 0 {
		cfg.Debug.GeneratorIntervalSeconds = 5
	}
}
