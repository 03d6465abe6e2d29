package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/maeshinshin/mdnssd"
)

// fileConfig is the YAML configuration file. Finder settings sit at the top
// level next to the CLI-only ones.
type fileConfig struct {
	mdnssd.Config `yaml:",inline"`

	// MetricsAddr serves Prometheus metrics on /metrics when set.
	MetricsAddr string `yaml:"metrics_addr"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{Config: mdnssd.DefaultConfig()}
}

// loadConfig reads path over the defaults. An empty path yields the defaults.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}
