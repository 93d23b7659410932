package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultFileName is the config file retailctl looks for in the working directory.
const DefaultFileName = "retailctl.yaml"

var ErrConfigExists = errors.New("config file already exists")

// FileConfig is the operator configuration used by retailctl.
type FileConfig struct {
	Project      string `yaml:"project"`
	Dataset      string `yaml:"dataset"`
	Location     string `yaml:"location"`
	Source       string `yaml:"source"`
	DatabaseDSN  string `yaml:"database_dsn,omitempty"`
	AnalyticsURL string `yaml:"analytics_url"`
}

func DefaultFileConfig() FileConfig {
	return FileConfig{
		Project:      "intelligent-retail-analytics",
		Dataset:      "retail_analytics",
		Location:     "US",
		Source:       "static",
		AnalyticsURL: "http://localhost:8083",
	}
}

// LoadFile reads a YAML config file. Missing keys keep their defaults and
// environment variables override file values.
func LoadFile(path string) (FileConfig, error) {
	cfg := DefaultFileConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	cfg.Project = GetEnv("GCP_PROJECT_ID", cfg.Project)
	cfg.Dataset = GetEnv("BIGQUERY_DATASET", cfg.Dataset)
	cfg.Source = GetEnv("ANALYTICS_SOURCE", cfg.Source)
	cfg.DatabaseDSN = GetEnv("ANALYTICS_DB_DSN", cfg.DatabaseDSN)
	cfg.AnalyticsURL = GetEnv("ANALYTICS_SERVICE_URL", cfg.AnalyticsURL)
	return cfg, nil
}

// WriteFile writes cfg as YAML. An existing file is only replaced when force is set.
func WriteFile(path string, cfg FileConfig, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%w: %s (use --force to overwrite)", ErrConfigExists, path)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}
