// Package config handles nornictrav configuration via YAML files and environment variables.
//
// Configuration Precedence (highest to lowest):
//  1. Command-line flags (--engine, --mode, etc.)
//  2. Environment variables (NORNICTRAV_*)
//  3. Config file (config.yaml)
//  4. Built-in defaults
//
// Example Usage:
//
//	cfg, err := config.LoadFromFile(config.FindConfigFile())
//	if err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("Invalid config: %v", err)
//	}
//
// Environment Variables (all use NORNICTRAV_ prefix):
//
// Storage:
//   - NORNICTRAV_ENGINE="memory" or "badger"
//   - NORNICTRAV_DATA_DIR="./data"
//   - NORNICTRAV_IN_MEMORY=true
//   - NORNICTRAV_SYNC_WRITES=true
//   - NORNICTRAV_LOW_MEMORY=true
//
// Traversal:
//   - NORNICTRAV_MODE="standard" or "linear"
//   - NORNICTRAV_DISABLED_STRATEGIES="IdentityRemovalStrategy"
//
// Logging:
//   - NORNICTRAV_LOG_LEVEL="INFO"
//   - NORNICTRAV_VERBOSE=true
//
// Metrics:
//   - NORNICTRAV_METRICS_ENABLED=true
//   - NORNICTRAV_METRICS_NAMESPACE="nornictrav"
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by this package.
const EnvPrefix = "NORNICTRAV_"

// Storage engines accepted by StorageConfig.Engine.
const (
	EngineMemory = "memory"
	EngineBadger = "badger"
)

// Config holds all nornictrav configuration.
//
// Configuration is organized into logical sections:
//   - Storage: which graph store merge steps run against
//   - Traversal: execution mode and strategy selection
//   - Logging: log level and verbose event/strategy logging
//   - Metrics: Prometheus collectors
type Config struct {
	Storage   StorageConfig
	Traversal TraversalConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// StorageConfig selects and tunes the graph store.
type StorageConfig struct {
	// Engine is "memory" or "badger".
	Engine string
	// DataDir is the Badger data directory.
	DataDir string
	// InMemory runs Badger without touching disk.
	InMemory bool
	// SyncWrites fsyncs every Badger write.
	SyncWrites bool
	// LowMemory shrinks Badger's caches and memtables.
	LowMemory bool
}

// TraversalConfig controls how traversals are compiled.
type TraversalConfig struct {
	// Mode is "standard" or "linear".
	Mode string
	// DisabledStrategies are removed from the default strategy set by name.
	DisabledStrategies []string
}

// LoggingConfig controls logging.
type LoggingConfig struct {
	// Level is DEBUG, INFO, WARN or ERROR.
	Level string
	// Verbose logs every mutation event and strategy rewrite.
	Verbose bool
}

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Namespace string
}

// LoadDefaults returns a Config with built-in defaults.
func LoadDefaults() *Config {
	return &Config{
		Storage: StorageConfig{
			Engine:  EngineMemory,
			DataDir: "./data",
		},
		Traversal: TraversalConfig{
			Mode: "standard",
		},
		Logging: LoggingConfig{
			Level: "INFO",
		},
		Metrics: MetricsConfig{
			Namespace: "nornictrav",
		},
	}
}

// LoadFromEnv returns the defaults overridden by NORNICTRAV_* variables.
func LoadFromEnv() *Config {
	config := LoadDefaults()
	applyEnvVars(config)
	return config
}

// YAMLConfig mirrors the configuration file layout.
type YAMLConfig struct {
	Storage struct {
		Engine     string `yaml:"engine"`
		DataDir    string `yaml:"data_dir"`
		InMemory   *bool  `yaml:"in_memory"`
		SyncWrites *bool  `yaml:"sync_writes"`
		LowMemory  *bool  `yaml:"low_memory"`
	} `yaml:"storage"`

	Traversal struct {
		Mode               string   `yaml:"mode"`
		DisabledStrategies []string `yaml:"disabled_strategies"`
	} `yaml:"traversal"`

	Logging struct {
		Level   string `yaml:"level"`
		Verbose *bool  `yaml:"verbose"`
	} `yaml:"logging"`

	Metrics struct {
		Enabled   *bool  `yaml:"enabled"`
		Namespace string `yaml:"namespace"`
	} `yaml:"metrics"`
}

// LoadFromFile loads defaults, then the YAML file at configPath, then
// environment variables. A missing file (or an empty path) is not an error.
func LoadFromFile(configPath string) (*Config, error) {
	config := LoadDefaults()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := applyYAML(config, data); err != nil {
				return nil, err
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	applyEnvVars(config)
	return config, nil
}

func applyYAML(config *Config, data []byte) error {
	var yamlCfg YAMLConfig
	if err := yaml.Unmarshal(data, &yamlCfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	// === Storage ===
	if yamlCfg.Storage.Engine != "" {
		config.Storage.Engine = yamlCfg.Storage.Engine
	}
	if yamlCfg.Storage.DataDir != "" {
		config.Storage.DataDir = yamlCfg.Storage.DataDir
	}
	if yamlCfg.Storage.InMemory != nil {
		config.Storage.InMemory = *yamlCfg.Storage.InMemory
	}
	if yamlCfg.Storage.SyncWrites != nil {
		config.Storage.SyncWrites = *yamlCfg.Storage.SyncWrites
	}
	if yamlCfg.Storage.LowMemory != nil {
		config.Storage.LowMemory = *yamlCfg.Storage.LowMemory
	}

	// === Traversal ===
	if yamlCfg.Traversal.Mode != "" {
		config.Traversal.Mode = yamlCfg.Traversal.Mode
	}
	if len(yamlCfg.Traversal.DisabledStrategies) > 0 {
		config.Traversal.DisabledStrategies = yamlCfg.Traversal.DisabledStrategies
	}

	// === Logging ===
	if yamlCfg.Logging.Level != "" {
		config.Logging.Level = yamlCfg.Logging.Level
	}
	if yamlCfg.Logging.Verbose != nil {
		config.Logging.Verbose = *yamlCfg.Logging.Verbose
	}

	// === Metrics ===
	if yamlCfg.Metrics.Enabled != nil {
		config.Metrics.Enabled = *yamlCfg.Metrics.Enabled
	}
	if yamlCfg.Metrics.Namespace != "" {
		config.Metrics.Namespace = yamlCfg.Metrics.Namespace
	}
	return nil
}

func applyEnvVars(config *Config) {
	config.Storage.Engine = getEnv(EnvPrefix+"ENGINE", config.Storage.Engine)
	config.Storage.DataDir = getEnv(EnvPrefix+"DATA_DIR", config.Storage.DataDir)
	config.Storage.InMemory = getEnvBool(EnvPrefix+"IN_MEMORY", config.Storage.InMemory)
	config.Storage.SyncWrites = getEnvBool(EnvPrefix+"SYNC_WRITES", config.Storage.SyncWrites)
	config.Storage.LowMemory = getEnvBool(EnvPrefix+"LOW_MEMORY", config.Storage.LowMemory)

	config.Traversal.Mode = getEnv(EnvPrefix+"MODE", config.Traversal.Mode)
	config.Traversal.DisabledStrategies = getEnvStringSlice(EnvPrefix+"DISABLED_STRATEGIES", config.Traversal.DisabledStrategies)

	config.Logging.Level = getEnv(EnvPrefix+"LOG_LEVEL", config.Logging.Level)
	config.Logging.Verbose = getEnvBool(EnvPrefix+"VERBOSE", config.Logging.Verbose)

	config.Metrics.Enabled = getEnvBool(EnvPrefix+"METRICS_ENABLED", config.Metrics.Enabled)
	config.Metrics.Namespace = getEnv(EnvPrefix+"METRICS_NAMESPACE", config.Metrics.Namespace)
}

// Validate checks the configuration and reports every problem found.
func (c *Config) Validate() error {
	var result *multierror.Error

	switch c.Storage.Engine {
	case EngineMemory:
	case EngineBadger:
		if !c.Storage.InMemory && c.Storage.DataDir == "" {
			result = multierror.Append(result, fmt.Errorf("badger engine needs a data dir or in_memory"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("unknown storage engine %q (expected %s or %s)",
			c.Storage.Engine, EngineMemory, EngineBadger))
	}

	switch strings.ToLower(c.Traversal.Mode) {
	case "standard", "linear":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown traversal mode %q", c.Traversal.Mode))
	}

	switch strings.ToUpper(c.Logging.Level) {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		result = multierror.Append(result, fmt.Errorf("unknown log level %q", c.Logging.Level))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		result = multierror.Append(result, fmt.Errorf("metrics enabled but no namespace set"))
	}

	return result.ErrorOrNil()
}

// String returns a one-line summary suitable for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Engine: %s, DataDir: %s, InMemory: %v, Mode: %s, Disabled: %v, Log: %s, Metrics: %v}",
		c.Storage.Engine, c.Storage.DataDir, c.Storage.InMemory,
		c.Traversal.Mode, c.Traversal.DisabledStrategies,
		c.Logging.Level, c.Metrics.Enabled,
	)
}

// FindConfigFile searches for a config file in standard locations and
// returns the first one found, or "".
// Search order:
//  1. ~/.nornictrav/config.yaml
//  2. Same directory as the binary (config.yaml, nornictrav.yaml)
//  3. Current working directory (config.yaml, nornictrav.yaml)
//  4. ~/.config/nornictrav/config.yaml (XDG)
func FindConfigFile() string {
	var candidates []string

	home, homeErr := os.UserHomeDir()
	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".nornictrav", "config.yaml"))
	}

	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(exeDir, "config.yaml"),
			filepath.Join(exeDir, "nornictrav.yaml"),
		)
	}

	candidates = append(candidates, "config.yaml", "nornictrav.yaml")

	if homeErr == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "nornictrav", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		val = strings.ToLower(val)
		return val == "true" || val == "1" || val == "yes" || val == "on"
	}
	return defaultVal
}

func getEnvStringSlice(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return defaultVal
}
