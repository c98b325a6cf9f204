package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"hypcert/internal/certify"
)

// DefaultPath is the configuration file looked up when none is given.
const DefaultPath = "hypcert.yaml"

// Config holds all hypcert configuration.
type Config struct {
	// Pipeline behaviour
	Pipeline PipelineConfig `yaml:"pipeline"`

	// External tools
	GAP   GAPConfig   `yaml:"gap"`
	KBMAG KBMAGConfig `yaml:"kbmag"`

	// Result cache
	Store StoreConfig `yaml:"store"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// PipelineConfig configures certification runs.
type PipelineConfig struct {
	ExternalTools bool `yaml:"external_tools"`
	CrossCheck    bool `yaml:"cross_check"`
	Parallel      bool `yaml:"parallel"`
	Minimize      bool `yaml:"minimize"`
}

// StoreConfig configures the SQLite result cache.
type StoreConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr           string `yaml:"addr"`
	RequestTimeout string `yaml:"request_timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Pipeline: PipelineConfig{
			ExternalTools: true,
			Minimize:      true,
		},
		GAP: GAPConfig{
			Binary:    "gap",
			Arguments: []string{"-q", "-b"},
			Timeout:   "60s",
			Epsilon:   "1/100",
		},
		KBMAG: KBMAGConfig{
			Timeout: "10s",
		},
		Store: StoreConfig{
			DatabasePath: "data/hypcert.db",
		},
		Server: ServerConfig{
			Addr:           ":8088",
			RequestTimeout: "5m",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. A .env file next to it is loaded into the process environment
// first, then HYPCERT_* variables override the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	if err := cfg.resolvePaths(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// resolvePaths makes the kbmag directory absolute. kbmag programs run inside
// a scratch directory, where a relative path would no longer resolve.
func (c *Config) resolvePaths() error {
	if c.KBMAG.BinDir == "" || filepath.IsAbs(c.KBMAG.BinDir) {
		return nil
	}
	abs, err := filepath.Abs(c.KBMAG.BinDir)
	if err != nil {
		return fmt.Errorf("failed to resolve kbmag.bin_dir: %w", err)
	}
	c.KBMAG.BinDir = abs
	return nil
}

// loadDotEnv loads path if it exists. Variables already set win.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("HYPCERT_GAP"); v != "" {
		c.GAP.Binary = v
	}
	if v := os.Getenv("HYPCERT_GAP_TIMEOUT"); v != "" {
		c.GAP.Timeout = v
	}
	if v := os.Getenv("HYPCERT_KBMAG_DIR"); v != "" {
		c.KBMAG.BinDir = v
	}
	if v := os.Getenv("HYPCERT_KBMAG_TIMEOUT"); v != "" {
		c.KBMAG.Timeout = v
	}
	if v := os.Getenv("HYPCERT_DB"); v != "" {
		c.Store.DatabasePath = v
	}
	if v := os.Getenv("HYPCERT_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("HYPCERT_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// GetRequestTimeout returns the API request timeout as a duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDuration(c.Server.RequestTimeout, 5*time.Minute)
}

// PipelineOptions returns the certify options the configuration selects.
func (c *Config) PipelineOptions() certify.Options {
	return certify.Options{
		EnableExternalTools: c.Pipeline.ExternalTools,
		CrossCheck:          c.Pipeline.CrossCheck,
		Parallel:            c.Pipeline.Parallel,
		Minimize:            c.Pipeline.Minimize,
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for name, value := range map[string]string{
		"gap.timeout":            c.GAP.Timeout,
		"kbmag.timeout":          c.KBMAG.Timeout,
		"server.request_timeout": c.Server.RequestTimeout,
	} {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if d <= 0 {
			return fmt.Errorf("invalid %s %q: must be positive", name, value)
		}
	}
	if err := c.WalrusConfig().Validate(); err != nil {
		return err
	}
	if err := c.KBMAGAdapterConfig().Validate(); err != nil {
		return err
	}
	if c.Store.DatabasePath == "" {
		return fmt.Errorf("store.database_path is required")
	}
	return c.Logging.Validate()
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
