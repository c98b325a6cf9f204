package config

import (
	"time"

	"hypcert/internal/tools/kbmag"
	"hypcert/internal/tools/walrus"
)

// GAPConfig configures the GAP/walrus adapter.
type GAPConfig struct {
	Binary    string   `yaml:"binary"`
	Arguments []string `yaml:"arguments"`
	Timeout   string   `yaml:"timeout"`
	Epsilon   string   `yaml:"epsilon"`
}

// KBMAGConfig configures the kbmag adapter.
type KBMAGConfig struct {
	BinDir       string `yaml:"bin_dir"`
	WorkDir      string `yaml:"work_dir"`
	Timeout      string `yaml:"timeout"`
	MaxEquations int    `yaml:"maxeqns"`
	TidyInterval int    `yaml:"tidyint"`
	ConfNum      int    `yaml:"confnum"`
}

// GetGAPTimeout returns the GAP timeout as a duration.
func (c *Config) GetGAPTimeout() time.Duration {
	return parseDuration(c.GAP.Timeout, walrus.DefaultConfig().Timeout)
}

// GetKBMAGTimeout returns the kbmag timeout as a duration.
func (c *Config) GetKBMAGTimeout() time.Duration {
	return parseDuration(c.KBMAG.Timeout, kbmag.DefaultConfig().Timeout)
}

// WalrusConfig returns the adapter configuration, falling back to the
// adapter defaults for empty fields.
func (c *Config) WalrusConfig() walrus.Config {
	cfg := walrus.DefaultConfig()
	if c.GAP.Binary != "" {
		cfg.Binary = c.GAP.Binary
	}
	if c.GAP.Arguments != nil {
		cfg.Arguments = c.GAP.Arguments
	}
	if c.GAP.Epsilon != "" {
		cfg.Epsilon = c.GAP.Epsilon
	}
	cfg.Timeout = c.GetGAPTimeout()
	return cfg
}

// KBMAGAdapterConfig returns the kbmag adapter configuration.
func (c *Config) KBMAGAdapterConfig() kbmag.Config {
	return kbmag.Config{
		BinDir:       c.KBMAG.BinDir,
		WorkDir:      c.KBMAG.WorkDir,
		Timeout:      c.GetKBMAGTimeout(),
		MaxEquations: c.KBMAG.MaxEquations,
		TidyInterval: c.KBMAG.TidyInterval,
		ConfNum:      c.KBMAG.ConfNum,
	}
}
