package config

import "fmt"

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level,omitempty"`   // debug, info, warn, error
	Format string `yaml:"format" json:"format,omitempty"` // json, text
}

// JSON reports whether logs are written as JSON.
func (c LoggingConfig) JSON() bool { return c.Format == "json" }

// Validate checks level and format.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level %q (valid: debug, info, warn, error)", c.Level)
	}
	switch c.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid logging.format %q (valid: json, text)", c.Format)
	}
	return nil
}
