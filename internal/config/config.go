// Package config holds the chronicle tool configuration.
package config

import (
	"fmt"
)

// Config represents the main chronicle tool configuration.
type Config struct {
	// Application identifier used for sessions started by the CLI
	ApplicationID string `json:"application_id" mapstructure:"application_id"`

	// Default recording path for sessions that persist
	SavePath string `json:"save_path" mapstructure:"save_path"`

	// Viewer (live sink) settings
	Viewer ViewerConfig `json:"viewer" mapstructure:"viewer"`

	// Recording rotation settings
	Recording RecordingConfig `json:"recording" mapstructure:"recording"`

	// Diagnostic logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// ViewerConfig holds live-viewer settings.
type ViewerConfig struct {
	Spawn bool   `json:"spawn" mapstructure:"spawn"`
	Addr  string `json:"addr" mapstructure:"addr"`
}

// RecordingConfig holds recording rotation settings.
type RecordingConfig struct {
	MaxSizeMB int  `json:"max_size_mb" mapstructure:"max_size_mb"`
	MaxAge    int  `json:"max_age" mapstructure:"max_age"`
	Compress  bool `json:"compress" mapstructure:"compress"`
}

// LoggingConfig holds diagnostic logging settings.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	File   string `json:"file" mapstructure:"file"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// DefaultConfig returns the default tool configuration.
func DefaultConfig() *Config {
	return &Config{
		ApplicationID: "chronicle",
		Viewer: ViewerConfig{
			Spawn: true,
			Addr:  "127.0.0.1:9876",
		},
		Recording: RecordingConfig{
			MaxSizeMB: 100,
			MaxAge:    7,
			Compress:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.ApplicationID == "" {
		return fmt.Errorf("application_id is required")
	}
	if c.Recording.MaxSizeMB <= 0 {
		return fmt.Errorf("recording.max_size_mb must be positive")
	}
	if c.Viewer.Spawn && c.Viewer.Addr == "" {
		return fmt.Errorf("viewer.addr is required when viewer.spawn is enabled")
	}
	return nil
}
