package config

import "time"

// Config represents the complete homectl configuration.
type Config struct {
	Include   []string        `yaml:"include,omitempty"`
	Service   ServiceConfig   `yaml:"service"`
	Server    ServerConfig    `yaml:"server"`
	Dispatch  DispatchConfig  `yaml:"dispatch"`
	Journal   JournalConfig   `yaml:"journal"`
	Metrics   MetricsConfig   `yaml:"metrics,omitempty"`
	DevServer DevServerConfig `yaml:"devserver,omitempty"`

	// Files that were loaded, root first. Empty when running on defaults.
	SourceFiles []string `yaml:"-"`
}

// ServiceConfig defines process-wide settings.
type ServiceConfig struct {
	Name     string `yaml:"name"`
	LogLevel string `yaml:"log_level"`
}

// ServerConfig locates the command server.
type ServerConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DispatchConfig tunes trigger handling.
type DispatchConfig struct {
	DebounceWindow time.Duration `yaml:"debounce_window"`
	// FocusDelay is how long bring-into-view waits before moving focus.
	FocusDelay time.Duration `yaml:"focus_delay"`
}

// JournalConfig defines the invocation journal.
type JournalConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// MetricsConfig defines the Prometheus listener. An empty Listen disables it.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// DevServerConfig defines the local fragment server.
type DevServerConfig struct {
	Listen   string `yaml:"listen"`
	Fixtures string `yaml:"fixtures"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:     "homectl",
			LogLevel: "info",
		},
		Server: ServerConfig{
			BaseURL:        "http://127.0.0.1:8080",
			RequestTimeout: 30 * time.Second,
		},
		Dispatch: DispatchConfig{
			DebounceWindow: 400 * time.Millisecond,
			FocusDelay:     time.Second,
		},
		Journal: JournalConfig{
			Enabled:   false,
			Path:      "./data/journal.db",
			Retention: 7 * 24 * time.Hour,
		},
		DevServer: DevServerConfig{
			Listen:   "127.0.0.1:8080",
			Fixtures: "./fixtures.yaml",
		},
	}
}
