// internal/config/loader.go
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/colebrumley/fwtrigger/internal/trigger"
	"gopkg.in/yaml.v3"
)

// Load reads, defaults and validates the configuration at path.
func Load(path string) (*Global, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(data []byte) (*Global, error) {
	var cfg Global
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// Validate checks every trigger. Parameter strings are parsed but
// directories are not resolved, since they may appear later.
func Validate(cfg *Global) error {
	switch cfg.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid logging format %q: must be text or json", cfg.Logging.Format)
	}
	switch cfg.Watch.Backend {
	case "fsnotify", "fsevents":
	default:
		return fmt.Errorf("invalid watch backend %q: must be fsnotify or fsevents", cfg.Watch.Backend)
	}

	seen := make(map[string]bool)
	for i := range cfg.Triggers {
		t := &cfg.Triggers[i]
		if t.Name == "" {
			return fmt.Errorf("trigger #%d: trigger name is required", i+1)
		}
		if seen[t.Name] {
			return fmt.Errorf("trigger %q: duplicate trigger name", t.Name)
		}
		seen[t.Name] = true

		if t.Parameters == "" {
			return fmt.Errorf("trigger %q: parameters are required", t.Name)
		}
		if _, err := trigger.ParseParameters(t.Parameters); err != nil {
			return fmt.Errorf("trigger %q: %w", t.Name, err)
		}
		if t.Action.TimeoutSeconds < 0 {
			return fmt.Errorf("trigger %q: timeout_seconds must not be negative", t.Name)
		}
		if t.Action.Command != "" && t.Action.TimeoutSeconds == 0 {
			t.Action.TimeoutSeconds = 60
		}
	}
	return nil
}

func applyDefaults(cfg *Global) {
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Watch.SettleDelayMS <= 0 {
		cfg.Watch.SettleDelayMS = int(trigger.DefaultSettleDelay.Milliseconds())
	}
	if cfg.Watch.CancelPauseMS <= 0 {
		cfg.Watch.CancelPauseMS = int(trigger.DefaultCancelPause.Milliseconds())
	}
	if cfg.Watch.Backend == "" {
		cfg.Watch.Backend = "fsnotify"
	}
	if cfg.History.RetentionDays <= 0 {
		cfg.History.RetentionDays = 30
	}
	if cfg.MCP.ListenAddress == "" {
		cfg.MCP.ListenAddress = "127.0.0.1:9877"
	}
	// History: only set default path if enabled and path not set
	if cfg.History.Enabled && cfg.History.Path == "" {
		if homeDir, err := os.UserHomeDir(); err == nil {
			cfg.History.Path = filepath.Join(homeDir, ".local", "share", "fwtrigger", "history.db")
		} else {
			cfg.History.Path = "fwtrigger-history.db"
		}
	}
}
