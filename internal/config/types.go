// internal/config/types.go
package config

import "time"

// Global configuration loaded from config.yaml
type Global struct {
	Logging  LoggingConfig `yaml:"logging"`
	History  HistoryConfig `yaml:"history"`
	Watch    WatchConfig   `yaml:"watch"`
	MCP      MCPConfig     `yaml:"mcp"`
	Triggers []Trigger     `yaml:"triggers"`
}

type LoggingConfig struct {
	Format string `yaml:"format"`
	Level  string `yaml:"level"`
	Path   string `yaml:"path"` // empty = stderr
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

// WatchConfig holds tunables shared by every trigger.
type WatchConfig struct {
	SettleDelayMS int    `yaml:"settle_delay_ms"`
	CancelPauseMS int    `yaml:"cancel_pause_ms"`
	Backend       string `yaml:"backend"` // fsnotify or fsevents
}

func (w WatchConfig) SettleDelay() time.Duration {
	return time.Duration(w.SettleDelayMS) * time.Millisecond
}

func (w WatchConfig) CancelPause() time.Duration {
	return time.Duration(w.CancelPauseMS) * time.Millisecond
}

// MCPConfig controls the streamable HTTP MCP endpoint served alongside the daemon.
type MCPConfig struct {
	Enabled       bool   `yaml:"enabled"`
	ListenAddress string `yaml:"listen_address"`
}

// Trigger is one named file-watcher trigger.
type Trigger struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Enabled     *bool  `yaml:"enabled"` // nil = enabled
	Parameters  string `yaml:"parameters"`
	Action      Action `yaml:"action"`
}

func (t Trigger) IsEnabled() bool {
	return t.Enabled == nil || *t.Enabled
}

// Action is an optional shell command run on every fire.
type Action struct {
	Command        string `yaml:"command"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

func (a Action) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}
