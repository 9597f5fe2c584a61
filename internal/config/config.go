// Package config provides configuration loading and management for tm.
package config

import (
	"os"
	"path/filepath"
)

// DefaultStateDirName is the per-project state directory created next to
// wherever tm is invoked.
const DefaultStateDirName = ".task-orchestrator"

// Config is the root configuration.
type Config struct {
	StateDir  string          `json:"state_dir,omitempty" mapstructure:"state_dir"`
	DBPath    string          `json:"db_path,omitempty"   mapstructure:"db_path"`
	AgentID   string          `json:"agent_id,omitempty"  mapstructure:"agent_id"`
	Telemetry TelemetryConfig `json:"telemetry"           mapstructure:"telemetry"`
	Retention RetentionPolicy `json:"retention"           mapstructure:"retention"`
}

// TelemetryConfig controls local event capture.
type TelemetryConfig struct {
	Enabled bool `json:"enabled" mapstructure:"enabled"`
}

// RetentionPolicy defines how many old backups to keep.
type RetentionPolicy struct {
	KeepLast int `json:"keep_last,omitempty" mapstructure:"keep_last"`
	KeepDays int `json:"keep_days,omitempty" mapstructure:"keep_days"`
}

// Default returns the configuration used when no config file exists.
func Default() Config {
	return Config{
		StateDir:  DefaultStateDirName,
		Telemetry: TelemetryConfig{Enabled: true},
		Retention: RetentionPolicy{KeepLast: 10},
	}
}

// DatabasePath resolves the SQLite database file, honoring the
// TM_DB_PATH override used by test harnesses and multi-project setups.
func (c Config) DatabasePath() string {
	if p := os.Getenv("TM_DB_PATH"); p != "" {
		return p
	}
	if c.DBPath != "" {
		return c.DBPath
	}
	return filepath.Join(c.StateDir, "tasks.db")
}

// ResolveAgentID returns the identity used for assignments and
// notifications: TM_AGENT_ID wins, then the config file, then the
// OS username.
func (c Config) ResolveAgentID() string {
	if id := os.Getenv("TM_AGENT_ID"); id != "" {
		return id
	}
	if c.AgentID != "" {
		return c.AgentID
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "agent"
}
