package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/tablekeeper/pkg/executor"
)

// Config represents the tablekeeper configuration
type Config struct {
	DataDir  string         `json:"data_dir" mapstructure:"data_dir"`
	Database DatabaseConfig `json:"database" mapstructure:"database"`
	Approval ApprovalConfig `json:"approval" mapstructure:"approval"`
	Lock     LockConfig     `json:"lock" mapstructure:"lock"`
	Events   EventsConfig   `json:"events" mapstructure:"events"`
	Decision DecisionConfig `json:"decision" mapstructure:"decision"`
	Metrics  MetricsConfig  `json:"metrics" mapstructure:"metrics"`
	Tracing  TracingConfig  `json:"tracing" mapstructure:"tracing"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// DatabaseConfig locates the SQLite database. An empty path resolves to
// <data_dir>/tablekeeper.db.
type DatabaseConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// ApprovalConfig controls pending action lifetime and the expiry sweep.
type ApprovalConfig struct {
	ExpirySeconds int    `json:"expiry_seconds" mapstructure:"expiry_seconds"`
	SweepSchedule string `json:"sweep_schedule" mapstructure:"sweep_schedule"`
}

// Expiry returns the approval window as a duration.
func (a ApprovalConfig) Expiry() time.Duration {
	return time.Duration(a.ExpirySeconds) * time.Second
}

// LockConfig configures the gameplay lock policy.
type LockConfig struct {
	AlwaysAllowed       []string `json:"always_allowed" mapstructure:"always_allowed"`
	ProtectedCategories []string `json:"protected_categories" mapstructure:"protected_categories"`
}

// EventsConfig selects the notification backend.
type EventsConfig struct {
	Backend               string       `json:"backend" mapstructure:"backend"` // local, redis
	Redis                 RedisConfig  `json:"redis" mapstructure:"redis"`
	PublishTimeoutSeconds int          `json:"publish_timeout_seconds" mapstructure:"publish_timeout_seconds"`
	Hooks                 []HookConfig `json:"hooks" mapstructure:"hooks"`
}

// HookConfig runs a shell script whenever an event of the given type is
// published. Event "*" matches every type.
type HookConfig struct {
	ID             string `json:"id" mapstructure:"id"`
	Event          string `json:"event" mapstructure:"event"`
	Script         string `json:"script" mapstructure:"script"`
	TimeoutSeconds int    `json:"timeout_seconds" mapstructure:"timeout_seconds"`
}

// PublishTimeout returns the per-event delivery bound.
func (e EventsConfig) PublishTimeout() time.Duration {
	return time.Duration(e.PublishTimeoutSeconds) * time.Second
}

// RedisConfig holds the redis connection for the redis events backend.
type RedisConfig struct {
	Addr          string `json:"addr" mapstructure:"addr"`
	Password      string `json:"password" mapstructure:"password"`
	DB            int    `json:"db" mapstructure:"db"`
	ChannelPrefix string `json:"channel_prefix" mapstructure:"channel_prefix"`
}

// DecisionConfig seeds the recommendation engines. A zero seed draws from
// the clock.
type DecisionConfig struct {
	Seed              int64 `json:"seed" mapstructure:"seed"`
	RecentWindowTurns int   `json:"recent_window_turns" mapstructure:"recent_window_turns"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

type TracingConfig struct {
	Enabled     bool   `json:"enabled" mapstructure:"enabled"`
	ServiceName string `json:"service_name" mapstructure:"service_name"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	TrailFile string `json:"trail_file" mapstructure:"trail_file"`
	Pretty    bool   `json:"pretty" mapstructure:"pretty"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB, 0 disables rotation
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Approval: ApprovalConfig{
			ExpirySeconds: 300,
			SweepSchedule: "@every 30s",
		},
		Lock: LockConfig{
			AlwaysAllowed:       executor.DefaultAlwaysAllowed(),
			ProtectedCategories: executor.DefaultProtectedCategories(),
		},
		Events: EventsConfig{
			Backend: "local",
			Redis: RedisConfig{
				Addr:          "localhost:6379",
				ChannelPrefix: "tablekeeper",
			},
			PublishTimeoutSeconds: 5,
		},
		Decision: DecisionConfig{
			RecentWindowTurns: 10,
		},
		Metrics: MetricsConfig{
			Addr: ":9464",
		},
		Tracing: TracingConfig{
			ServiceName: "tablekeeper",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Redaction: true,
			MaxSize:   50,
			MaxAge:    14,
		},
	}
}

// ResolvePaths fills path defaults derived from DataDir.
func (c *Config) ResolvePaths() error {
	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		c.DataDir = filepath.Join(home, ".tablekeeper")
	}
	if c.Database.Path == "" {
		c.Database.Path = filepath.Join(c.DataDir, "tablekeeper.db")
	}
	if c.Logging.File == "" {
		c.Logging.File = filepath.Join(c.DataDir, "tablekeeper.log")
	}
	if c.Logging.TrailFile == "" {
		c.Logging.TrailFile = filepath.Join(c.DataDir, "trail.jsonl")
	}
	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	return errors.Join(ValidateConfig(c)...)
}
