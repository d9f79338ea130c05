package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// TABLEKEEPER_APPROVAL_EXPIRY_SECONDS.
const EnvPrefix = "TABLEKEEPER"

// Loader handles configuration loading
type Loader struct {
	configPath string
}

// NewLoader creates a new config loader. An empty path selects
// ~/.tablekeeper/tablekeeper.json.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
	}
}

// Load reads the config file when present, applies environment overrides
// and resolves derived paths.
func (l *Loader) Load() (*Config, error) {
	configPath := l.GetConfigPath()

	v := l.newViper()
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("json")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.ResolvePaths(); err != nil {
		return nil, fmt.Errorf("failed to resolve paths: %w", err)
	}

	return cfg, nil
}

// newViper registers every key with its default so AutomaticEnv can
// override keys absent from the file.
func (l *Loader) newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	d := DefaultConfig()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("approval.expiry_seconds", d.Approval.ExpirySeconds)
	v.SetDefault("approval.sweep_schedule", d.Approval.SweepSchedule)
	v.SetDefault("lock.always_allowed", d.Lock.AlwaysAllowed)
	v.SetDefault("lock.protected_categories", d.Lock.ProtectedCategories)
	v.SetDefault("events.backend", d.Events.Backend)
	v.SetDefault("events.publish_timeout_seconds", d.Events.PublishTimeoutSeconds)
	v.SetDefault("events.redis.addr", d.Events.Redis.Addr)
	v.SetDefault("events.redis.password", d.Events.Redis.Password)
	v.SetDefault("events.redis.db", d.Events.Redis.DB)
	v.SetDefault("events.redis.channel_prefix", d.Events.Redis.ChannelPrefix)
	v.SetDefault("events.hooks", d.Events.Hooks)
	v.SetDefault("decision.seed", d.Decision.Seed)
	v.SetDefault("decision.recent_window_turns", d.Decision.RecentWindowTurns)
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.trail_file", d.Logging.TrailFile)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.max_size", d.Logging.MaxSize)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)
	return v
}

// Save saves the configuration to file
func (l *Loader) Save(cfg *Config) error {
	configPath := l.GetConfigPath()
	if configPath == "" {
		return fmt.Errorf("failed to determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")

	v.Set("data_dir", cfg.DataDir)
	v.Set("database", cfg.Database)
	v.Set("approval", cfg.Approval)
	v.Set("lock", cfg.Lock)
	v.Set("events", cfg.Events)
	v.Set("decision", cfg.Decision)
	v.Set("metrics", cfg.Metrics)
	v.Set("tracing", cfg.Tracing)
	v.Set("logging", cfg.Logging)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			if err := v.SafeWriteConfig(); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
		} else {
			return fmt.Errorf("failed to write config file: %w", err)
		}
	}

	return nil
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".tablekeeper", "tablekeeper.json")
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
