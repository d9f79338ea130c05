package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/harun/tablekeeper/pkg/catalog"
	"github.com/harun/tablekeeper/pkg/events"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateSchedule checks a sweep schedule the way the sweeper parses it.
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return fmt.Errorf("sweep schedule cannot be empty")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateBackend validates the events backend
func (v *Validator) ValidateBackend(backend string) error {
	switch backend {
	case "local", "redis":
		return nil
	}
	return fmt.Errorf("invalid events backend: %s (must be one of: local, redis)", backend)
}

// ValidateAddr checks a host:port address.
func (v *Validator) ValidateAddr(addr string) error {
	if addr == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("invalid address %q: %w", addr, err)
	}
	return nil
}

// ValidateCategories checks that every protected category is a known tool
// category.
func (v *Validator) ValidateCategories(categories []string) error {
	for _, c := range categories {
		if !catalog.IsValidCategory(catalog.Category(c)) {
			return fmt.Errorf("unknown tool category: %s", c)
		}
	}
	return nil
}

// ValidateHook checks that a hook names a known event type and a script.
func (v *Validator) ValidateHook(hook HookConfig) error {
	switch hook.Event {
	case "*", string(events.StateChanged), string(events.PendingCreated),
		string(events.PendingResolved), string(events.SessionRewound):
	default:
		return fmt.Errorf("unknown event type: %q", hook.Event)
	}
	if strings.TrimSpace(hook.Script) == "" {
		return fmt.Errorf("script cannot be empty")
	}
	if hook.TimeoutSeconds < 0 {
		return fmt.Errorf("timeout_seconds must be >= 0")
	}
	return nil
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errors []error

	if cfg.Approval.ExpirySeconds <= 0 {
		errors = append(errors, fmt.Errorf("approval.expiry_seconds must be > 0"))
	}
	if err := v.ValidateSchedule(cfg.Approval.SweepSchedule); err != nil {
		errors = append(errors, fmt.Errorf("approval.sweep_schedule: %w", err))
	}

	for i, name := range cfg.Lock.AlwaysAllowed {
		if strings.TrimSpace(name) == "" {
			errors = append(errors, fmt.Errorf("lock.always_allowed[%d] cannot be empty", i))
		}
	}
	if err := v.ValidateCategories(cfg.Lock.ProtectedCategories); err != nil {
		errors = append(errors, fmt.Errorf("lock.protected_categories: %w", err))
	}

	if err := v.ValidateBackend(cfg.Events.Backend); err != nil {
		errors = append(errors, err)
	}
	if cfg.Events.Backend == "redis" {
		if err := v.ValidateAddr(cfg.Events.Redis.Addr); err != nil {
			errors = append(errors, fmt.Errorf("events.redis.addr: %w", err))
		}
		if cfg.Events.Redis.DB < 0 {
			errors = append(errors, fmt.Errorf("events.redis.db must be >= 0"))
		}
	}
	if cfg.Events.PublishTimeoutSeconds < 0 {
		errors = append(errors, fmt.Errorf("events.publish_timeout_seconds must be >= 0"))
	}
	for i, hook := range cfg.Events.Hooks {
		if err := v.ValidateHook(hook); err != nil {
			errors = append(errors, fmt.Errorf("events.hooks[%d]: %w", i, err))
		}
	}

	if cfg.Decision.RecentWindowTurns <= 0 {
		errors = append(errors, fmt.Errorf("decision.recent_window_turns must be > 0"))
	}

	if cfg.Metrics.Enabled {
		if err := v.ValidateAddr(cfg.Metrics.Addr); err != nil {
			errors = append(errors, fmt.Errorf("metrics.addr: %w", err))
		}
	}
	if cfg.Tracing.Enabled && cfg.Tracing.ServiceName == "" {
		errors = append(errors, fmt.Errorf("tracing.service_name cannot be empty"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errors = append(errors, err)
	}
	if cfg.Logging.MaxSize < 0 {
		errors = append(errors, fmt.Errorf("logging.max_size must be >= 0"))
	}
	if cfg.Logging.MaxAge < 0 {
		errors = append(errors, fmt.Errorf("logging.max_age must be >= 0"))
	}

	return errors
}

// ValidateConfig is a convenience wrapper around Validator.ValidateConfig.
func ValidateConfig(cfg *Config) []error {
	return NewValidator().ValidateConfig(cfg)
}
