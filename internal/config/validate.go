package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/flemzord/larkbridge/internal/core"
)

var (
	ErrUnsupportedVersion = errors.New("config: unsupported version")
	ErrNoModules          = errors.New("config: no modules configured")
)

// Validate checks the structural validity of the configuration:
// supported version, at least one module, no unknown module IDs,
// and well-formed bridge settings.
func Validate(cfg *Config) error {
	if cfg.Version != "1" {
		return fmt.Errorf("%w: %q (expected \"1\")", ErrUnsupportedVersion, cfg.Version)
	}

	if len(cfg.Modules) == 0 {
		return ErrNoModules
	}

	var errs []error
	for name := range cfg.Modules {
		if _, ok := core.GetModule(core.ModuleID(name)); !ok {
			errs = append(errs, fmt.Errorf("config: unknown module %q", name))
		}
	}

	if cfg.Bridge != nil {
		if err := validateBridge(cfg.Bridge); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func validateBridge(b *BridgeConfig) error {
	var errs []error

	if b.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: bridge.workers must not be negative, got %d", b.Workers))
	}
	if b.InboxSize < 0 {
		errs = append(errs, fmt.Errorf("config: bridge.inbox_size must not be negative, got %d", b.InboxSize))
	}
	if b.HistoryWindow < 0 {
		errs = append(errs, fmt.Errorf("config: bridge.history_window must not be negative, got %d", b.HistoryWindow))
	}

	if b.MaxIdle != "" {
		d, err := time.ParseDuration(b.MaxIdle)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: bridge.max_idle: %w", err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("config: bridge.max_idle must be positive, got %s", b.MaxIdle))
		}
	}

	for _, sched := range []struct {
		field string
		expr  string
	}{
		{"bridge.dedup_schedule", b.DedupSchedule},
		{"bridge.prune_schedule", b.PruneSchedule},
	} {
		if sched.expr == "" {
			continue
		}
		if _, err := cron.ParseStandard(sched.expr); err != nil {
			errs = append(errs, fmt.Errorf("config: %s: %w", sched.field, err))
		}
	}

	return errors.Join(errs...)
}
