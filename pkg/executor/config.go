package executor

import (
	"fmt"
	"time"
)

// ResetMode is what a periodic reset does.
type ResetMode string

const (
	// ResetReload hard-reloads the current page.
	ResetReload ResetMode = "reload"

	// ResetRebuild replaces the whole session.
	ResetRebuild ResetMode = "rebuild"
)

// ResetPolicy performs a deterministic reset every Every cases. Zero disables it.
type ResetPolicy struct {
	Every int       `yaml:"every" json:"every"`
	Mode  ResetMode `yaml:"mode" json:"mode"`
}

// Due reports whether the case at zero-based index should be preceded by a reset.
func (p ResetPolicy) Due(index int) bool {
	return p.Every > 0 && index > 0 && index%p.Every == 0
}

// Config bounds every step of a case.
type Config struct {
	// ActionTimeout is the hard bound on a single test action.
	ActionTimeout time.Duration `yaml:"action_timeout" json:"action_timeout"`

	// DriverTimeout is handed to the driver for the action itself. It stays
	// below ActionTimeout so a missing or slow element fails as a driver
	// error before the hard bound fires. Zero derives it from ActionTimeout.
	DriverTimeout time.Duration `yaml:"driver_timeout" json:"driver_timeout"`

	// NavigationTimeout bounds the fresh navigation at the start of each case.
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`

	// ProbeTimeout bounds the liveness probe.
	ProbeTimeout time.Duration `yaml:"probe_timeout" json:"probe_timeout"`

	// RecoveryTimeout bounds the reload attempted after an action timeout.
	RecoveryTimeout time.Duration `yaml:"recovery_timeout" json:"recovery_timeout"`

	// SettleDelay is waited after the action before observing.
	SettleDelay time.Duration `yaml:"settle_delay" json:"settle_delay"`

	// DrainTimeout is how long a timed-out action is waited for before its
	// outcome is handed to a background observer.
	DrainTimeout time.Duration `yaml:"drain_timeout" json:"drain_timeout"`

	// CloseTimeout bounds closing a discarded session.
	CloseTimeout time.Duration `yaml:"close_timeout" json:"close_timeout"`

	// Reset is the periodic reset policy.
	Reset ResetPolicy `yaml:"reset" json:"reset"`

	// ScreenshotDir, when set, receives a screenshot of every failed case.
	ScreenshotDir string `yaml:"screenshot_dir" json:"screenshot_dir"`
}

// DefaultConfig returns the default bounds.
func DefaultConfig() Config {
	return Config{
		ActionTimeout:     10 * time.Second,
		NavigationTimeout: 30 * time.Second,
		ProbeTimeout:      5 * time.Second,
		RecoveryTimeout:   5 * time.Second,
		SettleDelay:       time.Second,
		DrainTimeout:      2 * time.Second,
		CloseTimeout:      5 * time.Second,
		Reset:             ResetPolicy{Every: 0, Mode: ResetReload},
	}
}

// ActionDriverTimeout returns DriverTimeout, or the inner bound of
// ActionTimeout when it is unset.
func (c Config) ActionDriverTimeout() time.Duration {
	if c.DriverTimeout > 0 {
		return c.DriverTimeout
	}
	return innerBound(c.ActionTimeout)
}

// innerBound is the driver-side timeout for an operation raced against
// limit: four fifths of it, so the driver always gives up first.
func innerBound(limit time.Duration) time.Duration {
	return limit - limit/5
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.ActionTimeout <= 0 {
		return fmt.Errorf("action_timeout must be > 0")
	}
	if c.DriverTimeout < 0 {
		return fmt.Errorf("driver_timeout must be >= 0")
	}
	if c.DriverTimeout >= c.ActionTimeout {
		return fmt.Errorf("driver_timeout (%s) must be less than action_timeout (%s)", c.DriverTimeout, c.ActionTimeout)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("navigation_timeout must be > 0")
	}
	if c.ProbeTimeout <= 0 {
		return fmt.Errorf("probe_timeout must be > 0")
	}
	if c.RecoveryTimeout <= 0 {
		return fmt.Errorf("recovery_timeout must be > 0")
	}
	if c.SettleDelay < 0 || c.DrainTimeout < 0 || c.CloseTimeout < 0 {
		return fmt.Errorf("settle_delay, drain_timeout and close_timeout must be >= 0")
	}
	if c.Reset.Every < 0 {
		return fmt.Errorf("reset.every must be >= 0")
	}
	switch c.Reset.Mode {
	case ResetReload, ResetRebuild, "":
	default:
		return fmt.Errorf("invalid reset.mode: %s (must be reload or rebuild)", c.Reset.Mode)
	}
	return nil
}
