package session

import (
	"time"

	"github.com/omnisign/sessionguard/internal/platform/timeouts"
	"github.com/omnisign/sessionguard/internal/services/guard/lockout"
)

const (
	// DefaultTimeoutMinutes is the auto-lock threshold for a new profile.
	DefaultTimeoutMinutes = 30
	// MinTimeoutMinutes is the shortest auto-lock a profile edit may set.
	MinTimeoutMinutes = 5
)

// Config tunes the machine.
type Config struct {
	DefaultTimeoutMinutes int
	MinTimeoutMinutes     int
	Lockout               lockout.Policy
	// RequireCurrentPIN makes PIN changes prove the old PIN first.
	RequireCurrentPIN bool
	BestEffortTimeout time.Duration
}

// DefaultConfig returns the stock guard behaviour.
func DefaultConfig() Config {
	return Config{
		DefaultTimeoutMinutes: DefaultTimeoutMinutes,
		MinTimeoutMinutes:     MinTimeoutMinutes,
		Lockout:               lockout.DefaultPolicy(),
		BestEffortTimeout:     timeouts.BestEffortTask,
	}
}

func (c Config) normalized() Config {
	defaults := DefaultConfig()
	if c.MinTimeoutMinutes <= 0 {
		c.MinTimeoutMinutes = defaults.MinTimeoutMinutes
	}
	if c.DefaultTimeoutMinutes <= 0 {
		c.DefaultTimeoutMinutes = defaults.DefaultTimeoutMinutes
	}
	if c.DefaultTimeoutMinutes < c.MinTimeoutMinutes {
		c.DefaultTimeoutMinutes = c.MinTimeoutMinutes
	}
	if c.Lockout.Threshold <= 0 {
		c.Lockout.Threshold = lockout.DefaultThreshold
	}
	if c.Lockout.Window <= 0 {
		c.Lockout.Window = lockout.DefaultWindow
	}
	if c.BestEffortTimeout <= 0 {
		c.BestEffortTimeout = defaults.BestEffortTimeout
	}
	return c
}
