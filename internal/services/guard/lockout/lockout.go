// Package lockout throttles PIN guessing with a fixed lockout window.
//
// Failures accumulate until the threshold, then PIN entry is refused until the
// window passes. Any successful unlock clears the state. Each failure at or past
// the threshold restarts the window, so a guess made right after a window ends
// locks again immediately if it is wrong.
package lockout

import (
	"math"
	"time"
)

const (
	// DefaultThreshold is the number of consecutive failures that triggers a lockout.
	DefaultThreshold = 4
	// DefaultWindow is how long a lockout lasts.
	DefaultWindow = 30 * time.Minute
)

// State is the persisted failure counter and lockout deadline.
type State struct {
	FailureCount int
	LockedUntil  *time.Time
}

// Policy decides when failures become a lockout.
type Policy struct {
	Threshold int
	Window    time.Duration
}

// DefaultPolicy returns the 4-failure, 30-minute policy.
func DefaultPolicy() Policy {
	return Policy{Threshold: DefaultThreshold, Window: DefaultWindow}
}

func (p Policy) normalized() Policy {
	if p.Threshold <= 0 {
		p.Threshold = DefaultThreshold
	}
	if p.Window <= 0 {
		p.Window = DefaultWindow
	}
	return p
}

// RecordFailure counts one failed PIN check at now.
func (p Policy) RecordFailure(state State, now time.Time) State {
	p = p.normalized()
	next := State{FailureCount: state.FailureCount + 1, LockedUntil: state.LockedUntil}
	if next.FailureCount < 0 {
		next.FailureCount = 1
	}
	if next.FailureCount >= p.Threshold {
		until := now.Add(p.Window)
		next.LockedUntil = &until
	}
	return next
}

// RecordSuccess returns the cleared state.
func (p Policy) RecordSuccess() State {
	return State{}
}

// IsLocked reports whether PIN entry is refused at now.
func (s State) IsLocked(now time.Time) bool {
	return s.LockedUntil != nil && now.Before(*s.LockedUntil)
}

// RemainingMinutes rounds the time left in the lockout up to whole minutes.
// It is zero when not locked.
func (s State) RemainingMinutes(now time.Time) int {
	if !s.IsLocked(now) {
		return 0
	}
	return int(math.Ceil(float64(s.LockedUntil.Sub(now)) / float64(time.Minute)))
}

// IsZero reports whether the state carries no failures and no deadline.
func (s State) IsZero() bool {
	return s.FailureCount == 0 && s.LockedUntil == nil
}
