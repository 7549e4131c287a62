package session

import (
	"context"

	"github.com/omnisign/sessionguard/internal/services/guard/profile"
)

// Biometrics is the platform authenticator as the machine sees it.
type Biometrics interface {
	Available(ctx context.Context) bool
	Registered(ctx context.Context) bool
	Register(ctx context.Context, owner profile.Profile) error
	Authenticate(ctx context.Context) error
}

// Prefiller receives the profile every time the session reaches Unlocked.
type Prefiller interface {
	Prefill(ctx context.Context, p profile.Profile)
}

// Notifier asks for notification permission once onboarding completes.
type Notifier interface {
	RequestPermission(ctx context.Context) error
}

// StateObserver hears about every change of the in-memory state.
type StateObserver interface {
	StateChanged(ctx context.Context, from, to State)
}

// Submission is the onboarding form.
type Submission struct {
	Profile    profile.Profile
	PIN        string
	PINConfirm string
}

// Edit is the profile-edit form. A zero TimeoutMinutes keeps the current
// value; an empty NewPIN keeps the current PIN. CurrentPIN is only consulted
// when the machine requires it for PIN changes.
type Edit struct {
	Profile        profile.Profile
	TimeoutMinutes int
	NewPIN         string
	CurrentPIN     string
}

// Settings is the editable view of an unlocked session.
type Settings struct {
	Profile        profile.Profile `json:"profile"`
	TimeoutMinutes int             `json:"timeoutMinutes"`
}
