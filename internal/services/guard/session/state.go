package session

// State is the session's single tagged status.
type State string

const (
	// StateUninitialized follows a reset, before the next foreground event.
	StateUninitialized State = "uninitialized"
	// StateOnboarding awaits the first profile and PIN.
	StateOnboarding State = "onboarding"
	// StateLocked requires a PIN or biometric unlock.
	StateLocked State = "locked"
	// StateLockedOut refuses every unlock until the lockout window passes.
	StateLockedOut State = "locked_out"
	// StateUnlocked exposes the profile.
	StateUnlocked State = "unlocked"
)

// Snapshot is what the unlock surface needs to render. It never carries
// profile data.
type Snapshot struct {
	State                State `json:"state"`
	RemainingLockMinutes int   `json:"remainingLockMinutes"`
	BiometricOffered     bool  `json:"biometricOffered"`
}
