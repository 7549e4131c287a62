// Package session is the guard's lock/unlock state machine.
//
// Every operation classifies the persisted key space into exactly one State
// first, then acts. Classification is the only place that reads presence or
// absence of keys; callers never infer state on their own. Partial or corrupt
// data always resolves to the most restrictive state: re-onboarding when the
// credential material is unusable, Locked when activity cannot be trusted, and
// LockedOut when the lockout record cannot be read.
package session
