package storage

import (
	"context"
	stderrors "errors"
	"strings"
)

// Key is a logical entry name. Stores prefix it with their namespace.
type Key string

// Logical keys owned by the guard.
const (
	KeyProfile             Key = "profile"
	KeyPinVerifier         Key = "pin_verifier"
	KeyLastActive          Key = "last_active"
	KeyTimeoutMinutes      Key = "timeout_minutes"
	KeyInitialized         Key = "initialized"
	KeyPinFailureCount     Key = "pin_failure_count"
	KeyPinLockedUntil      Key = "pin_locked_until"
	KeyBiometricRegistered Key = "biometric_registered"
	KeyInstallationSalt    Key = "installation_salt"
	KeyBiometricCredential Key = "biometric_credential"
)

// DefaultNamespace prefixes every key written by the guard.
const DefaultNamespace = "omnisign"

// ErrCorrupt marks a stored value that cannot be decoded.
var ErrCorrupt = stderrors.New("stored value is corrupt")

// Keys returns every key ResetAll removes.
func Keys() []Key {
	return []Key{
		KeyProfile,
		KeyPinVerifier,
		KeyLastActive,
		KeyTimeoutMinutes,
		KeyInitialized,
		KeyPinFailureCount,
		KeyPinLockedUntil,
		KeyBiometricRegistered,
		KeyInstallationSalt,
		KeyBiometricCredential,
	}
}

// Store is the device-local key-value surface behind the guard. Every
// operation is idempotent. There is no transaction across keys: a crash between
// two Set calls may leave a partial update, which readers must tolerate.
type Store interface {
	Get(ctx context.Context, key Key) (value string, found bool, err error)
	Set(ctx context.Context, key Key, value string) error
	Remove(ctx context.Context, key Key) error
	// ResetAll removes every key in Keys().
	ResetAll(ctx context.Context) error
}

// QualifiedName joins a namespace and key the way stores persist them.
func QualifiedName(namespace string, key Key) string {
	namespace = strings.TrimSpace(namespace)
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return namespace + "_" + string(key)
}
