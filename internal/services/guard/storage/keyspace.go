package storage

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/omnisign/sessionguard/internal/services/guard/lockout"
	"github.com/omnisign/sessionguard/internal/services/guard/pin"
	"github.com/omnisign/sessionguard/internal/services/guard/profile"
)

// Keyspace reads and writes typed values through a Store.
type Keyspace struct {
	store Store
}

// NewKeyspace wraps store with typed accessors.
func NewKeyspace(store Store) *Keyspace {
	return &Keyspace{store: store}
}

func (k *Keyspace) corrupt(key Key, cause error) error {
	if cause == nil {
		return fmt.Errorf("%s: %w", key, ErrCorrupt)
	}
	return fmt.Errorf("%s: %w: %v", key, ErrCorrupt, cause)
}

func (k *Keyspace) get(ctx context.Context, key Key) (string, bool, error) {
	if k == nil || k.store == nil {
		return "", false, fmt.Errorf("storage is not configured")
	}
	value, found, err := k.store.Get(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, found, nil
}

func (k *Keyspace) set(ctx context.Context, key Key, value string) error {
	if k == nil || k.store == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := k.store.Set(ctx, key, value); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (k *Keyspace) remove(ctx context.Context, key Key) error {
	if k == nil || k.store == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := k.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("remove %s: %w", key, err)
	}
	return nil
}

// Profile returns the saved profile.
func (k *Keyspace) Profile(ctx context.Context) (profile.Profile, bool, error) {
	raw, found, err := k.get(ctx, KeyProfile)
	if err != nil || !found {
		return profile.Profile{}, false, err
	}
	var p profile.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return profile.Profile{}, false, k.corrupt(KeyProfile, err)
	}
	return p, true, nil
}

// SetProfile saves p.
func (k *Keyspace) SetProfile(ctx context.Context, p profile.Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	return k.set(ctx, KeyProfile, string(payload))
}

// Verifier returns the stored PIN verifier.
func (k *Keyspace) Verifier(ctx context.Context) (pin.Verifier, bool, error) {
	raw, found, err := k.get(ctx, KeyPinVerifier)
	if err != nil || !found {
		return "", false, err
	}
	if len(raw) != pin.VerifierLength {
		return "", false, k.corrupt(KeyPinVerifier, nil)
	}
	return pin.Verifier(raw), true, nil
}

// SetVerifier replaces the PIN verifier.
func (k *Keyspace) SetVerifier(ctx context.Context, v pin.Verifier) error {
	return k.set(ctx, KeyPinVerifier, string(v))
}

// InstallationSalt returns the PIN derivation salt.
func (k *Keyspace) InstallationSalt(ctx context.Context) ([]byte, bool, error) {
	raw, found, err := k.get(ctx, KeyInstallationSalt)
	if err != nil || !found {
		return nil, false, err
	}
	salt, err := hex.DecodeString(raw)
	if err != nil || len(salt) != pin.SaltSize {
		return nil, false, k.corrupt(KeyInstallationSalt, err)
	}
	return salt, true, nil
}

// SetInstallationSalt stores the PIN derivation salt.
func (k *Keyspace) SetInstallationSalt(ctx context.Context, salt []byte) error {
	return k.set(ctx, KeyInstallationSalt, hex.EncodeToString(salt))
}

// LastActive returns the activity timestamp.
func (k *Keyspace) LastActive(ctx context.Context) (time.Time, bool, error) {
	return k.getMillis(ctx, KeyLastActive)
}

// SetLastActive records the activity timestamp.
func (k *Keyspace) SetLastActive(ctx context.Context, at time.Time) error {
	return k.setMillis(ctx, KeyLastActive, at)
}

// TimeoutMinutes returns the inactivity threshold. Non-positive values are corrupt.
func (k *Keyspace) TimeoutMinutes(ctx context.Context) (int, bool, error) {
	raw, found, err := k.get(ctx, KeyTimeoutMinutes)
	if err != nil || !found {
		return 0, false, err
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, false, k.corrupt(KeyTimeoutMinutes, err)
	}
	return minutes, true, nil
}

// SetTimeoutMinutes stores the inactivity threshold.
func (k *Keyspace) SetTimeoutMinutes(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("timeout minutes must be positive")
	}
	return k.set(ctx, KeyTimeoutMinutes, strconv.Itoa(minutes))
}

// Initialized reports whether onboarding completed. Absent means false.
func (k *Keyspace) Initialized(ctx context.Context) (bool, error) {
	return k.getBool(ctx, KeyInitialized)
}

// SetInitialized records onboarding completion.
func (k *Keyspace) SetInitialized(ctx context.Context, value bool) error {
	return k.set(ctx, KeyInitialized, strconv.FormatBool(value))
}

// BiometricRegistered reports whether a platform credential was created.
func (k *Keyspace) BiometricRegistered(ctx context.Context) (bool, error) {
	return k.getBool(ctx, KeyBiometricRegistered)
}

// SetBiometricRegistered records the registration flag.
func (k *Keyspace) SetBiometricRegistered(ctx context.Context, value bool) error {
	return k.set(ctx, KeyBiometricRegistered, strconv.FormatBool(value))
}

// BiometricCredential returns the relying-party credential record.
func (k *Keyspace) BiometricCredential(ctx context.Context) (string, bool, error) {
	return k.get(ctx, KeyBiometricCredential)
}

// SetBiometricCredential stores the relying-party credential record.
func (k *Keyspace) SetBiometricCredential(ctx context.Context, record string) error {
	return k.set(ctx, KeyBiometricCredential, record)
}

// Lockout returns the failure counter and deadline. Absent keys read as zero.
func (k *Keyspace) Lockout(ctx context.Context) (lockout.State, error) {
	var state lockout.State

	rawCount, found, err := k.get(ctx, KeyPinFailureCount)
	if err != nil {
		return lockout.State{}, err
	}
	if found {
		count, convErr := strconv.Atoi(rawCount)
		if convErr != nil || count < 0 {
			return lockout.State{}, k.corrupt(KeyPinFailureCount, convErr)
		}
		state.FailureCount = count
	}

	until, found, err := k.getMillis(ctx, KeyPinLockedUntil)
	if err != nil {
		return lockout.State{}, err
	}
	if found {
		state.LockedUntil = &until
	}
	return state, nil
}

// SetLockout persists state. The zero state removes both keys.
func (k *Keyspace) SetLockout(ctx context.Context, state lockout.State) error {
	if state.FailureCount <= 0 {
		if err := k.remove(ctx, KeyPinFailureCount); err != nil {
			return err
		}
	} else if err := k.set(ctx, KeyPinFailureCount, strconv.Itoa(state.FailureCount)); err != nil {
		return err
	}
	if state.LockedUntil == nil {
		return k.remove(ctx, KeyPinLockedUntil)
	}
	return k.setMillis(ctx, KeyPinLockedUntil, *state.LockedUntil)
}

// ResetAll removes every guard key.
func (k *Keyspace) ResetAll(ctx context.Context) error {
	if k == nil || k.store == nil {
		return fmt.Errorf("storage is not configured")
	}
	if err := k.store.ResetAll(ctx); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}
	return nil
}

func (k *Keyspace) getBool(ctx context.Context, key Key) (bool, error) {
	raw, found, err := k.get(ctx, key)
	if err != nil || !found {
		return false, err
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false, k.corrupt(key, err)
	}
	return value, nil
}

func (k *Keyspace) getMillis(ctx context.Context, key Key) (time.Time, bool, error) {
	raw, found, err := k.get(ctx, key)
	if err != nil || !found {
		return time.Time{}, false, err
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || millis < 0 {
		return time.Time{}, false, k.corrupt(key, err)
	}
	return time.UnixMilli(millis).UTC(), true, nil
}

func (k *Keyspace) setMillis(ctx context.Context, key Key, at time.Time) error {
	return k.set(ctx, key, strconv.FormatInt(at.UTC().UnixMilli(), 10))
}
