package session

import (
	"context"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	"github.com/omnisign/sessionguard/internal/services/guard/pin"
	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
	"github.com/omnisign/sessionguard/internal/services/guard/storage/memory"
)

func TestFreshInstallIsOnboarding(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	snap, err := h.machine.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.State != StateUninitialized {
		t.Fatalf("state before first foreground = %q, want %q", snap.State, StateUninitialized)
	}
	h.expectState(StateOnboarding)
	if h.prefill.count() != 0 {
		t.Fatal("expected no prefill before onboarding")
	}
}

func TestOnboardingUnlocksAndStoresVerifier(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.expectState(StateOnboarding)

	h.onboard("1234")

	initialized, err := h.keys.Initialized(ctx)
	if err != nil || !initialized {
		t.Fatalf("initialized = %v err=%v", initialized, err)
	}
	salt, _, err := h.keys.InstallationSalt(ctx)
	if err != nil {
		t.Fatalf("salt: %v", err)
	}
	deriver, err := pin.NewDeriver(salt)
	if err != nil {
		t.Fatalf("deriver: %v", err)
	}
	want, err := deriver.Derive("1234")
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	stored, _, err := h.keys.Verifier(ctx)
	if err != nil || stored != want {
		t.Fatalf("verifier mismatch: err=%v", err)
	}
	saved, _, err := h.keys.Profile(ctx)
	if err != nil || saved != testProfile {
		t.Fatalf("profile = %+v err=%v", saved, err)
	}
	timeout, _, err := h.keys.TimeoutMinutes(ctx)
	if err != nil || timeout != DefaultTimeoutMinutes {
		t.Fatalf("timeout = %d err=%v", timeout, err)
	}

	if h.prefill.count() != 1 {
		t.Fatalf("prefill calls = %d, want 1", h.prefill.count())
	}
	if h.bio.registerCalls != 1 {
		t.Fatalf("biometric registrations = %d, want 1", h.bio.registerCalls)
	}
	if h.notify.calls != 1 {
		t.Fatalf("notification requests = %d, want 1", h.notify.calls)
	}
	h.expectState(StateUnlocked)
}

func TestOnboardingValidation(t *testing.T) {
	tests := []struct {
		name    string
		pin     string
		confirm string
		code    errors.Code
	}{
		{name: "too short", pin: "123", confirm: "123", code: errors.CodePinInvalidFormat},
		{name: "too long", pin: "12345", confirm: "12345", code: errors.CodePinInvalidFormat},
		{name: "non digits", pin: "12a4", confirm: "12a4", code: errors.CodePinInvalidFormat},
		{name: "mismatch", pin: "1234", confirm: "4321", code: errors.CodePinMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			snap, err := h.machine.Onboard(context.Background(), Submission{
				Profile:    testProfile,
				PIN:        tt.pin,
				PINConfirm: tt.confirm,
			})
			if !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			if snap.State != StateOnboarding {
				t.Fatalf("state = %q, want %q", snap.State, StateOnboarding)
			}
			if entries := h.store.Snapshot(); len(entries) != 0 {
				t.Fatalf("expected nothing persisted, got %v", entries)
			}
		})
	}
}

func TestOnboardRefusedOnceOnboarded(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")

	_, err := h.machine.Onboard(context.Background(), Submission{Profile: testProfile, PIN: "9999", PINConfirm: "9999"})
	if !errors.HasCode(err, errors.CodeStateDisallowsOp) {
		t.Fatalf("err = %v, want %s", err, errors.CodeStateDisallowsOp)
	}
}

func TestOnboardClearsRemnantsOfEarlierInstall(t *testing.T) {
	h := newHarness(t)
	h.store.Put("omnisign_pin_failure_count", "3")
	h.store.Put("omnisign_biometric_registered", "true")
	h.store.Put("omnisign_initialized", "true")

	h.expectState(StateOnboarding)
	h.onboard("1234")

	if h.failureCount() != 0 {
		t.Fatalf("failure count = %d, want 0", h.failureCount())
	}
	if registered, _ := h.keys.BiometricRegistered(context.Background()); registered {
		t.Fatal("expected stale biometric flag cleared")
	}
}

func TestInactivityLocks(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")

	h.advance(29 * time.Minute)
	h.expectState(StateUnlocked)

	h.advance(31 * time.Minute)
	h.expectState(StateLocked)
}

func TestTimeoutBoundaryLocks(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")

	h.advance(30 * time.Minute)
	h.expectState(StateLocked)
}

func TestRepeatedFailuresLockOut(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	for i := 1; i <= 3; i++ {
		snap, err := h.machine.UnlockWithPIN(ctx, "0000")
		if !errors.HasCode(err, errors.CodePinIncorrect) {
			t.Fatalf("attempt %d err = %v", i, err)
		}
		if snap.State != StateLocked {
			t.Fatalf("attempt %d state = %q, want %q", i, snap.State, StateLocked)
		}
	}

	snap, err := h.machine.UnlockWithPIN(ctx, "0000")
	if !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("fourth attempt err = %v", err)
	}
	if snap.State != StateLockedOut || snap.RemainingLockMinutes != 30 {
		t.Fatalf("fourth attempt snapshot = %+v", snap)
	}

	h.advance(10 * time.Minute)
	snap, err = h.machine.UnlockWithPIN(ctx, "1234")
	if !errors.HasCode(err, errors.CodeLockedOut) {
		t.Fatalf("fifth attempt err = %v, want %s", err, errors.CodeLockedOut)
	}
	domainErr, _ := errors.As(err)
	if domainErr.Metadata["Minutes"] != "20" {
		t.Fatalf("remaining minutes metadata = %q", domainErr.Metadata["Minutes"])
	}
	if snap.State != StateLockedOut || snap.RemainingLockMinutes != 20 {
		t.Fatalf("fifth attempt snapshot = %+v", snap)
	}
	if h.failureCount() != 4 {
		t.Fatalf("failure count = %d, want 4 (attempt must not be evaluated)", h.failureCount())
	}

	h.advance(20 * time.Minute)
	h.expectState(StateLocked)
	snap, err = h.machine.UnlockWithPIN(ctx, "1234")
	if err != nil || snap.State != StateUnlocked {
		t.Fatalf("unlock after window = %+v err=%v", snap, err)
	}
}

func TestCorrectPINResetsFailures(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	for i := 0; i < 2; i++ {
		if _, err := h.machine.UnlockWithPIN(ctx, "9999"); !errors.HasCode(err, errors.CodePinIncorrect) {
			t.Fatalf("failure %d err = %v", i+1, err)
		}
	}
	snap, err := h.machine.UnlockWithPIN(ctx, "1234")
	if err != nil || snap.State != StateUnlocked {
		t.Fatalf("unlock = %+v err=%v", snap, err)
	}
	if h.failureCount() != 0 {
		t.Fatalf("failure count = %d, want 0", h.failureCount())
	}

	h.lock()
	if _, err := h.machine.UnlockWithPIN(ctx, "9999"); !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("new cycle err = %v", err)
	}
	if h.failureCount() != 1 {
		t.Fatalf("failure count = %d, want 1", h.failureCount())
	}
}

func TestMalformedPINCountsAsFailure(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")
	h.lock()

	if _, err := h.machine.UnlockWithPIN(context.Background(), "12"); !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("err = %v, want %s", err, errors.CodePinIncorrect)
	}
	if h.failureCount() != 1 {
		t.Fatalf("failure count = %d, want 1", h.failureCount())
	}
}

func TestPINUnlockRefusedWhenUnlocked(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")

	if _, err := h.machine.UnlockWithPIN(context.Background(), "1234"); !errors.HasCode(err, errors.CodeStateDisallowsOp) {
		t.Fatalf("err = %v, want %s", err, errors.CodeStateDisallowsOp)
	}
}

func TestBiometricUnlockClearsLockoutCounter(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	if _, err := h.machine.UnlockWithPIN(ctx, "0000"); !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("pin failure err = %v", err)
	}
	snap, err := h.machine.Snapshot(ctx)
	if err != nil || !snap.BiometricOffered {
		t.Fatalf("snapshot = %+v err=%v, want biometric offered", snap, err)
	}

	snap, err = h.machine.UnlockWithBiometric(ctx)
	if err != nil || snap.State != StateUnlocked {
		t.Fatalf("biometric unlock = %+v err=%v", snap, err)
	}
	if h.failureCount() != 0 {
		t.Fatalf("failure count = %d, want 0", h.failureCount())
	}
	if h.prefill.count() != 2 {
		t.Fatalf("prefill calls = %d, want 2", h.prefill.count())
	}
}

func TestBiometricFailureDoesNotCountTowardLockout(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	for i := 0; i < 3; i++ {
		if _, err := h.machine.UnlockWithPIN(ctx, "0000"); !errors.HasCode(err, errors.CodePinIncorrect) {
			t.Fatalf("pin failure %d err = %v", i+1, err)
		}
	}
	h.bio.authErr = errors.New(errors.CodeBiometricFailed, "no match")
	for i := 0; i < 5; i++ {
		snap, err := h.machine.UnlockWithBiometric(ctx)
		if !errors.HasCode(err, errors.CodeBiometricFailed) {
			t.Fatalf("biometric attempt %d err = %v", i+1, err)
		}
		if snap.State != StateLocked {
			t.Fatalf("biometric attempt %d state = %q", i+1, snap.State)
		}
	}
	if h.failureCount() != 3 {
		t.Fatalf("failure count = %d, want 3", h.failureCount())
	}
}

func TestBiometricUncodedErrorBecomesFailure(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	h.onboard("1234")
	h.lock()

	h.bio.authErr = context.DeadlineExceeded
	if _, err := h.machine.UnlockWithBiometric(context.Background()); !errors.HasCode(err, errors.CodeBiometricFailed) {
		t.Fatalf("err = %v, want %s", err, errors.CodeBiometricFailed)
	}
}

func TestBiometricRefusedWhenLockedOut(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.onboard("1234")
	h.lock()
	for i := 0; i < 4; i++ {
		_, _ = h.machine.UnlockWithPIN(ctx, "0000")
	}

	snap, err := h.machine.UnlockWithBiometric(ctx)
	if !errors.HasCode(err, errors.CodeLockedOut) {
		t.Fatalf("err = %v, want %s", err, errors.CodeLockedOut)
	}
	if snap.BiometricOffered {
		t.Fatal("expected biometric not offered while locked out")
	}
	if h.bio.authCalls != 0 {
		t.Fatal("expected no platform prompt while locked out")
	}
}

func TestBiometricUnavailableIsNotOffered(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	snap, err := h.machine.Snapshot(ctx)
	if err != nil || snap.BiometricOffered {
		t.Fatalf("snapshot = %+v err=%v, want no biometric", snap, err)
	}
	if _, err := h.machine.UnlockWithBiometric(ctx); !errors.HasCode(err, errors.CodeBiometricUnavailable) {
		t.Fatalf("err = %v, want %s", err, errors.CodeBiometricUnavailable)
	}
}

func TestConcurrentAttemptIsRejected(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	started := make(chan struct{})
	release := make(chan struct{})
	h.bio.mu.Lock()
	h.bio.authStarted, h.bio.authRelease = started, release
	h.bio.mu.Unlock()

	type result struct {
		snap Snapshot
		err  error
	}
	done := make(chan result, 1)
	go func() {
		snap, err := h.machine.UnlockWithBiometric(ctx)
		done <- result{snap: snap, err: err}
	}()
	<-started

	if _, err := h.machine.UnlockWithPIN(ctx, "1234"); !errors.HasCode(err, errors.CodeAttemptInFlight) {
		t.Fatalf("concurrent pin err = %v, want %s", err, errors.CodeAttemptInFlight)
	}
	if snap, err := h.machine.Snapshot(ctx); err != nil || snap.State != StateLocked {
		t.Fatalf("snapshot during prompt = %+v err=%v", snap, err)
	}

	close(release)
	got := <-done
	if got.err != nil || got.snap.State != StateUnlocked {
		t.Fatalf("biometric result = %+v err=%v", got.snap, got.err)
	}
	if h.failureCount() != 0 {
		t.Fatal("expected rejected attempt not to count")
	}
}

func TestResetDuringBiometricPromptWins(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	started := make(chan struct{})
	release := make(chan struct{})
	h.bio.mu.Lock()
	h.bio.authStarted, h.bio.authRelease = started, release
	h.bio.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := h.machine.UnlockWithBiometric(ctx)
		done <- err
	}()
	<-started

	if _, err := h.machine.ForgotPIN(ctx, true); err != nil {
		t.Fatalf("forgot pin: %v", err)
	}
	close(release)
	if err := <-done; !errors.HasCode(err, errors.CodeStateDisallowsOp) {
		t.Fatalf("err = %v, want %s", err, errors.CodeStateDisallowsOp)
	}
	if _, found, _ := h.keys.LastActive(ctx); found {
		t.Fatal("expected no activity written after reset")
	}
}

func TestForgotPINRequiresConfirmation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	snap, err := h.machine.ForgotPIN(ctx, false)
	if !errors.HasCode(err, errors.CodeResetNotConfirmed) {
		t.Fatalf("err = %v, want %s", err, errors.CodeResetNotConfirmed)
	}
	if snap.State != StateLocked {
		t.Fatalf("state = %q, want %q", snap.State, StateLocked)
	}
	if initialized, _ := h.keys.Initialized(ctx); !initialized {
		t.Fatal("expected state kept without confirmation")
	}
}

func TestForgotPINResetsEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()
	_, _ = h.machine.UnlockWithPIN(ctx, "0000")
	h.store.Put("other_app_theme", "dark")

	for i := 0; i < 2; i++ {
		snap, err := h.machine.ForgotPIN(ctx, true)
		if err != nil {
			t.Fatalf("forgot pin #%d: %v", i+1, err)
		}
		if snap.State != StateUninitialized {
			t.Fatalf("state = %q, want %q", snap.State, StateUninitialized)
		}
	}
	entries := h.store.Snapshot()
	if len(entries) != 1 || entries["other_app_theme"] != "dark" {
		t.Fatalf("entries after reset = %v", entries)
	}

	snap, err := h.machine.Snapshot(ctx)
	if err != nil || snap.State != StateUninitialized {
		t.Fatalf("snapshot = %+v err=%v", snap, err)
	}
	h.expectState(StateOnboarding)
}

func TestRecordActivityRefreshesOnlyWhileUnlocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")

	h.advance(20 * time.Minute)
	if snap, err := h.machine.RecordActivity(ctx); err != nil || snap.State != StateUnlocked {
		t.Fatalf("activity = %+v err=%v", snap, err)
	}
	h.advance(20 * time.Minute)
	h.expectState(StateUnlocked)

	h.advance(31 * time.Minute)
	before := h.store.Snapshot()["omnisign_last_active"]
	snap, err := h.machine.RecordActivity(ctx)
	if err != nil || snap.State != StateLocked {
		t.Fatalf("activity after timeout = %+v err=%v", snap, err)
	}
	if after := h.store.Snapshot()["omnisign_last_active"]; after != before {
		t.Fatal("expected activity ignored while locked")
	}
}

func TestEditProfileUpdatesEverything(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")

	updated := testProfile
	updated.Phone = "+55 11 5555-0199"
	if _, err := h.machine.EditProfile(ctx, Edit{Profile: updated, TimeoutMinutes: 10, NewPIN: "4321"}); err != nil {
		t.Fatalf("edit: %v", err)
	}

	settings, err := h.machine.Settings(ctx)
	if err != nil {
		t.Fatalf("settings: %v", err)
	}
	if settings.Profile != updated || settings.TimeoutMinutes != 10 {
		t.Fatalf("settings = %+v", settings)
	}

	h.advance(11 * time.Minute)
	h.expectState(StateLocked)
	if _, err := h.machine.UnlockWithPIN(ctx, "1234"); !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("old pin err = %v", err)
	}
	if snap, err := h.machine.UnlockWithPIN(ctx, "4321"); err != nil || snap.State != StateUnlocked {
		t.Fatalf("new pin = %+v err=%v", snap, err)
	}
}

func TestEditProfileKeepsPINAndTimeoutWhenOmitted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")

	updated := testProfile
	updated.Company = "Acme Cargo"
	if _, err := h.machine.EditProfile(ctx, Edit{Profile: updated}); err != nil {
		t.Fatalf("edit: %v", err)
	}
	settings, _ := h.machine.Settings(ctx)
	if settings.TimeoutMinutes != DefaultTimeoutMinutes || settings.Profile.Company != "Acme Cargo" {
		t.Fatalf("settings = %+v", settings)
	}
	h.lock()
	if snap, err := h.machine.UnlockWithPIN(ctx, "1234"); err != nil || snap.State != StateUnlocked {
		t.Fatalf("unlock = %+v err=%v", snap, err)
	}
}

func TestEditProfileValidationWritesNothing(t *testing.T) {
	tests := []struct {
		name string
		edit Edit
		code errors.Code
	}{
		{name: "timeout below minimum", edit: Edit{TimeoutMinutes: 4}, code: errors.CodeTimeoutOutOfRange},
		{name: "negative timeout", edit: Edit{TimeoutMinutes: -1}, code: errors.CodeTimeoutOutOfRange},
		{name: "malformed new pin", edit: Edit{NewPIN: "12"}, code: errors.CodePinInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.onboard("1234")
			before := h.store.Snapshot()

			tt.edit.Profile = profile.Profile{FullName: "Someone Else"}
			if _, err := h.machine.EditProfile(context.Background(), tt.edit); !errors.HasCode(err, tt.code) {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
			after := h.store.Snapshot()
			for key, value := range before {
				if after[key] != value {
					t.Fatalf("%s changed from %q to %q", key, value, after[key])
				}
			}
		})
	}
}

func TestEditProfileTimeoutMetadata(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")

	_, err := h.machine.EditProfile(context.Background(), Edit{Profile: testProfile, TimeoutMinutes: 2})
	domainErr, ok := errors.As(err)
	if !ok || domainErr.Metadata["Min"] != strconv.Itoa(MinTimeoutMinutes) {
		t.Fatalf("err = %v", err)
	}
}

func TestEditProfileRequiresCurrentPINWhenConfigured(t *testing.T) {
	config := DefaultConfig()
	config.RequireCurrentPIN = true
	h := newHarness(t, WithConfig(config))
	ctx := context.Background()
	h.onboard("1234")

	if _, err := h.machine.EditProfile(ctx, Edit{Profile: testProfile, NewPIN: "4321"}); !errors.HasCode(err, errors.CodeCurrentPinRequired) {
		t.Fatalf("missing current pin err = %v", err)
	}
	if _, err := h.machine.EditProfile(ctx, Edit{Profile: testProfile, NewPIN: "4321", CurrentPIN: "0000"}); !errors.HasCode(err, errors.CodePinIncorrect) {
		t.Fatalf("wrong current pin err = %v", err)
	}
	if h.failureCount() != 0 {
		t.Fatal("expected wrong current pin not to count toward lockout")
	}
	if _, err := h.machine.EditProfile(ctx, Edit{Profile: testProfile, NewPIN: "4321", CurrentPIN: "1234"}); err != nil {
		t.Fatalf("edit with current pin: %v", err)
	}
}

func TestProfileAccessRequiresUnlocked(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.lock()

	if _, err := h.machine.Settings(ctx); !errors.HasCode(err, errors.CodeStateDisallowsOp) {
		t.Fatalf("settings err = %v", err)
	}
	if _, err := h.machine.EditProfile(ctx, Edit{Profile: testProfile}); !errors.HasCode(err, errors.CodeStateDisallowsOp) {
		t.Fatalf("edit err = %v", err)
	}
}

func TestInconsistentStateFallsBackSafely(t *testing.T) {
	tests := []struct {
		name  string
		plant func(h *harness)
		want  State
	}{
		{
			name:  "profile missing",
			plant: func(h *harness) { _ = h.store.Remove(context.Background(), storage.KeyProfile) },
			want:  StateOnboarding,
		},
		{
			name:  "profile corrupt",
			plant: func(h *harness) { h.store.Put("omnisign_profile", "{") },
			want:  StateOnboarding,
		},
		{
			name:  "verifier corrupt",
			plant: func(h *harness) { h.store.Put("omnisign_pin_verifier", "abc") },
			want:  StateOnboarding,
		},
		{
			name:  "salt missing",
			plant: func(h *harness) { _ = h.store.Remove(context.Background(), storage.KeyInstallationSalt) },
			want:  StateOnboarding,
		},
		{
			name:  "initialized corrupt",
			plant: func(h *harness) { h.store.Put("omnisign_initialized", "yes please") },
			want:  StateOnboarding,
		},
		{
			name:  "last active missing",
			plant: func(h *harness) { _ = h.store.Remove(context.Background(), storage.KeyLastActive) },
			want:  StateLocked,
		},
		{
			name:  "last active corrupt",
			plant: func(h *harness) { h.store.Put("omnisign_last_active", "soon") },
			want:  StateLocked,
		},
		{
			name: "last active in the future",
			plant: func(h *harness) {
				_ = h.keys.SetLastActive(context.Background(), h.now.Add(time.Hour))
			},
			want: StateLocked,
		},
		{
			name:  "failure count corrupt",
			plant: func(h *harness) { h.store.Put("omnisign_pin_failure_count", "many") },
			want:  StateLockedOut,
		},
		{
			name:  "timeout corrupt uses default",
			plant: func(h *harness) { h.store.Put("omnisign_timeout_minutes", "0") },
			want:  StateUnlocked,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.onboard("1234")
			h.advance(time.Minute)
			tt.plant(h)
			h.expectState(tt.want)
		})
	}
}

func TestCorruptLockoutIsRepaired(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.onboard("1234")
	h.store.Put("omnisign_pin_locked_until", "garbage")

	snap := h.expectState(StateLockedOut)
	if snap.RemainingLockMinutes != 30 {
		t.Fatalf("remaining = %d, want 30", snap.RemainingLockMinutes)
	}
	state, err := h.keys.Lockout(ctx)
	if err != nil || state.FailureCount != 4 || state.LockedUntil == nil {
		t.Fatalf("repaired lockout = %+v err=%v", state, err)
	}
}

func TestFarFutureLockoutIsClamped(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")
	far := h.now.Add(48 * time.Hour)
	h.store.Put("omnisign_pin_failure_count", "4")
	h.store.Put("omnisign_pin_locked_until", strconv.FormatInt(far.UnixMilli(), 10))

	snap := h.expectState(StateLockedOut)
	if snap.RemainingLockMinutes != 30 {
		t.Fatalf("remaining = %d, want 30", snap.RemainingLockMinutes)
	}
}

func TestShortStoredTimeoutIsClamped(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")
	h.store.Put("omnisign_timeout_minutes", "1")

	h.advance(3 * time.Minute)
	h.expectState(StateUnlocked)
	h.advance(5 * time.Minute)
	h.expectState(StateLocked)
}

func TestBestEffortFailuresNeverBlockOnboarding(t *testing.T) {
	h := newHarness(t)
	h.bio.available = true
	h.bio.registerErr = errors.New(errors.CodeBiometricFailed, "user dismissed prompt")
	h.notify.panic = true

	h.onboard("1234")

	if h.bio.registerCalls != 1 || h.notify.calls != 1 {
		t.Fatalf("register=%d notify=%d, want 1 each", h.bio.registerCalls, h.notify.calls)
	}
	if registered, _ := h.keys.BiometricRegistered(context.Background()); registered {
		t.Fatal("expected registration flag untouched")
	}
	h.expectState(StateUnlocked)
}

func TestBiometricRegistrationSkippedWhenUnavailable(t *testing.T) {
	h := newHarness(t)
	h.onboard("1234")
	if h.bio.registerCalls != 0 {
		t.Fatalf("register calls = %d, want 0", h.bio.registerCalls)
	}
}

func TestObserverSeesTransitions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.expectState(StateOnboarding)
	h.onboard("1234")
	h.lock()
	_, _ = h.machine.ForgotPIN(ctx, true)

	want := []transition{
		{StateUninitialized, StateOnboarding},
		{StateOnboarding, StateUnlocked},
		{StateUnlocked, StateLocked},
		{StateLocked, StateUninitialized},
	}
	if len(h.watch.transitions) != len(want) {
		t.Fatalf("transitions = %v, want %v", h.watch.transitions, want)
	}
	for i := range want {
		if h.watch.transitions[i] != want[i] {
			t.Fatalf("transition %d = %v, want %v", i, h.watch.transitions[i], want[i])
		}
	}
}

func TestStorageFailureSurfaces(t *testing.T) {
	backing := &failingStore{Store: memory.New("omnisign")}
	machine := NewMachine(storage.NewKeyspace(backing))
	t.Cleanup(machine.Wait)

	backing.broken = true
	_, err := machine.Evaluate(context.Background())
	if !errors.HasCode(err, errors.CodeStorageUnavailable) {
		t.Fatalf("err = %v, want %s", err, errors.CodeStorageUnavailable)
	}
	if !strings.Contains(err.Error(), errDiskGone.Error()) {
		t.Fatalf("expected cause in message, got %q", err.Error())
	}
}

func TestConfigNormalization(t *testing.T) {
	config := Config{DefaultTimeoutMinutes: 2, MinTimeoutMinutes: 5}.normalized()
	if config.DefaultTimeoutMinutes != 5 {
		t.Fatalf("default timeout = %d, want clamp to 5", config.DefaultTimeoutMinutes)
	}
	if config.Lockout.Threshold != 4 || config.Lockout.Window != 30*time.Minute {
		t.Fatalf("lockout = %+v", config.Lockout)
	}
	if config.BestEffortTimeout <= 0 {
		t.Fatal("expected best-effort timeout default")
	}
}
