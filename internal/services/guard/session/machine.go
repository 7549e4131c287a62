package session

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/omnisign/sessionguard/internal/platform/errors"
	platformotel "github.com/omnisign/sessionguard/internal/platform/otel"
	"github.com/omnisign/sessionguard/internal/services/guard/lockout"
	"github.com/omnisign/sessionguard/internal/services/guard/pin"
	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/omnisign/sessionguard/internal/services/guard/session"

// Option configures a Machine.
type Option func(*Machine)

// WithConfig replaces the default configuration.
func WithConfig(config Config) Option {
	return func(m *Machine) { m.config = config }
}

// WithBiometrics enables the biometric unlock path.
func WithBiometrics(b Biometrics) Option {
	return func(m *Machine) { m.biometrics = b }
}

// WithPrefiller sets the booking-form prefill collaborator.
func WithPrefiller(p Prefiller) Option {
	return func(m *Machine) { m.prefiller = p }
}

// WithNotifier sets the notification-permission collaborator.
func WithNotifier(n Notifier) Option {
	return func(m *Machine) { m.notifier = n }
}

// WithObserver registers a listener for state changes.
func WithObserver(o StateObserver) Option {
	return func(m *Machine) { m.observer = o }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(m *Machine) { m.clock = clock }
}

// Machine owns every write to the guard key space.
type Machine struct {
	keys       *storage.Keyspace
	config     Config
	biometrics Biometrics
	prefiller  Prefiller
	notifier   Notifier
	observer   StateObserver
	clock      func() time.Time
	tracer     trace.Tracer
	tasks      *taskRunner

	mu      sync.Mutex
	current State

	// attempting admits one PIN or biometric attempt at a time. It is separate
	// from mu so a biometric prompt can stay open without blocking reads.
	attempting atomic.Bool
}

// NewMachine builds a machine over keys.
func NewMachine(keys *storage.Keyspace, opts ...Option) *Machine {
	m := &Machine{
		keys:    keys,
		config:  DefaultConfig(),
		clock:   time.Now,
		tracer:  platformotel.Tracer(tracerName),
		current: StateUninitialized,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.config = m.config.normalized()
	m.tasks = newTaskRunner(m.config.BestEffortTimeout)
	return m
}

// Wait blocks until every best-effort task started so far has finished.
func (m *Machine) Wait() {
	m.tasks.Wait()
}

// evaluation is one classification of the key space.
type evaluation struct {
	state    State
	profile  profile.Profile
	verifier pin.Verifier
	deriver  pin.Deriver
	lockout  lockout.State
	timeout  int
}

// classify reads the key space and decides the state. It is the single
// source of truth for which state applies.
func (m *Machine) classify(ctx context.Context, now time.Time) (evaluation, error) {
	onboarding := evaluation{state: StateOnboarding}

	initialized, err := m.keys.Initialized(ctx)
	if err := tolerate(err); err != nil {
		return evaluation{}, err
	}
	if !initialized {
		return onboarding, nil
	}

	owner, found, err := m.keys.Profile(ctx)
	if err := tolerate(err); err != nil {
		return evaluation{}, err
	}
	if !found {
		return onboarding, nil
	}
	verifier, found, err := m.keys.Verifier(ctx)
	if err := tolerate(err); err != nil {
		return evaluation{}, err
	}
	if !found {
		return onboarding, nil
	}
	salt, found, err := m.keys.InstallationSalt(ctx)
	if err := tolerate(err); err != nil {
		return evaluation{}, err
	}
	if !found {
		return onboarding, nil
	}
	deriver, err := pin.NewDeriver(salt)
	if err != nil {
		return onboarding, nil
	}

	ev := evaluation{profile: owner, verifier: verifier, deriver: deriver}
	if ev.lockout, err = m.loadLockout(ctx, now); err != nil {
		return evaluation{}, err
	}
	if ev.timeout, err = m.loadTimeout(ctx); err != nil {
		return evaluation{}, err
	}
	lastActive, found, err := m.keys.LastActive(ctx)
	if err := tolerate(err); err != nil {
		return evaluation{}, err
	}

	switch {
	case ev.lockout.IsLocked(now):
		ev.state = StateLockedOut
	case !found, lastActive.After(now):
		ev.state = StateLocked
	case now.Sub(lastActive) >= time.Duration(ev.timeout)*time.Minute:
		ev.state = StateLocked
	default:
		ev.state = StateUnlocked
	}
	return ev, nil
}

// loadLockout reads the lockout record. An unreadable record becomes a fresh
// lockout, and a deadline further out than one window is pulled back to it.
// Either repair is written back.
func (m *Machine) loadLockout(ctx context.Context, now time.Time) (lockout.State, error) {
	window := m.config.Lockout.Window
	state, err := m.keys.Lockout(ctx)
	if err := tolerate(err); err != nil {
		return lockout.State{}, err
	}

	repair := false
	switch {
	case err != nil:
		until := now.Add(window)
		state = lockout.State{FailureCount: m.config.Lockout.Threshold, LockedUntil: &until}
		repair = true
	case state.LockedUntil != nil && state.LockedUntil.After(now.Add(window)):
		until := now.Add(window)
		state.LockedUntil = &until
		repair = true
	}
	if repair {
		if err := m.keys.SetLockout(ctx, state); err != nil {
			return lockout.State{}, storageError(err)
		}
	}
	return state, nil
}

func (m *Machine) loadTimeout(ctx context.Context) (int, error) {
	minutes, found, err := m.keys.TimeoutMinutes(ctx)
	if err := tolerate(err); err != nil {
		return 0, err
	}
	if !found {
		return m.config.DefaultTimeoutMinutes, nil
	}
	if minutes < m.config.MinTimeoutMinutes {
		return m.config.MinTimeoutMinutes, nil
	}
	return minutes, nil
}

// observe classifies and records the result as the current state.
func (m *Machine) observe(ctx context.Context, now time.Time) (evaluation, error) {
	ev, err := m.classify(ctx, now)
	if err != nil {
		return evaluation{}, err
	}
	m.setState(ctx, ev.state)
	return ev, nil
}

func (m *Machine) setState(ctx context.Context, to State) {
	if m.current == to {
		return
	}
	from := m.current
	m.current = to
	if m.observer != nil {
		m.observer.StateChanged(ctx, from, to)
	}
}

func (m *Machine) snapshot(ctx context.Context, ev evaluation, now time.Time) Snapshot {
	snap := Snapshot{State: ev.state}
	switch ev.state {
	case StateLockedOut:
		snap.RemainingLockMinutes = ev.lockout.RemainingMinutes(now)
	case StateLocked:
		snap.BiometricOffered = m.biometrics != nil && m.biometrics.Available(ctx) && m.biometrics.Registered(ctx)
	}
	return snap
}

// Snapshot reports the current state without side effects.
func (m *Machine) Snapshot(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.classify(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	if ev.state == StateOnboarding && m.current == StateUninitialized {
		ev.state = StateUninitialized
	}
	return m.snapshot(ctx, ev, now), nil
}

// Evaluate handles an app-foreground event. Reaching Unlocked refreshes the
// activity timestamp and prefills the booking form.
func (m *Machine) Evaluate(ctx context.Context) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.evaluate")
	defer func() { endSpan(span, snap, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	if ev.state == StateUnlocked {
		if err := m.touch(ctx, now); err != nil {
			return Snapshot{}, err
		}
		m.prefill(ctx, ev.profile)
	}
	return m.snapshot(ctx, ev, now), nil
}

// Onboard stores the first profile and PIN and unlocks the session.
// Biometric enrollment and the notification prompt follow in the background.
func (m *Machine) Onboard(ctx context.Context, sub Submission) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.onboard")
	defer func() { endSpan(span, snap, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	current := m.snapshot(ctx, ev, now)
	if ev.state != StateOnboarding {
		return current, stateError(ev.state, "onboarding")
	}
	if !pin.ValidFormat(sub.PIN) {
		return current, errors.New(errors.CodePinInvalidFormat, "pin must be exactly 4 digits")
	}
	if sub.PIN != sub.PINConfirm {
		return current, errors.New(errors.CodePinMismatch, "pin confirmation does not match")
	}

	salt, err := pin.NewSalt()
	if err != nil {
		return current, err
	}
	deriver, err := pin.NewDeriver(salt)
	if err != nil {
		return current, err
	}
	verifier, err := deriver.Derive(sub.PIN)
	if err != nil {
		return current, err
	}

	// Remnants of an interrupted install must not carry into this one.
	if err := m.keys.ResetAll(ctx); err != nil {
		return current, storageError(err)
	}
	writes := []func() error{
		func() error { return m.keys.SetInstallationSalt(ctx, salt) },
		func() error { return m.keys.SetVerifier(ctx, verifier) },
		func() error { return m.keys.SetProfile(ctx, sub.Profile) },
		func() error { return m.keys.SetTimeoutMinutes(ctx, m.config.DefaultTimeoutMinutes) },
		func() error { return m.keys.SetLastActive(ctx, now) },
		// Last, so a crash anywhere above reads as not onboarded.
		func() error { return m.keys.SetInitialized(ctx, true) },
	}
	for _, write := range writes {
		if err := write(); err != nil {
			return current, storageError(err)
		}
	}

	m.setState(ctx, StateUnlocked)
	m.prefill(ctx, sub.Profile)
	m.startOnboardingTasks(sub.Profile)
	return Snapshot{State: StateUnlocked}, nil
}

func (m *Machine) startOnboardingTasks(owner profile.Profile) {
	if m.biometrics != nil {
		biometrics := m.biometrics
		m.tasks.Go("biometric registration", func(ctx context.Context) error {
			if !biometrics.Available(ctx) {
				return nil
			}
			return biometrics.Register(ctx, owner)
		})
	}
	if m.notifier != nil {
		m.tasks.Go("notification permission", m.notifier.RequestPermission)
	}
}

// UnlockWithPIN checks entered against the stored verifier. While locked out
// the PIN is accepted but never evaluated.
func (m *Machine) UnlockWithPIN(ctx context.Context, entered string) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.unlock_pin")
	defer func() { endSpan(span, snap, err) }()

	if !m.attempting.CompareAndSwap(false, true) {
		return Snapshot{}, errors.New(errors.CodeAttemptInFlight, "an unlock attempt is already in flight")
	}
	defer m.attempting.Store(false)

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	switch ev.state {
	case StateLocked:
	case StateLockedOut:
		return m.snapshot(ctx, ev, now), lockedOutError(ev.lockout, now)
	default:
		return m.snapshot(ctx, ev, now), stateError(ev.state, "pin unlock")
	}

	if ev.deriver.Verify(entered, ev.verifier) {
		ev, err = m.unlock(ctx, ev, now)
		if err != nil {
			return Snapshot{}, err
		}
		return m.snapshot(ctx, ev, now), nil
	}

	ev.lockout = m.config.Lockout.RecordFailure(ev.lockout, now)
	if err := m.keys.SetLockout(ctx, ev.lockout); err != nil {
		return Snapshot{}, storageError(err)
	}
	if ev.lockout.IsLocked(now) {
		ev.state = StateLockedOut
		m.setState(ctx, StateLockedOut)
	}
	return m.snapshot(ctx, ev, now), errors.New(errors.CodePinIncorrect, "pin did not match")
}

// UnlockWithBiometric runs a platform assertion. Success is equivalent to a
// correct PIN; failure leaves the lockout counter alone.
func (m *Machine) UnlockWithBiometric(ctx context.Context) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.unlock_biometric")
	defer func() { endSpan(span, snap, err) }()

	if !m.attempting.CompareAndSwap(false, true) {
		return Snapshot{}, errors.New(errors.CodeAttemptInFlight, "an unlock attempt is already in flight")
	}
	defer m.attempting.Store(false)

	if snap, err := m.beginBiometric(ctx); err != nil {
		return snap, err
	}

	// The prompt may stay open for up to a minute; mu is not held meanwhile.
	authErr := m.biometrics.Authenticate(ctx)
	if authErr != nil && !errors.HasCode(authErr, errors.CodeBiometricFailed) && !errors.HasCode(authErr, errors.CodeBiometricUnavailable) {
		authErr = errors.Wrap(errors.CodeBiometricFailed, "biometric authentication failed", authErr)
	}
	return m.finishBiometric(ctx, authErr)
}

func (m *Machine) beginBiometric(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	snap := m.snapshot(ctx, ev, now)
	switch ev.state {
	case StateLocked:
	case StateLockedOut:
		return snap, lockedOutError(ev.lockout, now)
	default:
		return snap, stateError(ev.state, "biometric unlock")
	}
	if !snap.BiometricOffered {
		return snap, errors.New(errors.CodeBiometricUnavailable, "biometric unlock is not available")
	}
	return snap, nil
}

func (m *Machine) finishBiometric(ctx context.Context, authErr error) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	if authErr != nil {
		return m.snapshot(ctx, ev, now), authErr
	}
	if ev.state != StateLocked {
		// A reset or expiry landed while the prompt was open.
		return m.snapshot(ctx, ev, now), stateError(ev.state, "biometric unlock")
	}
	ev, err = m.unlock(ctx, ev, now)
	if err != nil {
		return Snapshot{}, err
	}
	return m.snapshot(ctx, ev, now), nil
}

// unlock clears the lockout before honoring the unlock, then refreshes
// activity and prefills.
func (m *Machine) unlock(ctx context.Context, ev evaluation, now time.Time) (evaluation, error) {
	if err := m.keys.SetLockout(ctx, m.config.Lockout.RecordSuccess()); err != nil {
		return evaluation{}, storageError(err)
	}
	if err := m.touch(ctx, now); err != nil {
		return evaluation{}, err
	}
	ev.lockout = lockout.State{}
	ev.state = StateUnlocked
	m.setState(ctx, StateUnlocked)
	m.prefill(ctx, ev.profile)
	return ev, nil
}

// ForgotPIN erases everything the guard owns. It needs explicit confirmation
// and may run from any state.
func (m *Machine) ForgotPIN(ctx context.Context, confirmed bool) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.forgot_pin")
	defer func() { endSpan(span, snap, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	if !confirmed {
		now := m.clock()
		ev, err := m.classify(ctx, now)
		if err != nil {
			return Snapshot{}, err
		}
		return m.snapshot(ctx, ev, now), errors.New(errors.CodeResetNotConfirmed, "reset requires confirmation")
	}
	if err := m.keys.ResetAll(ctx); err != nil {
		return Snapshot{}, storageError(err)
	}
	m.setState(ctx, StateUninitialized)
	log.Printf("guard state reset by user")
	return Snapshot{State: StateUninitialized}, nil
}

// RecordActivity pushes the auto-lock deadline out while unlocked. In any
// other state it only reports the state.
func (m *Machine) RecordActivity(ctx context.Context) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	if ev.state == StateUnlocked {
		if err := m.touch(ctx, now); err != nil {
			return Snapshot{}, err
		}
	}
	return m.snapshot(ctx, ev, now), nil
}

// Settings returns the profile and auto-lock threshold. Only while unlocked.
func (m *Machine) Settings(ctx context.Context) (Settings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, err := m.observe(ctx, m.clock())
	if err != nil {
		return Settings{}, err
	}
	if ev.state != StateUnlocked {
		return Settings{}, stateError(ev.state, "reading the profile")
	}
	return Settings{Profile: ev.profile, TimeoutMinutes: ev.timeout}, nil
}

// EditProfile saves a profile edit. Every field is validated before anything
// is written.
func (m *Machine) EditProfile(ctx context.Context, edit Edit) (snap Snapshot, err error) {
	ctx, span := m.tracer.Start(ctx, "session.edit_profile")
	defer func() { endSpan(span, snap, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock()
	ev, err := m.observe(ctx, now)
	if err != nil {
		return Snapshot{}, err
	}
	current := m.snapshot(ctx, ev, now)
	if ev.state != StateUnlocked {
		return current, stateError(ev.state, "profile edit")
	}

	timeout := ev.timeout
	if edit.TimeoutMinutes != 0 {
		if edit.TimeoutMinutes < m.config.MinTimeoutMinutes {
			return current, errors.WithMetadata(errors.CodeTimeoutOutOfRange,
				fmt.Sprintf("timeout must be at least %d minutes", m.config.MinTimeoutMinutes),
				map[string]string{"Min": strconv.Itoa(m.config.MinTimeoutMinutes)})
		}
		timeout = edit.TimeoutMinutes
	}

	var verifier pin.Verifier
	if edit.NewPIN != "" {
		if !pin.ValidFormat(edit.NewPIN) {
			return current, errors.New(errors.CodePinInvalidFormat, "pin must be exactly 4 digits")
		}
		if m.config.RequireCurrentPIN {
			if edit.CurrentPIN == "" {
				return current, errors.New(errors.CodeCurrentPinRequired, "current pin is required")
			}
			if !ev.deriver.Verify(edit.CurrentPIN, ev.verifier) {
				return current, errors.New(errors.CodePinIncorrect, "current pin did not match")
			}
		}
		if verifier, err = ev.deriver.Derive(edit.NewPIN); err != nil {
			return current, err
		}
	}

	if err := m.keys.SetProfile(ctx, edit.Profile); err != nil {
		return current, storageError(err)
	}
	if err := m.keys.SetTimeoutMinutes(ctx, timeout); err != nil {
		return current, storageError(err)
	}
	if verifier != "" {
		if err := m.keys.SetVerifier(ctx, verifier); err != nil {
			return current, storageError(err)
		}
	}
	if err := m.touch(ctx, now); err != nil {
		return current, err
	}
	m.prefill(ctx, edit.Profile)
	return current, nil
}

func (m *Machine) touch(ctx context.Context, now time.Time) error {
	if err := m.keys.SetLastActive(ctx, now); err != nil {
		return storageError(err)
	}
	return nil
}

func (m *Machine) prefill(ctx context.Context, p profile.Profile) {
	if m.prefiller != nil {
		m.prefiller.Prefill(ctx, p)
	}
}

// tolerate swallows corruption, which callers then treat like an absent key,
// and turns every other read failure into a storage error.
func tolerate(err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, storage.ErrCorrupt) {
		log.Printf("ignoring unreadable guard entry: %v", err)
		return nil
	}
	return storageError(err)
}

func storageError(err error) error {
	if errors.HasCode(err, errors.CodeStorageUnavailable) {
		return err
	}
	return errors.Wrap(errors.CodeStorageUnavailable, "guard storage failed", err)
}

func stateError(state State, op string) error {
	return errors.WithMetadata(errors.CodeStateDisallowsOp,
		fmt.Sprintf("%s is not allowed while %s", op, state),
		map[string]string{"State": string(state)})
}

func lockedOutError(state lockout.State, now time.Time) error {
	minutes := state.RemainingMinutes(now)
	return errors.WithMetadata(errors.CodeLockedOut,
		fmt.Sprintf("pin entry locked for %d more minutes", minutes),
		map[string]string{"Minutes": strconv.Itoa(minutes)})
}

func endSpan(span trace.Span, snap Snapshot, err error) {
	if snap.State != "" {
		span.SetAttributes(attribute.String("guard.state", string(snap.State)))
	}
	if err != nil {
		span.SetStatus(otelcodes.Error, string(errors.CodeOf(err)))
	}
	span.End()
}
