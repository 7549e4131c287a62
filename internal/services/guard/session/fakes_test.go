package session

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/storage"
	"github.com/omnisign/sessionguard/internal/services/guard/storage/memory"
)

var testProfile = profile.Profile{
	Company:  "Acme Travel",
	FullName: "Ana Souza",
	Phone:    "+55 11 5555-0100",
	Email:    "ana@example.com",
}

type harness struct {
	t       *testing.T
	now     time.Time
	store   *memory.Store
	keys    *storage.Keyspace
	bio     *fakeBiometrics
	prefill *fakePrefiller
	notify  *fakeNotifier
	watch   *fakeObserver
	machine *Machine
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:       t,
		now:     time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC),
		store:   memory.New("omnisign"),
		bio:     &fakeBiometrics{},
		prefill: &fakePrefiller{},
		notify:  &fakeNotifier{},
		watch:   &fakeObserver{},
	}
	h.keys = storage.NewKeyspace(h.store)
	base := []Option{
		WithClock(func() time.Time { return h.now }),
		WithBiometrics(h.bio),
		WithPrefiller(h.prefill),
		WithNotifier(h.notify),
		WithObserver(h.watch),
	}
	h.machine = NewMachine(h.keys, append(base, opts...)...)
	t.Cleanup(h.machine.Wait)
	return h
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) onboard(pinValue string) {
	h.t.Helper()
	snap, err := h.machine.Onboard(context.Background(), Submission{
		Profile:    testProfile,
		PIN:        pinValue,
		PINConfirm: pinValue,
	})
	if err != nil {
		h.t.Fatalf("onboard: %v", err)
	}
	if snap.State != StateUnlocked {
		h.t.Fatalf("onboard state = %q, want %q", snap.State, StateUnlocked)
	}
	h.machine.Wait()
}

// lock lets the default timeout pass and confirms the session locked.
func (h *harness) lock() {
	h.t.Helper()
	h.advance(31 * time.Minute)
	h.expectState(StateLocked)
}

func (h *harness) expectState(want State) Snapshot {
	h.t.Helper()
	snap, err := h.machine.Evaluate(context.Background())
	if err != nil {
		h.t.Fatalf("evaluate: %v", err)
	}
	if snap.State != want {
		h.t.Fatalf("state = %q, want %q", snap.State, want)
	}
	return snap
}

func (h *harness) failureCount() int {
	h.t.Helper()
	state, err := h.keys.Lockout(context.Background())
	if err != nil {
		h.t.Fatalf("read lockout: %v", err)
	}
	return state.FailureCount
}

type fakeBiometrics struct {
	mu            sync.Mutex
	available     bool
	registered    bool
	registerErr   error
	registerCalls int
	authErr       error
	authCalls     int
	authStarted   chan struct{}
	authRelease   chan struct{}
}

func (f *fakeBiometrics) Available(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available
}

func (f *fakeBiometrics) Registered(context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.registered
}

func (f *fakeBiometrics) Register(context.Context, profile.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.registerCalls++
	if f.registerErr != nil {
		return f.registerErr
	}
	f.registered = true
	return nil
}

func (f *fakeBiometrics) Authenticate(context.Context) error {
	f.mu.Lock()
	f.authCalls++
	started, release, err := f.authStarted, f.authRelease, f.authErr
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if release != nil {
		<-release
	}
	return err
}

type fakePrefiller struct {
	mu       sync.Mutex
	profiles []profile.Profile
}

func (f *fakePrefiller) Prefill(_ context.Context, p profile.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles = append(f.profiles, p)
}

func (f *fakePrefiller) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.profiles)
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls int
	err   error
	panic bool
}

func (f *fakeNotifier) RequestPermission(context.Context) error {
	f.mu.Lock()
	f.calls++
	shouldPanic, err := f.panic, f.err
	f.mu.Unlock()
	if shouldPanic {
		panic("notification bridge crashed")
	}
	return err
}

type transition struct {
	from, to State
}

type fakeObserver struct {
	mu          sync.Mutex
	transitions []transition
}

func (f *fakeObserver) StateChanged(_ context.Context, from, to State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, transition{from: from, to: to})
}

// failingStore fails every call once broken is set.
type failingStore struct {
	storage.Store
	broken bool
}

var errDiskGone = stderrors.New("disk gone")

func (s *failingStore) Get(ctx context.Context, key storage.Key) (string, bool, error) {
	if s.broken {
		return "", false, errDiskGone
	}
	return s.Store.Get(ctx, key)
}

func (s *failingStore) Set(ctx context.Context, key storage.Key, value string) error {
	if s.broken {
		return errDiskGone
	}
	return s.Store.Set(ctx, key, value)
}
