package biometric

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/omnisign/sessionguard/internal/platform/errors"
)

var (
	// ErrCanceled reports that the user dismissed the platform prompt.
	ErrCanceled = stderrors.New("biometric ceremony canceled")
	// ErrExpired reports that no response arrived before the deadline.
	ErrExpired = stderrors.New("biometric ceremony expired")
)

type outcome struct {
	response []byte
	err      error
}

type parked struct {
	ceremony Ceremony
	result   chan outcome
}

// Relay is a Platform backed by the PWA. Each ceremony waits in a queue until
// the page fetches it, runs navigator.credentials, and posts the response or a
// cancellation.
type Relay struct {
	clock func() time.Time

	mu        sync.Mutex
	available bool
	pending   map[string]*parked
	order     []string
}

// NewRelay returns a relay that reports no authenticator until the page says
// otherwise.
func NewRelay() *Relay {
	return &Relay{
		clock:   time.Now,
		pending: make(map[string]*parked),
	}
}

// SetAvailable records the page's platform authenticator capability.
func (r *Relay) SetAvailable(available bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available = available
}

// Available reports the last capability the page reported.
func (r *Relay) Available(context.Context) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available
}

// Create parks a registration ceremony and waits for the page.
func (r *Relay) Create(ctx context.Context, ceremony Ceremony) ([]byte, error) {
	return r.park(ctx, ceremony)
}

// Get parks an authentication ceremony and waits for the page.
func (r *Relay) Get(ctx context.Context, ceremony Ceremony) ([]byte, error) {
	return r.park(ctx, ceremony)
}

func (r *Relay) park(ctx context.Context, ceremony Ceremony) ([]byte, error) {
	if ceremony.ID == "" {
		return nil, fmt.Errorf("ceremony id is required")
	}
	entry := &parked{ceremony: ceremony, result: make(chan outcome, 1)}

	r.mu.Lock()
	if _, exists := r.pending[ceremony.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("ceremony %s already pending", ceremony.ID)
	}
	r.pending[ceremony.ID] = entry
	r.order = append(r.order, ceremony.ID)
	r.mu.Unlock()

	select {
	case res := <-entry.result:
		return res.response, res.err
	case <-ctx.Done():
		if r.take(ceremony.ID) == nil {
			// Resolved concurrently; the buffered result is already there.
			res := <-entry.result
			return res.response, res.err
		}
		return nil, fmt.Errorf("%w: %v", ErrExpired, ctx.Err())
	}
}

// Pending returns the oldest ceremony still waiting for the page.
func (r *Relay) Pending() (Ceremony, bool) {
	now := r.clock()
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		entry, ok := r.pending[id]
		if !ok {
			continue
		}
		if !entry.ceremony.Deadline.IsZero() && !now.Before(entry.ceremony.Deadline) {
			continue
		}
		return entry.ceremony, true
	}
	return Ceremony{}, false
}

// Complete resumes ceremony id with the page's credential response.
func (r *Relay) Complete(id string, response []byte) error {
	if len(response) == 0 {
		return errors.New(errors.CodeInvalidRequest, "credential response is required")
	}
	entry := r.take(id)
	if entry == nil {
		return errors.New(errors.CodeCeremonyNotFound, "biometric ceremony not found")
	}
	entry.result <- outcome{response: response}
	return nil
}

// Cancel resolves ceremony id as a user cancellation.
func (r *Relay) Cancel(id string) error {
	entry := r.take(id)
	if entry == nil {
		return errors.New(errors.CodeCeremonyNotFound, "biometric ceremony not found")
	}
	entry.result <- outcome{err: ErrCanceled}
	return nil
}

// Sweep fails every ceremony whose deadline is at or before now and returns
// how many were removed.
func (r *Relay) Sweep(now time.Time) int {
	r.mu.Lock()
	var expired []*parked
	kept := r.order[:0]
	for _, id := range r.order {
		entry, ok := r.pending[id]
		if !ok {
			continue
		}
		if !entry.ceremony.Deadline.IsZero() && !now.Before(entry.ceremony.Deadline) {
			delete(r.pending, id)
			expired = append(expired, entry)
			continue
		}
		kept = append(kept, id)
	}
	r.order = kept
	r.mu.Unlock()

	for _, entry := range expired {
		entry.result <- outcome{err: ErrExpired}
	}
	return len(expired)
}

// take removes and returns ceremony id, or nil when it is not pending.
func (r *Relay) take(id string) *parked {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.pending[id]
	if !ok {
		return nil
	}
	delete(r.pending, id)
	for i, pendingID := range r.order {
		if pendingID == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return entry
}
