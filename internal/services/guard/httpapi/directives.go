package httpapi

import (
	"context"
	"sync"

	"github.com/omnisign/sessionguard/internal/services/guard/profile"
	"github.com/omnisign/sessionguard/internal/services/guard/session"
)

// Directive types the page understands.
const (
	DirectivePrefill                       = "prefill"
	DirectiveRequestNotificationPermission = "request_notification_permission"
)

// Directive is a side effect only the page can perform.
type Directive struct {
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

// Directives queues page-side work produced by the session machine. It is the
// machine's prefill and notification collaborator, and it drops everything as
// soon as the session stops being unlocked. It must also be registered as the
// machine's observer; a notification prompt arriving while the session is not
// unlocked is discarded.
type Directives struct {
	mu    sync.Mutex
	state session.State
	queue []Directive
}

// NewDirectives returns an empty queue.
func NewDirectives() *Directives {
	return &Directives{}
}

// Prefill queues the profile for the booking form. Only the newest prefill is
// kept.
func (d *Directives) Prefill(_ context.Context, p profile.Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.queue[:0]
	for _, directive := range d.queue {
		if directive.Type != DirectivePrefill {
			kept = append(kept, directive)
		}
	}
	d.queue = append(kept, Directive{Type: DirectivePrefill, Fields: p.Fields()})
}

// RequestPermission queues the notification prompt. It runs after
// onboarding in the background, so a lock or reset may already have happened.
func (d *Directives) RequestPermission(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != session.StateUnlocked {
		return nil
	}
	for _, directive := range d.queue {
		if directive.Type == DirectiveRequestNotificationPermission {
			return nil
		}
	}
	d.queue = append(d.queue, Directive{Type: DirectiveRequestNotificationPermission})
	return nil
}

// StateChanged clears the queue whenever the session leaves Unlocked.
func (d *Directives) StateChanged(_ context.Context, _, to session.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = to
	if to != session.StateUnlocked {
		d.queue = nil
	}
}

// Drain returns and removes every queued directive.
func (d *Directives) Drain() []Directive {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.queue
	d.queue = nil
	if out == nil {
		return []Directive{}
	}
	return out
}
