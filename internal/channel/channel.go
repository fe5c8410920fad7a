package channel

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// State tracks the adapter lifecycle:
// uninitialized -> initializing -> ready -> (error <-> ready) -> disposed.
type State int

const (
	StateUninitialized State = iota
	StateInitializing
	StateReady
	StateError
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateError:
		return "error"
	case StateDisposed:
		return "disposed"
	}
	return "unknown"
}

// Notification is one outbound message, already formatted with the
// correlation prefix by the router.
type Notification struct {
	SessionID string
	Event     string
	Text      string
}

// Reply is one inbound item surfaced by a channel. SessionID is empty when
// the channel could not resolve the originating session; MessageID carries
// reply-to threading metadata (the provider id of the outbound message being
// answered) when the provider supports it.
type Reply struct {
	SessionID string
	MessageID string
	Text      string
	Origin    string
}

// ReplyCallback delivers inbound replies to the router. Pull channels invoke
// it from their poll loop; push channels invoke it synchronously from the
// webhook request path.
type ReplyCallback func(reply Reply)

// Status is a purely observational snapshot for diagnostics.
type Status struct {
	Name         string    `json:"name"`
	Enabled      bool      `json:"enabled"`
	Connected    bool      `json:"connected"`
	State        string    `json:"state"`
	LastActivity time.Time `json:"lastActivity"`
	LastError    string    `json:"lastError,omitempty"`
}

// Channel is the uniform contract over provider adapters. Push and pull
// delivery models coexist behind it: the router never needs to know which
// model a given channel uses.
type Channel interface {
	// Name returns the provider name used in config, webhook paths, and logs.
	Name() string

	// Limit returns the provider's message length limit, 0 for unlimited.
	Limit() int

	// ValidateConfig fails fast with a descriptive error naming the missing
	// field. No partial configs are accepted at startup.
	ValidateConfig() error

	// Initialize performs the provider handshake and transitions to ready.
	Initialize(ctx context.Context) error

	// Send delivers a notification and returns the provider message id. Safe
	// to call concurrently with polling; caller-recoverable failures come
	// back as errors and are recorded in the status snapshot.
	Send(ctx context.Context, n Notification) (string, error)

	// StartPolling begins the channel's inbound loop, delivering each unseen
	// item to cb. Idempotent: a second call while polling is a warning no-op.
	// Push channels store cb for their webhook path and run no timer.
	StartPolling(ctx context.Context, cb ReplyCallback)

	// StopPolling cancels the poll loop and waits for any in-flight iteration
	// to finish; no callback fires after it returns. Safe when not polling.
	StopPolling()

	// Status returns the diagnostic snapshot.
	Status() Status

	// Dispose stops polling and releases provider handles.
	Dispose()
}

// WebhookChannel is implemented by push channels that receive inbound replies
// via provider callbacks. The handler verifies the request, invokes the reply
// callback synchronously, and writes whatever body the provider expects.
type WebhookChannel interface {
	Channel
	ServeWebhook(w http.ResponseWriter, r *http.Request)
}

// base carries the shared lifecycle bookkeeping for adapters.
type base struct {
	name  string
	limit int

	mu           sync.Mutex
	state        State
	lastActivity time.Time
	lastError    string
}

func newBase(name string, limit int) base {
	return base{name: name, limit: limit, state: StateUninitialized}
}

func (b *base) Name() string { return b.name }
func (b *base) Limit() int   { return b.limit }

func (b *base) setState(s State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = s
}

func (b *base) currentState() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *base) touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()
}

// recordError flips ready -> error and remembers the message. The next
// successful operation flips back via recordSuccess.
func (b *base) recordError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastError = err.Error()
	if b.state == StateReady {
		b.state = StateError
	}
}

func (b *base) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastActivity = time.Now()
	if b.state == StateError {
		b.state = StateReady
	}
}

func (b *base) snapshot(enabled bool) Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Status{
		Name:         b.name,
		Enabled:      enabled,
		Connected:    b.state == StateReady,
		State:        b.state.String(),
		LastActivity: b.lastActivity,
		LastError:    b.lastError,
	}
}
