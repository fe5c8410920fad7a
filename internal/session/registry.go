package session

import (
	"sort"
	"sync"
	"time"
)

// PendingResponse is the single outstanding prompt on a session. Registering
// a new one while one exists overwrites it: the newest prompt wins, there is
// no queue.
type PendingResponse struct {
	Event     string
	Prompt    string
	Timestamp time.Time
}

// StoredResponse is a human reply matched to a session, held until exactly
// one consumer collects it.
type StoredResponse struct {
	SessionID string    `json:"sessionId"`
	Response  string    `json:"response"`
	Origin    string    `json:"origin"`
	Timestamp time.Time `json:"timestamp"`
}

// Session correlates one unit of work with its eventual human reply. Sessions
// are advisory, in-memory state scoped to one server process: nothing here
// survives a restart, and every mutating operation on an unknown id is a
// silent no-op rather than an error.
type Session struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	Enabled      bool
	Pending      *PendingResponse
}

// Registry owns sessions, their TTL expiry, stored responses, and the
// outbound provider-message index used for reply threading. A single mutex
// guards the maps; operations are short and never touch the network while
// holding it.
type Registry struct {
	mu        sync.Mutex
	timeout   time.Duration
	sessions  map[string]*Session
	responses map[string]*StoredResponse
	outbound  map[string]string // provider message id -> session id
}

const DefaultTimeout = 30 * time.Minute

func NewRegistry(timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		timeout:   timeout,
		sessions:  make(map[string]*Session),
		responses: make(map[string]*StoredResponse),
		outbound:  make(map[string]string),
	}
}

// Register upserts a session and sets its pending response. Always succeeds;
// an existing pending prompt is overwritten, never queued behind.
func (r *Registry) Register(id, event, prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	sess, exists := r.sessions[id]
	if !exists {
		sess = &Session{ID: id, CreatedAt: now, Enabled: true}
		r.sessions[id] = sess
	}
	sess.LastActivity = now
	sess.Pending = &PendingResponse{Event: event, Prompt: prompt, Timestamp: now}
}

// Has reports whether a session exists.
func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, exists := r.sessions[id]
	return exists
}

// IsEnabled fails closed: an unknown session is never treated as enabled.
func (r *Registry) IsEnabled(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	return exists && sess.Enabled
}

// Enable unmutes a session. Returns false if the session does not exist; it
// is never created implicitly.
func (r *Registry) Enable(id string) bool {
	return r.setEnabled(id, true)
}

// Disable mutes a session without touching the global switch.
func (r *Registry) Disable(id string) bool {
	return r.setEnabled(id, false)
}

func (r *Registry) setEnabled(id string, enabled bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	sess, exists := r.sessions[id]
	if !exists {
		return false
	}
	sess.Enabled = enabled
	sess.LastActivity = time.Now()
	return true
}

// StoreResponse records the human's answer for a session, clearing any
// pending prompt. A prior unconsumed response for the same id is overwritten.
// The reply may arrive out of band, so no pending prompt is required.
func (r *Registry) StoreResponse(id, text, origin string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	r.responses[id] = &StoredResponse{
		SessionID: id,
		Response:  text,
		Origin:    origin,
		Timestamp: now,
	}
	if sess, exists := r.sessions[id]; exists {
		sess.LastActivity = now
		sess.Pending = nil
	}
}

// ConsumeResponse atomically returns and clears the stored response, or nil
// when none is waiting. A second call immediately after returns nil.
func (r *Registry) ConsumeResponse(id string) *StoredResponse {
	r.mu.Lock()
	defer r.mu.Unlock()

	resp, exists := r.responses[id]
	if !exists {
		return nil
	}
	delete(r.responses, id)
	if sess, ok := r.sessions[id]; ok {
		sess.LastActivity = time.Now()
	}
	return resp
}

// Touch refreshes a session's activity clock. No-op on unknown ids.
func (r *Registry) Touch(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, exists := r.sessions[id]; exists {
		sess.LastActivity = time.Now()
	}
}

// RecordOutbound indexes a provider message id against the session whose
// notification it carried, enabling reply-to threading resolution.
func (r *Registry) RecordOutbound(id, providerMessageID string) {
	if providerMessageID == "" {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if sess, exists := r.sessions[id]; exists {
		sess.LastActivity = time.Now()
	}
	r.outbound[providerMessageID] = id
}

// ResolveMessage maps a provider message id (from reply-to metadata) back to
// the session whose outbound message carried it.
func (r *Registry) ResolveMessage(providerMessageID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, exists := r.outbound[providerMessageID]
	return id, exists
}

// ActiveIDs returns session ids ordered oldest-first, for building
// human-readable disambiguation prompts.
func (r *Registry) ActiveIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := r.sessions[ids[i]], r.sessions[ids[j]]
		if a.CreatedAt.Equal(b.CreatedAt) {
			return a.ID < b.ID
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
	return ids
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// PendingCount returns how many sessions are awaiting a reply.
func (r *Registry) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	count := 0
	for _, sess := range r.sessions {
		if sess.Pending != nil {
			count++
		}
	}
	return count
}

// Sweep deletes sessions idle past the inactivity timeout, along with their
// pending prompts, stored responses, and outbound index entries. The sweep is
// the only deleter; it runs on an independent schedule, never inline with a
// request.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	removed := 0
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActivity) > r.timeout {
			delete(r.sessions, id)
			delete(r.responses, id)
			removed++
		}
	}

	// Orphaned responses (stored after their session expired) age out on the
	// same clock.
	for id, resp := range r.responses {
		if _, alive := r.sessions[id]; alive {
			continue
		}
		if now.Sub(resp.Timestamp) > r.timeout {
			delete(r.responses, id)
		}
	}

	for msgID, sessID := range r.outbound {
		if _, alive := r.sessions[sessID]; !alive {
			delete(r.outbound, msgID)
		}
	}

	return removed
}
