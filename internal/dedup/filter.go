package dedup

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// Filter suppresses two classes of spurious inbound items on a channel:
// echoes of our own outbound messages (self-addressed providers reflect sends
// back into the inbound stream), and re-deliveries of items already processed
// on earlier poll cycles.
//
// Echoes are caught by a content fingerprint with a fixed TTL; re-deliveries
// by a strictly increasing provider-sequence watermark. Both structures are
// in-memory only; nothing outlives the dedup window.
type Filter struct {
	mu           sync.Mutex
	ttl          time.Duration
	fingerprints map[string]time.Time // fingerprint -> send time
	watermark    int64
}

func New(ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Filter{
		ttl:          ttl,
		fingerprints: make(map[string]time.Time),
	}
}

// Fingerprint returns the order-sensitive content hash used for echo matching.
func Fingerprint(text string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(text)))
}

// MarkOutbound records the fingerprint of a just-sent message. Expired
// entries are pruned lazily here so the map stays bounded by send volume.
func (f *Filter) MarkOutbound(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	for fp, sentAt := range f.fingerprints {
		if now.Sub(sentAt) > f.ttl {
			delete(f.fingerprints, fp)
		}
	}
	f.fingerprints[Fingerprint(text)] = now
}

// IsEcho reports whether text matches an unexpired outbound fingerprint.
func (f *Filter) IsEcho(text string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	sentAt, exists := f.fingerprints[Fingerprint(text)]
	if !exists {
		return false
	}
	if time.Since(sentAt) > f.ttl {
		delete(f.fingerprints, Fingerprint(text))
		return false
	}
	return true
}

// Advance accepts seq only if it is strictly greater than the highest
// sequence already processed, and moves the watermark when it is. Repeated
// polls re-delivering old items are rejected here.
func (f *Filter) Advance(seq int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	if seq <= f.watermark {
		return false
	}
	f.watermark = seq
	return true
}

// Watermark returns the highest provider-sequence id processed so far.
func (f *Filter) Watermark() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark
}

// Prune removes expired fingerprints and returns how many were dropped.
func (f *Filter) Prune() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := time.Now()
	count := 0
	for fp, sentAt := range f.fingerprints {
		if now.Sub(sentAt) > f.ttl {
			delete(f.fingerprints, fp)
			count++
		}
	}
	return count
}
