package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterUpsertsAndOverwritesPending(t *testing.T) {
	r := NewRegistry(time.Minute)

	r.Register("abc123", "Notification", "first question")
	r.Register("abc123", "PreToolUse", "second question")

	assert.Equal(t, 1, r.Count())
	assert.Equal(t, 1, r.PendingCount(), "newest prompt replaces, never queues")
}

func TestIsEnabledFailsClosed(t *testing.T) {
	r := NewRegistry(time.Minute)

	assert.False(t, r.IsEnabled("ghost"))

	r.Register("abc123", "Notification", "q")
	assert.True(t, r.IsEnabled("abc123"))

	assert.True(t, r.Disable("abc123"))
	assert.False(t, r.IsEnabled("abc123"))
	assert.True(t, r.Enable("abc123"))
	assert.True(t, r.IsEnabled("abc123"))
}

func TestEnableUnknownSessionIsNotCreated(t *testing.T) {
	r := NewRegistry(time.Minute)

	assert.False(t, r.Enable("ghost"))
	assert.False(t, r.Has("ghost"))
}

func TestStoreResponseClearsPendingAndOverwrites(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("abc123", "Notification", "q")

	r.StoreResponse("abc123", "first answer", "telegram")
	assert.Equal(t, 0, r.PendingCount())

	r.StoreResponse("abc123", "second answer", "signal")

	resp := r.ConsumeResponse("abc123")
	require.NotNil(t, resp)
	assert.Equal(t, "second answer", resp.Response)
	assert.Equal(t, "signal", resp.Origin)
}

func TestConsumeResponseIsOneShot(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("abc123", "Notification", "q")
	r.StoreResponse("abc123", "yes", "telegram")

	first := r.ConsumeResponse("abc123")
	require.NotNil(t, first)
	assert.Equal(t, "yes", first.Response)

	assert.Nil(t, r.ConsumeResponse("abc123"), "second consume must return nothing")
}

func TestStoreResponseWithoutSessionSurvives(t *testing.T) {
	r := NewRegistry(time.Minute)

	// A reply may arrive for a session the registry never saw (e.g. relay
	// restarted between prompt and answer).
	r.StoreResponse("orphan", "late answer", "email")

	resp := r.ConsumeResponse("orphan")
	require.NotNil(t, resp)
	assert.Equal(t, "late answer", resp.Response)
}

func TestResolveMessageThreading(t *testing.T) {
	r := NewRegistry(time.Minute)
	r.Register("abc123", "Notification", "q")

	r.RecordOutbound("abc123", "msg-42")

	id, ok := r.ResolveMessage("msg-42")
	require.True(t, ok)
	assert.Equal(t, "abc123", id)

	_, ok = r.ResolveMessage("msg-99")
	assert.False(t, ok)

	// Empty provider ids are never indexed.
	r.RecordOutbound("abc123", "")
	_, ok = r.ResolveMessage("")
	assert.False(t, ok)
}

func TestActiveIDsOldestFirst(t *testing.T) {
	r := NewRegistry(time.Minute)

	r.Register("bbb", "Notification", "q1")
	time.Sleep(2 * time.Millisecond)
	r.Register("aaa", "Notification", "q2")

	assert.Equal(t, []string{"bbb", "aaa"}, r.ActiveIDs())
}

func TestSweepRemovesIdleSessions(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)

	r.Register("stale", "Notification", "q")
	r.RecordOutbound("stale", "msg-1")
	r.StoreResponse("stale", "answer", "telegram")

	time.Sleep(40 * time.Millisecond)
	r.Register("fresh", "Notification", "q")

	removed := r.Sweep()
	assert.Equal(t, 1, removed)
	assert.False(t, r.Has("stale"))
	assert.True(t, r.Has("fresh"))
	assert.Nil(t, r.ConsumeResponse("stale"), "responses die with their session")

	_, ok := r.ResolveMessage("msg-1")
	assert.False(t, ok, "outbound index entries die with their session")
}

func TestSweepAgesOutOrphanedResponses(t *testing.T) {
	r := NewRegistry(20 * time.Millisecond)

	r.StoreResponse("orphan", "answer", "email")
	r.Sweep()
	require.NotNil(t, r.ConsumeResponse("orphan"), "fresh orphan survives a sweep")

	r.StoreResponse("orphan", "answer", "email")
	time.Sleep(40 * time.Millisecond)
	r.Sweep()
	assert.Nil(t, r.ConsumeResponse("orphan"), "aged orphan is collected")
}
