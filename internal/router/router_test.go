package router

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/channel"
	"github.com/ccrelay/ccrelay/internal/session"
	"github.com/ccrelay/ccrelay/internal/state"
)

// fakeChannel records sends instead of talking to a provider.
type fakeChannel struct {
	name    string
	limit   int
	sent    []channel.Notification
	sendErr error
	nextID  string
}

func (f *fakeChannel) Name() string                 { return f.name }
func (f *fakeChannel) Limit() int                   { return f.limit }
func (f *fakeChannel) ValidateConfig() error        { return nil }
func (f *fakeChannel) Initialize(context.Context) error { return nil }
func (f *fakeChannel) Send(ctx context.Context, n channel.Notification) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, n)
	return f.nextID, nil
}
func (f *fakeChannel) StartPolling(context.Context, channel.ReplyCallback) {}
func (f *fakeChannel) StopPolling()                                       {}
func (f *fakeChannel) Status() channel.Status                             { return channel.Status{Name: f.name} }
func (f *fakeChannel) Dispose()                                          {}

func (f *fakeChannel) lastText(t *testing.T) string {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1].Text
}

type fakeProvider struct {
	channels map[string]*fakeChannel
	def      *fakeChannel
}

func (p *fakeProvider) Get(name string) (channel.Channel, bool) {
	ch, exists := p.channels[name]
	return ch, exists
}
func (p *fakeProvider) Default() channel.Channel { return p.def }
func (p *fakeProvider) Statuses() []channel.Status {
	statuses := make([]channel.Status, 0, len(p.channels))
	for _, ch := range p.channels {
		statuses = append(statuses, ch.Status())
	}
	return statuses
}

func newTestRouter(t *testing.T) (*Router, *session.Registry, *state.Store, *fakeChannel) {
	t.Helper()

	flags, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"), time.Second)
	require.NoError(t, err)

	registry := session.NewRegistry(time.Minute)
	ch := &fakeChannel{name: "telegram", limit: 4096, nextID: "msg-1"}
	provider := &fakeProvider{channels: map[string]*fakeChannel{"telegram": ch}, def: ch}

	return New(registry, flags, provider), registry, flags, ch
}

func TestNotifyCarriesCorrelationPrefix(t *testing.T) {
	rt, _, _, ch := newTestRouter(t)

	result := rt.Notify(context.Background(), "abc123", "Notification", "need input")
	require.True(t, result.Sent)
	assert.Equal(t, "msg-1", result.ProviderMessageID)
	assert.Contains(t, ch.lastText(t), "[CC-abc123]")
}

func TestNotifyRespectsGlobalSwitch(t *testing.T) {
	rt, _, flags, ch := newTestRouter(t)
	require.NoError(t, flags.SetEnabled(false))

	result := rt.Notify(context.Background(), "abc123", "Notification", "need input")
	assert.False(t, result.Sent)
	assert.Equal(t, "notifications disabled", result.Reason)
	assert.Empty(t, ch.sent)
}

func TestNotifyRespectsHookSwitch(t *testing.T) {
	rt, _, flags, ch := newTestRouter(t)
	require.NoError(t, flags.SetHook("Stop", false))

	result := rt.Notify(context.Background(), "abc123", "Stop", "done")
	assert.False(t, result.Sent)
	assert.Equal(t, "hook disabled", result.Reason)

	result = rt.Notify(context.Background(), "abc123", "Notification", "need input")
	assert.True(t, result.Sent, "other hooks stay live")
	assert.Len(t, ch.sent, 1)
}

func TestNotifyRespectsSessionSwitch(t *testing.T) {
	rt, registry, _, _ := newTestRouter(t)
	registry.Register("abc123", "Notification", "q")
	registry.Disable("abc123")

	result := rt.Notify(context.Background(), "abc123", "Notification", "need input")
	assert.False(t, result.Sent)
	assert.Equal(t, "session disabled", result.Reason)
}

func TestNotifyUnknownSessionStillSends(t *testing.T) {
	rt, _, _, _ := newTestRouter(t)

	// One-shot notifications do not require prior registration.
	result := rt.Notify(context.Background(), "unseen", "Stop", "task finished")
	assert.True(t, result.Sent)
}

func TestRegisterPromptThenReplyRoundTrip(t *testing.T) {
	rt, registry, _, ch := newTestRouter(t)

	result := rt.RegisterPrompt(context.Background(), "abc123", "Notification", "Proceed with deploy?")
	require.True(t, result.Sent)

	// The human answers with the explicit prefix.
	rt.HandleInbound(context.Background(), channel.Reply{Text: "[CC-abc123] yes", Origin: "telegram"})

	resp := registry.ConsumeResponse("abc123")
	require.NotNil(t, resp)
	assert.Equal(t, "yes", resp.Response)
	assert.Equal(t, "telegram", resp.Origin)

	assert.Contains(t, ch.lastText(t), "Routed to CC-abc123")
}

func TestInboundSingleSessionAutoRoutes(t *testing.T) {
	rt, registry, _, _ := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "yes", Origin: "telegram"})

	resp := registry.ConsumeResponse("abc123")
	require.NotNil(t, resp)
	assert.Equal(t, "yes", resp.Response)
}

func TestInboundZeroSessions(t *testing.T) {
	rt, _, _, ch := newTestRouter(t)

	rt.HandleInbound(context.Background(), channel.Reply{Text: "yes", Origin: "telegram"})

	assert.Contains(t, ch.lastText(t), "No active sessions")
}

func TestInboundMultipleSessionsDemandPrefix(t *testing.T) {
	rt, registry, _, ch := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q1")
	rt.RegisterPrompt(context.Background(), "def456", "Notification", "q2")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "yes", Origin: "telegram"})

	assert.Nil(t, registry.ConsumeResponse("abc123"))
	assert.Nil(t, registry.ConsumeResponse("def456"))
	text := ch.lastText(t)
	assert.Contains(t, text, "Multiple active sessions")
	assert.Contains(t, text, "CC-abc123")
	assert.Contains(t, text, "CC-def456")
}

func TestInboundPrefixedReplyWithMultipleSessions(t *testing.T) {
	rt, registry, _, _ := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q1")
	rt.RegisterPrompt(context.Background(), "def456", "Notification", "q2")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "[CC-def456] approved", Origin: "telegram"})

	require.Nil(t, registry.ConsumeResponse("abc123"))
	resp := registry.ConsumeResponse("def456")
	require.NotNil(t, resp)
	assert.Equal(t, "approved", resp.Response)
}

func TestInboundExpiredSessionPrefix(t *testing.T) {
	rt, registry, _, ch := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "[CC-gone99] yes", Origin: "telegram"})

	assert.Nil(t, registry.ConsumeResponse("gone99"))
	text := ch.lastText(t)
	assert.Contains(t, text, "CC-gone99 has expired")
	assert.Contains(t, text, "CC-abc123")
}

func TestInboundThreadedReplyResolvesViaMessageID(t *testing.T) {
	rt, registry, _, _ := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q1")
	rt.RegisterPrompt(context.Background(), "def456", "Notification", "q2")
	registry.RecordOutbound("def456", "provider-msg-7")

	rt.HandleInbound(context.Background(), channel.Reply{
		Text:      "go ahead",
		MessageID: "provider-msg-7",
		Origin:    "telegram",
	})

	resp := registry.ConsumeResponse("def456")
	require.NotNil(t, resp)
	assert.Equal(t, "go ahead", resp.Response)
}

func TestInboundDroppedWhileMuted(t *testing.T) {
	rt, registry, flags, _ := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q")
	require.NoError(t, flags.SetEnabled(false))

	rt.HandleInbound(context.Background(), channel.Reply{Text: "[CC-abc123] yes", Origin: "telegram"})

	assert.Nil(t, registry.ConsumeResponse("abc123"))
}

func TestInboundEmptyTextIgnored(t *testing.T) {
	rt, _, _, ch := newTestRouter(t)

	rt.HandleInbound(context.Background(), channel.Reply{Text: "   ", Origin: "telegram"})
	assert.Empty(t, ch.sent)
}

func TestUnmuteCommandWorksWhileMuted(t *testing.T) {
	rt, _, flags, ch := newTestRouter(t)
	require.NoError(t, flags.SetEnabled(false))

	rt.HandleInbound(context.Background(), channel.Reply{Text: "/unmute", Origin: "telegram"})

	assert.True(t, flags.Enabled())
	assert.Contains(t, ch.lastText(t), "unmuted")
}

func TestMuteCommandWithHookArgument(t *testing.T) {
	rt, _, flags, _ := newTestRouter(t)

	rt.HandleInbound(context.Background(), channel.Reply{Text: "/mute Stop", Origin: "telegram"})

	assert.False(t, flags.HookEnabled("Stop"))
	assert.True(t, flags.Enabled(), "global switch untouched")
}

func TestSlashLeadingReplyFallsThrough(t *testing.T) {
	rt, registry, _, _ := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "which path?")

	// Not a known command, so it is treated as an answer.
	rt.HandleInbound(context.Background(), channel.Reply{Text: "/usr/local/bin", Origin: "telegram"})

	resp := registry.ConsumeResponse("abc123")
	require.NotNil(t, resp)
	assert.Equal(t, "/usr/local/bin", resp.Response)
}

func TestSessionsCommandListsActive(t *testing.T) {
	rt, _, _, ch := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "/sessions", Origin: "telegram"})

	assert.Contains(t, ch.lastText(t), "CC-abc123")
}

func TestStatusCommand(t *testing.T) {
	rt, _, _, ch := newTestRouter(t)
	rt.RegisterPrompt(context.Background(), "abc123", "Notification", "q")

	rt.HandleInbound(context.Background(), channel.Reply{Text: "/status", Origin: "telegram"})

	text := ch.lastText(t)
	assert.Contains(t, text, "Relay enabled")
	assert.Contains(t, text, "1 active")
}
