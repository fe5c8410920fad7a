package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/channel"
	"github.com/ccrelay/ccrelay/internal/router"
	"github.com/ccrelay/ccrelay/internal/session"
	"github.com/ccrelay/ccrelay/internal/state"
)

type stubChannel struct {
	name string
	sent []channel.Notification
}

func (s *stubChannel) Name() string                     { return s.name }
func (s *stubChannel) Limit() int                       { return 0 }
func (s *stubChannel) ValidateConfig() error            { return nil }
func (s *stubChannel) Initialize(context.Context) error { return nil }
func (s *stubChannel) Send(ctx context.Context, n channel.Notification) (string, error) {
	s.sent = append(s.sent, n)
	return "stub-msg-1", nil
}
func (s *stubChannel) StartPolling(context.Context, channel.ReplyCallback) {}
func (s *stubChannel) StopPolling()                                        {}
func (s *stubChannel) Status() channel.Status {
	return channel.Status{Name: s.name, Enabled: true, State: "ready"}
}
func (s *stubChannel) Dispose() {}

type stubWebhookChannel struct {
	stubChannel
	served bool
}

func (s *stubWebhookChannel) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	s.served = true
	w.WriteHeader(http.StatusOK)
}

type stubChannels struct {
	def  channel.Channel
	push map[string]channel.WebhookChannel
}

func (s *stubChannels) Get(name string) (channel.Channel, bool) {
	if s.def != nil && s.def.Name() == name {
		return s.def, true
	}
	ch, exists := s.push[name]
	return ch, exists
}
func (s *stubChannels) Default() channel.Channel { return s.def }
func (s *stubChannels) Webhook(provider string) (channel.WebhookChannel, bool) {
	ch, exists := s.push[provider]
	return ch, exists
}
func (s *stubChannels) Statuses() []channel.Status {
	return []channel.Status{s.def.Status()}
}

func newTestServer(t *testing.T) (*Server, *session.Registry, *state.Store, *stubChannels) {
	t.Helper()

	flags, err := state.NewStore(filepath.Join(t.TempDir(), "state.json"), time.Second)
	require.NoError(t, err)

	registry := session.NewRegistry(time.Minute)
	channels := &stubChannels{
		def:  &stubChannel{name: "telegram"},
		push: map[string]channel.WebhookChannel{"twilio": &stubWebhookChannel{stubChannel: stubChannel{name: "twilio"}}},
	}

	rt := router.New(registry, flags, channels)
	return NewServer(rt, registry, flags, channels, "https://relay.example.com"), registry, flags, channels
}

func doJSON(t *testing.T, srv *Server, method, path string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}

	req := httptest.NewRequest(method, path, &body)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	return rec
}

func TestSendEndpoint(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/send", map[string]string{
		"sessionId": "abc123",
		"event":     "Stop",
		"message":   "task finished",
	})

	require.Equal(t, http.StatusOK, rec.Code)

	var result struct {
		Sent              bool   `json:"sent"`
		ProviderMessageID string `json:"providerMessageId"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Sent)
	assert.Equal(t, "stub-msg-1", result.ProviderMessageID)
}

func TestSendRejectsMissingFields(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/send", map[string]string{"message": "no ids"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSendRejectsBadJSON(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/send", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegisterAndConsumeResponse(t *testing.T) {
	srv, registry, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/session", map[string]string{
		"sessionId": "abc123",
		"event":     "Notification",
		"prompt":    "Proceed?",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.True(t, registry.Has("abc123"))

	// No reply yet.
	rec = doJSON(t, srv, http.MethodGet, "/api/response/abc123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Response *session.StoredResponse `json:"response"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Nil(t, envelope.Response)

	registry.StoreResponse("abc123", "yes", "telegram")

	rec = doJSON(t, srv, http.MethodGet, "/api/response/abc123", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	require.NotNil(t, envelope.Response)
	assert.Equal(t, "yes", envelope.Response.Response)

	// Consumed: gone on the next poll.
	rec = doJSON(t, srv, http.MethodGet, "/api/response/abc123", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&envelope))
	assert.Nil(t, envelope.Response)
}

func TestSessionToggleEndpoints(t *testing.T) {
	srv, registry, _, _ := newTestServer(t)
	registry.Register("abc123", "Notification", "q")

	rec := doJSON(t, srv, http.MethodPost, "/api/session/abc123/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, registry.IsEnabled("abc123"))

	rec = doJSON(t, srv, http.MethodPost, "/api/session/abc123/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, registry.IsEnabled("abc123"))

	// Unknown session: success=false, still 200.
	rec = doJSON(t, srv, http.MethodPost, "/api/session/ghost/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Success bool `json:"success"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Success)
}

func TestSessionEnabledCombinesGlobalSwitch(t *testing.T) {
	srv, registry, flags, _ := newTestServer(t)
	registry.Register("abc123", "Notification", "q")

	var result struct {
		Enabled bool `json:"enabled"`
	}

	rec := doJSON(t, srv, http.MethodGet, "/api/session/abc123/enabled", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.True(t, result.Enabled)

	require.NoError(t, flags.SetEnabled(false))
	rec = doJSON(t, srv, http.MethodGet, "/api/session/abc123/enabled", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.False(t, result.Enabled, "global mute wins over per-session enable")
}

func TestGlobalToggleEndpoints(t *testing.T) {
	srv, _, flags, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/disable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, flags.Enabled())

	rec = doJSON(t, srv, http.MethodPost, "/api/enable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, flags.Enabled())
}

func TestStatusEndpoint(t *testing.T) {
	srv, registry, _, _ := newTestServer(t)
	registry.Register("abc123", "Notification", "q")
	registry.StoreResponse("abc123", "yes", "telegram")

	rec := doJSON(t, srv, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var st struct {
		Status           string `json:"status"`
		ActiveSessions   int    `json:"activeSessions"`
		PendingResponses int    `json:"pendingResponses"`
		TunnelURL        string `json:"tunnelUrl"`
		Channels         []struct {
			Name string `json:"name"`
		} `json:"channels"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.ActiveSessions)
	assert.Equal(t, "https://relay.example.com", st.TunnelURL)
	require.Len(t, st.Channels, 1)
	assert.Equal(t, "telegram", st.Channels[0].Name)
}

func TestWebhookDispatch(t *testing.T) {
	srv, _, _, channels := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/webhook/twilio", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, channels.push["twilio"].(*stubWebhookChannel).served)

	rec = doJSON(t, srv, http.MethodPost, "/webhook/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
