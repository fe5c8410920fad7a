package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccrelay/ccrelay/internal/channel"
	"github.com/ccrelay/ccrelay/internal/logger"
	"github.com/ccrelay/ccrelay/internal/router"
	"github.com/ccrelay/ccrelay/internal/session"
	"github.com/ccrelay/ccrelay/internal/state"

	"github.com/oklog/ulid/v2"
)

// WebhookSource resolves a provider name to its push-channel inbound handler.
type WebhookSource interface {
	Webhook(provider string) (channel.WebhookChannel, bool)
	Statuses() []channel.Status
}

// Server exposes the hook-facing API and the provider webhook endpoints. It
// is a plain http.Handler; the daemon component wraps it in an http.Server
// with the configured timeouts.
type Server struct {
	router    *router.Router
	registry  *session.Registry
	flags     *state.Store
	webhooks  WebhookSource
	tunnelURL string
	startTime time.Time
	mux       *http.ServeMux
}

func NewServer(rt *router.Router, registry *session.Registry, flags *state.Store, webhooks WebhookSource, tunnelURL string) *Server {
	s := &Server{
		router:    rt,
		registry:  registry,
		flags:     flags,
		webhooks:  webhooks,
		tunnelURL: tunnelURL,
		startTime: time.Now(),
		mux:       http.NewServeMux(),
	}

	s.mux.HandleFunc("POST /api/send", s.handleSend)
	s.mux.HandleFunc("POST /api/session", s.handleRegisterSession)
	s.mux.HandleFunc("GET /api/response/{sessionId}", s.handleResponse)
	s.mux.HandleFunc("POST /api/session/{id}/enable", s.handleSessionEnable)
	s.mux.HandleFunc("POST /api/session/{id}/disable", s.handleSessionDisable)
	s.mux.HandleFunc("GET /api/session/{id}/enabled", s.handleSessionEnabled)
	s.mux.HandleFunc("POST /api/enable", s.handleGlobalEnable)
	s.mux.HandleFunc("POST /api/disable", s.handleGlobalDisable)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
	s.mux.HandleFunc("POST /webhook/{provider}", s.handleWebhook)

	return s
}

// ServeHTTP tags every request with a trace id before dispatching, so log
// lines from the router and channels can be tied back to the request.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithTraceID(r.Context(), ulid.Make().String())
	s.mux.ServeHTTP(w, r.WithContext(ctx))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

type sendRequest struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Message   string `json:"message"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Event == "" {
		http.Error(w, `{"error":"sessionId and event are required"}`, http.StatusBadRequest)
		return
	}

	result := s.router.Notify(r.Context(), req.SessionID, req.Event, req.Message)
	writeJSON(w, http.StatusOK, result)
}

type registerRequest struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Prompt    string `json:"prompt"`
}

type registerResponse struct {
	Registered        bool   `json:"registered"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

func (s *Server) handleRegisterSession(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Event == "" {
		http.Error(w, `{"error":"sessionId and event are required"}`, http.StatusBadRequest)
		return
	}

	result := s.router.RegisterPrompt(r.Context(), req.SessionID, req.Event, req.Prompt)
	writeJSON(w, http.StatusOK, registerResponse{
		Registered:        true,
		ProviderMessageID: result.ProviderMessageID,
	})
}

type responseEnvelope struct {
	Response *session.StoredResponse `json:"response"`
}

func (s *Server) handleResponse(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("sessionId")
	resp := s.registry.ConsumeResponse(id)
	writeJSON(w, http.StatusOK, responseEnvelope{Response: resp})
}

type successResponse struct {
	Success bool `json:"success"`
}

func (s *Server) handleSessionEnable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, successResponse{Success: s.registry.Enable(r.PathValue("id"))})
}

func (s *Server) handleSessionDisable(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, successResponse{Success: s.registry.Disable(r.PathValue("id"))})
}

type enabledResponse struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSessionEnabled(w http.ResponseWriter, r *http.Request) {
	// Combined view: the session is only effectively enabled when the global
	// switch is on too.
	enabled := s.flags.Enabled() && s.registry.IsEnabled(r.PathValue("id"))
	writeJSON(w, http.StatusOK, enabledResponse{Enabled: enabled})
}

func (s *Server) handleGlobalEnable(w http.ResponseWriter, r *http.Request) {
	err := s.flags.SetEnabled(true)
	if err != nil {
		slog.Error("Failed to persist global enable", "error", err)
	}
	writeJSON(w, http.StatusOK, successResponse{Success: err == nil})
}

func (s *Server) handleGlobalDisable(w http.ResponseWriter, r *http.Request) {
	err := s.flags.SetEnabled(false)
	if err != nil {
		slog.Error("Failed to persist global disable", "error", err)
	}
	writeJSON(w, http.StatusOK, successResponse{Success: err == nil})
}

type statusResponse struct {
	Status           string           `json:"status"`
	Enabled          bool             `json:"enabled"`
	ActiveSessions   int              `json:"activeSessions"`
	PendingResponses int              `json:"pendingResponses"`
	Uptime           float64          `json:"uptime"`
	TunnelURL        string           `json:"tunnelUrl,omitempty"`
	Channels         []channel.Status `json:"channels"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Status:           "ok",
		Enabled:          s.flags.Enabled(),
		ActiveSessions:   s.registry.Count(),
		PendingResponses: s.registry.PendingCount(),
		Uptime:           time.Since(s.startTime).Seconds(),
		TunnelURL:        s.tunnelURL,
		Channels:         s.webhooks.Statuses(),
	})
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := r.PathValue("provider")
	wh, exists := s.webhooks.Webhook(provider)
	if !exists {
		http.Error(w, `{"error":"unknown provider"}`, http.StatusNotFound)
		return
	}
	wh.ServeWebhook(w, r)
}
