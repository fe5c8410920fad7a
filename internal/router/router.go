package router

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ccrelay/ccrelay/internal/channel"
	"github.com/ccrelay/ccrelay/internal/errors"
	"github.com/ccrelay/ccrelay/internal/logger"
	"github.com/ccrelay/ccrelay/internal/message"
	"github.com/ccrelay/ccrelay/internal/session"
	"github.com/ccrelay/ccrelay/internal/state"
)

// ChannelProvider is the slice of the channel manager the router needs.
type ChannelProvider interface {
	Get(name string) (channel.Channel, bool)
	Default() channel.Channel
	Statuses() []channel.Status
}

// SendResult reports one outbound delivery attempt.
type SendResult struct {
	Sent              bool   `json:"sent"`
	Reason            string `json:"reason,omitempty"`
	ProviderMessageID string `json:"providerMessageId,omitempty"`
}

// Router is the top-level orchestrator: outbound notifications go out through
// the configured channel with the correlation prefix applied; inbound text
// from any channel is disambiguated back to a session and stored for the
// caller to consume. Constructed once at process start and passed by
// reference; there are no ambient singletons.
type Router struct {
	registry *session.Registry
	flags    *state.Store
	channels ChannelProvider
	commands *CommandSet
}

func New(registry *session.Registry, flags *state.Store, channels ChannelProvider) *Router {
	r := &Router{
		registry: registry,
		flags:    flags,
		channels: channels,
	}
	r.commands = NewCommandSet(flags, registry)
	return r
}

// Notify delivers a one-shot notification for a session. The global switch,
// the per-hook switch, and the per-session switch are all consulted; any of
// them being off yields a not-sent result with a reason, never an error.
func (r *Router) Notify(ctx context.Context, sessionID, event, body string) SendResult {
	if !r.flags.Enabled() {
		return SendResult{Reason: "notifications disabled"}
	}
	if !r.flags.HookEnabled(event) {
		return SendResult{Reason: "hook disabled"}
	}
	if r.registry.Has(sessionID) && !r.registry.IsEnabled(sessionID) {
		return SendResult{Reason: "session disabled"}
	}

	ch := r.channels.Default()
	if ch == nil {
		return SendResult{Reason: "no channel configured"}
	}

	text := message.Format(sessionID, event, body, ch.Limit())
	providerID, err := ch.Send(ctx, channel.Notification{SessionID: sessionID, Event: event, Text: text})
	if err != nil {
		slog.Warn("Notification send failed", "session", sessionID, "channel", ch.Name(), "error", err)
		return SendResult{Reason: err.Error()}
	}

	r.registry.Touch(sessionID)
	r.registry.RecordOutbound(sessionID, providerID)
	slog.Info("Notification sent", "session", sessionID, "event", event, "channel", ch.Name(), "trace", logger.GetTraceID(ctx))
	return SendResult{Sent: true, ProviderMessageID: providerID}
}

// RegisterPrompt registers a session awaiting a reply and sends the prompt.
// Registration always succeeds (upsert, newest prompt wins); delivery follows
// the same gating as Notify.
func (r *Router) RegisterPrompt(ctx context.Context, sessionID, event, prompt string) SendResult {
	r.registry.Register(sessionID, event, prompt)
	return r.Notify(ctx, sessionID, event, prompt)
}

// Callback adapts HandleInbound to the channel contract.
func (r *Router) Callback() channel.ReplyCallback {
	return func(reply channel.Reply) {
		r.HandleInbound(context.Background(), reply)
	}
}

// HandleInbound resolves inbound text to a session and stores the response.
//
// Resolution order: explicit [CC-<id>] prefix, then reply-to threading
// metadata, then the cardinality branch on active sessions: exactly one
// active session auto-routes the reply to it, zero active sessions earns a
// "no active sessions" notice, and two or more demand the prefix.
func (r *Router) HandleInbound(ctx context.Context, reply channel.Reply) {
	text := strings.TrimSpace(reply.Text)
	if text == "" {
		return
	}

	// Commands run even while muted; /unmute has to work from chat.
	if strings.HasPrefix(text, "/") {
		if response, handled := r.commands.Handle(text); handled {
			r.respond(ctx, reply.Origin, response)
			return
		}
	}

	if !r.flags.Enabled() {
		slog.Debug("Inbound dropped, notifications disabled", "origin", reply.Origin)
		return
	}

	sessionID := reply.SessionID
	responseText := text
	if sessionID == "" {
		if id, remainder, ok := message.Parse(text); ok {
			sessionID, responseText = id, remainder
		} else if reply.MessageID != "" {
			if id, ok := r.registry.ResolveMessage(reply.MessageID); ok {
				sessionID = id
			}
		}
	}

	if sessionID != "" {
		if r.registry.Has(sessionID) {
			r.registry.StoreResponse(sessionID, responseText, reply.Origin)
			slog.Info("Reply routed", "session", sessionID, "origin", reply.Origin)
			r.respond(ctx, reply.Origin, fmt.Sprintf("Got it. Routed to CC-%s.", sessionID))
			return
		}
		slog.Info("Reply for expired session", "session", sessionID, "origin", reply.Origin)
		r.respond(ctx, reply.Origin, fmt.Sprintf("Session CC-%s has expired. %s", sessionID, r.activeSummary()))
		return
	}

	active := r.registry.ActiveIDs()
	switch len(active) {
	case 1:
		// Single-session convenience: an unprefixed reply goes to the sole
		// active session even if it answers an older prompt.
		r.registry.StoreResponse(active[0], responseText, reply.Origin)
		slog.Info("Reply auto-routed", "session", active[0], "origin", reply.Origin)
		r.respond(ctx, reply.Origin, fmt.Sprintf("Got it. Routed to CC-%s.", active[0]))
	case 0:
		r.respond(ctx, reply.Origin, "No active sessions.")
	default:
		r.respond(ctx, reply.Origin, "Multiple active sessions. Prefix your reply with [CC-<id>]. "+r.activeSummary())
	}
}

func (r *Router) activeSummary() string {
	active := r.registry.ActiveIDs()
	if len(active) == 0 {
		return "No active sessions."
	}
	tagged := make([]string, len(active))
	for i, id := range active {
		tagged[i] = "CC-" + id
	}
	return "Active: " + strings.Join(tagged, ", ")
}

// respond sends a plain confirmation back through the originating channel.
// Best effort: a failed confirmation is logged, never escalated.
func (r *Router) respond(ctx context.Context, origin, text string) {
	ch, exists := r.channels.Get(origin)
	if !exists {
		slog.Warn("Cannot confirm, unknown origin channel", "origin", origin)
		return
	}
	if _, err := ch.Send(ctx, channel.Notification{Text: text}); err != nil {
		level := slog.LevelWarn
		if errors.IsCategory(err, errors.ErrTransient) {
			level = slog.LevelDebug
		}
		slog.Log(ctx, level, "Confirmation send failed", "origin", origin, "error", err)
	}
}
