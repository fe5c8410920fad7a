package router

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/ccrelay/ccrelay/internal/session"
	"github.com/ccrelay/ccrelay/internal/state"

	"github.com/google/shlex"
)

// CommandSet handles slash commands arriving over chat channels. This is the
// chat half of the management surface: the same flags the CLI toggles can be
// flipped from the messaging app, which matters when the notification that
// woke you is the one you want to silence.
type CommandSet struct {
	flags    *state.Store
	registry *session.Registry
}

func NewCommandSet(flags *state.Store, registry *session.Registry) *CommandSet {
	return &CommandSet{flags: flags, registry: registry}
}

// Handle parses text as a slash command. Unknown commands are not handled:
// they fall through to reply disambiguation, since a human answer may
// legitimately begin with a slash.
func (c *CommandSet) Handle(text string) (string, bool) {
	parts, err := shlex.Split(text)
	if err != nil || len(parts) == 0 {
		return "", false
	}

	switch parts[0] {
	case "/mute":
		if len(parts) > 1 {
			hook := parts[1]
			if err := c.flags.SetHook(hook, false); err != nil {
				slog.Error("Failed to persist hook toggle", "hook", hook, "error", err)
				return "Failed to update state.", true
			}
			return fmt.Sprintf("Hook %s muted.", hook), true
		}
		if err := c.flags.SetEnabled(false); err != nil {
			slog.Error("Failed to persist global toggle", "error", err)
			return "Failed to update state.", true
		}
		return "Notifications muted.", true

	case "/unmute":
		if len(parts) > 1 {
			hook := parts[1]
			if err := c.flags.SetHook(hook, true); err != nil {
				slog.Error("Failed to persist hook toggle", "hook", hook, "error", err)
				return "Failed to update state.", true
			}
			return fmt.Sprintf("Hook %s unmuted.", hook), true
		}
		if err := c.flags.SetEnabled(true); err != nil {
			slog.Error("Failed to persist global toggle", "error", err)
			return "Failed to update state.", true
		}
		return "Notifications unmuted.", true

	case "/sessions":
		active := c.registry.ActiveIDs()
		if len(active) == 0 {
			return "No active sessions.", true
		}
		tagged := make([]string, len(active))
		for i, id := range active {
			tagged[i] = "CC-" + id
		}
		return "Active: " + strings.Join(tagged, ", "), true

	case "/status":
		st := "enabled"
		if !c.flags.Enabled() {
			st = "muted"
		}
		return fmt.Sprintf("Relay %s. Sessions: %d active, %d awaiting reply.",
			st, c.registry.Count(), c.registry.PendingCount()), true
	}

	return "", false
}
