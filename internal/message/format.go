package message

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Prefix is the correlation marker embedded in every outbound message. The
// session id between the marker and the closing bracket is used verbatim to
// route free-form replies back to the originating session.
const Prefix = "[CC-"

const footer = "Reply with your response"

// Header returns the human-readable event line for a hook event kind.
func Header(event string) string {
	switch event {
	case "Stop", "task_complete":
		return "✅ Task Complete"
	case "PreToolUse", "approval_needed":
		return "🔐 Approval Needed"
	case "Notification", "input_needed":
		return "💬 Input Requested"
	case "error":
		return "⚠️ Error"
	default:
		return "🔔 " + event
	}
}

// Format builds the outbound wire message:
//
//	[CC-<id>] <emoji> <event header>\n\n<body>\n\n<footer>
//
// When limit > 0 and the message would exceed it, the body is truncated with a
// trailing ellipsis. Room for the prefix, header, and footer is reserved so
// the correlation marker always survives truncation intact.
func Format(sessionID, event, body string, limit int) string {
	head := fmt.Sprintf("%s%s] %s", Prefix, sessionID, Header(event))
	msg := head + "\n\n" + body + "\n\n" + footer

	if limit <= 0 || len(msg) <= limit {
		return msg
	}

	// Reserve everything except the body, plus one rune of ellipsis.
	overhead := len(head) + len("\n\n") + len("\n\n") + len(footer) + len("…")
	room := limit - overhead
	if room < 0 {
		room = 0
	}
	if room > len(body) {
		room = len(body)
	}
	// room is a byte offset; back off to a rune boundary so the cut never
	// leaves a partial multi-byte sequence in the payload.
	for room > 0 && room < len(body) && !utf8.RuneStart(body[room]) {
		room--
	}
	return head + "\n\n" + body[:room] + "…" + "\n\n" + footer
}

// Parse extracts the correlation id from text carrying the [CC-<id>] prefix.
// The match is case-insensitive; the returned remainder has the marker and
// surrounding whitespace stripped. ok is false when no marker leads the text.
func Parse(text string) (sessionID, remainder string, ok bool) {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < len(Prefix) || !strings.EqualFold(trimmed[:len(Prefix)], Prefix) {
		return "", "", false
	}

	end := strings.Index(trimmed, "]")
	if end < len(Prefix) {
		return "", "", false
	}

	sessionID = trimmed[len(Prefix):end]
	if sessionID == "" {
		return "", "", false
	}

	remainder = strings.TrimSpace(trimmed[end+1:])

	// Echoed copies of our own outbound messages carry the header and footer
	// around the body; strip them so a formatted message parses back to the
	// original body text.
	if strings.HasSuffix(remainder, footer) {
		remainder = strings.TrimSpace(strings.TrimSuffix(remainder, footer))
	}
	if idx := strings.Index(remainder, "\n\n"); idx >= 0 && isHeader(remainder[:idx]) {
		remainder = strings.TrimSpace(remainder[idx+2:])
	}

	return sessionID, remainder, true
}

var headerMarks = []string{"✅", "🔐", "💬", "⚠️", "🔔"}

func isHeader(line string) bool {
	for _, mark := range headerMarks {
		if strings.HasPrefix(line, mark) {
			return true
		}
	}
	return false
}
