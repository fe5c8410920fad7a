package channel

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/errors"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
)

// SlackChannel is a push channel: outbound through chat.postMessage, inbound
// through the Events API callback verified with the signing secret. The
// message timestamp of the outbound post is the provider id, so thread
// replies resolve back to their session.
type SlackChannel struct {
	base
	cfg    config.SlackConfig
	client *slack.Client

	cbMu sync.RWMutex
	cb   ReplyCallback
}

func NewSlackChannel(cfg config.SlackConfig) *SlackChannel {
	return &SlackChannel{
		base: newBase("slack", 0),
		cfg:  cfg,
	}
}

func (s *SlackChannel) ValidateConfig() error {
	switch {
	case s.cfg.BotToken == "":
		return errors.InvalidInput("channels.slack.bot_token is required")
	case s.cfg.SigningSecret == "":
		return errors.InvalidInput("channels.slack.signing_secret is required")
	case s.cfg.Channel == "":
		return errors.InvalidInput("channels.slack.channel is required")
	}
	return nil
}

func (s *SlackChannel) Initialize(ctx context.Context) error {
	s.setState(StateInitializing)
	s.client = slack.New(s.cfg.BotToken)

	if _, err := s.client.AuthTestContext(ctx); err != nil {
		s.recordError(err)
		s.setState(StateError)
		return errors.Wrap(err, "slack handshake failed")
	}

	s.setState(StateReady)
	s.recordSuccess()
	slog.Info("Slack channel ready", "channel", s.cfg.Channel)
	return nil
}

func (s *SlackChannel) Send(ctx context.Context, n Notification) (string, error) {
	if s.client == nil {
		return "", errors.Internal("slack channel not initialized")
	}

	_, ts, err := s.client.PostMessageContext(ctx, s.cfg.Channel, slack.MsgOptionText(n.Text, false))
	if err != nil {
		s.recordError(err)
		return "", errors.MapProviderError(err)
	}

	s.recordSuccess()
	slog.Debug("Slack message sent", "channel", s.cfg.Channel, "ts", ts)
	return ts, nil
}

func (s *SlackChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cb = cb
}

func (s *SlackChannel) StopPolling() {
	s.cbMu.Lock()
	defer s.cbMu.Unlock()
	s.cb = nil
}

// ServeWebhook handles Slack Events API callbacks: signing-secret
// verification, the URL-verification challenge, then message events. Bot
// messages are dropped so our own posts never loop back as replies.
func (s *SlackChannel) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	sv, err := slack.NewSecretsVerifier(r.Header, s.cfg.SigningSecret)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if _, err := sv.Write(body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := sv.Ensure(); err != nil {
		slog.Warn("Rejected Slack webhook with bad signature")
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	eventsAPIEvent, err := slackevents.ParseEvent(json.RawMessage(body), slackevents.OptionNoVerifyToken())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if eventsAPIEvent.Type == slackevents.URLVerification {
		var challenge *slackevents.ChallengeResponse
		if err := json.Unmarshal(body, &challenge); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte(challenge.Challenge))
		return
	}

	if eventsAPIEvent.Type == slackevents.CallbackEvent {
		switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
		case *slackevents.MessageEvent:
			if ev.BotID != "" || ev.Text == "" {
				break
			}
			s.cbMu.RLock()
			cb := s.cb
			s.cbMu.RUnlock()
			if cb != nil {
				cb(Reply{
					Text:      ev.Text,
					Origin:    s.Name(),
					MessageID: ev.ThreadTimeStamp,
				})
			}
		}
	}
	s.recordSuccess()

	w.WriteHeader(http.StatusOK)
}

func (s *SlackChannel) Status() Status {
	return s.snapshot(s.cfg.Enabled)
}

func (s *SlackChannel) Dispose() {
	s.StopPolling()
	s.client = nil
	s.setState(StateDisposed)
}
