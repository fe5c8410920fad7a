package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/dedup"
	"github.com/ccrelay/ccrelay/internal/errors"
)

// SignalChannel talks to a local signal-cli REST API. It is self-addressed:
// messages sent to our own number come back through the receive endpoint as
// apparent inbound items, so every send is fingerprinted and every poll cycle
// consults the echo filter before surfacing a reply. The provider timestamp
// is the sequence watermark.
type SignalChannel struct {
	base
	cfg      config.SignalConfig
	interval time.Duration
	filter   *dedup.Filter
	poll     poller
	client   *http.Client
}

func NewSignalChannel(cfg config.SignalConfig, filter *dedup.Filter) (*SignalChannel, error) {
	interval, err := config.DurationOrDefault(cfg.PollInterval, config.DefaultSignalPollInterval)
	if err != nil {
		return nil, err
	}
	return &SignalChannel{
		base:     newBase("signal", 0),
		cfg:      cfg,
		interval: interval,
		filter:   filter,
		client:   &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *SignalChannel) ValidateConfig() error {
	if s.cfg.APIURL == "" {
		return errors.InvalidInput("channels.signal.api_url is required")
	}
	if s.cfg.Number == "" {
		return errors.InvalidInput("channels.signal.number is required")
	}
	if s.cfg.Recipient == "" {
		return errors.InvalidInput("channels.signal.recipient is required")
	}
	return nil
}

func (s *SignalChannel) Initialize(ctx context.Context) error {
	s.setState(StateInitializing)

	// signal-cli exposes /v1/about as a liveness probe.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.APIURL+"/v1/about", nil)
	if err != nil {
		s.setState(StateError)
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		s.recordError(err)
		s.setState(StateError)
		return errors.Wrap(err, "signal-cli unreachable")
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		err := errors.Transient(fmt.Sprintf("signal-cli returned status %d", resp.StatusCode))
		s.recordError(err)
		s.setState(StateError)
		return err
	}

	s.setState(StateReady)
	s.recordSuccess()
	slog.Info("Signal channel ready", "api", s.cfg.APIURL)
	return nil
}

type signalSendRequest struct {
	Message    string   `json:"message"`
	Number     string   `json:"number"`
	Recipients []string `json:"recipients"`
}

type signalSendResponse struct {
	Timestamp int64 `json:"timestamp"`
}

func (s *SignalChannel) Send(ctx context.Context, n Notification) (string, error) {
	body, err := json.Marshal(signalSendRequest{
		Message:    n.Text,
		Number:     s.cfg.Number,
		Recipients: []string{s.cfg.Recipient},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.APIURL+"/v2/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordError(err)
		return "", errors.MapProviderError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Transient(fmt.Sprintf("signal send failed: status %d: %s", resp.StatusCode, data))
		s.recordError(err)
		return "", err
	}

	var sent signalSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		s.recordError(err)
		return "", errors.Wrap(err, "decode signal send response")
	}

	// Record the fingerprint before the reflected copy can show up on the
	// next poll cycle.
	s.filter.MarkOutbound(n.Text)
	s.recordSuccess()
	slog.Debug("Signal message sent", "timestamp", sent.Timestamp)
	return strconv.FormatInt(sent.Timestamp, 10), nil
}

type signalEnvelope struct {
	Envelope struct {
		Source      string `json:"source"`
		Timestamp   int64  `json:"timestamp"`
		DataMessage *struct {
			Message   string `json:"message"`
			Timestamp int64  `json:"timestamp"`
		} `json:"dataMessage"`
	} `json:"envelope"`
}

func (s *SignalChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	s.poll.start(ctx, s.Name(), s.interval, func(pollCtx context.Context) {
		s.pollOnce(pollCtx, cb)
	})
}

func (s *SignalChannel) pollOnce(ctx context.Context, cb ReplyCallback) {
	endpoint := s.cfg.APIURL + "/v1/receive/" + url.PathEscape(s.cfg.Number)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return
	}

	resp, err := s.client.Do(req)
	if err != nil {
		s.recordError(err)
		slog.Warn("Signal poll failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		s.recordError(errors.Transient(fmt.Sprintf("signal receive returned status %d", resp.StatusCode)))
		return
	}

	var envelopes []signalEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelopes); err != nil {
		s.recordError(err)
		return
	}
	s.recordSuccess()

	for _, env := range envelopes {
		if ctx.Err() != nil {
			return
		}
		dm := env.Envelope.DataMessage
		if dm == nil || dm.Message == "" {
			continue
		}

		seq := dm.Timestamp
		if seq == 0 {
			seq = env.Envelope.Timestamp
		}
		if !s.filter.Advance(seq) {
			continue
		}
		if s.filter.IsEcho(dm.Message) {
			slog.Debug("Suppressed echoed message", "channel", s.Name())
			continue
		}

		cb(Reply{Text: dm.Message, Origin: s.Name()})
	}
}

func (s *SignalChannel) StopPolling() {
	s.poll.stop()
}

func (s *SignalChannel) PruneEcho() int {
	return s.filter.Prune()
}

func (s *SignalChannel) Status() Status {
	return s.snapshot(s.cfg.Enabled)
}

func (s *SignalChannel) Dispose() {
	s.StopPolling()
	s.setState(StateDisposed)
}
