package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/errors"
	"github.com/ccrelay/ccrelay/internal/webhook"
)

// TelnyxChannel is a push channel: outbound through the Messages REST API,
// inbound through a JSON webhook whose Ed25519 signature covers
// timestamp + "|" + body. Outbound-direction events delivered to the webhook
// (Telnyx reports sent-message lifecycle on the same URL) are dropped before
// they can masquerade as replies.
type TelnyxChannel struct {
	base
	cfg    config.TelnyxConfig
	client *http.Client

	cbMu sync.RWMutex
	cb   ReplyCallback
}

func NewTelnyxChannel(cfg config.TelnyxConfig) *TelnyxChannel {
	return &TelnyxChannel{
		base:   newBase("telnyx", smsLimit),
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *TelnyxChannel) ValidateConfig() error {
	switch {
	case t.cfg.APIKey == "":
		return errors.InvalidInput("channels.telnyx.api_key is required")
	case t.cfg.PublicKey == "":
		return errors.InvalidInput("channels.telnyx.public_key is required")
	case t.cfg.From == "":
		return errors.InvalidInput("channels.telnyx.from is required")
	case t.cfg.To == "":
		return errors.InvalidInput("channels.telnyx.to is required")
	}
	return nil
}

func (t *TelnyxChannel) Initialize(ctx context.Context) error {
	t.setState(StateInitializing)

	// An undecodable public key is a deployment defect; surface it now
	// rather than on the first inbound webhook.
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if _, err := webhook.Verify([]byte{}, "AA==", now, t.cfg.PublicKey); err != nil {
		t.setState(StateError)
		return errors.InvalidInput("channels.telnyx.public_key is not a valid ed25519 key")
	}

	t.setState(StateReady)
	t.recordSuccess()
	slog.Info("Telnyx channel ready", "from", t.cfg.From)
	return nil
}

type telnyxSendRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
	Text string `json:"text"`
}

type telnyxSendResponse struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

func (t *TelnyxChannel) Send(ctx context.Context, n Notification) (string, error) {
	payload, err := json.Marshal(telnyxSendRequest{From: t.cfg.From, To: t.cfg.To, Text: n.Text})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.cfg.APIURL, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.cfg.APIKey)

	resp, err := t.client.Do(req)
	if err != nil {
		t.recordError(err)
		return "", errors.MapProviderError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := errors.Transient(fmt.Sprintf("telnyx send failed: status %d: %s", resp.StatusCode, data))
		t.recordError(err)
		return "", err
	}

	var sent telnyxSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&sent); err != nil {
		t.recordError(err)
		return "", errors.Wrap(err, "decode telnyx send response")
	}

	t.recordSuccess()
	slog.Debug("Telnyx message sent", "id", sent.Data.ID)
	return sent.Data.ID, nil
}

func (t *TelnyxChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.cb = cb
}

func (t *TelnyxChannel) StopPolling() {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.cb = nil
}

type telnyxEvent struct {
	Data struct {
		EventType string `json:"event_type"`
		Payload   struct {
			ID        string `json:"id"`
			Direction string `json:"direction"`
			Text      string `json:"text"`
			From      struct {
				PhoneNumber string `json:"phone_number"`
			} `json:"from"`
		} `json:"payload"`
	} `json:"data"`
}

// ServeWebhook handles Telnyx message callbacks. Signature or freshness
// failure is a 401; a missing header is a protocol violation and also a 401,
// but reported as a request error rather than a stale signature.
func (t *TelnyxChannel) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		http.Error(w, "unreadable body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("telnyx-signature-ed25519")
	timestamp := r.Header.Get("telnyx-timestamp")

	valid, err := webhook.Verify(rawBody, signature, timestamp, t.cfg.PublicKey)
	if err != nil {
		slog.Warn("Rejected malformed Telnyx webhook", "error", err)
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	if !valid {
		slog.Warn("Rejected Telnyx webhook with invalid or stale signature")
		http.Error(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	var event telnyxEvent
	if err := json.Unmarshal(rawBody, &event); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	// Only genuine inbound messages become replies.
	if event.Data.EventType == "message.received" && event.Data.Payload.Direction != "outbound" && event.Data.Payload.Text != "" {
		t.cbMu.RLock()
		cb := t.cb
		t.cbMu.RUnlock()
		if cb != nil {
			cb(Reply{Text: event.Data.Payload.Text, Origin: t.Name()})
		}
	}
	t.recordSuccess()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("{}"))
}

func (t *TelnyxChannel) Status() Status {
	return t.snapshot(t.cfg.Enabled)
}

func (t *TelnyxChannel) Dispose() {
	t.StopPolling()
	t.setState(StateDisposed)
}
