package channel

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/errors"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

// smsLimit caps outbound SMS at the segment-concatenation ceiling.
const smsLimit = 1600

const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// TwilioChannel is a push channel: outbound through the Messages API,
// inbound through a form-encoded webhook validated with Twilio's HMAC
// request signature. No poll loop runs; StartPolling only stores the
// callback for the webhook path.
type TwilioChannel struct {
	base
	cfg       config.TwilioConfig
	publicURL string
	client    *twilio.RestClient
	validator twilioclient.RequestValidator

	cbMu sync.RWMutex
	cb   ReplyCallback
}

func NewTwilioChannel(cfg config.TwilioConfig, publicURL string) *TwilioChannel {
	return &TwilioChannel{
		base:      newBase("twilio", smsLimit),
		cfg:       cfg,
		publicURL: strings.TrimRight(publicURL, "/"),
		validator: twilioclient.NewRequestValidator(cfg.AuthToken),
	}
}

func (t *TwilioChannel) ValidateConfig() error {
	switch {
	case t.cfg.AccountSID == "":
		return errors.InvalidInput("channels.twilio.account_sid is required")
	case t.cfg.AuthToken == "":
		return errors.InvalidInput("channels.twilio.auth_token is required")
	case t.cfg.From == "":
		return errors.InvalidInput("channels.twilio.from is required")
	case t.cfg.To == "":
		return errors.InvalidInput("channels.twilio.to is required")
	}
	return nil
}

func (t *TwilioChannel) Initialize(ctx context.Context) error {
	t.setState(StateInitializing)

	t.client = twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: t.cfg.AccountSID,
		Password: t.cfg.AuthToken,
	})

	// Fetching our own account verifies the credential pair.
	if _, err := t.client.Api.FetchAccount(t.cfg.AccountSID); err != nil {
		t.recordError(err)
		t.setState(StateError)
		return errors.Wrap(err, "twilio handshake failed")
	}

	t.setState(StateReady)
	t.recordSuccess()
	slog.Info("Twilio channel ready", "from", t.cfg.From)
	return nil
}

func (t *TwilioChannel) Send(ctx context.Context, n Notification) (string, error) {
	if t.client == nil {
		return "", errors.Internal("twilio channel not initialized")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(t.cfg.To)
	params.SetFrom(t.cfg.From)
	params.SetBody(n.Text)

	resp, err := t.client.Api.CreateMessage(params)
	if err != nil {
		t.recordError(err)
		return "", errors.MapProviderError(err)
	}

	t.recordSuccess()
	sid := ""
	if resp.Sid != nil {
		sid = *resp.Sid
	}
	slog.Debug("Twilio message sent", "sid", sid)
	return sid, nil
}

// StartPolling stores the callback for the webhook path. Push channels run
// no timer; calling it twice just replaces the callback.
func (t *TwilioChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.cb = cb
}

func (t *TwilioChannel) StopPolling() {
	t.cbMu.Lock()
	defer t.cbMu.Unlock()
	t.cb = nil
}

// ServeWebhook handles Twilio's inbound SMS callback. The signature covers
// the public webhook URL plus the sorted form parameters; a failed check is
// rejected with 401 before any state is touched. Twilio expects an empty
// TwiML envelope on success.
func (t *TwilioChannel) ServeWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form body", http.StatusBadRequest)
		return
	}

	params := make(map[string]string, len(r.PostForm))
	for key := range r.PostForm {
		params[key] = r.PostForm.Get(key)
	}

	signature := r.Header.Get("X-Twilio-Signature")
	url := t.publicURL + "/webhook/twilio"
	if signature == "" || !t.validator.Validate(url, params, signature) {
		slog.Warn("Rejected Twilio webhook with bad signature")
		http.Error(w, "signature verification failed", http.StatusUnauthorized)
		return
	}

	body := params["Body"]
	if body != "" {
		t.cbMu.RLock()
		cb := t.cb
		t.cbMu.RUnlock()
		if cb != nil {
			cb(Reply{Text: body, Origin: t.Name()})
		}
	}
	t.recordSuccess()

	w.Header().Set("Content-Type", "text/xml")
	w.Write([]byte(emptyTwiML))
}

func (t *TwilioChannel) Status() Status {
	return t.snapshot(t.cfg.Enabled)
}

func (t *TwilioChannel) Dispose() {
	t.StopPolling()
	t.client = nil
	t.setState(StateDisposed)
}
