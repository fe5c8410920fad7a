package channel

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ccrelay/ccrelay/internal/config"
)

type telnyxTestKeys struct {
	priv   ed25519.PrivateKey
	pubB64 string
}

func newTelnyxKeys(t *testing.T) telnyxTestKeys {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return telnyxTestKeys{priv: priv, pubB64: base64.StdEncoding.EncodeToString(pub)}
}

func (k telnyxTestKeys) sign(body []byte, ts time.Time) (sigB64, timestamp string) {
	timestamp = strconv.FormatInt(ts.Unix(), 10)
	payload := append([]byte(timestamp+"|"), body...)
	return base64.StdEncoding.EncodeToString(ed25519.Sign(k.priv, payload)), timestamp
}

func newTelnyxUnderTest(t *testing.T, keys telnyxTestKeys) *TelnyxChannel {
	t.Helper()
	ch := NewTelnyxChannel(config.TelnyxConfig{
		Enabled:   true,
		APIKey:    "KEY",
		PublicKey: keys.pubB64,
		From:      "+15550000001",
		To:        "+15550000002",
	})
	return ch
}

func inboundEvent(text string) []byte {
	return []byte(fmt.Sprintf(`{"data":{"event_type":"message.received","payload":{"id":"m1","direction":"inbound","text":%q,"from":{"phone_number":"+15550000002"}}}}`, text))
}

func serveTelnyx(ch *TelnyxChannel, body []byte, sig, ts string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhook/telnyx", bytes.NewReader(body))
	if sig != "" {
		req.Header.Set("telnyx-signature-ed25519", sig)
	}
	if ts != "" {
		req.Header.Set("telnyx-timestamp", ts)
	}
	rec := httptest.NewRecorder()
	ch.ServeWebhook(rec, req)
	return rec
}

func TestTelnyxWebhookDeliversReply(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	var got []Reply
	ch.StartPolling(t.Context(), func(r Reply) { got = append(got, r) })

	body := inboundEvent("[CC-abc123] yes")
	sig, ts := keys.sign(body, time.Now())

	rec := serveTelnyx(ch, body, sig, ts)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, got, 1)
	assert.Equal(t, "[CC-abc123] yes", got[0].Text)
	assert.Equal(t, "telnyx", got[0].Origin)
}

func TestTelnyxWebhookRejectsBadSignature(t *testing.T) {
	keys := newTelnyxKeys(t)
	other := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	var got []Reply
	ch.StartPolling(t.Context(), func(r Reply) { got = append(got, r) })

	body := inboundEvent("yes")
	sig, ts := other.sign(body, time.Now())

	rec := serveTelnyx(ch, body, sig, ts)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, got)
}

func TestTelnyxWebhookRejectsStaleTimestamp(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	body := inboundEvent("yes")
	sig, ts := keys.sign(body, time.Now().Add(-10*time.Minute))

	rec := serveTelnyx(ch, body, sig, ts)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTelnyxWebhookRejectsMissingHeaders(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	rec := serveTelnyx(ch, inboundEvent("yes"), "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTelnyxWebhookDropsOutboundEcho(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	var got []Reply
	ch.StartPolling(t.Context(), func(r Reply) { got = append(got, r) })

	body := []byte(`{"data":{"event_type":"message.received","payload":{"id":"m2","direction":"outbound","text":"[CC-abc123] our own send"}}}`)
	sig, ts := keys.sign(body, time.Now())

	rec := serveTelnyx(ch, body, sig, ts)
	assert.Equal(t, http.StatusOK, rec.Code, "acknowledged but not surfaced")
	assert.Empty(t, got)
}

func TestTelnyxWebhookIgnoresLifecycleEvents(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	var got []Reply
	ch.StartPolling(t.Context(), func(r Reply) { got = append(got, r) })

	body := []byte(`{"data":{"event_type":"message.finalized","payload":{"id":"m3","direction":"outbound","text":"delivered"}}}`)
	sig, ts := keys.sign(body, time.Now())

	rec := serveTelnyx(ch, body, sig, ts)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, got)
}

func TestTelnyxInitializeRejectsBadPublicKey(t *testing.T) {
	ch := NewTelnyxChannel(config.TelnyxConfig{
		Enabled:   true,
		APIKey:    "KEY",
		PublicKey: "not base64 at all",
		From:      "+15550000001",
		To:        "+15550000002",
	})

	err := ch.Initialize(t.Context())
	require.Error(t, err)
	assert.Equal(t, StateError.String(), ch.Status().State)
}

func TestTelnyxStopPollingSilencesCallback(t *testing.T) {
	keys := newTelnyxKeys(t)
	ch := newTelnyxUnderTest(t, keys)

	var got []Reply
	ch.StartPolling(t.Context(), func(r Reply) { got = append(got, r) })
	ch.StopPolling()

	body := inboundEvent("too late")
	sig, ts := keys.sign(body, time.Now())
	serveTelnyx(ch, body, sig, ts)

	assert.Empty(t, got)
}
