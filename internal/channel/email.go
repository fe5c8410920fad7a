package channel

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/dedup"
	"github.com/ccrelay/ccrelay/internal/errors"
	"github.com/ccrelay/ccrelay/internal/message"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"
	"github.com/oklog/ulid/v2"
	"gopkg.in/gomail.v2"
)

// EmailChannel sends through SMTP and polls an IMAP mailbox for replies. The
// IMAP UID is the sequence watermark; unseen messages are fetched non-peek so
// the provider marks them seen once processed. Mail replies usually quote the
// original, so the correlation id is also recovered from the subject line
// ("Re: [CC-<id>] ...") when the body carries no marker.
type EmailChannel struct {
	base
	cfg      config.EmailConfig
	interval time.Duration
	filter   *dedup.Filter
	poll     poller
	dialer   *gomail.Dialer
	imap     *imapclient.Client
}

func NewEmailChannel(cfg config.EmailConfig, filter *dedup.Filter) (*EmailChannel, error) {
	interval, err := config.DurationOrDefault(cfg.PollInterval, config.DefaultEmailPollInterval)
	if err != nil {
		return nil, err
	}
	return &EmailChannel{
		base:     newBase("email", 0),
		cfg:      cfg,
		interval: interval,
		filter:   filter,
	}, nil
}

func (e *EmailChannel) ValidateConfig() error {
	switch {
	case e.cfg.SMTPHost == "":
		return errors.InvalidInput("channels.email.smtp_host is required")
	case e.cfg.IMAPAddr == "":
		return errors.InvalidInput("channels.email.imap_addr is required")
	case e.cfg.Username == "":
		return errors.InvalidInput("channels.email.username is required")
	case e.cfg.Password == "":
		return errors.InvalidInput("channels.email.password is required")
	case e.cfg.From == "":
		return errors.InvalidInput("channels.email.from is required")
	case e.cfg.To == "":
		return errors.InvalidInput("channels.email.to is required")
	}
	return nil
}

func (e *EmailChannel) Initialize(ctx context.Context) error {
	e.setState(StateInitializing)
	e.dialer = gomail.NewDialer(e.cfg.SMTPHost, e.cfg.SMTPPort, e.cfg.Username, e.cfg.Password)

	// Verify SMTP credentials up front; a bad password should fail startup,
	// not the first notification.
	closer, err := e.dialer.Dial()
	if err != nil {
		e.recordError(err)
		e.setState(StateError)
		return errors.Wrap(err, "smtp handshake failed")
	}
	closer.Close()

	if err := e.connectIMAP(); err != nil {
		e.recordError(err)
		e.setState(StateError)
		return err
	}

	e.setState(StateReady)
	e.recordSuccess()
	slog.Info("Email channel ready", "smtp", e.cfg.SMTPHost, "imap", e.cfg.IMAPAddr)
	return nil
}

func (e *EmailChannel) connectIMAP() error {
	c, err := imapclient.DialTLS(e.cfg.IMAPAddr, nil)
	if err != nil {
		return errors.Wrap(err, "imap dial failed")
	}
	if err := c.Login(e.cfg.Username, e.cfg.Password); err != nil {
		c.Logout()
		return errors.Wrap(err, "imap login failed")
	}
	if _, err := c.Select("INBOX", false); err != nil {
		c.Logout()
		return errors.Wrap(err, "imap select failed")
	}
	e.imap = c
	return nil
}

func (e *EmailChannel) Send(ctx context.Context, n Notification) (string, error) {
	if e.dialer == nil {
		return "", errors.Internal("email channel not initialized")
	}

	msgID := ulid.Make().String()
	m := gomail.NewMessage()
	m.SetHeader("From", e.cfg.From)
	m.SetHeader("To", e.cfg.To)
	m.SetHeader("Subject", subjectFor(n))
	m.SetHeader("Message-ID", fmt.Sprintf("<%s@ccrelay>", msgID))
	m.SetBody("text/plain", n.Text)

	if err := e.dialer.DialAndSend(m); err != nil {
		e.recordError(err)
		return "", errors.MapProviderError(err)
	}

	e.filter.MarkOutbound(n.Text)
	e.recordSuccess()
	slog.Debug("Email sent", "to", e.cfg.To, "message_id", msgID)
	return msgID, nil
}

// subjectFor keeps the correlation marker in the subject so mail clients
// preserve it through "Re:" replies.
func subjectFor(n Notification) string {
	return fmt.Sprintf("%s%s] %s", message.Prefix, n.SessionID, message.Header(n.Event))
}

func (e *EmailChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	e.poll.start(ctx, e.Name(), e.interval, func(pollCtx context.Context) {
		e.pollOnce(pollCtx, cb)
	})
}

func (e *EmailChannel) pollOnce(ctx context.Context, cb ReplyCallback) {
	if e.imap == nil {
		if err := e.connectIMAP(); err != nil {
			e.recordError(err)
			slog.Warn("IMAP reconnect failed", "error", err)
			return
		}
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if wm := e.filter.Watermark(); wm > 0 {
		uidRange := new(imap.SeqSet)
		uidRange.AddRange(uint32(wm)+1, 0)
		criteria.Uid = uidRange
	}

	uids, err := e.imap.UidSearch(criteria)
	if err != nil {
		e.recordError(err)
		e.imap = nil // force reconnect next cycle
		return
	}
	e.recordSuccess()
	if len(uids) == 0 {
		return
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, len(uids))
	if err := e.imap.UidFetch(seqset, items, messages); err != nil {
		e.recordError(err)
		e.imap = nil
		return
	}

	for msg := range messages {
		if ctx.Err() != nil {
			return
		}
		if !e.filter.Advance(int64(msg.Uid)) {
			continue
		}

		subject := ""
		if msg.Envelope != nil {
			subject = msg.Envelope.Subject
		}
		body := extractBody(msg.GetBody(section))
		if body == "" && subject == "" {
			continue
		}
		if e.filter.IsEcho(body) {
			continue
		}

		reply := Reply{Text: body, Origin: e.Name()}
		// A reply without an inline marker still carries one in the subject.
		if _, _, ok := message.Parse(body); !ok {
			cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(subject), "Re:"))
			if id, _, ok := message.Parse(cleaned); ok {
				reply.SessionID = id
			}
		}
		cb(reply)
	}
}

// extractBody parses the RFC822 payload and returns the reply text with
// quoted lines stripped.
func extractBody(r io.Reader) string {
	if r == nil {
		return ""
	}
	m, err := mail.ReadMessage(r)
	if err != nil {
		return ""
	}
	data, err := io.ReadAll(m.Body)
	if err != nil {
		return ""
	}

	var kept []string
	for _, line := range strings.Split(string(data), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, ">") {
			continue
		}
		if strings.HasPrefix(trimmed, "On ") && strings.HasSuffix(trimmed, "wrote:") {
			break
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func (e *EmailChannel) StopPolling() {
	e.poll.stop()
}

func (e *EmailChannel) PruneEcho() int {
	return e.filter.Prune()
}

func (e *EmailChannel) Status() Status {
	return e.snapshot(e.cfg.Enabled)
}

func (e *EmailChannel) Dispose() {
	e.StopPolling()
	if e.imap != nil {
		e.imap.Logout()
		e.imap = nil
	}
	e.setState(StateDisposed)
}
