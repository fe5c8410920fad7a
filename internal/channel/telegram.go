package channel

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/dedup"
	"github.com/ccrelay/ccrelay/internal/errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// telegramLimit is the Bot API maximum message length.
const telegramLimit = 4096

// TelegramChannel is a pull channel: outbound through the Bot API sendMessage
// call, inbound through a getUpdates poll loop. The update id doubles as the
// provider-sequence watermark.
type TelegramChannel struct {
	base
	cfg      config.TelegramConfig
	interval time.Duration
	filter   *dedup.Filter
	poll     poller
	bot      *tgbotapi.BotAPI
}

func NewTelegramChannel(cfg config.TelegramConfig, filter *dedup.Filter) (*TelegramChannel, error) {
	interval, err := config.DurationOrDefault(cfg.PollInterval, config.DefaultTelegramPollInterval)
	if err != nil {
		return nil, err
	}
	return &TelegramChannel{
		base:     newBase("telegram", telegramLimit),
		cfg:      cfg,
		interval: interval,
		filter:   filter,
	}, nil
}

func (t *TelegramChannel) ValidateConfig() error {
	if t.cfg.BotToken == "" {
		return errors.InvalidInput("channels.telegram.bot_token is required")
	}
	if t.cfg.ChatID == 0 {
		return errors.InvalidInput("channels.telegram.chat_id is required")
	}
	return nil
}

func (t *TelegramChannel) Initialize(ctx context.Context) error {
	t.setState(StateInitializing)

	bot, err := tgbotapi.NewBotAPI(t.cfg.BotToken)
	if err != nil {
		t.recordError(err)
		t.setState(StateError)
		return errors.Wrap(err, "telegram handshake failed")
	}

	t.bot = bot
	t.setState(StateReady)
	t.recordSuccess()
	slog.Info("Telegram channel ready", "user", bot.Self.UserName)
	return nil
}

func (t *TelegramChannel) Send(ctx context.Context, n Notification) (string, error) {
	if t.bot == nil {
		return "", errors.Internal("telegram channel not initialized")
	}

	msg := tgbotapi.NewMessage(t.cfg.ChatID, n.Text)
	sent, err := t.bot.Send(msg)
	if err != nil {
		t.recordError(err)
		return "", errors.MapProviderError(err)
	}

	t.recordSuccess()
	slog.Debug("Telegram message sent", "chat_id", t.cfg.ChatID, "message_id", sent.MessageID)
	return strconv.Itoa(sent.MessageID), nil
}

func (t *TelegramChannel) StartPolling(ctx context.Context, cb ReplyCallback) {
	t.poll.start(ctx, t.Name(), t.interval, func(pollCtx context.Context) {
		t.pollOnce(pollCtx, cb)
	})
}

func (t *TelegramChannel) pollOnce(ctx context.Context, cb ReplyCallback) {
	if t.bot == nil {
		return
	}

	u := tgbotapi.NewUpdate(int(t.filter.Watermark()) + 1)
	u.Timeout = 0

	updates, err := t.bot.GetUpdates(u)
	if err != nil {
		t.recordError(err)
		slog.Warn("Telegram poll failed", "error", err)
		return
	}
	t.recordSuccess()

	for _, update := range updates {
		if ctx.Err() != nil {
			return
		}
		if !t.filter.Advance(int64(update.UpdateID)) {
			continue
		}
		if update.Message == nil || update.Message.Chat == nil {
			continue
		}
		if update.Message.Chat.ID != t.cfg.ChatID {
			continue
		}
		text := update.Message.Text
		if text == "" || t.filter.IsEcho(text) {
			continue
		}

		reply := Reply{Text: text, Origin: t.Name()}
		if update.Message.ReplyToMessage != nil {
			reply.MessageID = strconv.Itoa(update.Message.ReplyToMessage.MessageID)
		}
		cb(reply)
	}
}

func (t *TelegramChannel) StopPolling() {
	t.poll.stop()
}

func (t *TelegramChannel) PruneEcho() int {
	return t.filter.Prune()
}

func (t *TelegramChannel) Status() Status {
	return t.snapshot(t.cfg.Enabled)
}

func (t *TelegramChannel) Dispose() {
	t.StopPolling()
	t.bot = nil
	t.setState(StateDisposed)
}
