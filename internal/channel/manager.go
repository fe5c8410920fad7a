package channel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/dedup"
	"github.com/ccrelay/ccrelay/internal/errors"
	"github.com/ccrelay/ccrelay/internal/logger"
)

// Manager builds the configured adapters, owns their lifecycle, and gives
// the router and HTTP surface uniform access to them. Each pull channel gets
// its own echo/dedup filter; push channels are reachable through the webhook
// lookup.
type Manager struct {
	mu          sync.RWMutex
	channels    []Channel
	byName      map[string]Channel
	defaultName string
	started     bool
}

// NewManager constructs adapters for every enabled channel, validating each
// config eagerly so a missing field fails startup instead of the first send.
func NewManager(cfg config.ChannelsConfig, publicURL string, echoTTL time.Duration) (*Manager, error) {
	m := &Manager{byName: make(map[string]Channel)}

	if cfg.Twilio.Enabled {
		m.add(NewTwilioChannel(cfg.Twilio, publicURL))
	}
	if cfg.Telnyx.Enabled {
		m.add(NewTelnyxChannel(cfg.Telnyx))
	}
	if cfg.Telegram.Enabled {
		ch, err := NewTelegramChannel(cfg.Telegram, dedup.New(echoTTL))
		if err != nil {
			return nil, err
		}
		m.add(ch)
	}
	if cfg.Signal.Enabled {
		ch, err := NewSignalChannel(cfg.Signal, dedup.New(echoTTL))
		if err != nil {
			return nil, err
		}
		m.add(ch)
	}
	if cfg.Email.Enabled {
		ch, err := NewEmailChannel(cfg.Email, dedup.New(echoTTL))
		if err != nil {
			return nil, err
		}
		m.add(ch)
	}
	if cfg.Slack.Enabled {
		m.add(NewSlackChannel(cfg.Slack))
	}

	if len(m.channels) == 0 {
		return nil, errors.InvalidInput("no channels enabled")
	}

	for _, ch := range m.channels {
		if err := ch.ValidateConfig(); err != nil {
			return nil, err
		}
	}

	defaultName := strings.TrimSpace(cfg.Default)
	if defaultName == "" {
		defaultName = m.channels[0].Name()
	}
	if _, exists := m.byName[defaultName]; !exists {
		return nil, errors.InvalidInput(fmt.Sprintf("channels.default %q is not an enabled channel", defaultName))
	}
	m.defaultName = defaultName

	return m, nil
}

func (m *Manager) add(ch Channel) {
	m.channels = append(m.channels, ch)
	m.byName[ch.Name()] = ch
}

// Initialize performs every adapter's provider handshake. Any failure aborts
// startup: a misconfigured channel is a deployment defect, not a runtime
// condition to limp through.
func (m *Manager) Initialize(ctx context.Context) error {
	for _, ch := range m.channels {
		if err := ch.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize channel %s: %w", ch.Name(), err)
		}
	}
	return nil
}

// Start hands the reply callback to every channel. Pull channels begin their
// poll loops; push channels store it for the webhook path.
func (m *Manager) Start(ctx context.Context, cb ReplyCallback) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.StartPolling(logger.WithChannel(ctx, ch.Name()), cb)
		slog.Info("Channel started", "channel", ch.Name())
	}
}

// Stop halts polling and disposes every adapter.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.started {
		m.mu.Unlock()
		return
	}
	m.started = false
	channels := make([]Channel, len(m.channels))
	copy(channels, m.channels)
	m.mu.Unlock()

	for _, ch := range channels {
		ch.Dispose()
		slog.Info("Channel stopped", "channel", ch.Name())
	}
}

// Get returns a channel by provider name.
func (m *Manager) Get(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, exists := m.byName[name]
	return ch, exists
}

// Default returns the channel outbound notifications go through.
func (m *Manager) Default() Channel {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.byName[m.defaultName]
}

// Webhook returns the inbound handler for a push provider, or false when the
// name is unknown or names a pull channel.
func (m *Manager) Webhook(provider string) (WebhookChannel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, exists := m.byName[provider]
	if !exists {
		return nil, false
	}
	wh, ok := ch.(WebhookChannel)
	return wh, ok
}

// Statuses returns a diagnostic snapshot of every channel.
func (m *Manager) Statuses() []Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	statuses := make([]Status, 0, len(m.channels))
	for _, ch := range m.channels {
		statuses = append(statuses, ch.Status())
	}
	return statuses
}

type echoPruner interface {
	PruneEcho() int
}

// PruneEcho drops expired echo fingerprints on every pull channel and
// returns the total removed.
func (m *Manager) PruneEcho() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := 0
	for _, ch := range m.channels {
		if p, ok := ch.(echoPruner); ok {
			total += p.PruneEcho()
		}
	}
	return total
}

// Health reports an error if any channel sits in the error state.
func (m *Manager) Health() error {
	var unhealthy []string
	for _, status := range m.Statuses() {
		if status.State == StateError.String() {
			unhealthy = append(unhealthy, status.Name)
		}
	}
	if len(unhealthy) > 0 {
		return errors.Transient(fmt.Sprintf("%d channel(s) unhealthy: %v", len(unhealthy), unhealthy))
	}
	return nil
}
