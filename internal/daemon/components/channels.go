package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccrelay/ccrelay/internal/channel"
	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/daemon"
	"github.com/ccrelay/ccrelay/internal/router"
)

// ChannelsComponent owns the channel manager and the reply router. Init
// validates every enabled adapter and performs the provider handshakes;
// Start hands the router's inbound callback to the channels, which begins
// polling on pull channels and arms the webhook path on push channels.
type ChannelsComponent struct {
	cfg          *config.Config
	stateComp    *StateStoreComponent
	sessionsComp *SessionsComponent
	manager      *channel.Manager
	router       *router.Router
}

func NewChannelsComponent(cfg *config.Config, stateComp *StateStoreComponent, sessionsComp *SessionsComponent) *ChannelsComponent {
	return &ChannelsComponent{
		cfg:          cfg,
		stateComp:    stateComp,
		sessionsComp: sessionsComp,
	}
}

func (c *ChannelsComponent) Name() string {
	return "Channels"
}

func (c *ChannelsComponent) Dependencies() []string {
	return []string{"StateStore", "Sessions"}
}

func (c *ChannelsComponent) Init(ctx context.Context) error {
	store := c.stateComp.GetStore()
	if store == nil {
		return fmt.Errorf("state store not initialized")
	}
	registry := c.sessionsComp.GetRegistry()
	if registry == nil {
		return fmt.Errorf("session registry not initialized")
	}

	echoTTL, err := config.DurationOrDefault(c.cfg.Dedup.EchoTTL, config.DefaultDedupEchoTTL)
	if err != nil {
		return fmt.Errorf("parse dedup echo ttl: %w", err)
	}

	manager, err := channel.NewManager(c.cfg.Channels, c.cfg.Server.PublicURL, echoTTL)
	if err != nil {
		return fmt.Errorf("build channel manager: %w", err)
	}

	if err := manager.Initialize(ctx); err != nil {
		return err
	}

	c.manager = manager
	c.router = router.New(registry, store, manager)

	slog.Info("Channels initialized", "component", c.Name(), "default", manager.Default().Name())
	return nil
}

func (c *ChannelsComponent) Start(ctx context.Context) error {
	if c.manager == nil || c.router == nil {
		return fmt.Errorf("channels not initialized")
	}

	c.manager.Start(ctx, c.router.Callback())
	slog.Info("Channels started", "component", c.Name())
	return nil
}

func (c *ChannelsComponent) Stop(ctx context.Context) error {
	if c.manager == nil {
		slog.Info("Channels not initialized, skipping stop", "component", c.Name())
		return nil
	}

	c.manager.Stop()
	slog.Info("Channels stopped", "component", c.Name())
	return nil
}

func (c *ChannelsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if c.manager == nil {
		return &daemon.ComponentHealth{
			Name:    c.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	if err := c.manager.Health(); err != nil {
		return &daemon.ComponentHealth{
			Name:    c.Name(),
			Healthy: false,
			Error:   err,
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    c.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (c *ChannelsComponent) GetManager() *channel.Manager {
	return c.manager
}

func (c *ChannelsComponent) GetRouter() *router.Router {
	return c.router
}
