package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/daemon"
	"github.com/ccrelay/ccrelay/internal/session"
)

// SessionsComponent owns the in-memory session registry. Sessions live only
// as long as the daemon; the registry itself has no start/stop machinery, so
// this component is mostly construction plus a health probe.
type SessionsComponent struct {
	cfg      *config.Config
	registry *session.Registry
}

func NewSessionsComponent(cfg *config.Config) *SessionsComponent {
	return &SessionsComponent{cfg: cfg}
}

func (s *SessionsComponent) Name() string {
	return "Sessions"
}

func (s *SessionsComponent) Dependencies() []string {
	return []string{}
}

func (s *SessionsComponent) Init(ctx context.Context) error {
	timeout, err := config.DurationOrDefault(s.cfg.Session.Timeout, config.DefaultSessionTimeout)
	if err != nil {
		return fmt.Errorf("parse session timeout: %w", err)
	}

	s.registry = session.NewRegistry(timeout)
	slog.Info("Sessions initialized", "component", s.Name(), "timeout", timeout)
	return nil
}

func (s *SessionsComponent) Start(ctx context.Context) error {
	if s.registry == nil {
		return fmt.Errorf("session registry not initialized")
	}
	return nil
}

func (s *SessionsComponent) Stop(ctx context.Context) error {
	return nil
}

func (s *SessionsComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if s.registry == nil {
		return &daemon.ComponentHealth{
			Name:    s.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    s.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}

func (s *SessionsComponent) GetRegistry() *session.Registry {
	return s.registry
}
