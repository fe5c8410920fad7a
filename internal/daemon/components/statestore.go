package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/daemon"
	"github.com/ccrelay/ccrelay/internal/state"
)

// StateStoreComponent owns the persisted global switches. It loads the state
// file during Init and watches it for external edits while running, so a CLI
// toggle in another process takes effect without a restart.
type StateStoreComponent struct {
	cfg       *config.Config
	store     *state.Store
	watchDone chan struct{}
}

func NewStateStoreComponent(cfg *config.Config) *StateStoreComponent {
	return &StateStoreComponent{cfg: cfg}
}

func (s *StateStoreComponent) Name() string {
	return "StateStore"
}

func (s *StateStoreComponent) Dependencies() []string {
	return []string{}
}

func (s *StateStoreComponent) Init(ctx context.Context) error {
	lockTimeout, err := config.DurationOrDefault(s.cfg.State.LockTimeout, config.DefaultStateLockTimeout)
	if err != nil {
		return fmt.Errorf("parse state lock timeout: %w", err)
	}

	store, err := state.NewStore(s.cfg.State.Path, lockTimeout)
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	s.store = store

	slog.Info("StateStore initialized", "component", s.Name(), "path", s.cfg.State.Path)
	return nil
}

func (s *StateStoreComponent) Start(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("state store not initialized")
	}

	s.watchDone = make(chan struct{})
	if err := s.store.Watch(s.watchDone); err != nil {
		return fmt.Errorf("start state watcher: %w", err)
	}

	slog.Info("StateStore started", "component", s.Name())
	return nil
}

func (s *StateStoreComponent) Stop(ctx context.Context) error {
	if s.watchDone != nil {
		close(s.watchDone)
		s.watchDone = nil
	}

	slog.Info("StateStore stopped", "component", s.Name())
	return nil
}

func (s *StateStoreComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if s.store == nil {
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

func (s *StateStoreComponent) GetStore() *state.Store {
	return s.store
}
