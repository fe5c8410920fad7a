package components

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ccrelay/ccrelay/internal/config"
	"github.com/ccrelay/ccrelay/internal/daemon"

	"github.com/robfig/cron/v3"
)

// MaintenanceComponent runs the periodic housekeeping jobs: sweeping idle
// sessions out of the registry and pruning expired echo fingerprints from
// the pull channels. Schedules come from config in cron syntax, including
// the @every shorthand.
type MaintenanceComponent struct {
	cfg          *config.Config
	sessionsComp *SessionsComponent
	channelsComp *ChannelsComponent
	cron         *cron.Cron
	started      bool
}

func NewMaintenanceComponent(cfg *config.Config, sessionsComp *SessionsComponent, channelsComp *ChannelsComponent) *MaintenanceComponent {
	return &MaintenanceComponent{
		cfg:          cfg,
		sessionsComp: sessionsComp,
		channelsComp: channelsComp,
	}
}

func (m *MaintenanceComponent) Name() string {
	return "Maintenance"
}

func (m *MaintenanceComponent) Dependencies() []string {
	return []string{"Sessions", "Channels"}
}

func (m *MaintenanceComponent) Init(ctx context.Context) error {
	registry := m.sessionsComp.GetRegistry()
	if registry == nil {
		return fmt.Errorf("session registry not initialized")
	}
	manager := m.channelsComp.GetManager()
	if manager == nil {
		return fmt.Errorf("channel manager not initialized")
	}

	c := cron.New()

	_, err := c.AddFunc(m.cfg.Session.SweepSchedule, func() {
		if removed := registry.Sweep(); removed > 0 {
			slog.Info("Swept idle sessions", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule session sweep %q: %w", m.cfg.Session.SweepSchedule, err)
	}

	_, err = c.AddFunc(m.cfg.Dedup.PruneSchedule, func() {
		if pruned := manager.PruneEcho(); pruned > 0 {
			slog.Debug("Pruned echo fingerprints", "pruned", pruned)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule dedup prune %q: %w", m.cfg.Dedup.PruneSchedule, err)
	}

	m.cron = c
	slog.Info("Maintenance initialized", "component", m.Name(),
		"sweep", m.cfg.Session.SweepSchedule, "prune", m.cfg.Dedup.PruneSchedule)
	return nil
}

func (m *MaintenanceComponent) Start(ctx context.Context) error {
	if m.cron == nil {
		return fmt.Errorf("maintenance not initialized")
	}

	m.cron.Start()
	m.started = true
	slog.Info("Maintenance started", "component", m.Name())
	return nil
}

func (m *MaintenanceComponent) Stop(ctx context.Context) error {
	if m.cron == nil || !m.started {
		slog.Info("Maintenance not started, skipping stop", "component", m.Name())
		return nil
	}

	stopCtx := m.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		slog.Warn("Maintenance stop cut short", "component", m.Name(), "reason", ctx.Err())
	}

	m.started = false
	slog.Info("Maintenance stopped", "component", m.Name())
	return nil
}

func (m *MaintenanceComponent) Health(ctx context.Context) (*daemon.ComponentHealth, error) {
	if m.cron == nil {
		return &daemon.ComponentHealth{
			Name:    m.Name(),
			Healthy: false,
			Error:   fmt.Errorf("not initialized"),
		}, nil
	}

	return &daemon.ComponentHealth{
		Name:    m.Name(),
		Healthy: true,
		Error:   nil,
	}, nil
}
