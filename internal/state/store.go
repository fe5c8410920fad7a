package state

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
	"github.com/natefinch/atomic"
)

// GlobalState holds the persisted notification switches. The relay treats it
// as read-only truth on every inbound/outbound decision; mutation happens
// through the CLI or chat commands, possibly from another process, which is
// why every write goes through a file lock and an atomic rename.
type GlobalState struct {
	Enabled bool            `json:"enabled"`
	Hooks   map[string]bool `json:"hooks"`
}

type Store struct {
	path        string
	lock        *flock.Flock
	lockTimeout time.Duration

	mu      sync.RWMutex
	state   GlobalState
	watcher *fsnotify.Watcher
}

func NewStore(path string, lockTimeout time.Duration) (*Store, error) {
	if lockTimeout <= 0 {
		lockTimeout = 5 * time.Second
	}

	s := &Store{
		path:        path,
		lock:        flock.New(path + ".lock"),
		lockTimeout: lockTimeout,
		state: GlobalState{
			Enabled: true,
			Hooks:   make(map[string]bool),
		},
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Reload reads the file back into memory. Missing file means first run: the
// default state (everything enabled) is persisted so other processes see it.
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s.save()
	}
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}

	var loaded GlobalState
	if err := json.Unmarshal(data, &loaded); err != nil {
		return err
	}
	if loaded.Hooks == nil {
		loaded.Hooks = make(map[string]bool)
	}
	s.state = loaded
	return nil
}

func (s *Store) save() error {
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	return atomic.WriteFile(s.path, bytes.NewReader(data))
}

// Enabled reports the global notification switch.
func (s *Store) Enabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Enabled
}

// HookEnabled reports the per-event-kind switch. An event kind never toggled
// defaults to enabled.
func (s *Store) HookEnabled(event string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	enabled, exists := s.state.Hooks[event]
	if !exists {
		return true
	}
	return enabled
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() GlobalState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	hooks := make(map[string]bool, len(s.state.Hooks))
	for k, v := range s.state.Hooks {
		hooks[k] = v
	}
	return GlobalState{Enabled: s.state.Enabled, Hooks: hooks}
}

// SetEnabled flips the global switch and persists.
func (s *Store) SetEnabled(enabled bool) error {
	return s.mutate(func(st *GlobalState) {
		st.Enabled = enabled
	})
}

// SetHook flips one event kind's switch and persists.
func (s *Store) SetHook(event string, enabled bool) error {
	return s.mutate(func(st *GlobalState) {
		st.Hooks[event] = enabled
	})
}

// mutate performs a locked read-modify-write cycle so concurrent processes
// (server and CLI) never clobber each other's toggles.
func (s *Store) mutate(fn func(*GlobalState)) error {
	lockCtx, cancel := lockContext(s.lockTimeout)
	defer cancel()

	locked, err := s.lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil {
		return err
	}
	if locked {
		defer s.lock.Unlock()
	}

	if err := s.Reload(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.state)
	return s.save()
}

func lockContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// Watch reloads the cached state whenever another process rewrites the file.
// The watcher runs until done is closed.
func (s *Store) Watch(done <-chan struct{}) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return err
	}

	s.mu.Lock()
	s.watcher = watcher
	s.mu.Unlock()

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(s.path) {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if err := s.Reload(); err != nil {
					slog.Warn("State reload failed", "path", s.path, "error", err)
				} else {
					slog.Debug("State reloaded", "path", s.path)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("State watcher error", "error", err)
			}
		}
	}()

	return nil
}
