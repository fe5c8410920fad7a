package state

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "state.json")
	store, err := NewStore(path, time.Second)
	require.NoError(t, err)
	return store, path
}

func TestMissingFileDefaultsEnabled(t *testing.T) {
	store, _ := newTestStore(t)

	assert.True(t, store.Enabled())
	assert.True(t, store.HookEnabled("Notification"), "unknown hooks default to enabled")
}

func TestSetEnabledPersistsAcrossReopen(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.SetEnabled(false))
	assert.False(t, store.Enabled())

	reopened, err := NewStore(path, time.Second)
	require.NoError(t, err)
	assert.False(t, reopened.Enabled())
}

func TestHookTogglesAreIndependent(t *testing.T) {
	store, path := newTestStore(t)

	require.NoError(t, store.SetHook("Stop", false))

	assert.False(t, store.HookEnabled("Stop"))
	assert.True(t, store.HookEnabled("Notification"))
	assert.True(t, store.Enabled(), "hook toggle leaves the global switch alone")

	reopened, err := NewStore(path, time.Second)
	require.NoError(t, err)
	assert.False(t, reopened.HookEnabled("Stop"))
}

func TestReloadPicksUpExternalWrite(t *testing.T) {
	store, path := newTestStore(t)

	other, err := NewStore(path, time.Second)
	require.NoError(t, err)
	require.NoError(t, other.SetEnabled(false))

	require.NoError(t, store.Reload())
	assert.False(t, store.Enabled())
}

func TestSnapshotIsACopy(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.SetHook("Stop", false))

	snap := store.Snapshot()
	snap.Hooks["Stop"] = true

	assert.False(t, store.HookEnabled("Stop"), "mutating a snapshot must not leak back")
}
