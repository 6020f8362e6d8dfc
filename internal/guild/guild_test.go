package guild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/gearbox/internal/storage"
)

func setupManager(t *testing.T) *Manager {
	t.Helper()

	store, err := storage.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	m, err := NewManager(store)
	require.NoError(t, err)
	return m
}

func TestManager_PrefixDefault(t *testing.T) {
	m := setupManager(t)

	assert.Equal(t, DefaultPrefix, m.Prefix("guild-1"))

	m.SetPrefix("guild-1", "?")
	assert.Equal(t, "?", m.Prefix("guild-1"))
	assert.Equal(t, DefaultPrefix, m.Prefix("guild-2"))
}

func TestManager_MuteChannels(t *testing.T) {
	m := setupManager(t)

	assert.False(t, m.IsMuted("guild-1", "chan-1"))

	m.MuteChannel("guild-1", "chan-1")
	m.MuteChannel("guild-1", "chan-1") // idempotent
	assert.True(t, m.IsMuted("guild-1", "chan-1"))
	assert.False(t, m.IsMuted("guild-1", "chan-2"))
	assert.Len(t, m.Get("guild-1").MutedChannels, 1)

	m.UnmuteChannel("guild-1", "chan-1")
	assert.False(t, m.IsMuted("guild-1", "chan-1"))
}

func TestManager_FeatureToggles(t *testing.T) {
	m := setupManager(t)

	assert.True(t, m.FeatureEnabled("guild-1", "welcome", true))
	assert.False(t, m.FeatureEnabled("guild-1", "welcome", false))

	m.SetFeature("guild-1", "welcome", false)
	assert.False(t, m.FeatureEnabled("guild-1", "welcome", true))

	m.SetFeature("guild-1", "welcome", true)
	assert.True(t, m.FeatureEnabled("guild-1", "welcome", false))
}

func TestManager_Forget(t *testing.T) {
	m := setupManager(t)

	m.SetPrefix("guild-1", "?")
	m.SetLocale("guild-1", "de")
	m.Forget("guild-1")

	assert.Equal(t, DefaultPrefix, m.Prefix("guild-1"))
	assert.Equal(t, "", m.Locale("guild-1"))
}

func TestManager_PersistsAcrossRestarts(t *testing.T) {
	dir := t.TempDir()

	store, err := storage.Open(dir)
	require.NoError(t, err)
	m, err := NewManager(store)
	require.NoError(t, err)
	m.SetPrefix("guild-1", "?")
	m.MuteChannel("guild-1", "chan-1")
	m.SetFeature("guild-1", "welcome", true)
	require.NoError(t, store.Close())

	store2, err := storage.Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })
	m2, err := NewManager(store2)
	require.NoError(t, err)

	assert.Equal(t, "?", m2.Prefix("guild-1"))
	assert.True(t, m2.IsMuted("guild-1", "chan-1"))
	assert.True(t, m2.FeatureEnabled("guild-1", "welcome", false))
}
