package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watzon/gearbox/internal/automation"
	"github.com/watzon/gearbox/internal/config"
)

func setupStore(t *testing.T, retention time.Duration) *Store {
	t.Helper()

	cfg := &config.HistoryConfig{
		Path:      filepath.Join(t.TempDir(), "history.db"),
		Retention: retention,
	}
	store, err := Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func record(hookID string, success bool, at time.Time) *automation.ExecutionRecord {
	return &automation.ExecutionRecord{
		HookID:     hookID,
		TemplateID: "welcome_system",
		GuildID:    "guild-1",
		UserID:     "user-1",
		Success:    success,
		Timestamp:  at,
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	store := setupStore(t, 0)
	base := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(record("hook-1", true, base)))
	require.NoError(t, store.Record(record("hook-1", false, base.Add(time.Minute))))
	require.NoError(t, store.Record(record("hook-2", true, base)))

	recent, err := store.Recent(context.Background(), "hook-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)

	// Newest first.
	assert.False(t, recent[0].Success)
	assert.True(t, recent[1].Success)
	assert.Equal(t, "welcome_system", recent[0].TemplateID)
}

func TestStore_RecentHonorsLimit(t *testing.T) {
	store := setupStore(t, 0)
	base := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Record(record("hook-1", true, base.Add(time.Duration(i)*time.Second))))
	}

	recent, err := store.Recent(context.Background(), "hook-1", 3)
	require.NoError(t, err)
	assert.Len(t, recent, 3)
}

func TestStore_Summarize(t *testing.T) {
	store := setupStore(t, 0)
	base := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Record(record("hook-1", true, base)))
	require.NoError(t, store.Record(record("hook-1", false, base.Add(time.Minute))))
	other := record("hook-2", true, base)
	other.GuildID = "guild-2"
	require.NoError(t, store.Record(other))

	sums, err := store.Summarize(context.Background(), "guild-1")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, "hook-1", sums[0].HookID)
	assert.Equal(t, int64(2), sums[0].Executions)
	assert.Equal(t, int64(1), sums[0].Failures)

	all, err := store.Summarize(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestStore_Prune(t *testing.T) {
	store := setupStore(t, time.Hour)

	require.NoError(t, store.Record(record("hook-1", true, time.Now().Add(-2*time.Hour))))
	require.NoError(t, store.Record(record("hook-1", true, time.Now())))

	pruned, err := store.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	recent, err := store.Recent(context.Background(), "hook-1", 10)
	require.NoError(t, err)
	assert.Len(t, recent, 1)
}

func TestStore_PruneDisabledByZeroRetention(t *testing.T) {
	store := setupStore(t, 0)

	require.NoError(t, store.Record(record("hook-1", true, time.Now().Add(-24*time.Hour))))

	pruned, err := store.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, pruned)
}
