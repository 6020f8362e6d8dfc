package storage

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

type testDoc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_ReadMissing(t *testing.T) {
	store := setupStore(t)

	var doc testDoc
	err := store.ReadJSON("missing.json", &doc)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_ReadMalformed(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, os.WriteFile(store.Path("bad.json"), []byte("{not json"), 0o644))

	var doc testDoc
	err := store.ReadJSON("bad.json", &doc)
	assert.ErrorIs(t, err, ErrMalformed)
	assert.Zero(t, doc)
}

func TestStore_WriteSyncRoundTrip(t *testing.T) {
	store := setupStore(t)

	require.NoError(t, store.WriteJSONSync("doc.json", &testDoc{Name: "a", Count: 2}))

	var doc testDoc
	require.NoError(t, store.ReadJSON("doc.json", &doc))
	assert.Equal(t, testDoc{Name: "a", Count: 2}, doc)
}

func TestStore_AsyncWriteLandsBeforeClose(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(dir)
	require.NoError(t, err)

	require.NoError(t, store.WriteJSON("doc.json", &testDoc{Name: "queued"}))
	require.NoError(t, store.Close())

	store2, err := Open(dir)
	require.NoError(t, err)
	t.Cleanup(func() { store2.Close() })

	var doc testDoc
	require.NoError(t, store2.ReadJSON("doc.json", &doc))
	assert.Equal(t, "queued", doc.Name)
}

func TestStore_SnapshotReflectsCallTimeState(t *testing.T) {
	store := setupStore(t)

	doc := &testDoc{Count: 1}
	require.NoError(t, store.WriteJSON("doc.json", doc))

	// Mutating after the call must not leak into the queued snapshot.
	doc.Count = 99
	require.NoError(t, store.WriteJSONSync("sync.json", &testDoc{})) // flush the queue

	var got testDoc
	require.NoError(t, store.ReadJSON("doc.json", &got))
	assert.Equal(t, 1, got.Count)
}

func TestStore_ConcurrentWritersSerialized(t *testing.T) {
	store := setupStore(t)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_ = store.WriteJSONSync("doc.json", &testDoc{Count: n})
		}(i)
	}
	wg.Wait()

	// Whichever write landed last, the document is complete and parseable.
	var doc testDoc
	require.NoError(t, store.ReadJSON("doc.json", &doc))
	assert.GreaterOrEqual(t, doc.Count, 0)
	assert.Less(t, doc.Count, 10)
}

func TestStore_WriteAfterClose(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	err = store.WriteJSON("doc.json", &testDoc{})
	assert.ErrorIs(t, err, ErrClosed)
}

type fakeBackend struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func (b *fakeBackend) Upload(ctx context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.uploads == nil {
		b.uploads = make(map[string][]byte)
	}
	b.uploads[name] = data
	return nil
}

func TestStore_BackupReceivesWrites(t *testing.T) {
	store := setupStore(t)
	backend := &fakeBackend{}
	store.SetBackup(backend)

	require.NoError(t, store.WriteJSONSync("doc.json", &testDoc{Name: "backed up"}))

	backend.mu.Lock()
	defer backend.mu.Unlock()
	assert.Contains(t, string(backend.uploads["doc.json"]), "backed up")
}

func TestWatcher_NotifiesOnExternalEdit(t *testing.T) {
	store := setupStore(t)

	changed := make(chan string, 1)
	w, err := NewWatcher(store, func(name string) { changed <- name })
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	w.debounce = 50 * time.Millisecond

	require.NoError(t, os.WriteFile(store.Path("hooks.json"), []byte("[]"), 0o644))

	select {
	case name := <-changed:
		assert.Equal(t, "hooks.json", name)
	case <-time.After(3 * time.Second):
		t.Fatal("expected change notification")
	}
}

func TestWatcher_IgnoresOwnWrites(t *testing.T) {
	store := setupStore(t)

	changed := make(chan string, 1)
	w, err := NewWatcher(store, func(name string) { changed <- name })
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	w.debounce = 50 * time.Millisecond

	require.NoError(t, store.WriteJSONSync("hooks.json", []string{}))

	select {
	case name := <-changed:
		t.Fatalf("unexpected notification for %s", name)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcher_IgnoresNonJSON(t *testing.T) {
	store := setupStore(t)

	changed := make(chan string, 1)
	w, err := NewWatcher(store, func(name string) { changed <- name })
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	w.debounce = 50 * time.Millisecond

	require.NoError(t, os.WriteFile(store.Path("notes.txt"), []byte("hi"), 0o644))

	select {
	case name := <-changed:
		t.Fatalf("unexpected notification for %s", name)
	case <-time.After(500 * time.Millisecond):
	}
}
