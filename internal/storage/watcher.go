package storage

import (
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
)

const selfWriteWindow = 2 * time.Second

// Watcher notifies on documents edited outside the process, so in-memory
// state can be reloaded. The store's own atomic writes are filtered out.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	onChange func(name string)
	debounce time.Duration

	mu      sync.Mutex
	pending map[string]*time.Timer
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewWatcher watches the store's data directory. onChange receives the
// document name (not the full path) after a short debounce.
func NewWatcher(store *Store, onChange func(name string)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(store.dir); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		store:    store,
		watcher:  fsw,
		onChange: onChange,
		debounce: 500 * time.Millisecond,
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}

	w.wg.Add(1)
	go w.loop()

	return w, nil
}

func (w *Watcher) loop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("Document watcher error")
		}
	}
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) {
		return
	}

	name := filepath.Base(event.Name)
	if strings.Contains(name, ".tmp-") || !strings.HasSuffix(name, ".json") {
		return
	}
	if w.store.wroteRecently(name, selfWriteWindow) {
		return
	}

	// Debounce bursts from editors that write in multiple syscalls.
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, ok := w.pending[name]; ok {
		timer.Stop()
	}
	w.pending[name] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.pending, name)
		w.mu.Unlock()

		log.Info().Str("document", name).Msg("Document changed externally, reloading")
		w.onChange(name)
	})
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	err := w.watcher.Close()
	w.wg.Wait()

	w.mu.Lock()
	for _, timer := range w.pending {
		timer.Stop()
	}
	w.mu.Unlock()

	return err
}
