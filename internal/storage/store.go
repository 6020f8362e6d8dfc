// Package storage implements the JSON document store backing Gearbox state.
//
// Each concern persists as one JSON document under the data directory. Writes
// replace the whole document atomically (temp file + rename) and are funneled
// through a single writer goroutine so concurrent snapshot writes can never
// lose updates to each other.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/metrics"
)

var (
	ErrNotFound  = errors.New("document not found")
	ErrMalformed = errors.New("document is malformed")
	ErrClosed    = errors.New("store is closed")
)

// Backend receives a copy of every successfully written document, for
// off-process snapshot backups.
type Backend interface {
	Upload(ctx context.Context, name string, data []byte) error
}

type writeRequest struct {
	name string
	data []byte
	done chan error
}

// Store is a directory of JSON documents with serialized atomic writes.
type Store struct {
	dir    string
	backup Backend

	writeCh chan writeRequest
	done    chan struct{}
	wg      sync.WaitGroup

	mu        sync.Mutex
	closed    bool
	lastWrite map[string]time.Time
}

// Open creates the data directory if needed and starts the writer loop.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	s := &Store{
		dir:       dir,
		writeCh:   make(chan writeRequest, 64),
		done:      make(chan struct{}),
		lastWrite: make(map[string]time.Time),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// SetBackup attaches a snapshot backup backend. Must be called before any
// writes are enqueued.
func (s *Store) SetBackup(b Backend) {
	s.backup = b
}

// Path returns the absolute path of a named document.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// ReadJSON loads a document into v. A missing document leaves v untouched and
// returns ErrNotFound. A malformed document leaves v untouched and returns
// ErrMalformed; callers are expected to fall back to defaults.
func (s *Store) ReadJSON(name string, v any) error {
	data, err := os.ReadFile(s.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("reading %s: %w", name, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		log.Warn().Err(err).Str("document", name).Msg("Document is malformed, using defaults")
		return ErrMalformed
	}

	return nil
}

// WriteJSON serializes v immediately (so the snapshot reflects state at call
// time) and enqueues the write. The write itself happens on the writer
// goroutine; failures are logged and counted, not returned.
func (s *Store) WriteJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}
	return s.enqueue(name, data, nil)
}

// WriteJSONSync is WriteJSON but blocks until the write lands on disk.
func (s *Store) WriteJSONSync(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", name, err)
	}

	done := make(chan error, 1)
	if err := s.enqueue(name, data, done); err != nil {
		return err
	}
	return <-done
}

func (s *Store) enqueue(name string, data []byte, done chan error) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	select {
	case s.writeCh <- writeRequest{name: name, data: data, done: done}:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// Close drains pending writes and stops the writer loop.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.writeCh)
	s.wg.Wait()
	close(s.done)
	return nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for req := range s.writeCh {
		err := s.writeFile(req.name, req.data)
		if err != nil {
			metrics.RecordPersistFailure()
			log.Error().Err(err).Str("document", req.name).Msg("Document write failed")
		} else if s.backup != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if berr := s.backup.Upload(ctx, req.name, req.data); berr != nil {
				log.Warn().Err(berr).Str("document", req.name).Msg("Snapshot backup failed")
			}
			cancel()
		}

		if req.done != nil {
			req.done <- err
		}
	}
}

// writeFile writes to a temp file in the same directory and renames it over
// the target, so a concurrent reader never observes a partial document.
func (s *Store) writeFile(name string, data []byte) error {
	target := s.Path(name)

	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("closing temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("renaming temp file: %w", err)
	}

	s.mu.Lock()
	s.lastWrite[name] = time.Now()
	s.mu.Unlock()

	return nil
}

// wroteRecently reports whether the store itself wrote the document within
// the window. The external-edit watcher uses this to skip its own writes.
func (s *Store) wroteRecently(name string, window time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.lastWrite[name]
	return ok && time.Since(t) < window
}
