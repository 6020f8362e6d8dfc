// Package history keeps a durable record of hook executions in sqlite,
// supplementing the bounded in-memory analytics ring.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/watzon/gearbox/internal/automation"
	"github.com/watzon/gearbox/internal/config"
)

const schema = `
CREATE TABLE IF NOT EXISTS executions (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	hook_id     TEXT NOT NULL,
	template_id TEXT NOT NULL,
	guild_id    TEXT NOT NULL,
	user_id     TEXT NOT NULL,
	success     INTEGER NOT NULL,
	executed_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_executions_hook ON executions(hook_id);
CREATE INDEX IF NOT EXISTS idx_executions_executed_at ON executions(executed_at);
`

// Store is a sqlite-backed execution history. It implements
// automation.HistorySink.
type Store struct {
	db        *sql.DB
	retention time.Duration
}

// Summary aggregates executions for one hook.
type Summary struct {
	HookID     string
	Executions int64
	Failures   int64
	LastRun    time.Time
}

// Open creates or opens the history database and applies the schema.
func Open(cfg *config.HistoryConfig) (*Store, error) {
	if dir := filepath.Dir(cfg.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}

	// Single writer; sqlite handles this best with one connection.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("configuring history database: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying history schema: %w", err)
	}

	return &Store{db: db, retention: cfg.Retention}, nil
}

// Record inserts one execution row.
func (s *Store) Record(rec *automation.ExecutionRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO executions (hook_id, template_id, guild_id, user_id, success, executed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.HookID, rec.TemplateID, rec.GuildID, rec.UserID, rec.Success, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording execution: %w", err)
	}
	return nil
}

// Recent returns the newest rows for a hook, newest first.
func (s *Store) Recent(ctx context.Context, hookID string, limit int) ([]automation.ExecutionRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hook_id, template_id, guild_id, user_id, success, executed_at
		 FROM executions WHERE hook_id = ?
		 ORDER BY executed_at DESC, id DESC LIMIT ?`,
		hookID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying executions: %w", err)
	}
	defer rows.Close()

	var out []automation.ExecutionRecord
	for rows.Next() {
		var rec automation.ExecutionRecord
		if err := rows.Scan(&rec.HookID, &rec.TemplateID, &rec.GuildID, &rec.UserID, &rec.Success, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning execution row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Summarize aggregates total executions, failures and last run per hook for
// a guild. An empty guildID aggregates across all guilds.
func (s *Store) Summarize(ctx context.Context, guildID string) ([]Summary, error) {
	query := `SELECT hook_id, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), MAX(executed_at)
		 FROM executions`
	args := []any{}
	if guildID != "" {
		query += ` WHERE guild_id = ?`
		args = append(args, guildID)
	}
	query += ` GROUP BY hook_id ORDER BY hook_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarizing executions: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.HookID, &sum.Executions, &sum.Failures, &sum.LastRun); err != nil {
			return nil, fmt.Errorf("scanning summary row: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Prune deletes rows older than the configured retention. A zero retention
// keeps everything.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, nil
	}

	cutoff := time.Now().Add(-s.retention).UTC()
	res, err := s.db.ExecContext(ctx, `DELETE FROM executions WHERE executed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning executions: %w", err)
	}

	n, _ := res.RowsAffected()
	if n > 0 {
		log.Debug().Int64("rows", n).Msg("pruned execution history")
	}
	return n, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
