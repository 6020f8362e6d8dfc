// Package automation implements the event-hook engine: a template catalog,
// user-configured hooks bound to platform events, condition-gated action
// pipelines, and per-hook analytics and cooldowns.
package automation

import (
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/watzon/gearbox/internal/conditions"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrHookNotFound     = errors.New("hook not found")
	ErrMissingParam     = errors.New("missing required parameter")
)

// Hook is one configured automation: a template instance scoped to a guild.
type Hook struct {
	ID         string         `json:"id"`
	TemplateID string         `json:"template_id"`
	GuildID    string         `json:"guild_id"`
	Params     map[string]any `json:"params"`
	Enabled    bool           `json:"enabled"`
	CreatedAt  time.Time      `json:"created_at"`
	CreatedBy  string         `json:"created_by"`

	// Monotonic counters, persisted with the hook.
	ExecutionCount int64 `json:"execution_count"`
	ErrorCount     int64 `json:"error_count"`

	// Optional gate evaluated before the action pipeline runs.
	Conditions *conditions.ConditionSet `json:"conditions,omitempty"`

	// CooldownSeconds gates repeat triggers per user. Zero means none.
	CooldownSeconds int `json:"cooldown_seconds,omitempty"`

	// Live binding handles. Never serialized, never exposed.
	unbind func()
	cronID cron.EntryID
}

// clone returns a copy safe to hand to callers: counters and configuration,
// no binding handles.
func (h *Hook) clone() *Hook {
	c := *h
	c.unbind = nil
	c.cronID = 0
	if h.Params != nil {
		c.Params = make(map[string]any, len(h.Params))
		for k, v := range h.Params {
			c.Params[k] = v
		}
	}
	return &c
}

// ContextSnapshot is one remembered execution context.
type ContextSnapshot struct {
	Timestamp time.Time `json:"timestamp"`
	UserID    string    `json:"user_id"`
	GuildID   string    `json:"guild_id"`
	Success   bool      `json:"success"`
}

// AnalyticsRecord accumulates execution statistics for one hook.
type AnalyticsRecord struct {
	TotalExecutions int64      `json:"total_executions"`
	Successful      int64      `json:"successful"`
	Failed          int64      `json:"failed"`
	LastExecution   *time.Time `json:"last_execution,omitempty"`

	// RecentContexts keeps at most maxRecentContexts snapshots, oldest
	// evicted first.
	RecentContexts []ContextSnapshot `json:"recent_contexts"`
}

// ExecutionRecord is what the engine reports to the durable history sink.
type ExecutionRecord struct {
	HookID     string
	TemplateID string
	GuildID    string
	UserID     string
	Success    bool
	Timestamp  time.Time
}

// HistorySink receives execution records for long-term storage. Failures are
// the sink's problem; the engine logs and moves on.
type HistorySink interface {
	Record(rec *ExecutionRecord) error
}

// MultiSink fans one execution record out to several sinks. Each sink gets
// the record even when an earlier one fails; the first error is returned.
type MultiSink []HistorySink

func (m MultiSink) Record(rec *ExecutionRecord) error {
	var first error
	for _, sink := range m {
		if err := sink.Record(rec); err != nil && first == nil {
			first = err
		}
	}
	return first
}
