package automation

import (
	"sync"
	"time"
)

// maxRecentContexts bounds the per-hook snapshot ring.
const maxRecentContexts = 100

// Analytics accumulates per-hook execution statistics and persists them as
// one JSON document.
type Analytics struct {
	mu      sync.Mutex
	records map[string]*AnalyticsRecord
	dirty   bool
}

// NewAnalytics creates an empty analytics set.
func NewAnalytics() *Analytics {
	return &Analytics{records: make(map[string]*AnalyticsRecord)}
}

// Load replaces all records, e.g. from the persisted document.
func (a *Analytics) Load(records map[string]*AnalyticsRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if records == nil {
		records = make(map[string]*AnalyticsRecord)
	}
	a.records = records
	a.dirty = false
}

// Record counts one execution and appends a context snapshot. The snapshot
// ring holds at most maxRecentContexts entries, oldest evicted first.
func (a *Analytics) Record(hookID string, success bool, snap *ContextSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.records[hookID]
	if rec == nil {
		rec = &AnalyticsRecord{}
		a.records[hookID] = rec
	}

	rec.TotalExecutions++
	if success {
		rec.Successful++
	} else {
		rec.Failed++
	}

	now := time.Now().UTC()
	rec.LastExecution = &now

	if snap != nil {
		rec.RecentContexts = append(rec.RecentContexts, *snap)
		if len(rec.RecentContexts) > maxRecentContexts {
			rec.RecentContexts = rec.RecentContexts[len(rec.RecentContexts)-maxRecentContexts:]
		}
	}

	a.dirty = true
}

// Get returns a copy of one hook's record, or nil.
func (a *Analytics) Get(hookID string) *AnalyticsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	rec := a.records[hookID]
	if rec == nil {
		return nil
	}
	return copyRecord(rec)
}

// All returns a copy of every record keyed by hook ID.
func (a *Analytics) All() map[string]*AnalyticsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]*AnalyticsRecord, len(a.records))
	for id, rec := range a.records {
		out[id] = copyRecord(rec)
	}
	return out
}

// Remove drops a hook's record.
func (a *Analytics) Remove(hookID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.records[hookID]; ok {
		delete(a.records, hookID)
		a.dirty = true
	}
}

// Snapshot returns a copy for persistence when there are unsaved changes,
// clearing the dirty flag. Returns nil when nothing changed.
func (a *Analytics) Snapshot() map[string]*AnalyticsRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.dirty {
		return nil
	}
	a.dirty = false

	out := make(map[string]*AnalyticsRecord, len(a.records))
	for id, rec := range a.records {
		out[id] = copyRecord(rec)
	}
	return out
}

func copyRecord(rec *AnalyticsRecord) *AnalyticsRecord {
	c := *rec
	c.RecentContexts = append([]ContextSnapshot(nil), rec.RecentContexts...)
	if rec.LastExecution != nil {
		t := *rec.LastExecution
		c.LastExecution = &t
	}
	return &c
}
