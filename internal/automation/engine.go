package automation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/conditions"
	"github.com/watzon/gearbox/internal/config"
	"github.com/watzon/gearbox/internal/events"
	"github.com/watzon/gearbox/internal/metrics"
	"github.com/watzon/gearbox/internal/platform"
	"github.com/watzon/gearbox/internal/storage"
)

const (
	docHooks     = "hooks.json"
	docAnalytics = "analytics.json"
)

// Engine owns hook definitions, their trigger bindings, analytics and
// cooldowns. All mutations persist the full hook set as one JSON document
// through the store's serialized writer.
type Engine struct {
	cfg       *config.AutomationConfig
	store     *storage.Store
	bus       *events.Bus
	session   platform.Session
	catalog   *Catalog
	cron      *cron.Cron
	analytics *Analytics
	cooldowns *CooldownTracker
	dispatch  *Dispatcher
	history   HistorySink
	muted     func(guildID, channelID string) bool

	mu         sync.RWMutex
	hooks      map[string]*Hook
	hooksDirty bool

	countMu   sync.Mutex
	msgCounts map[string]int // guildID:userID -> messages seen this session

	done chan struct{}
	wg   sync.WaitGroup
}

// NewEngine loads persisted hooks and analytics and binds enabled hooks.
func NewEngine(cfg *config.AutomationConfig, store *storage.Store, bus *events.Bus, session platform.Session) (*Engine, error) {
	catalog, err := LoadCatalog()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:       cfg,
		store:     store,
		bus:       bus,
		session:   session,
		catalog:   catalog,
		cron:      cron.New(),
		analytics: NewAnalytics(),
		cooldowns: NewCooldownTracker(),
		hooks:     make(map[string]*Hook),
		msgCounts: make(map[string]int),
		done:      make(chan struct{}),
	}
	e.dispatch = &Dispatcher{session: session, engine: e}

	if err := e.loadHooks(); err != nil {
		return nil, err
	}
	e.loadAnalytics()

	bus.Subscribe(events.MessageCreate, func(ctx context.Context, ev *events.Event) error {
		e.countMessage(ev)
		return nil
	})

	return e, nil
}

// SetHistory attaches the durable execution-history sink.
func (e *Engine) SetHistory(sink HistorySink) {
	e.history = sink
}

// SetMuteCheck installs a per-channel gate. Hooks stay bound but skip
// dispatch when the gate reports the channel muted.
func (e *Engine) SetMuteCheck(fn func(guildID, channelID string) bool) {
	e.muted = fn
}

// Catalog returns the static template catalog.
func (e *Engine) Catalog() *Catalog {
	return e.catalog
}

// Start launches the schedule timers and the analytics flush loop.
func (e *Engine) Start() {
	e.cron.Start()

	e.wg.Add(1)
	go e.flushLoop()

	log.Info().Int("hooks", len(e.hooks)).Msg("Automation engine started")
}

// Stop halts timers and flushes pending state synchronously.
func (e *Engine) Stop() {
	close(e.done)
	e.wg.Wait()

	stopCtx := e.cron.Stop()
	<-stopCtx.Done()

	e.flush(true)
	log.Info().Msg("Automation engine stopped")
}

// CreateHook validates params against the template, assigns a random ID,
// binds the trigger and persists the enlarged hook set.
func (e *Engine) CreateHook(templateID string, params map[string]any, guildID, creator string) (*Hook, error) {
	tpl := e.catalog.Get(templateID)
	if tpl == nil {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, templateID)
	}

	resolved, err := tpl.ResolveParams(params)
	if err != nil {
		return nil, err
	}

	hook := &Hook{
		ID:         uuid.New().String(),
		TemplateID: templateID,
		GuildID:    guildID,
		Params:     resolved,
		Enabled:    true,
		CreatedAt:  time.Now().UTC(),
		CreatedBy:  creator,
	}

	if set, err := extractConditions(params); err != nil {
		log.Warn().Err(err).Str("template", templateID).Msg("Ignoring malformed conditions")
	} else {
		hook.Conditions = set
	}
	hook.CooldownSeconds = extractCooldown(params)

	e.mu.Lock()
	e.hooks[hook.ID] = hook
	if err := e.bind(hook); err != nil {
		delete(e.hooks, hook.ID)
		e.mu.Unlock()
		return nil, err
	}
	e.hooksDirty = true
	e.mu.Unlock()

	e.persistHooks()

	log.Info().
		Str("hook_id", hook.ID).
		Str("template", templateID).
		Str("guild_id", guildID).
		Str("creator", creator).
		Msg("Hook created")

	return hook.clone(), nil
}

// DeleteHook unbinds the trigger, drops the hook and its state, and
// persists.
func (e *Engine) DeleteHook(hookID string) error {
	e.mu.Lock()
	hook, ok := e.hooks[hookID]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHookNotFound, hookID)
	}
	if hook.unbind != nil {
		hook.unbind()
		hook.unbind = nil
	}
	delete(e.hooks, hookID)
	e.hooksDirty = true
	e.mu.Unlock()

	e.analytics.Remove(hookID)
	e.cooldowns.Forget(hookID)
	e.persistHooks()

	log.Info().Str("hook_id", hookID).Msg("Hook deleted")
	return nil
}

// ToggleHook flips the enabled flag, (un)binding the trigger to match, and
// returns the new state.
func (e *Engine) ToggleHook(hookID string) (bool, error) {
	e.mu.Lock()
	hook, ok := e.hooks[hookID]
	if !ok {
		e.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrHookNotFound, hookID)
	}

	var err error
	if hook.Enabled {
		if hook.unbind != nil {
			hook.unbind()
			hook.unbind = nil
		}
		hook.Enabled = false
	} else {
		if err = e.bind(hook); err == nil {
			hook.Enabled = true
		}
	}
	enabled := hook.Enabled
	e.hooksDirty = true
	e.mu.Unlock()

	if err != nil {
		return false, err
	}

	e.persistHooks()

	log.Info().Str("hook_id", hookID).Bool("enabled", enabled).Msg("Hook toggled")
	return enabled, nil
}

// GetHook returns a copy of one hook.
func (e *Engine) GetHook(hookID string) (*Hook, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	hook, ok := e.hooks[hookID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHookNotFound, hookID)
	}
	return hook.clone(), nil
}

// ListHooks returns copies of all hooks, or only one guild's when guildID
// is non-empty.
func (e *Engine) ListHooks(guildID string) []*Hook {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*Hook, 0, len(e.hooks))
	for _, hook := range e.hooks {
		if guildID != "" && hook.GuildID != guildID {
			continue
		}
		out = append(out, hook.clone())
	}
	return out
}

// GetAnalytics returns one hook's analytics record, or every record when
// hookID is empty.
func (e *Engine) GetAnalytics(hookID string) map[string]*AnalyticsRecord {
	if hookID == "" {
		return e.analytics.All()
	}
	rec := e.analytics.Get(hookID)
	if rec == nil {
		return map[string]*AnalyticsRecord{}
	}
	return map[string]*AnalyticsRecord{hookID: rec}
}

// RecordExecution counts one execution for a hook and remembers the context
// snapshot. Counters are flushed on the next persistence tick.
func (e *Engine) RecordExecution(hookID string, success bool, snap *ContextSnapshot) {
	e.mu.Lock()
	hook, ok := e.hooks[hookID]
	if ok {
		hook.ExecutionCount++
		if !success {
			hook.ErrorCount++
		}
		e.hooksDirty = true
	}
	var templateID, guildID string
	if ok {
		templateID = hook.TemplateID
		guildID = hook.GuildID
	}
	e.mu.Unlock()

	if !ok {
		return
	}

	e.analytics.Record(hookID, success, snap)
	metrics.RecordHookExecution(templateID, success)

	if e.history != nil {
		rec := &ExecutionRecord{
			HookID:     hookID,
			TemplateID: templateID,
			GuildID:    guildID,
			Success:    success,
			Timestamp:  time.Now().UTC(),
		}
		if snap != nil {
			rec.UserID = snap.UserID
		}
		if err := e.history.Record(rec); err != nil {
			log.Warn().Err(err).Str("hook_id", hookID).Msg("History sink write failed")
		}
	}
}

// CheckCooldown applies the per-user gate for a hook. Exposed for command
// glue that wants to pre-check before invoking.
func (e *Engine) CheckCooldown(hookID, userID string, seconds int) bool {
	return e.cooldowns.Allow(hookID, userID, seconds)
}

// Reload re-reads the hook document, rebinding everything. Used when the
// document was edited outside the process.
func (e *Engine) Reload() error {
	e.mu.Lock()
	for _, hook := range e.hooks {
		if hook.unbind != nil {
			hook.unbind()
			hook.unbind = nil
		}
	}
	e.hooks = make(map[string]*Hook)
	e.mu.Unlock()

	return e.loadHooks()
}

func (e *Engine) loadHooks() error {
	var persisted []*Hook
	err := e.store.ReadJSON(docHooks, &persisted)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrMalformed) {
		return fmt.Errorf("loading hooks: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, hook := range persisted {
		if e.catalog.Get(hook.TemplateID) == nil {
			log.Warn().
				Str("hook_id", hook.ID).
				Str("template", hook.TemplateID).
				Msg("Dropping hook with unknown template")
			continue
		}
		e.hooks[hook.ID] = hook
		if hook.Enabled {
			if err := e.bind(hook); err != nil {
				log.Warn().Err(err).Str("hook_id", hook.ID).Msg("Failed to bind hook, disabling")
				hook.Enabled = false
			}
		}
	}

	log.Info().Int("count", len(e.hooks)).Msg("Hooks loaded")
	return nil
}

func (e *Engine) loadAnalytics() {
	var persisted map[string]*AnalyticsRecord
	if err := e.store.ReadJSON(docAnalytics, &persisted); err == nil {
		e.analytics.Load(persisted)
	}
}

// bind subscribes the hook's trigger. Caller holds e.mu.
func (e *Engine) bind(hook *Hook) error {
	tpl := e.catalog.Get(hook.TemplateID)
	if tpl == nil {
		return fmt.Errorf("%w: %s", ErrTemplateNotFound, hook.TemplateID)
	}

	if tpl.Event == "schedule" {
		expr, _ := hook.Params["cron"].(string)
		hookID := hook.ID
		entryID, err := e.cron.AddFunc(expr, func() {
			e.runScheduled(hookID)
		})
		if err != nil {
			return fmt.Errorf("binding schedule: %w", err)
		}
		hook.cronID = entryID
		hook.unbind = func() { e.cron.Remove(entryID) }
		return nil
	}

	hookID := hook.ID
	hook.unbind = e.bus.Subscribe(events.Name(tpl.Event), func(ctx context.Context, ev *events.Event) error {
		e.handleEvent(ctx, hookID, ev)
		return nil
	})
	return nil
}

// handleEvent runs one hook against one delivered event: scope filter,
// template filter, cooldown, conditions, then the action pipeline.
func (e *Engine) handleEvent(ctx context.Context, hookID string, ev *events.Event) {
	e.mu.RLock()
	hook, ok := e.hooks[hookID]
	if !ok || !hook.Enabled {
		e.mu.RUnlock()
		return
	}
	snapshot := hook.clone()
	tpl := e.catalog.Get(hook.TemplateID)
	e.mu.RUnlock()

	if snapshot.GuildID != "" && ev.GuildID != snapshot.GuildID {
		return
	}
	if e.muted != nil && ev.ChannelID != "" && e.muted(ev.GuildID, ev.ChannelID) {
		return
	}
	if !matchesTemplateFilter(snapshot, ev) {
		return
	}

	seconds := snapshot.CooldownSeconds
	if seconds == 0 {
		seconds = e.cfg.DefaultCooldown
	}
	if seconds > 0 && ev.UserID != "" && !e.cooldowns.Allow(snapshot.ID, ev.UserID, seconds) {
		log.Debug().Str("hook_id", snapshot.ID).Str("user_id", ev.UserID).Msg("Hook on cooldown")
		return
	}

	condCtx := e.buildConditionContext(ev)
	if !conditions.Evaluate(snapshot.Conditions, condCtx) {
		log.Debug().Str("hook_id", snapshot.ID).Msg("Conditions not met")
		return
	}

	ec := e.buildExecContext(snapshot, ev)
	failed := e.dispatch.Execute(ctx, tpl.Actions(), ec)

	e.RecordExecution(snapshot.ID, failed == 0, &ContextSnapshot{
		Timestamp: time.Now().UTC(),
		UserID:    ev.UserID,
		GuildID:   ev.GuildID,
		Success:   failed == 0,
	})
}

// runScheduled fires a schedule-template hook's pipeline on its timer tick.
func (e *Engine) runScheduled(hookID string) {
	e.mu.RLock()
	hook, ok := e.hooks[hookID]
	if !ok || !hook.Enabled {
		e.mu.RUnlock()
		return
	}
	snapshot := hook.clone()
	tpl := e.catalog.Get(hook.TemplateID)
	e.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	ec := &ExecContext{
		GuildID: snapshot.GuildID,
		Vars:    paramVars(snapshot),
	}
	failed := e.dispatch.Execute(ctx, tpl.Actions(), ec)

	e.RecordExecution(snapshot.ID, failed == 0, &ContextSnapshot{
		Timestamp: time.Now().UTC(),
		GuildID:   snapshot.GuildID,
		Success:   failed == 0,
	})
}

// triggerChained runs another hook's pipeline from a trigger_hook action.
// Missing or disabled targets are no-ops; depth is bounded to break cycles.
func (e *Engine) triggerChained(ctx context.Context, hookID string, parent *ExecContext) error {
	if parent.Depth+1 > e.cfg.MaxTriggerDepth {
		log.Warn().
			Str("hook_id", hookID).
			Int("depth", parent.Depth).
			Msg("Trigger chain depth limit reached, stopping")
		return nil
	}

	e.mu.RLock()
	hook, ok := e.hooks[hookID]
	if !ok || !hook.Enabled {
		e.mu.RUnlock()
		return nil
	}
	snapshot := hook.clone()
	tpl := e.catalog.Get(hook.TemplateID)
	e.mu.RUnlock()

	ec := &ExecContext{
		GuildID:   snapshot.GuildID,
		ChannelID: parent.ChannelID,
		UserID:    parent.UserID,
		Username:  parent.Username,
		Vars:      paramVars(snapshot),
		Depth:     parent.Depth + 1,
	}
	for k, v := range runtimeVars(parent) {
		ec.Vars[k] = v
	}

	failed := e.dispatch.Execute(ctx, tpl.Actions(), ec)

	e.RecordExecution(snapshot.ID, failed == 0, &ContextSnapshot{
		Timestamp: time.Now().UTC(),
		UserID:    parent.UserID,
		GuildID:   snapshot.GuildID,
		Success:   failed == 0,
	})
	return nil
}

func (e *Engine) buildConditionContext(ev *events.Event) *conditions.Context {
	ctx := &conditions.Context{
		Variables: map[string]any{
			"event":      string(ev.Name),
			"guild_id":   ev.GuildID,
			"channel_id": ev.ChannelID,
			"user_id":    ev.UserID,
		},
		MessageCount: e.messageCount(ev.GuildID, ev.UserID),
	}

	switch p := ev.Payload.(type) {
	case *platform.Member:
		if p != nil {
			ctx.RoleIDs = p.RoleIDs
			ctx.UserCreatedAt = p.CreatedAt
			ctx.Variables["username"] = p.Username
		}
	case *platform.MessagePayload:
		ctx.Variables["message"] = p.Content
		if p.Author != nil {
			ctx.RoleIDs = p.Author.RoleIDs
			ctx.UserCreatedAt = p.Author.CreatedAt
			ctx.Variables["username"] = p.Author.Username
		}
	case *platform.ReactionPayload:
		ctx.Variables["emoji"] = p.Emoji
	}

	return ctx
}

func (e *Engine) buildExecContext(hook *Hook, ev *events.Event) *ExecContext {
	ec := &ExecContext{
		GuildID:   ev.GuildID,
		ChannelID: ev.ChannelID,
		UserID:    ev.UserID,
		Vars:      paramVars(hook),
	}

	switch p := ev.Payload.(type) {
	case *platform.Member:
		if p != nil {
			ec.Username = p.Username
		}
	case *platform.MessagePayload:
		if p.Author != nil {
			ec.Username = p.Author.Username
		}
	}

	for k, v := range runtimeVars(ec) {
		ec.Vars[k] = v
	}
	return ec
}

// paramVars exposes hook params as template variables.
func paramVars(hook *Hook) map[string]any {
	vars := make(map[string]any, len(hook.Params)+6)
	for k, v := range hook.Params {
		vars[k] = v
	}
	return vars
}

// runtimeVars are the built-in per-invocation variables.
func runtimeVars(ec *ExecContext) map[string]any {
	vars := map[string]any{
		"guild_id":   ec.GuildID,
		"channel_id": ec.ChannelID,
		"user_id":    ec.UserID,
	}
	if ec.Username != "" {
		vars["user"] = ec.Username
		vars["username"] = ec.Username
	}
	if ec.UserID != "" {
		vars["mention"] = "<@" + ec.UserID + ">"
	}
	return vars
}

// matchesTemplateFilter applies template-specific payload filters: keyword
// responders require the keyword, reaction roles require the configured
// message and emoji.
func matchesTemplateFilter(hook *Hook, ev *events.Event) bool {
	switch p := ev.Payload.(type) {
	case *platform.MessagePayload:
		if keyword, ok := hook.Params["keyword"].(string); ok && keyword != "" {
			if !strings.Contains(strings.ToLower(p.Content), strings.ToLower(keyword)) {
				return false
			}
		}
	case *platform.ReactionPayload:
		if messageID, ok := hook.Params["message_id"].(string); ok && messageID != "" {
			if p.MessageID != messageID {
				return false
			}
		}
		if emoji, ok := hook.Params["emoji"].(string); ok && emoji != "" {
			if p.Emoji != emoji {
				return false
			}
		}
	}
	return true
}

func (e *Engine) countMessage(ev *events.Event) {
	if ev.UserID == "" {
		return
	}
	e.countMu.Lock()
	e.msgCounts[ev.GuildID+":"+ev.UserID]++
	e.countMu.Unlock()
}

func (e *Engine) messageCount(guildID, userID string) int {
	e.countMu.Lock()
	defer e.countMu.Unlock()
	return e.msgCounts[guildID+":"+userID]
}

// persistHooks enqueues a snapshot write of the hook set.
func (e *Engine) persistHooks() {
	e.mu.Lock()
	snapshot := make([]*Hook, 0, len(e.hooks))
	for _, hook := range e.hooks {
		snapshot = append(snapshot, hook.clone())
	}
	e.hooksDirty = false
	e.mu.Unlock()

	if err := e.store.WriteJSON(docHooks, snapshot); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue hook persistence")
	}
}

func (e *Engine) flushLoop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
			e.flush(false)
		}
	}
}

// flush persists analytics (and hook counters) when dirty. A failed flush
// is logged and retried on the next tick.
func (e *Engine) flush(sync bool) {
	if snapshot := e.analytics.Snapshot(); snapshot != nil {
		var err error
		if sync {
			err = e.store.WriteJSONSync(docAnalytics, snapshot)
		} else {
			err = e.store.WriteJSON(docAnalytics, snapshot)
		}
		if err != nil {
			log.Error().Err(err).Msg("Failed to flush analytics")
		}
	}

	e.mu.RLock()
	dirty := e.hooksDirty
	e.mu.RUnlock()
	if dirty {
		e.persistHooks()
	}
}

func extractConditions(params map[string]any) (*conditions.ConditionSet, error) {
	raw, ok := params["conditions"]
	if !ok {
		return nil, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, err
	}
	var set conditions.ConditionSet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, err
	}
	return &set, nil
}

func extractCooldown(params map[string]any) int {
	switch v := params["cooldown_seconds"].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}
