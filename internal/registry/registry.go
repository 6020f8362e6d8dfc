package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/config"
	"github.com/watzon/gearbox/internal/metrics"
	"github.com/watzon/gearbox/internal/storage"
)

const docPlugins = "plugins.json"

// Registry holds metadata for every loaded plugin and answers dependency,
// conflict and cycle queries against the current set.
type Registry struct {
	cfg    *config.RegistryConfig
	store  *storage.Store
	alerts AlertSink

	mu      sync.RWMutex
	plugins map[string]*PluginMetadata
}

// New builds a registry backed by the given document store. A previously
// persisted plugin set is restored if present; a malformed document starts
// the registry empty.
func New(cfg *config.RegistryConfig, store *storage.Store) (*Registry, error) {
	r := &Registry{
		cfg:     cfg,
		store:   store,
		plugins: make(map[string]*PluginMetadata),
	}

	var snap snapshot
	err := store.ReadJSON(docPlugins, &snap)
	switch {
	case err == nil:
		for name, meta := range snap.Plugins {
			r.plugins[name] = meta
		}
	case errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrMalformed):
		// Start fresh.
	default:
		return nil, fmt.Errorf("loading plugin registry: %w", err)
	}

	metrics.SetPluginsLoaded(len(r.plugins))
	return r, nil
}

// SetAlertSink installs the sink that receives validation alerts.
func (r *Registry) SetAlertSink(sink AlertSink) {
	r.mu.Lock()
	r.alerts = sink
	r.mu.Unlock()
}

// Register records a plugin. When module is non-nil its optional metadata
// interfaces fill in any fields meta leaves empty; introspection failures
// land in ScanErrors and never block registration. Re-registering an
// existing name overwrites the previous entry with a warning.
//
// Validation runs after the upsert and any issues go to the alert sink, so
// a misdeclared plugin is still visible in the registry.
func (r *Registry) Register(meta *PluginMetadata, module Plugin) *PluginMetadata {
	if meta == nil {
		meta = &PluginMetadata{}
	}
	if module != nil {
		r.scan(meta, module)
	}
	if meta.LoadedAt.IsZero() {
		meta.LoadedAt = time.Now()
	}

	r.mu.Lock()
	if _, exists := r.plugins[meta.Name]; exists {
		log.Warn().Str("plugin", meta.Name).Msg("plugin re-registered, overwriting previous entry")
	}
	r.plugins[meta.Name] = meta
	count := len(r.plugins)
	r.mu.Unlock()

	metrics.SetPluginsLoaded(count)
	r.persist()

	if ok, issues := r.ValidateLoad(meta.Name); !ok {
		log.Warn().Str("plugin", meta.Name).Strs("issues", issues).Msg("plugin validation issues")
		r.mu.RLock()
		sink := r.alerts
		r.mu.RUnlock()
		if sink != nil {
			sink.Alert(meta.Name, issues)
		}
	}

	log.Debug().Str("plugin", meta.Name).Str("version", meta.Version).Msg("registered plugin")
	return meta
}

// scan fills empty metadata fields from the module's optional interfaces.
// A panicking accessor is recorded as a scan error and skipped.
func (r *Registry) scan(meta *PluginMetadata, module Plugin) {
	probe := func(field string, fn func()) {
		defer func() {
			if rec := recover(); rec != nil {
				meta.ScanErrors = append(meta.ScanErrors, fmt.Sprintf("%s: %v", field, rec))
			}
		}()
		fn()
	}

	if meta.Name == "" {
		probe("name", func() { meta.Name = module.Name() })
	}
	if v, ok := module.(Versioned); ok && meta.Version == "" {
		probe("version", func() { meta.Version = v.Version() })
	}
	if a, ok := module.(Authored); ok && meta.Author == "" {
		probe("author", func() { meta.Author = a.Author() })
	}
	if d, ok := module.(Described); ok && meta.Description == "" {
		probe("description", func() { meta.Description = d.Description() })
	}
	if c, ok := module.(CommandProvider); ok && len(meta.Commands) == 0 {
		probe("commands", func() { meta.Commands = c.Commands() })
	}
	if c, ok := module.(ComponentProvider); ok && len(meta.Components) == 0 {
		probe("components", func() { meta.Components = c.Components() })
	}
	if d, ok := module.(DependencyDeclarer); ok && len(meta.Dependencies) == 0 {
		probe("dependencies", func() { meta.Dependencies = d.Dependencies() })
	}
	if c, ok := module.(ConflictDeclarer); ok && len(meta.Conflicts) == 0 {
		probe("conflicts", func() { meta.Conflicts = c.Conflicts() })
	}
}

// Unregister removes a plugin. It reports whether the plugin was present.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	_, ok := r.plugins[name]
	delete(r.plugins, name)
	count := len(r.plugins)
	r.mu.Unlock()

	if ok {
		metrics.SetPluginsLoaded(count)
		r.persist()
		log.Debug().Str("plugin", name).Msg("unregistered plugin")
	}
	return ok
}

// Get returns the metadata for name, or nil if unknown.
func (r *Registry) Get(name string) *PluginMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.plugins[name]
}

// All returns every registered plugin sorted by name.
func (r *Registry) All() []*PluginMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*PluginMetadata, 0, len(r.plugins))
	for _, meta := range r.plugins {
		out = append(out, meta)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CheckDependencies verifies that every declared dependency of name is
// registered and satisfies its version requirement. Issues are formatted as
// "dep (not loaded)" or "dep (version X does not satisfy REQ)".
func (r *Registry) CheckDependencies(name string) (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.checkDependenciesLocked(name)
}

func (r *Registry) checkDependenciesLocked(name string) (bool, []string) {
	meta, ok := r.plugins[name]
	if !ok {
		return false, []string{fmt.Sprintf("%s (not loaded)", name)}
	}

	deps := make([]string, 0, len(meta.Dependencies))
	for dep := range meta.Dependencies {
		deps = append(deps, dep)
	}
	sort.Strings(deps)

	var issues []string
	for _, dep := range deps {
		requirement := meta.Dependencies[dep]
		loaded, present := r.plugins[dep]
		if !present {
			issues = append(issues, fmt.Sprintf("%s (not loaded)", dep))
			continue
		}
		if !Satisfies(loaded.Version, requirement) {
			issues = append(issues, fmt.Sprintf("%s (version %s does not satisfy %s)", dep, loaded.Version, requirement))
		}
	}
	return len(issues) == 0, issues
}

// DetectConflicts reports conflicts involving name in either direction:
// plugins name declares a conflict with, and plugins that declare a
// conflict with name.
func (r *Registry) DetectConflicts(name string) (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detectConflictsLocked(name)
}

func (r *Registry) detectConflictsLocked(name string) (bool, []string) {
	meta, ok := r.plugins[name]
	if !ok {
		return true, nil
	}

	seen := make(map[string]bool)
	for _, other := range meta.Conflicts {
		if _, loaded := r.plugins[other]; loaded {
			seen[other] = true
		}
	}
	for otherName, other := range r.plugins {
		if otherName == name {
			continue
		}
		for _, c := range other.Conflicts {
			if c == name {
				seen[otherName] = true
			}
		}
	}

	if len(seen) == 0 {
		return true, nil
	}
	conflicts := make([]string, 0, len(seen))
	for c := range seen {
		conflicts = append(conflicts, c)
	}
	sort.Strings(conflicts)
	return false, conflicts
}

// DetectCircularDependency walks the dependency graph from name and reports
// the first cycle found as a path whose last element repeats the first, such
// as ["A", "B", "A"]. Dependencies that are not registered are treated as
// leaves.
func (r *Registry) DetectCircularDependency(name string) (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.detectCycleLocked(name)
}

func (r *Registry) detectCycleLocked(name string) (bool, []string) {
	onPath := make(map[string]int)
	var path []string

	var walk func(node string) []string
	walk = func(node string) []string {
		if at, seen := onPath[node]; seen {
			cycle := append([]string{}, path[at:]...)
			return append(cycle, node)
		}
		meta, ok := r.plugins[node]
		if !ok {
			return nil
		}

		onPath[node] = len(path)
		path = append(path, node)

		deps := make([]string, 0, len(meta.Dependencies))
		for dep := range meta.Dependencies {
			deps = append(deps, dep)
		}
		sort.Strings(deps)
		for _, dep := range deps {
			if cycle := walk(dep); cycle != nil {
				return cycle
			}
		}

		path = path[:len(path)-1]
		delete(onPath, node)
		return nil
	}

	if cycle := walk(name); cycle != nil {
		return true, cycle
	}
	return false, nil
}

// ValidateLoad runs every check against name. Dependency and conflict
// findings are gated by the configured enforcement flags; a dependency
// cycle is always an issue.
func (r *Registry) ValidateLoad(name string) (bool, []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var issues []string

	if r.cfg.EnforceDependencies {
		if ok, depIssues := r.checkDependenciesLocked(name); !ok {
			for _, issue := range depIssues {
				issues = append(issues, "missing dependency: "+issue)
			}
		}
	}
	if r.cfg.EnforceConflicts {
		if ok, conflicts := r.detectConflictsLocked(name); !ok {
			for _, c := range conflicts {
				issues = append(issues, "conflicts with loaded plugin: "+c)
			}
		}
	}
	if cyclic, cycle := r.detectCycleLocked(name); cyclic {
		issues = append(issues, fmt.Sprintf("circular dependency: %v", cycle))
	}

	return len(issues) == 0, issues
}

// persist writes the current plugin set through the store's write queue.
func (r *Registry) persist() {
	r.mu.RLock()
	snap := snapshot{
		Plugins:             make(map[string]*PluginMetadata, len(r.plugins)),
		EnforceDependencies: r.cfg.EnforceDependencies,
		EnforceConflicts:    r.cfg.EnforceConflicts,
		UpdatedAt:           time.Now(),
	}
	for name, meta := range r.plugins {
		snap.Plugins[name] = meta
	}
	r.mu.RUnlock()

	if err := r.store.WriteJSON(docPlugins, &snap); err != nil {
		log.Error().Err(err).Msg("persisting plugin registry")
	}
}
