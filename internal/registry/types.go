// Package registry tracks metadata for loaded plugins and validates their
// declared dependencies, conflicts and dependency cycles.
package registry

import (
	"time"
)

// PluginMetadata describes one loaded plugin. The registry is keyed by Name.
type PluginMetadata struct {
	Name        string `json:"name"`
	Version     string `json:"version"`
	Author      string `json:"author"`
	Description string `json:"description"`

	// Commands and Components this plugin provides.
	Commands   []string `json:"commands,omitempty"`
	Components []string `json:"components,omitempty"`

	// Dependencies maps dependency name to a version requirement such as
	// ">=1.2". "*" (or empty) means unconstrained.
	Dependencies map[string]string `json:"dependencies,omitempty"`

	// Conflicts lists plugin names this plugin cannot coexist with.
	Conflicts []string `json:"conflicts,omitempty"`

	LoadedAt     time.Time     `json:"loaded_at"`
	LoadDuration time.Duration `json:"load_duration"`

	// ScanErrors collects non-fatal introspection failures.
	ScanErrors []string `json:"scan_errors,omitempty"`
}

// Plugin is the minimal surface a loadable module exposes. Richer metadata
// is discovered through the optional interfaces below.
type Plugin interface {
	Name() string
}

// Optional metadata interfaces probed during auto-scan.
type (
	Versioned          interface{ Version() string }
	Authored           interface{ Author() string }
	Described          interface{ Description() string }
	CommandProvider    interface{ Commands() []string }
	ComponentProvider  interface{ Components() []string }
	DependencyDeclarer interface{ Dependencies() map[string]string }
	ConflictDeclarer   interface{ Conflicts() []string }
)

// AlertSink receives advisory validation alerts. Alerts never block
// registration.
type AlertSink interface {
	Alert(plugin string, issues []string)
}

// snapshot is the persisted registry document.
type snapshot struct {
	Plugins             map[string]*PluginMetadata `json:"plugins"`
	EnforceDependencies bool                       `json:"enforce_dependencies"`
	EnforceConflicts    bool                       `json:"enforce_conflicts"`
	UpdatedAt           time.Time                  `json:"updated_at"`
}
