// Package guild stores per-guild settings: command prefix, locale, muted
// channels and feature toggles.
package guild

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/storage"
)

const docGuilds = "guilds.json"

// DefaultPrefix is used when a guild has not set its own.
const DefaultPrefix = "!"

// Settings holds one guild's configuration.
type Settings struct {
	Prefix        string          `json:"prefix,omitempty"`
	Locale        string          `json:"locale,omitempty"`
	MutedChannels []string        `json:"muted_channels,omitempty"`
	Features      map[string]bool `json:"features,omitempty"`
}

// Manager serves settings lookups and mutations, persisting the full map
// through the document store on every change.
type Manager struct {
	store *storage.Store

	mu     sync.RWMutex
	guilds map[string]*Settings
}

// NewManager loads previously persisted settings. A missing or malformed
// document starts empty.
func NewManager(store *storage.Store) (*Manager, error) {
	m := &Manager{
		store:  store,
		guilds: make(map[string]*Settings),
	}

	err := store.ReadJSON(docGuilds, &m.guilds)
	if err != nil && !errors.Is(err, storage.ErrNotFound) && !errors.Is(err, storage.ErrMalformed) {
		return nil, fmt.Errorf("loading guild settings: %w", err)
	}
	return m, nil
}

// Prefix returns the guild's command prefix, falling back to the default.
func (m *Manager) Prefix(guildID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.guilds[guildID]; ok && s.Prefix != "" {
		return s.Prefix
	}
	return DefaultPrefix
}

// SetPrefix sets the guild's command prefix.
func (m *Manager) SetPrefix(guildID, prefix string) {
	m.mutate(guildID, func(s *Settings) { s.Prefix = prefix })
}

// Locale returns the guild's locale, or "" when unset.
func (m *Manager) Locale(guildID string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.guilds[guildID]; ok {
		return s.Locale
	}
	return ""
}

// SetLocale sets the guild's locale.
func (m *Manager) SetLocale(guildID, locale string) {
	m.mutate(guildID, func(s *Settings) { s.Locale = locale })
}

// IsMuted reports whether automation output is muted for the channel.
func (m *Manager) IsMuted(guildID, channelID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.guilds[guildID]
	if !ok {
		return false
	}
	for _, id := range s.MutedChannels {
		if id == channelID {
			return true
		}
	}
	return false
}

// MuteChannel adds the channel to the guild's muted set.
func (m *Manager) MuteChannel(guildID, channelID string) {
	m.mutate(guildID, func(s *Settings) {
		for _, id := range s.MutedChannels {
			if id == channelID {
				return
			}
		}
		s.MutedChannels = append(s.MutedChannels, channelID)
		sort.Strings(s.MutedChannels)
	})
}

// UnmuteChannel removes the channel from the guild's muted set.
func (m *Manager) UnmuteChannel(guildID, channelID string) {
	m.mutate(guildID, func(s *Settings) {
		kept := s.MutedChannels[:0]
		for _, id := range s.MutedChannels {
			if id != channelID {
				kept = append(kept, id)
			}
		}
		s.MutedChannels = kept
	})
}

// FeatureEnabled reports a feature toggle. Unset toggles default to the
// given fallback so features can ship either opt-in or opt-out.
func (m *Manager) FeatureEnabled(guildID, feature string, fallback bool) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.guilds[guildID]; ok {
		if v, set := s.Features[feature]; set {
			return v
		}
	}
	return fallback
}

// SetFeature sets a feature toggle.
func (m *Manager) SetFeature(guildID, feature string, enabled bool) {
	m.mutate(guildID, func(s *Settings) {
		if s.Features == nil {
			s.Features = make(map[string]bool)
		}
		s.Features[feature] = enabled
	})
}

// Get returns a copy of the guild's settings, or zero-valued settings when
// none exist.
func (m *Manager) Get(guildID string) Settings {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if s, ok := m.guilds[guildID]; ok {
		return *s
	}
	return Settings{}
}

// Forget drops all settings for a guild, for when the bot leaves it.
func (m *Manager) Forget(guildID string) {
	m.mu.Lock()
	delete(m.guilds, guildID)
	m.mu.Unlock()
	m.persist()
}

func (m *Manager) mutate(guildID string, fn func(*Settings)) {
	m.mu.Lock()
	s, ok := m.guilds[guildID]
	if !ok {
		s = &Settings{}
		m.guilds[guildID] = s
	}
	fn(s)
	m.mu.Unlock()
	m.persist()
}

func (m *Manager) persist() {
	m.mu.RLock()
	snapshot := make(map[string]*Settings, len(m.guilds))
	for id, s := range m.guilds {
		copied := *s
		snapshot[id] = &copied
	}
	m.mu.RUnlock()

	if err := m.store.WriteJSON(docGuilds, snapshot); err != nil {
		log.Error().Err(err).Msg("persisting guild settings")
	}
}
