package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCooldownTracker_Gate(t *testing.T) {
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	tracker := NewCooldownTracker()
	tracker.clock = func() time.Time { return now }

	// First use grants and stamps.
	assert.True(t, tracker.Allow("hook-1", "user-1", 60))

	// Within the window the gate denies without touching the stamp.
	now = now.Add(30 * time.Second)
	assert.False(t, tracker.Allow("hook-1", "user-1", 60))

	// Still denied at 59s after the original stamp.
	now = now.Add(29 * time.Second)
	assert.False(t, tracker.Allow("hook-1", "user-1", 60))

	// Granted again once the full window has elapsed.
	now = now.Add(1 * time.Second)
	assert.True(t, tracker.Allow("hook-1", "user-1", 60))
}

func TestCooldownTracker_PerUserAndPerHook(t *testing.T) {
	now := time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC)
	tracker := NewCooldownTracker()
	tracker.clock = func() time.Time { return now }

	assert.True(t, tracker.Allow("hook-1", "user-1", 60))
	assert.True(t, tracker.Allow("hook-1", "user-2", 60))
	assert.True(t, tracker.Allow("hook-2", "user-1", 60))
	assert.False(t, tracker.Allow("hook-1", "user-1", 60))
}

func TestCooldownTracker_Forget(t *testing.T) {
	tracker := NewCooldownTracker()

	assert.True(t, tracker.Allow("hook-1", "user-1", 600))
	assert.False(t, tracker.Allow("hook-1", "user-1", 600))

	tracker.Forget("hook-1")
	assert.True(t, tracker.Allow("hook-1", "user-1", 600))
}
