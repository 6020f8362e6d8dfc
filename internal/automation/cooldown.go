package automation

import (
	"sync"
	"time"
)

// CooldownTracker gates repeat hook triggers per user. State is in-memory
// only and resets on process restart.
type CooldownTracker struct {
	mu     sync.Mutex
	stamps map[string]map[string]time.Time // hook ID -> user ID -> last grant
	clock  func() time.Time
}

// NewCooldownTracker creates an empty tracker.
func NewCooldownTracker() *CooldownTracker {
	return &CooldownTracker{
		stamps: make(map[string]map[string]time.Time),
		clock:  time.Now,
	}
}

// Allow grants when the user has no prior stamp for the hook or the
// configured cooldown has elapsed. A grant always refreshes the stamp; a
// denial never touches it.
func (t *CooldownTracker) Allow(hookID, userID string, seconds int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock()

	users := t.stamps[hookID]
	if users == nil {
		users = make(map[string]time.Time)
		t.stamps[hookID] = users
	}

	last, ok := users[userID]
	if ok && now.Sub(last) < time.Duration(seconds)*time.Second {
		return false
	}

	users[userID] = now
	return true
}

// Forget drops all cooldown state for a hook.
func (t *CooldownTracker) Forget(hookID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.stamps, hookID)
}
