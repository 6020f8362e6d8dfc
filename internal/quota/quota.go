// Package quota guards slash-command usage with per-user token buckets.
// Commands are matched to rules by glob pattern; the first matching rule
// wins.
package quota

import (
	"fmt"
	"sync"
	"time"

	"github.com/gobwas/glob"
	"github.com/rs/zerolog/log"

	"github.com/watzon/gearbox/internal/config"
	"github.com/watzon/gearbox/internal/metrics"
)

// Guard enforces the configured quota rules.
type Guard struct {
	enabled bool
	rules   []compiledRule

	mu      sync.RWMutex
	buckets map[string]*bucket

	clock   func() time.Time
	cleanup *time.Ticker
	wg      sync.WaitGroup
	stopCh  chan struct{}
}

type compiledRule struct {
	pattern glob.Glob
	max     int
	window  time.Duration
}

type bucket struct {
	tokens     int
	lastRefill time.Time
	window     time.Duration
	mu         sync.Mutex
}

// New compiles the configured rules into a guard. Invalid glob patterns
// are a configuration error.
func New(cfg *config.QuotaConfig) (*Guard, error) {
	g := &Guard{
		enabled: cfg.Enabled,
		buckets: make(map[string]*bucket),
		clock:   time.Now,
		cleanup: time.NewTicker(time.Minute),
		stopCh:  make(chan struct{}),
	}

	for _, rule := range cfg.Rules {
		compiled, err := glob.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("compiling quota pattern %q: %w", rule.Pattern, err)
		}
		g.rules = append(g.rules, compiledRule{
			pattern: compiled,
			max:     rule.Max,
			window:  rule.Window,
		})
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.cleanupLoop()
	}()

	return g, nil
}

// Allow reports whether userID may invoke command right now, consuming a
// token when it may. Commands matching no rule are always allowed, as is
// everything while the guard is disabled.
func (g *Guard) Allow(userID, command string) bool {
	if !g.enabled {
		return true
	}

	rule, ok := g.match(command)
	if !ok {
		return true
	}

	key := userID + ":" + command

	g.mu.RLock()
	b, exists := g.buckets[key]
	g.mu.RUnlock()

	if !exists {
		g.mu.Lock()
		// Double-check after acquiring write lock
		b, exists = g.buckets[key]
		if !exists {
			b = &bucket{
				tokens:     rule.max,
				lastRefill: g.clock(),
				window:     rule.window,
			}
			g.buckets[key] = b
		}
		g.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := g.clock()
	if now.Sub(b.lastRefill) >= b.window {
		b.tokens = rule.max
		b.lastRefill = now
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}

	metrics.RecordQuotaDenial()
	log.Debug().Str("user", userID).Str("command", command).Msg("command quota exceeded")
	return false
}

func (g *Guard) match(command string) (compiledRule, bool) {
	for _, rule := range g.rules {
		if rule.pattern.Match(command) {
			return rule, true
		}
	}
	return compiledRule{}, false
}

func (g *Guard) cleanupLoop() {
	for {
		select {
		case <-g.cleanup.C:
			g.mu.Lock()
			now := g.clock()
			for key, b := range g.buckets {
				b.mu.Lock()
				if now.Sub(b.lastRefill) > b.window*2 {
					delete(g.buckets, key)
				}
				b.mu.Unlock()
			}
			g.mu.Unlock()
		case <-g.stopCh:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (g *Guard) Stop() {
	close(g.stopCh)
	g.cleanup.Stop()
	g.wg.Wait()
}
