// Package flood provides per-key request rate limiting for the HTTP API.
package flood

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// cleanupInterval is how often we clean up idle entries
	cleanupInterval = 10 * time.Minute
	// idleTimeout is how long before we remove idle key entries
	idleTimeout = 10 * time.Minute
)

// Gate rate-limits requests per key (client address, track identifier).
// Each key gets a token bucket refilled at limit/window with a burst of
// the full limit.
type Gate struct {
	limit  int
	window time.Duration

	entries     map[string]*keyEntry
	mutex       sync.Mutex
	stopCleanup chan struct{}
}

// keyEntry tracks the limiter for a single key
type keyEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewGate creates a Gate allowing limit requests per key per window.
// A limit below 1 is clamped to 1.
func NewGate(limit int, window time.Duration) *Gate {
	if limit < 1 {
		limit = 1
	}
	g := &Gate{
		limit:       limit,
		window:      window,
		entries:     make(map[string]*keyEntry),
		stopCleanup: make(chan struct{}),
	}

	go g.cleanup()

	return g
}

// Stop stops the background cleanup goroutine
func (g *Gate) Stop() {
	close(g.stopCleanup)
}

// Allow reports whether a request for key should proceed.
func (g *Gate) Allow(key string) bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	entry, exists := g.entries[key]
	if !exists {
		entry = &keyEntry{
			limiter: rate.NewLimiter(rate.Every(g.window/time.Duration(g.limit)), g.limit),
		}
		g.entries[key] = entry
	}
	entry.lastSeen = time.Now()

	return entry.limiter.Allow()
}

// cleanup removes idle key entries to prevent memory leaks
func (g *Gate) cleanup() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.performCleanup()
		case <-g.stopCleanup:
			return
		}
	}
}

func (g *Gate) performCleanup() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	cutoff := time.Now().Add(-idleTimeout)
	for key, entry := range g.entries {
		if entry.lastSeen.Before(cutoff) {
			delete(g.entries, key)
		}
	}
}

// GetStats returns statistics about the gate for monitoring/debugging
func (g *Gate) GetStats() Stats {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	return Stats{
		ActiveKeys:    len(g.entries),
		Limit:         g.limit,
		WindowSeconds: int(g.window.Seconds()),
	}
}

// Stats contains gate statistics
type Stats struct {
	ActiveKeys    int `json:"active_keys"`
	Limit         int `json:"limit"`
	WindowSeconds int `json:"window_seconds"`
}
