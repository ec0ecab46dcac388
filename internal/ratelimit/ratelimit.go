// Package ratelimit implements the per-tool token-bucket rate limiter
// described in §5: a maxRequests budget refilled on a fixed window
// (default 60s), exceeded calls return RATE_LIMITED. Owned by the server
// instance rather than a process-wide singleton, per §9's explicit
// "no process-wide mutables" note.
package ratelimit

import (
	"sync"
	"time"

	"github.com/benredmond/apex-sub002/internal/logging"
)

// Config sets the default window and any per-tool overrides.
type Config struct {
	WindowSeconds int
	DefaultMax    int
	PerToolMax    map[string]int
}

type bucket struct {
	remaining  int
	windowEnd  time.Time
}

// Limiter is a per-tool token-bucket rate limiter.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	buckets map[string]*bucket
	now     func() time.Time
}

// New creates a Limiter from a Config.
func New(cfg Config) *Limiter {
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.DefaultMax <= 0 {
		cfg.DefaultMax = 100
	}
	return &Limiter{cfg: cfg, buckets: map[string]*bucket{}, now: time.Now}
}

// Allow reports whether a call to tool is permitted right now, consuming
// one token from its bucket if so.
func (l *Limiter) Allow(tool string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	max := l.maxFor(tool)
	now := l.now()

	b, ok := l.buckets[tool]
	if !ok || now.After(b.windowEnd) {
		b = &bucket{remaining: max, windowEnd: now.Add(time.Duration(l.cfg.WindowSeconds) * time.Second)}
		l.buckets[tool] = b
	}

	if b.remaining <= 0 {
		logging.RateLimitDebug("tool %s rate limited (max %d per %ds)", tool, max, l.cfg.WindowSeconds)
		return false
	}
	b.remaining--
	return true
}

func (l *Limiter) maxFor(tool string) int {
	if v, ok := l.cfg.PerToolMax[tool]; ok {
		return v
	}
	return l.cfg.DefaultMax
}

// Remaining returns the tokens left in the current window for tool,
// mainly for metrics/debugging.
func (l *Limiter) Remaining(tool string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[tool]
	if !ok || l.now().After(b.windowEnd) {
		return l.maxFor(tool)
	}
	return b.remaining
}
