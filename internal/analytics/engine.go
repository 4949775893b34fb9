// Package analytics computes statistics and chart data over practice records.
//
// Every analysis is a total function of its input: empty or partially
// populated record lists produce a defined zero shape rather than an error.
// Results are memoized in a TTL cache keyed by a content fingerprint of the
// input, so repeated requests over an unchanged collection are cheap.
package analytics

import (
	"log/slog"
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds the lifetime of a cached result.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultWindowDays is the window used by windowed analyses when none is given.
	DefaultWindowDays = 30
)

// Engine runs analyses behind a TTL cache. It is safe for concurrent use.
type Engine struct {
	mu    sync.Mutex
	cache map[string]cacheEntry
	ttl   time.Duration
	now   func() time.Time
	loc   *time.Location

	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// Option configures an Engine.
type Option func(*Engine)

// WithCacheTTL sets how long results stay cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.ttl = ttl
		}
	}
}

// WithClock replaces time.Now for windows and cache expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLocation sets the location used to group records by calendar day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// New creates an Engine and starts its cache sweeper. Call Close to stop it.
func New(opts ...Option) *Engine {
	e := &Engine{
		cache: make(map[string]cacheEntry),
		ttl:   DefaultCacheTTL,
		now:   time.Now,
		loc:   time.Local,
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	go e.sweepLoop()
	return e
}

// Close stops the cache sweeper.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.stop)
		<-e.done
	})
}

// ClearCache drops every cached result.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	n := len(e.cache)
	e.cache = make(map[string]cacheEntry)
	e.mu.Unlock()
	slog.Debug("analysis cache cleared", "entries", n)
}

// CacheStats describes the cache.
type CacheStats struct {
	Entries int           `json:"entries"`
	TTL     time.Duration `json:"ttl"`
}

// CacheStats reports the number of cached results and the TTL.
func (e *Engine) CacheStats() CacheStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return CacheStats{Entries: len(e.cache), TTL: e.ttl}
}

func (e *Engine) sweepLoop() {
	defer close(e.done)
	ticker := time.NewTicker(e.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			e.sweep()
		}
	}
}
