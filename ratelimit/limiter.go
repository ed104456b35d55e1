// Package ratelimit provides per-key admission control.
//
// Each key owns three fixed windows (minute, hour, day) plus a token bucket.
// A call is admitted only when every window has headroom and the bucket holds
// at least one token; denial never consumes rate budget. All state is
// in-memory and every operation completes in bounded time.
//
// Information Hiding:
// - Window reset bookkeeping hidden behind Admit
// - Token refill arithmetic hidden behind Admit
// - Per-key locking hidden; unrelated keys never contend
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the static limits applied to every key.
type Config struct {
	PerMinute int
	PerHour   int
	PerDay    int

	// BucketCapacity is the maximum token count; RefillPerSecond is the
	// continuous refill rate.
	BucketCapacity  float64
	RefillPerSecond float64
}

// DefaultConfig returns limits suitable for interactive use.
func DefaultConfig() Config {
	return Config{
		PerMinute:       30,
		PerHour:         300,
		PerDay:          2000,
		BucketCapacity:  10,
		RefillPerSecond: 0.5,
	}
}

// Validate checks the configuration for structural errors.
func (c Config) Validate() error {
	if c.PerMinute <= 0 || c.PerHour <= 0 || c.PerDay <= 0 {
		return fmt.Errorf("ratelimit: window limits must be positive")
	}
	if c.BucketCapacity < 1 {
		return fmt.Errorf("ratelimit: bucket capacity must be at least 1")
	}
	if c.RefillPerSecond <= 0 {
		return fmt.Errorf("ratelimit: refill rate must be positive")
	}
	return nil
}

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Reason     string
	RetryAfter time.Duration
}

// Denial reasons surfaced to callers.
const (
	ReasonMinuteExceeded = "minute_limit_exceeded"
	ReasonHourExceeded   = "hour_limit_exceeded"
	ReasonDayExceeded    = "day_limit_exceeded"
	ReasonBucketEmpty    = "token_bucket_empty"
)

// window is one fixed-length counting window. The count resets to zero
// exactly when a full window length has elapsed, never partially.
type window struct {
	length time.Duration
	limit  int
	count  int
	start  time.Time
	reason string
}

func (w *window) check(now time.Time) Decision {
	if now.Sub(w.start) >= w.length {
		w.count = 0
		w.start = now
	}
	if w.count >= w.limit {
		return Decision{
			Allowed:    false,
			Reason:     w.reason,
			RetryAfter: w.start.Add(w.length).Sub(now),
		}
	}
	return Decision{Allowed: true}
}

// keyState is the rate state owned by a single key.
type keyState struct {
	mu         sync.Mutex
	windows    [3]window
	tokens     float64
	lastRefill time.Time
}

// Limiter is an admission controller over lazily-created per-key state.
// Keys never expire; Reset clears everything (test isolation, admin use).
// Safe for concurrent use: keys are guarded individually, so unrelated
// keys never serialize on each other.
type Limiter struct {
	cfg Config

	mu   sync.Mutex
	keys map[string]*keyState

	now func() time.Time
}

// New creates a Limiter with the given configuration.
func New(cfg Config) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Limiter{
		cfg:  cfg,
		keys: make(map[string]*keyState),
		now:  time.Now,
	}, nil
}

// MustNew creates a Limiter, panicking on invalid configuration.
// Use only when configuration errors should be fatal.
func MustNew(cfg Config) *Limiter {
	l, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return l
}

// Admit decides whether one call for key may proceed. Window counters and
// bucket tokens are consumed only on an allowed decision.
func (l *Limiter) Admit(key string) Decision {
	state := l.state(key)
	now := l.now()

	state.mu.Lock()
	defer state.mu.Unlock()

	// Every window is reset-checked first so a stale window cannot deny.
	for i := range state.windows {
		if d := state.windows[i].check(now); !d.Allowed {
			return d
		}
	}

	// Refill the bucket continuously, capped at capacity.
	elapsed := now.Sub(state.lastRefill).Seconds()
	state.tokens += elapsed * l.cfg.RefillPerSecond
	if state.tokens > l.cfg.BucketCapacity {
		state.tokens = l.cfg.BucketCapacity
	}
	state.lastRefill = now

	if state.tokens < 1 {
		wait := time.Duration((1 - state.tokens) / l.cfg.RefillPerSecond * float64(time.Second))
		return Decision{Allowed: false, Reason: ReasonBucketEmpty, RetryAfter: wait}
	}

	state.tokens--
	for i := range state.windows {
		state.windows[i].count++
	}
	return Decision{Allowed: true}
}

// Reset clears all per-key state. Intended for administrative use and
// test isolation; it has no other side effect.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = make(map[string]*keyState)
}

// state returns the state for key, creating it on first reference.
func (l *Limiter) state(key string) *keyState {
	l.mu.Lock()
	defer l.mu.Unlock()

	if s, ok := l.keys[key]; ok {
		return s
	}
	now := l.now()
	s := &keyState{
		windows: [3]window{
			{length: time.Minute, limit: l.cfg.PerMinute, start: now, reason: ReasonMinuteExceeded},
			{length: time.Hour, limit: l.cfg.PerHour, start: now, reason: ReasonHourExceeded},
			{length: 24 * time.Hour, limit: l.cfg.PerDay, start: now, reason: ReasonDayExceeded},
		},
		tokens:     l.cfg.BucketCapacity,
		lastRefill: now,
	}
	l.keys[key] = s
	return s
}
