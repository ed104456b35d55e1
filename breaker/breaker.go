// Package breaker provides per-provider circuit breaking.
//
// Each provider owns a three-state machine: closed (calls flow), open
// (calls rejected until a cooldown expires), and half-open (exactly one
// probe call allowed, whose outcome decides the next state). The open to
// half-open transition is evaluated lazily on the next Allow, never by a
// background timer.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by Allow while a provider's breaker rejects
// calls. No network call has been made when this error is returned.
var ErrCircuitOpen = errors.New("breaker: circuit open")

// State is one of the breaker's three positions.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config holds the breaker thresholds applied to every provider.
type Config struct {
	FailureThreshold int
	Cooldown         time.Duration
}

// DefaultConfig returns thresholds suitable for flaky upstream APIs.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		Cooldown:         30 * time.Second,
	}
}

// providerState is the breaker state owned by one provider identifier.
type providerState struct {
	mu                  sync.Mutex
	state               State
	consecutiveFailures int
	openedAt            time.Time
	probing             bool
}

// Registry holds one breaker per provider identifier, created lazily on
// first reference. Providers never expire; Reset clears everything.
// Safe for concurrent use with per-provider locking.
type Registry struct {
	cfg Config

	mu        sync.Mutex
	providers map[string]*providerState

	now func() time.Time
}

// NewRegistry creates a Registry with the given thresholds.
func NewRegistry(cfg Config) *Registry {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultConfig().Cooldown
	}
	return &Registry{
		cfg:       cfg,
		providers: make(map[string]*providerState),
		now:       time.Now,
	}
}

// Allow reports whether a call to provider may proceed. It returns
// ErrCircuitOpen while the breaker is open and the cooldown has not
// expired, and while another caller holds the single half-open probe.
// Every nil return must be matched by exactly one Record call.
func (r *Registry) Allow(provider string) error {
	s := r.state(provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return nil
	case StateOpen:
		if r.now().Sub(s.openedAt) < r.cfg.Cooldown {
			return ErrCircuitOpen
		}
		// Cooldown expired: move to half-open and hand this caller the
		// single probe slot.
		s.state = StateHalfOpen
		s.probing = true
		return nil
	case StateHalfOpen:
		if s.probing {
			// A probe is already in flight; losing racers are rejected
			// as if the breaker were still open.
			return ErrCircuitOpen
		}
		s.probing = true
		return nil
	}
	return ErrCircuitOpen
}

// Record reports the outcome of a permitted call and drives state
// transitions. It must be called exactly once per nil Allow.
func (r *Registry) Record(provider string, success bool) {
	s := r.state(provider)

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		if success {
			s.consecutiveFailures = 0
			return
		}
		s.consecutiveFailures++
		if s.consecutiveFailures >= r.cfg.FailureThreshold {
			s.state = StateOpen
			s.openedAt = r.now()
		}
	case StateHalfOpen:
		s.probing = false
		if success {
			s.state = StateClosed
			s.consecutiveFailures = 0
			return
		}
		s.state = StateOpen
		s.openedAt = r.now()
	case StateOpen:
		// A late result for a call permitted before the breaker opened.
		// The open state already reflects failure; successes here do not
		// short-circuit the cooldown.
	}
}

// State returns the current state for provider without mutating it.
func (r *Registry) State(provider string) State {
	s := r.state(provider)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reset clears all breaker state (administrative use, test isolation).
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers = make(map[string]*providerState)
}

func (r *Registry) state(provider string) *providerState {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.providers[provider]; ok {
		return s
	}
	s := &providerState{state: StateClosed}
	r.providers[provider] = s
	return s
}
