package breaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestRegistry(threshold int, cooldown time.Duration) (*Registry, *fakeClock) {
	r := NewRegistry(Config{FailureThreshold: threshold, Cooldown: cooldown})
	clock := newFakeClock()
	r.now = clock.Now
	return r, clock
}

// recordFailure drives one permitted, failed call through the breaker.
func recordFailure(t *testing.T, r *Registry, provider string) {
	t.Helper()
	require.NoError(t, r.Allow(provider))
	r.Record(provider, false)
}

func TestOpensAfterConsecutiveFailures(t *testing.T) {
	r, _ := newTestRegistry(3, 30*time.Second)

	recordFailure(t, r, "openai")
	recordFailure(t, r, "openai")
	assert.Equal(t, StateClosed, r.State("openai"))

	recordFailure(t, r, "openai")
	assert.Equal(t, StateOpen, r.State("openai"))
	assert.ErrorIs(t, r.Allow("openai"), ErrCircuitOpen)
}

func TestSuccessResetsFailureCount(t *testing.T) {
	r, _ := newTestRegistry(3, 30*time.Second)

	recordFailure(t, r, "p")
	recordFailure(t, r, "p")

	require.NoError(t, r.Allow("p"))
	r.Record("p", true)

	// Two more failures must not trip the threshold after the reset.
	recordFailure(t, r, "p")
	recordFailure(t, r, "p")
	assert.Equal(t, StateClosed, r.State("p"))
}

func TestRejectsDuringCooldown(t *testing.T) {
	r, clock := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "p")
	require.Equal(t, StateOpen, r.State("p"))

	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, r.Allow("p"), ErrCircuitOpen)
}

func TestHalfOpenProbeSuccessCloses(t *testing.T) {
	r, clock := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "p")
	clock.Advance(30 * time.Second)

	require.NoError(t, r.Allow("p"), "cooldown expired: probe must be permitted")
	assert.Equal(t, StateHalfOpen, r.State("p"))

	r.Record("p", true)
	assert.Equal(t, StateClosed, r.State("p"))
	assert.NoError(t, r.Allow("p"))
}

func TestHalfOpenProbeFailureReopens(t *testing.T) {
	r, clock := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "p")
	clock.Advance(30 * time.Second)

	require.NoError(t, r.Allow("p"))
	r.Record("p", false)
	assert.Equal(t, StateOpen, r.State("p"))

	// The reopened breaker starts a fresh cooldown.
	clock.Advance(29 * time.Second)
	assert.ErrorIs(t, r.Allow("p"), ErrCircuitOpen)
	clock.Advance(time.Second)
	assert.NoError(t, r.Allow("p"))
}

func TestHalfOpenAllowsSingleProbe(t *testing.T) {
	r, clock := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "p")
	clock.Advance(30 * time.Second)

	// Many concurrent callers race for the probe slot; exactly one wins.
	var wg sync.WaitGroup
	var mu sync.Mutex
	permitted := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if r.Allow("p") == nil {
				mu.Lock()
				permitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, permitted)

	r.Record("p", true)
	assert.Equal(t, StateClosed, r.State("p"))
}

func TestProvidersAreIsolated(t *testing.T) {
	r, _ := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "flaky")
	assert.ErrorIs(t, r.Allow("flaky"), ErrCircuitOpen)
	assert.NoError(t, r.Allow("healthy"))
}

func TestReset(t *testing.T) {
	r, _ := newTestRegistry(1, 30*time.Second)

	recordFailure(t, r, "p")
	require.ErrorIs(t, r.Allow("p"), ErrCircuitOpen)

	r.Reset()
	assert.Equal(t, StateClosed, r.State("p"))
	assert.NoError(t, r.Allow("p"))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
}
