package notify

import (
	"sync"
	"time"

	"mt-gateway/src/metrics"
)

type CircuitState int

const (
	StateClosed CircuitState = iota
	StateOpen
)

func (s CircuitState) String() string {
	switch s {
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// -----------------------------------------------------------------------------
// CircuitBreaker counts consecutive delivery failures. It opens once the count
// exceeds the threshold and stays open for the cooldown. The first Allow after
// the cooldown closes it with the counter reset, so it opens again only once
// the threshold is exceeded again.
// -----------------------------------------------------------------------------

type CircuitBreaker struct {
	mu        sync.Mutex
	state     CircuitState
	failures  int
	threshold int
	cooldown  time.Duration
	openedAt  time.Time
	now       func() time.Time
}

func NewCircuitBreaker(threshold int, cooldown time.Duration, now func() time.Time) *CircuitBreaker {
	if now == nil {
		now = time.Now
	}
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, now: now}
}

// -----------------------------------------------------------------------------

// Allow reports whether a delivery may be attempted now.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen && !b.now().Before(b.openedAt.Add(b.cooldown)) {
		b.setState(StateClosed)
		b.failures = 0
	}
	return b.state != StateOpen
}

func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.setState(StateClosed)
}

func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	if b.state == StateClosed && b.failures > b.threshold {
		b.openedAt = b.now()
		b.setState(StateOpen)
	}
}

// -----------------------------------------------------------------------------

func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *CircuitBreaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// ReopensAt is the end of the current cooldown, zero unless open.
func (b *CircuitBreaker) ReopensAt() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state != StateOpen {
		return time.Time{}
	}
	return b.openedAt.Add(b.cooldown)
}

func (b *CircuitBreaker) setState(s CircuitState) {
	b.state = s
	metrics.CircuitState.Set(float64(s))
}
