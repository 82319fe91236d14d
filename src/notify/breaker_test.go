package notify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func TestBreaker_OpensAfterThresholdExceeded(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewCircuitBreaker(5, 300*time.Second, clock.Now)

	for i := 0; i < 5; i++ {
		assert.True(t, b.Allow())
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
	assert.Equal(t, clock.t.Add(300*time.Second), b.ReopensAt())
}

func TestBreaker_ClosesAfterCooldown(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewCircuitBreaker(5, 300*time.Second, clock.Now)
	for i := 0; i < 6; i++ {
		b.RecordFailure()
	}

	clock.Advance(299 * time.Second)
	assert.False(t, b.Allow())

	clock.Advance(time.Second)
	assert.True(t, b.Allow())
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, 0, b.Failures())
	assert.True(t, b.ReopensAt().IsZero())
}

func TestBreaker_AfterCooldownReopensOnlyPastThreshold(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	b := NewCircuitBreaker(5, time.Minute, clock.Now)
	for i := 0; i < 6; i++ {
		b.RecordFailure()
	}
	clock.Advance(time.Minute)
	assert.True(t, b.Allow())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
		assert.Equal(t, StateClosed, b.State())
		assert.True(t, b.Allow())
	}

	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.False(t, b.Allow())
}

func TestBreaker_SuccessResetsCounter(t *testing.T) {
	b := NewCircuitBreaker(5, time.Minute, nil)
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	b.RecordSuccess()
	assert.Equal(t, 0, b.Failures())

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.Equal(t, StateClosed, b.State())
}
