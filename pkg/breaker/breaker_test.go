package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errUpstream = errors.New("upstream down")

func fail() error    { return errUpstream }
func succeed() error { return nil }

func TestBreakerStaysClosedUnderLimit(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, b.Do(fail), errUpstream)
	}
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Do(succeed))
}

func TestBreakerOpensOverLimit(t *testing.T) {
	b := New(3, time.Minute)

	for i := 0; i < 4; i++ {
		assert.ErrorIs(t, b.Do(fail), errUpstream)
	}
	require.Equal(t, StateOpen, b.State())

	// While open and inside the cooldown, calls fail fast.
	calls := 0
	err := b.Do(func() error { calls++; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.Zero(t, calls)
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := NewWithWindow(1, time.Millisecond, time.Minute)

	assert.Error(t, b.Do(fail))
	assert.Error(t, b.Do(fail))
	require.Equal(t, StateOpen, b.State())

	time.Sleep(5 * time.Millisecond)

	// A failed probe re-opens immediately.
	assert.ErrorIs(t, b.Do(fail), errUpstream)
	assert.Equal(t, StateOpen, b.State())

	time.Sleep(5 * time.Millisecond)

	// A successful probe closes the breaker again.
	assert.NoError(t, b.Do(succeed))
	assert.Equal(t, StateClosed, b.State())
	assert.NoError(t, b.Do(succeed))
}

func TestBreakerWindowForgetsOldFailures(t *testing.T) {
	b := NewWithWindow(2, time.Minute, 20*time.Millisecond)

	assert.Error(t, b.Do(fail))
	assert.Error(t, b.Do(fail))
	time.Sleep(30 * time.Millisecond)

	// The old failures fell out of the window, so one more does not trip it.
	assert.Error(t, b.Do(fail))
	assert.Equal(t, StateClosed, b.State())
}
