// Package breaker is a windowed circuit breaker for flaky upstreams, used
// to guard the Open Library lookup.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned while the breaker refuses calls.
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

// Breaker counts failures inside a sliding window. Once they exceed the
// limit it opens: calls fail fast until the cooldown passes, then one probe
// call is allowed through to decide between closing and re-opening.
type Breaker struct {
	mu          sync.Mutex
	maxFailures int
	window      time.Duration
	cooldown    time.Duration
	failures    []time.Time
	lastFailure time.Time
	state       State
}

func New(maxFailures int, cooldown time.Duration) *Breaker {
	return NewWithWindow(maxFailures, cooldown, 60*time.Second)
}

func NewWithWindow(maxFailures int, cooldown, window time.Duration) *Breaker {
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		window:      window,
		state:       StateClosed,
		failures:    make([]time.Time, 0),
	}
}

// Do runs fn unless the breaker is open. The fn error, if any, is passed
// through unchanged.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == StateOpen {
		if time.Since(b.lastFailure) < b.cooldown {
			b.mu.Unlock()
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.failures = b.failures[:0]
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	now := time.Now()
	if err != nil {
		b.lastFailure = now
		b.failures = append(b.failures, now)
		b.trim(now)
		if len(b.failures) > b.maxFailures || b.state == StateHalfOpen {
			b.state = StateOpen
		}
		return err
	}
	b.trim(now)
	if b.state == StateHalfOpen {
		b.state = StateClosed
		b.failures = b.failures[:0]
	}
	return nil
}

// trim drops failures that fell out of the sliding window.
func (b *Breaker) trim(now time.Time) {
	cutoff := now.Add(-b.window)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
