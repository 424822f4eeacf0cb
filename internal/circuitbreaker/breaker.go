// Package circuitbreaker sheds load from downstream services that keep
// failing. State is tracked per target name, so an unhealthy TTS service
// never blocks device playback.
package circuitbreaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type state int

const (
	stateClosed state = iota
	stateOpen
	stateHalfOpen
)

type targetState struct {
	state               state
	consecutiveFailures int
	openedAt            time.Time
}

// CircuitBreaker gates requests per target: threshold consecutive failures
// open the target's circuit, and after the cooldown a single trial request
// is let through to decide whether it closes again.
type CircuitBreaker struct {
	mu        sync.Mutex
	states    map[string]*targetState
	threshold int
	cooldown  time.Duration
	clock     func() time.Time
}

func New(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		states:    make(map[string]*targetState),
		threshold: threshold,
		cooldown:  cooldown,
		clock:     time.Now,
	}
}

// WithClock overrides the time source. Used by tests.
func (cb *CircuitBreaker) WithClock(clock func() time.Time) *CircuitBreaker {
	cb.clock = clock
	return cb
}

// Allow reports whether a request to target may proceed. While open it
// returns an error wrapping ErrCircuitOpen that names the target and the
// time left until the next trial.
func (cb *CircuitBreaker) Allow(target string) error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[target]
	if !ok {
		return nil
	}

	switch s.state {
	case stateOpen:
		wait := cb.cooldown - cb.clock().Sub(s.openedAt)
		if wait <= 0 {
			// Cooldown elapsed: let one trial request through.
			s.state = stateHalfOpen
			return nil
		}
		return fmt.Errorf("%w: target=%s retry in %s", ErrCircuitOpen, target, wait.Round(time.Millisecond))
	case stateHalfOpen:
		// A trial is already in flight; its outcome decides the state.
		return fmt.Errorf("%w: target=%s trial in flight", ErrCircuitOpen, target)
	default:
		return nil
	}
}

// RecordSuccess closes the target's circuit.
func (cb *CircuitBreaker) RecordSuccess(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[target]
	if !ok {
		return
	}
	s.state = stateClosed
	s.consecutiveFailures = 0
}

// RecordFailure counts a failure against the target. A failed half-open
// trial re-opens the circuit immediately and restarts the cooldown.
func (cb *CircuitBreaker) RecordFailure(target string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	s, ok := cb.states[target]
	if !ok {
		s = &targetState{}
		cb.states[target] = s
	}

	s.consecutiveFailures++
	if s.state == stateHalfOpen || s.consecutiveFailures >= cb.threshold {
		s.state = stateOpen
		s.openedAt = cb.clock()
	}
}
