// Package resilience provides the circuit breaker and retry-with-backoff
// wrappers that guard every call into the external location-data provider.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Breaker sentinel errors.
var (
	// ErrCircuitOpen signals that the breaker is rejecting calls.
	ErrCircuitOpen = errors.New("circuit breaker open")
)

// State is the circuit breaker state.
type State int

const (
	// StateClosed passes calls through and counts failures.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown elapses.
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

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

// CircuitOpenError wraps ErrCircuitOpen with the remaining cooldown.
type CircuitOpenError struct {
	Name      string
	Remaining time.Duration
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("%s: %s (retry in %s)", ErrCircuitOpen.Error(), e.Name, e.Remaining.Round(time.Second))
}

func (e *CircuitOpenError) Unwrap() error { return ErrCircuitOpen }

// BreakerSettings tunes a circuit breaker.
type BreakerSettings struct {
	FailureThreshold int
	Timeout          time.Duration
	HalfOpenMaxCalls int
}

// applyDefaults fills zero fields with safe values.
func (s BreakerSettings) applyDefaults() BreakerSettings {
	if s.FailureThreshold <= 0 {
		s.FailureThreshold = 5
	}
	if s.Timeout <= 0 {
		s.Timeout = time.Minute
	}
	if s.HalfOpenMaxCalls <= 0 {
		s.HalfOpenMaxCalls = 1
	}
	return s
}

// Breaker is a circuit breaker for one named external dependency.
// All state transitions happen under a single mutex; the guarded call itself
// runs outside the lock.
type Breaker struct {
	name     string
	settings BreakerSettings

	mu               sync.Mutex
	state            State
	failures         int
	openSince        time.Time
	halfOpenInFlight int

	now           func() time.Time
	onStateChange func(name string, from, to State)
}

// NewBreaker creates a circuit breaker for the named dependency.
func NewBreaker(name string, settings BreakerSettings) *Breaker {
	return &Breaker{
		name:     name,
		settings: settings.applyDefaults(),
		state:    StateClosed,
		now:      time.Now,
	}
}

// OnStateChange installs a transition hook (used for metrics). Not safe to
// call after the breaker is in use.
func (b *Breaker) OnStateChange(fn func(name string, from, to State)) *Breaker {
	b.onStateChange = fn
	return b
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string { return b.name }

// State returns the current state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Do executes fn under the breaker. While open and within the cooldown it
// fails fast with a CircuitOpenError carrying the remaining cooldown; once
// the cooldown elapses the next call transitions to half-open and probes.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}

	err := fn(ctx)

	b.record(err == nil)
	return err
}

// admit decides whether a call may proceed, performing the open → half-open
// transition when the cooldown has elapsed. The rejection path does no I/O.
func (b *Breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		elapsed := b.now().Sub(b.openSince)
		if elapsed < b.settings.Timeout {
			return &CircuitOpenError{Name: b.name, Remaining: b.settings.Timeout - elapsed}
		}
		b.transition(StateHalfOpen)
		b.halfOpenInFlight = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenInFlight >= b.settings.HalfOpenMaxCalls {
			return &CircuitOpenError{Name: b.name, Remaining: 0}
		}
		b.halfOpenInFlight++
		return nil
	default:
		return nil
	}
}

// record updates breaker state after a call completes.
func (b *Breaker) record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		if success {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.settings.FailureThreshold {
			b.transition(StateOpen)
			b.openSince = b.now()
			b.failures = 0
		}
	case StateHalfOpen:
		b.halfOpenInFlight--
		if success {
			b.transition(StateClosed)
			b.failures = 0
			b.halfOpenInFlight = 0
			return
		}
		b.transition(StateOpen)
		b.openSince = b.now()
		b.halfOpenInFlight = 0
	case StateOpen:
		// A call admitted before the transition to open finished late; its
		// outcome no longer matters.
	}
}

func (b *Breaker) transition(to State) {
	from := b.state
	b.state = to
	if b.onStateChange != nil && from != to {
		b.onStateChange(b.name, from, to)
	}
}
