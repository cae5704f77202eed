// Package breaker provides a circuit breaker for remote provider calls.
package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the circuit is open: the call must fail
// fast without touching the remote provider.
var ErrOpen = errors.New("circuit open")

// State is the circuit position.
type State int

const (
	// StateClosed lets calls through; failures are counted.
	StateClosed State = iota
	// StateOpen fails calls fast until the cooldown elapses.
	StateOpen
	// StateHalfOpen lets a single probe through after the cooldown.
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Breaker opens after threshold consecutive failures and stays open for
// cooldown, then admits one probe. The counters are the only shared state;
// callers never hold the lock across a remote call.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	state     State
	openedAt  time.Time
	probing   bool
	now       func() time.Time
}

// New creates a breaker that opens after threshold consecutive failures and
// cools down for the given duration.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 1
	}
	return &Breaker{threshold: threshold, cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed. In the open state it returns
// ErrOpen until the cooldown elapses, then transitions to half-open and admits
// exactly one probe; concurrent calls during the probe still fail fast.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrOpen
		}
		b.state = StateHalfOpen
		b.probing = true
		return nil
	default: // half-open
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	}
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.state = StateClosed
	b.probing = false
}

// Failure records a failed, throttled, or timed-out call. Crossing the
// threshold, or failing a half-open probe, opens the circuit.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == StateHalfOpen || b.failures >= b.threshold {
		b.state = StateOpen
		b.openedAt = b.now()
		b.probing = false
	}
}

// State returns the current circuit position.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}
