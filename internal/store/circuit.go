package store

import (
	"sync"
	"time"
)

// CircuitState is the health of the configuration store as seen by reads.
type CircuitState int

const (
	StateClosed   CircuitState = iota // reads go to the store
	StateOpen                         // reads are served from the snapshot
	StateHalfOpen                     // one read may probe the store
)

func (s CircuitState) String() string {
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

// CircuitBreaker counts consecutive store read failures. Once the threshold
// is reached it stops reads until the recovery interval has passed, then
// admits a single probe read whose outcome closes or reopens it.
type CircuitBreaker struct {
	mu sync.Mutex

	state    CircuitState
	streak   int // consecutive failures
	openedAt time.Time
	probing  bool

	threshold     int
	probeInterval time.Duration
	now           func() time.Time
}

// NewCircuitBreaker creates a closed breaker. A threshold below 1 opens on
// the first failure.
func NewCircuitBreaker(failureThreshold int, recoveryProbeInterval time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:         StateClosed,
		threshold:     max(failureThreshold, 1),
		probeInterval: recoveryProbeInterval,
		now:           time.Now,
	}
}

// State returns the current state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.stateLocked()
}

func (cb *CircuitBreaker) stateLocked() CircuitState {
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.probeInterval {
		cb.state = StateHalfOpen
		cb.probing = false
	}
	return cb.state
}

// Allow reports whether a read may go to the store. In the half-open state
// only one caller at a time is admitted; it must report back through
// RecordSuccess, RecordFailure or Release.
func (cb *CircuitBreaker) Allow() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.stateLocked() {
	case StateClosed:
		return true
	case StateHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the breaker and clears the failure streak.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.streak = 0
	cb.probing = false
}

// RecordFailure counts a failed read and reports whether it opened the breaker.
func (cb *CircuitBreaker) RecordFailure() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.streak++
	switch cb.stateLocked() {
	case StateClosed:
		if cb.streak < cb.threshold {
			return false
		}
	case StateOpen:
		return false
	}
	// Threshold reached, or the half-open probe failed.
	cb.state = StateOpen
	cb.openedAt = cb.now()
	cb.probing = false
	return true
}

// Release gives up an admitted probe without an outcome, so the next
// caller may probe instead.
func (cb *CircuitBreaker) Release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.probing = false
}

// Reset closes the breaker, e.g. after the store configuration changed.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = StateClosed
	cb.streak = 0
	cb.probing = false
}
