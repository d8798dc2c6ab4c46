package marketdata

import (
	"sync"
	"time"
)

// breakerCooldown is how long a provider's circuit stays open before a
// half-open probe is allowed.
const breakerCooldown = 2 * time.Minute

// breakerState is the circuit breaker's three-state machine.
type breakerState int

const (
	stateClosed breakerState = iota
	stateOpen
	stateHalfOpen
)

// CircuitBreaker is a per-provider closed/open/half-open state machine: N
// consecutive penalized failures opens the circuit; after a cooldown,
// half-open allows one probe; success closes it.
type CircuitBreaker struct {
	mu sync.Mutex

	threshold int
	cooldown  time.Duration

	state           breakerState
	consecutiveFail int
	openedAt        time.Time
	halfOpenInFlight bool
}

// NewCircuitBreaker builds a breaker that opens after threshold consecutive
// failures and stays open for cooldown before allowing a half-open probe.
func NewCircuitBreaker(threshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{threshold: threshold, cooldown: cooldown, state: stateClosed}
}

// Allow reports whether a call may proceed right now, transitioning Open ->
// HalfOpen once the cooldown has elapsed and reserving the single
// half-open probe slot so concurrent callers don't both probe at once.
func (b *CircuitBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case stateClosed:
		return true
	case stateOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = stateHalfOpen
			b.halfOpenInFlight = true
			return true
		}
		return false
	case stateHalfOpen:
		if b.halfOpenInFlight {
			return false
		}
		b.halfOpenInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the circuit and resets the failure count.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.consecutiveFail = 0
	b.halfOpenInFlight = false
}

// RecordFailure counts a penalized failure, opening the circuit once the
// threshold is reached (or immediately, if the failure occurred during a
// half-open probe).
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == stateHalfOpen {
		b.state = stateOpen
		b.openedAt = time.Now()
		b.halfOpenInFlight = false
		return
	}

	b.consecutiveFail++
	if b.consecutiveFail >= b.threshold {
		b.state = stateOpen
		b.openedAt = time.Now()
	}
}

// IsOpen reports whether the circuit is currently open (not half-open), for
// ordering step 2 of the registry's selection algorithm.
func (b *CircuitBreaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == stateOpen && time.Since(b.openedAt) < b.cooldown
}

// Reset force-closes the circuit, exposed as a manual operator override.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = stateClosed
	b.consecutiveFail = 0
	b.halfOpenInFlight = false
}
