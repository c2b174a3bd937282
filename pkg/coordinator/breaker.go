package coordinator

import (
	"sync"
	"time"
)

// breakerState is one of Closed, Open, HalfOpen.
type breakerState int

const (
	closed breakerState = iota
	open
	halfOpen
)

func (s breakerState) String() string {
	switch s {
	case open:
		return "Open"
	case halfOpen:
		return "HalfOpen"
	default:
		return "Closed"
	}
}

// breaker is a per-shard circuit breaker. Closed admits every call; after
// failureThreshold consecutive failures it trips Open and short-circuits
// every call for recoveryMS; it then allows exactly one HalfOpen probe,
// closing again on success or reopening (and resetting the timer) on
// failure.
type breaker struct {
	mu                sync.Mutex
	state             breakerState
	consecutiveFails  int
	openedAt          time.Time
	probeInFlight     bool
	failureThreshold  int
	recovery          time.Duration
	now               func() time.Time
}

func newBreaker(failureThreshold int, recovery time.Duration) *breaker {
	return &breaker{
		state:            closed,
		failureThreshold: failureThreshold,
		recovery:         recovery,
		now:              time.Now,
	}
}

// admit reports whether a call may proceed, and if so whether it is the
// single HalfOpen probe (the caller must report its outcome via record).
func (b *breaker) admit() (allowed bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case closed:
		return true, false
	case open:
		if b.now().Sub(b.openedAt) < b.recovery {
			return false, false
		}
		b.state = halfOpen
		b.probeInFlight = true
		return true, true
	case halfOpen:
		if b.probeInFlight {
			return false, false
		}
		b.probeInFlight = true
		return true, true
	default:
		return false, false
	}
}

func (b *breaker) recordSuccess(isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isProbe {
		b.probeInFlight = false
	}
	b.state = closed
	b.consecutiveFails = 0
}

func (b *breaker) recordFailure(isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if isProbe {
		b.probeInFlight = false
		b.state = open
		b.openedAt = b.now()
		return
	}

	b.consecutiveFails++
	if b.consecutiveFails >= b.failureThreshold {
		b.state = open
		b.openedAt = b.now()
	}
}

func (b *breaker) currentState() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
