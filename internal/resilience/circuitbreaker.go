// Package resilience guards the upstream quote source with a circuit
// breaker so a failing data feed sheds load instead of stacking
// timed-out requests.
package resilience

import (
	"sync"
	"time"

	"optionstream/internal/errors"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive transient failures
	// before the breaker opens.
	FailureThreshold int
	// SuccessThreshold is the number of successes in half-open state
	// required to close again.
	SuccessThreshold int
	// Cooldown is how long an open breaker rejects before probing.
	Cooldown time.Duration
}

// DefaultBreakerConfig returns the default tuning.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Cooldown:         30 * time.Second,
	}
}

// Breaker is a circuit breaker for quote-source calls. Only transient
// upstream failures trip it; permanent errors (bad symbol, bad expiry)
// pass through without affecting the state.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu          sync.Mutex
	state       State
	failures    int
	successes   int
	openedAt    time.Time
	lastFailure time.Time

	requests int64
	rejected int64
	tripped  int64

	now func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = DefaultBreakerConfig().SuccessThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultBreakerConfig().Cooldown
	}
	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. An open breaker rejects
// with a transient upstream error until the cooldown elapses, then
// admits a single probe in half-open state.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.requests++
	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			b.rejected++
			return errors.NewUpstreamError(b.name, "", true, errors.ErrUpstreamUnavailable)
		}
		b.toState(StateHalfOpen)
	}
	return nil
}

// Record feeds a call outcome back into the breaker.
func (b *Breaker) Record(err error) {
	if err != nil && !errors.IsTransient(err) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		switch b.state {
		case StateHalfOpen:
			b.successes++
			if b.successes >= b.cfg.SuccessThreshold {
				b.toState(StateClosed)
			}
		case StateClosed:
			b.failures = 0
		}
		return
	}

	b.lastFailure = b.now()
	switch b.state {
	case StateClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.trip()
		}
	case StateHalfOpen:
		b.trip()
	}
}

// Do wraps a call: rejection when open, outcome recording otherwise.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	err := fn()
	b.Record(err)
	return err
}

func (b *Breaker) trip() {
	b.tripped++
	b.openedAt = b.now()
	b.toState(StateOpen)
}

func (b *Breaker) toState(s State) {
	b.state = s
	b.failures = 0
	b.successes = 0
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.toState(StateClosed)
}

// BreakerStats is a snapshot of breaker counters.
type BreakerStats struct {
	Name        string    `json:"name"`
	State       State     `json:"state"`
	Requests    int64     `json:"requests"`
	Rejected    int64     `json:"rejected"`
	Tripped     int64     `json:"tripped"`
	LastFailure time.Time `json:"last_failure,omitempty"`
}

// Stats returns a snapshot of the breaker counters.
func (b *Breaker) Stats() BreakerStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerStats{
		Name:        b.name,
		State:       b.state,
		Requests:    b.requests,
		Rejected:    b.rejected,
		Tripped:     b.tripped,
		LastFailure: b.lastFailure,
	}
}
