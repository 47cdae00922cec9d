package resilience

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitOpenError is returned while the breaker rejects calls.
type CircuitOpenError struct {
	Name       string
	RetryAfter time.Duration
}

func (e *CircuitOpenError) Error() string {
	wait := max(e.RetryAfter, 0)
	if e.Name == "" {
		return fmt.Sprintf("%v: retry in %s", ErrCircuitOpen, wait)
	}
	return fmt.Sprintf("%v for %s: retry in %s", ErrCircuitOpen, e.Name, wait)
}

func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// RetryAfterOf extracts the breaker wait from err.
func RetryAfterOf(err error) (time.Duration, bool) {
	var openErr *CircuitOpenError
	if !errors.As(err, &openErr) {
		return 0, false
	}
	return openErr.RetryAfter, true
}

type CircuitState string

const (
	StateClosed   CircuitState = "closed"
	StateOpen     CircuitState = "open"
	StateHalfOpen CircuitState = "half_open"
)

type CircuitBreakerConfig struct {
	Name string
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold int
	// SuccessThreshold half-open successes close it again.
	SuccessThreshold int
	OpenTimeout      time.Duration
	// HalfOpenProbes bounds concurrent calls while half-open.
	HalfOpenProbes int
	// IsFailure decides which errors count against the circuit. Nil counts every
	// error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called outside the lock after every state change.
	OnStateChange func(name string, from, to CircuitState)
	Now           func() time.Time
}

// CircuitBreaker stops calling a dependency after repeated failures.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu          sync.Mutex
	state       CircuitState
	failures    int
	successes   int
	probes      int
	reopensAt   time.Time
	pendingHook []stateChange
}

type stateChange struct{ from, to CircuitState }

func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.HalfOpenProbes <= 0 {
		cfg.HalfOpenProbes = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(err error) bool { return !errors.Is(err, context.Canceled) }
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &CircuitBreaker{cfg: cfg, state: StateClosed}
}

// State returns the current state, moving open to half-open once the timeout passed.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	cb.advanceLocked(cb.cfg.Now())
	state := cb.state
	hooks := cb.takeHooksLocked()
	cb.mu.Unlock()

	cb.fire(hooks)
	return state
}

// Execute runs fn unless the circuit is open.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	now := cb.cfg.Now()
	cb.advanceLocked(now)

	var err error
	switch cb.state {
	case StateOpen:
		err = cb.openErrLocked(now)
	case StateHalfOpen:
		if cb.probes >= cb.cfg.HalfOpenProbes {
			err = cb.openErrLocked(now)
		} else {
			cb.probes++
		}
	}
	hooks := cb.takeHooksLocked()
	cb.mu.Unlock()

	cb.fire(hooks)
	return err
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	halfOpen := cb.state == StateHalfOpen
	if halfOpen && cb.probes > 0 {
		cb.probes--
	}

	switch {
	case err == nil:
		if halfOpen {
			cb.successes++
			if cb.successes >= cb.cfg.SuccessThreshold {
				cb.setStateLocked(StateClosed)
			}
		} else {
			cb.failures = 0
		}
	case cb.cfg.IsFailure(err):
		if halfOpen {
			cb.tripLocked()
		} else {
			cb.failures++
			if cb.failures >= cb.cfg.FailureThreshold {
				cb.tripLocked()
			}
		}
	}
	hooks := cb.takeHooksLocked()
	cb.mu.Unlock()

	cb.fire(hooks)
}

func (cb *CircuitBreaker) advanceLocked(now time.Time) {
	if cb.state == StateOpen && !now.Before(cb.reopensAt) {
		cb.setStateLocked(StateHalfOpen)
	}
}

func (cb *CircuitBreaker) tripLocked() {
	cb.reopensAt = cb.cfg.Now().Add(cb.cfg.OpenTimeout)
	cb.setStateLocked(StateOpen)
}

func (cb *CircuitBreaker) setStateLocked(next CircuitState) {
	prev := cb.state
	cb.state = next
	cb.failures = 0
	cb.successes = 0
	cb.probes = 0
	if prev != next {
		cb.pendingHook = append(cb.pendingHook, stateChange{from: prev, to: next})
	}
}

func (cb *CircuitBreaker) takeHooksLocked() []stateChange {
	hooks := cb.pendingHook
	cb.pendingHook = nil
	return hooks
}

func (cb *CircuitBreaker) fire(hooks []stateChange) {
	if cb.cfg.OnStateChange == nil {
		return
	}
	for _, h := range hooks {
		cb.cfg.OnStateChange(cb.cfg.Name, h.from, h.to)
	}
}

func (cb *CircuitBreaker) openErrLocked(now time.Time) error {
	return &CircuitOpenError{
		Name:       cb.cfg.Name,
		RetryAfter: max(cb.reopensAt.Sub(now), 0),
	}
}
