package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "backend",
		FailureThreshold: 2,
		OpenTimeout:      time.Minute,
		Now:              clock.Now,
	})
	fail := func(context.Context) error { return errors.New("boom") }

	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateClosed {
		t.Fatalf("expected closed after one failure, got %s", cb.State())
	}
	_ = cb.Execute(context.Background(), fail)
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	called := false
	err := cb.Execute(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected open error, got %v", err)
	}
	if called {
		t.Fatalf("fn must not run while open")
	}
	wait, ok := RetryAfterOf(err)
	if !ok || wait != time.Minute {
		t.Fatalf("expected retry after 1m, got %s (ok=%v)", wait, ok)
	}
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1000, 0)}
	var changes []string
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "backend",
		FailureThreshold: 1,
		OpenTimeout:      10 * time.Second,
		Now:              clock.Now,
		OnStateChange: func(_ string, from, to CircuitState) {
			changes = append(changes, string(from)+">"+string(to))
		},
	})

	_ = cb.Execute(context.Background(), func(context.Context) error { return errors.New("boom") })
	clock.Advance(10 * time.Second)

	if err := cb.Execute(context.Background(), func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected half-open trial call to run, got %v", err)
	}
	if cb.State() != StateClosed {
		t.Fatalf("expected closed, got %s", cb.State())
	}

	want := []string{"closed>open", "open>half_open", "half_open>closed"}
	if len(changes) != len(want) {
		t.Fatalf("expected %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, changes)
		}
	}
}

func TestCircuitBreakerIgnoresCancellation(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1})
	_ = cb.Execute(context.Background(), func(context.Context) error { return context.Canceled })
	if cb.State() != StateClosed {
		t.Fatalf("cancellation must not open the circuit")
	}
}

func TestCircuitBreakerCustomFailureFilter(t *testing.T) {
	permanent := errors.New("bad request")
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		FailureThreshold: 1,
		IsFailure:        func(err error) bool { return !errors.Is(err, permanent) },
	})
	_ = cb.Execute(context.Background(), func(context.Context) error { return permanent })
	if cb.State() != StateClosed {
		t.Fatalf("filtered errors must not open the circuit")
	}
}
