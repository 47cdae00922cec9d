package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolExecutesJobs(t *testing.T) {
	pool := NewWorkerPool(3, 6, nil)

	var count int32
	for i := 0; i < 10; i++ {
		if err := pool.Submit(context.Background(), func(context.Context) {
			atomic.AddInt32(&count, 1)
		}); err != nil {
			t.Fatalf("submit failed: %v", err)
		}
	}

	pool.Close()
	pool.Wait()

	if got := atomic.LoadInt32(&count); got != 10 {
		t.Fatalf("expected 10 jobs executed, got %d", got)
	}
}

func TestWorkerPoolSubmitAfterClose(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)
	pool.Close()
	if err := pool.Submit(context.Background(), func(context.Context) {}); !errors.Is(err, ErrWorkerPoolClosed) {
		t.Fatalf("expected ErrWorkerPoolClosed, got %v", err)
	}
}

func TestWorkerPoolTrySubmitFullQueue(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)

	started := make(chan struct{})
	release := make(chan struct{})
	if err := pool.TrySubmit(func(context.Context) {
		close(started)
		<-release
	}); err != nil {
		t.Fatalf("first TrySubmit failed: %v", err)
	}
	<-started

	// the worker is busy, so one job fits in the queue and the next does not
	if err := pool.TrySubmit(func(context.Context) {}); err != nil {
		t.Fatalf("queued TrySubmit failed: %v", err)
	}
	if err := pool.TrySubmit(func(context.Context) {}); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	close(release)
	pool.Close()
	pool.Wait()

	if err := pool.TrySubmit(func(context.Context) {}); !errors.Is(err, ErrWorkerPoolClosed) {
		t.Fatalf("expected ErrWorkerPoolClosed, got %v", err)
	}
}

func TestWorkerPoolRecoversPanics(t *testing.T) {
	var recovered atomic.Value
	pool := NewWorkerPool(1, 1, func(r any) { recovered.Store(r) })

	_ = pool.Submit(context.Background(), func(context.Context) { panic("boom") })
	var ran atomic.Bool
	_ = pool.Submit(context.Background(), func(context.Context) { ran.Store(true) })

	pool.Close()
	pool.Wait()

	if recovered.Load() != "boom" {
		t.Fatalf("expected panic value to be reported, got %v", recovered.Load())
	}
	if !ran.Load() {
		t.Fatalf("worker must survive a panicking job")
	}
}

func TestWorkerPoolShutdownCancelsSlowJobs(t *testing.T) {
	pool := NewWorkerPool(1, 1, nil)

	started := make(chan struct{})
	cancelled := make(chan struct{})
	_ = pool.Submit(context.Background(), func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(cancelled)
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := pool.Shutdown(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatalf("running job context was not cancelled")
	}
}
