package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestPool_StartStop(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		processed.Add(1)
		return nil
	}

	pool := NewPool(2, 10, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 5; i++ {
		pool.Submit(i)
	}

	time.Sleep(50 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 5 {
		t.Errorf("expected 5 jobs processed, got %d", processed.Load())
	}
}

func TestPool_ConcurrentSubmit(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job string) error {
		processed.Add(1)
		return nil
	}

	pool := NewPool(4, 100, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 100; i++ {
		go func() {
			pool.Submit("job")
		}()
	}

	time.Sleep(100 * time.Millisecond)

	cancel()
	pool.Stop()

	if processed.Load() != 100 {
		t.Errorf("expected 100 jobs processed, got %d", processed.Load())
	}
}

func TestPool_TrySubmitFullBuffer(t *testing.T) {
	block := make(chan struct{})
	processor := func(ctx context.Context, job int) error {
		<-block
		return nil
	}

	pool := NewPool(1, 1, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	// First job occupies the worker, second fills the buffer.
	pool.Submit(1)
	// Give the worker time to pick up the first job so the buffer
	// state is deterministic.
	time.Sleep(20 * time.Millisecond)
	pool.Submit(2)

	if pool.TrySubmit(3) {
		t.Error("expected TrySubmit to reject when buffer is full")
	}

	close(block)
	cancel()
	pool.Stop()
}

func TestPool_SubmitUnblocksOnShutdown(t *testing.T) {
	block := make(chan struct{})
	processor := func(ctx context.Context, job int) error {
		<-block
		return nil
	}

	pool := NewPool(1, 1, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	// First job occupies the worker, second fills the buffer.
	pool.Submit(1)
	time.Sleep(20 * time.Millisecond)
	pool.Submit(2)

	accepted := make(chan bool)
	go func() {
		accepted <- pool.Submit(3)
	}()

	cancel()

	select {
	case ok := <-accepted:
		if ok {
			t.Error("expected Submit to reject during shutdown")
		}
	case <-time.After(time.Second):
		t.Fatal("Submit still blocked after cancellation")
	}

	close(block)
	pool.Stop()
}

func TestPool_GracefulShutdown(t *testing.T) {
	var processed atomic.Int64
	processor := func(ctx context.Context, job int) error {
		time.Sleep(10 * time.Millisecond)
		processed.Add(1)
		return nil
	}

	pool := NewPool(2, 50, processor)

	ctx, cancel := context.WithCancel(context.Background())
	pool.Start(ctx)

	for i := 0; i < 20; i++ {
		pool.Submit(i)
	}

	cancel()

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("pool.Stop() timed out")
	}

	t.Logf("processed %d jobs before shutdown", processed.Load())
}
