package worker

import (
	"context"
	"sync"
)

// ProcessFunc handles one job. Errors are the processor's to report;
// the pool does not retry.
type ProcessFunc[T any] func(ctx context.Context, job T) error

// Pool is a bounded worker pool with a buffered job queue. The monitor
// feeds it (vessel, event) proximity checks; the delivery dispatcher
// feeds it send intents.
type Pool[T any] struct {
	numWorkers int
	jobs       chan T
	done       chan struct{}
	stopped    chan struct{}
	processor  ProcessFunc[T]
	wg         sync.WaitGroup
}

func NewPool[T any](numWorkers, bufferSize int, processor ProcessFunc[T]) *Pool[T] {
	return &Pool[T]{
		numWorkers: numWorkers,
		jobs:       make(chan T, bufferSize),
		done:       make(chan struct{}),
		stopped:    make(chan struct{}),
		processor:  processor,
	}
}

func (p *Pool[T]) Start(ctx context.Context) {
	for i := 1; i <= p.numWorkers; i++ {
		p.wg.Add(1)
		go p.worker(ctx)
	}
	// Workers stop pulling from the queue once ctx is cancelled, so a
	// producer blocked in Submit on a full buffer would otherwise wait
	// forever. Closing done releases those producers.
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		select {
		case <-ctx.Done():
		case <-p.stopped:
		}
		close(p.done)
	}()
}

func (p *Pool[T]) worker(ctx context.Context) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			p.processor(ctx, job)
		}
	}
}

// Submit enqueues a job, blocking when the buffer is full. It reports
// false instead of blocking forever once the pool is shutting down.
func (p *Pool[T]) Submit(job T) bool {
	select {
	case p.jobs <- job:
		return true
	case <-p.done:
		return false
	}
}

// TrySubmit enqueues without blocking and reports whether the job was
// accepted.
func (p *Pool[T]) TrySubmit(job T) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		return false
	}
}

// Stop must not race Submit; callers quiesce their producers first.
func (p *Pool[T]) Stop() {
	close(p.stopped)
	close(p.jobs)
	p.wg.Wait()
}
