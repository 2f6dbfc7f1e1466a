package jobs

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Queue is a FIFO of pending jobs.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	// Schedule makes j available after delay.
	Schedule(ctx context.Context, j Job, delay time.Duration) error
	// Dequeue blocks until a job is available, ctx is done or the queue is
	// closed.
	Dequeue(ctx context.Context) (Job, error)
	Close() error
}

// MemoryQueue is an in-process queue. Jobs are lost on restart.
type MemoryQueue struct {
	ch   chan Job
	done chan struct{}
	once sync.Once

	mu     sync.Mutex
	timers []*time.Timer
	// While Drain runs, the draining goroutine is the only consumer, so
	// jobs that do not fit in ch wait here instead of blocking Enqueue.
	draining bool
	overflow []Job
}

var _ Queue = (*MemoryQueue)(nil)

// NewMemoryQueue creates a queue that holds up to capacity jobs before
// Enqueue blocks. Enqueue never blocks while Drain runs.
func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = 128
	}
	return &MemoryQueue{
		ch:   make(chan Job, capacity),
		done: make(chan struct{}),
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, j Job) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if q.enqueueDraining(j) {
		return nil
	}
	select {
	case q.ch <- j:
		return nil
	case <-q.done:
		return ErrQueueClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// enqueueDraining accepts j without blocking when a Drain is in progress.
// Once anything has overflowed, later jobs queue behind it to keep FIFO order.
func (q *MemoryQueue) enqueueDraining(j Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.draining {
		return false
	}
	if len(q.overflow) == 0 {
		select {
		case q.ch <- j:
			return true
		default:
		}
	}
	q.overflow = append(q.overflow, j)
	return true
}

func (q *MemoryQueue) Schedule(ctx context.Context, j Job, delay time.Duration) error {
	if delay <= 0 {
		return q.Enqueue(ctx, j)
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	q.timers = append(q.timers, time.AfterFunc(delay, func() {
		_ = q.Enqueue(context.Background(), j)
	}))
	return nil
}

// Dequeue returns queued jobs even after Close, then ErrQueueClosed.
func (q *MemoryQueue) Dequeue(ctx context.Context) (Job, error) {
	select {
	case j := <-q.ch:
		return j, nil
	default:
	}
	select {
	case j := <-q.ch:
		return j, nil
	case <-q.done:
		select {
		case j := <-q.ch:
			return j, nil
		default:
			return nil, ErrQueueClosed
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Len returns the number of jobs ready to dequeue.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ch) + len(q.overflow)
}

// Close stops pending timers and rejects further jobs.
func (q *MemoryQueue) Close() error {
	q.once.Do(func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		close(q.done)
		for _, t := range q.timers {
			t.Stop()
		}
		q.timers = nil
	})
	return nil
}

// Drain handles every ready job inline, including jobs the handler
// enqueues, and returns once the queue is empty. Drain must not run
// alongside Dequeue consumers.
func (q *MemoryQueue) Drain(ctx context.Context, h Handler) error {
	q.mu.Lock()
	q.draining = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return errors.Join(append(errs, err)...)
		}
		j, ok := q.next()
		if !ok {
			return errors.Join(errs...)
		}
		if err := h.Handle(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
}

// next pops the oldest ready job without blocking.
func (q *MemoryQueue) next() (Job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	default:
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.overflow) == 0 {
		return nil, false
	}
	j := q.overflow[0]
	q.overflow = q.overflow[1:]
	return j, true
}
