package queue

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Inline runs jobs in goroutines of the current process, at most
// cfg.Concurrency at a time. Jobs outlive the request that enqueued them.
type Inline struct {
	handler *Handler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewInline creates an inline runner for h.
func NewInline(h *Handler, concurrency int) *Inline {
	ctx, cancel := context.WithCancel(context.Background())
	return &Inline{
		handler: h,
		sem:     semaphore.NewWeighted(int64(max(1, concurrency))),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Enqueue implements Enqueuer. It returns once the job is scheduled.
func (q *Inline) Enqueue(_ context.Context, p Payload) error {
	if err := p.Validate(); err != nil {
		return err
	}
	enqueuedTotal.Inc()
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			return
		}
		defer q.sem.Release(1)
		_ = q.handler.Handle(q.ctx, p, true)
	}()
	return nil
}

// Wait blocks until all scheduled jobs have finished.
func (q *Inline) Wait() { q.wg.Wait() }

// Close cancels running jobs and waits for them to return.
func (q *Inline) Close() error {
	q.cancel()
	q.wg.Wait()
	return nil
}
