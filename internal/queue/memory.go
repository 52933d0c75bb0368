package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// MemoryJobQueue runs jobs on local goroutines. It is the development
// and single-instance backend; semantics match the broker-backed queue
// except that jobs do not survive a restart.
type MemoryJobQueue struct {
	handler HandlerFunc

	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

func NewMemoryJobQueue(handler HandlerFunc) *MemoryJobQueue {
	return &MemoryJobQueue{handler: handler}
}

func (q *MemoryJobQueue) Enqueue(ctx context.Context, j Job) error {
	if err := j.Validate(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.New("job queue is closed")
	}
	q.wg.Add(1)
	q.mu.Unlock()

	go func() {
		defer q.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("job handler panicked", "job_id", j.ID, "kind", j.Kind, "panic", fmt.Sprint(r))
			}
		}()

		if err := q.handler(context.Background(), j); err != nil {
			slog.Error("job handler failed", "job_id", j.ID, "kind", j.Kind, "error", err)
		}
	}()

	return nil
}

// Close waits for in-flight jobs to settle.
func (q *MemoryJobQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.wg.Wait()
	return nil
}
