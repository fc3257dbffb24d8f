// Package queue implements the Task Queue: a bounded FIFO per priority
// level that Workers pop from and the Coordinator (plus the single
// Chunker-task worker) push onto.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/sqlshell/dbdump/pkg/task"
)

// ErrClosed is returned by Push once the queue has been shut down.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded FIFO per priority level. Pop always drains HIGH
// before MEDIUM before LOW.
type Queue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	lanes    [3][]task.Task
	closed   bool
	waiting  int
}

// New builds a Queue whose each priority lane can hold up to capacity
// pending tasks before Push blocks.
func New(capacity int) *Queue {
	q := &Queue{capacity: capacity}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func laneIndex(p task.Priority) int {
	switch p {
	case task.HIGH:
		return 0
	case task.MEDIUM:
		return 1
	default:
		return 2
	}
}

// Push enqueues t onto its priority's lane. It blocks while that lane is
// full and the queue remains open, and returns ErrClosed immediately once
// the queue has been shut down.
func (q *Queue) Push(ctx context.Context, t task.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	idx := laneIndex(t.Priority)
	for !q.closed && len(q.lanes[idx]) >= q.capacity {
		if err := q.waitLocked(ctx); err != nil {
			return err
		}
	}
	if q.closed {
		return ErrClosed
	}
	q.lanes[idx] = append(q.lanes[idx], t)
	q.cond.Broadcast()
	return nil
}

// waitLocked blocks on q.cond, waking early if ctx is canceled. Callers
// must hold q.mu.
func (q *Queue) waitLocked(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			q.mu.Lock()
			q.cond.Broadcast()
			q.mu.Unlock()
		case <-done:
		}
	}()
	q.cond.Wait()
	close(done)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return nil
}

// Pop removes and returns the next task, preferring HIGH over MEDIUM over
// LOW. Pop blocks until a task is available, the queue is shut down (in
// which case it returns the null task and ok=false once this waiter has
// been woken by Shutdown), or ctx is canceled.
func (q *Queue) Pop(ctx context.Context) (task.Task, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		for i := range q.lanes {
			if len(q.lanes[i]) > 0 {
				t := q.lanes[i][0]
				q.lanes[i] = q.lanes[i][1:]
				q.cond.Broadcast()
				return t, true, nil
			}
		}
		if q.closed {
			return task.Task{}, false, nil
		}
		q.waiting++
		err := q.waitLocked(ctx)
		q.waiting--
		if err != nil {
			return task.Task{}, false, err
		}
	}
}

// Shutdown closes the queue and wakes every waiting Pop call; n is not
// used. Once closed, every Pop returns the null task as soon as the lanes
// are empty. Pending tasks already in the lanes are left for any Pop
// calls still draining them; callers typically stop popping once every
// Worker has observed a null task.
func (q *Queue) Shutdown(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
	_ = n // every broadcast wakes all waiters; each drains to the null-task branch in turn
}

// Len reports the total number of tasks currently queued across all
// priority lanes, for diagnostics and tests.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.lanes[0]) + len(q.lanes[1]) + len(q.lanes[2])
}
