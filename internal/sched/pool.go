package sched

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// Worker is the execution context handed to a running task. Spawn
// pushes follow-up work onto this worker's own deque, so a frame tends
// to ride the same worker through consecutive stages until someone
// steals it.
type Worker struct {
	id    int
	pool  *Pool
	local *Deque
}

// Spawn schedules a continuation on the worker's local deque.
func (w *Worker) Spawn(t Task) {
	w.local.PushBottom(t)
	w.pool.wake()
}

// Pool runs tasks on a fixed set of workers. Each worker prefers its
// local deque, then the shared priority queue, then stealing from a
// sibling, and parks briefly when everything is empty.
type Pool struct {
	queue   *Queue
	workers []*Worker
	notify  chan struct{}

	cancel  context.CancelFunc
	group   *errgroup.Group
	started atomic.Bool

	executed atomic.Int64
}

// NewPool creates a pool with n workers. n < 1 falls back to
// DefaultWorkers.
func NewPool(n int) *Pool {
	if n < 1 {
		n = DefaultWorkers
	}
	p := &Pool{
		queue:  NewQueue(),
		notify: make(chan struct{}, n),
	}
	for i := 0; i < n; i++ {
		p.workers = append(p.workers, &Worker{id: i, pool: p, local: &Deque{}})
	}
	return p
}

// Start launches the workers. Tasks submitted before Start sit in the
// queue until a worker picks them up.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	for _, w := range p.workers {
		w := w
		p.group.Go(func() error {
			p.run(ctx, w)
			return nil
		})
	}
}

// Submit enqueues a task on the shared queue.
func (p *Pool) Submit(t Task) {
	p.queue.Push(t)
	p.wake()
}

// Stop tells the workers to finish their current task and exit, then
// waits for them. Tasks still queued are dropped.
func (p *Pool) Stop() {
	if !p.started.Load() || p.cancel == nil {
		return
	}
	p.cancel()
	for range p.workers {
		p.wake()
	}
	p.group.Wait()
}

// Executed reports how many tasks have run to completion.
func (p *Pool) Executed() int64 {
	return p.executed.Load()
}

// Queued reports how many tasks wait on the shared queue. Worker-local
// deques are not counted.
func (p *Pool) Queued() int {
	return p.queue.Len()
}

func (p *Pool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *Pool) run(ctx context.Context, w *Worker) {
	for {
		if t, ok := p.next(w); ok {
			t.Run(w)
			p.executed.Add(1)
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-p.notify:
		case <-time.After(10 * time.Millisecond):
			// Re-poll in case a wakeup was consumed by a worker
			// that found other work first.
		}
	}
}

func (p *Pool) next(w *Worker) (Task, bool) {
	if t, ok := w.local.PopBottom(); ok {
		return t, true
	}
	if t, ok := p.queue.Pop(); ok {
		return t, true
	}
	n := len(p.workers)
	for i := 1; i < n; i++ {
		victim := p.workers[(w.id+i)%n]
		if t, ok := victim.local.Steal(); ok {
			return t, true
		}
	}
	return Task{}, false
}
