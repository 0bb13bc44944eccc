package sched

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestQueuePriorityOrder(t *testing.T) {
	q := NewQueue()
	var got []string
	push := func(name string, pri Priority) {
		q.Push(Task{Priority: pri, Run: func(*Worker) { got = append(got, name) }})
	}
	push("bg-1", PriorityBackground)
	push("norm-1", PriorityNormal)
	push("user-1", PriorityUser)
	push("norm-2", PriorityNormal)
	push("user-2", PriorityUser)

	for {
		task, ok := q.Pop()
		if !ok {
			break
		}
		task.Run(nil)
	}

	want := []string{"user-1", "user-2", "norm-1", "norm-2", "bg-1"}
	if len(got) != len(want) {
		t.Fatalf("popped %d tasks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("pop %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestQueuePopEmpty(t *testing.T) {
	q := NewQueue()
	if _, ok := q.Pop(); ok {
		t.Fatal("Pop on empty queue reported a task")
	}
	if q.Len() != 0 {
		t.Fatalf("Len = %d, want 0", q.Len())
	}
}

func TestDequeOwnerAndThiefEnds(t *testing.T) {
	d := &Deque{}
	mk := func(seq int64) Task { return Task{seq: seq} }
	d.PushBottom(mk(1))
	d.PushBottom(mk(2))
	d.PushBottom(mk(3))

	// Thief takes the oldest.
	if got, ok := d.Steal(); !ok || got.seq != 1 {
		t.Fatalf("Steal = (%d, %v), want (1, true)", got.seq, ok)
	}
	// Owner takes the newest.
	if got, ok := d.PopBottom(); !ok || got.seq != 3 {
		t.Fatalf("PopBottom = (%d, %v), want (3, true)", got.seq, ok)
	}
	if got, ok := d.PopBottom(); !ok || got.seq != 2 {
		t.Fatalf("PopBottom = (%d, %v), want (2, true)", got.seq, ok)
	}
	if _, ok := d.PopBottom(); ok {
		t.Fatal("PopBottom on empty deque reported a task")
	}
	if _, ok := d.Steal(); ok {
		t.Fatal("Steal on empty deque reported a task")
	}
}

func TestPoolRunsAllTasks(t *testing.T) {
	p := NewPool(3)
	p.Start(context.Background())
	defer p.Stop()

	const n = 100
	var done atomic.Int64
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		p.Submit(Task{Priority: PriorityNormal, Run: func(*Worker) {
			done.Add(1)
			wg.Done()
		}})
	}

	waitDone(t, &wg)
	if done.Load() != n {
		t.Fatalf("ran %d tasks, want %d", done.Load(), n)
	}
	if p.Executed() < n {
		t.Fatalf("Executed = %d, want at least %d", p.Executed(), n)
	}
}

func TestPoolSpawnContinuations(t *testing.T) {
	p := NewPool(2)
	p.Start(context.Background())
	defer p.Stop()

	// Each submitted task spawns a chain of continuations on its
	// worker's local deque.
	const chains, depth = 8, 5
	var done atomic.Int64
	var wg sync.WaitGroup
	wg.Add(chains * depth)

	var step func(remaining int) func(*Worker)
	step = func(remaining int) func(*Worker) {
		return func(w *Worker) {
			done.Add(1)
			wg.Done()
			if remaining > 1 {
				w.Spawn(Task{Priority: PriorityNormal, Run: step(remaining - 1)})
			}
		}
	}
	for i := 0; i < chains; i++ {
		p.Submit(Task{Priority: PriorityNormal, Run: step(depth)})
	}

	waitDone(t, &wg)
	if done.Load() != chains*depth {
		t.Fatalf("ran %d tasks, want %d", done.Load(), chains*depth)
	}
}

func TestPoolStealsFromBusyWorker(t *testing.T) {
	p := NewPool(2)
	p.Start(context.Background())
	defer p.Stop()

	// One long task pins a worker while its continuations pile up on
	// the local deque; the idle worker must steal them.
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(4)
	p.Submit(Task{Priority: PriorityNormal, Run: func(w *Worker) {
		for i := 0; i < 4; i++ {
			w.Spawn(Task{Priority: PriorityNormal, Run: func(*Worker) { wg.Done() }})
		}
		<-release
	}})

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(2 * time.Second):
		t.Fatal("continuations were not stolen while the owner was busy")
	}
	close(release)
}

func TestPoolStopIsIdempotent(t *testing.T) {
	p := NewPool(1)
	p.Start(context.Background())
	p.Stop()
	p.Stop()

	// Stopped before Start must not panic either.
	NewPool(1).Stop()
}

func waitDone(t *testing.T, wg *sync.WaitGroup) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for tasks")
	}
}
