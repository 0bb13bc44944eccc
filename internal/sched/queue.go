// Package sched provides the scheduling machinery for the pipeline's
// overlapped (asynchronous) mode: a priority queue for admitted work, a
// work-stealing deque per pool worker, and the worker pool that drives
// stage tasks for multiple in-flight frames.
package sched

import (
	"container/heap"
	"sync"
)

// Priority orders tasks in the ready queue. Higher values run first.
type Priority int

// Task priorities, lowest to highest.
const (
	PriorityBackground Priority = iota
	PriorityNormal
	PriorityUser
)

// Task is one unit of scheduled work, typically "advance this frame's
// context by one stage". Run receives the pool worker executing it so
// continuations can be spawned onto that worker's local deque.
type Task struct {
	Priority Priority
	Run      func(w *Worker)

	seq int64
}

// Queue is a mutex-guarded priority queue: higher priority first, FIFO
// by enqueue order within a priority class.
type Queue struct {
	mu   sync.Mutex
	heap taskHeap
	next int64
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// Push enqueues a task.
func (q *Queue) Push(t Task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.next++
	t.seq = q.next
	heap.Push(&q.heap, t)
}

// Pop dequeues the highest-priority task, if any.
func (q *Queue) Pop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.heap) == 0 {
		return Task{}, false
	}
	return heap.Pop(&q.heap).(Task), true
}

// Len returns the queued task count.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.heap)
}

// taskHeap implements heap.Interface over tasks.
type taskHeap []Task

func (h taskHeap) Len() int { return len(h) }

func (h taskHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].seq < h[j].seq
}

func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *taskHeap) Push(x any) { *h = append(*h, x.(Task)) }

func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	*h = old[:n-1]
	return t
}
