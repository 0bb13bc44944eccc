package sched

import "sync"

// Deque is a double-ended work queue owned by one pool worker. The
// owner pushes and pops at the bottom (newest first, which keeps a
// frame's stages hot on one worker), while idle workers steal from the
// top (oldest first, so stolen work is the frame furthest behind).
type Deque struct {
	mu    sync.Mutex
	tasks []Task
}

// PushBottom adds a task at the owner's end.
func (d *Deque) PushBottom(t Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
}

// PopBottom removes the most recently pushed task. Owner side.
func (d *Deque) PopBottom() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := len(d.tasks)
	if n == 0 {
		return Task{}, false
	}
	t := d.tasks[n-1]
	d.tasks[n-1] = Task{}
	d.tasks = d.tasks[:n-1]
	return t, true
}

// Steal removes the oldest task. Thief side.
func (d *Deque) Steal() (Task, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.tasks) == 0 {
		return Task{}, false
	}
	t := d.tasks[0]
	d.tasks[0] = Task{}
	d.tasks = d.tasks[1:]
	return t, true
}

// Len returns the number of queued tasks.
func (d *Deque) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.tasks)
}
