package queue

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// MemoryQueue keeps tasks in process. It is intended for development and tests.
type MemoryQueue struct {
	mu    sync.Mutex
	tasks map[string][]Task
	now   func() time.Time
}

// NewMemoryQueue constructs an empty in-memory queue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{tasks: make(map[string][]Task), now: time.Now}
}

// Enqueue implements Scheduler.
func (q *MemoryQueue) Enqueue(ctx context.Context, task Task) error {
	return q.Schedule(ctx, q.now(), task)
}

// Schedule implements Scheduler.
func (q *MemoryQueue) Schedule(_ context.Context, at time.Time, task Task) error {
	if task.Name == "" {
		return errors.New("queue: task name required")
	}
	task.RunAt = at
	task.Group = task.group()

	q.mu.Lock()
	defer q.mu.Unlock()
	list := append(q.tasks[task.Group], task)
	sort.SliceStable(list, func(i, j int) bool { return list[i].RunAt.Before(list[j].RunAt) })
	q.tasks[task.Group] = list
	return nil
}

// Claim implements Queue.
func (q *MemoryQueue) Claim(_ context.Context, group string, now time.Time, limit int) ([]Task, error) {
	if group == "" {
		group = DefaultGroup
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	list := q.tasks[group]
	n := 0
	for n < len(list) && !list[n].RunAt.After(now) && (limit <= 0 || n < limit) {
		n++
	}
	if n == 0 {
		return nil, nil
	}
	claimed := append([]Task(nil), list[:n]...)
	q.tasks[group] = append([]Task(nil), list[n:]...)
	return claimed, nil
}

// Pending returns a snapshot of queued tasks for group, ordered by run time.
func (q *MemoryQueue) Pending(group string) []Task {
	if group == "" {
		group = DefaultGroup
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Task(nil), q.tasks[group]...)
}

// Len returns the number of queued tasks across groups.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, list := range q.tasks {
		total += len(list)
	}
	return total
}
