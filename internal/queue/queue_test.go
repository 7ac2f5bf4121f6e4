package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

type stageArgs struct {
	DomainID string `json:"domain_id"`
	Tries    int    `json:"tries"`
}

func TestNewTaskEncodesArgs(t *testing.T) {
	task, err := NewTask(TaskDomainStage, stageArgs{DomainID: "d1", Tries: 3})
	if err != nil {
		t.Fatalf("NewTask returned error: %v", err)
	}
	if task.ID == "" || task.Group != DefaultGroup {
		t.Fatalf("expected id and default group, got %+v", task)
	}
	var args stageArgs
	if err := task.Decode(&args); err != nil {
		t.Fatalf("Decode returned error: %v", err)
	}
	if args.DomainID != "d1" || args.Tries != 3 {
		t.Fatalf("unexpected args: %+v", args)
	}
	if _, err := NewTask(" ", nil); err == nil {
		t.Fatal("expected error for empty name")
	}
}

func TestMemoryQueueClaimsOnlyDueTasks(t *testing.T) {
	q := NewMemoryQueue()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	ctx := context.Background()

	later, _ := NewTask("later", nil)
	first, _ := NewTask("first", nil)
	second, _ := NewTask("second", nil)
	if err := q.Schedule(ctx, now.Add(5*time.Minute), later); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if err := q.Schedule(ctx, now.Add(-time.Second), second); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if err := q.Schedule(ctx, now.Add(-time.Minute), first); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}

	claimed, err := q.Claim(ctx, DefaultGroup, now, 10)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if len(claimed) != 2 || claimed[0].Name != "first" || claimed[1].Name != "second" {
		t.Fatalf("expected first and second in order, got %+v", claimed)
	}
	if q.Len() != 1 {
		t.Fatalf("expected one pending task, got %d", q.Len())
	}
	again, _ := q.Claim(ctx, DefaultGroup, now, 10)
	if len(again) != 0 {
		t.Fatalf("expected claimed tasks to be gone, got %+v", again)
	}
}

func TestWorkerDispatchesToHandlers(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, discardLogger(), WorkerConfig{BatchSize: 1})
	ctx := context.Background()

	var seen []int
	w.Handle(TaskDomainStage, func(_ context.Context, task Task) error {
		var args stageArgs
		if err := task.Decode(&args); err != nil {
			return err
		}
		seen = append(seen, args.Tries)
		return nil
	})
	w.Handle("broken", func(context.Context, Task) error { return errors.New("boom") })
	w.Handle("panics", func(context.Context, Task) error { panic("bad handler") })

	for i := 0; i < 3; i++ {
		task, _ := NewTask(TaskDomainStage, stageArgs{DomainID: "d1", Tries: i})
		if err := q.Enqueue(ctx, task); err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
	}
	for _, name := range []string{"broken", "panics", "unknown"} {
		task, _ := NewTask(name, nil)
		_ = q.Enqueue(ctx, task)
	}

	if got := w.RunOnce(ctx); got != 6 {
		t.Fatalf("expected 6 processed tasks, got %d", got)
	}
	if len(seen) != 3 || seen[0] != 0 || seen[2] != 2 {
		t.Fatalf("unexpected handler order: %v", seen)
	}
	if q.Len() != 0 {
		t.Fatalf("expected queue to drain, %d left", q.Len())
	}
}

func TestWorkerLeavesFutureTasks(t *testing.T) {
	q := NewMemoryQueue()
	w := NewWorker(q, discardLogger(), WorkerConfig{})
	now := time.Now()
	w.now = func() time.Time { return now }

	task, _ := NewTask(TaskDomainStage, stageArgs{DomainID: "d1"})
	_ = q.Schedule(context.Background(), now.Add(5*time.Minute), task)
	w.Handle(TaskDomainStage, func(context.Context, Task) error {
		t.Fatal("future task must not run")
		return nil
	})
	if got := w.RunOnce(context.Background()); got != 0 {
		t.Fatalf("expected no processed tasks, got %d", got)
	}
	w.now = func() time.Time { return now.Add(6 * time.Minute) }
	w.Handle(TaskDomainStage, func(context.Context, Task) error { return nil })
	if got := w.RunOnce(context.Background()); got != 1 {
		t.Fatalf("expected the delayed task once due, got %d", got)
	}
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	w := NewWorker(NewMemoryQueue(), discardLogger(), WorkerConfig{PollInterval: 10 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRedisQueueClaim(t *testing.T) {
	addr := os.Getenv("QUEUE_REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("QUEUE_REDIS_TEST_ADDR not set")
	}
	q, err := NewRedisQueue(addr, "", 0, discardLogger())
	if err != nil {
		t.Fatalf("NewRedisQueue returned error: %v", err)
	}
	defer q.Close()
	q.prefix = "domainmap:test:" + time.Now().Format("150405.000000") + ":"

	ctx := context.Background()
	now := time.Now()
	due, _ := NewTask(TaskDomainStage, stageArgs{DomainID: "d1"})
	future, _ := NewTask(TaskDomainStage, stageArgs{DomainID: "d2"})
	if err := q.Schedule(ctx, now.Add(-time.Second), due); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	if err := q.Schedule(ctx, now.Add(time.Hour), future); err != nil {
		t.Fatalf("Schedule returned error: %v", err)
	}
	claimed, err := q.Claim(ctx, DefaultGroup, now, 10)
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if len(claimed) != 1 || claimed[0].ID != due.ID {
		t.Fatalf("expected only the due task, got %+v", claimed)
	}
	again, _ := q.Claim(ctx, DefaultGroup, now, 10)
	if len(again) != 0 {
		t.Fatalf("expected claimed task to be removed, got %+v", again)
	}
}
