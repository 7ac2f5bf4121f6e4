package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	defaultPollInterval = time.Second
	defaultTaskTimeout  = time.Minute
	defaultBatchSize    = 20
)

// HandlerFunc processes one task.
type HandlerFunc func(ctx context.Context, task Task) error

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	Groups       []string
	PollInterval time.Duration
	TaskTimeout  time.Duration
	BatchSize    int
}

// Worker polls a queue and dispatches due tasks to registered handlers.
type Worker struct {
	queue  Queue
	logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]HandlerFunc

	groups   []string
	interval time.Duration
	timeout  time.Duration
	batch    int

	now func() time.Time
}

var (
	metricsOnce    sync.Once
	tasksProcessed *prometheus.CounterVec
	taskDuration   *prometheus.HistogramVec
)

func initMetrics() {
	metricsOnce.Do(func() {
		tasksProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "domainmap",
			Subsystem: "queue",
			Name:      "tasks_processed_total",
			Help:      "Count of processed queue tasks",
		}, []string{"task", "result"})
		taskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "domainmap",
			Subsystem: "queue",
			Name:      "task_duration_seconds",
			Help:      "Latency distribution of queue task handlers",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"task"})

		if err := prometheus.Register(tasksProcessed); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
					tasksProcessed = existing
				}
			}
		}
		if err := prometheus.Register(taskDuration); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				if existing, ok := are.ExistingCollector.(*prometheus.HistogramVec); ok {
					taskDuration = existing
				}
			}
		}
	})
}

// NewWorker constructs a worker over q.
func NewWorker(q Queue, logger *slog.Logger, cfg WorkerConfig) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	groups := cfg.Groups
	if len(groups) == 0 {
		groups = []string{DefaultGroup}
	}
	interval := cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	timeout := cfg.TaskTimeout
	if timeout <= 0 {
		timeout = defaultTaskTimeout
	}
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	initMetrics()
	return &Worker{
		queue:    q,
		logger:   logger.With("component", "worker"),
		handlers: make(map[string]HandlerFunc),
		groups:   groups,
		interval: interval,
		timeout:  timeout,
		batch:    batch,
		now:      time.Now,
	}
}

// Handle registers fn for tasks named name, replacing any previous handler.
func (w *Worker) Handle(name string, fn HandlerFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = fn
}

func (w *Worker) handler(name string) (HandlerFunc, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	fn, ok := w.handlers[name]
	return fn, ok
}

// Run polls until the context is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("worker started", "interval", w.interval, "groups", w.groups)
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopped")
			return nil
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce claims and processes every currently due task. It returns the number of tasks handled.
func (w *Worker) RunOnce(ctx context.Context) int {
	processed := 0
	for _, group := range w.groups {
		for {
			if ctx.Err() != nil {
				return processed
			}
			tasks, err := w.queue.Claim(ctx, group, w.now(), w.batch)
			if err != nil {
				w.logger.Error("claim tasks failed", "group", group, "error", err)
				break
			}
			for _, task := range tasks {
				w.process(ctx, task)
				processed++
			}
			if len(tasks) < w.batch {
				break
			}
		}
	}
	return processed
}

func (w *Worker) process(parent context.Context, task Task) {
	fn, ok := w.handler(task.Name)
	if !ok {
		w.logger.Warn("no handler registered for task", "task", task.Name, "task_id", task.ID)
		tasksProcessed.WithLabelValues(task.Name, "unhandled").Inc()
		return
	}

	ctx, cancel := context.WithTimeout(parent, w.timeout)
	defer cancel()

	start := time.Now()
	err := safeCall(ctx, fn, task)
	taskDuration.WithLabelValues(task.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		w.logger.Error("task failed", "task", task.Name, "task_id", task.ID, "error", err)
		tasksProcessed.WithLabelValues(task.Name, "error").Inc()
		return
	}
	tasksProcessed.WithLabelValues(task.Name, "ok").Inc()
}

func safeCall(ctx context.Context, fn HandlerFunc, task Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, task)
}
