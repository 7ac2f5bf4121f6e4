package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// RedisQueue stores tasks in one sorted set per group scored by run-at milliseconds.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
	prefix string
	now    func() time.Time
}

// NewRedisQueue connects to Redis and returns a queue.
func NewRedisQueue(addr, password string, db int, logger *slog.Logger) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return NewRedisQueueWithClient(client, logger), nil
}

// NewRedisQueueWithClient wraps an existing client.
func NewRedisQueueWithClient(client *redis.Client, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{
		client: client,
		logger: logger.With("component", "queue"),
		prefix: "domainmap:queue:",
		now:    time.Now,
	}
}

func (q *RedisQueue) key(group string) string {
	if group == "" {
		group = DefaultGroup
	}
	return q.prefix + group
}

// Enqueue implements Scheduler.
func (q *RedisQueue) Enqueue(ctx context.Context, task Task) error {
	return q.Schedule(ctx, q.now(), task)
}

// Schedule implements Scheduler.
func (q *RedisQueue) Schedule(ctx context.Context, at time.Time, task Task) error {
	if task.Name == "" {
		return errors.New("queue: task name required")
	}
	task.RunAt = at.UTC()
	task.Group = task.group()
	member, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("queue: encode task: %w", err)
	}
	score := float64(at.UnixMilli())
	if err := q.client.ZAdd(ctx, q.key(task.Group), redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("queue: schedule %s: %w", task.Name, err)
	}
	return nil
}

// Claim implements Queue. Members are claimed with ZREM so concurrent workers
// never process the same task twice.
func (q *RedisQueue) Claim(ctx context.Context, group string, now time.Time, limit int) ([]Task, error) {
	if limit <= 0 {
		limit = 10
	}
	key := q.key(group)
	members, err := q.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("queue: range due tasks: %w", err)
	}

	var tasks []Task
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, key, member).Result()
		if err != nil {
			return tasks, fmt.Errorf("queue: claim task: %w", err)
		}
		if removed == 0 {
			continue
		}
		var task Task
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			q.logger.Error("dropping undecodable task", "group", group, "error", err)
			continue
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}

// Close releases the Redis client.
func (q *RedisQueue) Close() error {
	if q.client == nil {
		return nil
	}
	return q.client.Close()
}
