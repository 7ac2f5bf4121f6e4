package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultGroup is used when a task does not name a group.
const DefaultGroup = "domainmap"

// Task names handled by the API worker.
const (
	TaskDomainStage        = "domain_stage"
	TaskRemoveOldPrimaries = "remove_old_primary_domains"
	TaskAddDomain          = "add_domain"
	TaskRemoveDomain       = "remove_domain"
	TaskWebhookDelivery    = "webhook_delivery"
	TaskCleanOldEvents     = "clean_old_events"
)

// Task is a named unit of deferred work.
type Task struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Group string          `json:"group"`
	Args  json.RawMessage `json:"args,omitempty"`
	RunAt time.Time       `json:"run_at"`
}

// NewTask builds a task with JSON encoded args.
func NewTask(name string, args any) (Task, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Task{}, errors.New("queue: task name required")
	}
	task := Task{ID: uuid.NewString(), Name: name, Group: DefaultGroup}
	if args != nil {
		raw, err := json.Marshal(args)
		if err != nil {
			return Task{}, fmt.Errorf("queue: encode %s args: %w", name, err)
		}
		task.Args = raw
	}
	return task, nil
}

// Decode unmarshals the task args into v.
func (t Task) Decode(v any) error {
	if len(t.Args) == 0 {
		return fmt.Errorf("queue: task %s has no args", t.Name)
	}
	if err := json.Unmarshal(t.Args, v); err != nil {
		return fmt.Errorf("queue: decode %s args: %w", t.Name, err)
	}
	return nil
}

func (t Task) group() string {
	if strings.TrimSpace(t.Group) == "" {
		return DefaultGroup
	}
	return t.Group
}

// Scheduler accepts immediate and delayed tasks.
type Scheduler interface {
	Enqueue(ctx context.Context, task Task) error
	Schedule(ctx context.Context, at time.Time, task Task) error
}

// Queue is a Scheduler that workers can claim due tasks from.
type Queue interface {
	Scheduler
	// Claim removes and returns up to limit tasks of group due at now.
	// A claimed task is handed to exactly one caller.
	Claim(ctx context.Context, group string, now time.Time, limit int) ([]Task, error)
}
