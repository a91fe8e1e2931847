// Package platform talks to the external publishing platform. Scheduling a
// post there is a submit-then-poll operation: submission returns a task
// handle immediately and a separate polling loop awaits the terminal status,
// so multi-second remote operations never block the caller's event loop.
package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/postline/postline-backend/internal/timeline"
)

// TaskHandle identifies an in-flight scheduling task on the platform.
type TaskHandle struct {
	ID string `json:"id"`
}

// TaskState is the lifecycle of a platform task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskSucceeded TaskState = "succeeded"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether the state is final.
func (s TaskState) Terminal() bool {
	return s == TaskSucceeded || s == TaskFailed
}

// TaskStatus is one poll observation of a task.
type TaskStatus struct {
	State  TaskState `json:"state"`
	Detail string    `json:"detail,omitempty"`
}

// Client is the platform contract the engine consumes.
type Client interface {
	// SchedulePost submits a post for publication at its date. A non-empty
	// replaceID asks the platform to supersede a previously scheduled task.
	SchedulePost(ctx context.Context, post timeline.Post, projectID, replaceID string) (TaskHandle, error)
	// PublishNow submits an immediate publication.
	PublishNow(ctx context.Context, post timeline.Post, projectID string) (TaskHandle, error)
	// PollTask fetches the task's current status.
	PollTask(ctx context.Context, handle TaskHandle) (TaskStatus, error)
}

// ErrTaskFailed is returned by AwaitTask when the platform reports failure.
var ErrTaskFailed = errors.New("platform task failed")

// AwaitTask polls the task until it reaches a terminal state or the context
// is cancelled. The interval is the caller's; the platform imposes no
// timeout of its own.
func AwaitTask(ctx context.Context, client Client, handle TaskHandle, interval time.Duration) (TaskStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		status, err := client.PollTask(ctx, handle)
		if err != nil {
			return TaskStatus{}, fmt.Errorf("poll task %s: %w", handle.ID, err)
		}
		if status.State.Terminal() {
			if status.State == TaskFailed {
				return status, fmt.Errorf("%w: %s", ErrTaskFailed, status.Detail)
			}
			return status, nil
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-ticker.C:
		}
	}
}
