// Package mock provides a scripted platform client for tests and DSN-less
// dev runs: tasks succeed after a configurable number of polls.
package mock

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/postline/postline-backend/internal/platform"
	"github.com/postline/postline-backend/internal/timeline"
)

type Client struct {
	mu sync.Mutex

	// PollsUntilDone is how many PollTask calls a task reports running
	// before succeeding. Zero means immediately terminal.
	PollsUntilDone int
	// FailTasks makes every task end in failure.
	FailTasks bool

	remaining map[string]int
	Submitted []SubmittedTask
}

type SubmittedTask struct {
	Handle    platform.TaskHandle
	Post      timeline.Post
	ProjectID string
	ReplaceID string
	Immediate bool
}

var _ platform.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{remaining: make(map[string]int)}
}

func (c *Client) SchedulePost(ctx context.Context, post timeline.Post, projectID, replaceID string) (platform.TaskHandle, error) {
	return c.submit(post, projectID, replaceID, false)
}

func (c *Client) PublishNow(ctx context.Context, post timeline.Post, projectID string) (platform.TaskHandle, error) {
	return c.submit(post, projectID, "", true)
}

func (c *Client) submit(post timeline.Post, projectID, replaceID string, immediate bool) (platform.TaskHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	handle := platform.TaskHandle{ID: uuid.NewString()}
	c.remaining[handle.ID] = c.PollsUntilDone
	c.Submitted = append(c.Submitted, SubmittedTask{
		Handle:    handle,
		Post:      post,
		ProjectID: projectID,
		ReplaceID: replaceID,
		Immediate: immediate,
	})
	return handle, nil
}

func (c *Client) PollTask(ctx context.Context, handle platform.TaskHandle) (platform.TaskStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	left, ok := c.remaining[handle.ID]
	if !ok {
		return platform.TaskStatus{State: platform.TaskFailed, Detail: "unknown task"}, nil
	}
	if left > 0 {
		c.remaining[handle.ID] = left - 1
		return platform.TaskStatus{State: platform.TaskRunning}, nil
	}
	if c.FailTasks {
		return platform.TaskStatus{State: platform.TaskFailed, Detail: "scripted failure"}, nil
	}
	return platform.TaskStatus{State: platform.TaskSucceeded}, nil
}
