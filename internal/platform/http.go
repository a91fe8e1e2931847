package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/postline/postline-backend/internal/timeline"
	"go.uber.org/zap"
)

// HTTPClient implements Client over the platform's JSON task API.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *zap.SugaredLogger
}

var _ Client = (*HTTPClient)(nil)

func NewHTTPClient(baseURL, token string, logger *zap.SugaredLogger) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

type scheduleRequest struct {
	ProjectID   string    `json:"project_id"`
	Date        time.Time `json:"date"`
	Text        string    `json:"text"`
	Images      []string  `json:"images,omitempty"`
	Attachments []string  `json:"attachments,omitempty"`
	ReplaceID   string    `json:"replace_id,omitempty"`
	Immediate   bool      `json:"immediate,omitempty"`
}

type taskResponse struct {
	TaskID string `json:"task_id"`
	State  string `json:"state"`
	Detail string `json:"detail,omitempty"`
}

func (c *HTTPClient) SchedulePost(ctx context.Context, post timeline.Post, projectID, replaceID string) (TaskHandle, error) {
	return c.submit(ctx, scheduleRequest{
		ProjectID:   projectID,
		Date:        post.Date,
		Text:        post.Text,
		Images:      post.Images,
		Attachments: post.Attachments,
		ReplaceID:   replaceID,
	})
}

func (c *HTTPClient) PublishNow(ctx context.Context, post timeline.Post, projectID string) (TaskHandle, error) {
	return c.submit(ctx, scheduleRequest{
		ProjectID:   projectID,
		Date:        time.Now(),
		Text:        post.Text,
		Images:      post.Images,
		Attachments: post.Attachments,
		Immediate:   true,
	})
}

func (c *HTTPClient) submit(ctx context.Context, reqBody scheduleRequest) (TaskHandle, error) {
	body, err := json.Marshal(reqBody)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("marshal schedule request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tasks", bytes.NewReader(body))
	if err != nil {
		return TaskHandle{}, fmt.Errorf("build schedule request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TaskHandle{}, fmt.Errorf("submit schedule task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return TaskHandle{}, fmt.Errorf("platform rejected task: status %d", resp.StatusCode)
	}

	var tr taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TaskHandle{}, fmt.Errorf("decode task response: %w", err)
	}

	c.logger.Debugw("Submitted platform task", "task", tr.TaskID, "project", reqBody.ProjectID)
	return TaskHandle{ID: tr.TaskID}, nil
}

func (c *HTTPClient) PollTask(ctx context.Context, handle TaskHandle) (TaskStatus, error) {
	endpoint := c.baseURL + "/v1/tasks/" + url.PathEscape(handle.ID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("build poll request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return TaskStatus{}, fmt.Errorf("poll task: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return TaskStatus{}, fmt.Errorf("platform poll failed: status %d", resp.StatusCode)
	}

	var tr taskResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return TaskStatus{}, fmt.Errorf("decode poll response: %w", err)
	}
	return TaskStatus{State: TaskState(tr.State), Detail: tr.Detail}, nil
}
