// Package backend provides the HTTP client for the job service API.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/runoshun/crew-agent/internal/domain"
)

// Ensure Client implements domain.Backend interface.
var _ domain.Backend = (*Client)(nil)

// maxErrorBody caps how much of an error response is kept in StatusError.
const maxErrorBody = 4 * 1024

// StatusError is returned when the backend answers with a non-2xx status.
type StatusError struct {
	Method     string
	Path       string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Is maps HTTP status codes onto domain errors.
// Every client error except 429 refuses a conditional update.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrClaimRejected:
		return e.StatusCode >= 400 && e.StatusCode < 500 && e.StatusCode != http.StatusTooManyRequests
	case domain.ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case domain.ErrBackendUnavailable:
		return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
	}
	return false
}

// Client talks to the backend REST API.
type Client struct {
	httpClient *http.Client
	tokens     domain.TokenSource
	baseURL    string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// NewClient creates a new backend client.
func NewClient(baseURL string, tokens domain.TokenSource, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: domain.DefaultRequestTimeout},
		tokens:     tokens,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListRepositories returns the repositories attached to a project.
func (c *Client) ListRepositories(ctx context.Context, projectID string) ([]domain.Repository, error) {
	var repos []domain.Repository
	path := "/api/projects/" + url.PathEscape(projectID) + "/repositories"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &repos); err != nil {
		return nil, err
	}
	return repos, nil
}

// ListTasks returns the project's tasks in backend order.
func (c *Client) ListTasks(ctx context.Context, projectID string) ([]*domain.Task, error) {
	var tasks []*domain.Task
	path := "/api/projects/" + url.PathEscape(projectID) + "/tasks"
	if _, err := c.do(ctx, http.MethodGet, path, nil, &tasks); err != nil {
		return nil, err
	}
	return tasks, nil
}

// ListItems returns all items recorded for a task.
func (c *Client) ListItems(ctx context.Context, taskID string) ([]domain.TaskItem, error) {
	var wire []wireItem
	if _, err := c.do(ctx, http.MethodGet, itemsPath(taskID), nil, &wire); err != nil {
		return nil, err
	}
	items := make([]domain.TaskItem, 0, len(wire))
	for _, w := range wire {
		items = append(items, w.toDomain())
	}
	return items, nil
}

// CreateItem appends a new item to a task.
func (c *Client) CreateItem(ctx context.Context, taskID string, draft domain.NewItemDraft) (*domain.TaskItem, error) {
	var created wireItem
	found, err := c.do(ctx, http.MethodPost, itemsPath(taskID), fromDraft(taskID, draft), &created)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("create item for task %s: empty response", taskID)
	}
	item := created.toDomain()
	return &item, nil
}

// UpdateTask applies a partial update to a task.
// Returns nil without error if the backend answered with an empty body.
func (c *Client) UpdateTask(ctx context.Context, taskID string, update domain.TaskUpdate) (*domain.Task, error) {
	var task domain.Task
	found, err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(taskID), update, &task)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &task, nil
}

// UpdateContainer reports the status of a container.
func (c *Client) UpdateContainer(ctx context.Context, containerID string, update domain.ContainerUpdate) error {
	_, err := c.do(ctx, http.MethodPut, "/api/containers/"+url.PathEscape(containerID), update, nil)
	return err
}

func itemsPath(taskID string) string {
	return "/api/tasks/" + url.PathEscape(taskID) + "/items"
}

// do sends a request and decodes the JSON response into out.
// It reports whether the response carried a non-empty body.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (bool, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return false, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	token, err := c.tokens.Token()
	if err != nil {
		return false, fmt.Errorf("get auth token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %s %s: %v", domain.ErrBackendUnavailable, method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return false, fmt.Errorf("%w: read response: %v", domain.ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if len(data) > maxErrorBody {
			data = data[:maxErrorBody]
		}
		return false, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(data)),
		}
	}

	if isEmptyBody(data) {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return false, fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return true, nil
}

func isEmptyBody(data []byte) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("{}"))
}
