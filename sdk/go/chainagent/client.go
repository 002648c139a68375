// Package chainagent is a small Go client for the ChainAgent REST API.
package chainagent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Tool invocations wait for the transaction to be submitted, so it is longer
// than a typical API timeout.
const DefaultHTTPTimeout = 90 * time.Second

// Task statuses reported by the API.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Client wraps the HTTP interactions with the ChainAgent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu       sync.RWMutex
	apiToken string
}

// ToolResult is the outcome of a synchronous tool invocation.
type ToolResult struct {
	Tool         string `json:"tool"`
	Chain        string `json:"chain"`
	State        string `json:"state"`
	Stage        string `json:"stage"`
	TxID         string `json:"tx_id,omitempty"`
	Address      string `json:"address,omitempty"`
	Code         string `json:"code,omitempty"`
	Status       string `json:"status"`
	ReturnDirect bool   `json:"return_direct"`
	CreatedAt    int64  `json:"created_at"`
}

// Submitted reports whether the transaction was accepted by the node.
func (r ToolResult) Submitted() bool {
	return r.State == "submitted"
}

// TaskSubmission is the payload required to create an asynchronous task.
// Input is marshalled as the tool input: an object or a positional string.
type TaskSubmission struct {
	ID       string         `json:"id,omitempty"`
	Tool     string         `json:"tool"`
	Input    any            `json:"input,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// TaskResult mirrors the execution result stored on a task.
type TaskResult struct {
	Chain        string `json:"chain"`
	State        string `json:"state"`
	Stage        string `json:"stage"`
	TxID         string `json:"tx_id,omitempty"`
	Address      string `json:"address,omitempty"`
	Code         string `json:"code,omitempty"`
	Status       string `json:"status"`
	ReturnDirect bool   `json:"return_direct"`
}

// Task is the API view of an asynchronous task.
type Task struct {
	ID         string          `json:"id"`
	Tool       string          `json:"tool"`
	Input      json.RawMessage `json:"input,omitempty"`
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Status     string          `json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `json:"last_error,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Result     *TaskResult     `json:"result,omitempty"`
	CreatedAt  int64           `json:"created_at"`
	UpdatedAt  int64           `json:"updated_at"`
}

// Finished reports whether the task reached a terminal status.
func (t Task) Finished() bool {
	return t.Status == StatusSucceeded || t.Status == StatusFailed
}

// APIError represents a non-2xx response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("chainagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("chainagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the ChainAgent API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base url: %q", rawURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAPIToken sets the bearer token sent with every request.
func (c *Client) SetAPIToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.apiToken = strings.TrimSpace(token)
}

// InvokeTool calls a tool synchronously. A failed outcome is returned together
// with an *APIError carrying the outcome code, so callers can inspect the
// stage at which it failed.
func (c *Client) InvokeTool(ctx context.Context, tool string, input any) (ToolResult, error) {
	if strings.TrimSpace(tool) == "" {
		return ToolResult{}, errors.New("chainagent: tool name is required")
	}
	var result ToolResult
	status, data, err := c.send(ctx, http.MethodPost, "/api/v1/tools/"+url.PathEscape(tool), input)
	if err != nil {
		return ToolResult{}, err
	}
	if status >= 400 {
		if json.Unmarshal(data, &result) == nil && result.State != "" {
			return result, &APIError{StatusCode: status, Code: result.Code, Message: result.Status}
		}
		return ToolResult{}, decodeAPIError(status, data)
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return ToolResult{}, fmt.Errorf("decode response: %w", err)
	}
	return result, nil
}

// SubmitTask enqueues a tool invocation for asynchronous execution.
func (c *Client) SubmitTask(ctx context.Context, submission TaskSubmission) (Task, error) {
	var created Task
	if err := c.do(ctx, http.MethodPost, "/api/v1/tasks", submission, &created); err != nil {
		return Task{}, err
	}
	return created, nil
}

// GetTask fetches a task by identifier.
func (c *Client) GetTask(ctx context.Context, taskID string) (Task, error) {
	var found Task
	if err := c.do(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(taskID), nil, &found); err != nil {
		return Task{}, err
	}
	return found, nil
}

// WaitTask polls GetTask until the task finishes or ctx is done.
func (c *Client) WaitTask(ctx context.Context, taskID string, interval time.Duration) (Task, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		found, err := c.GetTask(ctx, taskID)
		if err != nil {
			return Task{}, err
		}
		if found.Finished() {
			return found, nil
		}
		select {
		case <-ctx.Done():
			return found, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload, out any) error {
	status, data, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return decodeAPIError(status, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpoint)}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL.ResolveReference(rel).String(), body)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.mu.RLock()
	token := c.apiToken
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, data, nil
}

func decodeAPIError(status int, data []byte) error {
	apiErr := &APIError{StatusCode: status}
	if len(data) > 0 {
		_ = json.Unmarshal(data, &struct {
			Error *APIError `json:"error"`
		}{Error: apiErr})
	}
	if apiErr.Message == "" {
		apiErr.Message = string(bytes.TrimSpace(data))
	}
	return apiErr
}
