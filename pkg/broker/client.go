// Package broker is an HTTP client for the Gale broker: the agent catalog,
// task execution records and execution graphs.
package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/dshills/galeview/pkg/flow"
)

// CorrelationHeader carries a fresh request id on every broker call
const CorrelationHeader = "x-correlation-id"

// DefaultTimeout applies when Config.Timeout is zero
const DefaultTimeout = 30 * time.Second

// ErrNotFound is matched by a StatusError carrying a 404
var ErrNotFound = errors.New("not found")

// StatusError is returned when the broker answers with a non-2xx status
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("broker %s %s failed with status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is lets errors.Is match ErrNotFound on 404 responses
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// TokenSource supplies the bearer token sent to the broker. An empty token
// sends no Authorization header.
type TokenSource interface {
	Token() (string, error)
}

// StaticToken is a TokenSource that always returns itself
type StaticToken string

// Token implements TokenSource
func (t StaticToken) Token() (string, error) {
	return string(t), nil
}

// Config holds configuration for the broker client
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	TokenSource TokenSource
	Logger      *slog.Logger
}

// Client talks to one broker
type Client struct {
	baseURL    string
	tokens     TokenSource
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a broker client
func NewClient(config Config) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("BaseURL cannot be empty")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid BaseURL: %w", err)
	}

	timeout := config.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		tokens:  config.TokenSource,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// BaseURL returns the broker endpoint the client was created with
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListAgents returns the agent catalog
func (c *Client) ListAgents(ctx context.Context) ([]AgentDefinition, error) {
	var resp agentsResponse
	if err := c.getJSON(ctx, "/catalog/agents", &resp); err != nil {
		return nil, err
	}
	return resp.Agents, nil
}

// GetAgent returns the catalog entry of the agent executing taskID
func (c *Client) GetAgent(ctx context.Context, taskID string) (*AgentDefinition, error) {
	var resp agentResponse
	if err := c.getJSON(ctx, "/catalog/agents/"+url.PathEscape(taskID), &resp); err != nil {
		return nil, err
	}
	if resp.Agent == nil {
		return nil, fmt.Errorf("agent %q: %w", taskID, ErrNotFound)
	}
	return resp.Agent, nil
}

// ListRootTasks returns the executions that have no parent task
func (c *Client) ListRootTasks(ctx context.Context) ([]TaskStatusRecord, error) {
	var resp tasksResponse
	if err := c.getJSON(ctx, "/tasks", &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetTaskExecutionRecord returns the record of one task instance
func (c *Client) GetTaskExecutionRecord(ctx context.Context, taskInstanceID string) (*TaskStatusRecord, error) {
	var resp taskResponse
	if err := c.getJSON(ctx, "/tasks/"+url.PathEscape(taskInstanceID), &resp); err != nil {
		return nil, err
	}
	if resp.Task == nil {
		return nil, fmt.Errorf("task %q: %w", taskInstanceID, ErrNotFound)
	}
	return resp.Task, nil
}

// ListTasksByCorrelationID returns every task of one execution
func (c *Client) ListTasksByCorrelationID(ctx context.Context, correlationID string) ([]TaskStatusRecord, error) {
	var resp tasksResponse
	path := "/tasks?correlationId=" + url.QueryEscape(correlationID)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// GetExecutionGraphRaw returns the undecoded flow document of an execution
func (c *Client) GetExecutionGraphRaw(ctx context.Context, correlationID string) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/flows/"+url.PathEscape(correlationID), nil)
	if err != nil {
		return nil, err
	}

	doc := gjson.GetBytes(body, "flow")
	if !doc.Exists() || doc.Type == gjson.Null {
		return nil, fmt.Errorf("flow %q: %w", correlationID, ErrNotFound)
	}
	return []byte(doc.Raw), nil
}

// GetExecutionGraph fetches and decodes the execution graph of an execution
func (c *Client) GetExecutionGraph(ctx context.Context, correlationID string) (*flow.Flow, error) {
	raw, err := c.GetExecutionGraphRaw(ctx, correlationID)
	if err != nil {
		return nil, err
	}

	f, err := flow.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode flow %q: %w", correlationID, err)
	}
	return f, nil
}

// PostTask starts a new execution of taskID with the given input. The broker's
// answer is returned undecoded.
func (c *Client) PostTask(ctx context.Context, taskID string, input json.RawMessage) (json.RawMessage, error) {
	if taskID == "" {
		return nil, fmt.Errorf("taskID cannot be empty")
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	payload, err := json.Marshal(postTaskRequest{
		Command:       startCommand{Command: "start"},
		TaskID:        taskID,
		TaskInputData: input,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.do(ctx, http.MethodPost, "/tasks", payload)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response of %s: %w", path, err)
	}
	return nil
}

// do sends one request to the broker and returns the body of a 2xx response
func (c *Client) do(ctx context.Context, method, path string, payload []byte) ([]byte, error) {
	return c.send(ctx, request{
		method:  method,
		url:     c.baseURL + path,
		path:    path,
		payload: payload,
	})
}

// request is one call made by the client. path is what logs and StatusError
// report; url is what is actually requested.
type request struct {
	method    string
	url       string
	path      string
	requestID string
	payload   []byte
}

// send performs req with the client's token and returns the body of a 2xx
// response. An empty requestID gets a fresh uuid.
func (c *Client) send(ctx context.Context, req request) ([]byte, error) {
	var reqBody io.Reader
	if req.payload != nil {
		reqBody = bytes.NewReader(req.payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, req.url, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	requestID := req.requestID
	if requestID == "" {
		requestID = uuid.New().String()
	}
	httpReq.Header.Set(CorrelationHeader, requestID)
	httpReq.Header.Set("Accept", "application/json")
	if req.payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to get broker token: %w", err)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send HTTP request: %w", err)
	}
	defer func() {
		_ = httpResp.Body.Close()
	}()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	c.logger.Debug("broker request",
		"method", req.method,
		"path", req.path,
		"status", httpResp.StatusCode,
		"request_id", requestID,
		"duration", time.Since(start),
	)

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return nil, &StatusError{
			Method:     req.method,
			Path:       req.path,
			StatusCode: httpResp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
		}
	}
	return body, nil
}
