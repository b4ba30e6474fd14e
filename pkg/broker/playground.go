package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNoEndpoint is returned when an agent definition has no base URL
	ErrNoEndpoint = errors.New("agent has no endpoint")

	// ErrModelNotAllowed is returned for a model override the agent does not list
	ErrModelNotAllowed = errors.New("model not allowed")
)

// PlaygroundSettings override an agent's prompt and model for one run
type PlaygroundSettings struct {
	PromptOverride string `json:"promptOverride"`
	ModelOverride  string `json:"modelOverride,omitempty"`
}

// AgentInfo is what an agent reports on its info endpoint
type AgentInfo struct {
	AgentName      string          `json:"agentName"`
	Description    string          `json:"description"`
	TaskID         string          `json:"taskId"`
	InputSchema    json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema   json.RawMessage `json:"outputSchema,omitempty"`
	PromptTemplate string          `json:"promptTemplate,omitempty"`
	AllowedModels  []string        `json:"allowedModels"`
}

// AllowsModel reports whether model can be used as an override. An empty
// model keeps the agent's own and an agent listing no models accepts any.
func (i *AgentInfo) AllowsModel(model string) bool {
	if model == "" || len(i.AllowedModels) == 0 {
		return true
	}
	return slices.Contains(i.AllowedModels, model)
}

// PromptRun is the outcome of one playground execution
type PromptRun struct {
	CorrelationID  string
	TaskInstanceID string
	// Response is the agent's answer, undecoded
	Response json.RawMessage
}

type playgroundRequest struct {
	Command        startCommand       `json:"command"`
	TaskID         string             `json:"taskId"`
	TaskInstanceID string             `json:"taskInstanceId"`
	CorrelationID  string             `json:"correlationId"`
	TaskInputData  json.RawMessage    `json:"taskInputData"`
	Playground     PlaygroundSettings `json:"playground"`
}

// endpointURL joins an agent base URL and one of its paths
func endpointURL(agent *AgentDefinition, path string) (string, error) {
	if agent.Endpoint.BaseURL == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEndpoint, agent.TaskID)
	}
	base := strings.TrimRight(agent.Endpoint.BaseURL, "/")
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid endpoint of agent %q: %w", agent.TaskID, err)
	}
	if path == "" {
		return base, nil
	}
	return base + "/" + strings.TrimLeft(path, "/"), nil
}

// SendPrompt runs the agent directly on its execution endpoint with the
// prompt (and optionally the model) overridden. The request's correlation
// id doubles as the x-correlation-id header.
func (c *Client) SendPrompt(ctx context.Context, agent *AgentDefinition, settings PlaygroundSettings, input json.RawMessage) (*PromptRun, error) {
	if agent == nil {
		return nil, ErrNoEndpoint
	}
	target, err := endpointURL(agent, agent.Endpoint.ExecutionPath)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(settings.PromptOverride) == "" {
		return nil, fmt.Errorf("prompt cannot be empty")
	}
	if len(input) == 0 {
		input = json.RawMessage("{}")
	}

	run := &PromptRun{
		CorrelationID:  uuid.NewString(),
		TaskInstanceID: uuid.NewString(),
	}
	payload, err := json.Marshal(playgroundRequest{
		Command:        startCommand{Command: "start"},
		TaskID:         agent.TaskID,
		TaskInstanceID: run.TaskInstanceID,
		CorrelationID:  run.CorrelationID,
		TaskInputData:  input,
		Playground:     settings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	body, err := c.send(ctx, request{
		method:    http.MethodPost,
		url:       target,
		path:      target,
		requestID: run.CorrelationID,
		payload:   payload,
	})
	if err != nil {
		return nil, err
	}
	run.Response = json.RawMessage(body)
	return run, nil
}

// GetAgentInfo calls the agent's info endpoint
func (c *Client) GetAgentInfo(ctx context.Context, agent *AgentDefinition) (*AgentInfo, error) {
	if agent == nil {
		return nil, ErrNoEndpoint
	}
	target, err := endpointURL(agent, agent.Endpoint.InfoPath)
	if err != nil {
		return nil, err
	}

	body, err := c.send(ctx, request{method: http.MethodGet, url: target, path: target})
	if err != nil {
		return nil, err
	}
	var info AgentInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent info of %q: %w", agent.TaskID, err)
	}
	return &info, nil
}

// Experiment is a playground run worth keeping: the prompt and model tried on
// an agent with one input.
type Experiment struct {
	ID            string             `json:"experimentId,omitempty"`
	Date          time.Time          `json:"date"`
	AgentID       string             `json:"agentId"`
	TaskInputData json.RawMessage    `json:"taskInputData,omitempty"`
	Playground    PlaygroundSettings `json:"playground"`
}

// ExperimentClient talks to the playground service keeping experiments
type ExperimentClient struct {
	client *Client
}

// NewExperimentClient creates a client for the playground service at
// config.BaseURL. It authenticates like the broker client.
func NewExperimentClient(config Config) (*ExperimentClient, error) {
	c, err := NewClient(config)
	if err != nil {
		return nil, err
	}
	return &ExperimentClient{client: c}, nil
}

// ListExperiments returns the experiments saved for agentID
func (e *ExperimentClient) ListExperiments(ctx context.Context, agentID string) ([]Experiment, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agentID cannot be empty")
	}

	var resp struct {
		Experiments []Experiment `json:"experiments"`
	}
	if err := e.client.getJSON(ctx, "/agents/"+url.PathEscape(agentID)+"/experiments", &resp); err != nil {
		return nil, err
	}
	if resp.Experiments == nil {
		return []Experiment{}, nil
	}
	return resp.Experiments, nil
}

// SaveExperiment stores exp and returns the id the service assigned
func (e *ExperimentClient) SaveExperiment(ctx context.Context, exp *Experiment) (string, error) {
	if exp == nil || exp.AgentID == "" {
		return "", fmt.Errorf("experiment needs an agent id")
	}
	if exp.Date.IsZero() {
		exp.Date = time.Now().UTC()
	}

	payload, err := json.Marshal(exp)
	if err != nil {
		return "", fmt.Errorf("failed to marshal experiment: %w", err)
	}
	body, err := e.client.do(ctx, http.MethodPost, "/experiments", payload)
	if err != nil {
		return "", err
	}

	var resp struct {
		ExperimentID string `json:"experimentId"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("failed to unmarshal save response: %w", err)
	}
	if resp.ExperimentID == "" {
		return "", fmt.Errorf("playground service returned no experiment id")
	}
	exp.ID = resp.ExperimentID
	return resp.ExperimentID, nil
}
