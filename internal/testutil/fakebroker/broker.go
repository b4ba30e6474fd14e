// Package fakebroker provides an in-memory agent broker for development and
// testing. It serves the catalog, task and flow endpoints read by
// pkg/broker.Client, plays the agents themselves for playground runs and
// keeps playground experiments.
package fakebroker

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
)

// Fixture file names read by LoadDir
const (
	AgentsFile    = "agents.json"
	AgentInfoFile = "agent_info.json"
	TasksFile     = "tasks.json"
	FlowsDir      = "flows"
)

// PostedTask records one POST /tasks request
type PostedTask struct {
	TaskID        string
	CorrelationID string
	Input         json.RawMessage
	Authorization string
}

// PlaygroundRun records one request to an agent's execution endpoint
type PlaygroundRun struct {
	TaskID        string
	CorrelationID string
	Settings      broker.PlaygroundSettings
	Input         json.RawMessage
}

// Broker is an in-memory broker. The zero value is not usable; call New.
type Broker struct {
	mu          sync.RWMutex
	agents      []broker.AgentDefinition
	infos       map[string]broker.AgentInfo
	tasks       []broker.TaskStatusRecord
	flows       map[string]json.RawMessage
	posted      []PostedTask
	runs        []PlaygroundRun
	experiments []broker.Experiment

	// token, when set, must be sent as a bearer token
	token  string
	logger *slog.Logger
}

// New creates an empty broker. A non-empty token is required on every request.
func New(token string, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		infos:  make(map[string]broker.AgentInfo),
		flows:  make(map[string]json.RawMessage),
		token:  token,
		logger: logger,
	}
}

// AddAgent registers a catalog entry
func (b *Broker) AddAgent(a broker.AgentDefinition) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agents = append(b.agents, a)
}

// AddAgentInfo registers what the agent of info.TaskID reports on its info
// endpoint
func (b *Broker) AddAgentInfo(info broker.AgentInfo) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.infos[info.TaskID] = info
}

// AddTask registers a task execution record
func (b *Broker) AddTask(r broker.TaskStatusRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tasks = append(b.tasks, r)
}

// AddFlow registers a flow wire document under its correlation id
func (b *Broker) AddFlow(doc []byte) error {
	f, err := flow.Unmarshal(doc)
	if err != nil {
		return fmt.Errorf("invalid flow document: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.flows[f.CorrelationID] = json.RawMessage(doc)
	return nil
}

// Posted returns the tasks started through POST /tasks
func (b *Broker) Posted() []PostedTask {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.posted)
}

// Runs returns the playground runs sent to agent execution endpoints
func (b *Broker) Runs() []PlaygroundRun {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.runs)
}

// LoadDir loads agents.json, agent_info.json, tasks.json and every
// flows/*.json file of dir. Missing files are skipped.
func (b *Broker) LoadDir(dir string) error {
	var agents []broker.AgentDefinition
	if err := readFixture(filepath.Join(dir, AgentsFile), &agents); err != nil {
		return err
	}
	for _, a := range agents {
		b.AddAgent(a)
	}

	var infos []broker.AgentInfo
	if err := readFixture(filepath.Join(dir, AgentInfoFile), &infos); err != nil {
		return err
	}
	for _, info := range infos {
		b.AddAgentInfo(info)
	}

	var tasks []broker.TaskStatusRecord
	if err := readFixture(filepath.Join(dir, TasksFile), &tasks); err != nil {
		return err
	}
	for _, t := range tasks {
		b.AddTask(t)
	}

	files, err := filepath.Glob(filepath.Join(dir, FlowsDir, "*.json"))
	if err != nil {
		return fmt.Errorf("failed to list flows: %w", err)
	}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		if err := b.AddFlow(data); err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}
	}

	b.logger.Info("fixtures loaded", "dir", dir, "agents", len(agents), "tasks", len(tasks), "flows", len(files))
	return nil
}

func readFixture(path string, out any) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// Handler returns the broker routes
func (b *Broker) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(b.authorize)

	r.Get("/catalog/agents", b.listAgents)
	r.Get("/catalog/agents/{taskId}", b.getAgent)
	r.Get("/tasks", b.listTasks)
	r.Post("/tasks", b.postTask)
	r.Get("/tasks/{taskInstanceId}", b.getTask)
	r.Get("/flows/{correlationId}", b.getFlow)

	// agent endpoints and the playground service
	r.Post("/agents/{id}/execute", b.executeAgent)
	r.Get("/agents/{id}/info", b.agentInfo)
	r.Get("/agents/{id}/experiments", b.listExperiments)
	r.Post("/experiments", b.saveExperiment)

	return r
}

func (b *Broker) authorize(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.token != "" && r.Header.Get("Authorization") != "Bearer "+b.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// served fills in the broker's own address for agents without a base URL,
// so their execution and info paths resolve to the agent routes above.
func served(a broker.AgentDefinition, r *http.Request) broker.AgentDefinition {
	if a.Endpoint.BaseURL == "" && (a.Endpoint.ExecutionPath != "" || a.Endpoint.InfoPath != "") {
		a.Endpoint.BaseURL = "http://" + r.Host
	}
	return a
}

func (b *Broker) listAgents(w http.ResponseWriter, r *http.Request) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	agents := make([]broker.AgentDefinition, 0, len(b.agents))
	for _, a := range b.agents {
		agents = append(agents, served(a, r))
	}
	writeJSON(w, http.StatusOK, map[string]any{"agents": agents})
}

func (b *Broker) getAgent(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, a := range b.agents {
		if a.TaskID == taskID {
			writeJSON(w, http.StatusOK, map[string]any{"agent": served(a, r)})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
}

func (b *Broker) listTasks(w http.ResponseWriter, r *http.Request) {
	correlationID := r.URL.Query().Get("correlationId")

	b.mu.RLock()
	defer b.mu.RUnlock()
	tasks := make([]broker.TaskStatusRecord, 0, len(b.tasks))
	for _, t := range b.tasks {
		if (correlationID != "" && t.CorrelationID == correlationID) ||
			(correlationID == "" && t.IsRoot()) {
			tasks = append(tasks, t)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (b *Broker) getTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "taskInstanceId")

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tasks {
		if t.TaskInstanceID == id {
			writeJSON(w, http.StatusOK, map[string]any{"task": t})
			return
		}
	}
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
}

func (b *Broker) getFlow(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationId")

	b.mu.RLock()
	doc, ok := b.flows[correlationID]
	b.mu.RUnlock()
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "flow not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"flow": doc})
}

// postTask starts a root task: it records the request and adds a started
// task record and a single-agent flow for the new correlation id.
func (b *Broker) postTask(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		Command struct {
			Command string `json:"command"`
		} `json:"command"`
		TaskID        string          `json:"taskId"`
		TaskInputData json.RawMessage `json:"taskInputData"`
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Command.Command != "start" || strings.TrimSpace(req.TaskID) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "expected a start command with a taskId"})
		return
	}

	correlationID := uuid.NewString()
	instanceID := uuid.NewString()

	f := flow.New(correlationID)
	root := f.AddAgent(flow.AgentSpec{TaskID: req.TaskID, TaskInstanceID: instanceID, Status: flow.StatusStarted})
	_ = f.SetRoot(root)
	doc, err := flow.Marshal(f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	b.mu.Lock()
	b.posted = append(b.posted, PostedTask{
		TaskID:        req.TaskID,
		CorrelationID: correlationID,
		Input:         req.TaskInputData,
		Authorization: r.Header.Get("Authorization"),
	})
	b.tasks = append(b.tasks, broker.TaskStatusRecord{
		CorrelationID:  correlationID,
		TaskID:         req.TaskID,
		TaskInstanceID: instanceID,
		StartedAt:      time.Now().UTC(),
		Status:         flow.StatusStarted,
		TaskInput:      req.TaskInputData,
	})
	b.flows[correlationID] = doc
	b.mu.Unlock()

	b.logger.Debug("task started", "task_id", req.TaskID, "correlation_id", correlationID)
	writeJSON(w, http.StatusCreated, map[string]string{
		"correlationId":  correlationID,
		"taskInstanceId": instanceID,
	})
}

func (b *Broker) findAgent(taskID string) (broker.AgentDefinition, bool) {
	for _, a := range b.agents {
		if a.TaskID == taskID {
			return a, true
		}
	}
	return broker.AgentDefinition{}, false
}

// agentInfo answers for the agent itself. Agents without registered info
// report their catalog entry and no model list.
func (b *Broker) agentInfo(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	b.mu.RLock()
	defer b.mu.RUnlock()
	if info, ok := b.infos[taskID]; ok {
		writeJSON(w, http.StatusOK, info)
		return
	}
	a, ok := b.findAgent(taskID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	writeJSON(w, http.StatusOK, broker.AgentInfo{
		AgentName:     a.Name,
		Description:   a.Description,
		TaskID:        a.TaskID,
		InputSchema:   a.InputSchema,
		OutputSchema:  a.OutputSchema,
		AllowedModels: []string{},
	})
}

// executeAgent plays an agent receiving a playground run: it records the
// request and echoes the overrides back as the task output.
func (b *Broker) executeAgent(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "id")

	body := http.MaxBytesReader(w, r.Body, 1<<20)
	var req struct {
		TaskID         string                    `json:"taskId"`
		TaskInstanceID string                    `json:"taskInstanceId"`
		CorrelationID  string                    `json:"correlationId"`
		TaskInputData  json.RawMessage           `json:"taskInputData"`
		Playground     broker.PlaygroundSettings `json:"playground"`
	}
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.TaskID != taskID {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "taskId does not match the agent"})
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.findAgent(taskID); !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "agent not found"})
		return
	}
	if info, ok := b.infos[taskID]; ok && !info.AllowsModel(req.Playground.ModelOverride) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "model not allowed"})
		return
	}
	b.runs = append(b.runs, PlaygroundRun{
		TaskID:        taskID,
		CorrelationID: req.CorrelationID,
		Settings:      req.Playground,
		Input:         req.TaskInputData,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"correlationId":  req.CorrelationID,
		"taskInstanceId": req.TaskInstanceID,
		"stopReason":     broker.StopReasonCompleted,
		"taskOutput": map[string]string{
			"prompt": req.Playground.PromptOverride,
			"model":  req.Playground.ModelOverride,
		},
	})
}

func (b *Broker) listExperiments(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	b.mu.RLock()
	defer b.mu.RUnlock()
	experiments := make([]broker.Experiment, 0)
	for _, e := range b.experiments {
		if e.AgentID == agentID {
			experiments = append(experiments, e)
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"experiments": experiments})
}

func (b *Broker) saveExperiment(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, 1<<20)
	var exp broker.Experiment
	if err := json.NewDecoder(body).Decode(&exp); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if exp.AgentID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "agentId is required"})
		return
	}

	exp.ID = uuid.NewString()
	b.mu.Lock()
	b.experiments = append(b.experiments, exp)
	b.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]string{"experimentId": exp.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

