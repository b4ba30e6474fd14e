package broker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/galeview/pkg/flow"
)

const flowResponse = `{"flow":{"correlationId":"c1","root":{"type":"agent","taskId":"t1","taskInstanceId":"i1","status":"completed",
	"next":{"type":"agent","taskId":"t2","taskInstanceId":"i2","status":"started"}}}}`

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenSource) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL + "/", TokenSource: tokens})
	require.NoError(t, err)
	return c
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)

	c, err := NewClient(Config{BaseURL: "http://broker.local/"})
	require.NoError(t, err)
	assert.Equal(t, "http://broker.local", c.BaseURL())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)

	c, err = NewClient(Config{BaseURL: "http://broker.local", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, time.Second, c.httpClient.Timeout)
}

func TestClient_ListAgents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/catalog/agents", r.URL.Path)
		_, _ = io.WriteString(w, `{"agents":[{"id":"a1","name":"Planner","description":"plans","taskId":"plan",
			"inputSchema":{"type":"object"},"endpoint":{"baseURL":"http://planner","executionPath":"/exec","infoPath":"/info"}}]}`)
	}, nil)

	agents, err := c.ListAgents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 1)
	assert.Equal(t, "plan", agents[0].TaskID)
	assert.Equal(t, "http://planner", agents[0].Endpoint.BaseURL)
	assert.JSONEq(t, `{"type":"object"}`, string(agents[0].InputSchema))
}

func TestClient_GetAgent(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/catalog/agents/plan":
			_, _ = io.WriteString(w, `{"agent":{"id":"a1","name":"Planner","taskId":"plan"}}`)
		case "/catalog/agents/empty":
			_, _ = io.WriteString(w, `{}`)
		default:
			http.Error(w, "no such agent", http.StatusNotFound)
		}
	}, nil)
	ctx := context.Background()

	agent, err := c.GetAgent(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, "Planner", agent.Name)

	_, err = c.GetAgent(ctx, "empty")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusNotFound, se.StatusCode)
	assert.Equal(t, "no such agent", se.Body)
}

func TestClient_Tasks(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/tasks" && r.URL.Query().Get("correlationId") == "c 1":
			_, _ = io.WriteString(w, `{"tasks":[
				{"correlationId":"c 1","taskId":"plan","taskInstanceId":"i1","startedAt":"2025-03-01T10:00:00Z","status":"completed","stopReason":"subtasks"},
				{"correlationId":"c 1","taskId":"write","taskInstanceId":"i2","startedAt":"2025-03-01T10:00:01Z","status":"started","parentTaskId":"plan","subtaskGroupId":"g1"}]}`)
		case r.URL.Path == "/tasks":
			_, _ = io.WriteString(w, `{"tasks":[{"correlationId":"c1","taskId":"plan","taskInstanceId":"i1",
				"startedAt":"2025-03-01T10:00:00Z","stoppedAt":"2025-03-01T10:00:05Z","status":"completed","executionTimeMs":5000}]}`)
		case r.URL.Path == "/tasks/i1":
			_, _ = io.WriteString(w, `{"task":{"correlationId":"c1","taskId":"plan","taskInstanceId":"i1","status":"failed",
				"startedAt":"2025-03-01T10:00:00Z","taskOutput":{"error":"boom"}}}`)
		default:
			w.WriteHeader(http.StatusInternalServerError)
		}
	}, nil)
	ctx := context.Background()

	roots, err := c.ListRootTasks(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, 5*time.Second, roots[0].Duration())
	require.NotNil(t, roots[0].StoppedAt)
	assert.True(t, roots[0].IsRoot())

	tasks, err := c.ListTasksByCorrelationID(ctx, "c 1")
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, StopReasonSubtasks, tasks[0].StopReason)
	assert.Equal(t, "g1", tasks[1].SubtaskGroupID)

	rec, err := c.GetTaskExecutionRecord(ctx, "i1")
	require.NoError(t, err)
	assert.Equal(t, flow.StatusFailed, rec.Status)
	assert.JSONEq(t, `{"error":"boom"}`, string(rec.TaskOutput))

	_, err = c.GetTaskExecutionRecord(ctx, "i9")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestClient_GetExecutionGraph(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/flows/c1":
			_, _ = io.WriteString(w, flowResponse)
		case "/flows/bad":
			_, _ = io.WriteString(w, `{"flow":{"correlationId":"bad","root":{"type":"loop"}}}`)
		default:
			_, _ = io.WriteString(w, `{"flow":null}`)
		}
	}, nil)
	ctx := context.Background()

	f, err := c.GetExecutionGraph(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "c1", f.CorrelationID)
	assert.Equal(t, 2, f.Len())
	id, ok := f.FindAgentNode("i2")
	require.True(t, ok)
	n, _ := f.Node(id)
	assert.Equal(t, flow.StatusStarted, n.Status)

	_, err = c.GetExecutionGraph(ctx, "bad")
	assert.ErrorIs(t, err, flow.ErrUnknownNodeType)

	_, err = c.GetExecutionGraph(ctx, "none")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_PostTask(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/tasks", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.JSONEq(t, `{"command":{"command":"start"},"taskId":"plan","taskInputData":{"goal":"ship"}}`, string(body))

		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"correlationId":"c-new"}`)
	}, nil)

	resp, err := c.PostTask(context.Background(), "plan", json.RawMessage(`{"goal":"ship"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"correlationId":"c-new"}`, string(resp))

	_, err = c.PostTask(context.Background(), "", nil)
	assert.Error(t, err)
}

func TestClient_Headers(t *testing.T) {
	var seen []string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		_, err := uuid.Parse(id)
		assert.NoError(t, err)
		seen = append(seen, id)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"agents":[]}`)
	}, StaticToken("secret"))

	for range 2 {
		_, err := c.ListAgents(context.Background())
		require.NoError(t, err)
	}
	require.Len(t, seen, 2)
	assert.NotEqual(t, seen[0], seen[1], "each request gets its own id")
}

type failingTokens struct{}

func (failingTokens) Token() (string, error) { return "", errors.New("locked") }

func TestClient_TokenErrors(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = io.WriteString(w, `{"agents":[]}`)
	}, StaticToken(""))
	_, err := c.ListAgents(context.Background())
	require.NoError(t, err)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Fail(t, "request must not be sent")
	}, failingTokens{})
	_, err = c.ListAgents(context.Background())
	assert.ErrorContains(t, err, "locked")
}

func TestTaskStatusRecord_AgentType(t *testing.T) {
	tests := []struct {
		name   string
		record TaskStatusRecord
		want   AgentType
	}{
		{"root task", TaskStatusRecord{}, AgentTypeOrchestrator},
		{"subtask", TaskStatusRecord{ParentTaskID: "plan"}, AgentTypeAgent},
		{"resumed orchestrator", TaskStatusRecord{ParentTaskID: "plan", ResumedAfterSubtasksGroupID: "g1"}, AgentTypeOrchestrator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.AgentType())
		})
	}
}
