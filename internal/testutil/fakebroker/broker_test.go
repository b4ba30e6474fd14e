package fakebroker

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
)

const examplesDir = "../../../examples/broker"

func newClient(t *testing.T, b *Broker, token string) *broker.Client {
	t.Helper()
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)

	var tokens broker.TokenSource
	if token != "" {
		tokens = broker.StaticToken(token)
	}
	client, err := broker.NewClient(broker.Config{BaseURL: ts.URL, TokenSource: tokens})
	require.NoError(t, err)
	return client
}

func TestLoadDir_Examples(t *testing.T) {
	b := New("", nil)
	require.NoError(t, b.LoadDir(examplesDir))
	client := newClient(t, b, "")
	ctx := context.Background()

	agents, err := client.ListAgents(ctx)
	require.NoError(t, err)
	assert.Len(t, agents, 4)

	planner, err := client.GetAgent(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, "Planner", planner.Name)
	assert.NotEmpty(t, planner.InputSchema)

	roots, err := client.ListRootTasks(ctx)
	require.NoError(t, err)
	require.Len(t, roots, 1)
	assert.Equal(t, "plan-1", roots[0].TaskInstanceID)

	tasks, err := client.ListTasksByCorrelationID(ctx, "demo-1")
	require.NoError(t, err)
	assert.Len(t, tasks, 5)

	f, err := client.GetExecutionGraph(ctx, "demo-1")
	require.NoError(t, err)
	id, ok := f.FindGroupNode("reviewers")
	require.True(t, ok)
	assert.Equal(t, flow.KindGroup, f.Kind(id))
}

func TestLoadDir_MissingFilesAreSkipped(t *testing.T) {
	b := New("", nil)
	require.NoError(t, b.LoadDir(t.TempDir()))

	agents, err := newClient(t, b, "").ListAgents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, agents)
}

func TestLoadDir_InvalidFlow(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, FlowsDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, FlowsDir, "bad.json"),
		[]byte(`{"correlationId":"x","root":{"type":"nope"}}`), 0644))

	err := New("", nil).LoadDir(dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, flow.ErrUnknownNodeType)
}

func TestBroker_NotFound(t *testing.T) {
	client := newClient(t, New("", nil), "")
	ctx := context.Background()

	_, err := client.GetAgent(ctx, "missing")
	assert.ErrorIs(t, err, broker.ErrNotFound)

	_, err = client.GetTaskExecutionRecord(ctx, "missing")
	assert.ErrorIs(t, err, broker.ErrNotFound)

	_, err = client.GetExecutionGraph(ctx, "missing")
	assert.ErrorIs(t, err, broker.ErrNotFound)
}

func TestBroker_Token(t *testing.T) {
	b := New("secret", nil)
	ctx := context.Background()

	_, err := newClient(t, b, "").ListAgents(ctx)
	var statusErr *broker.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 401, statusErr.StatusCode)

	_, err = newClient(t, b, "secret").ListAgents(ctx)
	assert.NoError(t, err)
}

func TestBroker_PostTask(t *testing.T) {
	b := New("", nil)
	client := newClient(t, b, "")
	ctx := context.Background()

	resp, err := client.PostTask(ctx, "plan", json.RawMessage(`{"topic":"wind"}`))
	require.NoError(t, err)

	var started struct {
		CorrelationID  string `json:"correlationId"`
		TaskInstanceID string `json:"taskInstanceId"`
	}
	require.NoError(t, json.Unmarshal(resp, &started))
	require.NotEmpty(t, started.CorrelationID)

	posted := b.Posted()
	require.Len(t, posted, 1)
	assert.Equal(t, "plan", posted[0].TaskID)
	assert.JSONEq(t, `{"topic":"wind"}`, string(posted[0].Input))

	task, err := client.GetTaskExecutionRecord(ctx, started.TaskInstanceID)
	require.NoError(t, err)
	assert.Equal(t, flow.StatusStarted, task.Status)
	assert.True(t, task.IsRoot())

	f, err := client.GetExecutionGraph(ctx, started.CorrelationID)
	require.NoError(t, err)
	root, ok := f.Node(f.Root)
	require.True(t, ok)
	assert.Equal(t, started.TaskInstanceID, root.TaskInstanceID)
}

func TestBroker_Playground(t *testing.T) {
	b := New("", nil)
	require.NoError(t, b.LoadDir(examplesDir))
	client := newClient(t, b, "")
	ctx := context.Background()

	planner, err := client.GetAgent(ctx, "plan")
	require.NoError(t, err)
	assert.Equal(t, client.BaseURL(), planner.Endpoint.BaseURL, "agents without a base URL are served by the broker")

	info, err := client.GetAgentInfo(ctx, planner)
	require.NoError(t, err)
	assert.Contains(t, info.PromptTemplate, "{topic}")
	assert.True(t, info.AllowsModel("claude-haiku"))

	run, err := client.SendPrompt(ctx, planner,
		broker.PlaygroundSettings{PromptOverride: "List {topic}", ModelOverride: "claude-haiku"},
		json.RawMessage(`{"topic":"wind"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"List {topic}","model":"claude-haiku"}`, jsonField(t, run.Response, "taskOutput"))

	runs := b.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, run.CorrelationID, runs[0].CorrelationID)
	assert.JSONEq(t, `{"topic":"wind"}`, string(runs[0].Input))

	_, err = client.SendPrompt(ctx, planner, broker.PlaygroundSettings{PromptOverride: "x", ModelOverride: "other"}, nil)
	var statusErr *broker.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 400, statusErr.StatusCode)

	writer, err := client.GetAgent(ctx, "write")
	require.NoError(t, err)
	info, err = client.GetAgentInfo(ctx, writer)
	require.NoError(t, err)
	assert.Equal(t, "Writer", info.AgentName)
	assert.Empty(t, info.AllowedModels)

	merger, err := client.GetAgent(ctx, "merge")
	require.NoError(t, err)
	assert.Equal(t, "http://merger:9000", merger.Endpoint.BaseURL)
}

func TestBroker_Experiments(t *testing.T) {
	b := New("", nil)
	ts := httptest.NewServer(b.Handler())
	t.Cleanup(ts.Close)
	experiments, err := broker.NewExperimentClient(broker.Config{BaseURL: ts.URL})
	require.NoError(t, err)
	ctx := context.Background()

	id, err := experiments.SaveExperiment(ctx, &broker.Experiment{
		AgentID:    "agent-planner",
		Playground: broker.PlaygroundSettings{PromptOverride: "p"},
	})
	require.NoError(t, err)

	list, err := experiments.ListExperiments(ctx, "agent-planner")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)

	list, err = experiments.ListExperiments(ctx, "agent-writer")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func jsonField(t *testing.T, data []byte, key string) string {
	t.Helper()
	var doc map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &doc))
	return string(doc[key])
}
