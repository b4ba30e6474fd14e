package filter

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
)

func testRecords() []broker.TaskStatusRecord {
	started := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	stopped := started.Add(3 * time.Second)
	return []broker.TaskStatusRecord{
		{
			CorrelationID: "c1", TaskID: "plan", TaskInstanceID: "i1", AgentName: "Planner",
			Status: flow.StatusCompleted, StopReason: broker.StopReasonSubtasks,
			StartedAt: started, StoppedAt: &stopped, ExecutionTimeMs: 3000,
		},
		{
			CorrelationID: "c1", TaskID: "write", TaskInstanceID: "i2", AgentName: "Writer",
			Status: flow.StatusFailed, StartedAt: started, ExecutionTimeMs: 1500,
			ParentTaskID: "plan", SubtaskGroupID: "g1",
			TaskOutput: json.RawMessage(`{"error":"timeout","retries":2}`),
		},
		{
			CorrelationID: "c1", TaskID: "write", TaskInstanceID: "i3", AgentName: "Writer",
			Status: flow.StatusStarted, StartedAt: started,
			ParentTaskID: "plan", SubtaskGroupID: "g1",
		},
	}
}

func TestEvaluator_Apply(t *testing.T) {
	e := NewEvaluator()
	ctx := context.Background()

	tests := []struct {
		name string
		expr string
		want []string
	}{
		{"empty matches all", "", []string{"i1", "i2", "i3"}},
		{"status", `status == "failed"`, []string{"i2"}},
		{"combined", `status != "started" && executionTimeMs > 1000`, []string{"i1", "i2"}},
		{"agent type", `agentType == "orchestrator"`, []string{"i1"}},
		{"root", `isRoot`, []string{"i1"}},
		{"subtask group", `subtaskGroupId == "g1" && !(status in ["completed"])`, []string{"i2", "i3"}},
		{"output field", `taskOutput != nil && taskOutput.retries >= 2`, []string{"i2"}},
		{"stopped", `stoppedAt != nil`, []string{"i1"}},
		{"contains", `agentName contains "Writ"`, []string{"i2", "i3"}},
		{"none", `taskId == "review"`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Apply(ctx, tt.expr, testRecords())
			require.NoError(t, err)
			ids := make([]string, 0, len(got))
			for _, r := range got {
				ids = append(ids, r.TaskInstanceID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		expr string
		want error
	}{
		{"syntax", `status ==`, ErrInvalidExpression},
		{"unknown variable", `color == "red"`, ErrUndefinedVariable},
		{"not boolean", `executionTimeMs + 1`, ErrNotBoolean},
		{"unsafe", `os.Getenv("HOME") == ""`, ErrUnsafeOperation},
		{"blank", `   `, ErrInvalidExpression},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Compile(tt.expr)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsExpressionError(err))
		})
	}
}

func TestEvaluator_Match(t *testing.T) {
	e := NewEvaluator()
	records := testRecords()

	ok, err := e.Match(context.Background(), `status == "completed"`, records[0])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = e.Match(context.Background(), `status == "completed"`, records[1])
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Len(t, e.programCache, 1, "compiled programs are cached")
}

func TestEvaluator_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEvaluator().Match(ctx, `isRoot`, testRecords()[0])
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEnv_CoversVariables(t *testing.T) {
	env := Env(testRecords()[1])
	assert.Len(t, env, len(Variables))
	for _, name := range Variables {
		assert.Contains(t, env, name)
	}
	assert.Equal(t, "agent", env["agentType"])
	assert.Equal(t, int64(1500), env["executionTimeMs"])
	assert.Nil(t, env["stoppedAt"])
}
