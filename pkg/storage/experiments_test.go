package storage

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/galeview/pkg/broker"
)

func TestExperiments_SaveAndList(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	older := &broker.Experiment{
		AgentID:       "agent-planner",
		Date:          base,
		TaskInputData: json.RawMessage(`{"topic":"tides"}`),
		Playground:    broker.PlaygroundSettings{PromptOverride: "first"},
	}
	newer := &broker.Experiment{
		AgentID:    "agent-planner",
		Date:       base.Add(time.Hour),
		Playground: broker.PlaygroundSettings{PromptOverride: "second", ModelOverride: "gpt-x"},
	}
	other := &broker.Experiment{
		AgentID:    "agent-writer",
		Playground: broker.PlaygroundSettings{PromptOverride: "draft"},
	}

	for _, exp := range []*broker.Experiment{older, newer, other} {
		id, err := repo.SaveExperiment(ctx, exp)
		require.NoError(t, err)
		assert.NotEmpty(t, id)
		assert.Equal(t, id, exp.ID)
	}
	assert.False(t, other.Date.IsZero())

	experiments, err := repo.ListExperiments(ctx, "agent-planner")
	require.NoError(t, err)
	require.Len(t, experiments, 2)

	assert.Equal(t, newer.ID, experiments[0].ID)
	assert.Equal(t, "second", experiments[0].Playground.PromptOverride)
	assert.Equal(t, "gpt-x", experiments[0].Playground.ModelOverride)
	assert.Empty(t, experiments[0].TaskInputData)
	assert.True(t, experiments[0].Date.Equal(base.Add(time.Hour)))

	assert.Equal(t, older.ID, experiments[1].ID)
	assert.JSONEq(t, `{"topic":"tides"}`, string(experiments[1].TaskInputData))
	assert.Empty(t, experiments[1].Playground.ModelOverride)

	none, err := repo.ListExperiments(ctx, "agent-nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestExperiments_SaveReplacesExistingID(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	exp := &broker.Experiment{ID: "exp-1", AgentID: "a", Playground: broker.PlaygroundSettings{PromptOverride: "v1"}}
	_, err := repo.SaveExperiment(ctx, exp)
	require.NoError(t, err)

	exp.Playground.PromptOverride = "v2"
	_, err = repo.SaveExperiment(ctx, exp)
	require.NoError(t, err)

	experiments, err := repo.ListExperiments(ctx, "a")
	require.NoError(t, err)
	require.Len(t, experiments, 1)
	assert.Equal(t, "v2", experiments[0].Playground.PromptOverride)
}

func TestExperiments_Errors(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	tests := []struct {
		name string
		exp  *broker.Experiment
	}{
		{"nil", nil},
		{"no agent", &broker.Experiment{Playground: broker.PlaygroundSettings{PromptOverride: "p"}}},
		{"blank prompt", &broker.Experiment{AgentID: "a", Playground: broker.PlaygroundSettings{PromptOverride: " "}}},
		{"bad input", &broker.Experiment{AgentID: "a", TaskInputData: json.RawMessage(`{`),
			Playground: broker.PlaygroundSettings{PromptOverride: "p"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := repo.SaveExperiment(ctx, tt.exp)
			assert.Error(t, err)
		})
	}

	_, err := repo.ListExperiments(ctx, "")
	assert.Error(t, err)
}
