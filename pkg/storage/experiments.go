package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/galeview/pkg/broker"
)

// SaveExperiment keeps a playground experiment in the local database and
// returns its id. Experiments without an id get a fresh uuid.
func (r *SQLiteSnapshotRepository) SaveExperiment(ctx context.Context, exp *broker.Experiment) (string, error) {
	if exp == nil || exp.AgentID == "" {
		return "", fmt.Errorf("experiment needs an agent id")
	}
	if strings.TrimSpace(exp.Playground.PromptOverride) == "" {
		return "", fmt.Errorf("experiment prompt cannot be empty")
	}
	if len(exp.TaskInputData) > 0 && !json.Valid(exp.TaskInputData) {
		return "", fmt.Errorf("experiment input is not valid JSON")
	}
	if exp.ID == "" {
		exp.ID = uuid.NewString()
	}
	if exp.Date.IsZero() {
		exp.Date = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO experiments (id, agent_id, prompt_override, model_override, input_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			agent_id = excluded.agent_id,
			prompt_override = excluded.prompt_override,
			model_override = excluded.model_override,
			input_json = excluded.input_json,
			created_at = excluded.created_at`,
		exp.ID,
		exp.AgentID,
		exp.Playground.PromptOverride,
		nullString(exp.Playground.ModelOverride),
		nullString(string(exp.TaskInputData)),
		exp.Date.UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save experiment: %w", err)
	}
	return exp.ID, nil
}

// ListExperiments returns the experiments of agentID, newest first.
func (r *SQLiteSnapshotRepository) ListExperiments(ctx context.Context, agentID string) ([]broker.Experiment, error) {
	if agentID == "" {
		return nil, fmt.Errorf("agent ID cannot be empty")
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, agent_id, prompt_override, model_override, input_json, created_at
		FROM experiments
		WHERE agent_id = ?
		ORDER BY created_at DESC, id`, agentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query experiments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	experiments := make([]broker.Experiment, 0)
	for rows.Next() {
		var (
			exp          broker.Experiment
			model, input sql.NullString
		)
		if err := rows.Scan(&exp.ID, &exp.AgentID, &exp.Playground.PromptOverride, &model, &input, &exp.Date); err != nil {
			return nil, fmt.Errorf("failed to scan experiment: %w", err)
		}
		exp.Playground.ModelOverride = model.String
		if input.Valid {
			exp.TaskInputData = json.RawMessage(input.String)
		}
		experiments = append(experiments, exp)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating experiments: %w", err)
	}

	return experiments, nil
}
