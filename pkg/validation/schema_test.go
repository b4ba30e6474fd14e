package validation

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const plannerSchema = `{
	"type": "object",
	"required": ["goal"],
	"properties": {
		"goal": {"type": "string", "minLength": 1},
		"maxSteps": {"type": "integer", "minimum": 1}
	}
}`

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name    string
		schema  string
		input   string
		wantErr bool
	}{
		{"valid", plannerSchema, `{"goal":"ship it","maxSteps":3}`, false},
		{"missing required", plannerSchema, `{"maxSteps":3}`, true},
		{"wrong type", plannerSchema, `{"goal":"x","maxSteps":"three"}`, true},
		{"empty input", plannerSchema, ``, true},
		{"no schema", ``, `{"anything":true}`, false},
		{"null schema", `null`, `{"anything":true}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInput([]byte(tt.schema), []byte(tt.input))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateInput_ReportsAllViolations(t *testing.T) {
	err := ValidateInput([]byte(plannerSchema), []byte(`{"maxSteps":0}`))

	var se *SchemaError
	require.True(t, errors.As(err, &se))
	assert.Len(t, se.Violations, 2)
}

func TestValidateInput_BadSchema(t *testing.T) {
	err := ValidateInput([]byte(`{"type":`), []byte(`{}`))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSchemaViolation)
}

func TestValidateFlowDocument(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			"agent chain",
			`{"correlationId":"c1","root":{"type":"agent","taskId":"t","taskInstanceId":"i","status":"completed",
				"next":{"type":"agent","taskId":"t","taskInstanceId":"j"}}}`,
			false,
		},
		{
			"group and branch",
			`{"correlationId":"c1","root":{"type":"group","groupId":"g","agents":[{"type":"agent","taskId":"t","taskInstanceId":"i"}],
				"next":{"type":"branch","branches":[{"branchId":"b","branch":{"type":"agent","taskId":"t","taskInstanceId":"j"}}]}}}`,
			false,
		},
		{"missing root", `{"correlationId":"c1"}`, true},
		{"unknown type", `{"correlationId":"c1","root":{"type":"loop"}}`, true},
		{"agent without instance", `{"correlationId":"c1","root":{"type":"agent","taskId":"t"}}`, true},
		{"bad status", `{"correlationId":"c1","root":{"type":"agent","taskId":"t","taskInstanceId":"i","status":"paused"}}`, true},
		{
			"group member is a group",
			`{"correlationId":"c1","root":{"type":"group","groupId":"g","agents":[{"type":"group","groupId":"h","agents":[]}]}}`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFlowDocument([]byte(tt.doc))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrSchemaViolation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFlowSchema(t *testing.T) {
	assert.Contains(t, string(FlowSchema()), `"correlationId"`)
}
