package validation

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// ErrSchemaViolation is returned when a document does not satisfy a schema
var ErrSchemaViolation = errors.New("schema validation failed")

// SchemaError lists every violation found in a document
type SchemaError struct {
	Violations []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %s", ErrSchemaViolation, strings.Join(e.Violations, "; "))
}

// Unwrap lets errors.Is match ErrSchemaViolation
func (e *SchemaError) Unwrap() error {
	return ErrSchemaViolation
}

//go:embed flow.schema.json
var flowSchemaJSON []byte

var (
	flowSchemaOnce sync.Once
	flowSchema     *gojsonschema.Schema
	flowSchemaErr  error
)

// FlowSchema returns the JSON Schema of the flow wire format
func FlowSchema() []byte {
	return flowSchemaJSON
}

// ValidateInput validates a task input document against an agent's input
// schema. An empty schema accepts any input.
func ValidateInput(schema, input []byte) error {
	if len(strings.TrimSpace(string(schema))) == 0 || string(schema) == "null" {
		return nil
	}
	if len(input) == 0 {
		input = []byte("{}")
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(input),
	)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	return resultError(result)
}

// ValidateFlowDocument checks a flow wire document against the flow schema
func ValidateFlowDocument(data []byte) error {
	flowSchemaOnce.Do(func() {
		flowSchema, flowSchemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(flowSchemaJSON))
	})
	if flowSchemaErr != nil {
		return fmt.Errorf("failed to load flow schema: %w", flowSchemaErr)
	}

	result, err := flowSchema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}
	return resultError(result)
}

func resultError(result *gojsonschema.Result) error {
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s", desc.Field(), desc.Description()))
	}
	return &SchemaError{Violations: violations}
}
