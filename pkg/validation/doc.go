// Package validation checks user-provided input before it reaches the broker
// or the layout engine.
//
// # Identifiers
//
// Correlation ids, task ids and task instance ids end up in URL paths and
// SQL parameters. ValidateIdentifier restricts them to identifier characters
// plus '.' and ':' and a bounded length:
//
//	if err := validation.ValidateIdentifier(validation.KindCorrelationID, cid); err != nil {
//	    return err
//	}
//
// # Task input
//
// ValidateInput checks a task input document against the JSON Schema an agent
// publishes in the catalog, so launch failures are caught locally:
//
//	if err := validation.ValidateInput(agent.InputSchema, input); err != nil {
//	    return fmt.Errorf("invalid input for %s: %w", agent.TaskID, err)
//	}
//
// # Flow documents
//
// ValidateFlowDocument checks a flow wire document against the embedded flow
// schema and reports every problem at once, where flow.Unmarshal stops at the
// first one.
package validation
