// Package errors carries the context of a failed operation on an execution
// flow: which flow, which node and when.
package errors

import (
	"fmt"
	"log/slog"
	"time"
)

// OperationalError represents enhanced error information for debugging.
//
// It wraps errors with the correlation ID of the execution and, when known,
// the node being processed.
type OperationalError struct {
	Operation     string         // What operation was being performed
	CorrelationID string         // Which execution
	NodeID        string         // Which node (if applicable)
	Timestamp     time.Time      // When error occurred
	Attributes    map[string]any // Additional context (optional)
	Cause         error          // Underlying error
}

// NewOperationalError creates an OperationalError wrapping an error.
//
// Returns nil if cause is nil (no error to wrap).
//
// Example:
//
//	if err != nil {
//	    return NewOperationalError("fetching flow", correlationID, "", err)
//	}
func NewOperationalError(operation, correlationID, nodeID string, cause error) *OperationalError {
	return NewOperationalErrorWithAttrs(operation, correlationID, nodeID, cause, nil)
}

// NewOperationalErrorWithAttrs creates an OperationalError with additional attributes.
//
// Returns nil if cause is nil (no error to wrap).
func NewOperationalErrorWithAttrs(operation, correlationID, nodeID string, cause error, attrs map[string]any) *OperationalError {
	if cause == nil {
		return nil
	}

	return &OperationalError{
		Operation:     operation,
		CorrelationID: correlationID,
		NodeID:        nodeID,
		Timestamp:     time.Now(),
		Attributes:    attrs,
		Cause:         cause,
	}
}

// Error implements the error interface.
//
// Format: "operation: correlation={id} node={id}: {cause}"
// If node ID is empty, it's omitted from the message.
func (e *OperationalError) Error() string {
	if e == nil {
		return "<nil OperationalError>"
	}

	if e.NodeID != "" {
		return fmt.Sprintf("%s: correlation=%s node=%s: %v",
			e.Operation,
			e.CorrelationID,
			e.NodeID,
			e.Cause)
	}
	return fmt.Sprintf("%s: correlation=%s: %v",
		e.Operation,
		e.CorrelationID,
		e.Cause)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OperationalError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// LogValue implements slog.LogValuer so the error logs as a group.
func (e *OperationalError) LogValue() slog.Value {
	if e == nil {
		return slog.Value{}
	}

	attrs := []slog.Attr{
		slog.String("operation", e.Operation),
		slog.String("correlation_id", e.CorrelationID),
		slog.Time("timestamp", e.Timestamp),
		slog.String("cause", fmt.Sprint(e.Cause)),
	}
	if e.NodeID != "" {
		attrs = append(attrs, slog.String("node_id", e.NodeID))
	}
	for k, v := range e.Attributes {
		attrs = append(attrs, slog.Any(k, v))
	}
	return slog.GroupValue(attrs...)
}
