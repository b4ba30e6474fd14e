package filter

import "errors"

var (
	ErrUnsafeOperation   = errors.New("unsafe operation attempted")
	ErrEvaluationTimeout = errors.New("expression evaluation timed out")
	ErrInvalidExpression = errors.New("invalid expression syntax")
	ErrUndefinedVariable = errors.New("undefined variable")
	// ErrNotBoolean is returned when a filter does not yield true or false
	ErrNotBoolean = errors.New("filter expression must evaluate to a boolean")
)
