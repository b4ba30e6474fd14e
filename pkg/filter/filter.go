// Package filter selects task status records with boolean expressions such as
//
//	status == "failed" && executionTimeMs > 1000
//
// Expressions are compiled with github.com/expr-lang/expr against the fields
// listed in Variables and run sandboxed with a timeout.
package filter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/tidwall/gjson"

	"github.com/dshills/galeview/pkg/broker"
)

// DefaultTimeout bounds a single evaluation when the context has no deadline
const DefaultTimeout = 5 * time.Second

// Variables lists the names a filter expression can reference
var Variables = []string{
	"correlationId", "taskId", "taskInstanceId", "agentName", "agentType",
	"status", "stopReason", "executionTimeMs", "startedAt", "stoppedAt",
	"parentTaskId", "parentTaskInstanceId", "resumedAfterSubtasksGroupId",
	"subtaskGroupId", "isRoot", "taskInput", "taskOutput",
}

// Env exposes a task record to expressions
func Env(r broker.TaskStatusRecord) map[string]any {
	var stoppedAt any
	if r.StoppedAt != nil {
		stoppedAt = *r.StoppedAt
	}
	return map[string]any{
		"correlationId":               r.CorrelationID,
		"taskId":                      r.TaskID,
		"taskInstanceId":              r.TaskInstanceID,
		"agentName":                   r.AgentName,
		"agentType":                   string(r.AgentType()),
		"status":                      string(r.Status),
		"stopReason":                  string(r.StopReason),
		"executionTimeMs":             r.ExecutionTimeMs,
		"startedAt":                   r.StartedAt,
		"stoppedAt":                   stoppedAt,
		"parentTaskId":                r.ParentTaskID,
		"parentTaskInstanceId":        r.ParentTaskInstanceID,
		"resumedAfterSubtasksGroupId": r.ResumedAfterSubtasksGroupID,
		"subtaskGroupId":              r.SubtaskGroupID,
		"isRoot":                      r.IsRoot(),
		"taskInput":                   rawValue(r.TaskInput),
		"taskOutput":                  rawValue(r.TaskOutput),
	}
}

func rawValue(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return gjson.ParseBytes(raw).Value()
}

// Evaluator compiles and caches filter expressions. It is safe for
// concurrent use.
type Evaluator struct {
	mu           sync.Mutex
	programCache map[string]*vm.Program
}

// NewEvaluator creates an evaluator with an empty program cache
func NewEvaluator() *Evaluator {
	return &Evaluator{
		programCache: make(map[string]*vm.Program),
	}
}

// Compile checks an expression without running it
func (e *Evaluator) Compile(expression string) error {
	_, err := e.program(expression)
	return err
}

// Match reports whether r satisfies expression
func (e *Evaluator) Match(ctx context.Context, expression string, r broker.TaskStatusRecord) (bool, error) {
	select {
	case <-ctx.Done():
		return false, ctx.Err()
	default:
	}

	program, err := e.program(expression)
	if err != nil {
		return false, err
	}

	return run(ctx, program, Env(r))
}

// Apply returns the records matching expression, in order. An empty
// expression matches everything.
func (e *Evaluator) Apply(ctx context.Context, expression string, records []broker.TaskStatusRecord) ([]broker.TaskStatusRecord, error) {
	if strings.TrimSpace(expression) == "" {
		return records, nil
	}

	program, err := e.program(expression)
	if err != nil {
		return nil, err
	}

	out := make([]broker.TaskStatusRecord, 0, len(records))
	for _, r := range records {
		ok, err := run(ctx, program, Env(r))
		if err != nil {
			return nil, fmt.Errorf("task %s: %w", r.TaskInstanceID, err)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func run(ctx context.Context, program *vm.Program, env map[string]any) (bool, error) {
	resultChan := make(chan any, 1)
	errChan := make(chan error, 1)

	go func() {
		result, err := vm.Run(program, env)
		if err != nil {
			errChan <- fmt.Errorf("%w: %v", ErrInvalidExpression, err)
			return
		}
		resultChan <- result
	}()

	timeout := DefaultTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case result := <-resultChan:
		matched, ok := result.(bool)
		if !ok {
			return false, fmt.Errorf("%w: got %T", ErrNotBoolean, result)
		}
		return matched, nil
	case err := <-errChan:
		return false, err
	case <-time.After(timeout):
		return false, ErrEvaluationTimeout
	}
}

func (e *Evaluator) program(expression string) (*vm.Program, error) {
	if strings.TrimSpace(expression) == "" {
		return nil, fmt.Errorf("%w: empty expression", ErrInvalidExpression)
	}
	if err := validateExpression(expression); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if program, ok := e.programCache[expression]; ok {
		return program, nil
	}

	program, err := expr.Compile(expression,
		expr.Env(Env(broker.TaskStatusRecord{})),
		expr.AsBool(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "unknown name") || strings.Contains(err.Error(), "undefined") {
			return nil, fmt.Errorf("%w: %v", ErrUndefinedVariable, err)
		}
		if strings.Contains(err.Error(), "expected bool") {
			return nil, fmt.Errorf("%w: %v", ErrNotBoolean, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	e.programCache[expression] = program
	return program, nil
}

// validateExpression checks for unsafe operations
func validateExpression(expression string) error {
	unsafePatterns := []string{
		"os.",
		"exec.",
		"http.",
		"net.",
		"syscall.",
		"unsafe.",
		"__proto__",
		"ReadFile",
		"WriteFile",
		"Command",
	}

	lowerExpr := strings.ToLower(expression)
	for _, pattern := range unsafePatterns {
		if strings.Contains(lowerExpr, strings.ToLower(pattern)) {
			return fmt.Errorf("%w: %q", ErrUnsafeOperation, pattern)
		}
	}
	return nil
}

// IsExpressionError reports whether err comes from a malformed or unsafe
// expression rather than from evaluation
func IsExpressionError(err error) bool {
	return errors.Is(err, ErrInvalidExpression) ||
		errors.Is(err, ErrUndefinedVariable) ||
		errors.Is(err, ErrUnsafeOperation) ||
		errors.Is(err, ErrNotBoolean)
}
