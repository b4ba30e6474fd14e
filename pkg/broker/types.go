package broker

import (
	"encoding/json"
	"time"

	"github.com/dshills/galeview/pkg/flow"
)

// AgentType classifies a task record for display
type AgentType string

const (
	AgentTypeOrchestrator AgentType = "orchestrator"
	AgentTypeAgent        AgentType = "agent"
)

// StopReason tells why a task execution stopped
type StopReason string

const (
	StopReasonCompleted StopReason = "completed"
	StopReasonFailed    StopReason = "failed"
	// StopReasonSubtasks means the task paused to wait for a subtask group
	StopReasonSubtasks StopReason = "subtasks"
)

// Endpoint is where an agent is reachable
type Endpoint struct {
	BaseURL       string `json:"baseURL"`
	ExecutionPath string `json:"executionPath"`
	InfoPath      string `json:"infoPath"`
}

// AgentDefinition is a catalog entry of the broker
type AgentDefinition struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	// TaskID identifies the type of task the agent executes
	TaskID       string          `json:"taskId"`
	InputSchema  json.RawMessage `json:"inputSchema,omitempty"`
	OutputSchema json.RawMessage `json:"outputSchema,omitempty"`
	Endpoint     Endpoint        `json:"endpoint"`
}

// TaskStatusRecord is the broker's record of one task execution
type TaskStatusRecord struct {
	CorrelationID   string      `json:"correlationId"`
	TaskID          string      `json:"taskId"`
	TaskInstanceID  string      `json:"taskInstanceId"`
	AgentName       string      `json:"agentName,omitempty"`
	StartedAt       time.Time   `json:"startedAt"`
	StoppedAt       *time.Time  `json:"stoppedAt,omitempty"`
	Status          flow.Status `json:"status"`
	StopReason      StopReason  `json:"stopReason,omitempty"`
	ExecutionTimeMs int64       `json:"executionTimeMs,omitempty"`

	ParentTaskID                string `json:"parentTaskId,omitempty"`
	ParentTaskInstanceID        string `json:"parentTaskInstanceId,omitempty"`
	ResumedAfterSubtasksGroupID string `json:"resumedAfterSubtasksGroupId,omitempty"`
	SubtaskGroupID              string `json:"subtaskGroupId,omitempty"`

	TaskOutput json.RawMessage `json:"taskOutput,omitempty"`
	TaskInput  json.RawMessage `json:"taskInput,omitempty"`
}

// AgentType reports whether the record belongs to an orchestrator: a root task
// or a task resumed after its subtask group finished.
func (r TaskStatusRecord) AgentType() AgentType {
	if r.ResumedAfterSubtasksGroupID != "" || r.ParentTaskID == "" {
		return AgentTypeOrchestrator
	}
	return AgentTypeAgent
}

// IsRoot reports whether the task has no parent task
func (r TaskStatusRecord) IsRoot() bool {
	return r.ParentTaskID == ""
}

// Duration returns the execution time of the task. Running tasks report zero.
func (r TaskStatusRecord) Duration() time.Duration {
	return time.Duration(r.ExecutionTimeMs) * time.Millisecond
}

type agentsResponse struct {
	Agents []AgentDefinition `json:"agents"`
}

type agentResponse struct {
	Agent *AgentDefinition `json:"agent"`
}

type tasksResponse struct {
	Tasks []TaskStatusRecord `json:"tasks"`
}

type taskResponse struct {
	Task *TaskStatusRecord `json:"task"`
}

type startCommand struct {
	Command string `json:"command"`
}

type postTaskRequest struct {
	Command       startCommand    `json:"command"`
	TaskID        string          `json:"taskId"`
	TaskInputData json.RawMessage `json:"taskInputData"`
}
