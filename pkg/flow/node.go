// Package flow models an agentic execution trace as a linked structure of
// agent, group and branch nodes.
//
// All nodes of a Flow live in a single arena owned by the Flow. Links between
// nodes (Next, Prev, group membership, branch entries) are NodeID indexes
// into that arena, so a back-reference never owns the node it points to.
package flow

// Kind discriminates the node variants
type Kind string

const (
	KindAgent  Kind = "agent"
	KindGroup  Kind = "group"
	KindBranch Kind = "branch"
)

// IsValid reports whether k is one of the known node kinds
func (k Kind) IsValid() bool {
	switch k {
	case KindAgent, KindGroup, KindBranch:
		return true
	}
	return false
}

// Status is the execution status of an agent node
type Status string

const (
	StatusStarted   Status = "started"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// IsValid reports whether s is a known status
func (s Status) IsValid() bool {
	switch s {
	case StatusStarted, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether the status ends the agent's execution
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// NodeID indexes a node in its Flow's arena
type NodeID int

// NoNode is the NodeID meaning "no node"
const NoNode NodeID = -1

// Valid reports whether id refers to a node
func (id NodeID) Valid() bool {
	return id >= 0
}

// Branch is one parallel path of a branch node
type Branch struct {
	BranchID string
	Node     NodeID
}

// Node is a single agent, group or branch in the flow.
//
// Only the fields of the node's Kind are meaningful:
//   - agent: TaskID, TaskInstanceID, Status
//   - group: GroupID, Agents
//   - branch: Branches
type Node struct {
	Kind Kind
	Name string

	// Next is the node that follows this one in execution order.
	Next NodeID
	// Prev is the logical predecessor. It is only used for lookups and is
	// never serialized.
	Prev NodeID

	TaskID         string
	TaskInstanceID string
	Status         Status

	GroupID string
	Agents  []NodeID

	Branches []Branch
}

// AgentSpec holds the fields needed to create an agent node
type AgentSpec struct {
	TaskID         string
	TaskInstanceID string
	Status         Status
	Name           string
}

// GroupSpec holds the fields needed to create a group node
type GroupSpec struct {
	GroupID string
	Name    string
}
