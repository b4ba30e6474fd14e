package flow

import "fmt"

// Flow is one root-to-leaves execution trace, identified by its correlation ID.
// It owns every node reachable from Root.
type Flow struct {
	CorrelationID string
	Root          NodeID

	nodes []Node
}

// New creates an empty flow for the given correlation ID
func New(correlationID string) *Flow {
	return &Flow{
		CorrelationID: correlationID,
		Root:          NoNode,
		nodes:         make([]Node, 0),
	}
}

// Len returns the number of nodes in the arena
func (f *Flow) Len() int {
	return len(f.nodes)
}

// Node returns a copy of the node with the given ID
func (f *Flow) Node(id NodeID) (Node, bool) {
	if !f.contains(id) {
		return Node{}, false
	}
	return f.nodes[id], true
}

// Kind returns the kind of the node, or "" when id is not in the flow
func (f *Flow) Kind(id NodeID) Kind {
	if !f.contains(id) {
		return ""
	}
	return f.nodes[id].Kind
}

// Next returns the node following id, or NoNode
func (f *Flow) Next(id NodeID) NodeID {
	if !f.contains(id) {
		return NoNode
	}
	return f.nodes[id].Next
}

// Prev returns the logical predecessor of id, or NoNode
func (f *Flow) Prev(id NodeID) NodeID {
	if !f.contains(id) {
		return NoNode
	}
	return f.nodes[id].Prev
}

func (f *Flow) contains(id NodeID) bool {
	return id.Valid() && int(id) < len(f.nodes)
}

func (f *Flow) add(n Node) NodeID {
	n.Next = NoNode
	n.Prev = NoNode
	f.nodes = append(f.nodes, n)
	return NodeID(len(f.nodes) - 1)
}

// AddAgent appends an agent node. A missing status defaults to started.
func (f *Flow) AddAgent(spec AgentSpec) NodeID {
	status := spec.Status
	if status == "" {
		status = StatusStarted
	}
	return f.add(Node{
		Kind:           KindAgent,
		Name:           spec.Name,
		TaskID:         spec.TaskID,
		TaskInstanceID: spec.TaskInstanceID,
		Status:         status,
	})
}

// AddGroup appends a group node containing the given agents and points every
// agent's Prev at the new group.
func (f *Flow) AddGroup(spec GroupSpec, agents []NodeID) (NodeID, error) {
	for _, a := range agents {
		if f.Kind(a) != KindAgent {
			return NoNode, fmt.Errorf("%w: group %q member %d is not an agent", ErrInvalidLink, spec.GroupID, a)
		}
	}

	members := make([]NodeID, len(agents))
	copy(members, agents)

	id := f.add(Node{
		Kind:    KindGroup,
		Name:    spec.Name,
		GroupID: spec.GroupID,
		Agents:  members,
	})
	for _, a := range members {
		f.nodes[a].Prev = id
	}
	return id, nil
}

// AddBranch appends a branch node and points every branch entry's Prev at it
func (f *Flow) AddBranch(name string, branches []Branch) (NodeID, error) {
	for _, b := range branches {
		if !f.contains(b.Node) {
			return NoNode, fmt.Errorf("%w: branch %q refers to unknown node %d", ErrInvalidLink, b.BranchID, b.Node)
		}
	}

	entries := make([]Branch, len(branches))
	copy(entries, branches)

	id := f.add(Node{
		Kind:     KindBranch,
		Name:     name,
		Branches: entries,
	})
	for _, b := range entries {
		f.nodes[b.Node].Prev = id
	}
	return id, nil
}

// SetNext links from -> to. When to is a node its Prev becomes from, and a
// node from previously linked to no longer points back at it.
// Passing NoNode clears the forward link.
func (f *Flow) SetNext(from, to NodeID) error {
	if !f.contains(from) {
		return fmt.Errorf("%w: unknown node %d", ErrInvalidLink, from)
	}
	if to != NoNode && !f.contains(to) {
		return fmt.Errorf("%w: unknown next node %d", ErrInvalidLink, to)
	}
	if to == from {
		return fmt.Errorf("%w: node %d cannot follow itself", ErrInvalidLink, from)
	}

	if old := f.nodes[from].Next; old.Valid() && old != to && f.nodes[old].Prev == from {
		f.nodes[old].Prev = NoNode
	}
	f.nodes[from].Next = to
	if to.Valid() {
		f.nodes[to].Prev = from
	}
	return nil
}

// SetRoot sets the node where execution begins
func (f *Flow) SetRoot(id NodeID) error {
	if !f.contains(id) {
		return fmt.Errorf("%w: unknown root node %d", ErrInvalidLink, id)
	}
	f.Root = id
	return nil
}

// ParentOf returns the nearest agent or group ancestor of id, walking Prev
// and skipping over branch nodes. Branches never act as a parent.
func (f *Flow) ParentOf(id NodeID) (NodeID, bool) {
	p := f.Prev(id)
	for p.Valid() && f.nodes[p].Kind == KindBranch {
		p = f.nodes[p].Prev
	}
	if !p.Valid() {
		return NoNode, false
	}
	return p, true
}

// BranchIndex returns the position of id among its parent branch's entries.
// It returns 0 when id's predecessor is not a branch.
func (f *Flow) BranchIndex(id NodeID) int {
	p := f.Prev(id)
	if f.Kind(p) != KindBranch {
		return 0
	}
	for i, b := range f.nodes[p].Branches {
		if b.Node == id {
			return i
		}
	}
	return 0
}
