package flow

// FindAgentNode searches the flow depth-first for the agent with the given
// task instance ID.
//
// Search order: an agent checks itself then its next chain; a group searches
// each of its agents (and their next chains) before its own next; a branch
// searches each branch subtree before its own next. The first match wins.
func (f *Flow) FindAgentNode(taskInstanceID string) (NodeID, bool) {
	id := f.findAgent(f.Root, taskInstanceID)
	return id, id.Valid()
}

func (f *Flow) findAgent(id NodeID, taskInstanceID string) NodeID {
	if !f.contains(id) {
		return NoNode
	}

	n := &f.nodes[id]
	switch n.Kind {
	case KindAgent:
		if n.TaskInstanceID == taskInstanceID {
			return id
		}
	case KindGroup:
		for _, a := range n.Agents {
			if found := f.findAgent(a, taskInstanceID); found.Valid() {
				return found
			}
		}
	case KindBranch:
		for _, b := range n.Branches {
			if found := f.findAgent(b.Node, taskInstanceID); found.Valid() {
				return found
			}
		}
	}
	return f.findAgent(n.Next, taskInstanceID)
}

// FindBranchNode returns the branch node owning a branch with the given ID.
// The branch node itself is returned, not the matching branch entry.
func (f *Flow) FindBranchNode(branchID string) (NodeID, bool) {
	id := f.findBranch(f.Root, branchID)
	return id, id.Valid()
}

func (f *Flow) findBranch(id NodeID, branchID string) NodeID {
	if !f.contains(id) {
		return NoNode
	}

	n := &f.nodes[id]
	switch n.Kind {
	case KindGroup:
		// nested branches hang off the group's agents
		for _, a := range n.Agents {
			if found := f.findBranch(f.nodes[a].Next, branchID); found.Valid() {
				return found
			}
		}
	case KindBranch:
		for _, b := range n.Branches {
			if b.BranchID == branchID {
				return id
			}
			if found := f.findBranch(b.Node, branchID); found.Valid() {
				return found
			}
		}
	}
	return f.findBranch(n.Next, branchID)
}

// FindGroupNode returns the group with the given ID. An empty groupID never
// matches.
func (f *Flow) FindGroupNode(groupID string) (NodeID, bool) {
	if groupID == "" {
		return NoNode, false
	}
	id := f.findGroup(f.Root, groupID)
	return id, id.Valid()
}

func (f *Flow) findGroup(id NodeID, groupID string) NodeID {
	if !f.contains(id) {
		return NoNode
	}

	n := &f.nodes[id]
	switch n.Kind {
	case KindGroup:
		if n.GroupID == groupID {
			return id
		}
	case KindBranch:
		for _, b := range n.Branches {
			if found := f.findGroup(b.Node, groupID); found.Valid() {
				return found
			}
		}
	}
	return f.findGroup(n.Next, groupID)
}
