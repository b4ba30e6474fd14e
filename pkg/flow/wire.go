package flow

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
)

// Wire field names shared by the broker and this package
const (
	fieldType           = "type"
	fieldName           = "name"
	fieldNext           = "next"
	fieldTaskID         = "taskId"
	fieldTaskInstanceID = "taskInstanceId"
	fieldStatus         = "status"
	fieldGroupID        = "groupId"
	fieldAgents         = "agents"
	fieldBranches       = "branches"
	fieldBranchID       = "branchId"
	fieldBranch         = "branch"
	fieldCorrelationID  = "correlationId"
	fieldRoot           = "root"
)

type wireFlow struct {
	CorrelationID string `json:"correlationId"`
	Root          any    `json:"root"`
}

type wireAgent struct {
	Type           Kind   `json:"type"`
	TaskID         string `json:"taskId"`
	TaskInstanceID string `json:"taskInstanceId"`
	Status         Status `json:"status"`
	Name           string `json:"name,omitempty"`
	Next           any    `json:"next,omitempty"`
}

type wireGroup struct {
	Type    Kind   `json:"type"`
	GroupID string `json:"groupId"`
	Agents  []any  `json:"agents"`
	Name    string `json:"name,omitempty"`
	Next    any    `json:"next,omitempty"`
}

type wireBranchEntry struct {
	BranchID string `json:"branchId"`
	Branch   any    `json:"branch"`
}

type wireBranch struct {
	Type     Kind              `json:"type"`
	Branches []wireBranchEntry `json:"branches"`
	Name     string            `json:"name,omitempty"`
	Next     any               `json:"next,omitempty"`
}

// Marshal encodes the flow in the broker's wire format.
// Prev links are never written, so the output has no cycles.
func Marshal(f *Flow) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot marshal nil flow")
	}
	return json.Marshal(wireFlow{
		CorrelationID: f.CorrelationID,
		Root:          f.toWire(f.Root),
	})
}

// MarshalJSON implements json.Marshaler using the wire format
func (f *Flow) MarshalJSON() ([]byte, error) {
	return Marshal(f)
}

// MarshalNode encodes the subtree starting at id
func (f *Flow) MarshalNode(id NodeID) ([]byte, error) {
	if !f.contains(id) {
		return nil, fmt.Errorf("%w: unknown node %d", ErrInvalidLink, id)
	}
	return json.Marshal(f.toWire(id))
}

func (f *Flow) toWire(id NodeID) any {
	if !f.contains(id) {
		return nil
	}

	n := &f.nodes[id]
	switch n.Kind {
	case KindAgent:
		return wireAgent{
			Type:           KindAgent,
			TaskID:         n.TaskID,
			TaskInstanceID: n.TaskInstanceID,
			Status:         n.Status,
			Name:           n.Name,
			Next:           f.toWire(n.Next),
		}
	case KindGroup:
		agents := make([]any, 0, len(n.Agents))
		for _, a := range n.Agents {
			agents = append(agents, f.toWire(a))
		}
		return wireGroup{
			Type:    KindGroup,
			GroupID: n.GroupID,
			Agents:  agents,
			Name:    n.Name,
			Next:    f.toWire(n.Next),
		}
	case KindBranch:
		branches := make([]wireBranchEntry, 0, len(n.Branches))
		for _, b := range n.Branches {
			branches = append(branches, wireBranchEntry{
				BranchID: b.BranchID,
				Branch:   f.toWire(b.Node),
			})
		}
		return wireBranch{
			Type:     KindBranch,
			Branches: branches,
			Name:     n.Name,
			Next:     f.toWire(n.Next),
		}
	}
	return nil
}

// Unmarshal decodes a flow from the broker's wire format and rebuilds the
// Prev links the wire format omits. Any error aborts the whole decode.
func Unmarshal(data []byte) (*Flow, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrInvalidJSON
	}
	return FromResult(gjson.ParseBytes(data))
}

// FromResult decodes a flow from an already parsed JSON value, such as the
// "flow" member of a broker response.
func FromResult(doc gjson.Result) (*Flow, error) {
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: flow is not an object", ErrInvalidJSON)
	}

	cid, err := requireString(doc, fieldCorrelationID, "flow")
	if err != nil {
		return nil, err
	}

	root := doc.Get(fieldRoot)
	if !present(root) {
		return nil, fmt.Errorf("%w: flow.%s", ErrMissingField, fieldRoot)
	}

	f := New(cid)
	d := decoder{flow: f}
	rootID, err := d.node(root, fieldRoot)
	if err != nil {
		return nil, err
	}
	if err := f.SetRoot(rootID); err != nil {
		return nil, err
	}
	return f, nil
}

// UnmarshalJSON implements json.Unmarshaler using the wire format
func (f *Flow) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*f = *decoded
	return nil
}

type decoder struct {
	flow *Flow
}

// node decodes one node and its next chain. Children are created before their
// container so containment Prev links can be set when the container is added.
func (d *decoder) node(r gjson.Result, path string) (NodeID, error) {
	if !r.IsObject() {
		return NoNode, fmt.Errorf("%w: %s is not an object", ErrInvalidJSON, path)
	}

	var (
		id  NodeID
		err error
	)

	kind := Kind(r.Get(fieldType).String())
	switch kind {
	case KindAgent:
		id, err = d.agent(r, path)
	case KindGroup:
		id, err = d.group(r, path)
	case KindBranch:
		id, err = d.branch(r, path)
	default:
		return NoNode, fmt.Errorf("%w %q at %s", ErrUnknownNodeType, r.Get(fieldType).String(), path)
	}
	if err != nil {
		return NoNode, err
	}

	next := r.Get(fieldNext)
	if !present(next) {
		return id, nil
	}
	nextID, err := d.node(next, path+"."+fieldNext)
	if err != nil {
		return NoNode, err
	}
	if err := d.flow.SetNext(id, nextID); err != nil {
		return NoNode, err
	}
	return id, nil
}

func (d *decoder) agent(r gjson.Result, path string) (NodeID, error) {
	taskID, err := requireString(r, fieldTaskID, path)
	if err != nil {
		return NoNode, err
	}
	instanceID, err := requireString(r, fieldTaskInstanceID, path)
	if err != nil {
		return NoNode, err
	}

	status := Status(r.Get(fieldStatus).String())
	if status != "" && !status.IsValid() {
		return NoNode, fmt.Errorf("%w: %s.%s has unknown value %q", ErrInvalidField, path, fieldStatus, status)
	}

	return d.flow.AddAgent(AgentSpec{
		TaskID:         taskID,
		TaskInstanceID: instanceID,
		Status:         status,
		Name:           r.Get(fieldName).String(),
	}), nil
}

func (d *decoder) group(r gjson.Result, path string) (NodeID, error) {
	groupID, err := requireString(r, fieldGroupID, path)
	if err != nil {
		return NoNode, err
	}

	list := r.Get(fieldAgents)
	if !list.IsArray() {
		return NoNode, fmt.Errorf("%w: %s.%s", ErrMissingField, path, fieldAgents)
	}

	var agents []NodeID
	for i, a := range list.Array() {
		memberPath := path + "." + fieldAgents + "." + strconv.Itoa(i)
		if kind := Kind(a.Get(fieldType).String()); kind != KindAgent {
			if !kind.IsValid() {
				return NoNode, fmt.Errorf("%w %q at %s", ErrUnknownNodeType, a.Get(fieldType).String(), memberPath)
			}
			return NoNode, fmt.Errorf("%w: %s must be an agent, got %s", ErrInvalidLink, memberPath, kind)
		}
		id, err := d.node(a, memberPath)
		if err != nil {
			return NoNode, err
		}
		agents = append(agents, id)
	}

	return d.flow.AddGroup(GroupSpec{
		GroupID: groupID,
		Name:    r.Get(fieldName).String(),
	}, agents)
}

func (d *decoder) branch(r gjson.Result, path string) (NodeID, error) {
	list := r.Get(fieldBranches)
	if !list.IsArray() {
		return NoNode, fmt.Errorf("%w: %s.%s", ErrMissingField, path, fieldBranches)
	}

	var branches []Branch
	for i, b := range list.Array() {
		entryPath := path + "." + fieldBranches + "." + strconv.Itoa(i)
		branchID, err := requireString(b, fieldBranchID, entryPath)
		if err != nil {
			return NoNode, err
		}
		sub := b.Get(fieldBranch)
		if !present(sub) {
			return NoNode, fmt.Errorf("%w: %s.%s", ErrMissingField, entryPath, fieldBranch)
		}
		id, err := d.node(sub, entryPath+"."+fieldBranch)
		if err != nil {
			return NoNode, err
		}
		branches = append(branches, Branch{BranchID: branchID, Node: id})
	}

	return d.flow.AddBranch(r.Get(fieldName).String(), branches)
}

func present(r gjson.Result) bool {
	return r.Exists() && r.Type != gjson.Null
}

func requireString(r gjson.Result, field, path string) (string, error) {
	v := r.Get(field)
	if !present(v) {
		return "", fmt.Errorf("%w: %s.%s", ErrMissingField, path, field)
	}
	return v.String(), nil
}
