package flow

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const nestedFlowJSON = `{
  "correlationId": "c-nested",
  "root": {
    "type": "agent", "taskId": "orchestrate", "taskInstanceId": "root", "status": "completed", "name": "Orchestrator",
    "next": {
      "type": "group", "groupId": "g1", "name": "Research",
      "agents": [
        {"type": "agent", "taskId": "search", "taskInstanceId": "g1-a", "status": "completed"},
        {"type": "agent", "taskId": "search", "taskInstanceId": "g1-b", "status": "failed",
         "next": {"type": "branch", "branches": [
           {"branchId": "inner-1", "branch": {"type": "agent", "taskId": "retry", "taskInstanceId": "retry-1", "status": "started"}}
         ]}}
      ],
      "next": {
        "type": "branch", "name": "fan-out",
        "branches": [
          {"branchId": "b1", "branch": {"type": "agent", "taskId": "write", "taskInstanceId": "b1-a", "status": "started"}},
          {"branchId": "b2", "branch": {"type": "group", "groupId": "g2", "agents": [
            {"type": "agent", "taskId": "review", "taskInstanceId": "g2-a", "status": "started"}
          ]}}
        ]
      }
    }
  }
}`

func TestUnmarshal_EndToEndScenario(t *testing.T) {
	input := `{"correlationId":"c1","root":{"type":"agent","taskId":"t1","taskInstanceId":"i1","status":"completed",
		"next":{"type":"agent","taskId":"t2","taskInstanceId":"i2","status":"started"}}}`

	f, err := Unmarshal([]byte(input))
	require.NoError(t, err)

	assert.Equal(t, "c1", f.CorrelationID)
	root, ok := f.Node(f.Root)
	require.True(t, ok)
	assert.Equal(t, "i1", root.TaskInstanceID)
	assert.Equal(t, StatusCompleted, root.Status)

	next, ok := f.Node(root.Next)
	require.True(t, ok)
	assert.Equal(t, "t2", next.TaskID)
	assert.Equal(t, StatusStarted, next.Status)
	assert.Equal(t, f.Root, next.Prev)
	assert.Equal(t, NoNode, next.Next)
}

func TestUnmarshal_GroupPrevInvariant(t *testing.T) {
	f, err := Unmarshal([]byte(nestedFlowJSON))
	require.NoError(t, err)

	for _, groupID := range []string{"g1", "g2"} {
		g, ok := f.FindGroupNode(groupID)
		require.True(t, ok, groupID)
		n, _ := f.Node(g)
		require.NotEmpty(t, n.Agents)
		for _, a := range n.Agents {
			assert.Equal(t, g, f.Prev(a), "agent of %s", groupID)
		}
	}
}

func TestUnmarshal_BranchPrevInvariant(t *testing.T) {
	f, err := Unmarshal([]byte(nestedFlowJSON))
	require.NoError(t, err)

	for _, branchID := range []string{"b1", "inner-1"} {
		br, ok := f.FindBranchNode(branchID)
		require.True(t, ok, branchID)
		n, _ := f.Node(br)
		assert.Equal(t, KindBranch, n.Kind)
		for _, b := range n.Branches {
			assert.Equal(t, br, f.Prev(b.Node), "entry %s", b.BranchID)
		}
	}
}

func TestUnmarshal_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{
			name:    "not json",
			input:   `{"correlationId":`,
			wantErr: ErrInvalidJSON,
		},
		{
			name:    "not an object",
			input:   `[1,2]`,
			wantErr: ErrInvalidJSON,
		},
		{
			name:    "unknown root type",
			input:   `{"correlationId":"c","root":{"type":"loop"}}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "unknown nested type",
			input:   `{"correlationId":"c","root":{"type":"agent","taskId":"t","taskInstanceId":"i","next":{"type":"subflow"}}}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "missing type",
			input:   `{"correlationId":"c","root":{"taskId":"t","taskInstanceId":"i"}}`,
			wantErr: ErrUnknownNodeType,
		},
		{
			name:    "missing correlation id",
			input:   `{"root":{"type":"agent","taskId":"t","taskInstanceId":"i"}}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "missing root",
			input:   `{"correlationId":"c","root":null}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "agent without instance id",
			input:   `{"correlationId":"c","root":{"type":"agent","taskId":"t"}}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "group without agents",
			input:   `{"correlationId":"c","root":{"type":"group","groupId":"g"}}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "group with a branch member",
			input:   `{"correlationId":"c","root":{"type":"group","groupId":"g","agents":[{"type":"branch","branches":[]}]}}`,
			wantErr: ErrInvalidLink,
		},
		{
			name:    "branch entry without id",
			input:   `{"correlationId":"c","root":{"type":"branch","branches":[{"branch":{"type":"agent","taskId":"t","taskInstanceId":"i"}}]}}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "unknown status",
			input:   `{"correlationId":"c","root":{"type":"agent","taskId":"t","taskInstanceId":"i","status":"waiting"}}`,
			wantErr: ErrInvalidField,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Unmarshal([]byte(tt.input))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, f, "no partial graph on error")
		})
	}
}

func TestUnmarshal_ErrorNamesPath(t *testing.T) {
	input := `{"correlationId":"c","root":{"type":"branch","branches":[
		{"branchId":"b1","branch":{"type":"agent","taskId":"t","taskInstanceId":"i"}},
		{"branchId":"b2","branch":{"type":"mystery"}}]}}`

	_, err := Unmarshal([]byte(input))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root.branches.1.branch")
}

func TestRoundTrip(t *testing.T) {
	original, err := Unmarshal([]byte(nestedFlowJSON))
	require.NoError(t, err)

	data, err := Marshal(original)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)

	assert.Equal(t, original.CorrelationID, decoded.CorrelationID)
	assertSameShape(t, original, original.Root, decoded, decoded.Root)

	again, err := Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, string(data), string(again))
}

// assertSameShape compares two subtrees field by field, including the
// logical parent each node resolves to.
func assertSameShape(t *testing.T, fa *Flow, a NodeID, fb *Flow, b NodeID) {
	t.Helper()

	if !a.Valid() || !b.Valid() {
		assert.Equal(t, a.Valid(), b.Valid())
		return
	}

	na, _ := fa.Node(a)
	nb, _ := fb.Node(b)
	require.Equal(t, na.Kind, nb.Kind)
	assert.Equal(t, na.Name, nb.Name)
	assert.Equal(t, na.TaskID, nb.TaskID)
	assert.Equal(t, na.TaskInstanceID, nb.TaskInstanceID)
	assert.Equal(t, na.Status, nb.Status)
	assert.Equal(t, na.GroupID, nb.GroupID)
	assert.Equal(t, describe(fa, na.Prev), describe(fb, nb.Prev))

	require.Len(t, nb.Agents, len(na.Agents))
	for i := range na.Agents {
		assertSameShape(t, fa, na.Agents[i], fb, nb.Agents[i])
	}
	require.Len(t, nb.Branches, len(na.Branches))
	for i := range na.Branches {
		assert.Equal(t, na.Branches[i].BranchID, nb.Branches[i].BranchID)
		assertSameShape(t, fa, na.Branches[i].Node, fb, nb.Branches[i].Node)
	}
	assertSameShape(t, fa, na.Next, fb, nb.Next)
}

func describe(f *Flow, id NodeID) string {
	n, ok := f.Node(id)
	if !ok {
		return "<none>"
	}
	switch n.Kind {
	case KindAgent:
		return "agent:" + n.TaskInstanceID
	case KindGroup:
		return "group:" + n.GroupID
	}
	if len(n.Branches) > 0 {
		return "branch:" + n.Branches[0].BranchID
	}
	return "branch"
}

func TestMarshal_NeverWritesPrev(t *testing.T) {
	f, err := Unmarshal([]byte(nestedFlowJSON))
	require.NoError(t, err)

	data, err := json.Marshal(f)
	require.NoError(t, err)

	var generic any
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.False(t, hasKey(generic, "prev"), "serialized flow must not contain prev")
}

func hasKey(v any, key string) bool {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			if k == key || hasKey(child, key) {
				return true
			}
		}
	case []any:
		for _, child := range t {
			if hasKey(child, key) {
				return true
			}
		}
	}
	return false
}

func TestMarshal_OmitsEmptyOptionalFields(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t1", TaskInstanceID: "i1", Status: StatusCompleted})
	require.NoError(t, f.SetRoot(a))

	data, err := Marshal(f)
	require.NoError(t, err)
	assert.JSONEq(t, `{"correlationId":"c1","root":{"type":"agent","taskId":"t1","taskInstanceId":"i1","status":"completed"}}`, string(data))
}

func TestMarshal_EmptyGroupKeepsAgentsArray(t *testing.T) {
	f := New("c1")
	g, err := f.AddGroup(GroupSpec{GroupID: "g"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.SetRoot(g))

	data, err := Marshal(f)
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindGroup, decoded.Kind(decoded.Root))
}

func TestUnmarshalJSON_Interface(t *testing.T) {
	var wrapper struct {
		Flow Flow `json:"flow"`
	}
	err := json.Unmarshal([]byte(`{"flow":{"correlationId":"c9","root":{"type":"agent","taskId":"t","taskInstanceId":"x"}}}`), &wrapper)
	require.NoError(t, err)

	assert.Equal(t, "c9", wrapper.Flow.CorrelationID)
	id, ok := wrapper.Flow.FindAgentNode("x")
	assert.True(t, ok)
	assert.Equal(t, wrapper.Flow.Root, id)
}

func TestMarshalNode(t *testing.T) {
	f, err := Unmarshal([]byte(nestedFlowJSON))
	require.NoError(t, err)

	g, ok := f.FindGroupNode("g2")
	require.True(t, ok)

	data, err := f.MarshalNode(g)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"group","groupId":"g2","agents":[{"type":"agent","taskId":"review","taskInstanceId":"g2-a","status":"started"}]}`, string(data))

	_, err = f.MarshalNode(NoNode)
	assert.ErrorIs(t, err, ErrInvalidLink)
}
