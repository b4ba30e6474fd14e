package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAgent_DefaultsStatus(t *testing.T) {
	f := New("c1")
	id := f.AddAgent(AgentSpec{TaskID: "t1", TaskInstanceID: "i1"})

	n, ok := f.Node(id)
	require.True(t, ok)
	assert.Equal(t, KindAgent, n.Kind)
	assert.Equal(t, StatusStarted, n.Status)
	assert.Equal(t, NoNode, n.Next)
	assert.Equal(t, NoNode, n.Prev)
}

func TestAddGroup_SetsMemberPrev(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	b := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "b"})

	g, err := f.AddGroup(GroupSpec{GroupID: "g1"}, []NodeID{a, b})
	require.NoError(t, err)

	assert.Equal(t, g, f.Prev(a))
	assert.Equal(t, g, f.Prev(b))

	n, _ := f.Node(g)
	assert.Equal(t, []NodeID{a, b}, n.Agents)
}

func TestAddGroup_RejectsNonAgentMembers(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	br, err := f.AddBranch("", []Branch{{BranchID: "b1", Node: a}})
	require.NoError(t, err)

	_, err = f.AddGroup(GroupSpec{GroupID: "g1"}, []NodeID{br})
	assert.ErrorIs(t, err, ErrInvalidLink)

	_, err = f.AddGroup(GroupSpec{GroupID: "g1"}, []NodeID{42})
	assert.ErrorIs(t, err, ErrInvalidLink)
}

func TestAddBranch_SetsEntryPrev(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	b := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "b"})

	br, err := f.AddBranch("fan-out", []Branch{{BranchID: "b1", Node: a}, {BranchID: "b2", Node: b}})
	require.NoError(t, err)

	assert.Equal(t, br, f.Prev(a))
	assert.Equal(t, br, f.Prev(b))
	assert.Equal(t, 0, f.BranchIndex(a))
	assert.Equal(t, 1, f.BranchIndex(b))
}

func TestSetNext(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	b := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "b"})

	require.NoError(t, f.SetNext(a, b))
	assert.Equal(t, b, f.Next(a))
	assert.Equal(t, a, f.Prev(b))

	require.NoError(t, f.SetNext(a, NoNode))
	assert.Equal(t, NoNode, f.Next(a))
	assert.Equal(t, NoNode, f.Prev(b))

	assert.ErrorIs(t, f.SetNext(a, a), ErrInvalidLink)
	assert.ErrorIs(t, f.SetNext(NoNode, a), ErrInvalidLink)
	assert.ErrorIs(t, f.SetNext(a, 99), ErrInvalidLink)
}

func TestSetNext_RelinkClearsOldPrev(t *testing.T) {
	f := New("c1")
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	b := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "b"})
	c := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "c"})

	require.NoError(t, f.SetNext(a, b))
	require.NoError(t, f.SetNext(a, c))

	assert.Equal(t, c, f.Next(a))
	assert.Equal(t, NoNode, f.Prev(b))
	_, ok := f.ParentOf(b)
	assert.False(t, ok)
	p, ok := f.ParentOf(c)
	require.True(t, ok)
	assert.Equal(t, a, p)

	// b was adopted by another node before a moved on, so its Prev stays
	d := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "d"})
	require.NoError(t, f.SetNext(a, b))
	require.NoError(t, f.SetNext(d, b))
	require.NoError(t, f.SetNext(a, c))
	assert.Equal(t, d, f.Prev(b))

	// relinking to the same node keeps it
	require.NoError(t, f.SetNext(a, c))
	assert.Equal(t, a, f.Prev(c))
}

func TestSetRoot_UnknownNode(t *testing.T) {
	f := New("c1")
	assert.ErrorIs(t, f.SetRoot(0), ErrInvalidLink)
}

func TestParentOf_SkipsBranches(t *testing.T) {
	f := New("c1")
	root := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "root"})
	a := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "a"})
	inner := f.AddAgent(AgentSpec{TaskID: "t", TaskInstanceID: "inner"})
	nested, err := f.AddBranch("", []Branch{{BranchID: "n1", Node: inner}})
	require.NoError(t, err)
	br, err := f.AddBranch("", []Branch{{BranchID: "b1", Node: a}, {BranchID: "b2", Node: nested}})
	require.NoError(t, err)
	require.NoError(t, f.SetNext(root, br))
	require.NoError(t, f.SetRoot(root))

	p, ok := f.ParentOf(a)
	require.True(t, ok)
	assert.Equal(t, root, p)

	p, ok = f.ParentOf(inner)
	require.True(t, ok)
	assert.Equal(t, root, p, "nested branches are skipped as well")

	_, ok = f.ParentOf(root)
	assert.False(t, ok)
}

func TestNodeAccessors_OutOfRange(t *testing.T) {
	f := New("c1")

	_, ok := f.Node(3)
	assert.False(t, ok)
	assert.Equal(t, Kind(""), f.Kind(NoNode))
	assert.Equal(t, NoNode, f.Next(7))
	assert.Equal(t, NoNode, f.Prev(7))
	assert.Equal(t, 0, f.BranchIndex(7))
}

func TestKindAndStatus(t *testing.T) {
	assert.True(t, KindBranch.IsValid())
	assert.False(t, Kind("loop").IsValid())
	assert.True(t, StatusFailed.IsTerminal())
	assert.False(t, StatusStarted.IsTerminal())
	assert.False(t, Status("waiting").IsValid())
}
