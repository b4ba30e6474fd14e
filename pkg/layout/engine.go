package layout

import (
	"fmt"

	"github.com/dshills/galeview/pkg/flow"
)

// Engine assigns coordinates to the agents and groups of a flow and connects
// each of them to its logical parent.
//
// Algorithm (recursive descent from the root):
//  1. Estimate level widths with BuildLevels; the root level is centered on
//     the graph's CenterX.
//  2. An agent or group is centered on the horizontal center handed down by
//     its parent and placed one vertical step below it. The step grows to
//     clear the full height of a parent group.
//  3. A branch draws nothing. Its entries share the branch's parent and are
//     laid out side by side, centered on the parent's center.
//  4. Every placed node gets an edge from its nearest agent or group
//     ancestor, skipping branches.
type Engine struct {
	sizes Sizes
}

// NewEngine creates a layout engine using the given box dimensions
func NewEngine(sizes Sizes) *Engine {
	return &Engine{sizes: sizes}
}

// Compute lays out f with the given sizes
func Compute(f *flow.Flow, sizes Sizes) (*Graph, error) {
	return NewEngine(sizes).Layout(f)
}

// placement is the parent context handed down the recursion
type placement struct {
	depth   int
	centerX float64

	// parent box, unset for the root level
	hasParent    bool
	parent       BoundingBox
	parentKind   flow.Kind
	parentAgents int

	// continuation of a branch: place below this Y instead of the parent
	continuation bool
	below        float64
}

// Layout computes positions and edges for every agent and group of f
func (e *Engine) Layout(f *flow.Flow) (*Graph, error) {
	if err := e.sizes.Validate(); err != nil {
		return nil, err
	}
	if f == nil || !f.Root.Valid() {
		return nil, ErrEmptyFlow
	}
	if _, ok := f.Node(f.Root); !ok {
		return nil, fmt.Errorf("%w: root %d is not in the flow", ErrEmptyFlow, f.Root)
	}

	levels := BuildLevels(f, e.sizes)
	r := &run{
		sizes:  e.sizes,
		flow:   f,
		placed: make(map[flow.NodeID]bool),
		graph: &Graph{
			CorrelationID: f.CorrelationID,
			Nodes:         make([]Node, 0, f.Len()),
			Edges:         make([]Edge, 0, f.Len()),
			Levels:        levels,
		},
	}

	r.place(f.Root, placement{centerX: levels.CenterX})
	return r.graph, nil
}

type run struct {
	sizes  Sizes
	flow   *flow.Flow
	graph  *Graph
	placed map[flow.NodeID]bool
}

// place lays out id and everything after it. It returns the lowest Y reached
// and the deepest level used.
func (r *run) place(id flow.NodeID, pc placement) (float64, int) {
	n, ok := r.flow.Node(id)
	if !ok || r.placed[id] {
		return pc.parent.Bottom(), pc.depth - 1
	}
	r.placed[id] = true

	if n.Kind == flow.KindBranch {
		return r.placeBranch(n, pc)
	}

	width, height := r.box(n)
	x := pc.centerX - width/2
	y := r.top(n.Kind, pc)

	out := Node{
		ID:       RendererID(n),
		Kind:     n.Kind,
		Position: Position{X: x, Y: y},
		Size:     Size{Width: width, Height: height},
		Level:    pc.depth,
		IsRoot:   pc.depth == 0,
		IsLeaf:   !n.Next.Valid(),
		FlowNode: id,
	}
	switch n.Kind {
	case flow.KindAgent:
		data := agentData(n)
		out.Agent = &data
	case flow.KindGroup:
		out.Group = r.groupData(n)
	}
	r.graph.Nodes = append(r.graph.Nodes, out)
	r.connect(id, out.ID)

	bottom, deepest := y+height, pc.depth
	if !n.Next.Valid() {
		return bottom, deepest
	}

	child := placement{
		depth:        pc.depth + 1,
		centerX:      x + width/2,
		hasParent:    true,
		parent:       out.Bounds(),
		parentKind:   n.Kind,
		parentAgents: len(n.Agents),
	}
	b, d := r.place(n.Next, child)
	return max(bottom, b), max(deepest, d)
}

// placeBranch lays out the branch entries side by side around pc.centerX,
// then the branch's own next node below the deepest entry.
func (r *run) placeBranch(n flow.Node, pc placement) (float64, int) {
	bottom, deepest := pc.parent.Bottom(), pc.depth-1
	if pc.continuation {
		bottom = pc.below
	}

	start := pc.centerX - r.span(branchNodes(n))/2
	for index, b := range n.Branches {
		w := r.width(b.Node)
		entry := pc
		entry.centerX = start + w/2
		eb, ed := r.place(b.Node, entry)
		bottom, deepest = max(bottom, eb), max(deepest, ed)
		start += w
		if index < len(n.Branches)-1 {
			start += r.sizes.NodeXGap
		}
	}

	if !n.Next.Valid() {
		return bottom, deepest
	}

	cont := pc
	cont.depth = deepest + 1
	cont.continuation = true
	cont.below = bottom
	b, d := r.place(n.Next, cont)
	return max(bottom, b), max(deepest, d)
}

// top returns the Y of a node placed in context pc
func (r *run) top(kind flow.Kind, pc placement) float64 {
	if pc.continuation {
		return pc.below + r.sizes.rowGap()
	}
	if !pc.hasParent {
		return 0
	}

	step := r.sizes.VerticalStep
	if pc.parentKind == flow.KindGroup {
		step = r.sizes.GroupHeight(pc.parentAgents) + r.sizes.rowGap()
		if kind == flow.KindGroup {
			step += r.sizes.GroupToGroupPadding
		}
	}
	return pc.parent.TopLeft.Y + step
}

// connect emits the edge from id's logical parent, if it has one
func (r *run) connect(id flow.NodeID, target string) {
	parent, ok := r.flow.ParentOf(id)
	if !ok {
		return
	}
	pn, _ := r.flow.Node(parent)
	source := RendererID(pn)
	r.graph.Edges = append(r.graph.Edges, Edge{
		ID:     EdgeID(source, target),
		Source: source,
		Target: target,
	})
}

func (r *run) box(n flow.Node) (float64, float64) {
	if n.Kind == flow.KindGroup {
		return r.sizes.GroupNodeWidth, r.sizes.GroupHeight(len(n.Agents))
	}
	return r.sizes.AgentNodeWidth, r.sizes.AgentNodeHeight
}

// width is the horizontal room a node takes among its siblings. A nested
// branch takes the room of all its entries.
func (r *run) width(id flow.NodeID) float64 {
	n, ok := r.flow.Node(id)
	if !ok {
		return 0
	}
	switch n.Kind {
	case flow.KindAgent:
		return r.sizes.AgentNodeWidth
	case flow.KindGroup:
		return r.sizes.GroupNodeWidth
	}
	return r.span(branchNodes(n))
}

func (r *run) span(ids []flow.NodeID) float64 {
	total := 0.0
	for i, id := range ids {
		total += r.width(id)
		if i > 0 {
			total += r.sizes.NodeXGap
		}
	}
	return total
}

func (r *run) groupData(n flow.Node) *GroupData {
	g := &GroupData{
		GroupID: n.GroupID,
		Name:    n.Name,
		Agents:  make([]AgentData, 0, len(n.Agents)),
	}
	for _, a := range n.Agents {
		if an, ok := r.flow.Node(a); ok {
			g.Agents = append(g.Agents, agentData(an))
		}
	}
	return g
}

func agentData(n flow.Node) AgentData {
	return AgentData{
		TaskID:         n.TaskID,
		TaskInstanceID: n.TaskInstanceID,
		Status:         n.Status,
		Name:           n.Name,
	}
}

func branchNodes(n flow.Node) []flow.NodeID {
	ids := make([]flow.NodeID, 0, len(n.Branches))
	for _, b := range n.Branches {
		ids = append(ids, b.Node)
	}
	return ids
}

// RendererID is the identifier a renderer uses for a node: the task instance
// ID for agents and the group ID for groups.
func RendererID(n flow.Node) string {
	if n.Kind == flow.KindGroup {
		return n.GroupID
	}
	return n.TaskInstanceID
}

// EdgeID builds the identifier of the edge between two renderer IDs
func EdgeID(source, target string) string {
	return "edge-" + source + "-" + target
}
