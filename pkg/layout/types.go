package layout

import "github.com/dshills/galeview/pkg/flow"

// Position is the top-left corner of a node box in layout coordinates
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size holds the dimensions of a node box
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// BoundingBox is a rectangular area in layout coordinates
type BoundingBox struct {
	TopLeft Position `json:"topLeft" yaml:"topLeft"`
	Size    Size     `json:"size" yaml:"size"`
}

// CenterX returns the horizontal center of the box
func (bb BoundingBox) CenterX() float64 {
	return bb.TopLeft.X + bb.Size.Width/2
}

// Bottom returns the Y coordinate of the bottom edge
func (bb BoundingBox) Bottom() float64 {
	return bb.TopLeft.Y + bb.Size.Height
}

// Intersects checks if two bounding boxes overlap
func (bb BoundingBox) Intersects(other BoundingBox) bool {
	if bb.TopLeft.X >= other.TopLeft.X+other.Size.Width ||
		other.TopLeft.X >= bb.TopLeft.X+bb.Size.Width {
		return false
	}
	if bb.TopLeft.Y >= other.TopLeft.Y+other.Size.Height ||
		other.TopLeft.Y >= bb.TopLeft.Y+bb.Size.Height {
		return false
	}
	return true
}

// AgentData is the payload of an agent node
type AgentData struct {
	TaskID         string      `json:"taskId" yaml:"taskId"`
	TaskInstanceID string      `json:"taskInstanceId" yaml:"taskInstanceId"`
	Status         flow.Status `json:"status" yaml:"status"`
	Name           string      `json:"name,omitempty" yaml:"name,omitempty"`
}

// GroupData is the payload of a group node. Agents lists the group's
// members in order; they are drawn inside the group box.
type GroupData struct {
	GroupID string      `json:"groupId" yaml:"groupId"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Agents  []AgentData `json:"agents" yaml:"agents"`
}

// Node is a positioned agent or group ready for rendering
type Node struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     flow.Kind   `json:"type" yaml:"type"`
	Position Position    `json:"position" yaml:"position"`
	Size     Size        `json:"size" yaml:"size"`
	Level    int         `json:"level" yaml:"level"`
	IsRoot   bool        `json:"isRoot" yaml:"isRoot"`
	IsLeaf   bool        `json:"isLeaf" yaml:"isLeaf"`
	Agent    *AgentData  `json:"agent,omitempty" yaml:"agent,omitempty"`
	Group    *GroupData  `json:"group,omitempty" yaml:"group,omitempty"`
	FlowNode flow.NodeID `json:"-" yaml:"-"`
}

// Bounds returns the node's box
func (n Node) Bounds() BoundingBox {
	return BoundingBox{TopLeft: n.Position, Size: n.Size}
}

// Edge connects a parent node to a child node by their IDs
type Edge struct {
	ID     string `json:"id" yaml:"id"`
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// Graph is the output of the layout engine
type Graph struct {
	CorrelationID string `json:"correlationId" yaml:"correlationId"`
	Nodes         []Node `json:"nodes" yaml:"nodes"`
	Edges         []Edge `json:"edges" yaml:"edges"`
	Levels        Levels `json:"levels" yaml:"levels"`
}

// NodeByID returns the positioned node with the given renderer ID
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Bounds returns the box enclosing every node
func (g *Graph) Bounds() BoundingBox {
	if len(g.Nodes) == 0 {
		return BoundingBox{}
	}

	minX, minY := g.Nodes[0].Position.X, g.Nodes[0].Position.Y
	maxX, maxY := minX, minY
	for _, n := range g.Nodes {
		b := n.Bounds()
		if b.TopLeft.X < minX {
			minX = b.TopLeft.X
		}
		if b.TopLeft.Y < minY {
			minY = b.TopLeft.Y
		}
		if right := b.TopLeft.X + b.Size.Width; right > maxX {
			maxX = right
		}
		if bottom := b.Bottom(); bottom > maxY {
			maxY = bottom
		}
	}

	return BoundingBox{
		TopLeft: Position{X: minX, Y: minY},
		Size:    Size{Width: maxX - minX, Height: maxY - minY},
	}
}
