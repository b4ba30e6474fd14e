package layout

import (
	"fmt"
	"math"
)

// Default layout constants, matching the renderer's box dimensions
const (
	DefaultAgentNodeWidth          = 320
	DefaultAgentNodeHeight         = 100
	DefaultGroupNodeWidth          = 640
	DefaultNodeXGap                = 30
	DefaultAgentsPerRowInGroup     = 2
	DefaultEstimatedGroupRowHeight = 80
	DefaultVerticalStep            = 200
	DefaultGroupToGroupPadding     = 40
)

// Sizes holds the fixed box dimensions supplied by the rendering layer
type Sizes struct {
	AgentNodeWidth          float64 `json:"agentNodeWidth" yaml:"agent_node_width"`
	AgentNodeHeight         float64 `json:"agentNodeHeight" yaml:"agent_node_height"`
	GroupNodeWidth          float64 `json:"groupNodeWidth" yaml:"group_node_width"`
	NodeXGap                float64 `json:"nodeXGap" yaml:"node_x_gap"`
	AgentsPerRowInGroup     int     `json:"agentsPerRowInGroup" yaml:"agents_per_row_in_group"`
	EstimatedGroupRowHeight float64 `json:"estimatedGroupRowHeight" yaml:"estimated_group_row_height"`
	VerticalStep            float64 `json:"verticalStep" yaml:"vertical_step"`
	GroupToGroupPadding     float64 `json:"groupToGroupPadding" yaml:"group_to_group_padding"`
}

// DefaultSizes returns the renderer's default box dimensions
func DefaultSizes() Sizes {
	return Sizes{
		AgentNodeWidth:          DefaultAgentNodeWidth,
		AgentNodeHeight:         DefaultAgentNodeHeight,
		GroupNodeWidth:          DefaultGroupNodeWidth,
		NodeXGap:                DefaultNodeXGap,
		AgentsPerRowInGroup:     DefaultAgentsPerRowInGroup,
		EstimatedGroupRowHeight: DefaultEstimatedGroupRowHeight,
		VerticalStep:            DefaultVerticalStep,
		GroupToGroupPadding:     DefaultGroupToGroupPadding,
	}
}

// Validate checks that every dimension is usable
func (s Sizes) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"agent node width", s.AgentNodeWidth},
		{"agent node height", s.AgentNodeHeight},
		{"group node width", s.GroupNodeWidth},
		{"estimated group row height", s.EstimatedGroupRowHeight},
		{"vertical step", s.VerticalStep},
	}
	for _, p := range positive {
		if p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalidSizes, p.name, p.value)
		}
	}
	if s.NodeXGap < 0 {
		return fmt.Errorf("%w: node x gap cannot be negative", ErrInvalidSizes)
	}
	if s.GroupToGroupPadding < 0 {
		return fmt.Errorf("%w: group to group padding cannot be negative", ErrInvalidSizes)
	}
	if s.AgentsPerRowInGroup <= 0 {
		return fmt.Errorf("%w: agents per row must be positive, got %d", ErrInvalidSizes, s.AgentsPerRowInGroup)
	}
	if s.VerticalStep < s.AgentNodeHeight {
		return fmt.Errorf("%w: vertical step %v is smaller than agent height %v", ErrInvalidSizes, s.VerticalStep, s.AgentNodeHeight)
	}
	return nil
}

// GroupHeight estimates the rendered height of a group box holding
// agentCount agents: one header row plus one row per AgentsPerRowInGroup
// agents, plus one agent height.
func (s Sizes) GroupHeight(agentCount int) float64 {
	rows := math.Ceil(float64(agentCount)/float64(s.AgentsPerRowInGroup)) + 1
	return rows*s.EstimatedGroupRowHeight + s.AgentNodeHeight
}

// rowGap is the vertical space between the bottom of one box and the top of
// the next level.
func (s Sizes) rowGap() float64 {
	return s.VerticalStep - s.AgentNodeHeight
}
