package layout

import "github.com/dshills/galeview/pkg/flow"

// Level holds the size estimate of one depth level of a flow
type Level struct {
	Level int     `json:"level" yaml:"level"`
	Width float64 `json:"width" yaml:"width"`
	// Height is the tallest box on the level
	Height    float64 `json:"height" yaml:"height"`
	NumGroups int     `json:"numGroups" yaml:"numGroups"`
	// NumAgents counts top-level agents only, never the members of a group
	NumAgents int `json:"numAgents" yaml:"numAgents"`
	// Kinds lists the node kinds of the level in placement order
	Kinds []flow.Kind `json:"kinds" yaml:"kinds"`
}

// Levels is the sizing metadata used to center each level on one axis
type Levels struct {
	Levels     []Level `json:"levels" yaml:"levels"`
	TotalWidth float64 `json:"totalWidth" yaml:"totalWidth"`
	CenterX    float64 `json:"centerX" yaml:"centerX"`
}

// At returns the level with the given depth
func (l Levels) At(depth int) (Level, bool) {
	if depth < 0 || depth >= len(l.Levels) {
		return Level{}, false
	}
	return l.Levels[depth], true
}

// BuildLevels sweeps the flow breadth-first and estimates the width and height
// of every level.
//
// Branch nodes never form a level of their own: they are replaced in place by
// their entries, so all branches of a fan-out share one level. Agents and
// groups contribute their next node to the following level.
//
// A branch's own next node is not visited, so branches that reconverge on a
// shared continuation are not reflected in the width estimate.
func BuildLevels(f *flow.Flow, sizes Sizes) Levels {
	var result Levels
	if f == nil || !f.Root.Valid() {
		return result
	}

	seen := make(map[flow.NodeID]bool)
	current := expandBranches(f, []flow.NodeID{f.Root})

	for depth := 0; len(current) > 0; depth++ {
		level := Level{Level: depth, Kinds: make([]flow.Kind, 0, len(current))}
		var next []flow.NodeID

		for _, id := range current {
			if seen[id] {
				continue
			}
			seen[id] = true

			n, _ := f.Node(id)
			switch n.Kind {
			case flow.KindAgent:
				level.NumAgents++
				level.Width += sizes.AgentNodeWidth
				level.Height = max(level.Height, sizes.AgentNodeHeight)
			case flow.KindGroup:
				level.NumGroups++
				level.Width += sizes.GroupNodeWidth
				level.Height = max(level.Height, sizes.GroupHeight(len(n.Agents)))
			}
			level.Kinds = append(level.Kinds, n.Kind)

			if n.Next.Valid() {
				next = append(next, n.Next)
			}
		}

		if count := level.NumAgents + level.NumGroups; count > 1 {
			level.Width += float64(count-1) * sizes.NodeXGap
		}
		result.Levels = append(result.Levels, level)

		current = expandBranches(f, next)
	}

	for _, l := range result.Levels {
		if l.Width > result.TotalWidth {
			result.TotalWidth = l.Width
		}
	}
	result.CenterX = result.TotalWidth / 2
	return result
}

// expandBranches replaces every branch node by its entries, recursively,
// keeping order.
func expandBranches(f *flow.Flow, ids []flow.NodeID) []flow.NodeID {
	out := make([]flow.NodeID, 0, len(ids))
	for _, id := range ids {
		n, ok := f.Node(id)
		if !ok {
			continue
		}
		if n.Kind != flow.KindBranch {
			out = append(out, id)
			continue
		}
		entries := make([]flow.NodeID, 0, len(n.Branches))
		for _, b := range n.Branches {
			entries = append(entries, b.Node)
		}
		out = append(out, expandBranches(f, entries)...)
	}
	return out
}
