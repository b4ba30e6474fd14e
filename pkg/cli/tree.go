package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/dshills/galeview/pkg/flow"
)

// writeTree prints f as an indented outline in execution order. Group
// members and branch entries are nested under their owner.
func writeTree(w io.Writer, f *flow.Flow) {
	_, _ = fmt.Fprintf(w, "correlation %s\n", f.CorrelationID)
	writeChain(w, f, f.Root, 0, make(map[flow.NodeID]bool))
}

func writeChain(w io.Writer, f *flow.Flow, id flow.NodeID, depth int, seen map[flow.NodeID]bool) {
	indent := strings.Repeat("  ", depth)

	for id.Valid() && !seen[id] {
		seen[id] = true
		n, ok := f.Node(id)
		if !ok {
			return
		}

		switch n.Kind {
		case flow.KindAgent:
			_, _ = fmt.Fprintf(w, "%s%s\n", indent, agentLine(n))
		case flow.KindGroup:
			_, _ = fmt.Fprintf(w, "%sgroup %s%s (%d agents)\n", indent, n.GroupID, nameSuffix(n.Name), len(n.Agents))
			for _, a := range n.Agents {
				writeChain(w, f, a, depth+1, seen)
			}
		case flow.KindBranch:
			_, _ = fmt.Fprintf(w, "%sbranch%s\n", indent, nameSuffix(n.Name))
			for _, b := range n.Branches {
				_, _ = fmt.Fprintf(w, "%s  %s:\n", indent, b.BranchID)
				writeChain(w, f, b.Node, depth+2, seen)
			}
		}

		id = n.Next
	}
}

func agentLine(n flow.Node) string {
	return fmt.Sprintf("agent %s%s (%s) [%s]", n.TaskID, nameSuffix(n.Name), n.TaskInstanceID, n.Status)
}

func nameSuffix(name string) string {
	if name == "" {
		return ""
	}
	return fmt.Sprintf(" %q", name)
}
