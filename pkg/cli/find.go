package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	galeerrors "github.com/dshills/galeview/pkg/errors"
	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/layout"
)

// NewFindCommand creates the find command looking up one node of a flow
func NewFindCommand() *cobra.Command {
	var (
		src      flowSource
		agentID  string
		groupID  string
		branchID string
		format   string
	)

	cmd := &cobra.Command{
		Use:   "find [correlation-id] --agent|--group|--branch <id>",
		Short: "Find an agent, group or branch in an execution graph",
		Long: `Find one node of a flow and print its subtree.

Agents are matched by task instance id, groups by group id and branches by
branch id. The search is depth-first and the first match wins.

Examples:
  galeview find 4b1e7c52 --agent 7f3c
  galeview find --file flow.json --group reviewers --format json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, FormatTree, FormatJSON); err != nil {
				return err
			}

			f, err := src.load(cmd, args)
			if err != nil {
				return err
			}

			var (
				id    flow.NodeID
				found bool
				kind  flow.Kind
				key   string
			)
			switch {
			case cmd.Flags().Changed("agent"):
				kind, key = flow.KindAgent, agentID
				id, found = f.FindAgentNode(agentID)
			case cmd.Flags().Changed("group"):
				kind, key = flow.KindGroup, groupID
				id, found = f.FindGroupNode(groupID)
			default:
				kind, key = flow.KindBranch, branchID
				id, found = f.FindBranchNode(branchID)
			}
			if !found {
				return galeerrors.NewOperationalError("find node", f.CorrelationID, key,
					fmt.Errorf("%s %q: %w", kind, key, flow.ErrNodeNotFound))
			}

			out := cmd.OutOrStdout()
			if format == FormatJSON {
				data, err := f.MarshalNode(id)
				if err != nil {
					return err
				}
				return printRawJSON(out, data)
			}

			if parent, ok := f.ParentOf(id); ok {
				pn, _ := f.Node(parent)
				_, _ = fmt.Fprintf(out, "parent %s %s\n", pn.Kind, layout.RendererID(pn))
			} else {
				_, _ = fmt.Fprintln(out, "parent none")
			}
			writeChain(out, f, id, 0, make(map[flow.NodeID]bool))
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&agentID, "agent", "", "Task instance id of the agent")
	cmd.Flags().StringVar(&groupID, "group", "", "Group id")
	cmd.Flags().StringVar(&branchID, "branch", "", "Branch id")
	cmd.Flags().StringVar(&format, "format", FormatTree, "Output format: tree or json")
	cmd.MarkFlagsMutuallyExclusive("agent", "group", "branch")
	cmd.MarkFlagsOneRequired("agent", "group", "branch")
	return cmd
}
