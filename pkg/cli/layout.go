package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	galeerrors "github.com/dshills/galeview/pkg/errors"
	"github.com/dshills/galeview/pkg/layout"
)

// FormatTable prints layout nodes as a table
const FormatTable = "table"

// NewLayoutCommand creates the layout command
func NewLayoutCommand() *cobra.Command {
	var (
		src        flowSource
		format     string
		levelsOnly bool
	)

	cmd := &cobra.Command{
		Use:   "layout [correlation-id]",
		Short: "Compute the positioned layout of an execution graph",
		Long: `Compute node positions and edges for the agents and groups of a flow.

Box dimensions come from the layout section of config.yaml.

Examples:
  galeview layout 4b1e7c52
  galeview layout --file flow.json --format table
  galeview layout --snapshot 0f5d1c2e-8a8e-4c43-9b7e-2b1f3c1a9d10 --levels --format yaml`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, FormatJSON, FormatYAML, FormatTable); err != nil {
				return err
			}

			f, err := src.load(cmd, args)
			if err != nil {
				return err
			}

			sizes := layout.DefaultSizes()
			if GlobalConfig.App != nil {
				sizes = GlobalConfig.App.Layout
			}

			out := cmd.OutOrStdout()
			if levelsOnly {
				levels := layout.BuildLevels(f, sizes)
				switch format {
				case FormatYAML:
					return printYAML(out, levels)
				case FormatTable:
					return printLevelTable(out, levels)
				}
				return printJSON(out, levels)
			}

			graph, err := layout.Compute(f, sizes)
			if err != nil {
				return galeerrors.NewOperationalError("compute layout", f.CorrelationID, "", err)
			}
			GlobalConfig.logger().Debug("layout computed",
				"correlation_id", f.CorrelationID,
				"nodes", len(graph.Nodes),
				"edges", len(graph.Edges),
				"levels", len(graph.Levels.Levels),
			)

			switch format {
			case FormatYAML:
				return printYAML(out, graph)
			case FormatTable:
				return printGraphTable(out, graph)
			}
			return printJSON(out, graph)
		},
	}

	src.register(cmd)
	cmd.Flags().StringVar(&format, "format", FormatJSON, "Output format: json, yaml or table")
	cmd.Flags().BoolVar(&levelsOnly, "levels", false, "Print only the level size estimates")
	return cmd
}

func printGraphTable(w io.Writer, g *layout.Graph) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tTYPE\tLEVEL\tX\tY\tWIDTH\tHEIGHT")
	for _, n := range g.Nodes {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%g\t%g\t%g\t%g\n",
			n.ID, n.Kind, n.Level, n.Position.X, n.Position.Y, n.Size.Width, n.Size.Height)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(w, "\n%d edges\n", len(g.Edges))
	for _, e := range g.Edges {
		_, _ = fmt.Fprintf(w, "  %s -> %s\n", e.Source, e.Target)
	}
	return nil
}

func printLevelTable(w io.Writer, levels layout.Levels) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "LEVEL\tAGENTS\tGROUPS\tWIDTH\tHEIGHT")
	for _, l := range levels.Levels {
		_, _ = fmt.Fprintf(tw, "%d\t%d\t%d\t%g\t%g\n", l.Level, l.NumAgents, l.NumGroups, l.Width, l.Height)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(w, "\ntotal width %g, center %g\n", levels.TotalWidth, levels.CenterX)
	return nil
}
