package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dshills/galeview/pkg/validation"
)

// NewAgentsCommand creates the agents command listing the broker catalog
func NewAgentsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "agents",
		Short: "List the agents registered with the broker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			agents, err := client.ListAgents(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list agents: %w", err)
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), agents)
			}

			if len(agents) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No agents registered.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "TASK ID\tNAME\tDESCRIPTION")
			_, _ = fmt.Fprintln(w, "-------\t----\t-----------")
			for _, a := range agents {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", a.TaskID, orDash(a.Name), orDash(a.Description))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the catalog as JSON")
	return cmd
}

// NewAgentCommand creates the agent command showing one catalog entry
func NewAgentCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent <task-id>",
		Short: "Show an agent with its input and output schemas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if err := validation.ValidateIdentifier(validation.KindTaskID, taskID); err != nil {
				return err
			}

			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			agent, err := client.GetAgent(cmd.Context(), taskID)
			if err != nil {
				return fmt.Errorf("failed to get agent %s: %w", taskID, err)
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Task ID:      %s\n", agent.TaskID)
			_, _ = fmt.Fprintf(out, "Name:         %s\n", orDash(agent.Name))
			_, _ = fmt.Fprintf(out, "Description:  %s\n", orDash(agent.Description))
			_, _ = fmt.Fprintf(out, "Endpoint:     %s%s\n", agent.Endpoint.BaseURL, agent.Endpoint.ExecutionPath)

			if len(agent.InputSchema) > 0 {
				_, _ = fmt.Fprintln(out, "\nInput schema:")
				if err := printRawJSON(out, agent.InputSchema); err != nil {
					return err
				}
			}
			if len(agent.OutputSchema) > 0 {
				_, _ = fmt.Fprintln(out, "\nOutput schema:")
				if err := printRawJSON(out, agent.OutputSchema); err != nil {
					return err
				}
			}
			return nil
		},
	}
	return cmd
}
