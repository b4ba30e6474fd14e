package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dshills/galeview/pkg/validation"
)

// NewLaunchCommand creates the launch command starting a task on the broker
func NewLaunchCommand() *cobra.Command {
	var (
		input          string
		skipValidation bool
	)

	cmd := &cobra.Command{
		Use:   "launch <task-id>",
		Short: "Start a task execution",
		Long: `Start a new execution of a task. The input is checked against the agent's
input schema before it is sent.

--input takes inline JSON, @file to read a file, or - to read stdin.

Examples:
  galeview launch summarize --input '{"url":"https://example.com"}'
  galeview launch summarize --input @request.json
  cat request.json | galeview launch summarize --input -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if err := validation.ValidateIdentifier(validation.KindTaskID, taskID); err != nil {
				return err
			}

			data := []byte("{}")
			if input != "" {
				var err error
				if data, err = readInputArg(input, cmd.InOrStdin()); err != nil {
					return err
				}
			}
			if !json.Valid(data) {
				return fmt.Errorf("task input is not valid JSON")
			}

			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			if !skipValidation {
				agent, err := client.GetAgent(cmd.Context(), taskID)
				if err != nil {
					return fmt.Errorf("failed to get agent %s: %w", taskID, err)
				}
				if err := validation.ValidateInput(agent.InputSchema, data); err != nil {
					return fmt.Errorf("input rejected by %s: %w", taskID, err)
				}
			}

			resp, err := client.PostTask(cmd.Context(), taskID, json.RawMessage(data))
			if err != nil {
				return fmt.Errorf("failed to launch %s: %w", taskID, err)
			}

			out := cmd.OutOrStdout()
			if cid := gjson.GetBytes(resp, "correlationId"); cid.Exists() {
				_, _ = fmt.Fprintf(out, "✓ Launched %s (correlation id %s)\n", taskID, cid.String())
				return nil
			}
			_, _ = fmt.Fprintf(out, "✓ Launched %s\n", taskID)
			if len(resp) > 0 {
				return printRawJSON(out, resp)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Task input: JSON, @file or - for stdin")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Do not check the input against the agent's schema")
	return cmd
}
