package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/validation"
)

const promptPreviewLen = 60

// NewPlaygroundCommand creates the playground command trying prompt and model
// overrides directly on an agent
func NewPlaygroundCommand() *cobra.Command {
	var (
		prompt         string
		model          string
		input          string
		skipValidation bool
		save           bool
		asJSON         bool
	)

	cmd := &cobra.Command{
		Use:   "playground <task-id> --prompt <prompt>",
		Short: "Run an agent with a prompt override",
		Long: `Run an agent on its own execution endpoint with the prompt, and optionally
the model, overridden. Nothing is redeployed. --prompt and --input take inline
text, @file to read a file, or - to read stdin.

With --save the run is kept as an experiment, on the playground service when
playground.endpoint is configured and in the local database otherwise.

Examples:
  galeview playground plan --prompt 'Outline {topic} in 3 bullets' --input '{"topic":"tides"}'
  galeview playground plan --prompt @prompt.txt --model claude-haiku --save
  galeview playground info plan
  galeview playground experiments plan`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			taskID := args[0]
			if err := validation.ValidateIdentifier(validation.KindTaskID, taskID); err != nil {
				return err
			}
			if prompt == "-" && input == "-" {
				return fmt.Errorf("--prompt and --input cannot both read stdin")
			}

			promptText, err := readInputArg(prompt, cmd.InOrStdin())
			if err != nil {
				return err
			}
			settings := broker.PlaygroundSettings{
				PromptOverride: strings.TrimRight(string(promptText), "\r\n"),
				ModelOverride:  model,
			}
			if strings.TrimSpace(settings.PromptOverride) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}

			data := []byte("{}")
			if input != "" {
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
			ctx := cmd.Context()

			agent, err := client.GetAgent(ctx, taskID)
			if err != nil {
				return fmt.Errorf("failed to get agent %s: %w", taskID, err)
			}
			if !skipValidation {
				if err := validation.ValidateInput(agent.InputSchema, data); err != nil {
					return fmt.Errorf("input rejected by %s: %w", taskID, err)
				}
			}
			if model != "" {
				if err := checkModel(ctx, client, agent, model); err != nil {
					return err
				}
			}

			run, err := client.SendPrompt(ctx, agent, settings, json.RawMessage(data))
			if err != nil {
				return fmt.Errorf("playground run of %s failed: %w", taskID, err)
			}
			GlobalConfig.logger().Debug("playground run",
				"task_id", taskID,
				"correlation_id", run.CorrelationID,
				"model", model,
			)

			out := cmd.OutOrStdout()
			if asJSON {
				if err := printRawJSON(out, run.Response); err != nil {
					return err
				}
			} else {
				_, _ = fmt.Fprintf(out, "✓ Ran %s (correlation id %s)\n", taskID, run.CorrelationID)
				if len(run.Response) > 0 {
					if err := printRawJSON(out, run.Response); err != nil {
						return err
					}
				}
			}

			if !save {
				return nil
			}
			store, release, err := openExperiments()
			if err != nil {
				return err
			}
			defer release()

			id, err := store.SaveExperiment(ctx, &broker.Experiment{
				AgentID:       experimentAgentID(agent),
				TaskInputData: json.RawMessage(data),
				Playground:    settings,
			})
			if err != nil {
				return fmt.Errorf("failed to save experiment: %w", err)
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "✓ Saved experiment %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "Prompt override: text, @file or - for stdin")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model override, one of the agent's allowed models")
	cmd.Flags().StringVarP(&input, "input", "i", "", "Task input: JSON, @file or - for stdin")
	cmd.Flags().BoolVar(&skipValidation, "skip-validation", false, "Do not check the input against the agent's schema")
	cmd.Flags().BoolVar(&save, "save", false, "Keep the run as an experiment")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print only the agent's response")
	_ = cmd.MarkFlagRequired("prompt")

	cmd.AddCommand(newPlaygroundInfoCommand())
	cmd.AddCommand(newPlaygroundExperimentsCommand())
	return cmd
}

// checkModel rejects a model the agent does not list in its info
func checkModel(ctx context.Context, client *broker.Client, agent *broker.AgentDefinition, model string) error {
	info, err := client.GetAgentInfo(ctx, agent)
	if err != nil {
		return fmt.Errorf("failed to get info of %s: %w", agent.TaskID, err)
	}
	if !info.AllowsModel(model) {
		return fmt.Errorf("%w: %s (allowed: %s)", broker.ErrModelNotAllowed, model, strings.Join(info.AllowedModels, ", "))
	}
	return nil
}

// experimentAgentID is the key experiments are filed under
func experimentAgentID(agent *broker.AgentDefinition) string {
	if agent.ID != "" {
		return agent.ID
	}
	return agent.TaskID
}

func newPlaygroundInfoCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <task-id>",
		Short: "Show an agent's prompt template and allowed models",
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
			info, err := client.GetAgentInfo(cmd.Context(), agent)
			if err != nil {
				return fmt.Errorf("failed to get info of %s: %w", taskID, err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, info)
			}

			models := "any"
			if len(info.AllowedModels) > 0 {
				models = strings.Join(info.AllowedModels, ", ")
			}
			_, _ = fmt.Fprintf(out, "Agent:        %s (%s)\n", orDash(info.AgentName), agent.TaskID)
			_, _ = fmt.Fprintf(out, "Description:  %s\n", orDash(info.Description))
			_, _ = fmt.Fprintf(out, "Models:       %s\n", models)
			if info.PromptTemplate != "" {
				_, _ = fmt.Fprintln(out, "\nPrompt template:")
				_, _ = fmt.Fprintln(out, info.PromptTemplate)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the info as JSON")
	return cmd
}

func newPlaygroundExperimentsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "experiments <task-id>",
		Short: "List the experiments saved for an agent",
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

			store, release, err := openExperiments()
			if err != nil {
				return err
			}
			defer release()

			experiments, err := store.ListExperiments(cmd.Context(), experimentAgentID(agent))
			if err != nil {
				return fmt.Errorf("failed to list experiments: %w", err)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, experiments)
			}
			if len(experiments) == 0 {
				_, _ = fmt.Fprintf(out, "No experiments saved for %s.\n", taskID)
				return nil
			}

			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "EXPERIMENT\tDATE\tMODEL\tPROMPT")
			_, _ = fmt.Fprintln(w, "----------\t----\t-----\t------")
			for _, e := range experiments {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					e.ID, formatTime(e.Date), orDash(e.Playground.ModelOverride), promptPreview(e.Playground.PromptOverride))
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the experiments as JSON")
	return cmd
}

// promptPreview returns the first line of a prompt, shortened for a table
func promptPreview(prompt string) string {
	line, _, multiline := strings.Cut(strings.TrimSpace(prompt), "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) > promptPreviewLen {
		return string([]rune(line)[:promptPreviewLen-1]) + "…"
	}
	if multiline {
		return line + " …"
	}
	return line
}
