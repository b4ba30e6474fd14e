package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/filter"
	"github.com/dshills/galeview/pkg/validation"
)

// NewTasksCommand creates the tasks command listing task executions
func NewTasksCommand() *cobra.Command {
	var (
		correlationID string
		filterExpr    string
		asJSON        bool
	)

	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "List root tasks or the tasks of one correlation id",
		Long: `List task executions known to the broker.

Without --correlation-id only root tasks are listed. --filter takes a boolean
expression over the task fields, for example:

  galeview tasks --filter 'status == "failed"'
  galeview tasks --correlation-id c1 --filter 'executionTimeMs > 1000 && agentType == "agent"'

Available fields: ` + fmt.Sprint(filter.Variables),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			var tasks []broker.TaskStatusRecord
			if correlationID != "" {
				if err := validation.ValidateIdentifier(validation.KindCorrelationID, correlationID); err != nil {
					return err
				}
				tasks, err = client.ListTasksByCorrelationID(cmd.Context(), correlationID)
			} else {
				tasks, err = client.ListRootTasks(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("failed to list tasks: %w", err)
			}

			tasks, err = filter.NewEvaluator().Apply(cmd.Context(), filterExpr, tasks)
			if err != nil {
				return fmt.Errorf("failed to filter tasks: %w", err)
			}

			if asJSON {
				return printJSON(cmd.OutOrStdout(), tasks)
			}
			return printTaskTable(cmd, tasks)
		},
	}

	cmd.Flags().StringVarP(&correlationID, "correlation-id", "c", "", "List the tasks of this correlation id")
	cmd.Flags().StringVarP(&filterExpr, "filter", "f", "", "Boolean filter expression")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print tasks as JSON")
	return cmd
}

func printTaskTable(cmd *cobra.Command, tasks []broker.TaskStatusRecord) error {
	if len(tasks) == 0 {
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No tasks found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "TASK INSTANCE\tTASK ID\tTYPE\tSTATUS\tSTARTED\tDURATION\tCORRELATION ID")
	_, _ = fmt.Fprintln(w, "-------------\t-------\t----\t------\t-------\t--------\t--------------")
	for _, t := range tasks {
		duration := "-"
		if t.StoppedAt != nil {
			duration = t.Duration().String()
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			t.TaskInstanceID,
			t.TaskID,
			t.AgentType(),
			t.Status,
			formatTime(t.StartedAt),
			duration,
			t.CorrelationID,
		)
	}
	return w.Flush()
}

// NewTaskCommand creates the task command showing one execution record
func NewTaskCommand() *cobra.Command {
	var (
		outputPath string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "task <task-instance-id>",
		Short: "Show one task execution record",
		Long: `Show one task execution record.

--output-path extracts a value from the task output with a gjson path:

  galeview task 7f3c --output-path result.summary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]
			if err := validation.ValidateIdentifier(validation.KindTaskInstanceID, id); err != nil {
				return err
			}

			client, err := newBrokerClient()
			if err != nil {
				return err
			}

			task, err := client.GetTaskExecutionRecord(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to get task %s: %w", id, err)
			}

			out := cmd.OutOrStdout()
			if outputPath != "" {
				value := gjson.GetBytes(task.TaskOutput, outputPath)
				if !value.Exists() {
					return fmt.Errorf("path %q not found in output of task %s", outputPath, id)
				}
				_, _ = fmt.Fprintln(out, value.String())
				return nil
			}

			if asJSON {
				return printJSON(out, task)
			}

			_, _ = fmt.Fprintf(out, "Task instance:   %s\n", task.TaskInstanceID)
			_, _ = fmt.Fprintf(out, "Task ID:         %s\n", task.TaskID)
			_, _ = fmt.Fprintf(out, "Agent type:      %s\n", task.AgentType())
			_, _ = fmt.Fprintf(out, "Correlation ID:  %s\n", task.CorrelationID)
			_, _ = fmt.Fprintf(out, "Status:          %s\n", task.Status)
			if task.StopReason != "" {
				_, _ = fmt.Fprintf(out, "Stop reason:     %s\n", task.StopReason)
			}
			_, _ = fmt.Fprintf(out, "Started:         %s\n", formatTime(task.StartedAt))
			if task.StoppedAt != nil {
				_, _ = fmt.Fprintf(out, "Stopped:         %s\n", formatTime(*task.StoppedAt))
				_, _ = fmt.Fprintf(out, "Duration:        %s\n", task.Duration())
			}
			if task.ParentTaskInstanceID != "" {
				_, _ = fmt.Fprintf(out, "Parent:          %s (%s)\n", task.ParentTaskInstanceID, task.ParentTaskID)
			}
			if len(task.TaskInput) > 0 {
				_, _ = fmt.Fprintln(out, "\nInput:")
				if err := printRawJSON(out, task.TaskInput); err != nil {
					return err
				}
			}
			if len(task.TaskOutput) > 0 {
				_, _ = fmt.Fprintln(out, "\nOutput:")
				if err := printRawJSON(out, task.TaskOutput); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output-path", "o", "", "gjson path to extract from the task output")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the record as JSON")
	return cmd
}
