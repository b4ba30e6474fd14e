package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/validation"
)

// NewValidateCommand creates the validate command for flow wire documents
func NewValidateCommand() *cobra.Command {
	var printSchema bool

	cmd := &cobra.Command{
		Use:   "validate <flow.json>",
		Short: "Validate a flow wire document",
		Long: `Validate a flow document against the flow JSON schema, then decode it.

Use --print-schema to print the schema instead.`,
		Args: func(cmd *cobra.Command, args []string) error {
			if printSchema {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if printSchema {
				return printRawJSON(out, validation.FlowSchema())
			}

			path := args[0]
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", path, err)
			}

			if err := validation.ValidateFlowDocument(data); err != nil {
				var schemaErr *validation.SchemaError
				if errors.As(err, &schemaErr) {
					_, _ = fmt.Fprintf(out, "✗ %s does not match the flow schema:\n", path)
					for _, v := range schemaErr.Violations {
						_, _ = fmt.Fprintf(out, "  - %s\n", v)
					}
				}
				return err
			}

			f, err := flow.Unmarshal(data)
			if err != nil {
				_, _ = fmt.Fprintf(out, "✗ %s\n", path)
				return err
			}

			_, _ = fmt.Fprintf(out, "✓ %s is valid (correlation %s, %d nodes)\n", path, f.CorrelationID, f.Len())
			return nil
		},
	}

	cmd.Flags().BoolVar(&printSchema, "print-schema", false, "Print the flow JSON schema")
	return cmd
}
