package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/galeview/pkg/validation"
)

// NewSnapshotsCommand creates the snapshots command group
func NewSnapshotsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "snapshots",
		Short: "Manage stored flow snapshots",
		Long: `Manage execution graphs saved with 'galeview flow --save'.
Snapshots live in galeview.db in the configuration directory.`,
	}

	cmd.AddCommand(newSnapshotsListCommand())
	cmd.AddCommand(newSnapshotsShowCommand())
	cmd.AddCommand(newSnapshotsDeleteCommand())

	return cmd
}

func newSnapshotsListCommand() *cobra.Command {
	var (
		correlationID string
		limit         int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List snapshots, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if correlationID != "" {
				if err := validation.ValidateIdentifier(validation.KindCorrelationID, correlationID); err != nil {
					return err
				}
			}

			repo, err := openSnapshots()
			if err != nil {
				return err
			}
			defer func() {
				_ = repo.Close()
			}()

			snaps, err := repo.List(correlationID, limit)
			if err != nil {
				return fmt.Errorf("failed to list snapshots: %w", err)
			}

			if len(snaps) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No snapshots found.")
				return nil
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tCORRELATION ID\tNODES\tFETCHED\tLABEL")
			_, _ = fmt.Fprintln(w, "--\t--------------\t-----\t-------\t-----")
			for _, s := range snaps {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
					s.ID, s.CorrelationID, s.NumNodes, formatTime(s.FetchedAt), orDash(s.Label))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVarP(&correlationID, "correlation-id", "c", "", "Only list snapshots of this correlation id")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of snapshots (0 for all)")
	return cmd
}

func newSnapshotsShowCommand() *cobra.Command {
	var (
		format    string
		withTasks bool
	)

	cmd := &cobra.Command{
		Use:   "show <snapshot-id>",
		Short: "Print a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, FormatTree, FormatJSON, FormatYAML); err != nil {
				return err
			}
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q: %w", args[0], err)
			}

			repo, err := openSnapshots()
			if err != nil {
				return err
			}
			defer func() {
				_ = repo.Close()
			}()

			snap, err := repo.Load(id)
			if err != nil {
				return err
			}
			f, err := snap.Flow()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if format == FormatTree {
				_, _ = fmt.Fprintf(out, "snapshot %s fetched %s from %s\n", snap.ID, formatTime(snap.FetchedAt), orDash(snap.BrokerURL))
				if snap.Label != "" {
					_, _ = fmt.Fprintf(out, "label %q\n", snap.Label)
				}
			}
			if err := printFlow(out, f, format); err != nil {
				return err
			}

			if withTasks {
				_, _ = fmt.Fprintln(out)
				return printTaskTable(cmd, snap.Tasks)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", FormatTree, "Output format: tree, json or yaml")
	cmd.Flags().BoolVar(&withTasks, "tasks", false, "Also print the task records captured with the snapshot")
	return cmd
}

func newSnapshotsDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <snapshot-id>",
		Short: "Delete a stored snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q: %w", args[0], err)
			}

			repo, err := openSnapshots()
			if err != nil {
				return err
			}
			defer func() {
				_ = repo.Close()
			}()

			if err := repo.Delete(id); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "✓ Snapshot %s deleted\n", id)
			return nil
		},
	}
	return cmd
}
