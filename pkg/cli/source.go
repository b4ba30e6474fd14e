package cli

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	galeerrors "github.com/dshills/galeview/pkg/errors"
	"github.com/dshills/galeview/pkg/flow"
	"github.com/dshills/galeview/pkg/validation"
)

// flowSource selects where a command reads its flow from: the broker (by
// correlation id argument), a wire JSON file or a stored snapshot.
type flowSource struct {
	file     string
	snapshot string
}

func (s *flowSource) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&s.file, "file", "", "Read the flow from a wire JSON file")
	cmd.Flags().StringVar(&s.snapshot, "snapshot", "", "Read the flow from a stored snapshot id")
	cmd.MarkFlagsMutuallyExclusive("file", "snapshot")
}

// load resolves the flow. args may hold the correlation id.
func (s *flowSource) load(cmd *cobra.Command, args []string) (*flow.Flow, error) {
	sources := 0
	if len(args) > 0 {
		sources++
	}
	if s.file != "" {
		sources++
	}
	if s.snapshot != "" {
		sources++
	}
	if sources != 1 {
		return nil, fmt.Errorf("specify exactly one of <correlation-id>, --file or --snapshot")
	}

	switch {
	case s.file != "":
		data, err := os.ReadFile(s.file)
		if err != nil {
			return nil, fmt.Errorf("failed to read flow file: %w", err)
		}
		f, err := flow.Unmarshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", s.file, err)
		}
		return f, nil

	case s.snapshot != "":
		id, err := uuid.Parse(s.snapshot)
		if err != nil {
			return nil, fmt.Errorf("invalid snapshot id %q: %w", s.snapshot, err)
		}
		repo, err := openSnapshots()
		if err != nil {
			return nil, err
		}
		defer func() {
			_ = repo.Close()
		}()

		snap, err := repo.Load(id)
		if err != nil {
			return nil, err
		}
		f, err := snap.Flow()
		if err != nil {
			return nil, galeerrors.NewOperationalError("decode snapshot", snap.CorrelationID, "", err)
		}
		return f, nil
	}

	correlationID := args[0]
	if err := validation.ValidateIdentifier(validation.KindCorrelationID, correlationID); err != nil {
		return nil, err
	}
	client, err := newBrokerClient()
	if err != nil {
		return nil, err
	}
	f, err := client.GetExecutionGraph(cmd.Context(), correlationID)
	if err != nil {
		return nil, galeerrors.NewOperationalError("fetch flow", correlationID, "", err)
	}
	return f, nil
}
