package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/galeview/pkg/broker"
	"github.com/dshills/galeview/pkg/flow"
)

// ErrSnapshotNotFound is returned when no snapshot matches a lookup
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Snapshot is an execution graph as fetched from the broker at one point in
// time, kept for offline viewing.
type Snapshot struct {
	ID            uuid.UUID
	CorrelationID string
	BrokerURL     string
	Label         string
	NumNodes      int
	// FlowJSON is the flow in wire form
	FlowJSON  []byte
	FetchedAt time.Time

	// Tasks are the task records captured alongside the flow. They are only
	// populated by Load.
	Tasks []broker.TaskStatusRecord
}

// NewSnapshot encodes f into a new snapshot
func NewSnapshot(f *flow.Flow, brokerURL string) (*Snapshot, error) {
	if f == nil {
		return nil, fmt.Errorf("cannot snapshot nil flow")
	}

	data, err := flow.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode flow: %w", err)
	}

	return &Snapshot{
		ID:            uuid.New(),
		CorrelationID: f.CorrelationID,
		BrokerURL:     brokerURL,
		NumNodes:      f.Len(),
		FlowJSON:      data,
		FetchedAt:     time.Now().UTC(),
	}, nil
}

// Flow decodes the stored flow
func (s *Snapshot) Flow() (*flow.Flow, error) {
	f, err := flow.Unmarshal(s.FlowJSON)
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", s.ID, err)
	}
	return f, nil
}

// SnapshotRepository stores flow snapshots
type SnapshotRepository interface {
	Save(s *Snapshot) error
	Load(id uuid.UUID) (*Snapshot, error)
	// List returns snapshots newest first. An empty correlationID lists all
	// snapshots; a limit <= 0 means no limit.
	List(correlationID string, limit int) ([]*Snapshot, error)
	Latest(correlationID string) (*Snapshot, error)
	Delete(id uuid.UUID) error
	Close() error
}
