package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/dshills/galeview/pkg/broker"
)

// DatabaseFile is the snapshot database name inside the config directory
const DatabaseFile = "galeview.db"

// SQLiteSnapshotRepository implements SnapshotRepository using SQLite storage.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

// NewSQLiteSnapshotRepository opens the snapshot database in configDir,
// creating it when missing.
func NewSQLiteSnapshotRepository(configDir string) (*SQLiteSnapshotRepository, error) {
	return NewSQLiteSnapshotRepositoryWithPath(filepath.Join(configDir, DatabaseFile))
}

// NewSQLiteSnapshotRepositoryWithPath creates a repository with a custom database path.
func NewSQLiteSnapshotRepositoryWithPath(dbPath string) (*SQLiteSnapshotRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with single connection
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := InitializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &SQLiteSnapshotRepository{db: db}, nil
}

// Close closes the database connection.
func (r *SQLiteSnapshotRepository) Close() error {
	return r.db.Close()
}

// Save persists a snapshot and its task records.
// Saving an existing ID replaces it.
func (r *SQLiteSnapshotRepository) Save(s *Snapshot) error {
	if s == nil {
		return fmt.Errorf("cannot save nil snapshot")
	}
	if s.ID == uuid.Nil {
		return fmt.Errorf("snapshot ID cannot be empty")
	}
	if s.CorrelationID == "" {
		return fmt.Errorf("snapshot correlation ID cannot be empty")
	}
	if !json.Valid(s.FlowJSON) {
		return fmt.Errorf("snapshot %s: flow is not valid JSON", s.ID)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `
		INSERT INTO snapshots (
			id, correlation_id, broker_url, label, num_nodes, flow_json, fetched_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			correlation_id = excluded.correlation_id,
			broker_url = excluded.broker_url,
			label = excluded.label,
			num_nodes = excluded.num_nodes,
			flow_json = excluded.flow_json,
			fetched_at = excluded.fetched_at
	`

	_, err = tx.Exec(query,
		s.ID.String(),
		s.CorrelationID,
		nullString(s.BrokerURL),
		nullString(s.Label),
		s.NumNodes,
		string(s.FlowJSON),
		s.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}

	if _, err := tx.Exec("DELETE FROM snapshot_tasks WHERE snapshot_id = ?", s.ID.String()); err != nil {
		return fmt.Errorf("failed to clear snapshot tasks: %w", err)
	}

	for _, task := range s.Tasks {
		record, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to marshal task %s: %w", task.TaskInstanceID, err)
		}
		_, err = tx.Exec(`
			INSERT INTO snapshot_tasks (snapshot_id, task_instance_id, task_id, status, record_json)
			VALUES (?, ?, ?, ?, ?)`,
			s.ID.String(), task.TaskInstanceID, task.TaskID, string(task.Status), string(record),
		)
		if err != nil {
			return fmt.Errorf("failed to save task %s: %w", task.TaskInstanceID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

const snapshotColumns = `id, correlation_id, broker_url, label, num_nodes, flow_json, fetched_at`

// Load retrieves a snapshot and its task records by ID.
func (r *SQLiteSnapshotRepository) Load(id uuid.UUID) (*Snapshot, error) {
	if id == uuid.Nil {
		return nil, fmt.Errorf("snapshot ID cannot be empty")
	}

	row := r.db.QueryRow("SELECT "+snapshotColumns+" FROM snapshots WHERE id = ?", id.String())
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	tasks, err := r.loadTasks(id)
	if err != nil {
		return nil, err
	}
	s.Tasks = tasks

	return s, nil
}

func (r *SQLiteSnapshotRepository) loadTasks(id uuid.UUID) ([]broker.TaskStatusRecord, error) {
	rows, err := r.db.Query(
		"SELECT record_json FROM snapshot_tasks WHERE snapshot_id = ? ORDER BY rowid", id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tasks []broker.TaskStatusRecord
	for rows.Next() {
		var record string
		if err := rows.Scan(&record); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot task: %w", err)
		}
		var task broker.TaskStatusRecord
		if err := json.Unmarshal([]byte(record), &task); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot task: %w", err)
		}
		tasks = append(tasks, task)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshot tasks: %w", err)
	}

	return tasks, nil
}

// List returns snapshots newest first, without their task records.
func (r *SQLiteSnapshotRepository) List(correlationID string, limit int) ([]*Snapshot, error) {
	var (
		where []string
		args  []any
	)
	if correlationID != "" {
		where = append(where, "correlation_id = ?")
		args = append(args, correlationID)
	}

	query := "SELECT " + snapshotColumns + " FROM snapshots"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY fetched_at DESC, created_at DESC"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	snapshots := make([]*Snapshot, 0)
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snapshots = append(snapshots, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}

	return snapshots, nil
}

// Latest returns the most recently fetched snapshot of an execution.
func (r *SQLiteSnapshotRepository) Latest(correlationID string) (*Snapshot, error) {
	if correlationID == "" {
		return nil, fmt.Errorf("correlation ID cannot be empty")
	}

	snapshots, err := r.List(correlationID, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, fmt.Errorf("%w: no snapshot of %s", ErrSnapshotNotFound, correlationID)
	}

	return r.Load(snapshots[0].ID)
}

// Delete removes a snapshot and its task records.
func (r *SQLiteSnapshotRepository) Delete(id uuid.UUID) error {
	if id == uuid.Nil {
		return fmt.Errorf("snapshot ID cannot be empty")
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// foreign keys are off by default in SQLite, so tasks go explicitly
	if _, err := tx.Exec("DELETE FROM snapshot_tasks WHERE snapshot_id = ?", id.String()); err != nil {
		return fmt.Errorf("failed to delete snapshot tasks: %w", err)
	}

	result, err := tx.Exec("DELETE FROM snapshots WHERE id = ?", id.String())
	if err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSnapshotNotFound, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row rowScanner) (*Snapshot, error) {
	var (
		s                Snapshot
		id, flowJSON     string
		brokerURL, label sql.NullString
	)

	err := row.Scan(&id, &s.CorrelationID, &brokerURL, &label, &s.NumNodes, &flowJSON, &s.FetchedAt)
	if err != nil {
		return nil, err
	}

	s.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("invalid snapshot ID %q: %w", id, err)
	}
	s.BrokerURL = brokerURL.String
	s.Label = label.String
	s.FlowJSON = []byte(flowJSON)

	return &s, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
