package storage

import (
	"database/sql"
	"fmt"
)

// MigrationVersion tracks the current database schema version.
const MigrationVersion = 3

// InitializeDatabase creates the SQLite database schema for flow snapshots.
// This includes migration version tracking to support future schema updates.
func InitializeDatabase(db *sql.DB) error {
	migrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		version INTEGER NOT NULL UNIQUE,
		applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := db.Exec(migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := SchemaVersion(db)
	if err != nil {
		return err
	}

	migrations := []func(*sql.Tx) error{
		applyMigration1,
		applyMigration2,
		applyMigration3,
	}
	for i, migrate := range migrations {
		version := i + 1
		if currentVersion >= version {
			continue
		}
		if err := runMigration(db, version, migrate); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}
	}

	return nil
}

// SchemaVersion returns the highest applied migration
func SchemaVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to check migration version: %w", err)
	}
	return version, nil
}

func runMigration(db *sql.DB, version int, migrate func(*sql.Tx) error) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migrate(tx); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration: %w", err)
	}

	return nil
}

// applyMigration1 creates the snapshots table.
func applyMigration1(tx *sql.Tx) error {
	// Snapshots table - one fetched execution graph, stored as wire JSON
	snapshotsTable := `
	CREATE TABLE snapshots (
		id TEXT PRIMARY KEY,
		correlation_id TEXT NOT NULL,
		broker_url TEXT,
		label TEXT,
		num_nodes INTEGER NOT NULL DEFAULT 0,
		flow_json TEXT NOT NULL,
		fetched_at TIMESTAMP NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := tx.Exec(snapshotsTable); err != nil {
		return fmt.Errorf("failed to create snapshots table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX idx_snapshots_correlation_id ON snapshots(correlation_id, fetched_at DESC);"); err != nil {
		return fmt.Errorf("failed to create snapshot index: %w", err)
	}

	return nil
}

// applyMigration2 adds the task records captured with a snapshot.
func applyMigration2(tx *sql.Tx) error {
	snapshotTasksTable := `
	CREATE TABLE snapshot_tasks (
		snapshot_id TEXT NOT NULL,
		task_instance_id TEXT NOT NULL,
		task_id TEXT NOT NULL,
		status TEXT NOT NULL,
		record_json TEXT NOT NULL,
		PRIMARY KEY (snapshot_id, task_instance_id),
		FOREIGN KEY (snapshot_id) REFERENCES snapshots(id) ON DELETE CASCADE
	);`

	if _, err := tx.Exec(snapshotTasksTable); err != nil {
		return fmt.Errorf("failed to create snapshot_tasks table: %w", err)
	}

	return nil
}

// applyMigration3 adds playground experiments kept locally.
func applyMigration3(tx *sql.Tx) error {
	experimentsTable := `
	CREATE TABLE experiments (
		id TEXT PRIMARY KEY,
		agent_id TEXT NOT NULL,
		prompt_override TEXT NOT NULL,
		model_override TEXT,
		input_json TEXT,
		created_at TIMESTAMP NOT NULL
	);`

	if _, err := tx.Exec(experimentsTable); err != nil {
		return fmt.Errorf("failed to create experiments table: %w", err)
	}

	if _, err := tx.Exec("CREATE INDEX idx_experiments_agent_id ON experiments(agent_id, created_at DESC);"); err != nil {
		return fmt.Errorf("failed to create experiment index: %w", err)
	}

	return nil
}
