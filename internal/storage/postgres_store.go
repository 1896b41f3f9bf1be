package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/deusflow/newsbrief/internal/logger"
)

// PostgresStore keeps the snapshot in a single-row PostgreSQL table
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects and creates the table if needed
func NewPostgresStore(ctx context.Context, connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("✅ PostgreSQL store connected successfully")
	return store, nil
}

func (ps *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS last_briefing (
		id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
		run_id TEXT NOT NULL,
		snapshot JSONB NOT NULL,
		saved_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	`
	if _, err := ps.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveLastSuccess overwrites the stored row
func (ps *PostgresStore) SaveLastSuccess(ctx context.Context, s Snapshot) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO last_briefing (id, run_id, snapshot, saved_at)
		VALUES (1, $1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET
			run_id = EXCLUDED.run_id,
			snapshot = EXCLUDED.snapshot,
			saved_at = NOW()
	`
	if _, err := ps.db.ExecContext(ctx, query, s.RunID, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// LoadLastSuccess reads the stored row, if any
func (ps *PostgresStore) LoadLastSuccess(ctx context.Context) (*Snapshot, error) {
	var data []byte
	err := ps.db.QueryRowContext(ctx, `SELECT snapshot FROM last_briefing WHERE id = 1`).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

// Close closes the database connection
func (ps *PostgresStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}
