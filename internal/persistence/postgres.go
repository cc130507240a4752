package persistence

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const createSnapshotsTable = `
	CREATE TABLE IF NOT EXISTS q_snapshots (
		agent_id   TEXT PRIMARY KEY,
		payload    JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`

// PostgresStore implements Backend backed by PostgreSQL. Each agent owns one
// row that is replaced by an upsert, which commits atomically.
type PostgresStore struct {
	db      *sql.DB
	agentID string
}

// OpenPostgresStore connects to dsn and makes sure the snapshot table exists.
func OpenPostgresStore(ctx context.Context, dsn, agentID string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	store := NewPostgresStore(db, agentID)
	if err := store.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// NewPostgresStore wraps an existing database handle.
func NewPostgresStore(db *sql.DB, agentID string) *PostgresStore {
	return &PostgresStore{db: db, agentID: agentID}
}

// Migrate creates the snapshot table if needed.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, createSnapshotsTable); err != nil {
		return fmt.Errorf("failed to create q_snapshots: %w", err)
	}
	return nil
}

// Name implements Backend.
func (p *PostgresStore) Name() string { return "postgres" }

// Save implements Backend.
func (p *PostgresStore) Save(ctx context.Context, data []byte) error {
	query := `
		INSERT INTO q_snapshots (agent_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (agent_id) DO UPDATE SET payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`

	if _, err := p.db.ExecContext(ctx, query, p.agentID, string(data)); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load implements Backend.
func (p *PostgresStore) Load(ctx context.Context) ([]byte, error) {
	query := `SELECT payload FROM q_snapshots WHERE agent_id = $1`

	var payload []byte
	err := p.db.QueryRowContext(ctx, query, p.agentID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return payload, nil
}

// Close implements Backend.
func (p *PostgresStore) Close() error {
	return p.db.Close()
}
