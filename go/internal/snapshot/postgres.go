package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mcdev12/racetrack/go/internal/sqlutil"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS racetrack_snapshot (
    id         SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
    version    INTEGER NOT NULL,
    document   JSONB NOT NULL,
    saved_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

const upsertSQL = `
INSERT INTO racetrack_snapshot (id, version, document, saved_at)
VALUES (1, $1, $2, NOW())
ON CONFLICT (id) DO UPDATE
SET version = EXCLUDED.version,
    document = EXCLUDED.document,
    saved_at = EXCLUDED.saved_at`

const selectSQL = `SELECT document FROM racetrack_snapshot WHERE id = 1`

// PostgresStore keeps the document in a single JSONB row.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates the snapshot table if it does not exist.
func NewPostgresStore(ctx context.Context, db *sql.DB) (*PostgresStore, error) {
	if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Load(ctx context.Context) (*Document, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, selectSQL).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot: %w", err)
	}
	if err := checkVersion(&doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) Save(ctx context.Context, doc *Document) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	return sqlutil.Run(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, upsertSQL, doc.Version, string(raw)); err != nil {
			return fmt.Errorf("failed to upsert snapshot: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}
