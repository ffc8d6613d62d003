package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"certflow/pkg/platform/sentinel"
)

// PostgresStore persists artifacts in a single table keyed by path.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the artifacts table if it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS artifacts (
			path TEXT PRIMARY KEY,
			body BYTEA NOT NULL,
			metadata JSONB NOT NULL DEFAULT '{}',
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure artifacts schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, body []byte, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	metaJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal artifact metadata: %w", err)
	}

	query := `
		INSERT INTO artifacts (path, body, metadata, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (path) DO UPDATE
		SET body = EXCLUDED.body, metadata = EXCLUDED.metadata, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.ExecContext(ctx, query, key, body, metaJSON, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres put %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (Object, error) {
	var body []byte
	var metaJSON []byte
	err := s.db.QueryRowContext(ctx, `SELECT body, metadata FROM artifacts WHERE path = $1`, key).Scan(&body, &metaJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Object{}, fmt.Errorf("artifact %s: %w", key, sentinel.ErrNotFound)
	}
	if err != nil {
		return Object{}, fmt.Errorf("postgres get %s: %w", key, err)
	}

	obj := Object{Body: body, Metadata: make(map[string]string)}
	if err := json.Unmarshal(metaJSON, &obj.Metadata); err != nil {
		return Object{}, fmt.Errorf("unmarshal artifact metadata %s: %w", key, err)
	}
	return obj, nil
}

func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM artifacts WHERE path = $1)`, key).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres exists %s: %w", key, err)
	}
	return exists, nil
}
