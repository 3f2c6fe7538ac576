package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGXConn is the subset of *pgxpool.Pool (or pgx.Tx) used by [PostgresStore].
type PGXConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS session_records (
	key        text PRIMARY KEY,
	data       bytea NOT NULL,
	expires_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS session_records_expires_at_idx ON session_records (expires_at);
`

// PostgresStore implements [Store] on a session_records table. Expired rows
// are invisible to Load and removed by [PostgresStore.Sweep].
type PostgresStore struct {
	pool PGXConn
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed session store. The caller owns the pool.
func NewPostgresStore(pool PGXConn) *PostgresStore {
	return &PostgresStore{pool: pool, now: time.Now}
}

// EnsureSchema creates the session_records table and its expiry index.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return backendError(err)
	}
	return nil
}

// Save inserts a row for key. A live row under the same key is never
// replaced; an expired one is reclaimed.
func (s *PostgresStore) Save(ctx context.Context, key string, attrs Attributes, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("session ttl must be positive, got %s", ttl)
	}
	now := s.now().UTC()
	rec := newRecord(key, attrs, now, ttl)
	data, err := Encode(rec)
	if err != nil {
		return err
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO session_records (key, data, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE
			SET data = EXCLUDED.data, expires_at = EXCLUDED.expires_at
			WHERE session_records.expires_at <= $4
	`, key, data, rec.ExpiresAt, now)
	if err != nil {
		return backendError(err)
	}
	if tag.RowsAffected() == 0 {
		return ErrKeyExists
	}
	return nil
}

// Load reads the live row for key.
func (s *PostgresStore) Load(ctx context.Context, key string) (Attributes, bool, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `
		SELECT data
		FROM session_records
		WHERE key = $1 AND expires_at > $2
	`, key, s.now().UTC()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, backendError(err)
	}

	rec, err := Decode(data)
	if err != nil {
		return nil, false, err
	}
	return rec.Attributes, true, nil
}

// Delete removes the row for key.
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM session_records WHERE key = $1`, key); err != nil {
		return backendError(err)
	}
	return nil
}

// Sweep deletes expired rows and returns how many were removed.
func (s *PostgresStore) Sweep(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM session_records WHERE expires_at <= $1`, s.now().UTC())
	if err != nil {
		return 0, backendError(err)
	}
	return tag.RowsAffected(), nil
}
