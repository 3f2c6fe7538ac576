package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	goSession "github.com/MrEthical07/goSession"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PGXConn is the subset of *pgxpool.Pool used by [PostgresVerifier].
type PGXConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// ErrUserExists is returned by CreateUser for a taken email.
var ErrUserExists = errors.New("user already exists")

const usersSchema = `
CREATE TABLE IF NOT EXISTS users (
	id            text PRIMARY KEY,
	email         text NOT NULL UNIQUE,
	password_hash text NOT NULL,
	role          text NOT NULL DEFAULT '',
	is_active     boolean NOT NULL DEFAULT true
);
`

const pgUniqueViolation = "23505"

// PostgresVerifier checks credentials against a users table keyed by email.
// The subject is the user id and a non-empty role is returned as the "role"
// attribute.
type PostgresVerifier struct {
	pool   PGXConn
	hasher *Argon2
	dummy  string
}

var _ goSession.CredentialVerifier = (*PostgresVerifier)(nil)

// NewPostgresVerifier creates a verifier on an existing pool. The caller owns the pool.
func NewPostgresVerifier(pool PGXConn, hasher *Argon2) (*PostgresVerifier, error) {
	if pool == nil || hasher == nil {
		return nil, errors.New("credentials: pool and hasher are required")
	}
	dummy, err := hasher.Hash("dummy-password-for-unknown-users")
	if err != nil {
		return nil, err
	}
	return &PostgresVerifier{pool: pool, hasher: hasher, dummy: dummy}, nil
}

// EnsureSchema creates the users table.
func (v *PostgresVerifier) EnsureSchema(ctx context.Context) error {
	_, err := v.pool.Exec(ctx, usersSchema)
	return err
}

// CreateUser hashes password and inserts an active user. It returns the new id.
func (v *PostgresVerifier) CreateUser(ctx context.Context, email, password, role string) (string, error) {
	hash, err := v.hasher.Hash(password)
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	_, err = v.pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, role) VALUES ($1, $2, $3, $4)`,
		id, normalizeUsername(email), hash, role,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return "", ErrUserExists
		}
		return "", err
	}
	return id, nil
}

// SetActive enables or disables the account registered under email.
func (v *PostgresVerifier) SetActive(ctx context.Context, email string, active bool) error {
	tag, err := v.pool.Exec(ctx, `UPDATE users SET is_active = $2 WHERE email = $1`, normalizeUsername(email), active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("credentials: no user %q", email)
	}
	return nil
}

// Verify implements goSession.CredentialVerifier.
func (v *PostgresVerifier) Verify(ctx context.Context, username, password string) (string, map[string]string, error) {
	var (
		id, hash, role string
		active         bool
	)
	err := v.pool.QueryRow(ctx,
		`SELECT id, password_hash, role, is_active FROM users WHERE email = $1`,
		normalizeUsername(username),
	).Scan(&id, &hash, &role, &active)

	found := true
	if errors.Is(err, pgx.ErrNoRows) {
		found, hash = false, v.dummy
	} else if err != nil {
		return "", nil, err
	}

	match, err := v.hasher.Verify(password, hash)
	if err != nil {
		return "", nil, err
	}
	if !found || !match {
		return "", nil, goSession.ErrInvalidCredentials
	}
	if !active {
		return "", nil, ErrInactiveUser
	}

	attrs := map[string]string{}
	if role = strings.TrimSpace(role); role != "" {
		attrs["role"] = role
	}
	return id, attrs, nil
}
