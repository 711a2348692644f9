package magiclink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgresSchema creates the table used by PostgresStore.
const PostgresSchema = `CREATE TABLE IF NOT EXISTS magic_link_codes (
	code       TEXT PRIMARY KEY,
	username   TEXT NOT NULL,
	expires_at BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS magic_link_codes_expires_at_idx ON magic_link_codes (expires_at);`

const (
	pgPutSQL = `INSERT INTO magic_link_codes (code, username, expires_at) VALUES ($1, $2, $3)
ON CONFLICT (code) DO UPDATE SET username = EXCLUDED.username, expires_at = EXCLUDED.expires_at`
	pgTakeSQL  = `DELETE FROM magic_link_codes WHERE code = $1 RETURNING code, username, expires_at`
	pgPurgeSQL = `DELETE FROM magic_link_codes WHERE expires_at <= $1`
)

// PgxQuerier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type PgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a CodeStore backed by a Postgres table (see
// PostgresSchema). Postgres has no row TTL; call Purge periodically.
type PostgresStore struct {
	db  PgxQuerier
	now func() time.Time
}

// NewPostgresStore creates and returns a new PostgresStore.
func NewPostgresStore(db PgxQuerier) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

func (s *PostgresStore) Put(ctx context.Context, code, username string, ttl time.Duration) error {
	if _, err := s.db.Exec(ctx, pgPutSQL, code, username, expiresAt(s.now(), ttl)); err != nil {
		return fmt.Errorf("postgres put: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAndDelete(ctx context.Context, code string) (*CodeEntry, error) {
	var e CodeEntry
	err := s.db.QueryRow(ctx, pgTakeSQL, code).Scan(&e.Code, &e.Username, &e.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCodeNotFound
	} else if err != nil {
		return nil, fmt.Errorf("postgres take: %w", err)
	}
	return &e, nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *PostgresStore) Purge(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, pgPurgeSQL, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("postgres purge: %w", err)
	}
	return tag.RowsAffected(), nil
}
