package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createTable = `CREATE TABLE IF NOT EXISTS bench_metrics (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL,
	doc        JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const insertDoc = `INSERT INTO bench_metrics (name, doc) VALUES ($1, $2) RETURNING id`

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore appends every document as a JSONB row.
type PostgresStore struct {
	db    querier
	close func()
}

// Connect creates a connection pool and verifies it.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool, close: pool.Close}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("create bench_metrics: %w", err)
	}
	return nil
}

func (s *PostgresStore) Save(ctx context.Context, name string, doc []byte) (string, error) {
	if !validName(name) {
		return "", ErrInvalidName
	}
	var id int64
	if err := s.db.QueryRow(ctx, insertDoc, name, doc).Scan(&id); err != nil {
		return "", fmt.Errorf("insert %s: %w", name, err)
	}
	return fmt.Sprintf("postgres://bench_metrics/%d", id), nil
}

func (s *PostgresStore) Close() error {
	if s.close != nil {
		s.close()
	}
	return nil
}
