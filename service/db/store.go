// Package db holds the Postgres persistence used when DATABASE_URL is set.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/brojonat/mintdash/service/metrics"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied by EnsureSchema. Each list is stored as ordered rows.
const schema = `
CREATE TABLE IF NOT EXISTS recent_mints (
	list_key   TEXT        NOT NULL,
	position   INTEGER     NOT NULL,
	mint       TEXT        NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (list_key, position)
);
`

// Store provides database operations for the service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If metrics is nil, no metrics will be recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{
		pool:    pool,
		metrics: m,
	}
}

// Connect opens a pool for databaseURL and verifies it with a ping.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create database pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// EnsureSchema creates the tables the store needs if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	start := time.Now()
	_, err := s.pool.Exec(ctx, schema)
	s.metrics.RecordDBQuery("migrate", "recent_mints", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// LoadRecentMints returns the stored list for key, most recent first.
func (s *Store) LoadRecentMints(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	rows, err := s.pool.Query(ctx,
		`SELECT mint FROM recent_mints WHERE list_key = $1 ORDER BY position`,
		key,
	)
	if err != nil {
		s.metrics.RecordDBQuery("select", "recent_mints", time.Since(start).Seconds(), err)
		return nil, fmt.Errorf("load recent mints: %w", err)
	}

	mints, err := pgx.CollectRows(rows, pgx.RowTo[string])
	s.metrics.RecordDBQuery("select", "recent_mints", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("scan recent mints: %w", err)
	}
	return mints, nil
}

// SaveRecentMints replaces the stored list for key in one transaction.
func (s *Store) SaveRecentMints(ctx context.Context, key string, mints []string) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM recent_mints WHERE list_key = $1`, key); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for i, mint := range mints {
			batch.Queue(
				`INSERT INTO recent_mints (list_key, position, mint) VALUES ($1, $2, $3)`,
				key, i, mint,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
	s.metrics.RecordDBQuery("replace", "recent_mints", time.Since(start).Seconds(), err)
	if err != nil {
		return fmt.Errorf("save recent mints: %w", err)
	}
	return nil
}

// RecentMintsList binds the store to one list key. It satisfies the
// recency list's storage backend.
type RecentMintsList struct {
	store *Store
	key   string
}

// RecentMints returns the list stored under key.
func (s *Store) RecentMints(key string) *RecentMintsList {
	return &RecentMintsList{store: s, key: key}
}

func (l *RecentMintsList) Load(ctx context.Context) ([]string, error) {
	return l.store.LoadRecentMints(ctx, l.key)
}

func (l *RecentMintsList) Save(ctx context.Context, mints []string) error {
	return l.store.SaveRecentMints(ctx, l.key, mints)
}
