// Package storage wraps the Postgres-compatible relational store
// (pgx/pgxpool) that backs the Symbol Registry and the three append-only
// stream tables: a connect-and-ping constructor, Migrate, and Close.
package storage

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store wraps a shared pgxpool.Pool used by the registry and read API.
// Sink workers get their own dedicated single-connection pool instead (see
// NewPriorityPool) so a slow write path can't starve registry lookups.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to Postgres at dsn, pings, and runs the schema
// migration.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Println("connected to postgres")
	return s, nil
}

// Pool returns the underlying shared pool.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Close releases the pool.
func (s *Store) Close() { s.pool.Close() }

// Migrate applies the schema DDL. Safe to call repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	return EnsureSchema(ctx, s.pool)
}

// NewPriorityPool opens a dedicated single-connection pool for a sink
// worker, so that one slow or stuck batch insert cannot starve the shared
// pool used by the registry and read API.
func NewPriorityPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.MaxConns = 1
	cfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open priority pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping priority pool: %w", err)
	}
	return pool, nil
}
