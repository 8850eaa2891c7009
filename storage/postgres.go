package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"iacollector/models"
)

// Store wraps one of the two collector databases.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, connString string) (*Store, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Stores bundles the detail and simple databases. Data-path files load into
// the detail store, visualisation files into the simple store.
type Stores struct {
	Detail *Store
	Simple *Store
}

func NewStores(ctx context.Context, detailURL, simpleURL string) (*Stores, error) {
	detail, err := NewStore(ctx, detailURL)
	if err != nil {
		return nil, fmt.Errorf("detail store: %w", err)
	}
	simple, err := NewStore(ctx, simpleURL)
	if err != nil {
		detail.Close()
		return nil, fmt.Errorf("simple store: %w", err)
	}
	return &Stores{Detail: detail, Simple: simple}, nil
}

func (s *Stores) ByPath(kind models.PathKind) *Store {
	if kind == models.PathVisualisations {
		return s.Simple
	}
	return s.Detail
}

func (s *Stores) Close() {
	if s.Detail != nil {
		s.Detail.Close()
	}
	if s.Simple != nil {
		s.Simple.Close()
	}
}
