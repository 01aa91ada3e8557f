package db

import (
	"context"
	"database/sql"

	"github.com/mcdev12/leaguetimers/go/internal/sqlutil"
)

// Store is a Querier that can also run a group of queries in one transaction.
// Queries issued on the Store itself run outside any transaction.
type Store interface {
	Querier
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// SQLStore is the Postgres-backed Store.
type SQLStore struct {
	*Queries
	db *sql.DB
}

func NewStore(sqlDB *sql.DB) *SQLStore {
	return &SQLStore{
		Queries: New(sqlDB),
		db:      sqlDB,
	}
}

func (s *SQLStore) InTx(ctx context.Context, fn func(q Querier) error) error {
	return sqlutil.Run(ctx, s.db, s.Queries.WithTx, func(q *Queries) error {
		return fn(q)
	})
}

// Ping checks connectivity for health endpoints.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
