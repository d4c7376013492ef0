// Package postgres implements the storage facade over a pgx connection
// pool. Every sub-repository shares an optional transaction through the
// queryer indirection.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
	"github.com/bmlt-enabled/tomato/internal/domain/users"
	"github.com/bmlt-enabled/tomato/internal/storage"
)

type Repository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewRepository(pool *pgxpool.Pool) (*Repository, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres repository: pool is nil")
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) RootServers() rootservers.Repository {
	return &RootServerRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) ServiceBodies() servicebodies.Repository {
	return &ServiceBodyRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Formats() formats.Repository {
	return &FormatRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Meetings() meetings.Repository {
	return &MeetingRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Users() users.Repository {
	return &UserRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) Problems() storage.ProblemRepository {
	return &ProblemRepository{pool: r.pool, tx: r.tx}
}

func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, storage.Repository) error) error {
	if r.tx != nil {
		return fn(ctx, r)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Repository{pool: r.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Reset drops the pooled connections. The importer calls it after a
// database-class failure so the next root starts on fresh connections.
func (r *Repository) Reset() {
	r.pool.Reset()
}

// queryer is the query surface shared by the pool and a transaction.
type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type RootServerRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type ServiceBodyRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type FormatRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type MeetingRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type UserRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

type ProblemRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}
