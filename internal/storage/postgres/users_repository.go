package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/bmlt-enabled/tomato/internal/domain/users"
)

var _ users.Repository = (*UserRepository)(nil)

// bootstrapLockID serializes the superuser bootstrap across replicas.
const bootstrapLockID = 2

func (r *UserRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*users.User, error) {
	var user users.User
	var createdAt pgtype.Timestamptz
	err := r.queryer().QueryRow(ctx, `
SELECT id, username, email, password_hash, is_superuser, created_at
  FROM users
 WHERE username = $1
`, username).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.IsSuperuser,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, users.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if createdAt.Valid {
		user.CreatedAt = createdAt.Time
	}
	return &user, nil
}

func (r *UserRepository) EnsureSuperuser(ctx context.Context, params users.CreateParams) (bool, error) {
	if r.tx != nil {
		return r.ensureSuperuser(ctx, r.tx, params)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	created, err := r.ensureSuperuser(ctx, tx, params)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit tx: %w", err)
	}
	return created, nil
}

func (r *UserRepository) ensureSuperuser(ctx context.Context, tx pgx.Tx, params users.CreateParams) (bool, error) {
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, bootstrapLockID); err != nil {
		return false, fmt.Errorf("acquire bootstrap lock: %w", err)
	}
	tag, err := tx.Exec(ctx, `
INSERT INTO users (username, email, password_hash, is_superuser)
VALUES ($1, $2, $3, $4)
ON CONFLICT (username) DO NOTHING
`, params.Username, params.Email, params.PasswordHash, params.IsSuperuser)
	if err != nil {
		return false, fmt.Errorf("ensure superuser: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
