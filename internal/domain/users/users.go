// Package users holds the administrative account model. The aggregator
// has no end-user accounts; the only write path is the superuser
// bootstrap that runs at startup.
package users

import (
	"context"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var ErrNotFound = errors.New("user not found")

// BcryptCost is the cost factor for password hashing.
const BcryptCost = 12

type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	IsSuperuser  bool
	CreatedAt    time.Time
}

type CreateParams struct {
	Username     string
	Email        string
	PasswordHash string
	IsSuperuser  bool
}

type Repository interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	// EnsureSuperuser creates the named superuser when absent and reports
	// whether a row was created. Concurrent replicas serialize on an
	// advisory lock, so exactly one of them creates the account.
	EnsureSuperuser(ctx context.Context, params CreateParams) (bool, error)
}

// HashPassword hashes a plaintext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether the plaintext matches the stored hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
