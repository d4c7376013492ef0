// Package storage declares the persistence facade the rest of the
// application programs against.
package storage

import (
	"context"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
	"github.com/bmlt-enabled/tomato/internal/domain/users"
)

// Repository groups data access by domain.
type Repository interface {
	RootServers() rootservers.Repository
	ServiceBodies() servicebodies.Repository
	Formats() formats.Repository
	Meetings() meetings.Repository
	Users() users.Repository
	Problems() ProblemRepository

	// WithTx runs fn inside one transaction; every repository reached
	// through the passed facade shares it.
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
}

// ImportProblem is one rejected record of an import pass.
type ImportProblem struct {
	RootServerID int64
	Message      string
	Data         string
}

type ProblemRepository interface {
	Record(ctx context.Context, problem ImportProblem) error
	// Clear drops the problems of a root before its records re-import.
	Clear(ctx context.Context, rootServerID int64) error
	ListByRootServer(ctx context.Context, rootServerID int64) ([]ImportProblem, error)
}
