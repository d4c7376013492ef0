package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
	"github.com/bmlt-enabled/tomato/internal/storage"
)

func TestRepositoryWithTxCommits(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	err = repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		_, err := tx.RootServers().Upsert(ctx, rootservers.UpsertParams{
			SourceID: 1, Name: "Alpha", URL: "https://a.example.org",
		})
		return err
	})
	require.NoError(t, err)

	servers, err := repo.RootServers().List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 1)
	require.Equal(t, "Alpha", servers[0].Name)
}

func TestRepositoryWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo, err := NewRepository(pool)
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithTx(ctx, func(ctx context.Context, tx storage.Repository) error {
		if _, err := tx.RootServers().Upsert(ctx, rootservers.UpsertParams{
			SourceID: 1, Name: "Alpha", URL: "https://a.example.org",
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	servers, err := repo.RootServers().List(ctx)
	require.NoError(t, err)
	require.Empty(t, servers)
}
