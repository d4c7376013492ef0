package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/storage"
)

func TestProblemRepositoryRecordAndClear(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &ProblemRepository{pool: pool}
	rootA := insertRootServer(t, ctx, pool, 1, "Alpha", "https://a.example.org")
	rootB := insertRootServer(t, ctx, pool, 2, "Bravo", "https://b.example.org")

	require.NoError(t, repo.Record(ctx, storage.ImportProblem{
		RootServerID: rootA,
		Message:      "service body 42 does not exist",
		Data:         `{"id_bigint":"7"}`,
	}))
	require.NoError(t, repo.Record(ctx, storage.ImportProblem{
		RootServerID: rootA,
		Message:      "weekday out of range",
		Data:         `{"id_bigint":"8","weekday_tinyint":"9"}`,
	}))
	require.NoError(t, repo.Record(ctx, storage.ImportProblem{
		RootServerID: rootB,
		Message:      "missing meeting name",
		Data:         `{"id_bigint":"1"}`,
	}))

	problems, err := repo.ListByRootServer(ctx, rootA)
	require.NoError(t, err)
	require.Len(t, problems, 2)
	require.Equal(t, "service body 42 does not exist", problems[0].Message)
	require.Equal(t, `{"id_bigint":"7"}`, problems[0].Data)
	require.Equal(t, "weekday out of range", problems[1].Message)

	require.NoError(t, repo.Clear(ctx, rootA))

	problems, err = repo.ListByRootServer(ctx, rootA)
	require.NoError(t, err)
	require.Empty(t, problems)

	problems, err = repo.ListByRootServer(ctx, rootB)
	require.NoError(t, err)
	require.Len(t, problems, 1)
}

func TestProblemRepositoryClearedByRootCascade(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &ProblemRepository{pool: pool}
	rootID := insertRootServer(t, ctx, pool, 1, "Alpha", "https://a.example.org")
	require.NoError(t, repo.Record(ctx, storage.ImportProblem{RootServerID: rootID, Message: "bad row", Data: "{}"}))

	rootRepo := &RootServerRepository{pool: pool}
	deleted, err := rootRepo.DeleteAbsent(ctx, []int64{})
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM import_problems`).Scan(&count))
	require.Equal(t, 0, count)
}
