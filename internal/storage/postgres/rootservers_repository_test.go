package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/domain/rootservers"
)

func TestRootServerRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &RootServerRepository{pool: pool}

	created, err := repo.Upsert(ctx, rootservers.UpsertParams{
		SourceID:   7,
		Name:       "Hawaii Region",
		URL:        "https://bmlt.hawaii.example.org/main_server",
		ServerInfo: `[{"version":"3.0.3"}]`,
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), created.SourceID)
	require.Equal(t, "Hawaii Region", created.Name)
	require.Equal(t, 0, created.NumMeetings)

	// An identical upsert writes nothing.
	same, err := repo.Upsert(ctx, rootservers.UpsertParams{
		SourceID:   7,
		Name:       "Hawaii Region",
		URL:        "https://bmlt.hawaii.example.org/main_server",
		ServerInfo: `[{"version":"3.0.3"}]`,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, same.ID)
	require.True(t, same.UpdatedAt.Equal(created.UpdatedAt))

	changed, err := repo.Upsert(ctx, rootservers.UpsertParams{
		SourceID:   7,
		Name:       "Hawaii Region",
		URL:        "https://bmlt.hawaii.example.org/main_server",
		ServerInfo: `[{"version":"3.0.4"}]`,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, changed.ID)
	require.Equal(t, `[{"version":"3.0.4"}]`, changed.ServerInfo)
	require.True(t, changed.UpdatedAt.After(created.UpdatedAt))
}

func TestRootServerRepositoryListAndGet(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &RootServerRepository{pool: pool}

	idB := insertRootServer(t, ctx, pool, 2, "Bravo", "https://b.example.org")
	insertRootServer(t, ctx, pool, 1, "Alpha", "https://a.example.org")

	servers, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, servers, 2)
	require.Equal(t, "Bravo", servers[0].Name)
	require.Equal(t, "Alpha", servers[1].Name)

	got, err := repo.GetByID(ctx, idB)
	require.NoError(t, err)
	require.Equal(t, "Bravo", got.Name)

	_, err = repo.GetByID(ctx, idB+999)
	require.ErrorIs(t, err, rootservers.ErrNotFound)
}

func TestRootServerRepositoryDeleteAbsentCascades(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &RootServerRepository{pool: pool}

	keepID := insertRootServer(t, ctx, pool, 1, "Keep", "https://keep.example.org")
	dropID := insertRootServer(t, ctx, pool, 2, "Drop", "https://drop.example.org")
	bodyID := insertServiceBody(t, ctx, pool, dropID, 10, "Gone Area", "AS")
	insertMeeting(t, ctx, pool, meetingSeed{
		RootServerID: dropID, ServiceBodyID: bodyID, SourceID: 100,
		Name: "Gone Meeting", Weekday: 2, Published: true,
	})

	deleted, err := repo.DeleteAbsent(ctx, []int64{1})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var meetingCount int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM meetings`).Scan(&meetingCount))
	require.Equal(t, 0, meetingCount)

	_, err = repo.GetByID(ctx, dropID)
	require.ErrorIs(t, err, rootservers.ErrNotFound)
	_, err = repo.GetByID(ctx, keepID)
	require.NoError(t, err)
}

func TestRootServerRepositoryRecountCounters(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &RootServerRepository{pool: pool}

	rootID := insertRootServer(t, ctx, pool, 1, "Root", "https://root.example.org")
	insertServiceBody(t, ctx, pool, rootID, 1, "Zone", "ZF")
	insertServiceBody(t, ctx, pool, rootID, 2, "Region", "RS")
	areaID := insertServiceBody(t, ctx, pool, rootID, 3, "Area", "AS")
	insertServiceBody(t, ctx, pool, rootID, 4, "Metro", "MA")

	// Two meetings share a group world id, one has its own, and one
	// without a world id counts by name. Unpublished meetings never count.
	m1 := insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: areaID, SourceID: 1, Name: "First", Weekday: 1, Published: true})
	setMeetingInfo(t, ctx, pool, m1, "world_id", "G00001")
	m2 := insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: areaID, SourceID: 2, Name: "Second", Weekday: 2, Published: true})
	setMeetingInfo(t, ctx, pool, m2, "world_id", "G00001")
	m3 := insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: areaID, SourceID: 3, Name: "Third", Weekday: 3, Published: true})
	setMeetingInfo(t, ctx, pool, m3, "world_id", "G00002")
	insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: areaID, SourceID: 4, Name: "Unlinked", Weekday: 4, Published: true})
	insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: areaID, SourceID: 5, Name: "Hidden", Weekday: 5, Published: false})

	require.NoError(t, repo.RecountCounters(ctx, rootID))

	server, err := repo.GetByID(ctx, rootID)
	require.NoError(t, err)
	require.Equal(t, 1, server.NumZones)
	require.Equal(t, 1, server.NumRegions)
	require.Equal(t, 2, server.NumAreas)
	require.Equal(t, 4, server.NumMeetings)
	require.Equal(t, 3, server.NumGroups)
}

func TestRootServerRepositoryMarkImported(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &RootServerRepository{pool: pool}

	none, err := repo.MaxLastSuccessfulImport(ctx)
	require.NoError(t, err)
	require.Nil(t, none)

	idA := insertRootServer(t, ctx, pool, 1, "Alpha", "https://a.example.org")
	idB := insertRootServer(t, ctx, pool, 2, "Bravo", "https://b.example.org")

	earlier := time.Date(2026, 8, 1, 6, 0, 0, 0, time.UTC)
	later := time.Date(2026, 8, 2, 6, 0, 0, 0, time.UTC)
	require.NoError(t, repo.MarkImported(ctx, idA, earlier))
	require.NoError(t, repo.MarkImported(ctx, idB, later))

	server, err := repo.GetByID(ctx, idA)
	require.NoError(t, err)
	require.NotNil(t, server.LastSuccessfulImport)
	require.True(t, server.LastSuccessfulImport.Equal(earlier))

	max, err := repo.MaxLastSuccessfulImport(ctx)
	require.NoError(t, err)
	require.NotNil(t, max)
	require.True(t, max.Equal(later))
}
