package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

func TestMeetingRepositoryUpsert(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &MeetingRepository{pool: pool}
	rootID := insertRootServer(t, ctx, pool, 1, "Root", "https://root.example.org")
	bodyID := insertServiceBody(t, ctx, pool, rootID, 1, "Area", "AS")

	created, err := repo.Upsert(ctx, meetings.UpsertParams{
		RootServerID:  rootID,
		ServiceBodyID: bodyID,
		SourceID:      42,
		Name:          "Hawaii Kai Candlelight",
		Weekday:       2,
		VenueType:     intPtr(1),
		StartTime:     &meetings.TimeOfDay{Hour: 19, Minute: 30},
		Duration:      &meetings.Duration{Hours: 1, Minutes: 30},
		Language:      "en",
		Latitude:      strPtr("21.331020000000"),
		Longitude:     strPtr("-157.703950000000"),
		Published:     true,
	})
	require.NoError(t, err)
	require.Equal(t, int64(42), created.SourceID)
	require.Equal(t, 2, created.Weekday)
	require.Equal(t, &meetings.TimeOfDay{Hour: 19, Minute: 30}, created.StartTime)
	require.Equal(t, &meetings.Duration{Hours: 1, Minutes: 30}, created.Duration)
	require.NotNil(t, created.Latitude)
	require.Equal(t, "21.331020000000", *created.Latitude)

	// The stored geography point follows the coordinates.
	var lat, lon float64
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT ST_Y(point::geometry), ST_X(point::geometry) FROM meetings WHERE id = $1`,
		created.ID).Scan(&lat, &lon))
	require.InDelta(t, 21.33102, lat, 0.000001)
	require.InDelta(t, -157.70395, lon, 0.000001)

	again, err := repo.Upsert(ctx, meetings.UpsertParams{
		RootServerID:  rootID,
		ServiceBodyID: bodyID,
		SourceID:      42,
		Name:          "Hawaii Kai Candlelight",
		Weekday:       2,
		VenueType:     intPtr(1),
		StartTime:     &meetings.TimeOfDay{Hour: 19, Minute: 30},
		Duration:      &meetings.Duration{Hours: 1, Minutes: 30},
		Language:      "en",
		Latitude:      strPtr("21.331020000000"),
		Longitude:     strPtr("-157.703950000000"),
		Published:     true,
	})
	require.NoError(t, err)
	require.Equal(t, created, again)

	moved, err := repo.Upsert(ctx, meetings.UpsertParams{
		RootServerID:  rootID,
		ServiceBodyID: bodyID,
		SourceID:      42,
		Name:          "Hawaii Kai Candlelight",
		Weekday:       3,
		VenueType:     nil,
		StartTime:     nil,
		Duration:      nil,
		Language:      "en",
		Latitude:      nil,
		Longitude:     nil,
		Published:     false,
		Deleted:       true,
	})
	require.NoError(t, err)
	require.Equal(t, created.ID, moved.ID)
	require.Equal(t, 3, moved.Weekday)
	require.Nil(t, moved.VenueType)
	require.Nil(t, moved.StartTime)
	require.Nil(t, moved.Duration)
	require.Nil(t, moved.Latitude)
	require.False(t, moved.Published)
	require.True(t, moved.Deleted)

	var hasPoint bool
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT point IS NOT NULL FROM meetings WHERE id = $1`, created.ID).Scan(&hasPoint))
	require.False(t, hasPoint)
}

func TestMeetingRepositoryUpsertInfo(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &MeetingRepository{pool: pool}
	rootID := insertRootServer(t, ctx, pool, 1, "Root", "https://root.example.org")
	bodyID := insertServiceBody(t, ctx, pool, rootID, 1, "Area", "AS")

	meeting, err := repo.Upsert(ctx, meetings.UpsertParams{
		RootServerID:  rootID,
		ServiceBodyID: bodyID,
		SourceID:      1,
		Name:          "Meeting",
		Weekday:       1,
		Language:      "en",
		Published:     true,
	})
	require.NoError(t, err)

	info := meetings.Info{
		LocationText:         "Aloha Center",
		LocationMunicipality: "Honolulu",
		WorldID:              "G00001",
	}
	require.NoError(t, repo.UpsertInfo(ctx, meeting.ID, info))

	var locationText, municipality, worldID string
	require.NoError(t, pool.QueryRow(ctx, `
SELECT location_text, location_municipality, world_id FROM meeting_info WHERE meeting_id = $1
`, meeting.ID).Scan(&locationText, &municipality, &worldID))
	require.Equal(t, "Aloha Center", locationText)
	require.Equal(t, "Honolulu", municipality)
	require.Equal(t, "G00001", worldID)

	info.LocationMunicipality = "Kailua"
	require.NoError(t, repo.UpsertInfo(ctx, meeting.ID, info))
	require.NoError(t, pool.QueryRow(ctx, `
SELECT location_municipality FROM meeting_info WHERE meeting_id = $1
`, meeting.ID).Scan(&municipality))
	require.Equal(t, "Kailua", municipality)

	var count int
	require.NoError(t, pool.QueryRow(ctx, `SELECT count(*) FROM meeting_info`).Scan(&count))
	require.Equal(t, 1, count)
}

func TestMeetingRepositoryReplaceFormats(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &MeetingRepository{pool: pool}
	rootID := insertRootServer(t, ctx, pool, 1, "Root", "https://root.example.org")
	bodyID := insertServiceBody(t, ctx, pool, rootID, 1, "Area", "AS")
	meetingID := insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: bodyID, SourceID: 1, Name: "Meeting", Weekday: 1, Published: true})
	f1 := insertFormat(t, ctx, pool, rootID, 1, "OPEN")
	f2 := insertFormat(t, ctx, pool, rootID, 2, "CLOSED")
	f3 := insertFormat(t, ctx, pool, rootID, 3, "W")

	require.NoError(t, repo.ReplaceFormats(ctx, meetingID, []int64{f2, f1}))
	require.Equal(t, []int64{f1, f2}, linkedFormats(t, ctx, pool, meetingID))

	// Same set in another order with duplicates is a no-op.
	require.NoError(t, repo.ReplaceFormats(ctx, meetingID, []int64{f1, f2, f1}))
	require.Equal(t, []int64{f1, f2}, linkedFormats(t, ctx, pool, meetingID))

	require.NoError(t, repo.ReplaceFormats(ctx, meetingID, []int64{f3}))
	require.Equal(t, []int64{f3}, linkedFormats(t, ctx, pool, meetingID))

	require.NoError(t, repo.ReplaceFormats(ctx, meetingID, nil))
	require.Empty(t, linkedFormats(t, ctx, pool, meetingID))
}

func linkedFormats(t *testing.T, ctx context.Context, pool *pgxpool.Pool, meetingID int64) []int64 {
	t.Helper()
	rows, err := pool.Query(ctx, `SELECT format_id FROM meeting_formats WHERE meeting_id = $1 ORDER BY format_id`, meetingID)
	require.NoError(t, err)
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		require.NoError(t, rows.Scan(&id))
		ids = append(ids, id)
	}
	require.NoError(t, rows.Err())
	return ids
}

func TestMeetingRepositoryDeleteAbsent(t *testing.T) {
	ctx := context.Background()
	pool, _ := setupPostgres(t, ctx)

	repo := &MeetingRepository{pool: pool}
	rootID := insertRootServer(t, ctx, pool, 1, "Root", "https://root.example.org")
	otherRootID := insertRootServer(t, ctx, pool, 2, "Other", "https://other.example.org")
	bodyID := insertServiceBody(t, ctx, pool, rootID, 1, "Area", "AS")
	otherBodyID := insertServiceBody(t, ctx, pool, otherRootID, 1, "Area", "AS")

	insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: bodyID, SourceID: 1, Name: "Keep", Weekday: 1, Published: true})
	insertMeeting(t, ctx, pool, meetingSeed{RootServerID: rootID, ServiceBodyID: bodyID, SourceID: 2, Name: "Drop", Weekday: 2, Published: true})
	insertMeeting(t, ctx, pool, meetingSeed{RootServerID: otherRootID, ServiceBodyID: otherBodyID, SourceID: 2, Name: "Untouched", Weekday: 3, Published: true})

	deleted, err := repo.DeleteAbsent(ctx, rootID, []int64{1})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	var names []string
	rows, err := pool.Query(ctx, `SELECT name FROM meetings ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	require.Equal(t, []string{"Keep", "Untouched"}, names)
}
