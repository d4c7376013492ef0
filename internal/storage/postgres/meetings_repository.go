package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/metrics"
)

var _ meetings.Repository = (*MeetingRepository)(nil)

const kmPerMile = 1.609344

func (r *MeetingRepository) queryer() queryer {
	if r.tx != nil {
		return r.tx
	}
	return r.pool
}

const meetingColumns = `id, root_server_id, service_body_id, source_id, name, weekday,
       venue_type, start_time, duration, language, latitude::text, longitude::text,
       published, deleted`

// searchSelect is the row shape every meeting read query streams: the
// meeting, its info, the root url, the service body identity, and the
// format aggregates in ascending format id order. Key strings are the
// English translations.
const searchSelect = `
SELECT m.id, m.root_server_id, m.service_body_id, m.source_id, m.name, m.weekday,
       m.venue_type, m.start_time, m.duration, m.language, m.latitude::text, m.longitude::text,
       m.published, m.deleted,
       mi.email, mi.location_text, mi.location_info, mi.location_street,
       mi.location_city_subsection, mi.location_neighborhood, mi.location_municipality,
       mi.location_sub_province, mi.location_province, mi.location_postal_code_1,
       mi.location_nation, mi.train_lines, mi.bus_lines, mi.world_id, mi.comments,
       mi.virtual_meeting_link, mi.phone_meeting_number, mi.virtual_meeting_additional_info,
       rs.url, sb.name, sb.world_id,
       coalesce(fmt.ids, '{}'), coalesce(fmt.key_strings, '{}'), coalesce(fmt.world_ids, '{}')
  FROM meetings m
  JOIN meeting_info mi ON mi.meeting_id = m.id
  JOIN root_servers rs ON rs.id = m.root_server_id
  JOIN service_bodies sb ON sb.id = m.service_body_id
  LEFT JOIN LATERAL (
       SELECT array_agg(mf.format_id ORDER BY mf.format_id) AS ids,
              array_agg(tf.key_string ORDER BY mf.format_id) FILTER (WHERE tf.key_string IS NOT NULL) AS key_strings,
              array_agg(f.world_id ORDER BY mf.format_id) FILTER (WHERE f.world_id <> '') AS world_ids
         FROM meeting_formats mf
         JOIN formats f ON f.id = mf.format_id
         LEFT JOIN translated_formats tf ON tf.format_id = mf.format_id AND tf.language = 'en'
        WHERE mf.meeting_id = m.id
       ) fmt ON TRUE`

func (r *MeetingRepository) getBySourceID(ctx context.Context, rootServerID, sourceID int64) (*meetings.Meeting, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+meetingColumns+`
  FROM meetings
 WHERE root_server_id = $1 AND source_id = $2
`, rootServerID, sourceID)
	return scanMeeting(row)
}

func (r *MeetingRepository) Upsert(ctx context.Context, params meetings.UpsertParams) (*meetings.Meeting, error) {
	current, err := r.getBySourceID(ctx, params.RootServerID, params.SourceID)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("load meeting: %w", err)
		}
		row := r.queryer().QueryRow(ctx, `
INSERT INTO meetings (root_server_id, service_body_id, source_id, name, weekday, venue_type,
                      start_time, duration, language, latitude, longitude, published, deleted)
VALUES ($1, $2, $3, $4, $5, $6, $7::time, $8::interval, $9, $10::numeric, $11::numeric, $12, $13)
RETURNING `+meetingColumns+`
`, params.RootServerID, params.ServiceBodyID, params.SourceID, params.Name, params.Weekday,
			params.VenueType, timeParam(params.StartTime), durationParam(params.Duration),
			params.Language, params.Latitude, params.Longitude, params.Published, params.Deleted)
		meeting, err := scanMeeting(row)
		if err != nil {
			return nil, fmt.Errorf("insert meeting: %w", err)
		}
		return meeting, nil
	}

	var cs changeSet
	if current.ServiceBodyID != params.ServiceBodyID {
		cs.set("service_body_id", params.ServiceBodyID)
	}
	if current.Name != params.Name {
		cs.set("name", params.Name)
	}
	if current.Weekday != params.Weekday {
		cs.set("weekday", params.Weekday)
	}
	if !intPtrEqual(current.VenueType, params.VenueType) {
		cs.set("venue_type", params.VenueType)
	}
	if !timePtrEqual(current.StartTime, params.StartTime) {
		cs.setCast("start_time", "time", timeParam(params.StartTime))
	}
	if !durationPtrEqual(current.Duration, params.Duration) {
		cs.setCast("duration", "interval", durationParam(params.Duration))
	}
	if current.Language != params.Language {
		cs.set("language", params.Language)
	}
	if !decimalPtrEqual(current.Latitude, params.Latitude) {
		cs.setCast("latitude", "numeric", params.Latitude)
	}
	if !decimalPtrEqual(current.Longitude, params.Longitude) {
		cs.setCast("longitude", "numeric", params.Longitude)
	}
	if current.Published != params.Published {
		cs.set("published", params.Published)
	}
	if current.Deleted != params.Deleted {
		cs.set("deleted", params.Deleted)
	}
	if cs.empty() {
		return current, nil
	}
	cs.args = append(cs.args, current.ID)
	sql := fmt.Sprintf("UPDATE meetings SET %s WHERE id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return nil, fmt.Errorf("update meeting: %w", err)
	}
	return r.getBySourceID(ctx, params.RootServerID, params.SourceID)
}

func (r *MeetingRepository) UpsertInfo(ctx context.Context, meetingID int64, info meetings.Info) error {
	var current meetings.Info
	err := r.queryer().QueryRow(ctx, `
SELECT `+strings.Join(infoColumns, ", ")+`
  FROM meeting_info
 WHERE meeting_id = $1
`, meetingID).Scan(infoFields(&current)...)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("load meeting info: %w", err)
		}
		args := append([]any{meetingID}, infoValues(info)...)
		placeholders := make([]string, len(args))
		for i := range placeholders {
			placeholders[i] = "$" + strconv.Itoa(i+1)
		}
		_, err := r.queryer().Exec(ctx, `
INSERT INTO meeting_info (meeting_id, `+strings.Join(infoColumns, ", ")+`)
VALUES (`+strings.Join(placeholders, ", ")+`)
`, args...)
		if err != nil {
			return fmt.Errorf("insert meeting info: %w", err)
		}
		return nil
	}

	var cs changeSet
	currentValues, wantValues := infoValues(current), infoValues(info)
	for i, column := range infoColumns {
		if currentValues[i] != wantValues[i] {
			cs.set(column, wantValues[i])
		}
	}
	if cs.empty() {
		return nil
	}
	cs.args = append(cs.args, meetingID)
	sql := fmt.Sprintf("UPDATE meeting_info SET %s WHERE meeting_id = $%d", strings.Join(cs.sets, ", "), len(cs.args))
	if _, err := r.queryer().Exec(ctx, sql, cs.args...); err != nil {
		return fmt.Errorf("update meeting info: %w", err)
	}
	return nil
}

func (r *MeetingRepository) ReplaceFormats(ctx context.Context, meetingID int64, formatIDs []int64) error {
	rows, err := r.queryer().Query(ctx, `
SELECT format_id FROM meeting_formats WHERE meeting_id = $1 ORDER BY format_id
`, meetingID)
	if err != nil {
		return fmt.Errorf("list meeting formats: %w", err)
	}
	var current []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan meeting format: %w", err)
		}
		current = append(current, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate meeting formats: %w", err)
	}

	desired := dedupeSorted(formatIDs)
	if int64SlicesEqual(current, desired) {
		return nil
	}

	if _, err := r.queryer().Exec(ctx, `DELETE FROM meeting_formats WHERE meeting_id = $1`, meetingID); err != nil {
		return fmt.Errorf("clear meeting formats: %w", err)
	}
	if len(desired) == 0 {
		return nil
	}
	_, err = r.queryer().Exec(ctx, `
INSERT INTO meeting_formats (meeting_id, format_id)
SELECT $1, unnest($2::bigint[])
`, meetingID, desired)
	if err != nil {
		return fmt.Errorf("link meeting formats: %w", err)
	}
	return nil
}

func (r *MeetingRepository) DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error) {
	if keepSourceIDs == nil {
		keepSourceIDs = []int64{}
	}
	tag, err := r.queryer().Exec(ctx, `
DELETE FROM meetings
 WHERE root_server_id = $1
   AND NOT (source_id = ANY($2))
`, rootServerID, keepSourceIDs)
	if err != nil {
		return 0, fmt.Errorf("delete absent meetings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// NAWSDump streams every meeting of the given bodies that carries an
// info world id, regardless of the published and deleted flags.
func (r *MeetingRepository) NAWSDump(ctx context.Context, serviceBodyIDs []int64) (meetings.ResultStream, error) {
	if serviceBodyIDs == nil {
		serviceBodyIDs = []int64{}
	}
	start := time.Now()
	rows, err := r.queryer().Query(ctx, searchSelect+`
 WHERE m.service_body_id = ANY($1)
   AND mi.world_id <> ''
 ORDER BY m.id
`, serviceBodyIDs)
	metrics.RecordQuery("naws_dump", start, err)
	if err != nil {
		return nil, fmt.Errorf("naws dump: %w", err)
	}
	return &resultStream{rows: rows}, nil
}

func (r *MeetingRepository) Centroid(ctx context.Context) (*float64, *float64, error) {
	var lat, lon *float64
	err := r.queryer().QueryRow(ctx, `
SELECT avg(latitude)::float8, avg(longitude)::float8
  FROM meetings
 WHERE latitude IS NOT NULL AND longitude IS NOT NULL
   AND published AND NOT deleted
`).Scan(&lat, &lon)
	if err != nil {
		return nil, nil, fmt.Errorf("meeting centroid: %w", err)
	}
	return lat, lon, nil
}

// resultStream owns the pgx cursor of a meeting read query and closes
// it on every exit path.
type resultStream struct {
	rows   pgx.Rows
	center *orb.Point
	err    error
}

func (s *resultStream) Next() (*meetings.SearchResult, bool) {
	if s.err != nil {
		return nil, false
	}
	if !s.rows.Next() {
		return nil, false
	}
	result, err := scanSearchResult(s.rows, s.center)
	if err != nil {
		s.err = err
		s.rows.Close()
		return nil, false
	}
	return result, true
}

func (s *resultStream) Err() error {
	if s.err != nil {
		return s.err
	}
	return s.rows.Err()
}

func (s *resultStream) Close() {
	s.rows.Close()
}

func scanMeeting(row pgx.Row) (*meetings.Meeting, error) {
	var m meetings.Meeting
	var startTime pgtype.Time
	var duration pgtype.Interval
	if err := row.Scan(
		&m.ID,
		&m.RootServerID,
		&m.ServiceBodyID,
		&m.SourceID,
		&m.Name,
		&m.Weekday,
		&m.VenueType,
		&startTime,
		&duration,
		&m.Language,
		&m.Latitude,
		&m.Longitude,
		&m.Published,
		&m.Deleted,
	); err != nil {
		return nil, err
	}
	m.StartTime = timeOfDayFromPg(startTime)
	m.Duration = durationFromPg(duration)
	return &m, nil
}

func scanSearchResult(row pgx.Row, center *orb.Point) (*meetings.SearchResult, error) {
	var res meetings.SearchResult
	var startTime pgtype.Time
	var duration pgtype.Interval
	if err := row.Scan(
		&res.ID,
		&res.RootServerID,
		&res.ServiceBodyID,
		&res.SourceID,
		&res.Name,
		&res.Weekday,
		&res.VenueType,
		&startTime,
		&duration,
		&res.Language,
		&res.Latitude,
		&res.Longitude,
		&res.Published,
		&res.Deleted,
		&res.Info.Email,
		&res.Info.LocationText,
		&res.Info.LocationInfo,
		&res.Info.LocationStreet,
		&res.Info.LocationCitySubsection,
		&res.Info.LocationNeighborhood,
		&res.Info.LocationMunicipality,
		&res.Info.LocationSubProvince,
		&res.Info.LocationProvince,
		&res.Info.LocationPostalCode1,
		&res.Info.LocationNation,
		&res.Info.TrainLines,
		&res.Info.BusLines,
		&res.Info.WorldID,
		&res.Info.Comments,
		&res.Info.VirtualMeetingLink,
		&res.Info.PhoneMeetingNumber,
		&res.Info.VirtualMeetingAdditionalInfo,
		&res.RootServerURL,
		&res.ServiceBodyName,
		&res.ServiceBodyWorldID,
		&res.FormatIDs,
		&res.FormatKeyStrings,
		&res.FormatWorldIDs,
	); err != nil {
		return nil, err
	}
	res.StartTime = timeOfDayFromPg(startTime)
	res.Duration = durationFromPg(duration)
	res.Distance = distanceFrom(center, res.Latitude, res.Longitude)
	return &res, nil
}

// distanceFrom annotates a geo search row with its distance from the
// search center, in both kilometers and miles.
func distanceFrom(center *orb.Point, latitude, longitude *string) *meetings.Distance {
	if center == nil || latitude == nil || longitude == nil {
		return nil
	}
	lat, err := strconv.ParseFloat(*latitude, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(*longitude, 64)
	if err != nil {
		return nil
	}
	km := geo.Distance(*center, orb.Point{lon, lat}) / 1000
	return &meetings.Distance{Km: km, Miles: km / kmPerMile}
}

var infoColumns = []string{
	"email", "location_text", "location_info", "location_street",
	"location_city_subsection", "location_neighborhood", "location_municipality",
	"location_sub_province", "location_province", "location_postal_code_1",
	"location_nation", "train_lines", "bus_lines", "world_id", "comments",
	"virtual_meeting_link", "phone_meeting_number", "virtual_meeting_additional_info",
}

func infoFields(info *meetings.Info) []any {
	return []any{
		&info.Email, &info.LocationText, &info.LocationInfo, &info.LocationStreet,
		&info.LocationCitySubsection, &info.LocationNeighborhood, &info.LocationMunicipality,
		&info.LocationSubProvince, &info.LocationProvince, &info.LocationPostalCode1,
		&info.LocationNation, &info.TrainLines, &info.BusLines, &info.WorldID, &info.Comments,
		&info.VirtualMeetingLink, &info.PhoneMeetingNumber, &info.VirtualMeetingAdditionalInfo,
	}
}

func infoValues(info meetings.Info) []any {
	return []any{
		info.Email, info.LocationText, info.LocationInfo, info.LocationStreet,
		info.LocationCitySubsection, info.LocationNeighborhood, info.LocationMunicipality,
		info.LocationSubProvince, info.LocationProvince, info.LocationPostalCode1,
		info.LocationNation, info.TrainLines, info.BusLines, info.WorldID, info.Comments,
		info.VirtualMeetingLink, info.PhoneMeetingNumber, info.VirtualMeetingAdditionalInfo,
	}
}

func dedupeSorted(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	dst := out[:1]
	for _, id := range out[1:] {
		if id != dst[len(dst)-1] {
			dst = append(dst, id)
		}
	}
	return dst
}
