package postgres

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/metrics"
)

// searchColumn maps one external field key onto SQL: match is the
// canonical text of the column for meeting_key equality and field-value
// grouping, sort is the native expression for ordering.
type searchColumn struct {
	match string
	sort  string
}

var searchColumns = map[string]searchColumn{
	"id_bigint":                       {"m.id::text", "m.id"},
	"worldid_mixed":                   {"mi.world_id", "mi.world_id"},
	"service_body_bigint":             {"m.service_body_id::text", "m.service_body_id"},
	"weekday_tinyint":                 {"m.weekday::text", "m.weekday"},
	"venue_type":                      {"m.venue_type::text", "m.venue_type"},
	"start_time":                      {"to_char(m.start_time, 'HH24:MI:SS')", "m.start_time"},
	"duration_time":                   {"to_char(m.duration, 'HH24:MI:SS')", "m.duration"},
	"lang_enum":                       {"m.language", "m.language"},
	"longitude":                       {"m.longitude::text", "m.longitude"},
	"latitude":                        {"m.latitude::text", "m.latitude"},
	"meeting_name":                    {"m.name", "m.name"},
	"location_text":                   {"mi.location_text", "mi.location_text"},
	"location_info":                   {"mi.location_info", "mi.location_info"},
	"location_street":                 {"mi.location_street", "mi.location_street"},
	"location_city_subsection":        {"mi.location_city_subsection", "mi.location_city_subsection"},
	"location_neighborhood":           {"mi.location_neighborhood", "mi.location_neighborhood"},
	"location_municipality":           {"mi.location_municipality", "mi.location_municipality"},
	"location_sub_province":           {"mi.location_sub_province", "mi.location_sub_province"},
	"location_province":               {"mi.location_province", "mi.location_province"},
	"location_postal_code_1":          {"mi.location_postal_code_1", "mi.location_postal_code_1"},
	"location_nation":                 {"mi.location_nation", "mi.location_nation"},
	"comments":                        {"mi.comments", "mi.comments"},
	"train_lines":                     {"mi.train_lines", "mi.train_lines"},
	"bus_lines":                       {"mi.bus_lines", "mi.bus_lines"},
	"phone_meeting_number":            {"mi.phone_meeting_number", "mi.phone_meeting_number"},
	"virtual_meeting_link":            {"mi.virtual_meeting_link", "mi.virtual_meeting_link"},
	"virtual_meeting_additional_info": {"mi.virtual_meeting_additional_info", "mi.virtual_meeting_additional_info"},
	"published":                       {"CASE WHEN m.published THEN '1' ELSE '0' END", "m.published"},
	"root_server_id":                  {"m.root_server_id::text", "m.root_server_id"},
	"root_server_uri":                 {"rs.url", "rs.url"},
}

const searchFrom = `
  FROM meetings m
  JOIN meeting_info mi ON mi.meeting_id = m.id
  JOIN root_servers rs ON rs.id = m.root_server_id
  JOIN service_bodies sb ON sb.id = m.service_body_id`

// searchTextExpr is the haystack of the free-text search: the meeting
// name, the location fields, and the comments, space-joined.
const searchTextExpr = `concat_ws(' ', m.name, mi.location_text, mi.location_info, mi.location_street,
            mi.location_city_subsection, mi.location_neighborhood, mi.location_municipality,
            mi.location_sub_province, mi.location_province, mi.location_postal_code_1,
            mi.location_nation, mi.comments)`

// meetingQuery accumulates WHERE clauses and their positional args.
type meetingQuery struct {
	where []string
	args  []any
}

func (q *meetingQuery) arg(v any) string {
	q.args = append(q.args, v)
	return "$" + strconv.Itoa(len(q.args))
}

func (q *meetingQuery) add(clause string) {
	q.where = append(q.where, clause)
}

func (q *meetingQuery) clause() string {
	return strings.Join(q.where, "\n   AND ")
}

// point renders the search center as a geography literal, appending the
// coordinates to the arg list.
func (q *meetingQuery) point(g *meetings.GeoCriteria) string {
	return fmt.Sprintf("ST_SetSRID(ST_MakePoint(%s, %s), 4326)::geography", q.arg(g.Longitude), q.arg(g.Latitude))
}

func newMeetingFilters(c meetings.SearchCriteria) *meetingQuery {
	q := &meetingQuery{}
	q.add("m.published")
	q.add("NOT m.deleted")

	if len(c.MeetingIDs) > 0 {
		q.add("m.id = ANY(" + q.arg(c.MeetingIDs) + ")")
	}
	if len(c.WeekdaysInclude) > 0 {
		q.add("m.weekday = ANY(" + q.arg(toInt32s(c.WeekdaysInclude)) + ")")
	}
	if len(c.WeekdaysExclude) > 0 {
		q.add("m.weekday <> ALL(" + q.arg(toInt32s(c.WeekdaysExclude)) + ")")
	}
	if len(c.VenueTypesInclude) > 0 {
		q.add("m.venue_type = ANY(" + q.arg(toInt32s(c.VenueTypesInclude)) + ")")
	}
	if len(c.VenueTypesExclude) > 0 {
		// Meetings without a venue type survive a venue exclusion.
		q.add("(m.venue_type IS NULL OR m.venue_type <> ALL(" + q.arg(toInt32s(c.VenueTypesExclude)) + "))")
	}
	if len(c.ServicesInclude) > 0 {
		q.add("m.service_body_id = ANY(" + q.arg(c.ServicesInclude) + ")")
	}
	if len(c.ServicesExclude) > 0 {
		q.add("m.service_body_id <> ALL(" + q.arg(c.ServicesExclude) + ")")
	}
	if len(c.RootsInclude) > 0 {
		q.add("m.root_server_id = ANY(" + q.arg(c.RootsInclude) + ")")
	}
	if len(c.RootsExclude) > 0 {
		q.add("m.root_server_id <> ALL(" + q.arg(c.RootsExclude) + ")")
	}
	if len(c.FormatsInclude) > 0 {
		include := dedupeSorted(c.FormatsInclude)
		if c.FormatsOrMode {
			q.add("EXISTS (SELECT 1 FROM meeting_formats mf WHERE mf.meeting_id = m.id AND mf.format_id = ANY(" + q.arg(include) + "))")
		} else {
			q.add(fmt.Sprintf(`m.id IN (SELECT mf.meeting_id
          FROM meeting_formats mf
         WHERE mf.format_id = ANY(%s)
         GROUP BY mf.meeting_id
        HAVING count(DISTINCT mf.format_id) = %s)`, q.arg(include), q.arg(len(include))))
		}
	}
	if len(c.FormatsExclude) > 0 {
		q.add("NOT EXISTS (SELECT 1 FROM meeting_formats mf WHERE mf.meeting_id = m.id AND mf.format_id = ANY(" + q.arg(c.FormatsExclude) + "))")
	}

	if c.MeetingKey != "" && c.MeetingKeyValue != "" {
		switch c.MeetingKey {
		case "formats":
			q.add(`EXISTS (SELECT 1
          FROM meeting_formats mf
          JOIN translated_formats tf ON tf.format_id = mf.format_id
         WHERE mf.meeting_id = m.id AND tf.key_string = ` + q.arg(c.MeetingKeyValue) + `)`)
		case "format_shared_id_list":
			if id, err := strconv.ParseInt(c.MeetingKeyValue, 10, 64); err == nil {
				q.add("EXISTS (SELECT 1 FROM meeting_formats mf WHERE mf.meeting_id = m.id AND mf.format_id = " + q.arg(id) + ")")
			} else {
				q.add("FALSE")
			}
		case "latitude", "longitude":
			// Numeric equality, so "21.33" matches the stored
			// NUMERIC regardless of trailing zeros.
			if _, err := strconv.ParseFloat(c.MeetingKeyValue, 64); err == nil {
				q.add("m." + c.MeetingKey + " = " + q.arg(c.MeetingKeyValue) + "::numeric")
			} else {
				q.add("FALSE")
			}
		default:
			if col, ok := searchColumns[c.MeetingKey]; ok {
				q.add(col.match + " = " + q.arg(c.MeetingKeyValue))
			} else {
				q.add("FALSE")
			}
		}
	}

	if c.StartsAfter != nil {
		q.add("m.start_time > " + q.arg(c.StartsAfter.String()) + "::time")
	}
	if c.StartsBefore != nil {
		q.add("m.start_time < " + q.arg(c.StartsBefore.String()) + "::time")
	}
	if c.EndsBefore != nil {
		q.add("(m.start_time + m.duration) <= " + q.arg(c.EndsBefore.String()) + "::time")
	}
	if c.MinDuration != nil {
		q.add("m.duration >= " + q.arg(c.MinDuration.String()) + "::interval")
	}
	if c.MaxDuration != nil {
		q.add("m.duration <= " + q.arg(c.MaxDuration.String()) + "::interval")
	}

	if c.Text != nil {
		if c.Text.Exact {
			q.add(searchTextExpr + " ILIKE " + q.arg("%"+escapeLike(c.Text.Query)+"%"))
		} else {
			var parts []string
			if len(c.Text.Tokens) > 0 {
				parts = append(parts, "to_tsvector('simple', "+searchTextExpr+") @@ to_tsquery('simple', "+q.arg(tsQuery(c.Text.Tokens, c.Text.All))+")")
			}
			if len(c.Text.MeetingIDs) > 0 {
				parts = append(parts, "m.id = ANY("+q.arg(c.Text.MeetingIDs)+")")
			}
			if len(parts) > 0 {
				q.add("(" + strings.Join(parts, " OR ") + ")")
			}
		}
	}

	return q
}

// buildPlan resolves the criteria into a WHERE plan. A nearest-N geo
// restriction runs its own pre-query here, so the returned plan is a
// plain id restriction by the time the main query executes.
func (r *MeetingRepository) buildPlan(ctx context.Context, c meetings.SearchCriteria) (*meetingQuery, *orb.Point, error) {
	q := newMeetingFilters(c)
	if c.Geo == nil {
		return q, nil, nil
	}
	center := orb.Point{c.Geo.Longitude, c.Geo.Latitude}
	switch {
	case c.Geo.RadiusKm != nil:
		q.add(fmt.Sprintf("ST_DWithin(m.point, %s, %s)", q.point(c.Geo), q.arg(*c.Geo.RadiusKm*1000)))
	case c.Geo.NearestN != nil:
		ids, err := r.nearestIDs(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		if len(ids) == 0 {
			q.add("FALSE")
		} else {
			q.add("m.id = ANY(" + q.arg(ids) + ")")
		}
	}
	return q, &center, nil
}

func (r *MeetingRepository) nearestIDs(ctx context.Context, c meetings.SearchCriteria) ([]int64, error) {
	q := newMeetingFilters(c)
	q.add("m.point IS NOT NULL")
	sql := "SELECT m.id" + searchFrom + "\n WHERE " + q.clause() +
		"\n ORDER BY ST_Distance(m.point, " + q.point(c.Geo) + ")" +
		"\n LIMIT " + q.arg(*c.Geo.NearestN)
	rows, err := r.queryer().Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("nearest meetings: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan nearest meeting: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate nearest meetings: %w", err)
	}
	return ids, nil
}

func (r *MeetingRepository) Search(ctx context.Context, criteria meetings.SearchCriteria) (meetings.ResultStream, error) {
	q, center, err := r.buildPlan(ctx, criteria)
	if err != nil {
		return nil, err
	}
	sql := searchSelect + "\n WHERE " + q.clause() + "\n ORDER BY " + searchOrder(criteria, q)
	if criteria.PageSize > 0 {
		page := criteria.PageNum
		if page < 1 {
			page = 1
		}
		sql += fmt.Sprintf("\n LIMIT %d OFFSET %d", criteria.PageSize, (page-1)*criteria.PageSize)
	}
	start := time.Now()
	rows, err := r.queryer().Query(ctx, sql, q.args...)
	metrics.RecordQuery("search_meetings", start, err)
	if err != nil {
		return nil, fmt.Errorf("search meetings: %w", err)
	}
	return &resultStream{rows: rows, center: center}, nil
}

// searchOrder builds the ORDER BY list. Explicit sort keys and the
// default ordering get a trailing id key so pagination stays stable.
func searchOrder(c meetings.SearchCriteria, q *meetingQuery) string {
	if c.SortByDistance && c.Geo != nil {
		return fmt.Sprintf("ST_Distance(m.point, %s), m.id", q.point(c.Geo))
	}
	var keys []string
	for _, key := range c.SortKeys {
		col, ok := searchColumns[key]
		if !ok {
			continue
		}
		keys = append(keys, col.sort+" NULLS FIRST")
	}
	if len(keys) == 0 {
		return "m.language, m.weekday, m.start_time NULLS FIRST, m.id"
	}
	return strings.Join(append(keys, "m.id"), ", ")
}

func (r *MeetingRepository) UsedFormatIDs(ctx context.Context, criteria meetings.SearchCriteria) ([]int64, error) {
	q, _, err := r.buildPlan(ctx, criteria)
	if err != nil {
		return nil, err
	}
	sql := "SELECT DISTINCT mf.format_id" + searchFrom + `
  JOIN meeting_formats mf ON mf.meeting_id = m.id
 WHERE ` + q.clause() + `
 ORDER BY mf.format_id`
	rows, err := r.queryer().Query(ctx, sql, q.args...)
	if err != nil {
		return nil, fmt.Errorf("used format ids: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan used format id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate used format ids: %w", err)
	}
	return ids, nil
}

func (r *MeetingRepository) FieldValues(ctx context.Context, params meetings.FieldValuesParams) ([]meetings.FieldValue, error) {
	q := &meetingQuery{}
	q.add("m.published")
	q.add("NOT m.deleted")
	if len(params.RootServers) > 0 {
		q.add("m.root_server_id = ANY(" + q.arg(params.RootServers) + ")")
	}

	var expr, from string
	switch params.Key {
	case "formats", "format_shared_id_list":
		// Group by the attached format id list as one value.
		expr = "fmt.ids_text"
		from = searchFrom + `
  LEFT JOIN LATERAL (
       SELECT array_to_string(array_agg(mf.format_id ORDER BY mf.format_id), ',') AS ids_text
         FROM meeting_formats mf
        WHERE mf.meeting_id = m.id
       ) fmt ON TRUE`
	default:
		col, ok := searchColumns[params.Key]
		if !ok {
			return nil, fmt.Errorf("field values: unknown field %q", params.Key)
		}
		expr = col.match
		from = searchFrom
	}

	sql := "SELECT " + expr + " AS value, array_agg(m.id ORDER BY m.id)" + from + `
 WHERE ` + q.clause() + `
 GROUP BY 1
 ORDER BY 1 NULLS FIRST`
	start := time.Now()
	rows, err := r.queryer().Query(ctx, sql, q.args...)
	metrics.RecordQuery("field_values", start, err)
	if err != nil {
		return nil, fmt.Errorf("field values: %w", err)
	}
	defer rows.Close()
	var out []meetings.FieldValue
	for rows.Next() {
		var fv meetings.FieldValue
		if err := rows.Scan(&fv.Value, &fv.MeetingIDs); err != nil {
			return nil, fmt.Errorf("scan field value: %w", err)
		}
		out = append(out, fv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate field values: %w", err)
	}
	return out, nil
}

func tsQuery(tokens []string, all bool) string {
	escaper := strings.NewReplacer(`\`, `\\`, `'`, `''`)
	quoted := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		quoted = append(quoted, "'"+escaper.Replace(tok)+"'")
	}
	sep := " | "
	if all {
		sep = " & "
	}
	return strings.Join(quoted, sep)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func toInt32s(xs []int) []int32 {
	out := make([]int32, len(xs))
	for i, x := range xs {
		out[i] = int32(x)
	}
	return out
}
