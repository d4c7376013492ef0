package semantic

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/bmlt-enabled/tomato/internal/config"
	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
)

// ErrInvalidFieldKey rejects a GetFieldValues request whose meeting_key
// is not in the searchable catalog.
var ErrInvalidFieldKey = errors.New("meeting_key is not a searchable field")

// Response format names, matching the path segment of the semantic
// endpoint.
const (
	FormatJSON  = "json"
	FormatJSONP = "jsonp"
	FormatCSV   = "csv"
	FormatXML   = "xml"
	FormatKML   = "kml"
	FormatPOI   = "poi"
)

// Geocoder resolves a street address to coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, address string) (lat, lon float64, err error)
}

// Service answers the semantic switchers against the aggregated
// catalog. Every method returns streams; rendering happens in the
// transport layer.
type Service struct {
	meetings     meetings.Repository
	bodies       servicebodies.Repository
	formats      formats.Repository
	translations *formats.TranslationCache
	geocoder     Geocoder
	mapCenter    config.MapConfig
	logger       zerolog.Logger
}

func NewService(
	meetingRepo meetings.Repository,
	bodyRepo servicebodies.Repository,
	formatRepo formats.Repository,
	translations *formats.TranslationCache,
	geocoder Geocoder,
	mapCenter config.MapConfig,
	logger zerolog.Logger,
) *Service {
	return &Service{
		meetings:     meetingRepo,
		bodies:       bodyRepo,
		formats:      formatRepo,
		translations: translations,
		geocoder:     geocoder,
		mapCenter:    mapCenter,
		logger:       logger,
	}
}

// SearchPayload bundles the streams of one GetSearchResults response.
// Meetings is nil when only the used formats were requested; Formats is
// nil unless get_used_formats was set.
type SearchPayload struct {
	Meetings   RecordStream
	Formats    RecordStream
	Projection []string
}

// Search runs GetSearchResults. The response format decides which
// streams the payload needs: JSON and XML add the used formats beside
// the meetings, CSV can only carry one table, and KML/POI ignore the
// format switches entirely. A request without any restrictive filter
// yields empty streams without touching the database, and a failed
// address geocode degrades the same way.
func (s *Service) Search(ctx context.Context, q url.Values, format string) (*SearchPayload, error) {
	parsed := ParseSearchQuery(q)
	criteria := parsed.Criteria
	lang := Language(ctx)

	if format == FormatPOI {
		// The POI table is always a weekday-ordered list.
		criteria.SortKeys = []string{"weekday_tinyint"}
		criteria.SortByDistance = false
	}

	wantFormats, wantMeetings := searchStreams(format, parsed.UsedFormats, parsed.FormatsOnly)

	snapshot, err := s.translations.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading format translations: %w", err)
	}

	if parsed.Recursive && len(criteria.ServicesInclude) > 0 {
		all, err := s.bodies.List(ctx)
		if err != nil {
			return nil, fmt.Errorf("expanding service bodies: %w", err)
		}
		criteria.ServicesInclude = servicebodies.Descendants(all, criteria.ServicesInclude)
	}

	searchable := true
	if parsed.Address != nil {
		geo, ok := s.resolveAddress(ctx, parsed.Address)
		if !ok {
			searchable = false
		}
		criteria.Geo = geo
	}
	if searchable {
		searchable = criteria.HasFilter()
	}

	payload := &SearchPayload{Projection: parsed.Projection}
	if wantFormats {
		payload.Formats, err = s.usedFormats(ctx, criteria, lang, searchable)
		if err != nil {
			return nil, err
		}
	}
	if !wantMeetings {
		return payload, nil
	}

	if !searchable {
		payload.Meetings = NewSliceStream(nil)
		return payload, nil
	}
	stream, err := s.meetings.Search(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("searching meetings: %w", err)
	}
	payload.Meetings = NewMeetingStream(stream, lang, snapshot)
	return payload, nil
}

// searchStreams resolves the get_used_formats and get_formats_only
// switches against the response format.
func searchStreams(format string, usedFormats, formatsOnly bool) (wantFormats, wantMeetings bool) {
	switch format {
	case FormatKML, FormatPOI:
		return false, true
	case FormatCSV:
		if formatsOnly {
			return true, false
		}
		return false, true
	default:
		if usedFormats {
			return true, !formatsOnly
		}
		return false, true
	}
}

func (s *Service) resolveAddress(ctx context.Context, addr *AddressQuery) (*meetings.GeoCriteria, bool) {
	lat, lon, err := s.geocoder.Geocode(ctx, addr.Query)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", addr.Query).Msg("geocode failed, returning empty result")
		return nil, false
	}
	geo := &meetings.GeoCriteria{Latitude: lat, Longitude: lon}
	if addr.RadiusMiles > 0 {
		radius := addr.RadiusMiles * kmPerMile
		geo.RadiusKm = &radius
	} else {
		n := addr.NearestN
		geo.NearestN = &n
	}
	return geo, true
}

func (s *Service) usedFormats(ctx context.Context, criteria meetings.SearchCriteria, lang string, searchable bool) (RecordStream, error) {
	if !searchable {
		return NewSliceStream(nil), nil
	}
	ids, err := s.meetings.UsedFormatIDs(ctx, criteria)
	if err != nil {
		return nil, fmt.Errorf("collecting used formats: %w", err)
	}
	if len(ids) == 0 {
		return NewSliceStream(nil), nil
	}
	rows, err := s.formats.ListRows(ctx, formats.RowFilter{FormatIDs: ids, Language: lang})
	if err != nil {
		return nil, fmt.Errorf("loading used formats: %w", err)
	}
	return formatRowStream(rows), nil
}

// Formats runs GetFormats.
func (s *Service) Formats(ctx context.Context, q url.Values) (RecordStream, error) {
	parsed := ParseFormatsQuery(q)
	rows, err := s.formats.ListRows(ctx, parsed.Filter)
	if err != nil {
		return nil, fmt.Errorf("listing formats: %w", err)
	}
	return formatRowStream(rows), nil
}

// ServiceBodies runs GetServiceBodies. Filters apply include first with
// optional recursion, then exclude, then the parents expansion.
func (s *Service) ServiceBodies(ctx context.Context, q url.Values) (RecordStream, error) {
	parsed := ParseServiceBodiesQuery(q)
	all, err := s.bodies.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing service bodies: %w", err)
	}

	bodies := filterByRoot(all, parsed.RootsInclude, parsed.RootsExclude)
	selected := make(map[int64]struct{}, len(bodies))
	if len(parsed.Include) > 0 {
		ids := parsed.Include
		if parsed.Recursive {
			ids = servicebodies.Descendants(bodies, ids)
		}
		for _, id := range ids {
			selected[id] = struct{}{}
		}
	} else {
		for _, b := range bodies {
			selected[b.ID] = struct{}{}
		}
	}
	for _, id := range parsed.Exclude {
		delete(selected, id)
	}
	if parsed.Parents {
		kept := make([]int64, 0, len(selected))
		for id := range selected {
			kept = append(kept, id)
		}
		for _, id := range servicebodies.Ancestors(bodies, kept) {
			selected[id] = struct{}{}
		}
	}

	records := make([]Record, 0, len(selected))
	for i := range bodies {
		b := &bodies[i]
		if _, ok := selected[b.ID]; !ok {
			continue
		}
		records = append(records, ServiceBodyRecord{Body: b, ParentID: calculatedParentID(b)})
	}
	return NewSliceStream(records), nil
}

// FieldKeys runs GetFieldKeys.
func (s *Service) FieldKeys() RecordStream {
	records := make([]Record, len(SearchKeys))
	for i, k := range SearchKeys {
		records[i] = MapRecord{"key": String(k.Key), "description": String(k.Description)}
	}
	return NewSliceStream(records)
}

// FieldValues runs GetFieldValues, returning the stream together with
// the per-key column map of the response.
func (s *Service) FieldValues(ctx context.Context, q url.Values) (RecordStream, Map, error) {
	key := q.Get("meeting_key")
	if !IsSearchKey(key) {
		return nil, nil, ErrInvalidFieldKey
	}
	params := meetings.FieldValuesParams{Key: key}
	if raw := q.Get("root_server_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			params.RootServers = append(params.RootServers, id)
		}
	}
	values, err := s.meetings.FieldValues(ctx, params)
	if err != nil {
		return nil, nil, fmt.Errorf("listing field values: %w", err)
	}

	field, _ := MeetingsMap.Lookup(key)
	path := field.Accessor.path
	recordKey := strings.ReplaceAll(path, ".", "__")
	records := make([]Record, len(values))
	for i, v := range values {
		ids := make([]string, len(v.MeetingIDs))
		for j, id := range v.MeetingIDs {
			ids[j] = strconv.FormatInt(id, 10)
		}
		records[i] = MapRecord{recordKey: fieldValue(key, v.Value), "ids": List(ids)}
	}
	responseMap := Map{
		{Name: key, Accessor: Path(path)},
		{Name: "ids", Accessor: Path("ids")},
	}
	return NewSliceStream(records), responseMap, nil
}

// fieldValue wraps a raw column value in the kind its rendering needs.
// The repository returns canonical text for every column except the
// coordinate decimals, which still carry their stored scale.
func fieldValue(key string, raw *string) Value {
	if raw == nil {
		return Null()
	}
	switch key {
	case "latitude", "longitude":
		return Decimal(*raw)
	}
	return String(*raw)
}

// ServerInfo runs GetServerInfo. The reported languages are the
// distinct translation languages; the map center falls back to the
// meeting centroid when no override is configured. The Google API key
// is configuration and never rendered.
func (s *Service) ServerInfo(ctx context.Context) (RecordStream, error) {
	snapshot, err := s.translations.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading format translations: %w", err)
	}

	centerLon, centerLat := Null(), Null()
	if s.mapCenter.CenterLatitude != 0 || s.mapCenter.CenterLongitude != 0 {
		centerLon = Float(s.mapCenter.CenterLongitude)
		centerLat = Float(s.mapCenter.CenterLatitude)
	} else {
		lat, lon, err := s.meetings.Centroid(ctx)
		if err != nil {
			return nil, fmt.Errorf("computing meeting centroid: %w", err)
		}
		if lat != nil && lon != nil {
			centerLon = Float(*lon)
			centerLat = Float(*lat)
		}
	}

	record := MapRecord{
		"version":           String("5.0.0"),
		"versionInt":        String("5000000"),
		"langs":             List(snapshot.Languages()),
		"nativeLang":        String(formats.FallbackLanguage),
		"centerLongitude":   centerLon,
		"centerLatitude":    centerLat,
		"centerZoom":        Int(int64(s.mapCenter.CenterZoom)),
		"available_keys":    String(AvailableKeys()),
		"changesPerMeeting": String("0"),
		"google_api_key":    String(""),
	}
	return NewSliceStream([]Record{record}), nil
}

// NAWSDump runs GetNAWSDump for one aggregator service body. The caller
// maps servicebodies.ErrNotFound to a rejected request.
func (s *Service) NAWSDump(ctx context.Context, serviceBodyID int64) (RecordStream, error) {
	body, err := s.bodies.GetByID(ctx, serviceBodyID)
	if err != nil {
		return nil, err
	}
	rootBodies, err := s.bodies.ListByRootServer(ctx, body.RootServerID)
	if err != nil {
		return nil, fmt.Errorf("listing service bodies: %w", err)
	}
	ids := servicebodies.Descendants(rootBodies, []int64{serviceBodyID})
	stream, err := s.meetings.NAWSDump(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("dumping meetings: %w", err)
	}
	return NewMeetingStream(stream, formats.FallbackLanguage, nil), nil
}

func calculatedParentID(b *servicebodies.ServiceBody) int64 {
	if b.ParentID == nil {
		return 0
	}
	return *b.ParentID
}

func filterByRoot(bodies []servicebodies.ServiceBody, include, exclude []int64) []servicebodies.ServiceBody {
	if len(include) == 0 && len(exclude) == 0 {
		return bodies
	}
	includeSet := make(map[int64]struct{}, len(include))
	for _, id := range include {
		includeSet[id] = struct{}{}
	}
	excludeSet := make(map[int64]struct{}, len(exclude))
	for _, id := range exclude {
		excludeSet[id] = struct{}{}
	}
	out := make([]servicebodies.ServiceBody, 0, len(bodies))
	for _, b := range bodies {
		if _, drop := excludeSet[b.RootServerID]; drop {
			continue
		}
		if len(includeSet) > 0 {
			if _, ok := includeSet[b.RootServerID]; !ok {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func formatRowStream(rows []formats.Row) RecordStream {
	records := make([]Record, len(rows))
	for i := range rows {
		records[i] = FormatRowRecord{Row: &rows[i]}
	}
	return NewSliceStream(records)
}
