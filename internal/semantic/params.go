package semantic

import (
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

const kmPerMile = 1.609344

// AddressQuery asks for a geocoded center point. Exactly one of
// NearestN and RadiusMiles is set after parsing; the default is the
// ten nearest meetings.
type AddressQuery struct {
	Query       string
	NearestN    int
	RadiusMiles float64
}

// SearchQuery is a parsed GetSearchResults request. Criteria still
// carries the raw service-body include set; recursion and address
// geocoding resolve later against the repositories.
type SearchQuery struct {
	Criteria    meetings.SearchCriteria
	Recursive   bool
	Address     *AddressQuery
	Projection  []string
	UsedFormats bool
	FormatsOnly bool
}

// ParseSearchQuery reads the GetSearchResults parameter set. Signed list
// parameters accept the scalar or the indexed spelling, the scalar
// winning when both appear; unparseable members are skipped.
func ParseSearchQuery(q url.Values) SearchQuery {
	var out SearchQuery
	c := &out.Criteria

	ids, _ := signedInt64s(q, "meeting_ids")
	c.MeetingIDs = ids
	c.WeekdaysInclude, c.WeekdaysExclude = signedInts(q, "weekdays")
	c.VenueTypesInclude, c.VenueTypesExclude = signedInts(q, "venue_types")
	c.ServicesInclude, c.ServicesExclude = signedInt64s(q, "services")
	c.FormatsInclude, c.FormatsExclude = signedInt64s(q, "formats")
	c.FormatsOrMode = q.Get("formats_comparison_operator") == "OR"
	c.RootsInclude, c.RootsExclude = signedInt64s(q, "root_server_ids")
	out.Recursive = q.Get("recursive") == "1"
	out.UsedFormats = q.Get("get_used_formats") == "1"
	out.FormatsOnly = q.Get("get_formats_only") == "1"

	if key, value := q.Get("meeting_key"), q.Get("meeting_key_value"); key != "" && value != "" && IsSearchKey(key) {
		c.MeetingKey, c.MeetingKeyValue = key, value
	}

	c.StartsAfter = parseTimeParam(q.Get("StartsAfterH"), q.Get("StartsAfterM"))
	c.StartsBefore = parseTimeParam(q.Get("StartsBeforeH"), q.Get("StartsBeforeM"))
	c.EndsBefore = parseTimeParam(q.Get("EndsBeforeH"), q.Get("EndsBeforeM"))
	c.MinDuration = parseDurationParam(q.Get("MinDurationH"), q.Get("MinDurationM"))
	c.MaxDuration = parseDurationParam(q.Get("MaxDurationH"), q.Get("MaxDurationM"))

	c.SortByDistance = q.Get("sort_results_by_distance") == "1"

	searchString := q.Get("SearchString")
	if searchString != "" && q.Get("StringSearchIsAnAddress") == "1" {
		out.Address = parseAddressQuery(searchString, q.Get("SearchStringRadius"))
	} else {
		c.Geo = parseGeoParams(q)
		if searchString != "" {
			c.Text = parseTextQuery(searchString, q.Get("SearchStringAll") == "1", q.Get("SearchStringExact") == "1")
		}
	}

	out.Projection = catalogKeys(q.Get("data_field_key"), false)
	if !c.SortByDistance {
		c.SortKeys = catalogKeys(q.Get("sort_keys"), true)
	}

	if size, err := strconv.Atoi(q.Get("page_size")); err == nil && size > 0 {
		c.PageSize = size
		c.PageNum = 1
		if num, err := strconv.Atoi(q.Get("page_num")); err == nil && num > 0 {
			c.PageNum = num
		}
	}
	return out
}

// FormatsQuery is a parsed GetFormats request.
type FormatsQuery struct {
	Filter formats.RowFilter
}

func ParseFormatsQuery(q url.Values) FormatsQuery {
	var out FormatsQuery
	out.Filter.RootServersInclude, out.Filter.RootServersExclude = rootServerFilter(q)
	out.Filter.KeyStrings = stringList(q, "key_strings")
	out.Filter.Language = q.Get("lang_enum")
	return out
}

// ServiceBodiesQuery is a parsed GetServiceBodies request.
type ServiceBodiesQuery struct {
	RootsInclude []int64
	RootsExclude []int64
	Include      []int64
	Exclude      []int64
	Recursive    bool
	Parents      bool
}

func ParseServiceBodiesQuery(q url.Values) ServiceBodiesQuery {
	var out ServiceBodiesQuery
	out.RootsInclude, out.RootsExclude = rootServerFilter(q)
	out.Include, out.Exclude = signedInt64s(q, "services")
	out.Recursive = q.Get("recursive") == "1"
	out.Parents = q.Get("parents") == "1"
	return out
}

// listParam returns the raw values of a scalar-or-indexed parameter.
// The scalar spelling wins when present, and only its first value
// counts.
func listParam(q url.Values, name string) []string {
	if q.Has(name) {
		return []string{q.Get(name)}
	}
	return q[name+"[]"]
}

func stringList(q url.Values, name string) []string {
	var out []string
	for _, v := range listParam(q, name) {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}

func signedInts(q url.Values, name string) (include, exclude []int) {
	for _, raw := range listParam(q, name) {
		n, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil {
			continue
		}
		switch {
		case n > 0:
			include = append(include, n)
		case n < 0:
			exclude = append(exclude, -n)
		}
	}
	return include, exclude
}

func signedInt64s(q url.Values, name string) (include, exclude []int64) {
	for _, raw := range listParam(q, name) {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			continue
		}
		switch {
		case n > 0:
			include = append(include, n)
		case n < 0:
			exclude = append(exclude, -n)
		}
	}
	return include, exclude
}

// rootServerFilter merges the scalar root_server_id spelling with the
// signed root_server_ids list.
func rootServerFilter(q url.Values) (include, exclude []int64) {
	if raw := q.Get("root_server_id"); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			include = append(include, id)
		}
	}
	inc, exc := signedInt64s(q, "root_server_ids")
	return append(include, inc...), exc
}

func parseTimeParam(hour, minute string) *meetings.TimeOfDay {
	if hour == "" {
		return nil
	}
	h, err := strconv.Atoi(hour)
	if err != nil || h < 0 || h > 23 {
		return nil
	}
	m := 0
	if minute != "" {
		m, err = strconv.Atoi(minute)
		if err != nil || m < 0 || m > 59 {
			return nil
		}
	}
	return &meetings.TimeOfDay{Hour: h, Minute: m}
}

func parseDurationParam(hour, minute string) *meetings.Duration {
	if hour == "" && minute == "" {
		return nil
	}
	total := 0
	if hour != "" {
		h, err := strconv.Atoi(hour)
		if err != nil {
			return nil
		}
		total += h * 60
	}
	if minute != "" {
		m, err := strconv.Atoi(minute)
		if err != nil {
			return nil
		}
		total += m
	}
	if total < 0 {
		return nil
	}
	return &meetings.Duration{Hours: total / 60, Minutes: total % 60}
}

// parseGeoParams builds the geo restriction from lat_val, long_val and
// one of the width params. Any malformed member silently disables the
// whole restriction. geo_width is in miles and wins over geo_width_km;
// a negative width asks for the |width| nearest meetings instead of a
// radius.
func parseGeoParams(q url.Values) *meetings.GeoCriteria {
	latRaw, lonRaw := q.Get("lat_val"), q.Get("long_val")
	widthRaw, widthKmRaw := q.Get("geo_width"), q.Get("geo_width_km")
	if latRaw == "" || lonRaw == "" || (widthRaw == "" && widthKmRaw == "") {
		return nil
	}
	lat, err := strconv.ParseFloat(latRaw, 64)
	if err != nil {
		return nil
	}
	lon, err := strconv.ParseFloat(lonRaw, 64)
	if err != nil {
		return nil
	}
	geo := &meetings.GeoCriteria{Latitude: lat, Longitude: lon}
	raw, inMiles := widthKmRaw, false
	if widthRaw != "" {
		raw, inMiles = widthRaw, true
	}
	width, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	if width < 0 {
		n := int(-width)
		geo.NearestN = &n
		return geo
	}
	if inMiles {
		width *= kmPerMile
	}
	geo.RadiusKm = &width
	return geo
}

func parseAddressQuery(query, radiusRaw string) *AddressQuery {
	out := &AddressQuery{Query: query, NearestN: 10}
	if radiusRaw != "" {
		if radius, err := strconv.ParseFloat(radiusRaw, 64); err == nil {
			if radius < 0 {
				out.NearestN = int(-radius)
			} else if radius > 0 {
				out.NearestN = 0
				out.RadiusMiles = radius
			}
		}
	}
	return out
}

// parseTextQuery tokenizes the free-text search. Exact mode keeps the
// whole string for substring matching. Otherwise tokens shorter than
// three runes and the stopword "the" are dropped, and tokens that are
// standalone integers additionally match as meeting ids.
func parseTextQuery(query string, all, exact bool) *meetings.TextCriteria {
	if exact {
		return &meetings.TextCriteria{Exact: true, Query: query}
	}
	text := &meetings.TextCriteria{All: all, Query: query}
	for _, token := range strings.Fields(query) {
		if utf8.RuneCountInString(token) < 3 || strings.EqualFold(token, "the") {
			continue
		}
		if id, err := strconv.ParseInt(token, 10, 64); err == nil {
			text.MeetingIDs = append(text.MeetingIDs, id)
		}
		text.Tokens = append(text.Tokens, token)
	}
	if len(text.Tokens) == 0 && len(text.MeetingIDs) == 0 {
		return nil
	}
	return text
}

// catalogKeys parses a comma-separated external key list, dropping
// unknown names and duplicates. Sort lists additionally drop the
// many-to-many keys, which have no single column to order by.
func catalogKeys(raw string, forSort bool) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, key := range strings.Split(raw, ",") {
		key = strings.TrimSpace(key)
		if !IsSearchKey(key) {
			continue
		}
		if forSort && IsManyToManyKey(key) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
