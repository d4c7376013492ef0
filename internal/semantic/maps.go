package semantic

import (
	"strconv"
	"strings"
)

// weekdayNames maps the stored weekday (1 = Sunday) to its NAWS name.
var weekdayNames = [...]string{"", "Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

func hasDistance(r Record) bool {
	v, ok := r.Get("distance.km")
	return ok && !v.IsNull()
}

// MeetingsMap is the external meeting row. Column order is the wire
// order for every format; the contact columns and shared_group_id_bigint
// are kept for layout compatibility and always render empty.
var MeetingsMap = Map{
	{Name: "id_bigint", Accessor: Path("id")},
	{Name: "worldid_mixed", Accessor: Path("meetinginfo.world_id")},
	{Name: "shared_group_id_bigint", Accessor: Reserved()},
	{Name: "service_body_bigint", Accessor: Path("service_body_id")},
	{Name: "weekday_tinyint", Accessor: Path("weekday")},
	{Name: "venue_type", Accessor: Path("venue_type")},
	{Name: "start_time", Accessor: Path("start_time")},
	{Name: "duration_time", Accessor: Path("duration")},
	{Name: "formats", Accessor: PathWithFallback("formats.key_string", "formats_aggregate")},
	{Name: "lang_enum", Accessor: Path("language")},
	{Name: "longitude", Accessor: Path("longitude")},
	{Name: "latitude", Accessor: Path("latitude")},
	{Name: "distance_in_km", Accessor: Path("distance.km"), Qualifier: hasDistance},
	{Name: "distance_in_miles", Accessor: Path("distance.mi"), Qualifier: hasDistance},
	{Name: "email_contact", Accessor: Path("meetinginfo.email_contact")},
	{Name: "meeting_name", Accessor: Path("name")},
	{Name: "location_text", Accessor: Path("meetinginfo.location_text")},
	{Name: "location_info", Accessor: Path("meetinginfo.location_info")},
	{Name: "location_street", Accessor: Path("meetinginfo.location_street")},
	{Name: "location_city_subsection", Accessor: Path("meetinginfo.location_city_subsection")},
	{Name: "location_neighborhood", Accessor: Path("meetinginfo.location_neighborhood")},
	{Name: "location_municipality", Accessor: Path("meetinginfo.location_municipality")},
	{Name: "location_sub_province", Accessor: Path("meetinginfo.location_sub_province")},
	{Name: "location_province", Accessor: Path("meetinginfo.location_province")},
	{Name: "location_postal_code_1", Accessor: Path("meetinginfo.location_postal_code_1")},
	{Name: "location_nation", Accessor: Path("meetinginfo.location_nation")},
	{Name: "comments", Accessor: Path("meetinginfo.comments")},
	{Name: "train_lines", Accessor: Path("meetinginfo.train_lines")},
	{Name: "bus_lines", Accessor: Path("meetinginfo.bus_lines")},
	{Name: "phone_meeting_number", Accessor: Path("meetinginfo.phone_meeting_number")},
	{Name: "virtual_meeting_link", Accessor: Path("meetinginfo.virtual_meeting_link")},
	{Name: "virtual_meeting_additional_info", Accessor: Path("meetinginfo.virtual_meeting_additional_info")},
	{Name: "contact_phone_2", Accessor: Reserved()},
	{Name: "contact_email_2", Accessor: Reserved()},
	{Name: "contact_name_2", Accessor: Reserved()},
	{Name: "contact_phone_1", Accessor: Reserved()},
	{Name: "contact_email_1", Accessor: Reserved()},
	{Name: "contact_name_1", Accessor: Reserved()},
	{Name: "published", Accessor: Path("published")},
	{Name: "root_server_id", Accessor: Path("root_server_id")},
	{Name: "root_server_uri", Accessor: Path("root_server.url")},
	{Name: "format_shared_id_list", Accessor: PathWithFallback("formats.id", "format_shared_id_list_aggregate")},
}

// FormatsMap is the external translated-format row.
var FormatsMap = Map{
	{Name: "key_string", Accessor: Path("key_string")},
	{Name: "name_string", Accessor: Path("name")},
	{Name: "description_string", Accessor: Path("description")},
	{Name: "lang", Accessor: Path("language")},
	{Name: "id", Accessor: Path("id")},
	{Name: "root_server_id", Accessor: Path("root_server_id")},
	{Name: "world_id", Accessor: Path("world_id")},
	{Name: "root_server_uri", Accessor: Path("root_server.url")},
}

// ServiceBodiesMap is the external service-body row. parent_id is the
// calculated aggregator parent, 0 for top-level bodies.
var ServiceBodiesMap = Map{
	{Name: "id", Accessor: Path("id")},
	{Name: "parent_id", Accessor: Path("calculated_parent_id")},
	{Name: "name", Accessor: Path("name")},
	{Name: "description", Accessor: Path("description")},
	{Name: "type", Accessor: Path("type")},
	{Name: "url", Accessor: Path("url")},
	{Name: "root_server_id", Accessor: Path("root_server_id")},
	{Name: "helpline", Accessor: Path("helpline")},
	{Name: "world_id", Accessor: Path("world_id")},
}

// ServerInfoMap is the single fixed descriptor row of GetServerInfo.
var ServerInfoMap = Map{
	{Name: "version", Accessor: Path("version")},
	{Name: "versionInt", Accessor: Path("versionInt")},
	{Name: "langs", Accessor: Path("langs")},
	{Name: "nativeLang", Accessor: Path("nativeLang")},
	{Name: "centerLongitude", Accessor: Path("centerLongitude")},
	{Name: "centerLatitude", Accessor: Path("centerLatitude")},
	{Name: "centerZoom", Accessor: Path("centerZoom")},
	{Name: "available_keys", Accessor: Path("available_keys")},
	{Name: "changesPerMeeting", Accessor: Path("changesPerMeeting")},
	{Name: "google_api_key", Accessor: Path("google_api_key")},
}

// FieldKeysMap is the searchable-key catalog row.
var FieldKeysMap = Map{
	{Name: "key", Accessor: Path("key")},
	{Name: "description", Accessor: Path("description")},
}

// SearchKey is one entry of the searchable-key catalog.
type SearchKey struct {
	Key         string
	Description string
}

// SearchKeys is the catalog behind GetFieldKeys and the validation set
// for projections, sort keys, meeting_key and GetFieldValues.
var SearchKeys = []SearchKey{
	{"id_bigint", "ID"},
	{"worldid_mixed", "World ID"},
	{"service_body_bigint", "Service Body ID"},
	{"weekday_tinyint", "Weekday"},
	{"venue_type", "Venue Type"},
	{"start_time", "Start Time"},
	{"duration_time", "Duration"},
	{"formats", "Formats"},
	{"lang_enum", "Language"},
	{"longitude", "Longitude"},
	{"latitude", "Latitude"},
	{"meeting_name", "Meeting Name"},
	{"location_text", "Location Name"},
	{"location_info", "Additional Location Information"},
	{"location_street", "Street Address"},
	{"location_city_subsection", "Borough"},
	{"location_neighborhood", "Neighborhood"},
	{"location_municipality", "Town"},
	{"location_sub_province", "County"},
	{"location_province", "State"},
	{"location_postal_code_1", "Zip Code"},
	{"location_nation", "Nation"},
	{"comments", "Comments"},
	{"train_lines", "Train Lines"},
	{"bus_lines", "Bus Lines"},
	{"phone_meeting_number", "Phone Meeting Number"},
	{"virtual_meeting_link", "Virtual Meeting Link"},
	{"virtual_meeting_additional_info", "Virtual Meeting Additional Info"},
	{"published", "Published"},
	{"root_server_id", "Root Server ID"},
	{"root_server_uri", "Root Server URI"},
	{"format_shared_id_list", "Format Shared ID List"},
}

var searchKeySet = func() map[string]struct{} {
	set := make(map[string]struct{}, len(SearchKeys))
	for _, k := range SearchKeys {
		set[k.Key] = struct{}{}
	}
	return set
}()

// IsSearchKey reports whether key is in the searchable-key catalog.
func IsSearchKey(key string) bool {
	_, ok := searchKeySet[key]
	return ok
}

// AvailableKeys is the comma-joined catalog, as reported by
// GetServerInfo.
func AvailableKeys() string {
	keys := make([]string, len(SearchKeys))
	for i, k := range SearchKeys {
		keys[i] = k.Key
	}
	return strings.Join(keys, ",")
}

// manyToManyKeys cannot be sorted on and match differently as
// meeting_key.
var manyToManyKeys = map[string]struct{}{
	"formats":               {},
	"format_shared_id_list": {},
}

// IsManyToManyKey reports whether the catalog key maps to the format
// relation rather than a single column.
func IsManyToManyKey(key string) bool {
	_, ok := manyToManyKeys[key]
	return ok
}

// MeetingKMLMap is the Placemark row of the KML rendering.
var MeetingKMLMap = Map{
	{Name: "name", Accessor: Path("name")},
	{Name: "address", Accessor: Computed(kmlAddress)},
	{Name: "description", Accessor: Computed(meetingDescription)},
	{Name: "Point.coordinates", Accessor: Computed(kmlCoordinates)},
}

// MeetingPOIMap is the POI CSV row.
var MeetingPOIMap = Map{
	{Name: "lon", Accessor: Path("longitude")},
	{Name: "lat", Accessor: Path("latitude")},
	{Name: "name", Accessor: Path("name")},
	{Name: "desc", Accessor: Computed(meetingDescription)},
}

func getString(r Record, path string) string {
	v, ok := r.Get(path)
	if !ok {
		return ""
	}
	return v.Render()
}

func joinNonEmpty(sep string, parts ...string) string {
	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(sep)
		}
		b.WriteString(p)
	}
	return b.String()
}

func kmlAddress(r Record) Value {
	return String(joinNonEmpty(", ",
		getString(r, "meetinginfo.location_text"),
		getString(r, "meetinginfo.location_street"),
		getString(r, "meetinginfo.location_city_subsection"),
		getString(r, "meetinginfo.location_province"),
		getString(r, "meetinginfo.location_postal_code_1"),
		getString(r, "meetinginfo.location_nation")))
}

// meetingDescription builds the human line used by KML and the POI CSV:
// weekday name, 12-hour start time, the street address, and the extra
// location info in parentheses after the address.
func meetingDescription(r Record) Value {
	address := joinNonEmpty(", ",
		getString(r, "meetinginfo.location_street"),
		getString(r, "meetinginfo.location_city_subsection"),
		getString(r, "meetinginfo.location_province"),
		getString(r, "meetinginfo.location_postal_code_1"),
		getString(r, "meetinginfo.location_nation"))
	if info := getString(r, "meetinginfo.location_info"); info != "" {
		if address != "" {
			address += " (" + info + ")"
		} else {
			address = info
		}
	}
	return String(joinNonEmpty(", ", weekdayName(r), twelveHourTime(r), address))
}

func weekdayName(r Record) string {
	v, ok := r.Get("weekday")
	if !ok || v.IsNull() {
		return ""
	}
	day, err := strconv.Atoi(v.Render())
	if err != nil || day < 1 || day >= len(weekdayNames) {
		return ""
	}
	return weekdayNames[day]
}

func twelveHourTime(r Record) string {
	v, ok := r.Get("start_time")
	if !ok || v.IsNull() || v.Kind() != KindTime {
		return ""
	}
	hour, minute := v.time.Hour, v.time.Minute
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return strconv.Itoa(hour) + ":" + twoDigits(minute) + " " + suffix
}

func twoDigits(n int) string {
	if n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

func kmlCoordinates(r Record) Value {
	lon, lat := getString(r, "longitude"), getString(r, "latitude")
	if lon == "" || lat == "" {
		return String("")
	}
	lonF, err := strconv.ParseFloat(lon, 64)
	if err != nil {
		return String("")
	}
	latF, err := strconv.ParseFloat(lat, 64)
	if err != nil {
		return String("")
	}
	return String(strconv.FormatFloat(lonF, 'f', -1, 64) + "," + strconv.FormatFloat(latF, 'f', -1, 64) + ",0")
}
