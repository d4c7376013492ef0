package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/upstream"
)

// RecordError rejects one upstream document. Message is what lands in
// import_problems; Raw is the offending record.
type RecordError struct {
	Message string
	Raw     map[string]string
}

func (e *RecordError) Error() string { return e.Message }

func recordErrorf(raw map[string]string, format string, args ...any) *RecordError {
	return &RecordError{Message: fmt.Sprintf(format, args...), Raw: raw}
}

// MeetingRecord is one canonical meeting ready for storage, produced
// from a search-results document or a NAWS dump row. Format membership
// arrives either as format source ids or as key strings, never both.
type MeetingRecord struct {
	SourceID            int64
	ServiceBodySourceID int64
	Name                string
	Weekday             int
	VenueType           *int
	StartTime           *meetings.TimeOfDay
	Duration            *meetings.Duration
	Language            string
	Latitude            *string
	Longitude           *string
	Published           bool
	Deleted             bool
	Info                meetings.Info
	FormatSourceIDs     []int64
	FormatKeyStrings    []string
	Raw                 map[string]string
}

// NormalizeMeeting validates one GetSearchResults document and coerces
// it into a canonical record. Any rejected field returns a RecordError
// carrying the document, so the caller can file an import problem and
// move on.
func NormalizeMeeting(raw upstream.RawMeeting) (*MeetingRecord, error) {
	doc := map[string]string(raw)

	sourceID, err := requiredInt(doc, "id_bigint")
	if err != nil {
		return nil, err
	}
	bodySourceID, err := requiredInt(doc, "service_body_bigint")
	if err != nil {
		return nil, err
	}
	name, err := requiredString(doc, "meeting_name")
	if err != nil {
		return nil, err
	}
	weekday, err := parseWeekday(doc)
	if err != nil {
		return nil, err
	}
	venueType, err := optionalInt(doc, "venue_type")
	if err != nil {
		return nil, err
	}
	startTime, err := parseTimeOfDay(doc, "start_time")
	if err != nil {
		return nil, err
	}
	duration, err := parseDuration(doc, "duration_time")
	if err != nil {
		return nil, err
	}
	latitude, err := optionalDecimal(doc, "latitude")
	if err != nil {
		return nil, err
	}
	longitude, err := optionalDecimal(doc, "longitude")
	if err != nil {
		return nil, err
	}

	rec := &MeetingRecord{
		SourceID:            sourceID,
		ServiceBodySourceID: bodySourceID,
		Name:                name,
		Weekday:             weekday,
		VenueType:           venueType,
		StartTime:           startTime,
		Duration:            duration,
		Language:            doc["lang_enum"],
		Latitude:            latitude,
		Longitude:           longitude,
		Published:           doc["published"] == "1",
		Deleted:             doc["deleted"] == "1",
		Info: meetings.Info{
			Email:                        doc["email_contact"],
			LocationText:                 doc["location_text"],
			LocationInfo:                 doc["location_info"],
			LocationStreet:               doc["location_street"],
			LocationCitySubsection:       doc["location_city_subsection"],
			LocationNeighborhood:         doc["location_neighborhood"],
			LocationMunicipality:         doc["location_municipality"],
			LocationSubProvince:          doc["location_sub_province"],
			LocationProvince:             doc["location_province"],
			LocationPostalCode1:          doc["location_postal_code_1"],
			LocationNation:               doc["location_nation"],
			TrainLines:                   doc["train_lines"],
			BusLines:                     doc["bus_lines"],
			WorldID:                      doc["worldid_mixed"],
			Comments:                     doc["comments"],
			VirtualMeetingLink:           doc["virtual_meeting_link"],
			PhoneMeetingNumber:           doc["phone_meeting_number"],
			VirtualMeetingAdditionalInfo: doc["virtual_meeting_additional_info"],
		},
		Raw: doc,
	}

	if list := strings.TrimSpace(doc["format_shared_id_list"]); list != "" {
		rec.FormatSourceIDs = parseIDList(list)
	} else if keys := doc["formats"]; keys != "" {
		rec.FormatKeyStrings = distinctMembers(keys)
	}
	return rec, nil
}

func requiredString(raw map[string]string, key string) (string, error) {
	v := raw[key]
	if v == "" {
		return "", recordErrorf(raw, "Missing required key %s", key)
	}
	return v, nil
}

func requiredInt(raw map[string]string, key string) (int64, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return 0, recordErrorf(raw, "Malformed %s", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, recordErrorf(raw, "Malformed %s", key)
	}
	return n, nil
}

func optionalInt(raw map[string]string, key string) (*int, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil, recordErrorf(raw, "Malformed %s", key)
	}
	return &n, nil
}

// optionalDecimal validates a decimal and returns its text unchanged so
// storage keeps the precision the root served. Missing and empty values
// become null, which is what keeps coordinate-less virtual meetings
// importable.
func optionalDecimal(raw map[string]string, key string) (*string, error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return nil, nil
	}
	if _, err := strconv.ParseFloat(v, 64); err != nil {
		return nil, recordErrorf(raw, "Malformed %s", key)
	}
	return &v, nil
}

func parseWeekday(raw map[string]string) (int, error) {
	n, err := requiredInt(raw, "weekday_tinyint")
	if err != nil {
		return 0, err
	}
	if n < 1 || n > 7 {
		return 0, recordErrorf(raw, "Invalid weekday")
	}
	return int(n), nil
}

// parseTimeOfDay reads an optional wall-clock value. Some root servers
// serve a bare minute count instead of hh:mm; minutesToClock rewrites
// those before the components parse.
func parseTimeOfDay(raw map[string]string, key string) (*meetings.TimeOfDay, error) {
	h, m, s, ok, err := clockComponents(raw, key)
	if err != nil || !ok {
		return nil, err
	}
	if h > 23 {
		return nil, recordErrorf(raw, "Malformed %s", key)
	}
	return &meetings.TimeOfDay{Hour: h, Minute: m, Second: s}, nil
}

// parseDuration reads an optional meeting length, sharing the bare
// minute-count interpretation with parseTimeOfDay.
func parseDuration(raw map[string]string, key string) (*meetings.Duration, error) {
	h, m, s, ok, err := clockComponents(raw, key)
	if err != nil || !ok {
		return nil, err
	}
	if h > 23 {
		return nil, recordErrorf(raw, "Malformed %s", key)
	}
	return &meetings.Duration{Hours: h, Minutes: m, Seconds: s}, nil
}

func clockComponents(raw map[string]string, key string) (h, m, s int, ok bool, err error) {
	v := strings.TrimSpace(raw[key])
	if v == "" {
		return 0, 0, 0, false, nil
	}
	clock, valid := minutesToClock(v)
	if !valid {
		return 0, 0, 0, false, recordErrorf(raw, "Malformed %s", key)
	}
	parts := strings.Split(clock, ":")
	if len(parts) > 3 {
		return 0, 0, 0, false, recordErrorf(raw, "Malformed %s", key)
	}
	nums := make([]int, len(parts))
	for i, part := range parts {
		n, convErr := strconv.Atoi(strings.TrimSpace(part))
		if convErr != nil || n < 0 {
			return 0, 0, 0, false, recordErrorf(raw, "Malformed %s", key)
		}
		nums[i] = n
	}
	h = nums[0]
	if len(nums) > 1 {
		m = nums[1]
	}
	if len(nums) > 2 {
		s = nums[2]
	}
	if m > 59 || s > 59 {
		return 0, 0, 0, false, recordErrorf(raw, "Malformed %s", key)
	}
	return h, m, s, true, nil
}

// minutesToClock rewrites a colon-less value as H:MM, reading it as a
// whole minute count. Values under an hour keep a zero hour.
func minutesToClock(v string) (string, bool) {
	if strings.Contains(v, ":") {
		return v, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return "", false
	}
	if n < 60 {
		return fmt.Sprintf("00:%d", n), true
	}
	return fmt.Sprintf("%d:%d", n/60, n%60), true
}

// parseIDList splits a comma-separated id list, dropping members that
// do not parse.
func parseIDList(list string) []int64 {
	parts := strings.Split(list, ",")
	out := make([]int64, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			continue
		}
		out = append(out, n)
	}
	return out
}

// distinctMembers splits a comma-separated list, keeping the first
// occurrence of each non-empty member.
func distinctMembers(list string) []string {
	parts := strings.Split(list, ",")
	seen := make(map[string]bool, len(parts))
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" || seen[part] {
			continue
		}
		seen[part] = true
		out = append(out, part)
	}
	return out
}
