package semantic

import (
	"strconv"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/domain/servicebodies"
)

// MeetingRecord adapts one meeting search row. The language and the
// translation snapshot resolve the translated format key strings at
// render time.
type MeetingRecord struct {
	Result       *meetings.SearchResult
	Language     string
	Translations *formats.Snapshot
}

func (r MeetingRecord) Get(path string) (Value, bool) {
	m := r.Result
	switch path {
	case "id":
		return Int(m.ID), true
	case "meetinginfo.world_id":
		return String(m.Info.WorldID), true
	case "service_body_id":
		return Int(m.ServiceBodyID), true
	case "service_body.name":
		return String(m.ServiceBodyName), true
	case "service_body.world_id":
		return String(m.ServiceBodyWorldID), true
	case "weekday":
		return Int(int64(m.Weekday)), true
	case "venue_type":
		if m.VenueType == nil {
			return Null(), true
		}
		return Int(int64(*m.VenueType)), true
	case "start_time":
		if m.StartTime == nil {
			return Null(), true
		}
		return Time(*m.StartTime), true
	case "duration":
		if m.Duration == nil {
			return Null(), true
		}
		return Duration(*m.Duration), true
	case "formats.key_string", "formats_aggregate":
		return List(r.translatedKeyStrings()), true
	case "formats.id", "format_shared_id_list_aggregate":
		ids := make([]string, len(m.FormatIDs))
		for i, id := range m.FormatIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		return List(ids), true
	case "formats.world_id":
		return List(m.FormatWorldIDs), true
	case "language":
		return String(m.Language), true
	case "longitude":
		if m.Longitude == nil {
			return Null(), true
		}
		return Decimal(*m.Longitude), true
	case "latitude":
		if m.Latitude == nil {
			return Null(), true
		}
		return Decimal(*m.Latitude), true
	case "distance.km":
		if m.Distance == nil {
			return Null(), true
		}
		return Float(m.Distance.Km), true
	case "distance.mi":
		if m.Distance == nil {
			return Null(), true
		}
		return Float(m.Distance.Miles), true
	case "meetinginfo.email_contact":
		return String(m.Info.Email), true
	case "name":
		return String(m.Name), true
	case "meetinginfo.location_text":
		return String(m.Info.LocationText), true
	case "meetinginfo.location_info":
		return String(m.Info.LocationInfo), true
	case "meetinginfo.location_street":
		return String(m.Info.LocationStreet), true
	case "meetinginfo.location_city_subsection":
		return String(m.Info.LocationCitySubsection), true
	case "meetinginfo.location_neighborhood":
		return String(m.Info.LocationNeighborhood), true
	case "meetinginfo.location_municipality":
		return String(m.Info.LocationMunicipality), true
	case "meetinginfo.location_sub_province":
		return String(m.Info.LocationSubProvince), true
	case "meetinginfo.location_province":
		return String(m.Info.LocationProvince), true
	case "meetinginfo.location_postal_code_1":
		return String(m.Info.LocationPostalCode1), true
	case "meetinginfo.location_nation":
		return String(m.Info.LocationNation), true
	case "meetinginfo.comments":
		return String(m.Info.Comments), true
	case "meetinginfo.train_lines":
		return String(m.Info.TrainLines), true
	case "meetinginfo.bus_lines":
		return String(m.Info.BusLines), true
	case "meetinginfo.phone_meeting_number":
		return String(m.Info.PhoneMeetingNumber), true
	case "meetinginfo.virtual_meeting_link":
		return String(m.Info.VirtualMeetingLink), true
	case "meetinginfo.virtual_meeting_additional_info":
		return String(m.Info.VirtualMeetingAdditionalInfo), true
	case "published":
		return Bool(m.Published), true
	case "deleted":
		return Bool(m.Deleted), true
	case "source_id":
		return Int(m.SourceID), true
	case "root_server_id":
		return Int(m.RootServerID), true
	case "root_server.url":
		return String(m.RootServerURL), true
	}
	return Null(), false
}

// translatedKeyStrings resolves the meeting's format ids to key strings
// in the record language. Formats with no translation in that language
// or the fallback are omitted.
func (r MeetingRecord) translatedKeyStrings() []string {
	if r.Translations == nil {
		return r.Result.FormatKeyStrings
	}
	keys := make([]string, 0, len(r.Result.FormatIDs))
	for _, id := range r.Result.FormatIDs {
		if key, ok := r.Translations.KeyString(id, r.Language); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// FormatRowRecord adapts one translated format row.
type FormatRowRecord struct {
	Row *formats.Row
}

func (r FormatRowRecord) Get(path string) (Value, bool) {
	switch path {
	case "id":
		return Int(r.Row.FormatID), true
	case "key_string":
		return String(r.Row.KeyString), true
	case "name":
		return String(r.Row.Name), true
	case "description":
		return String(r.Row.Description), true
	case "language":
		return String(r.Row.Language), true
	case "world_id":
		return String(r.Row.WorldID), true
	case "root_server_id":
		return Int(r.Row.RootServerID), true
	case "root_server.url":
		return String(r.Row.RootServerURL), true
	}
	return Null(), false
}

// ServiceBodyRecord adapts a service body. ParentID is the calculated
// aggregator parent id, zero for top-level bodies.
type ServiceBodyRecord struct {
	Body     *servicebodies.ServiceBody
	ParentID int64
}

func (r ServiceBodyRecord) Get(path string) (Value, bool) {
	switch path {
	case "id":
		return Int(r.Body.ID), true
	case "calculated_parent_id":
		return Int(r.ParentID), true
	case "name":
		return String(r.Body.Name), true
	case "description":
		return String(r.Body.Description), true
	case "type":
		return String(r.Body.Type), true
	case "url":
		return String(r.Body.URL), true
	case "helpline":
		return String(r.Body.Helpline), true
	case "world_id":
		return String(r.Body.WorldID), true
	case "root_server_id":
		return Int(r.Body.RootServerID), true
	}
	return Null(), false
}

// meetingStream adapts a repository result stream to records.
type meetingStream struct {
	src          meetings.ResultStream
	language     string
	translations *formats.Snapshot
}

// NewMeetingStream wraps a meeting result stream, resolving format key
// strings in the given language.
func NewMeetingStream(src meetings.ResultStream, language string, translations *formats.Snapshot) RecordStream {
	return &meetingStream{src: src, language: language, translations: translations}
}

func (s *meetingStream) Next() (Record, bool) {
	result, ok := s.src.Next()
	if !ok {
		return nil, false
	}
	return MeetingRecord{Result: result, Language: s.language, Translations: s.translations}, true
}

func (s *meetingStream) Err() error { return s.src.Err() }

func (s *meetingStream) Close() error {
	s.src.Close()
	return nil
}
