package importer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
	"github.com/bmlt-enabled/tomato/internal/upstream"
)

// validDoc is a GetSearchResults document with every field the
// normalizer reads, shaped like a real root server response.
func validDoc() upstream.RawMeeting {
	return upstream.RawMeeting{
		"id_bigint":              "512",
		"service_body_bigint":    "2",
		"meeting_name":           "Hawaii Kai Candlelight",
		"weekday_tinyint":        "2",
		"venue_type":             "1",
		"start_time":             "19:30:00",
		"duration_time":          "1:30",
		"lang_enum":              "en",
		"latitude":               "21.331020000000",
		"longitude":              "-157.703950000000",
		"published":              "1",
		"format_shared_id_list":  "2,7",
		"formats":                "C,O",
		"email_contact":          "contact@oahuna.org",
		"location_text":          "Aina Haina Library",
		"location_info":          "back entrance",
		"location_street":        "5246 Kalanianaole Hwy",
		"location_municipality":  "Honolulu",
		"location_province":      "HI",
		"location_postal_code_1": "96821",
		"worldid_mixed":          "G00123456",
	}
}

func TestNormalizeMeeting(t *testing.T) {
	rec, err := NormalizeMeeting(validDoc())
	require.NoError(t, err)

	assert.Equal(t, int64(512), rec.SourceID)
	assert.Equal(t, int64(2), rec.ServiceBodySourceID)
	assert.Equal(t, "Hawaii Kai Candlelight", rec.Name)
	assert.Equal(t, 2, rec.Weekday)
	require.NotNil(t, rec.VenueType)
	assert.Equal(t, 1, *rec.VenueType)
	require.NotNil(t, rec.StartTime)
	assert.Equal(t, meetings.TimeOfDay{Hour: 19, Minute: 30}, *rec.StartTime)
	require.NotNil(t, rec.Duration)
	assert.Equal(t, meetings.Duration{Hours: 1, Minutes: 30}, *rec.Duration)
	assert.Equal(t, "en", rec.Language)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, "21.331020000000", *rec.Latitude, "coordinate text survives unchanged")
	require.NotNil(t, rec.Longitude)
	assert.Equal(t, "-157.703950000000", *rec.Longitude)
	assert.True(t, rec.Published)
	assert.False(t, rec.Deleted)

	assert.Equal(t, "contact@oahuna.org", rec.Info.Email)
	assert.Equal(t, "Aina Haina Library", rec.Info.LocationText)
	assert.Equal(t, "back entrance", rec.Info.LocationInfo)
	assert.Equal(t, "5246 Kalanianaole Hwy", rec.Info.LocationStreet)
	assert.Equal(t, "Honolulu", rec.Info.LocationMunicipality)
	assert.Equal(t, "HI", rec.Info.LocationProvince)
	assert.Equal(t, "96821", rec.Info.LocationPostalCode1)
	assert.Equal(t, "G00123456", rec.Info.WorldID)

	// The shared id list wins over the formats key strings.
	assert.Equal(t, []int64{2, 7}, rec.FormatSourceIDs)
	assert.Nil(t, rec.FormatKeyStrings)
}

func TestNormalizeMeeting_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(doc upstream.RawMeeting)
		wantMsg string
	}{
		{
			name:    "missing id",
			mutate:  func(doc upstream.RawMeeting) { delete(doc, "id_bigint") },
			wantMsg: "Malformed id_bigint",
		},
		{
			name:    "non numeric id",
			mutate:  func(doc upstream.RawMeeting) { doc["id_bigint"] = "five twelve" },
			wantMsg: "Malformed id_bigint",
		},
		{
			name:    "missing service body",
			mutate:  func(doc upstream.RawMeeting) { delete(doc, "service_body_bigint") },
			wantMsg: "Malformed service_body_bigint",
		},
		{
			name:    "missing name",
			mutate:  func(doc upstream.RawMeeting) { doc["meeting_name"] = "" },
			wantMsg: "Missing required key meeting_name",
		},
		{
			name:    "missing weekday",
			mutate:  func(doc upstream.RawMeeting) { delete(doc, "weekday_tinyint") },
			wantMsg: "Malformed weekday_tinyint",
		},
		{
			name:    "weekday below range",
			mutate:  func(doc upstream.RawMeeting) { doc["weekday_tinyint"] = "0" },
			wantMsg: "Invalid weekday",
		},
		{
			name:    "weekday above range",
			mutate:  func(doc upstream.RawMeeting) { doc["weekday_tinyint"] = "8" },
			wantMsg: "Invalid weekday",
		},
		{
			name:    "non numeric venue type",
			mutate:  func(doc upstream.RawMeeting) { doc["venue_type"] = "hybrid" },
			wantMsg: "Malformed venue_type",
		},
		{
			name:    "start hour out of range",
			mutate:  func(doc upstream.RawMeeting) { doc["start_time"] = "24:00" },
			wantMsg: "Malformed start_time",
		},
		{
			name:    "start minutes out of range",
			mutate:  func(doc upstream.RawMeeting) { doc["start_time"] = "19:75" },
			wantMsg: "Malformed start_time",
		},
		{
			name:    "start not a clock value",
			mutate:  func(doc upstream.RawMeeting) { doc["start_time"] = "evening" },
			wantMsg: "Malformed start_time",
		},
		{
			name:    "too many clock components",
			mutate:  func(doc upstream.RawMeeting) { doc["duration_time"] = "1:30:00:00" },
			wantMsg: "Malformed duration_time",
		},
		{
			name:    "negative minute count",
			mutate:  func(doc upstream.RawMeeting) { doc["duration_time"] = "-30" },
			wantMsg: "Malformed duration_time",
		},
		{
			name:    "malformed latitude",
			mutate:  func(doc upstream.RawMeeting) { doc["latitude"] = "north" },
			wantMsg: "Malformed latitude",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := validDoc()
			tt.mutate(doc)

			_, err := NormalizeMeeting(doc)
			require.Error(t, err)

			var recErr *RecordError
			require.True(t, errors.As(err, &recErr), "rejections carry the document")
			assert.Equal(t, tt.wantMsg, recErr.Message)
			assert.Equal(t, map[string]string(doc), recErr.Raw)
		})
	}
}

// Some root servers serve bare minute counts instead of clock values;
// both start_time and duration_time read them as minutes past zero.
func TestNormalizeMeeting_MinuteCounts(t *testing.T) {
	doc := validDoc()
	doc["start_time"] = "75"
	doc["duration_time"] = "90"

	rec, err := NormalizeMeeting(doc)
	require.NoError(t, err)
	assert.Equal(t, meetings.TimeOfDay{Hour: 1, Minute: 15}, *rec.StartTime)
	assert.Equal(t, meetings.Duration{Hours: 1, Minutes: 30}, *rec.Duration)

	doc["start_time"] = "45"
	rec, err = NormalizeMeeting(doc)
	require.NoError(t, err)
	assert.Equal(t, meetings.TimeOfDay{Minute: 45}, *rec.StartTime)
}

func TestNormalizeMeeting_OptionalFields(t *testing.T) {
	doc := validDoc()
	delete(doc, "venue_type")
	doc["start_time"] = ""
	delete(doc, "duration_time")
	doc["latitude"] = ""
	doc["longitude"] = " "
	doc["published"] = "0"
	doc["deleted"] = "1"

	rec, err := NormalizeMeeting(doc)
	require.NoError(t, err)
	assert.Nil(t, rec.VenueType)
	assert.Nil(t, rec.StartTime)
	assert.Nil(t, rec.Duration)
	assert.Nil(t, rec.Latitude)
	assert.Nil(t, rec.Longitude)
	assert.False(t, rec.Published)
	assert.True(t, rec.Deleted)
}

func TestNormalizeMeeting_FormatKeyStrings(t *testing.T) {
	doc := validDoc()
	doc["format_shared_id_list"] = " "
	doc["formats"] = "C,,O,C,TC"

	rec, err := NormalizeMeeting(doc)
	require.NoError(t, err)
	assert.Nil(t, rec.FormatSourceIDs)
	assert.Equal(t, []string{"C", "O", "TC"}, rec.FormatKeyStrings)
}

func TestParseIDList(t *testing.T) {
	assert.Equal(t, []int64{2, 7}, parseIDList("2, 7,x,"))
	assert.Empty(t, parseIDList("none"))
}

func testLookup() nawsLookup {
	return nawsLookup{
		bodySourceIDByWorldID: map[string]int64{"RG63340": 1, "AR63340": 2},
		keyStringsByWorldID: map[string][]string{
			"CLOSED": {"C", "Ce"},
			"OPEN":   {"O"},
			"WCHR":   {"WC"},
			"TC":     {"TC"},
		},
	}
}

// nawsRow is an unpublished NAWS dump row as GetNAWSDump serves it.
func nawsRow() map[string]string {
	return map[string]string{
		"bmlt_id":       "999",
		"Committee":     "G00000999",
		"CommitteeName": "Old Harbor Group",
		"AreaRegion":    "AR63340",
		"Day":           "Monday",
		"Time":          "1900",
		"unpublished":   "1",
		"Place":         "Harbor Chapel",
		"Address":       "52 Pier Rd",
		"City":          "Honolulu",
		"State":         "HI",
		"Zip":           "96813",
		"Country":       "USA",
		"Latitude":      "21.3069",
		"Longitude":     "-157.8583",
	}
}

func TestConvertNAWSMeeting(t *testing.T) {
	rec, err := convertNAWSMeeting(nawsRow(), testLookup())
	require.NoError(t, err)

	assert.Equal(t, int64(999), rec.SourceID)
	assert.Equal(t, int64(2), rec.ServiceBodySourceID, "committee resolves through the body world id")
	assert.Equal(t, "Old Harbor Group", rec.Name)
	assert.Equal(t, 2, rec.Weekday)
	require.NotNil(t, rec.StartTime)
	assert.Equal(t, meetings.TimeOfDay{Hour: 19}, *rec.StartTime)
	require.NotNil(t, rec.Duration)
	assert.Equal(t, meetings.Duration{Hours: 1}, *rec.Duration, "dump rows carry no duration, one hour is assumed")
	assert.Equal(t, "en", rec.Language)
	assert.False(t, rec.Published)
	assert.False(t, rec.Deleted)
	require.NotNil(t, rec.Latitude)
	assert.Equal(t, "21.3069", *rec.Latitude)

	assert.Equal(t, "Harbor Chapel", rec.Info.LocationText)
	assert.Equal(t, "52 Pier Rd", rec.Info.LocationStreet)
	assert.Equal(t, "Honolulu", rec.Info.LocationCitySubsection)
	assert.Equal(t, "HI", rec.Info.LocationProvince)
	assert.Equal(t, "96813", rec.Info.LocationPostalCode1)
	assert.Equal(t, "USA", rec.Info.LocationNation)
	assert.Equal(t, "G00000999", rec.Info.WorldID)

	// No Closed column at all defaults the row to CLOSED.
	assert.Equal(t, []string{"C", "Ce"}, rec.FormatKeyStrings)
}

func TestConvertNAWSMeeting_DeletedRow(t *testing.T) {
	row := nawsRow()
	row["unpublished"] = "0"
	row["Delete"] = "D"

	rec, err := convertNAWSMeeting(row, testLookup())
	require.NoError(t, err)
	assert.True(t, rec.Published)
	assert.True(t, rec.Deleted)
}

func TestConvertNAWSMeeting_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(row map[string]string)
		wantMsg string
	}{
		{
			name:    "unknown committee",
			mutate:  func(row map[string]string) { row["AreaRegion"] = "XX999" },
			wantMsg: "Invalid service_body",
		},
		{
			name:    "missing committee name",
			mutate:  func(row map[string]string) { delete(row, "CommitteeName") },
			wantMsg: "Missing required key CommitteeName",
		},
		{
			name:    "unknown day name",
			mutate:  func(row map[string]string) { row["Day"] = "Funday" },
			wantMsg: "Invalid NAWS Day",
		},
		{
			name:    "time too short",
			mutate:  func(row map[string]string) { row["Time"] = "75" },
			wantMsg: "Malformed NAWS Time 75",
		},
		{
			name:    "hour out of range",
			mutate:  func(row map[string]string) { row["Time"] = "2460" },
			wantMsg: "Malformed NAWS Time 2460",
		},
		{
			name:    "minutes out of range",
			mutate:  func(row map[string]string) { row["Time"] = "1965" },
			wantMsg: "Malformed NAWS Time 1965",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := nawsRow()
			tt.mutate(row)

			_, err := convertNAWSMeeting(row, testLookup())
			var recErr *RecordError
			require.True(t, errors.As(err, &recErr))
			assert.Equal(t, tt.wantMsg, recErr.Message)
		})
	}
}

// Three digit times put a single digit in the hour.
func TestNAWSTime_ThreeDigits(t *testing.T) {
	row := nawsRow()
	row["Time"] = "930"

	rec, err := convertNAWSMeeting(row, testLookup())
	require.NoError(t, err)
	assert.Equal(t, meetings.TimeOfDay{Hour: 9, Minute: 30}, *rec.StartTime)
}

func TestNAWSFormatKeyStrings(t *testing.T) {
	lookup := testLookup().keyStringsByWorldID

	tests := []struct {
		name string
		row  map[string]string
		want []string
	}{
		{
			name: "defaults to closed",
			row:  map[string]string{},
			want: []string{"C", "Ce"},
		},
		{
			name: "open flag",
			row:  map[string]string{"Closed": "OPEN"},
			want: []string{"O"},
		},
		{
			name: "empty closed column is not closed",
			row:  map[string]string{"Closed": ""},
			want: []string{"O"},
		},
		{
			name: "wheelchair and extra formats",
			row:  map[string]string{"Closed": "CLOSED", "WheelChr": "TRUE", "Format1": "TC", "Format3": "OPEN"},
			want: []string{"C", "Ce", "WC", "TC", "O"},
		},
		{
			name: "duplicate world ids collapse",
			row:  map[string]string{"Format1": "CLOSED"},
			want: []string{"C", "Ce"},
		},
		{
			name: "unknown world ids drop out",
			row:  map[string]string{"Format1": "ZZ"},
			want: []string{"C", "Ce"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nawsFormatKeyStrings(tt.row, lookup))
		})
	}
}

func TestNormalizeRootURL(t *testing.T) {
	assert.Equal(t, "https://na-hawaii.org/main_server/", normalizeRootURL("https://na-hawaii.org/main_server"))
	assert.Equal(t, "https://na-hawaii.org/main_server/", normalizeRootURL(" https://na-hawaii.org/main_server/ "))
	assert.Equal(t, "", normalizeRootURL(""))
}

func TestParseParentID(t *testing.T) {
	assert.Equal(t, int64(0), parseParentID(""))
	assert.Equal(t, int64(0), parseParentID("0"))
	assert.Equal(t, int64(7), parseParentID(" 7 "))
	assert.Equal(t, int64(0), parseParentID("region"))
}
