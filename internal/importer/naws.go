package importer

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bmlt-enabled/tomato/internal/domain/meetings"
)

// nawsWeekdays maps the Day names of a NAWS export to weekday numbers,
// Sunday first.
var nawsWeekdays = map[string]int{
	"Sunday":    1,
	"Monday":    2,
	"Tuesday":   3,
	"Wednesday": 4,
	"Thursday":  5,
	"Friday":    6,
	"Saturday":  7,
}

// nawsLookup carries the per-root resolution tables a NAWS dump row
// needs: the service body owning each committee world id and the key
// strings carrying each format world id.
type nawsLookup struct {
	bodySourceIDByWorldID map[string]int64
	keyStringsByWorldID   map[string][]string
}

// convertNAWSMeeting rewrites one NAWS dump row as a canonical meeting
// record: weekday from the Day name, start time from the numeric HHMM
// field, a fixed one hour duration, and formats derived from the
// CLOSED/OPEN flag, the wheelchair flag, and Format1..Format5.
func convertNAWSMeeting(row map[string]string, lookup nawsLookup) (*MeetingRecord, error) {
	sourceID, err := requiredInt(row, "bmlt_id")
	if err != nil {
		return nil, err
	}
	area, err := requiredString(row, "AreaRegion")
	if err != nil {
		return nil, err
	}
	bodySourceID, ok := lookup.bodySourceIDByWorldID[area]
	if !ok {
		return nil, recordErrorf(row, "Invalid service_body")
	}
	name, err := requiredString(row, "CommitteeName")
	if err != nil {
		return nil, err
	}
	weekday, err := nawsWeekday(row)
	if err != nil {
		return nil, err
	}
	startTime, err := nawsTime(row)
	if err != nil {
		return nil, err
	}
	latitude, err := optionalDecimal(row, "Latitude")
	if err != nil {
		return nil, err
	}
	longitude, err := optionalDecimal(row, "Longitude")
	if err != nil {
		return nil, err
	}

	return &MeetingRecord{
		SourceID:            sourceID,
		ServiceBodySourceID: bodySourceID,
		Name:                name,
		Weekday:             weekday,
		StartTime:           startTime,
		Duration:            &meetings.Duration{Hours: 1},
		Language:            "en",
		Latitude:            latitude,
		Longitude:           longitude,
		Published:           getDefault(row, "unpublished", "0") == "0",
		Deleted:             strings.TrimSpace(row["Delete"]) == "D",
		Info: meetings.Info{
			LocationText:           row["Place"],
			LocationInfo:           row["Directions"],
			LocationStreet:         row["Address"],
			LocationNeighborhood:   row["LocBorough"],
			LocationProvince:       row["State"],
			LocationPostalCode1:    row["Zip"],
			LocationNation:         row["Country"],
			LocationCitySubsection: row["City"],
			WorldID:                row["Committee"],
		},
		FormatKeyStrings: nawsFormatKeyStrings(row, lookup.keyStringsByWorldID),
		Raw:              row,
	}, nil
}

func nawsWeekday(row map[string]string) (int, error) {
	day, err := requiredString(row, "Day")
	if err != nil {
		return 0, err
	}
	weekday, ok := nawsWeekdays[day]
	if !ok {
		return 0, recordErrorf(row, "Invalid NAWS Day")
	}
	return weekday, nil
}

// nawsTime reads the numeric HHMM start time: the last two digits are
// the minutes, the rest is the hour. Under three digits is malformed.
func nawsTime(row map[string]string) (*meetings.TimeOfDay, error) {
	v, err := requiredString(row, "Time")
	if err != nil {
		return nil, err
	}
	if len(v) < 3 {
		return nil, recordErrorf(row, "Malformed NAWS Time %s", v)
	}
	hours := v[:2]
	if len(v) == 3 {
		hours = v[:1]
	}
	minutes := v[len(v)-2:]
	h, err1 := strconv.Atoi(hours)
	m, err2 := strconv.Atoi(minutes)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return nil, recordErrorf(row, "Malformed NAWS Time %s", v)
	}
	return &meetings.TimeOfDay{Hour: h, Minute: m}, nil
}

// nawsFormatKeyStrings resolves the row's format flags to the distinct
// key strings carrying the matching world ids on this root.
func nawsFormatKeyStrings(row map[string]string, keyStringsByWorldID map[string][]string) []string {
	worldIDs := make([]string, 0, 8)
	if strings.TrimSpace(getDefault(row, "Closed", "CLOSED")) == "CLOSED" {
		worldIDs = append(worldIDs, "CLOSED")
	} else {
		worldIDs = append(worldIDs, "OPEN")
	}
	if strings.TrimSpace(getDefault(row, "WheelChr", "FALSE")) == "TRUE" {
		worldIDs = append(worldIDs, "WCHR")
	}
	for i := 1; i <= 5; i++ {
		if worldID := row[fmt.Sprintf("Format%d", i)]; worldID != "" {
			worldIDs = append(worldIDs, worldID)
		}
	}

	seen := make(map[string]bool)
	var out []string
	for _, worldID := range worldIDs {
		for _, keyString := range keyStringsByWorldID[worldID] {
			if seen[keyString] {
				continue
			}
			seen[keyString] = true
			out = append(out, keyString)
		}
	}
	return out
}

// getDefault mirrors a dict lookup with a default: the fallback applies
// only when the key is absent, not when its value is empty.
func getDefault(row map[string]string, key, fallback string) string {
	if v, ok := row[key]; ok {
		return v
	}
	return fallback
}
