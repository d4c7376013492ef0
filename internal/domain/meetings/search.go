package meetings

import "fmt"

// TimeOfDay is a wall-clock time without date or zone.
type TimeOfDay struct {
	Hour   int
	Minute int
	Second int
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.Hour, t.Minute, t.Second)
}

// Minutes reports the time as minutes since midnight, ignoring seconds.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Duration is a meeting length in hours, minutes, and seconds.
type Duration struct {
	Hours   int
	Minutes int
	Seconds int
}

// String renders the duration with the hour zero-padded to two digits
// below ten hours, e.g. "01:30:00".
func (d Duration) String() string {
	if d.Hours < 10 {
		return fmt.Sprintf("0%d:%02d:%02d", d.Hours, d.Minutes, d.Seconds)
	}
	return fmt.Sprintf("%d:%02d:%02d", d.Hours, d.Minutes, d.Seconds)
}

// TotalMinutes ignores seconds, matching the filter granularity.
func (d Duration) TotalMinutes() int {
	return d.Hours*60 + d.Minutes
}

// GeoCriteria restricts a search around a center point. Exactly one of
// RadiusKm and NearestN is set: a radius keeps meetings within the disc,
// nearest-N keeps the N closest matches.
type GeoCriteria struct {
	Latitude  float64
	Longitude float64
	RadiusKm  *float64
	NearestN  *int
}

// TextCriteria is a free-text restriction. In exact mode Query matches
// as a case-insensitive substring of the concatenated text fields;
// otherwise Tokens combine into a tsquery (OR by default, AND when All)
// and MeetingIDs extend the match as id disjuncts.
type TextCriteria struct {
	Exact      bool
	Query      string
	All        bool
	Tokens     []string
	MeetingIDs []int64
}

// SearchCriteria is the fully resolved filter plan of one search. Empty
// slices mean "no restriction". Service body ids are pre-expanded to
// descendants when the request asked for recursion.
type SearchCriteria struct {
	MeetingIDs []int64

	WeekdaysInclude []int
	WeekdaysExclude []int

	VenueTypesInclude []int
	VenueTypesExclude []int

	ServicesInclude []int64
	ServicesExclude []int64

	FormatsInclude []int64
	FormatsExclude []int64
	// FormatsOrMode relaxes the include set from "all of" to "any of".
	FormatsOrMode bool

	RootsInclude []int64
	RootsExclude []int64

	// MeetingKey/MeetingKeyValue match one mapped column exactly.
	MeetingKey      string
	MeetingKeyValue string

	StartsAfter  *TimeOfDay
	StartsBefore *TimeOfDay
	EndsBefore   *TimeOfDay

	MinDuration *Duration
	MaxDuration *Duration

	Geo  *GeoCriteria
	Text *TextCriteria

	// SortKeys holds external field keys; many-to-many keys have already
	// been dropped. Ignored when SortByDistance is set.
	SortKeys       []string
	SortByDistance bool

	PageSize int
	PageNum  int // 1-based
}

// HasFilter reports whether the criteria contain at least one of the
// restrictions that permit a search to touch the database: meeting ids,
// service include, format include, root include, key/value match, text,
// or a geo restriction. Everything else alone would scan the federation.
func (c SearchCriteria) HasFilter() bool {
	switch {
	case len(c.MeetingIDs) > 0:
		return true
	case len(c.ServicesInclude) > 0:
		return true
	case len(c.FormatsInclude) > 0:
		return true
	case len(c.RootsInclude) > 0:
		return true
	case c.MeetingKey != "" && c.MeetingKeyValue != "":
		return true
	case c.Text != nil:
		return true
	case c.Geo != nil:
		return true
	}
	return false
}
