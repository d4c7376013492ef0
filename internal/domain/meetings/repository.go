package meetings

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("meeting not found")

// Meeting is one meeting of a root server. Latitude and Longitude hold
// the canonical fixed-scale decimal text so rendering can reproduce the
// stored precision exactly; nil means the meeting has no coordinates.
type Meeting struct {
	ID            int64
	RootServerID  int64
	ServiceBodyID int64
	SourceID      int64
	Name          string
	Weekday       int // 1 = Sunday .. 7 = Saturday
	VenueType     *int
	StartTime     *TimeOfDay
	Duration      *Duration
	Language      string
	Latitude      *string
	Longitude     *string
	Published     bool
	Deleted       bool
}

// Info is the free-text companion row of a meeting. Every field defaults
// to the empty string.
type Info struct {
	Email                        string
	LocationText                 string
	LocationInfo                 string
	LocationStreet               string
	LocationCitySubsection       string
	LocationNeighborhood         string
	LocationMunicipality         string
	LocationSubProvince          string
	LocationProvince             string
	LocationPostalCode1          string
	LocationNation               string
	TrainLines                   string
	BusLines                     string
	WorldID                      string
	Comments                     string
	VirtualMeetingLink           string
	PhoneMeetingNumber           string
	VirtualMeetingAdditionalInfo string
}

// Distance annotates a geo search result with the distance from the
// search center.
type Distance struct {
	Km    float64
	Miles float64
}

// SearchResult is one streamed row of a meeting search: the meeting, its
// info, the owning root's URL, service-body identity, format aggregates,
// and the optional distance annotation.
type SearchResult struct {
	Meeting
	Info               Info
	RootServerURL      string
	ServiceBodyName    string
	ServiceBodyWorldID string
	FormatIDs          []int64  // ascending
	FormatKeyStrings   []string // English key strings, ascending format id
	FormatWorldIDs     []string // non-empty world ids, ascending format id
	Distance           *Distance
}

// ResultStream yields search results one row at a time. Close releases
// the underlying cursor and is safe to call more than once.
type ResultStream interface {
	Next() (*SearchResult, bool)
	Err() error
	Close()
}

// UpsertParams carries the canonical meeting columns, keyed by
// (root server, source id). Latitude and Longitude are canonical
// fixed-scale decimal text, nil for coordinate-less meetings.
type UpsertParams struct {
	RootServerID  int64
	ServiceBodyID int64
	SourceID      int64
	Name          string
	Weekday       int
	VenueType     *int
	StartTime     *TimeOfDay
	Duration      *Duration
	Language      string
	Latitude      *string
	Longitude     *string
	Published     bool
	Deleted       bool
}

// FieldValuesParams selects the distinct-value listing of one column.
type FieldValuesParams struct {
	Key         string // external field key, already validated
	RootServers []int64
}

// FieldValue is one distinct value of a queried column and the meetings
// sharing it. Value nil means the column is null for those meetings; for
// the formats key it is the comma-joined ascending format id list.
type FieldValue struct {
	Value      *string
	MeetingIDs []int64
}

type Repository interface {
	// Upsert writes the meeting columns, refreshing the stored geography
	// point whenever the coordinates change. An identical record writes
	// nothing.
	Upsert(ctx context.Context, params UpsertParams) (*Meeting, error)
	// UpsertInfo patches the companion info row, creating it when absent.
	UpsertInfo(ctx context.Context, meetingID int64, info Info) error
	// ReplaceFormats swaps the format link set, only when it differs.
	ReplaceFormats(ctx context.Context, meetingID int64, formatIDs []int64) error
	DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error)

	// Search streams published, non-deleted meetings matching criteria.
	Search(ctx context.Context, criteria SearchCriteria) (ResultStream, error)
	// UsedFormatIDs reports the distinct format ids attached to every
	// meeting the criteria match, ignoring pagination.
	UsedFormatIDs(ctx context.Context, criteria SearchCriteria) ([]int64, error)
	// FieldValues groups the column behind Key by distinct value.
	FieldValues(ctx context.Context, params FieldValuesParams) ([]FieldValue, error)
	// NAWSDump streams every meeting of the given service bodies whose
	// info world_id is non-empty, unpublished and deleted included,
	// ordered by id.
	NAWSDump(ctx context.Context, serviceBodyIDs []int64) (ResultStream, error)
	// Centroid reports the average of all stored coordinates, nil when
	// no meeting has any.
	Centroid(ctx context.Context) (lat, lon *float64, err error)
}
