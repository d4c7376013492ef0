package rootservers

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("root server not found")

// RootServer is one federated upstream server. SourceID is the stable id
// from the discovery list; ID is the aggregator's own key and the only
// one exposed by the query API.
type RootServer struct {
	ID                   int64
	SourceID             int64
	Name                 string
	URL                  string
	ServerInfo           string
	NumZones             int
	NumRegions           int
	NumAreas             int
	NumGroups            int
	NumMeetings          int
	LastSuccessfulImport *time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// UpsertParams identifies a root server by its discovery-list id.
type UpsertParams struct {
	SourceID   int64
	Name       string
	URL        string
	ServerInfo string
}

type Repository interface {
	List(ctx context.Context) ([]RootServer, error)
	GetByID(ctx context.Context, id int64) (*RootServer, error)
	Upsert(ctx context.Context, params UpsertParams) (*RootServer, error)
	// DeleteAbsent removes root servers whose source id is not in keep,
	// cascading to their service bodies, formats, and meetings.
	DeleteAbsent(ctx context.Context, keepSourceIDs []int64) (int64, error)
	// RecountCounters refreshes the zone/region/area/group/meeting
	// counters from the stored catalog.
	RecountCounters(ctx context.Context, id int64) error
	MarkImported(ctx context.Context, id int64, at time.Time) error
	// MaxLastSuccessfulImport reports the newest import timestamp across
	// all roots, nil when no import has succeeded yet.
	MaxLastSuccessfulImport(ctx context.Context) (*time.Time, error)
}
