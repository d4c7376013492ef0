package servicebodies

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("service body not found")

// Type codes as served by root servers.
const (
	TypeGroup        = "GR"
	TypeCoop         = "CO"
	TypeGroupService = "GS"
	TypeLocalService = "LS"
	TypeArea         = "AS"
	TypeMetro        = "MA"
	TypeRegion       = "RS"
	TypeZone         = "ZF"
	TypeWorld        = "WS"
)

// ServiceBody is one node of a root server's service hierarchy. ParentID
// references another body of the same root; top-level bodies have none.
type ServiceBody struct {
	ID           int64
	RootServerID int64
	SourceID     int64
	ParentID     *int64
	Name         string
	Type         string
	Description  string
	URL          string
	Helpline     string
	WorldID      string
	NumMeetings  int
	NumGroups    int
}

type UpsertParams struct {
	RootServerID int64
	SourceID     int64
	Name         string
	Type         string
	Description  string
	URL          string
	Helpline     string
	WorldID      string
}

type Repository interface {
	List(ctx context.Context) ([]ServiceBody, error)
	ListByRootServer(ctx context.Context, rootServerID int64) ([]ServiceBody, error)
	GetByID(ctx context.Context, id int64) (*ServiceBody, error)
	// Upsert writes the scalar columns; a newly created body starts
	// without a parent. Parent wiring is a second pass via SetParents.
	Upsert(ctx context.Context, params UpsertParams) (*ServiceBody, error)
	// SetParents wires parent links by source id within one root. Bodies
	// missing from the map, naming an unknown parent, or closing a cycle
	// end up parentless; unchanged links stay untouched.
	SetParents(ctx context.Context, rootServerID int64, parentBySourceID map[int64]int64) error
	DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error)
	// RecountStats refreshes every body's num_meetings and num_groups
	// over its subtree's published, non-deleted meetings.
	RecountStats(ctx context.Context, rootServerID int64) error
}
