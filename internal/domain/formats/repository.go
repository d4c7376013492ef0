package formats

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("format not found")

// Format is one meeting format owned by a root server. The displayable
// strings live on its translations.
type Format struct {
	ID           int64
	RootServerID int64
	SourceID     int64
	WorldID      string
	Type         string
}

// TranslatedFormat carries the language-specific strings of a format.
type TranslatedFormat struct {
	ID          int64
	FormatID    int64
	Language    string
	KeyString   string
	Name        string
	Description string
}

// Row is a translated format joined with its format and root server, the
// shape served by the formats queries.
type Row struct {
	FormatID      int64
	Language      string
	KeyString     string
	Name          string
	Description   string
	WorldID       string
	RootServerID  int64
	RootServerURL string
}

// RowFilter narrows ListRows. Include/exclude sets hold root server ids.
type RowFilter struct {
	RootServersInclude []int64
	RootServersExclude []int64
	KeyStrings         []string
	Language           string
	FormatIDs          []int64
}

type UpsertParams struct {
	RootServerID int64
	SourceID     int64
	WorldID      string
	Type         string
}

type TranslationParams struct {
	FormatID    int64
	Language    string
	KeyString   string
	Name        string
	Description string
}

type Repository interface {
	Upsert(ctx context.Context, params UpsertParams) (*Format, error)
	UpsertTranslation(ctx context.Context, params TranslationParams) error
	DeleteAbsent(ctx context.Context, rootServerID int64, keepSourceIDs []int64) (int64, error)
	ListByRootServer(ctx context.Context, rootServerID int64) ([]Format, error)
	ListRows(ctx context.Context, filter RowFilter) ([]Row, error)
	// IDsByKeyString maps a root's translated key strings to the format
	// ids carrying them in any language, for format resolution by name.
	IDsByKeyString(ctx context.Context, rootServerID int64) (map[string][]int64, error)
	// TranslationsByLanguage loads every translation keyed by language
	// then format id, the shape cached by TranslationCache.
	TranslationsByLanguage(ctx context.Context) (map[string]map[int64]TranslatedFormat, error)
	// KeyStringsByWorldID maps a root's format world ids to the distinct
	// key strings carrying them, across languages, for NAWS conversions.
	KeyStringsByWorldID(ctx context.Context, rootServerID int64) (map[string][]string, error)
}
