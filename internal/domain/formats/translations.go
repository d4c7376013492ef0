package formats

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// FallbackLanguage is consulted when a format has no translation in the
// requested language.
const FallbackLanguage = "en"

// ImportStamper reports when the stored catalog last changed.
type ImportStamper interface {
	MaxLastSuccessfulImport(ctx context.Context) (*time.Time, error)
}

// Snapshot is an immutable view of every stored format translation.
type Snapshot struct {
	stamp      time.Time
	byLanguage map[string]map[int64]TranslatedFormat
}

// Lookup resolves a format's translation in lang, falling back to
// English.
func (s *Snapshot) Lookup(formatID int64, lang string) (*TranslatedFormat, bool) {
	if tf, ok := s.byLanguage[lang][formatID]; ok {
		return &tf, true
	}
	if lang != FallbackLanguage {
		if tf, ok := s.byLanguage[FallbackLanguage][formatID]; ok {
			return &tf, true
		}
	}
	return nil, false
}

// KeyString resolves a format's key string in lang with English
// fallback; formats translated in neither language report ok=false and
// are omitted from rendered format lists.
func (s *Snapshot) KeyString(formatID int64, lang string) (string, bool) {
	tf, ok := s.Lookup(formatID, lang)
	if !ok {
		return "", false
	}
	return tf.KeyString, true
}

// Languages reports the distinct translation languages, sorted.
func (s *Snapshot) Languages() []string {
	langs := make([]string, 0, len(s.byLanguage))
	for lang := range s.byLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	return langs
}

// TranslationCache serves translation snapshots to the query path. The
// snapshot is keyed by the newest last_successful_import across roots
// and rebuilt through singleflight when it goes stale, so concurrent
// requests after an import share one rebuild.
type TranslationCache struct {
	repo    Repository
	stamps  ImportStamper
	group   singleflight.Group
	current atomic.Pointer[Snapshot]
}

func NewTranslationCache(repo Repository, stamps ImportStamper) *TranslationCache {
	return &TranslationCache{repo: repo, stamps: stamps}
}

// Snapshot returns the current snapshot, rebuilding it first when the
// catalog has been imported since the last build.
func (c *TranslationCache) Snapshot(ctx context.Context) (*Snapshot, error) {
	var stamp time.Time
	stampPtr, err := c.stamps.MaxLastSuccessfulImport(ctx)
	if err != nil {
		return nil, err
	}
	if stampPtr != nil {
		stamp = *stampPtr
	}

	if cur := c.current.Load(); cur != nil && !cur.stamp.Before(stamp) {
		return cur, nil
	}

	v, err, _ := c.group.Do("rebuild", func() (any, error) {
		if cur := c.current.Load(); cur != nil && !cur.stamp.Before(stamp) {
			return cur, nil
		}
		byLanguage, err := c.repo.TranslationsByLanguage(ctx)
		if err != nil {
			return nil, err
		}
		snap := &Snapshot{stamp: stamp, byLanguage: byLanguage}
		c.current.Store(snap)
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}
