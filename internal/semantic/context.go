package semantic

import (
	"context"

	"github.com/bmlt-enabled/tomato/internal/domain/formats"
)

type languageKey struct{}

// WithLanguage binds the request language onto the context. An empty
// language binds the fallback.
func WithLanguage(ctx context.Context, lang string) context.Context {
	if lang == "" {
		lang = formats.FallbackLanguage
	}
	return context.WithValue(ctx, languageKey{}, lang)
}

// Language reports the bound request language, falling back to the
// default when none was bound.
func Language(ctx context.Context) string {
	if lang, ok := ctx.Value(languageKey{}).(string); ok && lang != "" {
		return lang
	}
	return formats.FallbackLanguage
}
