// Package sanitize flattens upstream HTML to plain text. Root servers
// answer some failed requests with full HTML error pages, and imported
// records can carry markup in free-text fields; both are stripped
// before they land in import_problems.
package sanitize

import (
	"github.com/microcosm-cc/bluemonday"
)

// strictPolicy removes all HTML tags and attributes.
var strictPolicy = bluemonday.StrictPolicy()

// Text strips all HTML tags and returns plain text.
func Text(input string) string {
	return strictPolicy.Sanitize(input)
}
