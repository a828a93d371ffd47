package feed

import (
	"html"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"newsbrief/internal/models"
)

// NoTitle is substituted when a feed item carries no title at all.
const NoTitle = "No Title"

const (
	// MaxBodyRunes caps how much article text is sent for processing.
	MaxBodyRunes = 4000

	// MinBodyRunes is the threshold below which a body is too short to
	// be worth summarizing.
	MinBodyRunes = 20
)

var (
	stripPolicy = bluemonday.StrictPolicy()
	spaceRuns   = regexp.MustCompile(`\s+`)
)

// BodyText picks the richest text a feed item offered, the full
// content when present and the description otherwise, cleaned and
// capped at MaxBodyRunes.
func BodyText(e *models.Entry) string {
	body := e.Content
	if body == "" {
		body = e.Description
	}
	return Truncate(CleanText(body), MaxBodyRunes)
}

// CleanText strips markup from feed HTML, decodes entities and
// collapses runs of whitespace into single spaces.
func CleanText(s string) string {
	text := stripPolicy.Sanitize(s)
	text = html.UnescapeString(text)
	text = spaceRuns.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// TooShort reports whether a cleaned body is below the summarizing
// threshold.
func TooShort(s string) bool {
	return utf8.RuneCountInString(s) < MinBodyRunes
}
