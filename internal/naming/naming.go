// Package naming derives candidate file names and resolves collisions
// against the namespaces a rename writes into.
package naming

import (
	"path/filepath"
	"regexp"
	"strings"
)

const (
	maxSanitizedLen  = 50
	maxSuggestionLen = 40
	maxSlugLen       = 50
	minCleanLen      = 3
)

type cleanPattern struct {
	re   *regexp.Regexp
	repl string
}

// Ordered by priority. Only the first match is applied.
var cleanPatterns = []cleanPattern{
	// imgi_65_sunset
	{re: regexp.MustCompile(`(?i)^imgi?_\d+_`), repl: ""},
	// IMG_2045, DSC01234, PXL_20240101, Screenshot_2024...
	{re: regexp.MustCompile(`(?i)^(?:img|dsc[nf]?|photo|pxl|screenshot)[_\- ]*(\d)`), repl: "${1}"},
	// 2024-05-12_beach, 20240512_143022_beach
	{re: regexp.MustCompile(`^\d{4}-?\d{2}-?\d{2}(?:[_\- tT]*\d{2}[.:\-]?\d{2}[.:\-]?\d{2})?[_\- ]+`), repl: ""},
	// 1699999999_sunset
	{re: regexp.MustCompile(`^\d{3,}[_\- ]+`), repl: ""},
}

var (
	nonSanitized = regexp.MustCompile(`[^a-z0-9_]`)
	nonSlug      = regexp.MustCompile(`[^a-z0-9_-]`)
	repeatedSep  = regexp.MustCompile(`_{2,}`)
)

// PatternClean strips a camera or export prefix from originalName. It
// returns false when no pattern matches or what is left is too short to
// be a useful name.
func PatternClean(originalName string) (string, bool) {
	base := strings.TrimSuffix(originalName, filepath.Ext(originalName))
	for _, p := range cleanPatterns {
		if !p.re.MatchString(base) {
			continue
		}
		cleaned := strings.Trim(p.re.ReplaceAllString(base, p.repl), "_- .")
		if len(cleaned) < minCleanLen {
			return "", false
		}
		return cleaned, true
	}
	return "", false
}

// Sanitize lowercases name and replaces every character outside
// [a-z0-9_] with an underscore, truncated to 50 characters.
func Sanitize(name string) string {
	s := nonSanitized.ReplaceAllString(strings.ToLower(name), "_")
	return truncate(s, maxSanitizedLen)
}

// NormalizeSuggestion cleans an analyzer-suggested name.
func NormalizeSuggestion(s string) string {
	s = nonSanitized.ReplaceAllString(strings.ToLower(strings.TrimSpace(s)), "_")
	s = repeatedSep.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	return strings.TrimRight(truncate(s, maxSuggestionLen), "_")
}

// ProjectSlug is the project name as used in blob paths.
func ProjectSlug(name string) string {
	s := nonSlug.ReplaceAllString(strings.ToLower(name), "_")
	s = repeatedSep.ReplaceAllString(s, "_")
	return truncate(s, maxSlugLen)
}

// truncate works on bytes; every input has been reduced to ASCII by the
// time it gets here.
func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
