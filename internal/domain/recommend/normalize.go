package recommend

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

const versionMarkers = `remix|rework|edit|mix|version|vip|extended|radio|club|dub|bootleg`

var (
	bracketRe     = regexp.MustCompile(`\([^)]*\)|\[[^\]]*\]|\{[^}]*\}`)
	versionTailRe = regexp.MustCompile(`(?i)\s+[-–—~|/]+\s+.*\b(?:` + versionMarkers + `)\b.*$`)
	featRe        = regexp.MustCompile(`(?i)\b(?:featuring|feat|ft)\b\.?.*$`)
	markerRe      = regexp.MustCompile(`(?i)\b(?:` + versionMarkers + `)\b`)
	nonWordRe     = regexp.MustCompile(`[^\p{L}\p{N}]+`)
)

// NormalizeTitle returns the canonical lowercase form of a title used for
// duplicate detection. It is never meant for display.
//
// Bracketed segments, a trailing " - ... Remix" style span, featuring clauses
// and bare version markers are removed, diacritics are folded, and punctuation
// collapses to single spaces.
func NormalizeTitle(raw string) string {
	s := bracketRe.ReplaceAllString(raw, " ")
	s = versionTailRe.ReplaceAllString(s, "")
	s = featRe.ReplaceAllString(s, "")
	s = markerRe.ReplaceAllString(s, " ")
	s = foldDiacritics(s)
	s = cases.Lower(language.Und).String(s)
	s = nonWordRe.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

func foldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
