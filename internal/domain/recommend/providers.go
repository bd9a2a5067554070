package recommend

import (
	"regexp"
	"strings"
)

// Default provider prefixes.
const (
	PrefixYouTubeMusic = "ytmsearch:"
	PrefixYouTube      = "ytsearch:"
	PrefixSoundCloud   = "scsearch:"
	PrefixSpotify      = "spsearch:"
	PrefixDeezer       = "dzsearch:"
	PrefixAppleMusic   = "amsearch:"
)

// MaxCandidateQueries bounds the number of queries BuildCandidateQueries returns.
const MaxCandidateQueries = 7

// Alternate is a source-specific provider used only when the seed URI comes
// from that platform.
type Alternate struct {
	Name    string
	Prefix  string
	Pattern *regexp.Regexp
}

// Matches reports whether uri has the platform's URL shape.
func (a Alternate) Matches(uri string) bool {
	return a.Pattern != nil && a.Pattern.MatchString(uri)
}

// Providers configures the query prefixes used by the engine.
type Providers struct {
	Primary    string
	Secondary  string
	Alternates []Alternate
}

// DefaultProviders returns the YouTube Music primary, YouTube secondary
// provider chain with the common platform alternates.
func DefaultProviders() Providers {
	return Providers{
		Primary:   PrefixYouTubeMusic,
		Secondary: PrefixYouTube,
		Alternates: []Alternate{
			{Name: "soundcloud", Prefix: PrefixSoundCloud, Pattern: regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.|m\.)?soundcloud\.com/`)},
			{Name: "spotify", Prefix: PrefixSpotify, Pattern: regexp.MustCompile(`(?i)^(?:https?://)?open\.spotify\.com/`)},
			{Name: "deezer", Prefix: PrefixDeezer, Pattern: regexp.MustCompile(`(?i)^(?:https?://)?(?:www\.)?deezer\.com/`)},
			{Name: "applemusic", Prefix: PrefixAppleMusic, Pattern: regexp.MustCompile(`(?i)^(?:https?://)?music\.apple\.com/`)},
		},
	}
}

// alternateFor returns the first alternate matching uri.
func (p Providers) alternateFor(uri string) (Alternate, bool) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return Alternate{}, false
	}
	for _, a := range p.Alternates {
		if a.Matches(uri) {
			return a, true
		}
	}
	return Alternate{}, false
}
