package recommend_test

import (
	"testing"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		// Version markers
		{"parenthesized remix", "Underworld (Volen Sentir Remix)", "underworld"},
		{"dash remix tail", "Underworld - Lost Desert Remix", "underworld"},
		{"bracketed radio edit", "Underworld [Radio Edit]", "underworld"},
		{"featuring clause", "Underworld feat. Someone", "underworld"},
		{"ft clause", "Underworld ft. Someone Else", "underworld"},
		{"featuring long form", "Underworld featuring Someone", "underworld"},
		{"braced segment", "Underworld {Live}", "underworld"},
		{"bare marker", "Underworld Extended", "underworld"},
		{"pipe separator", "Underworld | Club Mix", "underworld"},

		// Punctuation and case
		{"collapses punctuation", "Hello,   World!!", "hello world"},
		{"trims", "  Song  ", "song"},
		{"diacritics folded", "Beyoncé Déjà Vu", "beyonce deja vu"},

		// Non-version tails survive
		{"dash tail without marker", "Song - Part Two", "song part two"},
		{"word containing marker", "Mixtape Memories", "mixtape memories"},
		{"word containing ft", "Left Behind", "left behind"},

		// Edge cases
		{"empty", "", ""},
		{"only brackets", "(Official Video)", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := recommend.NormalizeTitle(tt.input); got != tt.want {
				t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
