package queue

import (
	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// autoplaySeed picks the recommendation seed for the configured mode. Modes
// missing the data they need fall back to the last played track.
// Caller holds the lock.
func (s *State) autoplaySeed(r rng) recommend.Seed {
	last, ok := s.lastPlayed()
	if !ok {
		return recommend.Seed{}
	}
	similar := recommend.SeedFrom(last)

	switch s.autoplay.mode {
	case AutoplayArtist:
		if last.Artist != "" {
			return recommend.Seed{Author: last.Artist, URI: last.URI}
		}
	case AutoplayGenre:
		if genres := last.Genres(); len(genres) > 0 && genres[0] != "" {
			return recommend.Seed{Title: genres[0], URI: last.URI}
		}
	case AutoplayMood:
		if last.Analysis != nil {
			return recommend.Seed{Title: moodWord(last.Analysis), URI: last.URI}
		}
	case AutoplayMixed:
		if n := len(s.autoplay.seeds); n > 0 {
			return recommend.SeedFrom(s.autoplay.seeds[r.IntN(n)])
		}
	}
	return similar
}

// lastPlayed returns the newest history entry, else the current or last
// queued track.
func (s *State) lastPlayed() (track.Track, bool) {
	if n := len(s.history); n > 0 {
		return s.history[n-1], true
	}
	if cur, ok := s.current(); ok {
		return cur, true
	}
	if n := len(s.tracks); n > 0 {
		return s.tracks[n-1], true
	}
	return track.Track{}, false
}

// moodWord maps energy and valence onto a search-friendly mood.
func moodWord(a *track.Analysis) string {
	switch {
	case a.Energy >= 0.6 && a.Valence >= 0.5:
		return "upbeat"
	case a.Energy >= 0.6:
		return "intense"
	case a.Valence >= 0.5:
		return "chill"
	default:
		return "melancholic"
	}
}
