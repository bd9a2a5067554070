// Package track provides the immutable track value shared by the queue and
// recommendation engines.
package track

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// NeutralEnergy is the energy assumed for tracks without analysis data.
const NeutralEnergy = 0.5

// Analysis contains optional audio features for a track.
type Analysis struct {
	Tempo        float64  // BPM
	Key          string   // e.g. "C#m"
	Energy       float64  // 0..1
	Danceability float64  // 0..1
	Valence      float64  // 0..1
	Genres       []string // lowercase genre tags
}

// Track is a playable item. Values are never mutated after creation;
// use New to obtain a copy with owned slices.
type Track struct {
	ID          string
	Title       string
	Artist      string
	Duration    time.Duration
	URI         string
	Source      string // youtube, soundcloud, mpd, ...
	Explicit    bool
	RequesterID string
	AddedAt     time.Time
	Analysis    *Analysis
}

// New returns a detached copy of t with an id and insertion time filled in.
func New(t Track) Track {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.AddedAt.IsZero() {
		t.AddedAt = time.Now()
	}
	if t.Analysis != nil {
		a := *t.Analysis
		a.Genres = append([]string(nil), t.Analysis.Genres...)
		t.Analysis = &a
	}
	return t
}

// Energy returns the track energy, or NeutralEnergy when unknown.
func (t Track) Energy() float64 {
	if t.Analysis == nil {
		return NeutralEnergy
	}
	return t.Analysis.Energy
}

// Genres returns the track's genre tags (nil when unknown).
func (t Track) Genres() []string {
	if t.Analysis == nil {
		return nil
	}
	return t.Analysis.Genres
}

// HasGenre reports whether any of the track's genres is in allowed (case-insensitive).
func (t Track) HasGenre(allowed []string) bool {
	for _, g := range t.Genres() {
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(g), strings.TrimSpace(a)) {
				return true
			}
		}
	}
	return false
}

// SameSong reports whether t and o share a source URI or a title/artist pair.
func (t Track) SameSong(o Track) bool {
	if t.URI != "" && t.URI == o.URI {
		return true
	}
	if t.Title == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(t.Title), strings.TrimSpace(o.Title)) &&
		strings.EqualFold(strings.TrimSpace(t.Artist), strings.TrimSpace(o.Artist))
}
