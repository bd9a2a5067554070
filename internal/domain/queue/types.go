// Package queue owns the per-guild playback queues: track order, cursor,
// history, shuffle/repeat/autoplay configuration and content filters.
package queue

import (
	"strings"
	"time"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// Append as a position adds the track at the end of the queue.
const Append = -1

// Limits
const (
	DefaultHistoryLimit = 50
	mixedSeedWindow     = 5
	memorySoftCap       = 100
	memoryHardCap       = 200
)

// AutoplayRequester is the requester id stamped on tracks added by autoplay.
const AutoplayRequester = "autoplay"

// RepeatMode controls what happens when the cursor reaches a track boundary.
type RepeatMode string

const (
	RepeatOff   RepeatMode = "off"
	RepeatTrack RepeatMode = "track"
	RepeatQueue RepeatMode = "queue"
)

// ParseRepeatMode parses a repeat mode name (case-insensitive).
func ParseRepeatMode(s string) (RepeatMode, bool) {
	switch m := RepeatMode(strings.ToLower(strings.TrimSpace(s))); m {
	case RepeatOff, RepeatTrack, RepeatQueue:
		return m, true
	}
	return "", false
}

// AutoplayMode selects how the autoplay seed is chosen.
type AutoplayMode string

const (
	AutoplaySimilar AutoplayMode = "similar"
	AutoplayArtist  AutoplayMode = "artist"
	AutoplayGenre   AutoplayMode = "genre"
	AutoplayMood    AutoplayMode = "mood"
	AutoplayMixed   AutoplayMode = "mixed"
)

// ParseAutoplayMode parses an autoplay mode name (case-insensitive).
func ParseAutoplayMode(s string) (AutoplayMode, bool) {
	switch m := AutoplayMode(strings.ToLower(strings.TrimSpace(s))); m {
	case AutoplaySimilar, AutoplayArtist, AutoplayGenre, AutoplayMood, AutoplayMixed:
		return m, true
	}
	return "", false
}

// Filters decide which tracks a queue accepts.
type Filters struct {
	DuplicateProtection bool          `json:"duplicateProtection"`
	NoExplicit          bool          `json:"noExplicit"`
	MaxDuration         time.Duration `json:"maxDuration"` // 0 = unlimited
	Genres              []string      `json:"genres"`      // allow-list, empty = any
}

// DefaultFilters returns the filters a new queue starts with.
func DefaultFilters() Filters {
	return Filters{DuplicateProtection: true}
}

// Allows reports whether t passes the content filters. Duplicates are
// checked separately since they depend on the queue contents.
func (f Filters) Allows(t track.Track) bool {
	if f.NoExplicit && t.Explicit {
		return false
	}
	if f.MaxDuration > 0 && t.Duration > f.MaxDuration {
		return false
	}
	if len(f.Genres) > 0 && !t.HasGenre(f.Genres) {
		return false
	}
	return true
}

func (f Filters) clone() Filters {
	f.Genres = append([]string(nil), f.Genres...)
	return f
}

// Snapshot is the persisted form of a guild queue.
type Snapshot struct {
	Tracks       []track.Track `json:"tracks"`
	Cursor       int           `json:"cursor"`
	History      []track.Track `json:"history"`
	Shuffle      bool          `json:"shuffle"`
	Repeat       RepeatMode    `json:"repeat"`
	Autoplay     bool          `json:"autoplay"`
	AutoplayMode AutoplayMode  `json:"autoplayMode"`
	Filters      Filters       `json:"filters"`
}

// Analytics summarizes a guild queue.
type Analytics struct {
	TrackCount    int            `json:"trackCount"`
	TotalDuration time.Duration  `json:"totalDuration"`
	MeanEnergy    float64        `json:"meanEnergy"` // over tracks with analysis, 0 if none
	Genres        map[string]int `json:"genres"`
	Cursor        int            `json:"cursor"`
	HistoryLength int            `json:"historyLength"`
	Shuffle       bool           `json:"shuffle"`
	Repeat        RepeatMode     `json:"repeat"`
	Autoplay      bool           `json:"autoplay"`
	AutoplayMode  AutoplayMode   `json:"autoplayMode"`
}
