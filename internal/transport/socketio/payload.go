package socketio

import (
	"errors"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

var (
	errNoGuild      = errors.New("guild is required")
	errNotJoined    = errors.New("join a guild first")
	errMissingTrack = errors.New("track needs a uri or a title")
)

// TrackView is the client representation of a track.
type TrackView struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	URI         string   `json:"uri"`
	Source      string   `json:"source,omitempty"`
	Duration    float64  `json:"duration"` // seconds
	Explicit    bool     `json:"explicit,omitempty"`
	RequesterID string   `json:"requester,omitempty"`
	Genres      []string `json:"genres,omitempty"`
	Energy      float64  `json:"energy"`
}

// QueueView is the payload of pushQueue.
type QueueView struct {
	Guild        string      `json:"guild"`
	Tracks       []TrackView `json:"tracks"`
	Cursor       int         `json:"cursor"`
	Shuffle      bool        `json:"shuffle"`
	Repeat       string      `json:"repeat"`
	Autoplay     bool        `json:"autoplay"`
	AutoplayMode string      `json:"autoplayMode"`
}

// EventView is the payload of pushQueueEvent.
type EventView struct {
	Type         string     `json:"type"`
	Guild        string     `json:"guild"`
	Track        *TrackView `json:"track,omitempty"`
	Position     int        `json:"position"`
	Count        int        `json:"count,omitempty"`
	Shuffle      bool       `json:"shuffle"`
	Repeat       string     `json:"repeat,omitempty"`
	Autoplay     bool       `json:"autoplay"`
	AutoplayMode string     `json:"autoplayMode,omitempty"`
	Template     string     `json:"template,omitempty"`
}

// AnalyticsView is the payload of pushAnalytics.
type AnalyticsView struct {
	Guild         string         `json:"guild"`
	TrackCount    int            `json:"trackCount"`
	TotalDuration float64        `json:"totalDuration"` // seconds
	MeanEnergy    float64        `json:"meanEnergy"`
	Genres        map[string]int `json:"genres"`
	Cursor        int            `json:"cursor"`
	HistoryLength int            `json:"historyLength"`
	Shuffle       bool           `json:"shuffle"`
	Repeat        string         `json:"repeat"`
	Autoplay      bool           `json:"autoplay"`
	AutoplayMode  string         `json:"autoplayMode"`
	Watchers      int            `json:"watchers"`
}

// ErrorView is the payload of pushError.
type ErrorView struct {
	Command string `json:"command"`
	Message string `json:"message"`
}

func newTrackView(t track.Track) TrackView {
	return TrackView{
		ID:          t.ID,
		Title:       t.Title,
		Artist:      t.Artist,
		URI:         t.URI,
		Source:      t.Source,
		Duration:    t.Duration.Seconds(),
		Explicit:    t.Explicit,
		RequesterID: t.RequesterID,
		Genres:      t.Genres(),
		Energy:      t.Energy(),
	}
}

func newQueueView(guild snowflake.ID, snap queue.Snapshot) QueueView {
	v := QueueView{
		Guild:        guild.String(),
		Tracks:       make([]TrackView, 0, len(snap.Tracks)),
		Cursor:       snap.Cursor,
		Shuffle:      snap.Shuffle,
		Repeat:       string(snap.Repeat),
		Autoplay:     snap.Autoplay,
		AutoplayMode: string(snap.AutoplayMode),
	}
	for _, t := range snap.Tracks {
		v.Tracks = append(v.Tracks, newTrackView(t))
	}
	return v
}

func newEventView(e queue.Event) EventView {
	v := EventView{
		Type:         string(e.Type),
		Guild:        e.Guild.String(),
		Position:     e.Position,
		Count:        e.Count,
		Shuffle:      e.Shuffle,
		Repeat:       string(e.Repeat),
		Autoplay:     e.Autoplay,
		AutoplayMode: string(e.AutoplayMode),
		Template:     e.Template,
	}
	if e.Track != nil {
		tv := newTrackView(*e.Track)
		v.Track = &tv
	}
	return v
}

func newAnalyticsView(guild snowflake.ID, a queue.Analytics, watchers int) AnalyticsView {
	genres := a.Genres
	if genres == nil {
		genres = map[string]int{}
	}
	return AnalyticsView{
		Guild:         guild.String(),
		TrackCount:    a.TrackCount,
		TotalDuration: a.TotalDuration.Seconds(),
		MeanEnergy:    a.MeanEnergy,
		Genres:        genres,
		Cursor:        a.Cursor,
		HistoryLength: a.HistoryLength,
		Shuffle:       a.Shuffle,
		Repeat:        string(a.Repeat),
		Autoplay:      a.Autoplay,
		AutoplayMode:  string(a.AutoplayMode),
		Watchers:      watchers,
	}
}

// firstMap returns the first event argument as an object, or nil.
func firstMap(args []any) map[string]interface{} {
	if len(args) == 0 {
		return nil
	}
	m, _ := args[0].(map[string]interface{})
	return m
}

// parseGuild reads a guild id given as a decimal string or a JSON number.
func parseGuild(v any) (snowflake.ID, error) {
	switch g := v.(type) {
	case string:
		if strings.TrimSpace(g) == "" {
			return 0, errNoGuild
		}
		return snowflake.Parse(strings.TrimSpace(g))
	case float64:
		if g <= 0 {
			return 0, errNoGuild
		}
		return snowflake.ID(uint64(g)), nil
	}
	return 0, errNoGuild
}

// parseTrack builds a track from an addTrack payload. Duration is in seconds.
func parseTrack(m map[string]interface{}, requester string) (track.Track, error) {
	t := track.Track{
		Title:       getStringFromMap(m, "title"),
		Artist:      getStringFromMap(m, "artist"),
		URI:         getStringFromMap(m, "uri"),
		Source:      getStringFromMap(m, "source"),
		RequesterID: requester,
	}
	if t.URI == "" && t.Title == "" {
		return track.Track{}, errMissingTrack
	}
	if d, ok := m["duration"].(float64); ok && d > 0 {
		t.Duration = time.Duration(d * float64(time.Second))
	}
	t.Explicit, _ = m["explicit"].(bool)

	a := &track.Analysis{Energy: track.NeutralEnergy, Valence: 0.5}
	energy, hasEnergy := m["energy"].(float64)
	if hasEnergy {
		a.Energy = energy
	}
	if raw, ok := m["genres"].([]interface{}); ok {
		for _, g := range raw {
			if s, ok := g.(string); ok && s != "" {
				a.Genres = append(a.Genres, strings.ToLower(s))
			}
		}
	}
	if hasEnergy || len(a.Genres) > 0 {
		t.Analysis = a
	}
	return t, nil
}

// parseFilters builds queue filters from a setFilters payload. Missing keys
// keep the defaults; maxDuration is in seconds.
func parseFilters(m map[string]interface{}) queue.Filters {
	f := queue.DefaultFilters()
	if v, ok := m["duplicateProtection"].(bool); ok {
		f.DuplicateProtection = v
	}
	f.NoExplicit, _ = m["noExplicit"].(bool)
	if secs := getIntFromMap(m, "maxDuration", 0); secs > 0 {
		f.MaxDuration = time.Duration(secs) * time.Second
	}
	if raw, ok := m["genres"].([]interface{}); ok {
		for _, g := range raw {
			if s, ok := g.(string); ok && strings.TrimSpace(s) != "" {
				f.Genres = append(f.Genres, strings.ToLower(strings.TrimSpace(s)))
			}
		}
	}
	return f
}

// getIntFromMap safely extracts an integer from a map.
func getIntFromMap(m map[string]interface{}, key string, defaultVal int) int {
	if m == nil {
		return defaultVal
	}
	switch v := m[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	}
	return defaultVal
}

func getStringFromMap(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return strings.TrimSpace(s)
}
