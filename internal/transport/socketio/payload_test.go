package socketio

import (
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

func TestGetIntFromMap(t *testing.T) {
	tests := []struct {
		name       string
		m          map[string]interface{}
		key        string
		defaultVal int
		expected   int
	}{
		{"nil map", nil, "test", -1, -1},
		{"missing key", map[string]interface{}{"other": 5}, "test", -1, -1},
		{"int value", map[string]interface{}{"test": 42}, "test", -1, 42},
		{"float64 value", map[string]interface{}{"test": float64(42)}, "test", -1, 42},
		{"int64 value", map[string]interface{}{"test": int64(42)}, "test", -1, 42},
		{"string value returns default", map[string]interface{}{"test": "42"}, "test", -1, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := getIntFromMap(tt.m, tt.key, tt.defaultVal); got != tt.expected {
				t.Errorf("expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestParseGuild(t *testing.T) {
	tests := []struct {
		name    string
		in      any
		want    snowflake.ID
		wantErr bool
	}{
		{"decimal string", "123456789012345678", 123456789012345678, false},
		{"padded string", "  42 ", 42, false},
		{"number", float64(77), 77, false},
		{"empty string", "", 0, true},
		{"not a number", "abc", 0, true},
		{"zero", float64(0), 0, true},
		{"missing", nil, 0, true},
		{"wrong type", true, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseGuild(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error=%v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestParseTrack(t *testing.T) {
	got, err := parseTrack(map[string]interface{}{
		"title":    " Song ",
		"artist":   "Band",
		"uri":      "https://example.com/a",
		"duration": float64(200.5),
		"explicit": true,
		"genres":   []interface{}{"Rock", "", 3},
		"energy":   float64(0.8),
	}, "client-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.Title != "Song" || got.Artist != "Band" || got.RequesterID != "client-1" {
		t.Errorf("unexpected identity %+v", got)
	}
	if got.Duration != 200500*time.Millisecond {
		t.Errorf("expected 200.5s, got %v", got.Duration)
	}
	if !got.Explicit {
		t.Error("expected explicit flag")
	}
	if got.Analysis == nil || len(got.Analysis.Genres) != 1 || got.Analysis.Genres[0] != "rock" {
		t.Errorf("expected genres [rock], got %+v", got.Analysis)
	}
	if got.Energy() != 0.8 {
		t.Errorf("expected energy 0.8, got %v", got.Energy())
	}
}

func TestParseTrackRequiresURIOrTitle(t *testing.T) {
	if _, err := parseTrack(map[string]interface{}{"artist": "Band"}, ""); err != errMissingTrack {
		t.Errorf("expected errMissingTrack, got %v", err)
	}
	if _, err := parseTrack(nil, ""); err != errMissingTrack {
		t.Errorf("expected errMissingTrack for nil payload, got %v", err)
	}

	minimal, err := parseTrack(map[string]interface{}{"uri": "u"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if minimal.Analysis != nil {
		t.Error("expected no analysis without genres or energy")
	}
}

func TestParseFilters(t *testing.T) {
	f := parseFilters(nil)
	if !f.DuplicateProtection || f.NoExplicit || f.MaxDuration != 0 {
		t.Errorf("expected default filters, got %+v", f)
	}

	f = parseFilters(map[string]interface{}{
		"duplicateProtection": false,
		"noExplicit":          true,
		"maxDuration":         float64(300),
		"genres":              []interface{}{" Jazz "},
	})
	if f.DuplicateProtection || !f.NoExplicit {
		t.Errorf("unexpected flags %+v", f)
	}
	if f.MaxDuration != 5*time.Minute {
		t.Errorf("expected 5m, got %v", f.MaxDuration)
	}
	if len(f.Genres) != 1 || f.Genres[0] != "jazz" {
		t.Errorf("expected [jazz], got %v", f.Genres)
	}
}

func TestViews(t *testing.T) {
	tr := track.Track{ID: "1", Title: "A", URI: "a", Duration: 90 * time.Second}

	qv := newQueueView(5, queue.Snapshot{Tracks: []track.Track{tr}, Cursor: 0, Repeat: queue.RepeatQueue})
	if qv.Guild != "5" || len(qv.Tracks) != 1 || qv.Tracks[0].Duration != 90 || qv.Repeat != "queue" {
		t.Errorf("unexpected queue view %+v", qv)
	}
	if qv.Tracks[0].Energy != track.NeutralEnergy {
		t.Errorf("expected neutral energy, got %v", qv.Tracks[0].Energy)
	}

	empty := newQueueView(5, queue.Snapshot{Cursor: -1})
	if empty.Tracks == nil {
		t.Error("expected empty, non-nil track list")
	}

	ev := newEventView(queue.Event{Type: queue.EventTrackAdded, Guild: 5, Track: &tr, Position: 2})
	if ev.Type != string(queue.EventTrackAdded) || ev.Track == nil || ev.Track.Title != "A" || ev.Position != 2 {
		t.Errorf("unexpected event view %+v", ev)
	}
	if ev := newEventView(queue.Event{Type: queue.EventQueueExhausted, Guild: 5}); ev.Track != nil {
		t.Error("expected no track in exhausted event")
	}
}
