package mpd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fhs/gompd/v2/mpd"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// fakeMPD implements backend for testing
type fakeMPD struct {
	status    mpd.Attrs
	statusErr error
	current   mpd.Attrs
	playlist  []mpd.Attrs

	added   []string
	addPos  []int
	played  []int
	nexts   int
	nextErr error
}

func (f *fakeMPD) Status() (mpd.Attrs, error)         { return f.status, f.statusErr }
func (f *fakeMPD) CurrentSong() (mpd.Attrs, error)    { return f.current, nil }
func (f *fakeMPD) PlaylistInfo() ([]mpd.Attrs, error) { return f.playlist, nil }
func (f *fakeMPD) PlayID(id int) error                { f.played = append(f.played, id); return nil }
func (f *fakeMPD) Next() error                        { f.nexts++; return f.nextErr }

func (f *fakeMPD) AddID(uri string, pos int) (int, error) {
	f.added = append(f.added, uri)
	f.addPos = append(f.addPos, pos)
	return 40 + len(f.added), nil
}

var _ recommend.Player = (*Player)(nil)

func TestPlayer_Status(t *testing.T) {
	tests := []struct {
		name        string
		state       string
		err         error
		wantPlaying bool
		wantPaused  bool
	}{
		{"playing", StatePlay, nil, true, false},
		{"paused", StatePause, nil, false, true},
		{"stopped", StateStop, nil, false, false},
		{"unavailable", StatePlay, errors.New("down"), false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Player{mpd: &fakeMPD{status: mpd.Attrs{"state": tt.state}, statusErr: tt.err}}
			if got := p.Playing(); got != tt.wantPlaying {
				t.Errorf("Playing: expected %v, got %v", tt.wantPlaying, got)
			}
			if got := p.Paused(); got != tt.wantPaused {
				t.Errorf("Paused: expected %v, got %v", tt.wantPaused, got)
			}
		})
	}
}

func TestPlayer_PlayInsertsAfterCurrent(t *testing.T) {
	f := &fakeMPD{status: mpd.Attrs{"state": StateStop, "song": "3"}}
	p := &Player{mpd: f}

	if err := p.Play(context.Background(), track.Track{URI: "http://x/a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.added) != 1 || f.addPos[0] != 4 {
		t.Errorf("expected insert at 4, got %v", f.addPos)
	}
	if len(f.played) != 1 || f.played[0] != 41 {
		t.Errorf("expected PlayID(41), got %v", f.played)
	}
}

func TestPlayer_PlayAppendsWithoutCurrent(t *testing.T) {
	f := &fakeMPD{status: mpd.Attrs{"state": StateStop}}
	p := &Player{mpd: f}

	p.Play(context.Background(), track.Track{URI: "a"})
	if f.addPos[0] != -1 {
		t.Errorf("expected append, got %d", f.addPos[0])
	}
}

func TestPlayer_HonorsCancelledContext(t *testing.T) {
	f := &fakeMPD{}
	p := &Player{mpd: f}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Play(ctx, track.Track{URI: "a"}); !errors.Is(err, context.Canceled) {
		t.Errorf("Play: expected context.Canceled, got %v", err)
	}
	if err := p.Skip(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Skip: expected context.Canceled, got %v", err)
	}
	if err := p.Queue().Add(ctx, track.Track{URI: "a"}, -1); !errors.Is(err, context.Canceled) {
		t.Errorf("Add: expected context.Canceled, got %v", err)
	}
	if len(f.added) != 0 || f.nexts != 0 {
		t.Error("expected no MPD calls")
	}
}

func TestPlayerQueue(t *testing.T) {
	f := &fakeMPD{
		current: mpd.Attrs{"file": "music/a.flac", "Title": "A", "Artist": "X", "Id": "7"},
		playlist: []mpd.Attrs{
			{"file": "music/a.flac", "Title": "A"},
			{"file": "music/b.flac"},
		},
	}
	q := (&Player{mpd: f}).Queue()

	cur := q.Current()
	if cur == nil || cur.Title != "A" || cur.ID != "7" {
		t.Errorf("unexpected current %+v", cur)
	}

	tracks := q.Tracks()
	if len(tracks) != 2 || tracks[1].Title != "b.flac" {
		t.Errorf("unexpected tracks %+v", tracks)
	}

	if err := q.Add(context.Background(), track.Track{URI: "c"}, 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.added[0] != "c" || f.addPos[0] != 1 {
		t.Errorf("expected add c at 1, got %v %v", f.added, f.addPos)
	}
}

func TestPlayerQueue_NoCurrent(t *testing.T) {
	q := (&Player{mpd: &fakeMPD{current: mpd.Attrs{}}}).Queue()
	if cur := q.Current(); cur != nil {
		t.Errorf("expected nil current, got %+v", cur)
	}
}

func TestPlayer_SkipCallsNext(t *testing.T) {
	f := &fakeMPD{}
	if err := (&Player{mpd: f}).Skip(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.nexts != 1 {
		t.Errorf("expected 1 next, got %d", f.nexts)
	}
}

func TestAttrsToTrack(t *testing.T) {
	got := attrsToTrack(mpd.Attrs{
		"file":        "music/x.flac",
		"Title":       "",
		"Artist":      "",
		"AlbumArtist": "Band",
		"duration":    "215.5",
		"Genre":       "Jazz",
		"Id":          "12",
	})

	if got.Title != "x.flac" {
		t.Errorf("expected filename title, got %q", got.Title)
	}
	if got.Artist != "Band" {
		t.Errorf("expected album artist fallback, got %q", got.Artist)
	}
	if got.Duration != 215500*time.Millisecond {
		t.Errorf("expected 215.5s, got %v", got.Duration)
	}
	if !got.HasGenre([]string{"jazz"}) {
		t.Error("expected genre to carry over")
	}
	if got.Source != Source || got.ID != "12" {
		t.Errorf("unexpected identity %q %q", got.Source, got.ID)
	}

	legacy := attrsToTrack(mpd.Attrs{"file": "a", "Time": "90"})
	if legacy.Duration != 90*time.Second {
		t.Errorf("expected 90s from Time, got %v", legacy.Duration)
	}
	if legacy.Analysis != nil {
		t.Error("expected no analysis without genre")
	}
}

func TestEndWatcher(t *testing.T) {
	states := []string{StatePlay, StatePlay, StateStop, StateStop, StatePause, StateStop, StatePlay, StateStop}
	i := 0
	ended := 0
	w := &EndWatcher{
		status: func() (string, error) {
			s := states[i]
			i++
			return s, nil
		},
		onEnd: func() { ended++ },
	}

	events := make(chan string, len(states)+2)
	events <- "mixer" // ignored
	for range states {
		events <- "player"
	}
	close(events)

	w.Run(context.Background(), events)

	if ended != 2 {
		t.Errorf("expected 2 track endings, got %d", ended)
	}
}

func TestEndWatcher_StopsOnContext(t *testing.T) {
	w := &EndWatcher{status: func() (string, error) { return StateStop, nil }, onEnd: func() {}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		w.Run(ctx, make(chan string))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
