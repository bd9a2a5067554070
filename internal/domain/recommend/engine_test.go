package recommend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// mockQueue implements PlayerQueue for testing
type mockQueue struct {
	mu       sync.Mutex
	current  *track.Track
	tracks   []track.Track
	addCalls int
	addError error
}

func (q *mockQueue) Current() *track.Track { return q.current }

func (q *mockQueue) Tracks() []track.Track {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]track.Track(nil), q.tracks...)
}

func (q *mockQueue) Add(ctx context.Context, t track.Track, index int) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.addCalls++
	if q.addError != nil {
		return q.addError
	}
	q.tracks = append(q.tracks, t)
	return nil
}

// mockPlayer implements Player for testing
type mockPlayer struct {
	playing   bool
	paused    bool
	queue     *mockQueue
	playCalls int
	skipCalls int
	skipError error

	// stopOnAdd simulates an external stop racing the enqueue.
	stopOnAdd bool
}

func newMockPlayer() *mockPlayer {
	return &mockPlayer{queue: &mockQueue{}}
}

func (p *mockPlayer) Playing() bool { return p.playing }
func (p *mockPlayer) Paused() bool  { return p.paused }

func (p *mockPlayer) Queue() PlayerQueue {
	if p.stopOnAdd {
		return &stoppingQueue{mockQueue: p.queue, player: p}
	}
	return p.queue
}

func (p *mockPlayer) Play(ctx context.Context, t track.Track) error {
	p.playCalls++
	p.playing = true
	return nil
}

func (p *mockPlayer) Skip(ctx context.Context) error {
	p.skipCalls++
	return p.skipError
}

type stoppingQueue struct {
	*mockQueue
	player *mockPlayer
}

func (q *stoppingQueue) Add(ctx context.Context, t track.Track, index int) error {
	err := q.mockQueue.Add(ctx, t, index)
	q.player.playing = false
	q.player.paused = false
	return err
}

// mockSearcher records queries and serves canned results.
type mockSearcher struct {
	mu      sync.Mutex
	queries []string
	respond func(query string) (SearchResult, error)
}

func (m *mockSearcher) Search(ctx context.Context, query string) (SearchResult, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query)
	m.mu.Unlock()
	if m.respond == nil {
		return SearchResult{}, nil
	}
	return m.respond(query)
}

func TestBuildCandidateQueries_Order(t *testing.T) {
	e := NewEngine()

	got := e.BuildCandidateQueries("Song", "Artist", "prev://uri")
	want := []string{
		`ytmsearch:"Artist Song" official`,
		`ytmsearch:Song Artist topic`,
		`ytmsearch:Artist Song`,
		`ytsearch:"Artist Song" official`,
		`ytsearch:Song Artist topic`,
		`ytsearch:Artist Song`,
	}

	if len(got) != len(want) {
		t.Fatalf("expected %d queries, got %d: %v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("query %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestBuildCandidateQueries_AlternateProvider(t *testing.T) {
	e := NewEngine()

	got := e.BuildCandidateQueries("Song", "Artist", "https://soundcloud.com/artist/song")
	if len(got) != MaxCandidateQueries {
		t.Fatalf("expected %d queries, got %d: %v", MaxCandidateQueries, len(got), got)
	}
	if got[2] != "scsearch:Artist Song" {
		t.Errorf("expected alternate query third, got %q", got[2])
	}
}

func TestBuildCandidateQueries_Empty(t *testing.T) {
	e := NewEngine()

	if got := e.BuildCandidateQueries("  ", "", "https://soundcloud.com/x"); got != nil {
		t.Errorf("expected nil, got %v", got)
	}
}

func TestBuildCandidateQueries_AuthorOnly(t *testing.T) {
	e := NewEngine()

	got := e.BuildCandidateQueries("", "Artist", "")
	if len(got) == 0 {
		t.Fatal("expected queries for author-only seed")
	}
	if got[0] != `ytmsearch:"Artist" official` {
		t.Errorf("unexpected first query %q", got[0])
	}
	for _, q := range got {
		if strings.Contains(q, "  ") {
			t.Errorf("query has doubled whitespace: %q", q)
		}
	}
}

func TestBuildCandidateQueries_CustomProviders(t *testing.T) {
	e := NewEngine(WithProviders(Providers{Primary: "a:", Secondary: "b:"}))

	got := e.BuildCandidateQueries("Song", "Artist", "")
	if len(got) != 6 {
		t.Fatalf("expected 6 queries, got %d", len(got))
	}
	if !strings.HasPrefix(got[0], "a:") || !strings.HasPrefix(got[5], "b:") {
		t.Errorf("unexpected prefixes: %v", got)
	}
}

func TestPickCandidate_FallsBackToSecondary(t *testing.T) {
	e := NewEngine()
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			if strings.HasPrefix(q, PrefixYouTube) {
				return SearchResult{Tracks: []track.Track{{URI: "yt://id123"}}}, nil
			}
			return SearchResult{}, nil
		},
	}

	got, err := e.PickCandidate(context.Background(), s, Seed{Title: "Song", Author: "Artist", URI: "prev://uri"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.URI != "yt://id123" {
		t.Fatalf("expected yt://id123, got %+v", got)
	}

	// Stops at the first secondary query that yields a hit.
	if last := s.queries[len(s.queries)-1]; !strings.HasPrefix(last, PrefixYouTube) {
		t.Errorf("expected last query to be secondary, got %q", last)
	}
	if len(s.queries) != 4 {
		t.Errorf("expected 4 queries tried, got %d: %v", len(s.queries), s.queries)
	}
}

func TestPickCandidate_SkipsSeedDuplicates(t *testing.T) {
	e := NewEngine()
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			return SearchResult{Tracks: []track.Track{
				{URI: "prev://uri", Title: "Other"},
				{URI: "x://1", Title: "Song (Official Video)"},
				{URI: "x://2", Title: "Song - Club Remix"},
				{URI: "x://3", Title: "Different Song"},
			}}, nil
		},
	}

	got, err := e.PickCandidate(context.Background(), s, Seed{Title: "Song", Author: "Artist", URI: "prev://uri"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.URI != "x://3" {
		t.Fatalf("expected x://3, got %+v", got)
	}
	if len(s.queries) != 1 {
		t.Errorf("expected to stop after first query, got %d", len(s.queries))
	}
}

func TestPickCandidate_SwallowsQueryErrors(t *testing.T) {
	e := NewEngine()
	calls := 0
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			calls++
			if calls < 3 {
				return SearchResult{}, errors.New("provider down")
			}
			return SearchResult{Tracks: []track.Track{{URI: "ok://1", Title: "Fine"}}}, nil
		},
	}

	got, err := e.PickCandidate(context.Background(), s, Seed{Title: "Song", Author: "Artist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.URI != "ok://1" {
		t.Fatalf("expected ok://1, got %+v", got)
	}
}

func TestPickCandidate_NoneAnywhere(t *testing.T) {
	e := NewEngine()
	s := &mockSearcher{}

	got, err := e.PickCandidate(context.Background(), s, Seed{Title: "Song", Author: "Artist"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if len(s.queries) != 6 {
		t.Errorf("expected all 6 queries tried, got %d", len(s.queries))
	}
}

func TestPickCandidate_EmptySeed(t *testing.T) {
	e := NewEngine()
	s := &mockSearcher{}

	got, _ := e.PickCandidate(context.Background(), s, Seed{})
	if got != nil {
		t.Errorf("expected nil, got %+v", got)
	}
	if len(s.queries) != 0 {
		t.Errorf("expected no queries, got %v", s.queries)
	}
}

func TestPickCandidate_CancelledContext(t *testing.T) {
	e := NewEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.PickCandidate(ctx, &mockSearcher{}, Seed{Title: "Song"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestEnsurePlayback_IdlePlayerPlays(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()

	outcome, err := e.EnsurePlayback(context.Background(), p, track.Track{Title: "Song"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != OutcomePlayed {
		t.Errorf("expected %q, got %q", OutcomePlayed, outcome)
	}
	if p.playCalls != 1 {
		t.Errorf("expected 1 play call, got %d", p.playCalls)
	}
	if p.queue.addCalls != 0 {
		t.Errorf("expected 0 add calls, got %d", p.queue.addCalls)
	}
}

func TestEnsurePlayback_BusyPlayerQueues(t *testing.T) {
	tests := []struct {
		name    string
		playing bool
		paused  bool
	}{
		{"playing", true, false},
		{"paused", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := NewEngine()
			p := newMockPlayer()
			p.playing, p.paused = tt.playing, tt.paused

			outcome, err := e.EnsurePlayback(context.Background(), p, track.Track{Title: "Song"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if outcome != OutcomeQueued {
				t.Errorf("expected %q, got %q", OutcomeQueued, outcome)
			}
			if p.queue.addCalls != 1 {
				t.Errorf("expected 1 add call, got %d", p.queue.addCalls)
			}
			if p.playCalls != 0 {
				t.Errorf("expected 0 play calls, got %d", p.playCalls)
			}
			if p.skipCalls != 0 {
				t.Errorf("expected 0 skip calls, got %d", p.skipCalls)
			}
		})
	}
}

func TestEnsurePlayback_RaceRecoverySkipIsBestEffort(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	p.playing = true
	p.stopOnAdd = true
	p.skipError = errors.New("skip failed")

	outcome, err := e.EnsurePlayback(context.Background(), p, track.Track{Title: "Song"})
	if err != nil {
		t.Fatalf("recovery failure must not surface, got %v", err)
	}
	if outcome != OutcomeQueued {
		t.Errorf("expected %q, got %q", OutcomeQueued, outcome)
	}
	if p.skipCalls != 1 {
		t.Errorf("expected 1 recovery skip, got %d", p.skipCalls)
	}
}

func TestEnsurePlayback_EnqueueErrorPropagates(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	p.playing = true
	p.queue.addError = errors.New("queue full")

	if _, err := e.EnsurePlayback(context.Background(), p, track.Track{}); err == nil {
		t.Error("expected enqueue error")
	}
}

func TestSeedRelatedQueue_Bounds(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	n := 0
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			var tracks []track.Track
			// The seed itself, a title duplicate, and many unique tracks.
			tracks = append(tracks, track.Track{URI: "seed://1", Title: "Other Name"})
			tracks = append(tracks, track.Track{URI: "dup://x", Title: "Song (Remix)"})
			for i := 0; i < 5; i++ {
				n++
				tracks = append(tracks, track.Track{
					URI:   fmt.Sprintf("u://%d", n),
					Title: fmt.Sprintf("Track %d", n),
				})
			}
			// Same normalized title as one added above.
			tracks = append(tracks, track.Track{URI: "alias://1", Title: "Track 1 [Radio Edit]"})
			return SearchResult{Tracks: tracks}, nil
		},
	}

	base := track.Track{URI: "seed://1", Title: "Song", Artist: "Artist"}
	added, err := e.SeedRelatedQueue(context.Background(), p, base, s, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 10 {
		t.Errorf("expected 10 added, got %d", added)
	}

	titles := make(map[string]bool)
	for _, tr := range p.queue.Tracks() {
		if tr.URI == "seed://1" {
			t.Error("seed uri must never be added")
		}
		norm := NormalizeTitle(tr.Title)
		if titles[norm] {
			t.Errorf("duplicate normalized title %q", norm)
		}
		titles[norm] = true
	}
	if len(p.queue.Tracks()) != 10 {
		t.Errorf("expected 10 queued, got %d", len(p.queue.Tracks()))
	}
}

func TestSeedRelatedQueue_AccumulatesAcrossQueries(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			return SearchResult{Tracks: []track.Track{{URI: "u://" + q, Title: "T " + q}}}, nil
		},
	}

	added, err := e.SeedRelatedQueue(context.Background(), p, track.Track{Title: "Song", Artist: "Artist"}, s, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 6 {
		t.Errorf("expected one pick per query (6), got %d", added)
	}
	if len(s.queries) != 6 {
		t.Errorf("expected all queries to run, got %d", len(s.queries))
	}
}

func TestSeedRelatedQueue_UniqueKeyFallbacks(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			return SearchResult{Tracks: []track.Track{
				{ID: "provider-1", Title: "Alpha"},
				{ID: "provider-1", Title: "Alpha Two"},
				{Title: "Beta"},
			}}, nil
		},
	}

	added, err := e.SeedRelatedQueue(context.Background(), p, track.Track{Title: "Song"}, s, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if added != 2 {
		t.Errorf("expected 2 unique tracks, got %d", added)
	}
}

func TestSeedRelatedQueue_AddErrorReturnsPartialCount(t *testing.T) {
	e := NewEngine()
	p := newMockPlayer()
	p.queue.addError = errors.New("nope")
	s := &mockSearcher{
		respond: func(q string) (SearchResult, error) {
			return SearchResult{Tracks: []track.Track{{URI: "u://1", Title: "One"}}}, nil
		},
	}

	added, err := e.SeedRelatedQueue(context.Background(), p, track.Track{Title: "Song"}, s, 10)
	if err == nil {
		t.Error("expected error")
	}
	if added != 0 {
		t.Errorf("expected 0 added, got %d", added)
	}
}
