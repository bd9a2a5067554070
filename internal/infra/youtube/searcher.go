// Package youtube implements recommend.Searcher on top of YouTube Music and
// YouTube video search.
package youtube

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ppalone/ytsearch"
	"github.com/raitonoberu/ytmusic"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// Source tags tracks produced by this package.
const Source = "youtube"

// Defaults
const (
	DefaultRate       = 4
	DefaultBurst      = 10
	DefaultCacheTTL   = time.Hour
	DefaultMaxResults = 10
)

var prefixRe = regexp.MustCompile(`^([a-z]+search):`)

// backend runs one search against a provider.
type backend func(ctx context.Context, query string) ([]track.Track, error)

type cachedResult struct {
	tracks    []track.Track
	expiresAt time.Time
}

// Searcher serves ytmsearch: and ytsearch: queries. Un-prefixed queries go to
// YouTube Music. Results are cached per query and provider calls share a
// rate limiter.
type Searcher struct {
	limiter    *rate.Limiter
	ttl        time.Duration
	maxResults int

	music backend
	video backend

	mu    sync.RWMutex
	cache map[string]cachedResult
}

// Option is a functional option for configuring the searcher.
type Option func(*Searcher)

// WithRateLimit sets the sustained provider calls per second and burst size.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Searcher) {
		if perSecond > 0 && burst > 0 {
			s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCacheTTL sets how long results are reused; 0 disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(s *Searcher) {
		s.ttl = ttl
	}
}

// WithMaxResults caps the tracks returned per query.
func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// New creates a searcher backed by the live YouTube endpoints.
func New(opts ...Option) *Searcher {
	s := &Searcher{
		limiter:    rate.NewLimiter(rate.Limit(DefaultRate), DefaultBurst),
		ttl:        DefaultCacheTTL,
		maxResults: DefaultMaxResults,
		music:      searchMusic,
		video:      searchVideos,
		cache:      make(map[string]cachedResult),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search runs a prefixed query. Prefixes for other providers return
// recommend.ErrUnsupportedProvider.
func (s *Searcher) Search(ctx context.Context, query string) (recommend.SearchResult, error) {
	provider, q, err := s.route(query)
	if err != nil {
		return recommend.SearchResult{}, err
	}
	if q == "" {
		return recommend.SearchResult{}, nil
	}

	if tracks, ok := s.cached(query); ok {
		return recommend.SearchResult{Tracks: tracks}, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return recommend.SearchResult{}, err
	}

	start := time.Now()
	tracks, err := provider(ctx, q)
	if err != nil {
		return recommend.SearchResult{}, fmt.Errorf("search %q: %w", query, err)
	}
	if len(tracks) > s.maxResults {
		tracks = tracks[:s.maxResults]
	}

	log.Debug().
		Str("query", query).
		Int("results", len(tracks)).
		Dur("elapsed", time.Since(start)).
		Msg("YouTube search")

	s.store(query, tracks)
	return recommend.SearchResult{Tracks: append([]track.Track(nil), tracks...)}, nil
}

func (s *Searcher) route(query string) (backend, string, error) {
	query = strings.TrimSpace(query)
	m := prefixRe.FindStringSubmatch(strings.ToLower(query))
	if m == nil {
		return s.music, query, nil
	}

	rest := strings.TrimSpace(query[len(m[0]):])
	switch m[1] + ":" {
	case recommend.PrefixYouTubeMusic:
		return s.music, rest, nil
	case recommend.PrefixYouTube:
		return s.video, rest, nil
	}
	return nil, "", fmt.Errorf("%w: %s", recommend.ErrUnsupportedProvider, m[1])
}

func (s *Searcher) cached(query string) ([]track.Track, bool) {
	if s.ttl <= 0 {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[query]
	if !ok || time.Now().After(c.expiresAt) {
		return nil, false
	}
	return append([]track.Track(nil), c.tracks...), true
}

func (s *Searcher) store(query string, tracks []track.Track) {
	if s.ttl <= 0 || len(tracks) == 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, c := range s.cache {
		if now.After(c.expiresAt) {
			delete(s.cache, k)
		}
	}
	s.cache[query] = cachedResult{tracks: tracks, expiresAt: now.Add(s.ttl)}
}

// searchMusic queries YouTube Music. The client has no context support, so
// the call is abandoned (not cancelled) when ctx ends.
func searchMusic(ctx context.Context, query string) ([]track.Track, error) {
	type result struct {
		tracks []track.Track
		err    error
	}
	done := make(chan result, 1)

	go func() {
		r, err := ytmusic.TrackSearch(query).Next()
		if err != nil {
			done <- result{err: err}
			return
		}
		var tracks []track.Track
		for _, v := range r.Tracks {
			if v.VideoID == "" {
				continue
			}
			artist := ""
			if len(v.Artists) > 0 {
				artist = v.Artists[0].Name
			}
			tracks = append(tracks, track.Track{
				ID:     v.VideoID,
				Title:  v.Title,
				Artist: artist,
				URI:    "https://music.youtube.com/watch?v=" + v.VideoID,
				Source: Source,
			})
		}
		done <- result{tracks: tracks}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		return r.tracks, r.err
	}
}

func searchVideos(ctx context.Context, query string) ([]track.Track, error) {
	r, err := ytsearch.NewClient(nil).Search(ctx, query)
	if err != nil {
		return nil, err
	}
	var tracks []track.Track
	for _, v := range r.Results {
		if v.VideoID == "" {
			continue
		}
		tracks = append(tracks, track.Track{
			ID:       v.VideoID,
			Title:    v.Title,
			Artist:   v.Channel,
			Duration: parseDuration(v.Duration),
			URI:      "https://www.youtube.com/watch?v=" + v.VideoID,
			Source:   Source,
		})
	}
	return tracks, nil
}

// parseDuration parses "3:20" or "1:05:20". Anything else is 0.
func parseDuration(s string) time.Duration {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0
	}
	var total int
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0
		}
		total = total*60 + n
	}
	return time.Duration(total) * time.Second
}
