package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// Engine generates recommendation queries and drives a Searcher over them.
// It holds no per-guild state and is safe for concurrent use.
type Engine struct {
	providers Providers
}

// Option is a functional option for configuring the engine.
type Option func(*Engine)

// WithProviders overrides the provider prefixes.
func WithProviders(p Providers) Option {
	return func(e *Engine) {
		e.providers = p
	}
}

// NewEngine creates an engine using DefaultProviders unless overridden.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		providers: DefaultProviders(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Providers returns the engine's provider configuration.
func (e *Engine) Providers() Providers {
	return e.providers
}

// BuildCandidateQueries returns the ordered fallback queries for a seed:
// three primary-provider shapes with an optional platform alternate slotted
// in third, then the same three shapes against the secondary provider.
// It returns nil when both title and author are empty.
func (e *Engine) BuildCandidateQueries(title, author, sourceURI string) []string {
	title = strings.TrimSpace(title)
	author = strings.TrimSpace(author)
	if title == "" && author == "" {
		return nil
	}

	authorTitle := joinWords(author, title)
	quoted := fmt.Sprintf(`"%s" official`, authorTitle)
	topic := joinWords(title, author, "topic")

	var queries []string
	add := func(prefix, q string) {
		if prefix == "" || len(queries) >= MaxCandidateQueries {
			return
		}
		q = prefix + q
		for _, existing := range queries {
			if existing == q {
				return
			}
		}
		queries = append(queries, q)
	}

	p := e.providers
	add(p.Primary, quoted)
	add(p.Primary, topic)
	if alt, ok := p.alternateFor(sourceURI); ok {
		add(alt.Prefix, authorTitle)
	}
	add(p.Primary, authorTitle)
	add(p.Secondary, quoted)
	add(p.Secondary, topic)
	add(p.Secondary, authorTitle)

	return queries
}

// PickCandidate tries the candidate queries in order and returns the first
// result that is neither the seed's URI nor the seed's normalized title.
// Failing queries are skipped. It returns nil when nothing qualifies; the
// error is only set when ctx is done.
func (e *Engine) PickCandidate(ctx context.Context, search Searcher, seed Seed) (*track.Track, error) {
	seedTitle := NormalizeTitle(seed.Title)

	for _, q := range e.BuildCandidateQueries(seed.Title, seed.Author, seed.URI) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := search.Search(ctx, q)
		if err != nil {
			log.Debug().Err(err).Str("query", q).Msg("Candidate query failed")
			continue
		}

		for _, t := range res.Tracks {
			if isSeedDuplicate(t, seed.URI, seedTitle) {
				continue
			}
			log.Debug().
				Str("query", q).
				Str("title", t.Title).
				Str("uri", t.URI).
				Msg("Picked recommendation candidate")
			picked := t
			return &picked, nil
		}
	}

	log.Debug().
		Str("title", seed.Title).
		Str("author", seed.Author).
		Msg("No recommendation candidate found")
	return nil, nil
}

// EnsurePlayback starts t immediately on an idle player, otherwise appends it
// to the player's queue. If the player is still idle right after the enqueue
// (an external stop raced us) one skip is attempted; its failure is ignored.
func (e *Engine) EnsurePlayback(ctx context.Context, p Player, t track.Track) (Outcome, error) {
	if isIdle(p) {
		if err := p.Play(ctx, t); err != nil {
			return "", fmt.Errorf("play: %w", err)
		}
		log.Info().Str("title", t.Title).Msg("Started playback on idle player")
		return OutcomePlayed, nil
	}

	if err := p.Queue().Add(ctx, t, -1); err != nil {
		return "", fmt.Errorf("enqueue: %w", err)
	}

	if isIdle(p) {
		if err := p.Skip(ctx); err != nil {
			log.Warn().Err(err).Str("title", t.Title).Msg("Recovery skip after enqueue failed")
		}
	}

	return OutcomeQueued, nil
}

// SeedRelatedQueue gathers up to limit unique related tracks across all
// candidate queries and appends them to the player's queue. It returns the
// number of tracks added.
func (e *Engine) SeedRelatedQueue(ctx context.Context, p Player, base track.Track, search Searcher, limit int) (int, error) {
	if limit <= 0 {
		limit = DefaultSeedLimit
	}

	seed := SeedFrom(base)
	seedTitle := NormalizeTitle(seed.Title)

	seenKeys := make(map[string]struct{})
	seenTitles := make(map[string]struct{})
	var picks []track.Track

	for _, q := range e.BuildCandidateQueries(seed.Title, seed.Author, seed.URI) {
		if len(picks) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		res, err := search.Search(ctx, q)
		if err != nil {
			log.Debug().Err(err).Str("query", q).Msg("Seed query failed")
			continue
		}

		for _, t := range res.Tracks {
			if len(picks) >= limit {
				break
			}
			if isSeedDuplicate(t, seed.URI, seedTitle) {
				continue
			}

			key := uniqueKey(t)
			if _, dup := seenKeys[key]; dup {
				continue
			}
			norm := NormalizeTitle(t.Title)
			if norm != "" {
				if _, dup := seenTitles[norm]; dup {
					continue
				}
				seenTitles[norm] = struct{}{}
			}
			seenKeys[key] = struct{}{}
			picks = append(picks, t)
		}
	}

	added := 0
	for _, t := range picks {
		if err := p.Queue().Add(ctx, t, -1); err != nil {
			return added, fmt.Errorf("enqueue related track: %w", err)
		}
		added++
	}

	log.Info().
		Str("seed", seed.Title).
		Int("added", added).
		Msg("Seeded related tracks")

	return added, nil
}

func isIdle(p Player) bool {
	return !p.Playing() && !p.Paused()
}

func isSeedDuplicate(t track.Track, seedURI, seedTitle string) bool {
	if seedURI != "" && t.URI == seedURI {
		return true
	}
	return seedTitle != "" && NormalizeTitle(t.Title) == seedTitle
}

// uniqueKey identifies a candidate by URI, then provider id, then raw title.
func uniqueKey(t track.Track) string {
	switch {
	case t.URI != "":
		return "uri:" + t.URI
	case t.ID != "":
		return "id:" + t.ID
	default:
		return "title:" + t.Title
	}
}

func joinWords(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
