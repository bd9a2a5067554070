// Package recommend builds fallback search queries for a seed track, picks
// non-duplicate candidates, and makes sure chosen tracks actually play.
package recommend

import (
	"context"
	"errors"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// Common errors
var (
	// ErrUnsupportedProvider is returned by searchers for a query prefix they cannot serve.
	ErrUnsupportedProvider = errors.New("unsupported search provider")
)

// SearchResult is the outcome of one catalog lookup.
type SearchResult struct {
	Tracks []track.Track
}

// Searcher looks up tracks for a query string. Implementations may fan out to
// several real providers.
type Searcher interface {
	Search(ctx context.Context, query string) (SearchResult, error)
}

// SearchFunc adapts a function to the Searcher interface.
type SearchFunc func(ctx context.Context, query string) (SearchResult, error)

// Search calls f(ctx, query).
func (f SearchFunc) Search(ctx context.Context, query string) (SearchResult, error) {
	return f(ctx, query)
}

// PlayerQueue is the player's own queue.
type PlayerQueue interface {
	Current() *track.Track
	Tracks() []track.Track
	// Add inserts t at index, or appends when index < 0.
	Add(ctx context.Context, t track.Track, index int) error
}

// Player is the playback collaborator. Only status is read; lifecycle and
// connection are owned by the caller.
type Player interface {
	Playing() bool
	Paused() bool
	Queue() PlayerQueue
	Play(ctx context.Context, t track.Track) error
	Skip(ctx context.Context) error
}

// Outcome tags what EnsurePlayback did.
type Outcome string

const (
	OutcomePlayed Outcome = "played"
	OutcomeQueued Outcome = "queued"
)

// Seed is the basis for generating recommendations.
type Seed struct {
	Title  string
	Author string
	URI    string
}

// SeedFrom derives a seed from a track.
func SeedFrom(t track.Track) Seed {
	return Seed{Title: t.Title, Author: t.Artist, URI: t.URI}
}

// DefaultSeedLimit is the number of tracks SeedRelatedQueue adds when no limit is given.
const DefaultSeedLimit = 10
