package queue

import (
	"cmp"
	"math"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// shuffleTopN is how many of the best-scoring candidates the next pick is drawn from.
const shuffleTopN = 3

// rng is the subset of *rand.Rand the queue needs.
type rng interface {
	IntN(n int) int
	Float64() float64
}

// lockedRand makes a *rand.Rand safe to share between guilds.
type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newLockedRand(r *rand.Rand) *lockedRand {
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &lockedRand{r: r}
}

func (l *lockedRand) IntN(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.IntN(n)
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// diversityOrder returns a visiting order over every index of tracks that is
// neither start nor in skip. Each step scores the remaining candidates by how
// different they sound from the previous pick and draws uniformly from the
// top three.
func diversityOrder(tracks []track.Track, start int, skip map[int]struct{}, r rng) []int {
	remaining := make([]int, 0, len(tracks))
	for i := range tracks {
		if i == start {
			continue
		}
		if _, ok := skip[i]; ok {
			continue
		}
		remaining = append(remaining, i)
	}

	type scored struct {
		index int
		score float64
	}

	order := make([]int, 0, len(remaining))
	prev := start
	for len(remaining) > 0 {
		candidates := make([]scored, len(remaining))
		for i, idx := range remaining {
			candidates[i] = scored{index: idx, score: difference(tracks, prev, idx, r)}
		}
		slices.SortStableFunc(candidates, func(a, b scored) int {
			return cmp.Compare(b.score, a.score)
		})

		pick := candidates[r.IntN(min(shuffleTopN, len(candidates)))].index
		order = append(order, pick)
		remaining = slices.DeleteFunc(remaining, func(i int) bool { return i == pick })
		prev = pick
	}
	return order
}

// difference scores two tracks; higher means less alike. Pairs
// lacking analysis get a random score.
func difference(tracks []track.Track, a, b int, r rng) float64 {
	if a < 0 || a >= len(tracks) || b < 0 || b >= len(tracks) {
		return r.Float64()
	}
	x, y := tracks[a].Analysis, tracks[b].Analysis
	if x == nil || y == nil {
		return r.Float64()
	}
	tempo := math.Abs(x.Tempo-y.Tempo) / 200
	energy := math.Abs(x.Energy - y.Energy)
	valence := math.Abs(x.Valence - y.Valence)
	return (tempo + energy + valence) / 3
}
