package queue

import (
	"slices"
	"sync"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

type shuffleState struct {
	enabled bool
	order   []int
	visited map[int]struct{}
}

type repeatState struct {
	mode  RepeatMode
	count int // consecutive repeats of the current track
}

type autoplayState struct {
	enabled bool
	mode    AutoplayMode
	seeds   []track.Track // most recent last
}

// State is one guild's queue. Mutations happen inside the guild's serializer
// chain; the lock only guards readers against a half-applied change.
type State struct {
	mu sync.RWMutex

	tracks       []track.Track
	cursor       int
	history      []track.Track // most recent last
	historyLimit int

	shuffle  shuffleState
	repeat   repeatState
	autoplay autoplayState
	filters  Filters
	memory   *antiRepeat
}

func newState(historyLimit int) *State {
	return &State{
		cursor:       -1,
		historyLimit: historyLimit,
		shuffle:      shuffleState{visited: make(map[int]struct{})},
		repeat:       repeatState{mode: RepeatOff},
		autoplay:     autoplayState{mode: AutoplaySimilar},
		filters:      DefaultFilters(),
		memory:       newAntiRepeat(),
	}
}

// current returns the track under the cursor. Caller holds the lock.
func (s *State) current() (track.Track, bool) {
	if s.cursor < 0 || s.cursor >= len(s.tracks) {
		return track.Track{}, false
	}
	return s.tracks[s.cursor], true
}

// isDuplicate reports whether t is already queued. Caller holds the lock.
func (s *State) isDuplicate(t track.Track) bool {
	for _, existing := range s.tracks {
		if existing.SameSong(t) {
			return true
		}
	}
	return false
}

// insert splices t at pos when 0 <= pos <= len, else appends, keeping the
// cursor on the same track. It returns the index used. Caller holds the lock.
func (s *State) insert(t track.Track, pos int) int {
	if pos < 0 || pos > len(s.tracks) {
		s.tracks = append(s.tracks, t)
		return len(s.tracks) - 1
	}
	s.tracks = slices.Insert(s.tracks, pos, t)
	if s.cursor >= 0 && pos <= s.cursor {
		s.cursor++
	}
	return pos
}

// reshuffle starts a new shuffle pass from the current cursor.
// Caller holds the lock.
func (s *State) reshuffle(r rng) {
	s.shuffle.visited = make(map[int]struct{})
	if s.cursor >= 0 {
		s.shuffle.visited[s.cursor] = struct{}{}
	}
	s.shuffle.order = diversityOrder(s.tracks, s.cursor, s.shuffle.visited, r)
}

// reorder refreshes the shuffle order after a track landed at idx. Tracks
// already visited in this pass stay visited; an insert before the end shifts
// their indices along with the tracks. Caller holds the lock.
func (s *State) reorder(idx int, r rng) {
	if idx < len(s.tracks)-1 {
		shifted := make(map[int]struct{}, len(s.shuffle.visited))
		for i := range s.shuffle.visited {
			if i >= idx {
				i++
			}
			shifted[i] = struct{}{}
		}
		s.shuffle.visited = shifted
	}
	if s.cursor >= 0 {
		s.shuffle.visited[s.cursor] = struct{}{}
	}
	s.shuffle.order = diversityOrder(s.tracks, s.cursor, s.shuffle.visited, r)
}

// nextIndex returns the candidate next index without moving the cursor.
// A completed shuffle pass drops its order but keeps the visited set, so a
// later append plays before anything repeats. Caller holds the lock.
func (s *State) nextIndex() (int, bool) {
	if !s.shuffle.enabled {
		next := s.cursor + 1
		return next, next >= 0 && next < len(s.tracks)
	}

	for _, i := range s.shuffle.order {
		if i == s.cursor || i >= len(s.tracks) {
			continue
		}
		if _, seen := s.shuffle.visited[i]; seen {
			continue
		}
		return i, true
	}

	s.shuffle.order = nil
	return -1, false
}

// advance moves the cursor to idx and records the play. Caller holds the lock.
func (s *State) advance(idx int) track.Track {
	s.cursor = idx
	s.repeat.count = 0
	if s.shuffle.enabled {
		s.shuffle.visited[idx] = struct{}{}
	}

	t := s.tracks[idx]
	s.history = append(s.history, t)
	if over := len(s.history) - s.historyLimit; over > 0 {
		s.history = append([]track.Track(nil), s.history[over:]...)
	}
	s.memory.record(memoryKey(t))

	s.autoplay.seeds = append(s.autoplay.seeds, t)
	if over := len(s.autoplay.seeds) - mixedSeedWindow; over > 0 {
		s.autoplay.seeds = append([]track.Track(nil), s.autoplay.seeds[over:]...)
	}
	return t
}

// snapshot copies the persisted fields. Caller holds at least the read lock.
func (s *State) snapshot() Snapshot {
	return Snapshot{
		Tracks:       append([]track.Track(nil), s.tracks...),
		Cursor:       s.cursor,
		History:      append([]track.Track(nil), s.history...),
		Shuffle:      s.shuffle.enabled,
		Repeat:       s.repeat.mode,
		Autoplay:     s.autoplay.enabled,
		AutoplayMode: s.autoplay.mode,
		Filters:      s.filters.clone(),
	}
}

// analytics summarizes the queue. Caller holds at least the read lock.
func (s *State) analytics() Analytics {
	a := Analytics{
		TrackCount:    len(s.tracks),
		Genres:        make(map[string]int),
		Cursor:        s.cursor,
		HistoryLength: len(s.history),
		Shuffle:       s.shuffle.enabled,
		Repeat:        s.repeat.mode,
		Autoplay:      s.autoplay.enabled,
		AutoplayMode:  s.autoplay.mode,
	}

	var energySum float64
	var analyzed int
	for _, t := range s.tracks {
		a.TotalDuration += t.Duration
		if t.Analysis != nil {
			energySum += t.Analysis.Energy
			analyzed++
		}
		for _, g := range t.Genres() {
			a.Genres[g]++
		}
	}
	if analyzed > 0 {
		a.MeanEnergy = energySum / float64(analyzed)
	}
	return a
}
