package queue

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
	"github.com/edumarques81/stellar-guildqueue/internal/serial"
)

// Manager is the registry of guild queues. Every mutating call for a guild
// runs on that guild's serializer chain, so calls for one guild complete in
// submission order while different guilds proceed in parallel.
type Manager struct {
	mu     sync.RWMutex
	states map[snowflake.ID]*State
	serial *serial.Serializer[snowflake.ID]

	recommender  *recommend.Engine
	searcher     recommend.Searcher
	templates    TemplateSource
	onEvent      EventHandler
	rand         rng
	historyLimit int
}

// Option is a functional option for configuring the manager.
type Option func(*Manager)

// WithRecommender sets the engine used to pick autoplay tracks.
func WithRecommender(e *recommend.Engine) Option {
	return func(m *Manager) {
		m.recommender = e
	}
}

// WithSearcher sets the catalog used by autoplay. Without one autoplay never
// produces tracks.
func WithSearcher(s recommend.Searcher) Option {
	return func(m *Manager) {
		m.searcher = s
	}
}

// WithTemplates sets the source ApplyTemplate reads from.
func WithTemplates(src TemplateSource) Option {
	return func(m *Manager) {
		m.templates = src
	}
}

// WithEventHandler registers the queue event callback.
func WithEventHandler(h EventHandler) Option {
	return func(m *Manager) {
		m.onEvent = h
	}
}

// WithRand sets the random source used by shuffle and autoplay.
func WithRand(r *rand.Rand) Option {
	return func(m *Manager) {
		m.rand = newLockedRand(r)
	}
}

// WithHistoryLimit overrides how many played tracks each queue remembers.
func WithHistoryLimit(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.historyLimit = n
		}
	}
}

// NewManager creates an empty registry.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		states:       make(map[snowflake.ID]*State),
		serial:       serial.New[snowflake.ID](),
		recommender:  recommend.NewEngine(),
		templates:    NewTemplates(),
		historyLimit: DefaultHistoryLimit,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.rand == nil {
		m.rand = newLockedRand(nil)
	}
	return m
}

// Guilds returns the ids of all guilds with a live queue.
func (m *Manager) Guilds() []snowflake.ID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]snowflake.ID, 0, len(m.states))
	for id := range m.states {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// session returns the guild's state, creating it on first access.
func (m *Manager) session(guild snowflake.ID) *State {
	m.mu.RLock()
	s, ok := m.states[guild]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.states[guild]; !ok {
		s = newState(m.historyLimit)
		m.states[guild] = s
		log.Debug().Str("guild", guild.String()).Msg("Created queue session")
	}
	return s
}

// lookup returns the guild's state without creating it.
func (m *Manager) lookup(guild snowflake.ID) *State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.states[guild]
}

func (m *Manager) emit(events ...Event) {
	if m.onEvent == nil {
		return
	}
	for _, e := range events {
		m.onEvent(e)
	}
}

// AddTrack queues t for the guild at pos (Append, or an out-of-range
// position, appends). It returns false when a filter or duplicate check
// rejects the track.
func (m *Manager) AddTrack(guild snowflake.ID, t track.Track, pos int) (bool, error) {
	return serial.Do(m.serial, guild, func() (bool, error) {
		return m.addTrack(guild, t, pos, EventTrackAdded), nil
	})
}

// AddTracks queues a batch and returns how many were accepted. The batch is
// grouped by artist in first-seen order, and each artist's tracks ascend in
// energy.
func (m *Manager) AddTracks(guild snowflake.ID, ts []track.Track) (int, error) {
	return serial.Do(m.serial, guild, func() (int, error) {
		accepted := 0
		for _, t := range orderBatch(ts) {
			if m.addTrack(guild, t, Append, EventTrackAdded) {
				accepted++
			}
		}
		return accepted, nil
	})
}

// addTrack runs on the guild's chain.
func (m *Manager) addTrack(guild snowflake.ID, t track.Track, pos int, typ EventType) bool {
	s := m.session(guild)
	t = track.New(t)

	s.mu.Lock()
	if !s.filters.Allows(t) {
		s.mu.Unlock()
		log.Debug().Str("guild", guild.String()).Str("title", t.Title).Msg("Track rejected by filters")
		return false
	}
	if s.filters.DuplicateProtection && s.isDuplicate(t) {
		s.mu.Unlock()
		log.Debug().Str("guild", guild.String()).Str("title", t.Title).Msg("Duplicate track rejected")
		return false
	}
	idx := s.insert(t, pos)
	if s.shuffle.enabled {
		s.reorder(idx, m.rand)
	}
	s.mu.Unlock()

	m.emit(trackEvent(typ, guild, t, idx))
	return true
}

// orderBatch groups tracks by artist in order of first appearance and sorts
// each group by ascending energy.
func orderBatch(ts []track.Track) []track.Track {
	var artists []string
	groups := make(map[string][]track.Track)
	for _, t := range ts {
		if _, ok := groups[t.Artist]; !ok {
			artists = append(artists, t.Artist)
		}
		groups[t.Artist] = append(groups[t.Artist], t)
	}

	out := make([]track.Track, 0, len(ts))
	for _, a := range artists {
		g := groups[a]
		slices.SortStableFunc(g, func(x, y track.Track) int {
			switch ex, ey := x.Energy(), y.Energy(); {
			case ex < ey:
				return -1
			case ex > ey:
				return 1
			}
			return 0
		})
		out = append(out, g...)
	}
	return out
}

// NextTrack advances the guild's queue and returns the track to play, or nil
// when nothing is left. Repeat-track, the linear or shuffle successor, one
// queue wrap and one autoplay pick are tried in that order.
func (m *Manager) NextTrack(ctx context.Context, guild snowflake.ID) (*track.Track, error) {
	return m.NextTrackThen(ctx, guild, nil)
}

// NextTrackThen is NextTrack with then run in the same chain task, so side
// effects of consecutive advances (handing tracks to a player) happen in
// queue order. then is skipped when nothing is left; its error is returned
// along with the track.
func (m *Manager) NextTrackThen(ctx context.Context, guild snowflake.ID, then func(context.Context, track.Track) error) (*track.Track, error) {
	return serial.Do(m.serial, guild, func() (*track.Track, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		next, err := m.nextTrack(ctx, guild)
		if err != nil || next == nil || then == nil {
			return next, err
		}
		return next, then(ctx, *next)
	})
}

func (m *Manager) nextTrack(ctx context.Context, guild snowflake.ID) (*track.Track, error) {
	s := m.session(guild)
	wrapped, autoplayed := false, false

	for {
		s.mu.Lock()

		if s.repeat.mode == RepeatTrack {
			if cur, ok := s.current(); ok {
				s.repeat.count++
				pos := s.cursor
				s.mu.Unlock()
				m.emit(trackEvent(EventTrackChanged, guild, cur, pos))
				return &cur, nil
			}
		}

		if idx, ok := s.nextIndex(); ok {
			t := s.advance(idx)
			s.mu.Unlock()
			m.emit(trackEvent(EventTrackChanged, guild, t, idx))
			return &t, nil
		}

		if s.repeat.mode == RepeatQueue && len(s.tracks) > 0 && !wrapped {
			wrapped = true
			s.cursor = -1
			s.repeat.count = 0
			if s.shuffle.enabled {
				s.reshuffle(m.rand)
			}
			s.mu.Unlock()
			log.Debug().Str("guild", guild.String()).Msg("Queue wrapped")
			continue
		}

		canAutoplay := s.autoplay.enabled && len(s.tracks) > 0 && !autoplayed &&
			m.recommender != nil && m.searcher != nil
		if !canAutoplay {
			s.mu.Unlock()
			m.emit(Event{Type: EventQueueExhausted, Guild: guild, Position: -1})
			return nil, nil
		}

		autoplayed = true
		seed := s.autoplaySeed(m.rand)
		s.mu.Unlock()

		added, err := m.autoplay(ctx, guild, s, seed)
		if err != nil {
			return nil, err
		}
		if !added {
			m.emit(Event{Type: EventQueueExhausted, Guild: guild, Position: -1})
			return nil, nil
		}
	}
}

// autoplay asks the recommender for one track and queues it. Candidates
// still in the anti-repeat memory are skipped.
func (m *Manager) autoplay(ctx context.Context, guild snowflake.ID, s *State, seed recommend.Seed) (bool, error) {
	search := recommend.SearchFunc(func(ctx context.Context, q string) (recommend.SearchResult, error) {
		res, err := m.searcher.Search(ctx, q)
		if err != nil {
			return res, err
		}
		s.mu.RLock()
		res.Tracks = slices.DeleteFunc(slices.Clone(res.Tracks), func(t track.Track) bool {
			return s.memory.contains(memoryKey(t))
		})
		s.mu.RUnlock()
		return res, nil
	})

	cand, err := m.recommender.PickCandidate(ctx, search, seed)
	if err != nil {
		return false, fmt.Errorf("autoplay: %w", err)
	}
	if cand == nil {
		log.Debug().Str("guild", guild.String()).Str("seed", seed.Title).Msg("Autoplay found no candidate")
		return false, nil
	}

	cand.RequesterID = AutoplayRequester
	if !m.addTrack(guild, *cand, Append, EventAutoplayTrackAdded) {
		log.Debug().Str("guild", guild.String()).Str("title", cand.Title).Msg("Autoplay candidate rejected")
		return false, nil
	}
	log.Info().Str("guild", guild.String()).Str("title", cand.Title).Msg("Autoplay queued track")
	return true, nil
}

// EnableShuffle turns shuffle on and computes a fresh diversity order over
// the tracks not yet under the cursor.
func (m *Manager) EnableShuffle(guild snowflake.ID) error {
	return m.serial.Run(guild, func() error {
		s := m.session(guild)
		s.mu.Lock()
		s.shuffle.enabled = true
		s.reshuffle(m.rand)
		s.mu.Unlock()
		m.emit(Event{Type: EventShuffleToggled, Guild: guild, Shuffle: true})
		return nil
	})
}

// DisableShuffle turns shuffle off; playback continues linearly from the
// current cursor.
func (m *Manager) DisableShuffle(guild snowflake.ID) error {
	return m.serial.Run(guild, func() error {
		s := m.session(guild)
		s.mu.Lock()
		s.shuffle = shuffleState{visited: make(map[int]struct{})}
		s.mu.Unlock()
		m.emit(Event{Type: EventShuffleToggled, Guild: guild, Shuffle: false})
		return nil
	})
}

// SetRepeat changes the repeat mode and resets the repeat counter.
func (m *Manager) SetRepeat(guild snowflake.ID, mode RepeatMode) (bool, error) {
	if _, ok := ParseRepeatMode(string(mode)); !ok {
		return false, nil
	}
	return serial.Do(m.serial, guild, func() (bool, error) {
		s := m.session(guild)
		s.mu.Lock()
		s.repeat = repeatState{mode: mode}
		s.mu.Unlock()
		m.emit(Event{Type: EventRepeatChanged, Guild: guild, Repeat: mode})
		return true, nil
	})
}

// SetAutoplay toggles autoplay. An empty mode keeps the current one.
func (m *Manager) SetAutoplay(guild snowflake.ID, enabled bool, mode AutoplayMode) (bool, error) {
	if mode != "" {
		if _, ok := ParseAutoplayMode(string(mode)); !ok {
			return false, nil
		}
	}
	return serial.Do(m.serial, guild, func() (bool, error) {
		s := m.session(guild)
		s.mu.Lock()
		s.autoplay.enabled = enabled
		if mode != "" {
			s.autoplay.mode = mode
		}
		ev := Event{Type: EventAutoplayChanged, Guild: guild, Autoplay: enabled, AutoplayMode: s.autoplay.mode}
		s.mu.Unlock()
		m.emit(ev)
		return true, nil
	})
}

// SetFilters replaces the guild's filters. Already queued tracks are kept.
func (m *Manager) SetFilters(guild snowflake.ID, f Filters) error {
	return m.serial.Run(guild, func() error {
		s := m.session(guild)
		s.mu.Lock()
		s.filters = f.clone()
		s.mu.Unlock()
		m.emit(Event{Type: EventFiltersChanged, Guild: guild})
		return nil
	})
}

// ApplyTemplate replaces the queue and history with the named template and
// adopts its modes. It returns false for an unknown template.
func (m *Manager) ApplyTemplate(guild snowflake.ID, name string) (bool, error) {
	return serial.Do(m.serial, guild, func() (bool, error) {
		if m.templates == nil {
			return false, nil
		}
		tpl, err := m.templates.Template(name)
		if errors.Is(err, ErrTemplateNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("load template %q: %w", name, err)
		}

		tracks := make([]track.Track, 0, len(tpl.Tracks))
		for _, t := range tpl.Tracks {
			tracks = append(tracks, track.New(t))
		}
		repeat := tpl.Repeat
		if _, ok := ParseRepeatMode(string(repeat)); !ok {
			repeat = RepeatOff
		}

		s := m.session(guild)
		s.mu.Lock()
		s.tracks = tracks
		s.history = nil
		s.cursor = -1
		s.repeat = repeatState{mode: repeat}
		s.autoplay.enabled = tpl.Autoplay
		if mode, ok := ParseAutoplayMode(string(tpl.AutoplayMode)); ok {
			s.autoplay.mode = mode
		}
		s.shuffle = shuffleState{enabled: tpl.Shuffle, visited: make(map[int]struct{})}
		if tpl.Shuffle {
			s.reshuffle(m.rand)
		}
		s.mu.Unlock()

		log.Info().Str("guild", guild.String()).Str("template", tpl.Name).Int("tracks", len(tracks)).Msg("Applied queue template")
		m.emit(Event{
			Type:     EventTemplateApplied,
			Guild:    guild,
			Template: tpl.Name,
			Count:    len(tracks),
			Shuffle:  tpl.Shuffle,
			Repeat:   repeat,
			Autoplay: tpl.Autoplay,
		})
		return true, nil
	})
}

// SaveTemplate stores the guild's queue and modes as the named template.
func (m *Manager) SaveTemplate(guild snowflake.ID, name string) (Template, error) {
	return serial.Do(m.serial, guild, func() (Template, error) {
		store, ok := m.templates.(TemplateStore)
		if !ok {
			return Template{}, ErrTemplatesReadOnly
		}

		snap := m.Snapshot(guild)
		tpl := Template{
			Name:         strings.TrimSpace(name),
			Tracks:       snap.Tracks,
			Shuffle:      snap.Shuffle,
			Repeat:       snap.Repeat,
			Autoplay:     snap.Autoplay,
			AutoplayMode: snap.AutoplayMode,
		}
		if len(tpl.Tracks) == 0 {
			return Template{}, ErrEmptyQueue
		}
		if err := store.SaveTemplate(tpl); err != nil {
			return Template{}, fmt.Errorf("save template %q: %w", tpl.Name, err)
		}

		log.Info().Str("guild", guild.String()).Str("template", tpl.Name).Int("tracks", len(tpl.Tracks)).Msg("Saved queue template")
		m.emit(Event{Type: EventTemplateSaved, Guild: guild, Template: tpl.Name, Count: len(tpl.Tracks), Position: -1})
		return tpl, nil
	})
}

// Restore replaces the guild's queue with a snapshot. An out-of-range
// cursor is reset to -1.
func (m *Manager) Restore(guild snowflake.ID, snap Snapshot) error {
	return m.serial.Run(guild, func() error {
		s := newState(m.historyLimit)
		s.tracks = append([]track.Track(nil), snap.Tracks...)
		s.cursor = snap.Cursor
		if s.cursor < -1 || s.cursor >= len(s.tracks) {
			s.cursor = -1
		}
		s.history = append([]track.Track(nil), snap.History...)
		if over := len(s.history) - s.historyLimit; over > 0 {
			s.history = s.history[over:]
		}
		for _, t := range s.history {
			s.memory.record(memoryKey(t))
		}
		if mode, ok := ParseRepeatMode(string(snap.Repeat)); ok {
			s.repeat.mode = mode
		}
		s.autoplay.enabled = snap.Autoplay
		if mode, ok := ParseAutoplayMode(string(snap.AutoplayMode)); ok {
			s.autoplay.mode = mode
		}
		s.filters = snap.Filters.clone()
		if snap.Shuffle {
			s.shuffle.enabled = true
			s.reshuffle(m.rand)
		}

		m.mu.Lock()
		m.states[guild] = s
		m.mu.Unlock()
		return nil
	})
}

// Remove drops the guild's queue. It returns false if there was none.
func (m *Manager) Remove(guild snowflake.ID) (bool, error) {
	return serial.Do(m.serial, guild, func() (bool, error) {
		m.mu.Lock()
		_, ok := m.states[guild]
		delete(m.states, guild)
		m.mu.Unlock()
		if ok {
			m.emit(Event{Type: EventSessionRemoved, Guild: guild, Position: -1})
		}
		return ok, nil
	})
}

// Analytics summarizes the guild queue. It does not wait for pending
// mutations.
func (m *Manager) Analytics(guild snowflake.ID) Analytics {
	s := m.lookup(guild)
	if s == nil {
		s = newState(m.historyLimit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.analytics()
}

// Snapshot copies the guild queue for persistence.
func (m *Manager) Snapshot(guild snowflake.ID) Snapshot {
	s := m.lookup(guild)
	if s == nil {
		s = newState(m.historyLimit)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot()
}

// Current returns the track under the guild's cursor.
func (m *Manager) Current(guild snowflake.ID) (track.Track, bool) {
	s := m.lookup(guild)
	if s == nil {
		return track.Track{}, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current()
}

// RecentlyPlayed reports whether a track with this URI (or id) is still in
// the guild's anti-repeat memory.
func (m *Manager) RecentlyPlayed(guild snowflake.ID, key string) bool {
	s := m.lookup(guild)
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.memory.contains(key)
}
