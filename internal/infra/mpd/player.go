package mpd

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/fhs/gompd/v2/mpd"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// Source tags tracks read back from MPD.
const Source = "mpd"

// MPD playback states
const (
	StatePlay  = "play"
	StatePause = "pause"
	StateStop  = "stop"
)

// backend is the part of Client the player uses.
type backend interface {
	Status() (mpd.Attrs, error)
	CurrentSong() (mpd.Attrs, error)
	PlaylistInfo() ([]mpd.Attrs, error)
	AddID(uri string, pos int) (int, error)
	PlayID(id int) error
	Next() error
}

// Player exposes MPD as a recommend.Player. Status read failures are
// reported as stopped.
type Player struct {
	mpd backend
}

// NewPlayer creates a player over a connected client.
func NewPlayer(c *Client) *Player {
	return &Player{mpd: c}
}

func (p *Player) state() string {
	status, err := p.mpd.Status()
	if err != nil {
		log.Debug().Err(err).Msg("MPD status unavailable")
		return StateStop
	}
	return status["state"]
}

// Playing reports whether MPD is playing.
func (p *Player) Playing() bool {
	return p.state() == StatePlay
}

// Paused reports whether MPD is paused.
func (p *Player) Paused() bool {
	return p.state() == StatePause
}

// Queue returns the MPD queue.
func (p *Player) Queue() recommend.PlayerQueue {
	return &playerQueue{mpd: p.mpd}
}

// Play adds t right after the current song and starts it.
func (p *Player) Play(ctx context.Context, t track.Track) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pos := -1
	if status, err := p.mpd.Status(); err == nil {
		if cur, err := strconv.Atoi(status["song"]); err == nil {
			pos = cur + 1
		}
	}

	id, err := p.mpd.AddID(t.URI, pos)
	if err != nil {
		return fmt.Errorf("add %s: %w", t.URI, err)
	}
	if err := p.mpd.PlayID(id); err != nil {
		return fmt.Errorf("play id %d: %w", id, err)
	}
	return nil
}

// Skip advances MPD to its next song.
func (p *Player) Skip(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.mpd.Next()
}

type playerQueue struct {
	mpd backend
}

func (q *playerQueue) Current() *track.Track {
	song, err := q.mpd.CurrentSong()
	if err != nil || song["file"] == "" {
		return nil
	}
	t := attrsToTrack(song)
	return &t
}

func (q *playerQueue) Tracks() []track.Track {
	songs, err := q.mpd.PlaylistInfo()
	if err != nil {
		log.Debug().Err(err).Msg("MPD playlist unavailable")
		return nil
	}
	tracks := make([]track.Track, 0, len(songs))
	for _, s := range songs {
		tracks = append(tracks, attrsToTrack(s))
	}
	return tracks
}

func (q *playerQueue) Add(ctx context.Context, t track.Track, index int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := q.mpd.AddID(t.URI, index); err != nil {
		return fmt.Errorf("add %s: %w", t.URI, err)
	}
	return nil
}

// attrsToTrack converts an MPD song entry.
func attrsToTrack(a mpd.Attrs) track.Track {
	t := track.Track{
		ID:     a["Id"],
		Title:  a["Title"],
		Artist: a["Artist"],
		URI:    a["file"],
		Source: Source,
	}
	if t.Title == "" && t.URI != "" {
		t.Title = path.Base(t.URI)
	}
	if t.Artist == "" {
		t.Artist = a["AlbumArtist"]
	}

	if d, err := strconv.ParseFloat(a["duration"], 64); err == nil {
		t.Duration = time.Duration(d * float64(time.Second))
	} else if d, err := strconv.Atoi(a["Time"]); err == nil {
		t.Duration = time.Duration(d) * time.Second
	}
	if genre := a["Genre"]; genre != "" {
		t.Analysis = &track.Analysis{Energy: track.NeutralEnergy, Genres: []string{genre}}
	}
	return t
}
