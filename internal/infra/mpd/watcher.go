package mpd

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EndWatcher turns MPD player events into "track ended" callbacks: it fires
// when playback goes from playing to stopped.
type EndWatcher struct {
	status func() (string, error)
	onEnd  func()
	last   string
}

// NewEndWatcher creates a watcher that calls onEnd for each finished track.
func NewEndWatcher(c *Client, onEnd func()) *EndWatcher {
	return &EndWatcher{
		status: func() (string, error) {
			s, err := c.Status()
			if err != nil {
				return "", err
			}
			return s["state"], nil
		},
		onEnd: onEnd,
	}
}

// Run consumes subsystem events until ctx ends or events closes.
func (w *EndWatcher) Run(ctx context.Context, events <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case sub, ok := <-events:
			if !ok {
				return
			}
			if sub == "player" {
				w.observe()
			}
		}
	}
}

// observe reads the current state and fires onEnd on a play to stop edge.
func (w *EndWatcher) observe() {
	state, err := w.status()
	if err != nil {
		log.Debug().Err(err).Msg("MPD status read failed in watcher")
		return
	}

	prev := w.last
	w.last = state
	if ended(prev, state) {
		log.Debug().Msg("MPD track ended")
		w.onEnd()
	}
}

func ended(prev, cur string) bool {
	return prev == StatePlay && cur == StateStop
}
