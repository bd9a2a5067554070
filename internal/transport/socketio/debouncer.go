package socketio

import (
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// GuildDebouncer collapses bursts of queue events into one flush per guild.
// Guilds triggered within the same window are flushed together, each once,
// in id order.
type GuildDebouncer struct {
	window  time.Duration
	onFlush func(guild snowflake.ID)

	mu      sync.Mutex
	pending map[snowflake.ID]struct{}
	timer   *time.Timer
	stopped bool
}

// NewGuildDebouncer creates a debouncer that calls flush for every guild
// triggered since the last flush once window elapses without new triggers.
func NewGuildDebouncer(window time.Duration, flush func(guild snowflake.ID)) *GuildDebouncer {
	return &GuildDebouncer{
		window:  window,
		onFlush: flush,
		pending: make(map[snowflake.ID]struct{}),
	}
}

// Trigger marks guild as changed and restarts the window.
func (d *GuildDebouncer) Trigger(guild snowflake.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	d.pending[guild] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

// Pending reports how many guilds are waiting for a flush.
func (d *GuildDebouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

func (d *GuildDebouncer) flush() {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	guilds := make([]snowflake.ID, 0, len(d.pending))
	for g := range d.pending {
		guilds = append(guilds, g)
	}
	clear(d.pending)
	d.mu.Unlock()

	slices.Sort(guilds)
	for _, g := range guilds {
		if d.onFlush != nil {
			d.onFlush(g)
		}
	}
}

// Flush runs the pending flushes immediately.
func (d *GuildDebouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	d.flush()
}

// Stop prevents any further callbacks from firing.
func (d *GuildDebouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	clear(d.pending)
}
