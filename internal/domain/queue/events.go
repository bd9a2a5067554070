package queue

import (
	"github.com/disgoorg/snowflake/v2"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

// EventType names a queue state change.
type EventType string

const (
	EventTrackAdded         EventType = "trackAdded"
	EventTrackChanged       EventType = "trackChanged"
	EventShuffleToggled     EventType = "shuffleToggled"
	EventRepeatChanged      EventType = "repeatChanged"
	EventAutoplayChanged    EventType = "autoplayChanged"
	EventFiltersChanged     EventType = "filtersChanged"
	EventTemplateApplied    EventType = "templateApplied"
	EventTemplateSaved      EventType = "templateSaved"
	EventAutoplayTrackAdded EventType = "autoplayTrackAdded"
	EventQueueExhausted     EventType = "queueExhausted"
	EventSessionRemoved     EventType = "sessionRemoved"
)

// Event describes a change to one guild's queue. Only the fields relevant
// to Type are set.
type Event struct {
	Type         EventType    `json:"type"`
	Guild        snowflake.ID `json:"guild"`
	Track        *track.Track `json:"track,omitempty"`
	Position     int          `json:"position"`
	Count        int          `json:"count,omitempty"`
	Shuffle      bool         `json:"shuffle"`
	Repeat       RepeatMode   `json:"repeat,omitempty"`
	Autoplay     bool         `json:"autoplay"`
	AutoplayMode AutoplayMode `json:"autoplayMode,omitempty"`
	Template     string       `json:"template,omitempty"`
}

// EventHandler receives queue events. It runs inside the guild's serializer
// chain, so it must not wait on another operation for the same guild.
type EventHandler func(Event)

func trackEvent(typ EventType, guild snowflake.ID, t track.Track, pos int) Event {
	return Event{Type: typ, Guild: guild, Track: &t, Position: pos}
}
