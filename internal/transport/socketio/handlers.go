package socketio

import (
	"errors"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
)

// QueueHandlers contains Socket.IO handlers for guild queue commands.
type QueueHandlers struct {
	server *Server
}

// NewQueueHandlers creates a new QueueHandlers instance.
func NewQueueHandlers(server *Server) *QueueHandlers {
	return &QueueHandlers{server: server}
}

// AddResult is the payload of pushAddTrack.
type AddResult struct {
	Accepted bool   `json:"accepted"`
	Title    string `json:"title"`
}

// TemplateResult is the payload of pushSaveTemplate.
type TemplateResult struct {
	Name   string `json:"name"`
	Tracks int    `json:"tracks"`
}

// SeedResult is the payload of pushSeedRelated.
type SeedResult struct {
	Added int `json:"added"`
}

// RegisterHandlers registers all queue Socket.IO handlers on a client.
func (h *QueueHandlers) RegisterHandlers(client *socket.Socket) {
	clientID := string(client.Id())

	client.On("joinGuild", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("joinGuild")
		h.handleJoin(client, args)
	})

	client.On("getQueue", func(args ...any) {
		h.withGuild(client, "getQueue", func(guild snowflake.ID) {
			client.Emit("pushQueue", newQueueView(guild, h.server.queues.Snapshot(guild)))
		})
	})

	client.On("getAnalytics", func(args ...any) {
		h.withGuild(client, "getAnalytics", func(guild snowflake.ID) {
			client.Emit("pushAnalytics", h.server.analyticsView(guild))
		})
	})

	client.On("addTrack", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("addTrack")
		h.withGuild(client, "addTrack", func(guild snowflake.ID) {
			h.handleAddTrack(client, guild, firstMap(args))
		})
	})

	client.On("next", func(args ...any) {
		log.Debug().Str("id", clientID).Msg("next")
		h.withGuild(client, "next", func(guild snowflake.ID) {
			go h.handleNext(client, guild)
		})
	})

	client.On("setShuffle", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setShuffle")
		h.withGuild(client, "setShuffle", func(guild snowflake.ID) {
			h.handleSetShuffle(client, guild, firstMap(args))
		})
	})

	client.On("setRepeat", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setRepeat")
		h.withGuild(client, "setRepeat", func(guild snowflake.ID) {
			h.handleSetRepeat(client, guild, firstMap(args))
		})
	})

	client.On("setAutoplay", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setAutoplay")
		h.withGuild(client, "setAutoplay", func(guild snowflake.ID) {
			h.handleSetAutoplay(client, guild, firstMap(args))
		})
	})

	client.On("setFilters", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("setFilters")
		h.withGuild(client, "setFilters", func(guild snowflake.ID) {
			if err := h.server.queues.SetFilters(guild, parseFilters(firstMap(args))); err != nil {
				log.Error().Err(err).Msg("SetFilters failed")
				pushError(client, "setFilters", err)
			}
		})
	})

	client.On("applyTemplate", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("applyTemplate")
		h.withGuild(client, "applyTemplate", func(guild snowflake.ID) {
			h.handleApplyTemplate(client, guild, firstMap(args))
		})
	})

	client.On("saveTemplate", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("saveTemplate")
		h.withGuild(client, "saveTemplate", func(guild snowflake.ID) {
			h.handleSaveTemplate(client, guild, firstMap(args))
		})
	})

	client.On("seedRelated", func(args ...any) {
		log.Debug().Str("id", clientID).Interface("data", args).Msg("seedRelated")
		h.withGuild(client, "seedRelated", func(guild snowflake.ID) {
			limit := getIntFromMap(firstMap(args), "limit", recommend.DefaultSeedLimit)
			go h.handleSeedRelated(client, guild, limit)
		})
	})
}

// withGuild runs fn with the guild the client joined, or reports errNotJoined.
func (h *QueueHandlers) withGuild(client *socket.Socket, command string, fn func(guild snowflake.ID)) {
	guild, ok := h.server.registry.Guild(string(client.Id()))
	if !ok {
		pushError(client, command, errNotJoined)
		return
	}
	fn(guild)
}

func pushError(client *socket.Socket, command string, err error) {
	log.Debug().Str("id", string(client.Id())).Str("command", command).Err(err).Msg("Command rejected")
	client.Emit("pushError", ErrorView{Command: command, Message: err.Error()})
}

func (h *QueueHandlers) handleJoin(client *socket.Socket, args []any) {
	var raw any
	if m := firstMap(args); m != nil {
		raw = m["guild"]
	} else if len(args) > 0 {
		raw = args[0]
	}

	guild, err := parseGuild(raw)
	if err != nil {
		pushError(client, "joinGuild", err)
		return
	}

	prev, hadPrev, ok := h.server.registry.Join(string(client.Id()), guild)
	if !ok {
		pushError(client, "joinGuild", errors.New("unknown client"))
		return
	}
	if hadPrev && prev != guild {
		client.Leave(room(prev))
	}
	client.Join(room(guild))

	log.Info().Str("id", string(client.Id())).Str("guild", guild.String()).Msg("Client joined guild")

	client.Emit("pushQueue", newQueueView(guild, h.server.queues.Snapshot(guild)))
	client.Emit("pushAnalytics", h.server.analyticsView(guild))
}

func (h *QueueHandlers) handleAddTrack(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	t, err := parseTrack(m, string(client.Id()))
	if err != nil {
		pushError(client, "addTrack", err)
		return
	}

	pos := getIntFromMap(m, "position", queue.Append)
	accepted, err := h.server.queues.AddTrack(guild, t, pos)
	if err != nil {
		log.Error().Err(err).Str("guild", guild.String()).Msg("AddTrack failed")
		pushError(client, "addTrack", err)
		return
	}
	client.Emit("pushAddTrack", AddResult{Accepted: accepted, Title: t.Title})
}

func (h *QueueHandlers) handleNext(client *socket.Socket, guild snowflake.ID) {
	ctx, cancel := h.server.commandContext()
	defer cancel()

	next, err := h.server.Advance(ctx, guild)
	if err != nil {
		log.Error().Err(err).Str("guild", guild.String()).Msg("Next failed")
		pushError(client, "next", err)
		return
	}

	var view *TrackView
	if next != nil {
		tv := newTrackView(*next)
		view = &tv
	}
	client.Emit("pushNext", view)
}

func (h *QueueHandlers) handleSetShuffle(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	enabled, ok := m["value"].(bool)
	if !ok {
		pushError(client, "setShuffle", errors.New("value must be a boolean"))
		return
	}

	var err error
	if enabled {
		err = h.server.queues.EnableShuffle(guild)
	} else {
		err = h.server.queues.DisableShuffle(guild)
	}
	if err != nil {
		log.Error().Err(err).Msg("SetShuffle failed")
		pushError(client, "setShuffle", err)
	}
}

func (h *QueueHandlers) handleSetRepeat(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	mode, ok := queue.ParseRepeatMode(getStringFromMap(m, "value"))
	if !ok {
		pushError(client, "setRepeat", errors.New("repeat must be off, track or queue"))
		return
	}
	if _, err := h.server.queues.SetRepeat(guild, mode); err != nil {
		log.Error().Err(err).Msg("SetRepeat failed")
		pushError(client, "setRepeat", err)
	}
}

func (h *QueueHandlers) handleSetAutoplay(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	enabled, ok := m["value"].(bool)
	if !ok {
		pushError(client, "setAutoplay", errors.New("value must be a boolean"))
		return
	}

	var mode queue.AutoplayMode
	if raw := getStringFromMap(m, "mode"); raw != "" {
		if mode, ok = queue.ParseAutoplayMode(raw); !ok {
			pushError(client, "setAutoplay", errors.New("unknown autoplay mode"))
			return
		}
	}
	if _, err := h.server.queues.SetAutoplay(guild, enabled, mode); err != nil {
		log.Error().Err(err).Msg("SetAutoplay failed")
		pushError(client, "setAutoplay", err)
	}
}

func (h *QueueHandlers) handleApplyTemplate(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	name := getStringFromMap(m, "name")
	ok, err := h.server.queues.ApplyTemplate(guild, name)
	if err != nil {
		log.Error().Err(err).Str("template", name).Msg("ApplyTemplate failed")
		pushError(client, "applyTemplate", err)
		return
	}
	if !ok {
		pushError(client, "applyTemplate", queue.ErrTemplateNotFound)
	}
}

func (h *QueueHandlers) handleSaveTemplate(client *socket.Socket, guild snowflake.ID, m map[string]interface{}) {
	tpl, err := h.server.queues.SaveTemplate(guild, getStringFromMap(m, "name"))
	if err != nil {
		log.Warn().Err(err).Str("guild", guild.String()).Msg("SaveTemplate failed")
		pushError(client, "saveTemplate", err)
		return
	}
	client.Emit("pushSaveTemplate", TemplateResult{Name: tpl.Name, Tracks: len(tpl.Tracks)})
}

func (h *QueueHandlers) handleSeedRelated(client *socket.Socket, guild snowflake.ID, limit int) {
	ctx, cancel := h.server.commandContext()
	defer cancel()

	added, err := h.server.SeedRelated(ctx, guild, limit)
	if err != nil {
		log.Warn().Err(err).Str("guild", guild.String()).Int("added", added).Msg("SeedRelated failed")
		pushError(client, "seedRelated", err)
		return
	}
	client.Emit("pushSeedRelated", SeedResult{Added: added})
}
