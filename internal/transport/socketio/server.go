// Package socketio provides the Socket.io server for guild queue clients.
package socketio

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"
	"github.com/zishang520/socket.io/servers/socket/v3"
	"github.com/zishang520/socket.io/v3/pkg/types"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/track"
)

const (
	// DefaultAnalyticsWindow is how long analytics pushes are held back to batch bursts.
	DefaultAnalyticsWindow = 250 * time.Millisecond

	// DefaultMaxExternal is the default number of concurrent remote clients.
	DefaultMaxExternal = 32

	commandTimeout = 30 * time.Second
)

var (
	// ErrNoPlayback is returned for playback commands on a guild that does not drive the player.
	ErrNoPlayback = errors.New("guild has no local playback")
)

// SnapshotStore persists guild queues between restarts.
type SnapshotStore interface {
	SaveSnapshot(guild snowflake.ID, snap queue.Snapshot) error
	DeleteSnapshot(guild snowflake.ID) error
}

// Config holds the optional collaborators of a Server.
type Config struct {
	Engine    *recommend.Engine
	Player    recommend.Player   // nil disables playback commands
	Searcher  recommend.Searcher // nil disables seedRelated
	Snapshots SnapshotStore      // nil disables persistence

	// PlaybackGuild is the guild whose queue drives Player.
	PlaybackGuild snowflake.ID

	// CORSOrigin is the allowed browser origin; empty allows any.
	CORSOrigin string

	MaxExternal     int
	AnalyticsWindow time.Duration
}

// Server handles Socket.io connections and pushes guild queue updates to
// per-guild rooms.
type Server struct {
	io        *socket.Server
	queues    *queue.Manager
	engine    *recommend.Engine
	player    recommend.Player
	searcher  recommend.Searcher
	snapshots SnapshotStore
	playback  snowflake.ID
	origin    string

	registry  *ClientRegistry
	analytics *GuildDebouncer
	handlers  *QueueHandlers

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[string]*socket.Socket
}

// NewServer creates a new Socket.io server over queues.
func NewServer(queues *queue.Manager, cfg Config) (*Server, error) {
	if queues == nil {
		return nil, errors.New("queue manager is required")
	}
	if cfg.Engine == nil {
		cfg.Engine = recommend.NewEngine()
	}
	if cfg.AnalyticsWindow <= 0 {
		cfg.AnalyticsWindow = DefaultAnalyticsWindow
	}
	if cfg.MaxExternal == 0 {
		cfg.MaxExternal = DefaultMaxExternal
	}
	if cfg.CORSOrigin == "" {
		cfg.CORSOrigin = "*"
	}

	// Configure Socket.io server options
	opts := socket.DefaultServerOptions()
	opts.SetPingTimeout(20 * time.Second)
	opts.SetPingInterval(25 * time.Second)
	opts.SetCors(&types.Cors{
		Origin:      cfg.CORSOrigin,
		Credentials: true,
	})

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		io:        socket.NewServer(nil, opts),
		queues:    queues,
		engine:    cfg.Engine,
		player:    cfg.Player,
		searcher:  cfg.Searcher,
		snapshots: cfg.Snapshots,
		playback:  cfg.PlaybackGuild,
		origin:    cfg.CORSOrigin,
		registry:  NewClientRegistry(cfg.MaxExternal),
		ctx:       ctx,
		cancel:    cancel,
		clients:   make(map[string]*socket.Socket),
	}
	s.analytics = NewGuildDebouncer(cfg.AnalyticsWindow, s.flushGuild)
	s.handlers = NewQueueHandlers(s)

	s.setupHandlers()

	return s, nil
}

// room names the Socket.io room of a guild.
func room(guild snowflake.ID) socket.Room {
	return socket.Room("guild:" + guild.String())
}

// setupHandlers registers connection lifecycle handlers.
func (s *Server) setupHandlers() {
	s.io.On("connection", func(clients ...any) {
		client := clients[0].(*socket.Socket)
		clientID := string(client.Id())
		addr := client.Handshake().Address

		log.Info().Str("id", clientID).Str("addr", addr).Msg("Client connected")

		s.mu.Lock()
		s.clients[clientID] = client
		s.mu.Unlock()

		if evicted := s.registry.Add(clientID, addr); evicted != "" {
			s.evict(evicted)
		}

		client.On("disconnect", func(args ...any) {
			reason := ""
			if len(args) > 0 {
				if r, ok := args[0].(string); ok {
					reason = r
				}
			}
			log.Info().Str("id", clientID).Str("reason", reason).Msg("Client disconnected")

			s.registry.Remove(clientID)
			s.mu.Lock()
			delete(s.clients, clientID)
			s.mu.Unlock()
		})

		s.handlers.RegisterHandlers(client)
	})
}

// evict disconnects a client pushed out by the connection limit.
func (s *Server) evict(clientID string) {
	s.mu.Lock()
	client, ok := s.clients[clientID]
	delete(s.clients, clientID)
	s.mu.Unlock()

	if !ok {
		return
	}
	log.Warn().Str("id", clientID).Msg("Evicting oldest remote client")
	client.Emit("pushError", ErrorView{Command: "connect", Message: "too many remote clients"})
	client.Disconnect(true)
}

// HandleEvent forwards a queue event to the guild's room and schedules an
// analytics push. It is meant to be registered with queue.WithEventHandler.
func (s *Server) HandleEvent(e queue.Event) {
	s.io.To(room(e.Guild)).Emit("pushQueueEvent", newEventView(e))
	s.analytics.Trigger(e.Guild)

	if log.Debug().Enabled() {
		data, _ := json.Marshal(e)
		log.Debug().RawJSON("event", data).Msg("Queue event")
	}
}

// flushGuild pushes analytics to the guild's room and persists its queue.
func (s *Server) flushGuild(guild snowflake.ID) {
	s.io.To(room(guild)).Emit("pushAnalytics", s.analyticsView(guild))
	s.persist(guild)
}

func (s *Server) persist(guild snowflake.ID) {
	if s.snapshots == nil {
		return
	}

	if !slices.Contains(s.queues.Guilds(), guild) {
		if err := s.snapshots.DeleteSnapshot(guild); err != nil {
			log.Warn().Err(err).Str("guild", guild.String()).Msg("Failed to delete queue snapshot")
		}
		return
	}
	if err := s.snapshots.SaveSnapshot(guild, s.queues.Snapshot(guild)); err != nil {
		log.Warn().Err(err).Str("guild", guild.String()).Msg("Failed to save queue snapshot")
	}
}

func (s *Server) analyticsView(guild snowflake.ID) AnalyticsView {
	return newAnalyticsView(guild, s.queues.Analytics(guild), s.registry.Watchers(guild))
}

// Analytics returns the analytics payload for a guild.
func (s *Server) Analytics(guild snowflake.ID) AnalyticsView {
	return s.analyticsView(guild)
}

// Advance moves the guild's queue to its next track. For the playback guild
// the track is handed to the local player before the guild's next command
// runs.
func (s *Server) Advance(ctx context.Context, guild snowflake.ID) (*track.Track, error) {
	if s.player == nil || guild != s.playback {
		return s.queues.NextTrack(ctx, guild)
	}

	return s.queues.NextTrackThen(ctx, guild, func(ctx context.Context, next track.Track) error {
		outcome, err := s.engine.EnsurePlayback(ctx, s.player, next)
		if err != nil {
			return err
		}
		log.Info().
			Str("guild", guild.String()).
			Str("title", next.Title).
			Str("outcome", string(outcome)).
			Msg("Advanced queue")
		return nil
	})
}

// SeedRelated appends up to limit tracks related to the guild's current
// track to the player's queue.
func (s *Server) SeedRelated(ctx context.Context, guild snowflake.ID, limit int) (int, error) {
	if s.player == nil || s.searcher == nil || guild != s.playback {
		return 0, ErrNoPlayback
	}

	base, ok := s.queues.Current(guild)
	if !ok {
		cur := s.player.Queue().Current()
		if cur == nil {
			return 0, errors.New("nothing is playing")
		}
		base = *cur
	}
	return s.engine.SeedRelatedQueue(ctx, s.player, base, s.searcher, limit)
}

// commandContext bounds one client command.
func (s *Server) commandContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(s.ctx, commandTimeout)
}

// CORSOrigin returns the browser origin the socket endpoint accepts.
func (s *Server) CORSOrigin() string {
	return s.origin
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// ServeHTTP implements http.Handler for the Socket.io server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.io.ServeHandler(nil).ServeHTTP(w, r)
}

// Close flushes pending pushes and closes the Socket.io server.
func (s *Server) Close() error {
	s.analytics.Flush()
	s.analytics.Stop()
	s.cancel()
	s.io.Close(nil)
	return nil
}
