// Package main is the entry point for the Stellar guild queue service.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/domain/recommend"
	"github.com/edumarques81/stellar-guildqueue/internal/infra/mpd"
	"github.com/edumarques81/stellar-guildqueue/internal/infra/store"
	"github.com/edumarques81/stellar-guildqueue/internal/infra/youtube"
	"github.com/edumarques81/stellar-guildqueue/internal/transport/socketio"
	"github.com/edumarques81/stellar-guildqueue/internal/version"
)

func main() {
	// A missing .env file is fine, the environment and flags still apply
	_ = godotenv.Load()

	cfg, err := parseConfig(os.Args[1:], os.LookupEnv)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Print startup banner
	versionInfo := version.GetInfo()
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", versionInfo.String())
	log.Info().Msg("  Guild Queue Service")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("port", cfg.Port).
		Str("mpd_host", cfg.MPDHost).
		Int("mpd_port", cfg.MPDPort).
		Bool("password_set", cfg.MPDPassword != "").
		Str("db", cfg.DBPath).
		Str("playback_guild", cfg.Guild.String()).
		Float64("search_rps", cfg.SearchRPS).
		Msg("Configuration")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	var db *store.DB
	memTemplates := queue.NewTemplates()
	var templates queue.TemplateSource = memTemplates
	templateNames := listTemplates(memTemplates)
	if cfg.persistenceEnabled() {
		db = store.NewDB(cfg.DBPath)
		if err := db.Open(); err != nil {
			log.Fatal().Err(err).Msg("Failed to open store")
		}
		defer db.Close()
		templates = db
		templateNames = db.TemplateNames

		if stats, err := db.GetStats(); err == nil {
			log.Info().
				Int("snapshots", stats.SnapshotCount).
				Int("templates", stats.TemplateCount).
				Str("schema", stats.SchemaVersion).
				Msg("Store opened")
		}
	}

	// Queue and recommendation engines
	engine := recommend.NewEngine()
	searcher := youtube.New(youtube.WithRateLimit(cfg.SearchRPS, youtube.DefaultBurst))

	var socketServer *socketio.Server
	manager := queue.NewManager(
		queue.WithRecommender(engine),
		queue.WithSearcher(searcher),
		queue.WithTemplates(templates),
		queue.WithEventHandler(func(e queue.Event) {
			if socketServer != nil {
				socketServer.HandleEvent(e)
			}
		}),
	)

	if db != nil {
		restoreSnapshots(db, manager)
	}

	// Local playback through MPD
	srvCfg := socketio.Config{
		Engine:        engine,
		Searcher:      searcher,
		PlaybackGuild: cfg.Guild,
		CORSOrigin:    cfg.CORSOrigin,
		MaxExternal:   cfg.MaxExternal,
	}
	if db != nil {
		srvCfg.Snapshots = db
	}

	var mpdClient *mpd.Client
	if cfg.Guild != 0 {
		mpdClient = mpd.NewClient(cfg.MPDHost, cfg.MPDPort, cfg.MPDPassword)
		if err := mpdClient.Connect(); err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MPD")
		}
		defer mpdClient.Close()

		if err := mpdClient.Ping(); err != nil {
			log.Fatal().Err(err).Msg("MPD ping failed")
		}
		log.Info().Msg("MPD connection verified")
		srvCfg.Player = mpd.NewPlayer(mpdClient)
	} else {
		log.Info().Msg("No playback guild configured, MPD disabled")
	}

	// Create Socket.io server
	socketServer, err = socketio.NewServer(manager, srvCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Socket.io server")
	}
	log.Info().Str("cors_origin", socketServer.CORSOrigin()).Msg("Socket.io server ready")

	// Advance the playback guild whenever MPD finishes a track
	if mpdClient != nil {
		events, err := mpdClient.Watch("player")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start MPD watcher")
		}
		watcher := mpd.NewEndWatcher(mpdClient, func() {
			advanceCtx, advanceCancel := context.WithTimeout(ctx, 30*time.Second)
			defer advanceCancel()
			next, err := socketServer.Advance(advanceCtx, cfg.Guild)
			if err != nil {
				log.Error().Err(err).Msg("Failed to advance after track end")
				return
			}
			if next == nil {
				log.Info().Str("guild", cfg.Guild.String()).Msg("Queue exhausted")
			}
		})
		go func() {
			log.Info().Msg("MPD watcher started")
			watcher.Run(ctx, events)
			log.Info().Msg("MPD watcher stopped")
		}()
	}

	rt := routes{
		socket:    socketServer,
		analytics: socketServer.Analytics,
		guilds:    manager.Guilds,
		templates: templateNames,
	}
	if db != nil {
		rt.stats = db.GetStats
	}
	if mpdClient != nil {
		rt.mpdPing = mpdClient.Ping
	}

	// Start HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      newMux(rt, cfg.CORSOrigin),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		log.Info().Msg("Shutting down...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server shutdown error")
		}
	}()

	log.Info().Str("addr", ":"+cfg.Port).Msg("HTTP server listening")

	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("HTTP server error")
	}

	// Close flushes pending analytics pushes, which also persists those guilds
	socketServer.Close()
	if db != nil {
		saveSnapshots(db, manager)
	}

	log.Info().Msg("Server stopped")
}

// restoreSnapshots loads every stored guild queue into the manager.
func restoreSnapshots(db *store.DB, manager *queue.Manager) {
	guilds, err := db.SnapshotGuilds()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to list stored queues")
		return
	}

	restored := 0
	for _, g := range guilds {
		snap, ok, err := db.LoadSnapshot(g)
		if err != nil {
			log.Warn().Err(err).Str("guild", g.String()).Msg("Skipping unreadable queue snapshot")
			continue
		}
		if !ok {
			continue
		}
		if err := manager.Restore(g, snap); err != nil {
			log.Warn().Err(err).Str("guild", g.String()).Msg("Failed to restore queue")
			continue
		}
		restored++
	}
	log.Info().Int("guilds", restored).Msg("Restored queues")
}

// saveSnapshots writes every live guild queue to the store.
func saveSnapshots(db *store.DB, manager *queue.Manager) {
	for _, g := range manager.Guilds() {
		if err := db.SaveSnapshot(g, manager.Snapshot(g)); err != nil {
			log.Warn().Err(err).Str("guild", g.String()).Msg("Failed to save queue")
		}
	}
}
