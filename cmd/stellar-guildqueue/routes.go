package main

import (
	"encoding/json"
	"net/http"

	"github.com/disgoorg/snowflake/v2"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-guildqueue/internal/domain/queue"
	"github.com/edumarques81/stellar-guildqueue/internal/infra/store"
	"github.com/edumarques81/stellar-guildqueue/internal/transport/socketio"
	"github.com/edumarques81/stellar-guildqueue/internal/version"
)

// routes holds what the HTTP endpoints read from.
type routes struct {
	socket    http.Handler
	analytics func(guild snowflake.ID) socketio.AnalyticsView
	guilds    func() []snowflake.ID
	templates func() ([]string, error)
	stats     func() (*store.Stats, error) // nil when persistence is disabled
	mpdPing   func() error                 // nil when playback is disabled
}

// listTemplates serves template names from an in-memory set.
func listTemplates(set *queue.Templates) func() ([]string, error) {
	return func() ([]string, error) { return set.Names(), nil }
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to write response")
	}
}

// newMux builds the HTTP handler tree.
func newMux(rt routes, corsOrigin string) http.Handler {
	mux := http.NewServeMux()

	// Socket.io endpoint
	if rt.socket != nil {
		mux.Handle("/socket.io/", rt.socket)
	}

	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if rt.mpdPing == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mpd": "disabled"})
			return
		}
		if err := rt.mpdPing(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "mpd": "disconnected"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "mpd": "connected"})
	})

	// Version endpoint
	mux.HandleFunc("/api/v1/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, version.GetInfo())
	})

	// Guilds with a live queue
	mux.HandleFunc("/api/v1/guilds", func(w http.ResponseWriter, r *http.Request) {
		ids := []string{}
		for _, g := range rt.guilds() {
			ids = append(ids, g.String())
		}
		writeJSON(w, http.StatusOK, map[string][]string{"guilds": ids})
	})

	// Template names
	mux.HandleFunc("/api/v1/templates", func(w http.ResponseWriter, r *http.Request) {
		names, err := rt.templates()
		if err != nil {
			log.Error().Err(err).Msg("Failed to list templates")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list templates"})
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, map[string][]string{"templates": names})
	})

	// Store statistics
	mux.HandleFunc("/api/v1/store/stats", func(w http.ResponseWriter, r *http.Request) {
		if rt.stats == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "persistence disabled"})
			return
		}
		stats, err := rt.stats()
		if err != nil {
			log.Error().Err(err).Msg("Failed to read store stats")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to read store stats"})
			return
		}
		writeJSON(w, http.StatusOK, stats)
	})

	// Queue analytics for one guild
	mux.HandleFunc("/api/v1/analytics", func(w http.ResponseWriter, r *http.Request) {
		raw := r.URL.Query().Get("guild")
		if raw == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "guild parameter required"})
			return
		}
		guild, err := snowflake.Parse(raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid guild id"})
			return
		}
		writeJSON(w, http.StatusOK, rt.analytics(guild))
	})

	return corsMiddleware(corsOrigin, mux)
}
