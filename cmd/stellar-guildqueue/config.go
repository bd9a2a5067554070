package main

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"github.com/edumarques81/stellar-guildqueue/internal/infra/store"
)

// config is the process configuration. Flags win over environment variables,
// which win over the defaults.
type config struct {
	Port        string
	MPDHost     string
	MPDPort     int
	MPDPassword string
	DBPath      string
	Guild       snowflake.ID // guild whose queue drives MPD, 0 disables playback
	SearchRPS   float64
	MaxExternal int
	CORSOrigin  string
	Debug       bool
}

// lookupFunc matches os.LookupEnv.
type lookupFunc func(key string) (string, bool)

func envString(lookup lookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func envInt(lookup lookupFunc, key string, fallback int) int {
	if v, ok := lookup(key); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func envFloat(lookup lookupFunc, key string, fallback float64) float64 {
	if v, ok := lookup(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return fallback
}

func envBool(lookup lookupFunc, key string, fallback bool) bool {
	if v, ok := lookup(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}

// parseConfig reads flags from args with defaults taken from the environment.
func parseConfig(args []string, lookup lookupFunc) (*config, error) {
	fs := flag.NewFlagSet("stellar-guildqueue", flag.ContinueOnError)

	port := fs.String("port", envString(lookup, "STELLAR_PORT", "3002"), "HTTP server port")
	mpdHost := fs.String("mpd-host", envString(lookup, "STELLAR_MPD_HOST", "localhost"), "MPD host")
	mpdPort := fs.Int("mpd-port", envInt(lookup, "STELLAR_MPD_PORT", 6600), "MPD port")
	mpdPassword := fs.String("mpd-password", envString(lookup, "STELLAR_MPD_PASSWORD", ""), "MPD password")
	dbPath := fs.String("db", envString(lookup, "STELLAR_DB", store.DefaultDBPath), "SQLite database path (\"off\" disables persistence)")
	guild := fs.String("guild", envString(lookup, "STELLAR_GUILD", ""), "Guild id whose queue drives MPD playback")
	searchRPS := fs.Float64("search-rps", envFloat(lookup, "STELLAR_SEARCH_RPS", 4), "Catalog searches per second")
	maxExternal := fs.Int("max-clients", envInt(lookup, "STELLAR_MAX_CLIENTS", 32), "Maximum concurrent remote clients")
	corsOrigin := fs.String("cors-origin", envString(lookup, "STELLAR_CORS_ORIGIN", "*"), "Allowed CORS origin")
	debug := fs.Bool("debug", envBool(lookup, "STELLAR_DEBUG", false), "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := &config{
		Port:        *port,
		MPDHost:     *mpdHost,
		MPDPort:     *mpdPort,
		MPDPassword: *mpdPassword,
		DBPath:      *dbPath,
		SearchRPS:   *searchRPS,
		MaxExternal: *maxExternal,
		CORSOrigin:  *corsOrigin,
		Debug:       *debug,
	}

	if *guild != "" {
		id, err := snowflake.Parse(*guild)
		if err != nil {
			return nil, fmt.Errorf("invalid guild id %q: %w", *guild, err)
		}
		cfg.Guild = id
	}
	if cfg.SearchRPS <= 0 {
		return nil, fmt.Errorf("search-rps must be positive, got %v", cfg.SearchRPS)
	}
	return cfg, nil
}

// persistenceEnabled reports whether a database path was configured.
func (c *config) persistenceEnabled() bool {
	return c.DBPath != "" && !strings.EqualFold(c.DBPath, "off")
}
