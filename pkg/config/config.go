package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// PreferredFallback controls what the venue extractor reports as the
// preferred notation when an instrument trades on several venues but the
// page carries no liquidity table. The upstream markup is ambiguous here,
// so the choice is an explicit operator decision.
const (
	PreferredFallbackNone  = "none"  // report no preferred notation
	PreferredFallbackFirst = "first" // report the first venue in document order
)

// Config holds the core runtime configuration for a service instance.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "comdirect-adapter"
	Env         string // e.g. "dev", "uat", "prod"
	Venue       string // upstream tag used in logs, metrics and rate keys
	LogLevel    string // "debug", "info", etc.
	Port        int    // service HTTP port

	// Upstream scraping
	BaseURL     string        // e.g. https://www.comdirect.de
	HTTPTimeout time.Duration // per-request timeout for outbound calls
	RetryMax    int           // executor retry ceiling for 5xx/network errors
	ScrapeRPS   int           // outbound token bucket refill rate
	ScrapeBurst int           // outbound token bucket size

	// Snapshot store
	RedisAddr   string
	RedisDB     int
	RedisPass   string
	PGURL       string        // optional durable tier; empty disables Postgres
	SnapshotTTL time.Duration // Redis TTL for instrument snapshots
	MemoTTL     time.Duration // in-process memo TTL in front of the store

	// Postgres pool tuning (ignored when PGURL is empty)
	PGMaxConns          int
	PGMinConns          int
	PGMaxConnLifetime   time.Duration
	PGMaxConnIdleTime   time.Duration
	PGHealthCheckPeriod time.Duration

	// Eventing (optional; empty NATSURL disables publishing)
	NATSURL           string
	InstrumentSubject string
	QuoteSubject      string

	// Parsing and history behavior
	PreferredFallback string        // "none" or "first", see constants above
	HistoryMaxPages   int           // CSV pagination ceiling
	HistoryLookback   time.Duration // default range when the caller gives none

	// Background watchlist refresh (optional; empty Watchlist disables it)
	Watchlist       []string
	RefreshInterval time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName: GetEnv("SERVICE_NAME", "comdirect-adapter"),
		Env:         GetEnv("ENV", "dev"),
		Venue:       "comdirect",
		LogLevel:    GetEnv("LOG_LEVEL", "info"),
		Port:        GetEnvInt("PORT", 8080),

		BaseURL:     GetEnv("COMDIRECT_BASE_URL", "https://www.comdirect.de"),
		HTTPTimeout: GetEnvDuration("HTTP_TIMEOUT", 15*time.Second),
		RetryMax:    GetEnvInt("RETRY_MAX", 3),
		ScrapeRPS:   GetEnvInt("SCRAPE_RATE_LIMIT", 4),
		ScrapeBurst: GetEnvInt("SCRAPE_BURST", 4),

		RedisAddr:   GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:     GetEnvInt("REDIS_DB", 0),
		RedisPass:   GetEnv("REDIS_PASS", ""),
		PGURL:       GetEnv("PG_URL", ""),
		SnapshotTTL: GetEnvDuration("SNAPSHOT_TTL", 7*24*time.Hour),
		MemoTTL:     GetEnvDuration("MEMO_TTL", time.Minute),

		PGMaxConns:          GetEnvInt("PG_MAX_CONNS", 10),
		PGMinConns:          GetEnvInt("PG_MIN_CONNS", 2),
		PGMaxConnLifetime:   GetEnvDuration("PG_MAX_CONN_LIFETIME", 30*time.Minute),
		PGMaxConnIdleTime:   GetEnvDuration("PG_MAX_CONN_IDLE_TIME", 5*time.Minute),
		PGHealthCheckPeriod: GetEnvDuration("PG_HEALTH_CHECK_PERIOD", time.Minute),

		NATSURL:           GetEnv("NATS_URL", ""),
		InstrumentSubject: GetEnv("INSTRUMENT_SUBJECT", "md.comdirect.instrument.snapshot"),
		QuoteSubject:      GetEnv("QUOTE_SUBJECT", "md.comdirect.quote.tick"),

		PreferredFallback: GetEnv("PREFERRED_FALLBACK", PreferredFallbackNone),
		HistoryMaxPages:   GetEnvInt("HISTORY_MAX_PAGES", 50),
		HistoryLookback:   GetEnvDuration("HISTORY_DEFAULT_LOOKBACK", 14*24*time.Hour),

		Watchlist:       splitList(GetEnv("WATCHLIST", "")),
		RefreshInterval: GetEnvDuration("WATCHLIST_REFRESH_INTERVAL", 15*time.Minute),
	}

	if cfg.PreferredFallback != PreferredFallbackFirst {
		cfg.PreferredFallback = PreferredFallbackNone
	}
	return cfg
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
