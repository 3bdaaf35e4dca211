package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/api"
	"github.com/Checker-Finance/comdirect-adapter/internal/basedata"
	"github.com/Checker-Finance/comdirect-adapter/internal/comdirect"
	"github.com/Checker-Finance/comdirect-adapter/internal/history"
	"github.com/Checker-Finance/comdirect-adapter/internal/jobs"
	"github.com/Checker-Finance/comdirect-adapter/internal/publisher"
	"github.com/Checker-Finance/comdirect-adapter/internal/quotes"
	"github.com/Checker-Finance/comdirect-adapter/internal/rate"
	"github.com/Checker-Finance/comdirect-adapter/internal/store"
	"github.com/Checker-Finance/comdirect-adapter/pkg/config"
	"github.com/Checker-Finance/comdirect-adapter/pkg/logger"
	"github.com/Checker-Finance/comdirect-adapter/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	log, err := logger.New(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting [comdirect-adapter]",
		zap.String("env", cfg.Env),
		zap.String("base_url", cfg.BaseURL))

	// --- Outbound rate limiter ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.ScrapeRPS,
		Burst:             cfg.ScrapeBurst,
	})

	// --- comdirect page/CSV client ---
	client := comdirect.NewClient(log, cfg.BaseURL, cfg.HTTPTimeout, cfg.RetryMax, rateMgr)

	// --- Store (Redis + optional Postgres hybrid) ---
	st, err := store.NewHybrid(cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, cfg.PGURL, store.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, log)
	if err != nil {
		log.Fatal("store.init_failed", zap.Error(err))
	}
	if cfg.PGURL == "" {
		log.Info("PG_URL not configured; snapshot listing disabled, store is Redis-only")
	} else {
		log.Info("store.durable_tier", zap.String("pg", utils.MaskDSN(cfg.PGURL)))
	}

	// --- Eventing (optional) ---
	var nc *nats.Conn
	var pub *publisher.Publisher
	if cfg.NATSURL != "" {
		nc, err = nats.Connect(cfg.NATSURL)
		if err != nil {
			log.Fatal("nats.connect_failed", zap.Error(err))
		}
		pub, err = publisher.New(log, nc, cfg.InstrumentSubject, cfg.QuoteSubject, cfg.ServiceName)
		if err != nil {
			log.Fatal("publisher.init_failed", zap.Error(err))
		}
	} else {
		log.Info("NATS_URL not configured; event publishing disabled")
	}

	// --- Services ---
	instruments := basedata.NewService(basedata.Options{
		Logger:            log,
		Fetcher:           client,
		Store:             st,
		Publisher:         pub,
		MemoTTL:           cfg.MemoTTL,
		SnapshotTTL:       cfg.SnapshotTTL,
		PreferredFallback: cfg.PreferredFallback,
	})
	quoteSvc := quotes.NewService(log, instruments, client, pub)
	historySvc := history.NewService(log, instruments, client, cfg.HistoryMaxPages, cfg.HistoryLookback)

	// --- Watchlist refresher (no-op when WATCHLIST is empty) ---
	refresher := jobs.NewWatchlistRefresher(log, instruments, cfg.Watchlist, cfg.RefreshInterval)
	go refresher.Start(ctx)

	// --- Fiber HTTP server ---
	app := api.NewApp(log)
	handler := api.NewHandler(log, instruments, quoteSvc, historySvc, st)
	api.RegisterRoutes(app, nc, handler)

	go func() {
		log.Info("http.listening", zap.Int("port", cfg.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Fatal("fiber.listen_failed", zap.Error(err))
		}
	}()

	// --- Main process stays alive until interrupted ---
	<-ctx.Done()
	log.Info("shutting down [comdirect-adapter]")

	refresher.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Warn("fiber.shutdown_failed", zap.Error(err))
	}

	pub.Close()
	if err := st.Close(); err != nil {
		log.Warn("store.close_failed", zap.Error(err))
	}
}
