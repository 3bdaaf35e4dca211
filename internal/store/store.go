package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// ErrNoDurableStore is returned by operations that need Postgres when the
// adapter runs Redis-only. The API maps it to 503.
var ErrNoDurableStore = errors.New("no durable store configured")

// rewarmTTL bounds how long a snapshot recovered from Postgres lives in
// Redis; the original write TTL is not recoverable from the payload.
const rewarmTTL = time.Hour

// Store is the snapshot tier consulted between the in-process memo and a
// live scrape.
type Store interface {
	PutInstrument(ctx context.Context, inst *model.Instrument, ttl time.Duration) error
	GetInstrument(ctx context.Context, wkn string) (*model.Instrument, error)
	ListSnapshots(ctx context.Context, assetClass string) ([]model.Instrument, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	GetJSON(ctx context.Context, key string, dest any) error
	HealthCheck(ctx context.Context) error
	Close() error
}

// HybridStore keeps hot snapshots in Redis and mirrors them into Postgres
// when one is configured. Redis is mandatory; Postgres failures degrade to
// log lines so a flaky durable tier never blocks serving.
type HybridStore struct {
	redis  *redis.Client
	PG     *pgxpool.Pool
	logger *zap.Logger
}

type PGPoolConfig struct {
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

// NewHybrid creates a Redis-first, Postgres-backed store. An empty pgURL
// runs the store Redis-only.
func NewHybrid(redisAddr string, redisDB int, redisPass, pgURL string, pgPoolConfig PGPoolConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		DB:       redisDB,
		Password: redisPass,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	var pgPool *pgxpool.Pool
	if pgURL != "" {
		cfg, err := pgxpool.ParseConfig(pgURL)
		if err != nil {
			return nil, fmt.Errorf("invalid pg config: %w", err)
		}
		if pgPoolConfig.MaxConns > 0 {
			cfg.MaxConns = pgPoolConfig.MaxConns
		}
		if pgPoolConfig.MinConns > 0 {
			cfg.MinConns = pgPoolConfig.MinConns
		}
		if pgPoolConfig.MaxConnLifetime > 0 {
			cfg.MaxConnLifetime = pgPoolConfig.MaxConnLifetime
		}
		if pgPoolConfig.MaxConnIdleTime > 0 {
			cfg.MaxConnIdleTime = pgPoolConfig.MaxConnIdleTime
		}
		if pgPoolConfig.HealthCheckPeriod > 0 {
			cfg.HealthCheckPeriod = pgPoolConfig.HealthCheckPeriod
		}
		pgPool, err = pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
	}

	return &HybridStore{redis: rdb, PG: pgPool, logger: logger}, nil
}

func snapshotKey(wkn string) string {
	return "instrument:" + wkn
}

// PutInstrument writes the snapshot through both tiers. The Redis write is
// the one that matters for serving and its error is returned; the Postgres
// upsert is best-effort.
func (s *HybridStore) PutInstrument(ctx context.Context, inst *model.Instrument, ttl time.Duration) error {
	data, err := json.Marshal(inst)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, snapshotKey(inst.WKN), data, ttl).Err(); err != nil {
		return err
	}

	if s.PG == nil {
		return nil
	}
	_, err = s.PG.Exec(ctx, `
		INSERT INTO marketdata.instrument_snapshot (
			wkn, name, asset_class, isin, payload, as_of
		)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (wkn)
		DO UPDATE SET
			name = EXCLUDED.name,
			asset_class = EXCLUDED.asset_class,
			isin = EXCLUDED.isin,
			payload = EXCLUDED.payload,
			as_of = EXCLUDED.as_of;
	`, inst.WKN, inst.Name, string(inst.AssetClass), inst.ISIN, data, inst.FetchedAt)
	if err != nil {
		s.logger.Error("store.pg.snapshot_upsert_failed",
			zap.String("wkn", inst.WKN),
			zap.Error(err),
		)
	}
	return nil
}

// GetInstrument reads the snapshot, falling back from Redis to Postgres and
// re-warming Redis on a durable hit. A miss in both tiers is (nil, nil).
func (s *HybridStore) GetInstrument(ctx context.Context, wkn string) (*model.Instrument, error) {
	key := snapshotKey(wkn)
	data, err := s.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		metrics.IncSnapshotLookup("redis", "hit")
		var inst model.Instrument
		if err := json.Unmarshal(data, &inst); err != nil {
			return nil, err
		}
		return &inst, nil
	case errors.Is(err, redis.Nil):
		metrics.IncSnapshotLookup("redis", "miss")
	default:
		return nil, err
	}

	if s.PG == nil {
		return nil, nil
	}
	var payload []byte
	err = s.PG.QueryRow(ctx,
		`SELECT payload FROM marketdata.instrument_snapshot WHERE wkn = $1;`, wkn,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.IncSnapshotLookup("postgres", "miss")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.IncSnapshotLookup("postgres", "hit")

	var inst model.Instrument
	if err := json.Unmarshal(payload, &inst); err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, key, payload, rewarmTTL).Err(); err != nil {
		s.logger.Warn("store.redis.rewarm_failed",
			zap.String("wkn", wkn),
			zap.Error(err),
		)
	}
	return &inst, nil
}

// ListSnapshots returns every known snapshot, optionally filtered by asset
// class, newest first. Listing needs the durable tier: Redis keys expire and
// scanning them gives no stable order.
func (s *HybridStore) ListSnapshots(ctx context.Context, assetClass string) ([]model.Instrument, error) {
	if s.PG == nil {
		return nil, ErrNoDurableStore
	}
	rows, err := s.PG.Query(ctx, `
		SELECT payload
		FROM marketdata.instrument_snapshot
		WHERE ($1 = '' OR asset_class = $1)
		ORDER BY as_of DESC;
	`, assetClass)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.Instrument
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var inst model.Instrument
		if err := json.Unmarshal(payload, &inst); err != nil {
			return nil, err
		}
		results = append(results, inst)
	}
	return results, rows.Err()
}

func (s *HybridStore) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, key, data, ttl).Err()
}

func (s *HybridStore) GetJSON(ctx context.Context, key string, dest any) error {
	data, err := s.redis.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	return json.Unmarshal(data, dest)
}

func (s *HybridStore) HealthCheck(ctx context.Context) error {
	if s.redis == nil {
		return fmt.Errorf("redis not initialized")
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	if s.PG != nil {
		if err := s.PG.Ping(ctx); err != nil {
			return fmt.Errorf("postgres ping failed: %w", err)
		}
	}
	return nil
}

func (s *HybridStore) Close() error {
	if s.PG != nil {
		s.PG.Close()
	}
	if s.redis != nil {
		return s.redis.Close()
	}
	return nil
}
