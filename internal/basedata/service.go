package basedata

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/comdirect"
	"github.com/Checker-Finance/comdirect-adapter/internal/httpclient"
	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/cache"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// PageFetcher pulls instrument pages from the upstream site.
type PageFetcher interface {
	FetchSearch(ctx context.Context, searchValue string) (*httpclient.Result, error)
	FetchDetail(ctx context.Context, class model.AssetClass, searchValue, idNotation string) (*httpclient.Result, error)
}

// SnapshotStore is the durable tier consulted between the in-process memo
// and a live scrape.
type SnapshotStore interface {
	GetInstrument(ctx context.Context, wkn string) (*model.Instrument, error)
	PutInstrument(ctx context.Context, inst *model.Instrument, ttl time.Duration) error
}

// EventPublisher emits a snapshot event after every successful scrape.
type EventPublisher interface {
	PublishInstrument(ctx context.Context, inst *model.Instrument) error
}

// Service resolves instrument identifiers to master records. Lookups walk
// memo cache, snapshot store, then a live scrape; store and publisher are
// optional and failures there never fail the request.
type Service struct {
	logger            *zap.Logger
	fetcher           PageFetcher
	store             SnapshotStore
	pub               EventPublisher
	memo              *cache.Cache[*model.Instrument]
	snapshotTTL       time.Duration
	preferredFallback string
}

type Options struct {
	Logger            *zap.Logger
	Fetcher           PageFetcher
	Store             SnapshotStore
	Publisher         EventPublisher
	MemoTTL           time.Duration
	SnapshotTTL       time.Duration
	PreferredFallback string
}

func NewService(opts Options) *Service {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MemoTTL <= 0 {
		opts.MemoTTL = time.Minute
	}
	return &Service{
		logger:            opts.Logger,
		fetcher:           opts.Fetcher,
		store:             opts.Store,
		pub:               opts.Publisher,
		memo:              cache.New[*model.Instrument](opts.MemoTTL),
		snapshotTTL:       opts.SnapshotTTL,
		preferredFallback: opts.PreferredFallback,
	}
}

// Resolve returns the master record for a WKN, ISIN, or free-text search
// term, scraping the site only on a cache and store miss.
func (s *Service) Resolve(ctx context.Context, id string) (*model.Instrument, error) {
	return s.resolve(ctx, id, false)
}

// ResolveFresh scrapes unconditionally, bypassing memo and store reads. The
// watchlist refresher uses it to keep snapshots from going stale.
func (s *Service) ResolveFresh(ctx context.Context, id string) (*model.Instrument, error) {
	return s.resolve(ctx, id, true)
}

func (s *Service) resolve(ctx context.Context, id string, bypassCache bool) (*model.Instrument, error) {
	if err := model.CheckIdentifier(id); err != nil {
		return nil, err
	}
	key := strings.ToUpper(strings.TrimSpace(id))

	if !bypassCache {
		if inst, ok := s.memo.Get(key); ok {
			metrics.IncSnapshotLookup("memo", "hit")
			return inst, nil
		}
		metrics.IncSnapshotLookup("memo", "miss")

		if s.store != nil && model.ValidWKN(key) {
			inst, err := s.store.GetInstrument(ctx, key)
			if err != nil {
				s.logger.Warn("basedata.store_lookup_failed",
					zap.String("wkn", key),
					zap.Error(err),
				)
			}
			if inst != nil {
				s.memo.Put(key, inst)
				return inst, nil
			}
		}
	}

	inst, err := s.scrape(ctx, id)
	if err != nil {
		return nil, err
	}

	s.memo.Put(key, inst)
	if inst.WKN != key {
		s.memo.Put(inst.WKN, inst)
	}
	if s.store != nil {
		if err := s.store.PutInstrument(ctx, inst, s.snapshotTTL); err != nil {
			s.logger.Warn("basedata.snapshot_write_failed",
				zap.String("wkn", inst.WKN),
				zap.Error(err),
			)
		}
	}
	if s.pub != nil {
		if err := s.pub.PublishInstrument(ctx, inst); err != nil {
			s.logger.Warn("basedata.snapshot_publish_failed",
				zap.String("wkn", inst.WKN),
				zap.Error(err),
			)
		}
	}
	return inst, nil
}

func (s *Service) scrape(ctx context.Context, id string) (*model.Instrument, error) {
	res, err := s.fetcher.FetchSearch(ctx, id)
	if err != nil {
		return nil, err
	}

	class, err := comdirect.ClassifyURL(res.FinalURL)
	if err != nil {
		metrics.IncParseFailure("classify")
		return nil, err
	}
	defaultID := comdirect.DefaultNotation(res.FinalURL)

	parser, err := parserFor(class)
	if err != nil {
		return nil, err
	}

	body := res.Body
	if parser.RequiresRefetch() && defaultID != "" {
		det, err := s.fetcher.FetchDetail(ctx, class, id, defaultID)
		if err != nil {
			return nil, fmt.Errorf("refetch with notation %s: %w", defaultID, err)
		}
		body = det.Body
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		metrics.IncParseFailure("document")
		return nil, fmt.Errorf("parse detail page: %w", err)
	}

	name, err := parser.ParseName(doc)
	if err != nil {
		metrics.IncParseFailure("name")
		return nil, fmt.Errorf("extract name: %w", err)
	}
	wkn, err := parser.ParseWKN(doc)
	if err != nil {
		metrics.IncParseFailure("wkn")
		return nil, fmt.Errorf("extract wkn: %w", err)
	}
	isin, err := parser.ParseISIN(doc)
	if err != nil {
		metrics.IncParseFailure("isin")
		return nil, fmt.Errorf("extract isin: %w", err)
	}
	notations, err := parser.ParseNotations(doc, s.preferredFallback)
	if err != nil {
		metrics.IncParseFailure("venues")
		return nil, fmt.Errorf("extract venues: %w", err)
	}

	inst := &model.Instrument{
		Name:                   name,
		WKN:                    wkn,
		ISIN:                   isin,
		Symbol:                 ExtractSymbol(doc, class),
		AssetClass:             class,
		DefaultIDNotation:      defaultID,
		IDNotationsLifeTrading: notations.LifeTrading,
		IDNotationsExchange:    notations.Exchange,
		PreferredIDNotationLT:  notations.PreferredLT,
		PreferredIDNotationEX:  notations.PreferredEX,
		FetchedAt:              time.Now().UTC(),
	}
	if err := inst.Validate(); err != nil {
		metrics.IncParseFailure("validate")
		return nil, fmt.Errorf("scraped instrument %q failed validation: %w", wkn, err)
	}

	s.logger.Info("basedata.resolved",
		zap.String("wkn", inst.WKN),
		zap.String("asset_class", string(inst.AssetClass)),
		zap.String("default_id_notation", inst.DefaultIDNotation),
		zap.Int("venues_life_trading", len(inst.IDNotationsLifeTrading)),
		zap.Int("venues_exchange", len(inst.IDNotationsExchange)),
	)
	return inst, nil
}
