package quotes

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/httpclient"
	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// InstrumentResolver supplies the master record a quote request hangs off.
type InstrumentResolver interface {
	Resolve(ctx context.Context, id string) (*model.Instrument, error)
}

// DetailFetcher pulls a detail page pinned to one venue's notation id.
type DetailFetcher interface {
	FetchDetail(ctx context.Context, class model.AssetClass, searchValue, idNotation string) (*httpclient.Result, error)
}

// EventPublisher emits a quote.tick event for every served quote.
type EventPublisher interface {
	PublishQuote(ctx context.Context, q *model.Quote) error
}

// Service scrapes live bid/ask quotes. Quotes are never cached: every call
// refetches the venue-pinned detail page.
type Service struct {
	logger   *zap.Logger
	resolver InstrumentResolver
	fetcher  DetailFetcher
	pub      EventPublisher
}

func NewService(logger *zap.Logger, resolver InstrumentResolver, fetcher DetailFetcher, pub EventPublisher) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{logger: logger, resolver: resolver, fetcher: fetcher, pub: pub}
}

// Fetch resolves the instrument, rejects classes without a readable quote
// table, pins the requested notation and scrapes the Kursdaten section.
func (s *Service) Fetch(ctx context.Context, id, idNotationParam string) (*model.Quote, error) {
	inst, err := s.resolver.Resolve(ctx, id)
	if err != nil {
		return nil, err
	}
	if !inst.AssetClass.SupportsQuotes() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedAssetClass, inst.AssetClass)
	}

	idNotation, err := inst.ResolveNotation(idNotationParam)
	if err != nil {
		return nil, err
	}

	res, err := s.fetcher.FetchDetail(ctx, inst.AssetClass, inst.WKN, idNotation)
	if err != nil {
		return nil, err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body))
	if err != nil {
		metrics.IncParseFailure("quote")
		return nil, fmt.Errorf("parse quote page: %w", err)
	}
	page, err := parseQuotePage(doc)
	if err != nil {
		metrics.IncParseFailure("quote")
		return nil, fmt.Errorf("extract quote for %s@%s: %w", inst.WKN, idNotation, err)
	}

	venue := page.venue
	if venue == "" {
		venue = inst.VenueFor(idNotation)
	}

	q := &model.Quote{
		WKN:           inst.WKN,
		Name:          inst.Name,
		AssetClass:    inst.AssetClass,
		IDNotation:    idNotation,
		Venue:         venue,
		Currency:      page.currency,
		Bid:           page.bid,
		Ask:           page.ask,
		SpreadPercent: spreadPercent(page.bid, page.ask),
		QuotedAt:      page.quotedAt,
	}

	if s.pub != nil {
		if err := s.pub.PublishQuote(ctx, q); err != nil {
			s.logger.Warn("quotes.tick_publish_failed",
				zap.String("wkn", q.WKN),
				zap.Error(err),
			)
		}
	}

	s.logger.Debug("quotes.served",
		zap.String("wkn", q.WKN),
		zap.String("id_notation", q.IDNotation),
		zap.String("venue", q.Venue),
	)
	return q, nil
}
