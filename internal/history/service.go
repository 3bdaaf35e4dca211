package history

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/comdirect"
	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// pageRows is how many data rows the export returns per page.
const pageRows = 50

const (
	defaultMaxPages = 50
	defaultLookback = 14 * 24 * time.Hour
)

// InstrumentResolver resolves an identifier to a full instrument record.
type InstrumentResolver interface {
	Resolve(ctx context.Context, identifier string) (*model.Instrument, error)
}

// CSVFetcher pulls one page of the historic CSV export.
type CSVFetcher interface {
	FetchHistoryCSV(ctx context.Context, hq comdirect.HistoryQuery) ([]byte, error)
}

// Service assembles OHLCV series by paging through the CSV export.
type Service struct {
	logger   *zap.Logger
	resolver InstrumentResolver
	fetcher  CSVFetcher
	maxPages int
	lookback time.Duration
	now      func() time.Time
}

// NewService wires a history service. maxPages caps how many export pages a
// single request may pull, lookback is the window used when the caller gives
// no usable start.
func NewService(logger *zap.Logger, resolver InstrumentResolver, fetcher CSVFetcher, maxPages int, lookback time.Duration) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxPages <= 0 {
		maxPages = defaultMaxPages
	}
	if lookback <= 0 {
		lookback = defaultLookback
	}
	return &Service{
		logger:   logger,
		resolver: resolver,
		fetcher:  fetcher,
		maxPages: maxPages,
		lookback: lookback,
		now:      time.Now,
	}
}

// Params carries the caller's range request. Zero values mean "pick a
// default": empty interval becomes DefaultInterval, zero times fall back to
// the lookback window, empty IDNotation selects the instrument's default
// venue.
type Params struct {
	Start      time.Time
	End        time.Time
	Interval   string
	IDNotation string
}

// Fetch resolves the instrument, normalizes the range and pages through the
// export until a page comes back empty or the page cap is reached. A page
// fetch failure ends the loop and keeps what was collected so far, so a
// flaky upstream yields a shorter series instead of an error.
func (s *Service) Fetch(ctx context.Context, identifier string, p Params) (*model.HistorySeries, error) {
	inst, err := s.resolver.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}

	interval := p.Interval
	if interval == "" {
		interval = DefaultInterval
	}
	code, err := IntervalCode(interval)
	if err != nil {
		return nil, err
	}

	idNotation, err := inst.ResolveNotation(p.IDNotation)
	if err != nil {
		return nil, err
	}

	start, end := NormalizeRange(p.Start, p.End, interval, s.lookback, s.now())

	candles := []model.Candle{}
	pages := 0
	for page := 0; page < s.maxPages; page++ {
		data, err := s.fetcher.FetchHistoryCSV(ctx, comdirect.HistoryQuery{
			IDNotation: idNotation,
			Start:      start,
			End:        end,
			Interval:   code,
			Offset:     page * pageRows,
		})
		if err != nil {
			s.logger.Warn("history.page_fetch_failed",
				zap.String("id_notation", idNotation),
				zap.Int("page", page),
				zap.Error(err),
			)
			break
		}
		pages++
		pageCandles, rows := parsePage(s.logger, data)
		candles = append(candles, pageCandles...)
		if rows == 0 {
			break
		}
	}
	metrics.HistoryPagesFetched.Observe(float64(pages))

	s.logger.Info("history.served",
		zap.String("wkn", inst.WKN),
		zap.String("id_notation", idNotation),
		zap.String("interval", interval),
		zap.Int("pages", pages),
		zap.Int("candles", len(candles)),
	)

	return &model.HistorySeries{
		WKN:        inst.WKN,
		Name:       inst.Name,
		AssetClass: inst.AssetClass,
		IDNotation: idNotation,
		Venue:      inst.VenueFor(idNotation),
		Interval:   interval,
		Start:      start,
		End:        end,
		Candles:    candles,
	}, nil
}
