package api

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/history"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// InstrumentService is the slice of the basedata service the API needs.
type InstrumentService interface {
	Resolve(ctx context.Context, identifier string) (*model.Instrument, error)
}

// QuoteService serves point-in-time quotes.
type QuoteService interface {
	Fetch(ctx context.Context, identifier, idNotation string) (*model.Quote, error)
}

// HistoryService assembles OHLCV series.
type HistoryService interface {
	Fetch(ctx context.Context, identifier string, p history.Params) (*model.HistorySeries, error)
}

// SnapshotStore is the slice of the hybrid store the API reads directly:
// listings and the health probe.
type SnapshotStore interface {
	ListSnapshots(ctx context.Context, assetClass string) ([]model.Instrument, error)
	HealthCheck(ctx context.Context) error
}

// Handler carries the wired services behind all routes.
type Handler struct {
	logger      *zap.Logger
	instruments InstrumentService
	quotes      QuoteService
	history     HistoryService
	store       SnapshotStore
}

// NewHandler wires the route handlers.
func NewHandler(logger *zap.Logger, instruments InstrumentService, quotes QuoteService, history HistoryService, store SnapshotStore) *Handler {
	return &Handler{
		logger:      logger,
		instruments: instruments,
		quotes:      quotes,
		history:     history,
		store:       store,
	}
}

// GetInstrument handles GET /v1/instruments/:instrument_id.
func (h *Handler) GetInstrument(c *fiber.Ctx) error {
	identifier := c.Params("instrument_id")
	inst, err := h.instruments.Resolve(c.Context(), identifier)
	if err != nil {
		h.logger.Warn("api.instrument_failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(inst)
}

// ListInstruments handles GET /v1/instruments. It reads the durable snapshot
// tier; without Postgres the store answers ErrNoDurableStore and the caller
// gets a 503.
func (h *Handler) ListInstruments(c *fiber.Ctx) error {
	assetClass := c.Query("asset_class")
	insts, err := h.store.ListSnapshots(c.Context(), assetClass)
	if err != nil {
		h.logger.Warn("api.list_failed",
			zap.String("asset_class", assetClass),
			zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(InstrumentListResponse{Count: len(insts), Instruments: insts})
}

// GetQuote handles GET /v1/quotes/:instrument_id.
func (h *Handler) GetQuote(c *fiber.Ctx) error {
	identifier := c.Params("instrument_id")
	q, err := h.quotes.Fetch(c.Context(), identifier, c.Query("id_notation"))
	if err != nil {
		h.logger.Warn("api.quote_failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(q)
}

// GetHistory handles GET /history/:instrument_id.
func (h *Handler) GetHistory(c *fiber.Ctx) error {
	identifier := c.Params("instrument_id")

	p := history.Params{
		Interval:   c.Query("interval"),
		IDNotation: c.Query("id_notation"),
	}
	var err error
	if p.Start, err = parseTimeQuery(c.Query("start")); err != nil {
		return badRequest(c, fmt.Sprintf("start: %v", err))
	}
	if p.End, err = parseTimeQuery(c.Query("end")); err != nil {
		return badRequest(c, fmt.Sprintf("end: %v", err))
	}

	series, err := h.history.Fetch(c.Context(), identifier, p)
	if err != nil {
		h.logger.Warn("api.history_failed",
			zap.String("identifier", identifier),
			zap.Error(err))
		return writeError(c, err)
	}
	return c.JSON(series)
}

// parseTimeQuery accepts RFC3339 or plain dates. Empty means unset, which
// the history service fills with its defaults.
func parseTimeQuery(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("unparsable time %q, want RFC3339 or 2006-01-02", raw)
	}
	return t, nil
}
