package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/comdirect"
	"github.com/Checker-Finance/comdirect-adapter/internal/history"
	"github.com/Checker-Finance/comdirect-adapter/internal/httpclient"
	"github.com/Checker-Finance/comdirect-adapter/internal/quotes"
	"github.com/Checker-Finance/comdirect-adapter/internal/store"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// --- Mock services ---

type mockInstruments struct {
	resolveFn func(ctx context.Context, identifier string) (*model.Instrument, error)
}

func (m *mockInstruments) Resolve(ctx context.Context, identifier string) (*model.Instrument, error) {
	if m.resolveFn != nil {
		return m.resolveFn(ctx, identifier)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockQuotes struct {
	fetchFn func(ctx context.Context, identifier, idNotation string) (*model.Quote, error)
}

func (m *mockQuotes) Fetch(ctx context.Context, identifier, idNotation string) (*model.Quote, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, identifier, idNotation)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockHistory struct {
	fetchFn func(ctx context.Context, identifier string, p history.Params) (*model.HistorySeries, error)
}

func (m *mockHistory) Fetch(ctx context.Context, identifier string, p history.Params) (*model.HistorySeries, error) {
	if m.fetchFn != nil {
		return m.fetchFn(ctx, identifier, p)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockSnapshotStore struct {
	listFn   func(ctx context.Context, assetClass string) ([]model.Instrument, error)
	healthFn func(ctx context.Context) error
}

func (m *mockSnapshotStore) ListSnapshots(ctx context.Context, assetClass string) ([]model.Instrument, error) {
	if m.listFn != nil {
		return m.listFn(ctx, assetClass)
	}
	return nil, fmt.Errorf("not implemented")
}

func (m *mockSnapshotStore) HealthCheck(ctx context.Context) error {
	if m.healthFn != nil {
		return m.healthFn(ctx)
	}
	return nil
}

// --- Test helpers ---

type testDeps struct {
	instruments *mockInstruments
	quotes      *mockQuotes
	history     *mockHistory
	store       *mockSnapshotStore
}

func newTestApp(d testDeps) *fiber.App {
	if d.instruments == nil {
		d.instruments = &mockInstruments{}
	}
	if d.quotes == nil {
		d.quotes = &mockQuotes{}
	}
	if d.history == nil {
		d.history = &mockHistory{}
	}
	if d.store == nil {
		d.store = &mockSnapshotStore{}
	}
	app := NewApp(zap.NewNop())
	h := NewHandler(zap.NewNop(), d.instruments, d.quotes, d.history, d.store)
	RegisterRoutes(app, nil, h)
	return app
}

func get(t *testing.T, app *fiber.App, path string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeError(t *testing.T, resp *http.Response) ErrorBody {
	t.Helper()
	var env errorEnvelope
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &env), "body: %s", body)
	return env.Error
}

func decodeJSON(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, dest), "body: %s", body)
}

func testInstrument() model.Instrument {
	return model.Instrument{
		Name:              "Siemens AG",
		WKN:               "723610",
		ISIN:              "DE0007236101",
		AssetClass:        model.ClassStock,
		DefaultIDNotation: "9385813",
		IDNotationsExchange: map[string]string{
			"Xetra": "9385813",
		},
		IDNotationsLifeTrading: map[string]string{},
		PreferredIDNotationEX:  "9385813",
		FetchedAt:              time.Now().UTC(),
	}
}

// --- GET /v1/instruments/:instrument_id ---

func TestGetInstrument_OK(t *testing.T) {
	inst := testInstrument()
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, identifier string) (*model.Instrument, error) {
			assert.Equal(t, "723610", identifier)
			return &inst, nil
		},
	}})

	resp := get(t, app, "/v1/instruments/723610")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(fiber.HeaderXRequestID))

	var got model.Instrument
	decodeJSON(t, resp, &got)
	assert.Equal(t, "723610", got.WKN)
	assert.Equal(t, model.ClassStock, got.AssetClass)
	assert.Equal(t, "9385813", got.DefaultIDNotation)
}

func TestGetInstrument_UnknownAssetClass(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			return nil, fmt.Errorf("classify: %w", comdirect.ErrUnknownAssetClass)
		},
	}})

	resp := get(t, app, "/v1/instruments/XY1234")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	body := decodeError(t, resp)
	assert.Equal(t, "not_found", body.Code)
	assert.Equal(t, resp.Header.Get(fiber.HeaderXRequestID), body.RequestID)
}

func TestGetInstrument_InvalidIdentifier(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			return nil, fmt.Errorf("%w: malformed WKN", model.ErrInvalidIdentifier)
		},
	}})

	resp := get(t, app, "/v1/instruments/BAD0O1")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeError(t, resp).Code)
}

func TestGetInstrument_UpstreamDown(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			return nil, fmt.Errorf("search: %w", httpclient.ErrUpstream)
		},
	}})

	resp := get(t, app, "/v1/instruments/723610")
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "upstream_unavailable", decodeError(t, resp).Code)
}

func TestGetInstrument_InternalError(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			return nil, errors.New("boom")
		},
	}})

	resp := get(t, app, "/v1/instruments/723610")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_error", decodeError(t, resp).Code)
}

// --- GET /v1/instruments ---

func TestListInstruments_FiltersByAssetClass(t *testing.T) {
	var gotClass string
	app := newTestApp(testDeps{store: &mockSnapshotStore{
		listFn: func(_ context.Context, assetClass string) ([]model.Instrument, error) {
			gotClass = assetClass
			return []model.Instrument{testInstrument(), testInstrument()}, nil
		},
	}})

	resp := get(t, app, "/v1/instruments?asset_class=Aktie")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "Aktie", gotClass)

	var body InstrumentListResponse
	decodeJSON(t, resp, &body)
	assert.Equal(t, 2, body.Count)
	require.Len(t, body.Instruments, 2)
	assert.Equal(t, "723610", body.Instruments[0].WKN)
}

func TestListInstruments_NoDurableTier(t *testing.T) {
	app := newTestApp(testDeps{store: &mockSnapshotStore{
		listFn: func(_ context.Context, _ string) ([]model.Instrument, error) {
			return nil, store.ErrNoDurableStore
		},
	}})

	resp := get(t, app, "/v1/instruments")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
	assert.Equal(t, "unavailable", decodeError(t, resp).Code)
}

// --- GET /v1/quotes/:instrument_id ---

func TestGetQuote_OK(t *testing.T) {
	var gotNotation string
	app := newTestApp(testDeps{quotes: &mockQuotes{
		fetchFn: func(_ context.Context, identifier, idNotation string) (*model.Quote, error) {
			gotNotation = idNotation
			return &model.Quote{
				WKN:           "723610",
				Name:          "Siemens AG",
				AssetClass:    model.ClassStock,
				IDNotation:    "253929",
				Venue:         "Commerzbank LiveTrading",
				Currency:      "EUR",
				Bid:           decimal.RequireFromString("167.02"),
				Ask:           decimal.RequireFromString("167.18"),
				SpreadPercent: decimal.RequireFromString("0.0957"),
				QuotedAt:      time.Date(2026, 8, 20, 14, 32, 0, 0, time.UTC),
			}, nil
		},
	}})

	resp := get(t, app, "/v1/quotes/723610?id_notation=preferred_id_notation_life_trading")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "preferred_id_notation_life_trading", gotNotation)

	var q model.Quote
	decodeJSON(t, resp, &q)
	assert.Equal(t, "167.02", q.Bid.String())
	assert.Equal(t, "167.18", q.Ask.String())
	assert.Equal(t, "Commerzbank LiveTrading", q.Venue)
}

func TestGetQuote_UnsupportedAssetClass(t *testing.T) {
	app := newTestApp(testDeps{quotes: &mockQuotes{
		fetchFn: func(_ context.Context, _, _ string) (*model.Quote, error) {
			return nil, fmt.Errorf("%w: %s", quotes.ErrUnsupportedAssetClass, model.ClassFund)
		},
	}})

	resp := get(t, app, "/v1/quotes/847652")
	assert.Equal(t, fiber.StatusNotImplemented, resp.StatusCode)

	body := decodeError(t, resp)
	assert.Equal(t, "unsupported_asset_class", body.Code)
	assert.Contains(t, body.Message, "Fonds")
}

func TestGetQuote_InvalidNotation(t *testing.T) {
	app := newTestApp(testDeps{quotes: &mockQuotes{
		fetchFn: func(_ context.Context, _, _ string) (*model.Quote, error) {
			return nil, fmt.Errorf("%w: %q", model.ErrInvalidNotation, "424242")
		},
	}})

	resp := get(t, app, "/v1/quotes/723610?id_notation=424242")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeError(t, resp).Code)
}

// --- GET /history/:instrument_id ---

func TestGetHistory_ParsesQueryParams(t *testing.T) {
	var gotParams history.Params
	app := newTestApp(testDeps{history: &mockHistory{
		fetchFn: func(_ context.Context, identifier string, p history.Params) (*model.HistorySeries, error) {
			assert.Equal(t, "723610", identifier)
			gotParams = p
			return &model.HistorySeries{WKN: "723610", Interval: p.Interval, Candles: []model.Candle{}}, nil
		},
	}})

	resp := get(t, app, "/history/723610?start=2024-01-02&end=2024-01-16T15:30:00Z&interval=15m&id_notation=9385813")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local), gotParams.Start)
	assert.True(t, gotParams.End.Equal(time.Date(2024, 1, 16, 15, 30, 0, 0, time.UTC)))
	assert.Equal(t, "15m", gotParams.Interval)
	assert.Equal(t, "9385813", gotParams.IDNotation)

	var series model.HistorySeries
	decodeJSON(t, resp, &series)
	assert.Equal(t, "723610", series.WKN)
	assert.NotNil(t, series.Candles)
}

func TestGetHistory_BadStart(t *testing.T) {
	app := newTestApp(testDeps{})

	resp := get(t, app, "/history/723610?start=bananas")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body := decodeError(t, resp)
	assert.Equal(t, "invalid_input", body.Code)
	assert.Contains(t, body.Message, "start")
}

func TestGetHistory_InvalidInterval(t *testing.T) {
	app := newTestApp(testDeps{history: &mockHistory{
		fetchFn: func(_ context.Context, _ string, _ history.Params) (*model.HistorySeries, error) {
			return nil, fmt.Errorf("%w: %q", history.ErrInvalidInterval, "90m")
		},
	}})

	resp := get(t, app, "/history/723610?interval=90m")
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_input", decodeError(t, resp).Code)
}

// --- GET /health ---

func TestHealth_OK(t *testing.T) {
	app := newTestApp(testDeps{})

	resp := get(t, app, "/health")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	var body struct {
		Status  string            `json:"status"`
		Service string            `json:"service"`
		Checks  map[string]string `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "comdirect-adapter", body.Service)
	assert.Equal(t, "ok", body.Checks["store"])
	assert.Equal(t, "disabled", body.Checks["nats"], "nil NATS conn means eventing off, not degraded")
}

func TestHealth_DegradedStore(t *testing.T) {
	app := newTestApp(testDeps{store: &mockSnapshotStore{
		healthFn: func(_ context.Context) error {
			return errors.New("redis ping failed")
		},
	}})

	resp := get(t, app, "/health")
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	decodeJSON(t, resp, &body)
	assert.Equal(t, "degraded", body.Status)
	assert.Contains(t, body.Checks["store"], "redis ping failed")
}

// --- middleware behavior ---

func TestUnmatchedRouteGetsEnvelope(t *testing.T) {
	app := newTestApp(testDeps{})

	resp := get(t, app, "/nope")
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "not_found", decodeError(t, resp).Code)
}

func TestRequestID_ReusedFromHeader(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			return nil, errors.New("boom")
		},
	}})

	req, err := http.NewRequest(http.MethodGet, "/v1/instruments/723610", nil)
	require.NoError(t, err)
	req.Header.Set(fiber.HeaderXRequestID, "upstream-rid-42")

	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	assert.Equal(t, "upstream-rid-42", resp.Header.Get(fiber.HeaderXRequestID))
	assert.Equal(t, "upstream-rid-42", decodeError(t, resp).RequestID)
}

func TestPanicBecomesInternalError(t *testing.T) {
	app := newTestApp(testDeps{instruments: &mockInstruments{
		resolveFn: func(_ context.Context, _ string) (*model.Instrument, error) {
			panic("handler exploded")
		},
	}})

	resp := get(t, app, "/v1/instruments/723610")
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal_error", decodeError(t, resp).Code)
}

// --- parseTimeQuery ---

func TestParseTimeQuery(t *testing.T) {
	got, err := parseTimeQuery("")
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	got, err = parseTimeQuery("2024-01-02")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.Local), got)

	got, err = parseTimeQuery("2024-01-02T09:30:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)))

	_, err = parseTimeQuery("02.01.2024")
	require.Error(t, err)
}
