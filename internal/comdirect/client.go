package comdirect

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/httpclient"
	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
	"github.com/Checker-Finance/comdirect-adapter/internal/rate"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// The site serves a reduced page to unknown agents and the extractors depend
// on the full German desktop markup, so every request announces a browser.
const (
	userAgent      = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	acceptLanguage = "de-DE,de;q=0.9"

	rateKeyPages = "comdirect_pages"
	rateKeyCSV   = "comdirect_csv"
)

// Client wraps low-level HTTP communication with comdirect's public pages.
// It handles browser headers, rate limiting, and basic retry logic.
type Client struct {
	logger  *zap.Logger
	baseURL string
	exec    *httpclient.Executor
}

// NewClient constructs a comdirect page/CSV client.
func NewClient(logger *zap.Logger, baseURL string, timeout time.Duration, retryMax int, rateMgr *rate.Manager) *Client {
	httpClient := &http.Client{Timeout: timeout}
	exec := httpclient.New(logger, rateMgr, httpClient, retryMax, "comdirect", func(status int, body []byte) error {
		logger.Warn("comdirect.non_200",
			zap.Int("status", status),
			zap.Int("body_bytes", len(body)))
		return fmt.Errorf("%w: comdirect returned %d", httpclient.ErrUpstream, status)
	})
	return &Client{
		logger:  logger,
		baseURL: baseURL,
		exec:    exec,
	}
}

// BaseURL exposes the configured upstream root (tests point it at fixtures).
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchSearch resolves an instrument identifier through the search endpoint
// and returns the redirected detail page plus its final URL.
func (c *Client) FetchSearch(ctx context.Context, searchValue string) (*httpclient.Result, error) {
	return c.fetch(ctx, SearchURL(c.baseURL, searchValue), "search", rateKeyPages)
}

// FetchDetail fetches a detail page pinned to an explicit notation id.
func (c *Client) FetchDetail(ctx context.Context, class model.AssetClass, searchValue, idNotation string) (*httpclient.Result, error) {
	u, err := DetailURL(c.baseURL, class, searchValue, idNotation)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, u, "detail", rateKeyPages)
}

// FetchHistoryCSV fetches one page of the CSV export.
func (c *Client) FetchHistoryCSV(ctx context.Context, hq HistoryQuery) ([]byte, error) {
	res, err := c.fetch(ctx, HistoryURL(c.baseURL, hq), "history_csv", rateKeyCSV)
	if err != nil {
		return nil, err
	}
	return res.Body, nil
}

func (c *Client) fetch(ctx context.Context, rawURL, target, rateKey string) (*httpclient.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", acceptLanguage)

	start := time.Now()
	res, err := c.exec.Do(ctx, req, rateKey)
	metrics.ObserveDuration(metrics.UpstreamRequestDuration, start, target)
	if err != nil {
		metrics.IncUpstreamRequest(target, "error")
		return nil, err
	}
	metrics.IncUpstreamRequest(target, "ok")
	return res, nil
}
