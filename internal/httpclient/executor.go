package httpclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/rate"
)

// ErrUpstream marks transport failures and error responses from the scraped
// host, as opposed to parse or validation failures on our side. The API layer
// maps it to 502.
var ErrUpstream = errors.New("upstream request failed")

// Backoff returns the retry sleep duration for the given attempt number.
func Backoff(attempt int) time.Duration {
	switch attempt {
	case 0:
		return 100 * time.Millisecond
	case 1:
		return 250 * time.Millisecond
	default:
		return 500 * time.Millisecond
	}
}

// Result carries one successful upstream response. FinalURL is the request
// URL after any redirects; the asset-class classifier reads it, since the
// search endpoint answers with a redirect to the instrument's detail page.
type Result struct {
	Body     []byte
	Status   int
	FinalURL *url.URL
}

// Executor handles rate-limited, retrying HTTP execution for scraped pages
// and CSV exports.
type Executor struct {
	logger       *zap.Logger
	rateMgr      *rate.Manager
	http         *http.Client
	retryMax     int
	hostTag      string
	errorHandler func(status int, body []byte) error
}

// New creates an Executor. errorHandler is called on 4xx responses to produce
// a host-specific error. If nil, a default error is returned.
func New(
	logger *zap.Logger,
	rateMgr *rate.Manager,
	httpClient *http.Client,
	retryMax int,
	hostTag string,
	errorHandler func(status int, body []byte) error,
) *Executor {
	return &Executor{
		logger:       logger,
		rateMgr:      rateMgr,
		http:         httpClient,
		retryMax:     retryMax,
		hostTag:      hostTag,
		errorHandler: errorHandler,
	}
}

// Do executes req with rate limiting, retrying 5xx and network failures with
// backoff. 4xx responses are terminal: the markup behind a rejected scrape
// does not change between immediate retries. rateLimitKey scopes the token
// bucket per upstream surface.
func (e *Executor) Do(ctx context.Context, req *http.Request, rateLimitKey string) (*Result, error) {
	if e.rateMgr != nil {
		if err := e.rateMgr.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= e.retryMax; attempt++ {
		if attempt > 0 && req.GetBody != nil {
			if body, err := req.GetBody(); err == nil {
				req.Body = body
			}
		}

		start := time.Now()
		resp, err := e.http.Do(req)
		if err != nil {
			lastErr = err
			e.logger.Warn(e.hostTag+".http_failed",
				zap.String("url", req.URL.String()),
				zap.Error(err),
				zap.Int("attempt", attempt))
			select {
			case <-time.After(Backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		elapsed := time.Since(start)

		if readErr != nil {
			lastErr = fmt.Errorf("read body: %w", readErr)
			e.logger.Warn(e.hostTag+".read_failed",
				zap.String("url", req.URL.String()),
				zap.Error(readErr),
				zap.Int("attempt", attempt))
			select {
			case <-time.After(Backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 500 {
			e.logger.Warn(e.hostTag+".server_error",
				zap.Int("status", resp.StatusCode),
				zap.String("url", req.URL.String()),
				zap.Duration("latency", elapsed))
			lastErr = fmt.Errorf("%s server error: %d", e.hostTag, resp.StatusCode)
			select {
			case <-time.After(Backoff(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode >= 400 {
			if e.errorHandler != nil {
				return nil, e.errorHandler(resp.StatusCode, body)
			}
			return nil, fmt.Errorf("%w: %s returned %d", ErrUpstream, e.hostTag, resp.StatusCode)
		}

		finalURL := req.URL
		if resp.Request != nil && resp.Request.URL != nil {
			finalURL = resp.Request.URL
		}

		e.logger.Debug(e.hostTag+".http_success",
			zap.String("url", req.URL.String()),
			zap.String("final_url", finalURL.String()),
			zap.Int("status", resp.StatusCode),
			zap.Duration("elapsed", elapsed))

		return &Result{Body: body, Status: resp.StatusCode, FinalURL: finalURL}, nil
	}

	return nil, fmt.Errorf("%w: %s gave up after %d attempts: %w", ErrUpstream, e.hostTag, e.retryMax+1, lastErr)
}
