package api

import (
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Checker-Finance/comdirect-adapter/internal/metrics"
)

const requestIDKey = "request_id"

// RequestID guarantees every request carries an id. An inbound X-Request-ID
// survives so ids stay stable across proxies; otherwise a fresh uuid is
// minted. The id lands in locals for the error envelope and is echoed on the
// response.
func RequestID() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rid := c.Get(fiber.HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Locals(requestIDKey, rid)
		c.Set(fiber.HeaderXRequestID, rid)
		return c.Next()
	}
}

func requestID(c *fiber.Ctx) string {
	if rid, ok := c.Locals(requestIDKey).(string); ok {
		return rid
	}
	return ""
}

// RequestLogger writes one line per finished request. Errors still in flight
// at this point are rendered first so the logged status is the one the
// client sees.
func RequestLogger(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		if chainErr := c.Next(); chainErr != nil {
			if err := c.App().Config().ErrorHandler(c, chainErr); err != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}
		logger.Info("http.request",
			zap.String("request_id", requestID(c)),
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", clientIP(c)),
		)
		return nil
	}
}

// clientIP prefers the first X-Forwarded-For hop set by the ingress.
func clientIP(c *fiber.Ctx) string {
	if fwd := c.Get(fiber.HeaderXForwardedFor); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		return strings.TrimSpace(first)
	}
	return c.IP()
}

// Metrics times every request into the route-labeled histogram. The route
// pattern rather than the raw path keeps label cardinality bounded.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		route := c.Route().Path
		metrics.HTTPRequestDuration.
			WithLabelValues(route, c.Method(), strconv.Itoa(c.Response().StatusCode())).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// Recover converts handler panics into a 500 envelope instead of tearing
// down the process. It sits innermost so Metrics and RequestLogger observe
// the rendered status, and it renders routing errors for the same reason.
func Recover(logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var chainErr error
		func() {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("http.panic",
						zap.Any("panic", r),
						zap.String("path", c.Path()),
						zap.ByteString("stack", debug.Stack()),
					)
					chainErr = fmt.Errorf("panic: %v", r)
				}
			}()
			chainErr = c.Next()
		}()
		if chainErr != nil {
			return renderError(c, chainErr)
		}
		return nil
	}
}
