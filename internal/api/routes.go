package api

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewApp builds the fiber app with the shared middleware chain. Handlers
// render their own errors; the app-level ErrorHandler is the backstop for
// anything that slips past Recover.
func NewApp(logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "comdirect-adapter",
		DisableStartupMessage: true,
		ErrorHandler:          renderError,
	})

	app.Use(RequestID())
	app.Use(RequestLogger(logger))
	app.Use(Metrics())
	app.Use(Recover(logger))

	return app
}

// RegisterRoutes registers all HTTP routes on the Fiber app. nc may be nil
// when eventing is disabled; the health check reports it without degrading.
func RegisterRoutes(app *fiber.App, nc *nats.Conn, h *Handler) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		checks := map[string]string{
			"store": "ok",
			"nats":  "ok",
		}
		status := "ok"
		code := fiber.StatusOK

		healthCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := h.store.HealthCheck(healthCtx); err != nil {
			checks["store"] = err.Error()
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		if nc == nil {
			checks["nats"] = "disabled"
		} else if !nc.IsConnected() {
			checks["nats"] = "disconnected"
			status = "degraded"
			code = fiber.StatusServiceUnavailable
		}

		return c.Status(code).JSON(fiber.Map{
			"status":  status,
			"service": "comdirect-adapter",
			"checks":  checks,
		})
	})

	// API routes
	v1 := app.Group("/v1")
	v1.Get("/instruments/:instrument_id", h.GetInstrument)
	v1.Get("/instruments", h.ListInstruments)
	v1.Get("/quotes/:instrument_id", h.GetQuote)

	// The CSV-backed history endpoint predates the v1 prefix and stays
	// unversioned for its existing consumers.
	app.Get("/history/:instrument_id", h.GetHistory)
}
