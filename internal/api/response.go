package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/Checker-Finance/comdirect-adapter/internal/basedata"
	"github.com/Checker-Finance/comdirect-adapter/internal/comdirect"
	"github.com/Checker-Finance/comdirect-adapter/internal/history"
	"github.com/Checker-Finance/comdirect-adapter/internal/httpclient"
	"github.com/Checker-Finance/comdirect-adapter/internal/quotes"
	"github.com/Checker-Finance/comdirect-adapter/internal/store"
	"github.com/Checker-Finance/comdirect-adapter/pkg/model"
)

// ErrorBody is the uniform error shape. Code is machine-readable, message is
// the wrapped error chain, request_id ties the response to the log line.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type errorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// InstrumentListResponse wraps snapshot listings.
type InstrumentListResponse struct {
	Count       int                `json:"count"`
	Instruments []model.Instrument `json:"instruments"`
}

// errorStatus maps service sentinel errors onto an HTTP status and error
// code. Anything unrecognized is an internal error.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrInvalidIdentifier),
		errors.Is(err, model.ErrInvalidNotation),
		errors.Is(err, history.ErrInvalidInterval):
		return fiber.StatusBadRequest, "invalid_input"
	case errors.Is(err, comdirect.ErrUnknownAssetClass):
		return fiber.StatusNotFound, "not_found"
	case errors.Is(err, quotes.ErrUnsupportedAssetClass):
		return fiber.StatusNotImplemented, "unsupported_asset_class"
	case errors.Is(err, basedata.ErrVenueNotMapped),
		errors.Is(err, httpclient.ErrUpstream):
		return fiber.StatusBadGateway, "upstream_unavailable"
	case errors.Is(err, store.ErrNoDurableStore):
		return fiber.StatusServiceUnavailable, "unavailable"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}

// writeError renders a service error as the uniform envelope. Handlers call
// it and return nil so nothing propagates twice.
func writeError(c *fiber.Ctx, err error) error {
	status, code := errorStatus(err)
	return c.Status(status).JSON(errorEnvelope{Error: ErrorBody{
		Code:      code,
		Message:   err.Error(),
		RequestID: requestID(c),
	}})
}

// badRequest rejects a request that never reached a service, such as an
// unparsable query value.
func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(errorEnvelope{Error: ErrorBody{
		Code:      "invalid_input",
		Message:   msg,
		RequestID: requestID(c),
	}})
}

// renderError handles errors that escaped the handler chain: fiber routing
// errors (unmatched path, oversized body) and panics converted by Recover.
// It doubles as the app-level ErrorHandler.
func renderError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code := "internal_error"
		switch {
		case fe.Code == fiber.StatusNotFound:
			code = "not_found"
		case fe.Code >= 400 && fe.Code < 500:
			code = "invalid_input"
		}
		return c.Status(fe.Code).JSON(errorEnvelope{Error: ErrorBody{
			Code:      code,
			Message:   fe.Message,
			RequestID: requestID(c),
		}})
	}
	return writeError(c, err)
}
