package http

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// APIError is a structured error response.
type APIError struct {
	Status    int    `json:"status"`
	Code      string `json:"code"`    // Error code: bad_request, not_found, out_of_range, etc.
	Message   string `json:"message"` // Human-readable message
	RequestID string `json:"request_id,omitempty"`
}

// newError builds a JSON error response with a request ID.
func newError(c *fiber.Ctx, status int, code string, message string) error {
	return c.Status(status).JSON(APIError{
		Status:    status,
		Code:      code,
		Message:   message,
		RequestID: RequestIDFromCtx(c.UserContext()),
	})
}

// errBadRequest returns a 400 error.
func errBadRequest(c *fiber.Ctx, msg string) error {
	return newError(c, 400, "bad_request", msg)
}

// errNotFound returns a 404 error.
func errNotFound(c *fiber.Ctx, msg string) error {
	return newError(c, 404, "not_found", msg)
}

// errInternal returns a 500 error.
func errInternal(c *fiber.Ctx, msg string) error {
	return newError(c, 500, "internal_error", msg)
}

// errDomain maps core errors onto HTTP statuses, keeping the domain error code.
func errDomain(c *fiber.Ctx, err error) error {
	code := domain.ErrorCode(err)
	switch {
	case errors.Is(err, domain.ErrUnknownSpot):
		return newError(c, 404, code, err.Error())
	case errors.Is(err, domain.ErrOutOfRange), errors.Is(err, domain.ErrInvalidSpot):
		return newError(c, 422, code, err.Error())
	case errors.Is(err, domain.ErrPositionUnavailable), errors.Is(err, domain.ErrNoPosition):
		return newError(c, 400, code, err.Error())
	case errors.Is(err, domain.ErrEngineClosed):
		return newError(c, 503, code, err.Error())
	}
	return errInternal(c, err.Error())
}
