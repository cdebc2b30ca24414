package middleware

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/popmint/popmint/backend/models"
	"github.com/popmint/popmint/popmint/queue"
	"github.com/popmint/popmint/popmint/services"
	"github.com/popmint/popmint/popmint/settlement"
	"github.com/popmint/popmint/popmint/zkproof"
)

// CustomErrorHandler maps service-layer sentinel errors onto HTTP status
// codes with stable machine-readable error codes. Anything unrecognized is
// a 500 with no internal detail leaked.
func CustomErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	machineCode := "INTERNAL_SERVER_ERROR"
	message := "Internal Server Error"

	switch {
	case errors.Is(err, services.ErrInvalidArgument):
		code, machineCode, message = fiber.StatusBadRequest, "INVALID_ARGUMENT", err.Error()
	case errors.Is(err, zkproof.ErrInvalidProof):
		code, machineCode, message = fiber.StatusBadRequest, "INVALID_PROOF", "eligibility proof rejected"
	case errors.Is(err, services.ErrUnauthorized):
		code, machineCode, message = fiber.StatusForbidden, "WALLET_NOT_OWNER", err.Error()
	case errors.Is(err, services.ErrOrganizerClaim):
		code, machineCode, message = fiber.StatusForbidden, "ORGANIZER_SELF_CLAIM", err.Error()
	case errors.Is(err, services.ErrNotFound):
		code, machineCode, message = fiber.StatusNotFound, "NOT_FOUND", err.Error()
	case errors.Is(err, services.ErrSessionExpired):
		code, machineCode, message = fiber.StatusGone, "SESSION_EXPIRED", err.Error()
	case errors.Is(err, services.ErrCapacityExceeded):
		code, machineCode, message = fiber.StatusConflict, "CAPACITY_EXCEEDED", err.Error()
	case errors.Is(err, services.ErrAlreadyClaimed):
		code, machineCode, message = fiber.StatusConflict, "ALREADY_CLAIMED", err.Error()
	case errors.Is(err, services.ErrVaultMinted):
		code, machineCode, message = fiber.StatusConflict, "VAULT_MINTED", err.Error()
	case errors.Is(err, services.ErrInsufficientFunding):
		code, machineCode, message = fiber.StatusPaymentRequired, "INSUFFICIENT_FUNDING", err.Error()
	case errors.Is(err, queue.ErrQueueUnavailable):
		code, machineCode, message = fiber.StatusServiceUnavailable, "QUEUE_UNAVAILABLE", "job queue unavailable"
	case errors.Is(err, settlement.ErrSettlementUnavailable):
		code, machineCode, message = fiber.StatusServiceUnavailable, "SETTLEMENT_UNAVAILABLE", "settlement network unavailable"
	default:
		var fiberErr *fiber.Error
		if errors.As(err, &fiberErr) {
			code = fiberErr.Code
			message = fiberErr.Message
			machineCode = "HTTP_ERROR"
		}
	}

	if code >= 500 {
		slog.Error("Request failed",
			slog.String("type", "http"),
			slog.String("path", c.Path()),
			slog.Any("error", err),
		)
	}

	return c.Status(code).JSON(models.NewErrorResponse(machineCode, message, nil))
}

// SecurityHeaders adds security headers to responses
func SecurityHeaders() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
		return c.Next()
	}
}
