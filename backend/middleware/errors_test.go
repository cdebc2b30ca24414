package middleware

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"

	"github.com/popmint/popmint/popmint/queue"
	"github.com/popmint/popmint/popmint/services"
	"github.com/popmint/popmint/popmint/settlement"
	"github.com/popmint/popmint/popmint/zkproof"
)

func TestCustomErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid argument", services.ErrInvalidArgument, fiber.StatusBadRequest, "INVALID_ARGUMENT"},
		{"wrapped invalid argument", fmt.Errorf("%w: name required", services.ErrInvalidArgument), fiber.StatusBadRequest, "INVALID_ARGUMENT"},
		{"invalid proof", zkproof.ErrInvalidProof, fiber.StatusBadRequest, "INVALID_PROOF"},
		{"not owner", services.ErrUnauthorized, fiber.StatusForbidden, "WALLET_NOT_OWNER"},
		{"organizer self claim", services.ErrOrganizerClaim, fiber.StatusForbidden, "ORGANIZER_SELF_CLAIM"},
		{"not found", services.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
		{"session expired", services.ErrSessionExpired, fiber.StatusGone, "SESSION_EXPIRED"},
		{"capacity exceeded", services.ErrCapacityExceeded, fiber.StatusConflict, "CAPACITY_EXCEEDED"},
		{"already claimed", services.ErrAlreadyClaimed, fiber.StatusConflict, "ALREADY_CLAIMED"},
		{"vault minted", services.ErrVaultMinted, fiber.StatusConflict, "VAULT_MINTED"},
		{"insufficient funding", services.ErrInsufficientFunding, fiber.StatusPaymentRequired, "INSUFFICIENT_FUNDING"},
		{"queue down", queue.ErrQueueUnavailable, fiber.StatusServiceUnavailable, "QUEUE_UNAVAILABLE"},
		{"settlement down", settlement.ErrSettlementUnavailable, fiber.StatusServiceUnavailable, "SETTLEMENT_UNAVAILABLE"},
		{"fiber error", fiber.ErrMethodNotAllowed, fiber.StatusMethodNotAllowed, "HTTP_ERROR"},
		{"unknown error", fmt.Errorf("broken pipe"), fiber.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{ErrorHandler: CustomErrorHandler})
			app.Get("/boom", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
			if err != nil {
				t.Fatalf("app.Test() error = %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Code    string `json:"code"`
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Success {
				t.Error("success = true on error response")
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("error code = %q, want %q", body.Error.Code, tt.wantCode)
			}
		})
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: CustomErrorHandler})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return fmt.Errorf("pq: password authentication failed for user admin")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil))
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error.Message != "Internal Server Error" {
		t.Errorf("message = %q leaks internal detail", body.Error.Message)
	}
}
