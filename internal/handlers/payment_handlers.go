package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"portfolio_builder_echo/internal/services"
)

// Signed webhook payloads are small; anything bigger is garbage.
const webhookBodyLimit = 1 << 20 // 1MiB

type PaymentHandler struct {
	checkout *services.CheckoutService
	webhook  *services.WebhookService
	appURL   string // fallback origin for checkout redirect URLs
}

func NewPaymentHandler(checkout *services.CheckoutService, webhook *services.WebhookService, appURL string) *PaymentHandler {
	return &PaymentHandler{checkout: checkout, webhook: webhook, appURL: appURL}
}

// CreateCheckoutSession handles POST /api/checkout-sessions
func (h *PaymentHandler) CreateCheckoutSession(c echo.Context) error {
	var req CreateCheckoutSessionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid JSON payload")
	}

	if strings.TrimSpace(req.PortfolioID) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing portfolio id")
	}

	result, err := h.checkout.CreateSession(c.Request().Context(), req.PortfolioID, requestOrigin(c, h.appURL))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidRequest):
			return echo.NewHTTPError(http.StatusBadRequest, "Missing portfolio id")
		case errors.Is(err, services.ErrAlreadyPaid):
			return echo.NewHTTPError(http.StatusBadRequest, "Portfolio is already paid")
		case errors.Is(err, services.ErrPortfolioNotFound):
			return echo.NewHTTPError(http.StatusNotFound, "Portfolio not found")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to create checkout session: "+err.Error())
		}
	}

	return c.JSON(http.StatusOK, CreateCheckoutSessionResponse{
		SessionID: result.SessionID,
		URL:       result.URL,
	})
}

// StripeWebhook handles POST /webhooks/stripe. The body is read raw and
// passed through untouched; the signature is computed over the exact bytes
// Stripe sent.
func (h *PaymentHandler) StripeWebhook(c echo.Context) error {
	c.Request().Body = http.MaxBytesReader(c.Response(), c.Request().Body, webhookBodyLimit)
	payload, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}

	sigHeader := c.Request().Header.Get("Stripe-Signature")

	outcome, err := h.webhook.HandleEvent(c.Request().Context(), payload, sigHeader)
	if err != nil {
		if errors.Is(err, services.ErrSignatureInvalid) {
			return echo.NewHTTPError(http.StatusBadRequest, "Invalid webhook signature")
		}
		// Post-verification failure under the retry policy: a non-2xx status
		// makes Stripe redeliver the event.
		return echo.NewHTTPError(http.StatusInternalServerError, "Failed to process webhook event")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"received": true,
		"status":   outcome.Status,
	})
}
