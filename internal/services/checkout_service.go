package services

import (
	"context"
	"fmt"
	"strings"
)

// DefaultPreviewPrice is the preview fee in minor currency units, used when
// no override is configured.
const DefaultPreviewPrice int64 = 100

// CheckoutService orchestrates checkout-session creation for a portfolio.
type CheckoutService struct {
	store    PortfolioStore
	payments PaymentClient
	price    int64
	currency string
}

func NewCheckoutService(store PortfolioStore, payments PaymentClient, price int64, currency string) *CheckoutService {
	if price <= 0 {
		price = DefaultPreviewPrice
	}
	if currency == "" {
		currency = "usd"
	}
	return &CheckoutService{store: store, payments: payments, price: price, currency: currency}
}

// CreateSession creates a remote checkout session for the portfolio and
// persists the pending payment marker. If the marker write fails after the
// remote session was created, no rollback is attempted; the webhook path is
// the source of truth for completion.
func (s *CheckoutService) CreateSession(ctx context.Context, portfolioID, origin string) (*CheckoutSessionResult, error) {
	if strings.TrimSpace(portfolioID) == "" {
		return nil, fmt.Errorf("%w: missing portfolio id", ErrInvalidRequest)
	}

	portfolio, err := s.store.GetPortfolioByID(ctx, portfolioID)
	if err != nil {
		return nil, err
	}
	if portfolio.IsPaid() {
		return nil, ErrAlreadyPaid
	}

	successURL, cancelURL := BuildRedirectURLs(origin, portfolio.ID)

	result, err := s.payments.CreateCheckoutSession(ctx, CheckoutSessionInput{
		PortfolioID:   portfolio.ID,
		PortfolioName: portfolio.Name,
		UserID:        portfolio.UserID,
		UnitAmount:    s.price,
		Currency:      s.currency,
		SuccessURL:    successURL,
		CancelURL:     cancelURL,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.SetPaymentPending(ctx, portfolio.ID, result.SessionID); err != nil {
		return nil, err
	}

	return result, nil
}

// BuildRedirectURLs derives the post-checkout redirect targets from the
// request origin.
func BuildRedirectURLs(origin, portfolioID string) (successURL, cancelURL string) {
	origin = strings.TrimRight(origin, "/")
	if origin == "" {
		origin = "http://localhost:8080"
	}
	base := origin + "/portfolios/" + portfolioID
	return base + "?payment=success", base + "?payment=cancelled"
}
