package services

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// CheckoutSessionInput carries everything needed to open a hosted checkout
// for one portfolio. Metadata is the only correlation mechanism available to
// the webhook later, so PortfolioID/UserID must always be set.
type CheckoutSessionInput struct {
	PortfolioID   string
	PortfolioName string
	UserID        string
	UnitAmount    int64 // minor currency units
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// CheckoutSessionResult is the subset of the remote session this system keeps.
type CheckoutSessionResult struct {
	SessionID string
	URL       string
}

// PaymentClient abstracts the payment processor so the services stay
// testable with fakes.
type PaymentClient interface {
	CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSessionResult, error)
	VerifyWebhookSignature(rawBody []byte, sigHeader string) (stripe.Event, error)
}

// StripeService implements PaymentClient against the Stripe SDK.
type StripeService struct {
	api           *client.API
	webhookSecret string
}

// NewStripeService builds a Stripe client from the server-side secret key and
// the webhook signing secret. Keys are injected, not read from globals.
func NewStripeService(secretKey, webhookSecret string) *StripeService {
	api := &client.API{}
	api.Init(secretKey, nil)

	return &StripeService{
		api:           api,
		webhookSecret: webhookSecret,
	}
}

// CreateCheckoutSession opens a single-payment checkout session with one line
// item for the portfolio preview fee.
func (s *StripeService) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSessionResult, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(input.SuccessURL),
		CancelURL:  stripe.String(input.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(input.Currency),
					UnitAmount: stripe.Int64(input.UnitAmount),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("Portfolio preview for %s", input.PortfolioName)),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.Context = ctx
	params.AddMetadata("portfolioId", input.PortfolioID)
	params.AddMetadata("userId", input.UserID)

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%w: stripe create checkout session: %v", ErrUpstream, err)
	}

	return &CheckoutSessionResult{
		SessionID: sess.ID,
		URL:       sess.URL,
	}, nil
}

// VerifyWebhookSignature validates the Stripe-Signature header over the exact
// raw request bytes. The body must not be re-serialized before this call; the
// signature covers the literal byte stream.
func (s *StripeService) VerifyWebhookSignature(rawBody []byte, sigHeader string) (stripe.Event, error) {
	event, err := webhook.ConstructEventWithOptions(rawBody, sigHeader, s.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}
	return event, nil
}
