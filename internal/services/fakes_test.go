package services

import (
	"context"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"

	"portfolio_builder_echo/internal/models"
)

// memoryPortfolioStore is an in-memory PortfolioStore for tests.
type memoryPortfolioStore struct {
	mu         sync.Mutex
	portfolios map[string]*models.Portfolio

	pendingErr  error // injected failure for SetPaymentPending
	completeErr error // injected failure for CompletePayment

	pendingCalls  int
	completeCalls int
}

func newMemoryPortfolioStore(portfolios ...*models.Portfolio) *memoryPortfolioStore {
	s := &memoryPortfolioStore{portfolios: make(map[string]*models.Portfolio)}
	for _, p := range portfolios {
		s.portfolios[p.ID] = p
	}
	return s
}

func (s *memoryPortfolioStore) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil, ErrPortfolioNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *memoryPortfolioStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	p.PaymentStatus = models.PaymentStatusNone
	p.CreatedAt = now
	p.UpdatedAt = now
	copied := *p
	s.portfolios[p.ID] = &copied
	return nil
}

func (s *memoryPortfolioStore) ListPortfoliosByUser(ctx context.Context, userID string) ([]models.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Portfolio
	for _, p := range s.portfolios {
		if p.UserID == userID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *memoryPortfolioStore) SetPaymentPending(ctx context.Context, id, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingCalls++
	if s.pendingErr != nil {
		return s.pendingErr
	}
	p, ok := s.portfolios[id]
	if !ok {
		return ErrPortfolioNotFound
	}
	if p.PaymentStatus == models.PaymentStatusPaid {
		return ErrAlreadyPaid
	}
	p.PaymentSessionID = sessionID
	p.PaymentStatus = models.PaymentStatusPending
	return nil
}

func (s *memoryPortfolioStore) CompletePayment(ctx context.Context, id string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completeCalls++
	if s.completeErr != nil {
		return false, s.completeErr
	}
	p, ok := s.portfolios[id]
	if !ok {
		return false, ErrPortfolioNotFound
	}
	if p.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	p.PaymentStatus = models.PaymentStatusPaid
	p.PaidAt = &at
	return true, nil
}

func (s *memoryPortfolioStore) SetPublished(ctx context.Context, id string, published bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return ErrPortfolioNotFound
	}
	p.Published = published
	return nil
}

func (s *memoryPortfolioStore) snapshot(id string) *models.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.portfolios[id]
	if !ok {
		return nil
	}
	copied := *p
	return &copied
}

// fakePaymentClient records checkout creation calls and delegates signature
// verification to a real StripeService so the HMAC path is exercised.
type fakePaymentClient struct {
	verifier *StripeService

	createErr   error
	createCalls int
	lastInput   CheckoutSessionInput
}

func (f *fakePaymentClient) CreateCheckoutSession(ctx context.Context, input CheckoutSessionInput) (*CheckoutSessionResult, error) {
	f.createCalls++
	f.lastInput = input
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &CheckoutSessionResult{
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.test/pay/cs_test_1",
	}, nil
}

func (f *fakePaymentClient) VerifyWebhookSignature(rawBody []byte, sigHeader string) (stripe.Event, error) {
	if f.verifier == nil {
		f.verifier = NewStripeService("sk_test_fake", testWebhookSecret)
	}
	return f.verifier.VerifyWebhookSignature(rawBody, sigHeader)
}
