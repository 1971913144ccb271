package handlers

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stripe/stripe-go/v82"

	"portfolio_builder_echo/internal/models"
	"portfolio_builder_echo/internal/services"
)

const testWebhookSecret = "whsec_test_secret"

// stubStore is a single-portfolio PortfolioStore for handler tests.
type stubStore struct {
	portfolio *models.Portfolio
}

func (s *stubStore) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	if s.portfolio == nil || s.portfolio.ID != id {
		return nil, services.ErrPortfolioNotFound
	}
	copied := *s.portfolio
	return &copied, nil
}

func (s *stubStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	s.portfolio = p
	return nil
}

func (s *stubStore) ListPortfoliosByUser(ctx context.Context, userID string) ([]models.Portfolio, error) {
	if s.portfolio == nil || s.portfolio.UserID != userID {
		return nil, nil
	}
	return []models.Portfolio{*s.portfolio}, nil
}

func (s *stubStore) SetPaymentPending(ctx context.Context, id, sessionID string) error {
	if s.portfolio == nil || s.portfolio.ID != id {
		return services.ErrPortfolioNotFound
	}
	if s.portfolio.PaymentStatus == models.PaymentStatusPaid {
		return services.ErrAlreadyPaid
	}
	s.portfolio.PaymentSessionID = sessionID
	s.portfolio.PaymentStatus = models.PaymentStatusPending
	return nil
}

func (s *stubStore) CompletePayment(ctx context.Context, id string, at time.Time) (bool, error) {
	if s.portfolio == nil || s.portfolio.ID != id {
		return false, services.ErrPortfolioNotFound
	}
	if s.portfolio.PaymentStatus == models.PaymentStatusPaid {
		return false, nil
	}
	s.portfolio.PaymentStatus = models.PaymentStatusPaid
	s.portfolio.PaidAt = &at
	return true, nil
}

func (s *stubStore) SetPublished(ctx context.Context, id string, published bool) error {
	if s.portfolio == nil || s.portfolio.ID != id {
		return services.ErrPortfolioNotFound
	}
	s.portfolio.Published = published
	return nil
}

type stubPaymentClient struct {
	verifier *services.StripeService
}

func (f *stubPaymentClient) CreateCheckoutSession(ctx context.Context, input services.CheckoutSessionInput) (*services.CheckoutSessionResult, error) {
	return &services.CheckoutSessionResult{
		SessionID: "cs_test_1",
		URL:       "https://checkout.stripe.test/pay/cs_test_1",
	}, nil
}

func (f *stubPaymentClient) VerifyWebhookSignature(rawBody []byte, sigHeader string) (stripe.Event, error) {
	if f.verifier == nil {
		f.verifier = services.NewStripeService("sk_test_fake", testWebhookSecret)
	}
	return f.verifier.VerifyWebhookSignature(rawBody, sigHeader)
}

func stripeSigHeader(payload []byte, secret string) string {
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func newPaymentFixture(portfolio *models.Portfolio) (*PaymentHandler, *stubStore) {
	store := &stubStore{portfolio: portfolio}
	payments := &stubPaymentClient{}
	checkout := services.NewCheckoutService(store, payments, 0, "")
	webhook := services.NewWebhookService(store, payments, nil, nil, services.WebhookFailRetry)
	return NewPaymentHandler(checkout, webhook, "https://builder.example.com"), store
}

func TestCreateCheckoutSessionHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantCode int
	}{
		{
			name:     "happy path",
			body:     `{"portfolioId":"p1"}`,
			wantCode: http.StatusOK,
		},
		{
			name:     "missing portfolio id",
			body:     `{}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown portfolio",
			body:     `{"portfolioId":"ghost"}`,
			wantCode: http.StatusNotFound,
		},
		{
			name:     "malformed body",
			body:     `{not json`,
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store := newPaymentFixture(&models.Portfolio{ID: "p1", UserID: "u1", Name: "Jane's Work"})

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/checkout-sessions", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			req.Header.Set("Origin", "https://builder.example.com")
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.CreateCheckoutSession(c)

			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error type: %v", err)
			}
			if code != tt.wantCode {
				t.Fatalf("status = %d; want %d", code, tt.wantCode)
			}

			if tt.wantCode != http.StatusOK {
				if store.portfolio.PaymentStatus == models.PaymentStatusPending {
					t.Error("store mutated on failed request")
				}
				return
			}

			var resp CreateCheckoutSessionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatalf("invalid response body: %v", err)
			}
			if resp.SessionID != "cs_test_1" || resp.URL == "" {
				t.Errorf("response = %+v", resp)
			}
			if store.portfolio.PaymentStatus != models.PaymentStatusPending {
				t.Errorf("paymentStatus = %q; want pending", store.portfolio.PaymentStatus)
			}
			if store.portfolio.PaymentSessionID != "cs_test_1" {
				t.Errorf("paymentSessionId = %q; want cs_test_1", store.portfolio.PaymentSessionID)
			}
		})
	}
}

func TestCreateCheckoutSessionHandlerAlreadyPaid(t *testing.T) {
	paidAt := time.Now().UTC()
	handler, store := newPaymentFixture(&models.Portfolio{
		ID:            "p1",
		UserID:        "u1",
		Name:          "Jane's Work",
		PaymentStatus: models.PaymentStatusPaid,
		PaidAt:        &paidAt,
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/checkout-sessions", strings.NewReader(`{"portfolioId":"p1"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := handler.CreateCheckoutSession(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("error = %v; want 400", err)
	}
	if store.portfolio.PaymentStatus != models.PaymentStatusPaid {
		t.Errorf("paymentStatus = %q; want paid", store.portfolio.PaymentStatus)
	}
}

func TestRequestOrigin(t *testing.T) {
	tests := []struct {
		name         string
		originHeader string
		appURL       string
		want         string
	}{
		{
			name:         "origin header wins",
			originHeader: "https://builder.example.com",
			appURL:       "https://app.example.com",
			want:         "https://builder.example.com",
		},
		{
			name:   "configured app url",
			appURL: "https://app.example.com",
			want:   "https://app.example.com",
		},
		{
			name: "request host fallback",
			want: "http://example.com",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "http://example.com/api/checkout-sessions", nil)
			if tt.originHeader != "" {
				req.Header.Set("Origin", tt.originHeader)
			}
			c := e.NewContext(req, httptest.NewRecorder())

			if got := requestOrigin(c, tt.appURL); got != tt.want {
				t.Errorf("requestOrigin() = %q; want %q", got, tt.want)
			}
		})
	}
}

func completedEventBody(portfolioID string) []byte {
	return []byte(fmt.Sprintf(`{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {
			"object": {
				"id": "cs_test_1",
				"object": "checkout.session",
				"metadata": {"portfolioId": %q, "userId": "u1"}
			}
		}
	}`, portfolioID))
}

func TestStripeWebhookHandler(t *testing.T) {
	tests := []struct {
		name     string
		body     []byte
		header   func([]byte) string
		wantCode int
		wantPaid bool
	}{
		{
			name:     "valid completion",
			body:     completedEventBody("p1"),
			header:   func(b []byte) string { return stripeSigHeader(b, testWebhookSecret) },
			wantCode: http.StatusOK,
			wantPaid: true,
		},
		{
			name:     "invalid signature",
			body:     completedEventBody("p1"),
			header:   func(b []byte) string { return stripeSigHeader(b, "whsec_wrong") },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "missing signature header",
			body:     completedEventBody("p1"),
			header:   func([]byte) string { return "" },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown portfolio acked",
			body:     completedEventBody("ghost"),
			header:   func(b []byte) string { return stripeSigHeader(b, testWebhookSecret) },
			wantCode: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, store := newPaymentFixture(&models.Portfolio{ID: "p1", UserID: "u1", Name: "Jane's Work"})

			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/webhooks/stripe", strings.NewReader(string(tt.body)))
			req.Header.Set("Stripe-Signature", tt.header(tt.body))
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			err := handler.StripeWebhook(c)

			code := rec.Code
			if he, ok := err.(*echo.HTTPError); ok {
				code = he.Code
			} else if err != nil {
				t.Fatalf("unexpected error type: %v", err)
			}
			if code != tt.wantCode {
				t.Fatalf("status = %d; want %d", code, tt.wantCode)
			}

			if tt.wantCode == http.StatusOK {
				var resp map[string]interface{}
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Fatalf("invalid response body: %v", err)
				}
				if received, _ := resp["received"].(bool); !received {
					t.Errorf("response missing received=true: %v", resp)
				}
			}

			paid := store.portfolio.PaymentStatus == models.PaymentStatusPaid
			if paid != tt.wantPaid {
				t.Errorf("portfolio paid = %v; want %v", paid, tt.wantPaid)
			}
		})
	}
}
