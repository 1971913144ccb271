package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/stripe/stripe-go/v82"
	"gorm.io/gorm"

	"portfolio_builder_echo/internal/models"
)

// WebhookFailurePolicy decides what happens when a verified completion event
// fails to update the portfolio. "retry" fails the HTTP response so Stripe
// redelivers; "deadletter" acknowledges the event and parks it for the
// redrive worker.
type WebhookFailurePolicy string

const (
	WebhookFailRetry      WebhookFailurePolicy = "retry"
	WebhookFailDeadLetter WebhookFailurePolicy = "deadletter"
)

// ParseWebhookFailurePolicy maps a config string onto a policy, defaulting
// to retry for anything unrecognized.
func ParseWebhookFailurePolicy(s string) WebhookFailurePolicy {
	if s == string(WebhookFailDeadLetter) {
		return WebhookFailDeadLetter
	}
	return WebhookFailRetry
}

// Webhook outcome statuses, returned in the acknowledgment body.
const (
	WebhookStatusProcessed    = "processed"
	WebhookStatusAlreadyPaid  = "already_paid"
	WebhookStatusDuplicate    = "duplicate"
	WebhookStatusIgnored      = "ignored"
	WebhookStatusSkipped      = "skipped"
	WebhookStatusDeadLettered = "dead_lettered"
)

// WebhookOutcome reports what a verified event delivery did.
type WebhookOutcome struct {
	EventID   string
	EventType string
	Status    string
}

// WebhookService is the single webhook ingestion path. Signature failure is
// the only condition that produces a non-success response under the
// dead-letter policy; everything else after verification is acknowledged so
// Stripe does not retry events we cannot act on.
type WebhookService struct {
	store    PortfolioStore
	payments PaymentClient
	db       *gorm.DB    // optional: callback history + dead letters
	cache    *RedisCache // optional: event dedup
	policy   WebhookFailurePolicy
	now      func() time.Time
}

func NewWebhookService(store PortfolioStore, payments PaymentClient, db *gorm.DB, cache *RedisCache, policy WebhookFailurePolicy) *WebhookService {
	return &WebhookService{
		store:    store,
		payments: payments,
		db:       db,
		cache:    cache,
		policy:   policy,
		now:      time.Now,
	}
}

const webhookDedupTTL = 24 * time.Hour

// HandleEvent verifies and applies one webhook delivery. rawBody must be the
// exact bytes Stripe sent; the signature covers the literal byte stream.
func (s *WebhookService) HandleEvent(ctx context.Context, rawBody []byte, sigHeader string) (*WebhookOutcome, error) {
	event, err := s.payments.VerifyWebhookSignature(rawBody, sigHeader)
	if err != nil {
		return nil, err
	}

	outcome := &WebhookOutcome{EventID: event.ID, EventType: string(event.Type)}

	s.recordCallback(event, rawBody)

	if dup := s.isDuplicate(ctx, event.ID); dup {
		outcome.Status = WebhookStatusDuplicate
		return outcome, nil
	}

	// Only session completion changes state; everything else is acknowledged
	// so Stripe stops delivering it.
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		outcome.Status = WebhookStatusIgnored
		return outcome, nil
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		log.Printf("webhook %s: malformed checkout.session payload: %v", event.ID, err)
		outcome.Status = WebhookStatusSkipped
		return outcome, nil
	}

	portfolioID := session.Metadata["portfolioId"]
	if portfolioID == "" {
		// Foreign or malformed event; failing it would only cause retries
		// that can never succeed.
		log.Printf("webhook %s: no portfolioId in session metadata", event.ID)
		outcome.Status = WebhookStatusSkipped
		return outcome, nil
	}

	applied, err := s.store.CompletePayment(ctx, portfolioID, s.now().UTC())
	if err != nil {
		if errors.Is(err, ErrPortfolioNotFound) {
			log.Printf("webhook %s: portfolio %s not found, skipping", event.ID, portfolioID)
			outcome.Status = WebhookStatusSkipped
			return outcome, nil
		}
		return s.handleUpdateFailure(ctx, outcome, portfolioID, rawBody, err)
	}

	if !applied {
		outcome.Status = WebhookStatusAlreadyPaid
		return outcome, nil
	}

	log.Printf("webhook %s: portfolio %s marked paid", event.ID, portfolioID)
	outcome.Status = WebhookStatusProcessed
	return outcome, nil
}

// handleUpdateFailure applies the configured failure policy to a verified
// completion event whose portfolio update failed. Every path that fails the
// response releases the dedup claim first, otherwise the redelivery would
// land on the duplicate branch and the completed payment would be lost.
func (s *WebhookService) handleUpdateFailure(ctx context.Context, outcome *WebhookOutcome, portfolioID string, rawBody []byte, cause error) (*WebhookOutcome, error) {
	if s.policy == WebhookFailDeadLetter && s.db != nil {
		deadLetter := models.WebhookDeadLetter{
			EventID:     outcome.EventID,
			EventType:   outcome.EventType,
			PortfolioID: portfolioID,
			Payload:     json.RawMessage(rawBody),
			LastError:   cause.Error(),
			Attempts:    1,
		}
		if err := s.db.Create(&deadLetter).Error; err != nil {
			log.Printf("webhook %s: dead-letter write failed: %v", outcome.EventID, err)
			s.releaseDedupClaim(ctx, outcome.EventID)
			return nil, fmt.Errorf("%w: portfolio update and dead-letter both failed: %v", ErrUpstream, cause)
		}
		log.Printf("webhook %s: portfolio %s update failed, dead-lettered: %v", outcome.EventID, portfolioID, cause)
		outcome.Status = WebhookStatusDeadLettered
		return outcome, nil
	}

	// Retry policy: fail the response so Stripe redelivers.
	s.releaseDedupClaim(ctx, outcome.EventID)
	return nil, cause
}

// recordCallback appends the delivery to the audit table. Best effort; the
// webhook response never depends on it.
func (s *WebhookService) recordCallback(event stripe.Event, rawBody []byte) {
	if s.db == nil {
		return
	}
	history := models.PaymentCallbackHistory{
		PaymentGateway: models.PaymentGatewayStripe,
		EventID:        event.ID,
		EventType:      string(event.Type),
		Payload:        json.RawMessage(rawBody),
	}
	if err := s.db.Create(&history).Error; err != nil {
		log.Printf("webhook %s: callback history write failed: %v", event.ID, err)
	}
}

func dedupKey(eventID string) string {
	return "webhook:event:" + eventID
}

// isDuplicate claims the event id in Redis. First claim wins; later
// deliveries of the same event are acknowledged without reprocessing. The
// store-level guard in CompletePayment still protects us if Redis is down.
func (s *WebhookService) isDuplicate(ctx context.Context, eventID string) bool {
	if s.cache == nil || eventID == "" {
		return false
	}
	claimed, err := s.cache.SetNX(ctx, dedupKey(eventID), true, webhookDedupTTL)
	if err != nil {
		log.Printf("webhook %s: dedup check failed, processing anyway: %v", eventID, err)
		return false
	}
	return !claimed
}

// releaseDedupClaim gives the event id back when processing failed after the
// claim, so the processor's redelivery is not mistaken for a duplicate.
func (s *WebhookService) releaseDedupClaim(ctx context.Context, eventID string) {
	if s.cache == nil || eventID == "" {
		return
	}
	if err := s.cache.Delete(ctx, dedupKey(eventID)); err != nil {
		log.Printf("webhook %s: dedup release failed: %v", eventID, err)
	}
}

// RedriveDeadLetters re-applies unresolved dead-lettered completions. Used by
// the worker, never by the request path. Returns how many rows it resolved.
func (s *WebhookService) RedriveDeadLetters(ctx context.Context, limit int) (int, error) {
	if s.db == nil {
		return 0, nil
	}

	var pending []models.WebhookDeadLetter
	err := s.db.WithContext(ctx).
		Where("resolved = ?", false).
		Order("created_at asc").
		Limit(limit).
		Find(&pending).Error
	if err != nil {
		return 0, err
	}

	resolved := 0
	for i := range pending {
		dl := &pending[i]

		_, err := s.store.CompletePayment(ctx, dl.PortfolioID, s.now().UTC())
		if err != nil && !errors.Is(err, ErrPortfolioNotFound) {
			dl.Attempts++
			dl.LastError = err.Error()
			s.db.Save(dl)
			log.Printf("redrive %s: portfolio %s still failing (attempt %d): %v", dl.EventID, dl.PortfolioID, dl.Attempts, err)
			continue
		}

		// Applied, already paid, or the portfolio is gone; either way there
		// is nothing left to redrive.
		dl.Resolved = true
		if err := s.db.Save(dl).Error; err != nil {
			log.Printf("redrive %s: failed to mark resolved: %v", dl.EventID, err)
			continue
		}
		resolved++
	}

	return resolved, nil
}
