package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"portfolio_builder_echo/internal/models"
)

// PortfolioStore is the document-store port for portfolio documents.
// Payment mutations are field-level patches, never whole-document overwrites,
// so concurrent writers cannot clobber each other's fields.
type PortfolioStore interface {
	GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error)
	CreatePortfolio(ctx context.Context, p *models.Portfolio) error
	ListPortfoliosByUser(ctx context.Context, userID string) ([]models.Portfolio, error)

	// SetPaymentPending stamps the session id and moves paymentStatus to
	// "pending" without touching any other field.
	SetPaymentPending(ctx context.Context, id, sessionID string) error

	// CompletePayment moves paymentStatus to "paid" and sets paidAt, but only
	// if the portfolio is not already paid. Returns applied=false (and no
	// error) when the portfolio was paid before, so repeated webhook
	// deliveries are safe no-ops.
	CompletePayment(ctx context.Context, id string, at time.Time) (applied bool, err error)

	// SetPublished flips the public visibility flag.
	SetPublished(ctx context.Context, id string, published bool) error
}

const portfolioCollection = "portfolios"

// FirestorePortfolioStore implements PortfolioStore on Cloud Firestore.
type FirestorePortfolioStore struct {
	client *firestore.Client
}

func NewFirestorePortfolioStore(client *firestore.Client) *FirestorePortfolioStore {
	return &FirestorePortfolioStore{client: client}
}

func (s *FirestorePortfolioStore) doc(id string) *firestore.DocumentRef {
	return s.client.Collection(portfolioCollection).Doc(id)
}

func (s *FirestorePortfolioStore) GetPortfolioByID(ctx context.Context, id string) (*models.Portfolio, error) {
	snap, err := s.doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrPortfolioNotFound
		}
		return nil, fmt.Errorf("%w: firestore get portfolio: %v", ErrUpstream, err)
	}

	var p models.Portfolio
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("%w: firestore decode portfolio: %v", ErrUpstream, err)
	}
	p.ID = snap.Ref.ID
	return &p, nil
}

func (s *FirestorePortfolioStore) CreatePortfolio(ctx context.Context, p *models.Portfolio) error {
	ref := s.client.Collection(portfolioCollection).NewDoc()
	now := time.Now().UTC()
	p.ID = ref.ID
	p.PaymentStatus = models.PaymentStatusNone
	p.CreatedAt = now
	p.UpdatedAt = now

	if _, err := ref.Create(ctx, p); err != nil {
		return fmt.Errorf("%w: firestore create portfolio: %v", ErrUpstream, err)
	}
	return nil
}

func (s *FirestorePortfolioStore) ListPortfoliosByUser(ctx context.Context, userID string) ([]models.Portfolio, error) {
	iter := s.client.Collection(portfolioCollection).
		Where("userId", "==", userID).
		Documents(ctx)
	defer iter.Stop()

	var portfolios []models.Portfolio
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: firestore list portfolios: %v", ErrUpstream, err)
		}
		var p models.Portfolio
		if err := snap.DataTo(&p); err != nil {
			return nil, fmt.Errorf("%w: firestore decode portfolio: %v", ErrUpstream, err)
		}
		p.ID = snap.Ref.ID
		portfolios = append(portfolios, p)
	}
	return portfolios, nil
}

// SetPaymentPending runs in a transaction guarded on the paid state, so a
// checkout restart racing the completion webhook can never move a paid
// portfolio back to pending.
func (s *FirestorePortfolioStore) SetPaymentPending(ctx context.Context, id, sessionID string) error {
	ref := s.doc(id)

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		if paymentStatusOf(snap) == string(models.PaymentStatusPaid) {
			return ErrAlreadyPaid
		}

		return tx.Update(ref, []firestore.Update{
			{Path: "paymentSessionId", Value: sessionID},
			{Path: "paymentStatus", Value: string(models.PaymentStatusPending)},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			return ErrAlreadyPaid
		}
		if status.Code(err) == codes.NotFound {
			return ErrPortfolioNotFound
		}
		return fmt.Errorf("%w: firestore set payment pending: %v", ErrUpstream, err)
	}
	return nil
}

func paymentStatusOf(snap *firestore.DocumentSnapshot) string {
	current, err := snap.DataAt("paymentStatus")
	if err != nil {
		return ""
	}
	st, _ := current.(string)
	return st
}

// CompletePayment runs in a transaction so the status check and the field
// patch are atomic. Duplicate webhook deliveries land on the already-paid
// branch and leave the first paidAt untouched.
func (s *FirestorePortfolioStore) CompletePayment(ctx context.Context, id string, at time.Time) (bool, error) {
	ref := s.doc(id)
	applied := false

	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore may re-run the closure on contention; start from a clean
		// slate so a retry that finds the document paid reports a no-op.
		applied = false

		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}

		if paymentStatusOf(snap) == string(models.PaymentStatusPaid) {
			return nil // already paid, keep the original paidAt
		}

		applied = true
		return tx.Update(ref, []firestore.Update{
			{Path: "paymentStatus", Value: string(models.PaymentStatusPaid)},
			{Path: "paidAt", Value: at},
			{Path: "updatedAt", Value: firestore.ServerTimestamp},
		})
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, ErrPortfolioNotFound
		}
		return false, fmt.Errorf("%w: firestore complete payment: %v", ErrUpstream, err)
	}
	return applied, nil
}

func (s *FirestorePortfolioStore) SetPublished(ctx context.Context, id string, published bool) error {
	_, err := s.doc(id).Update(ctx, []firestore.Update{
		{Path: "published", Value: published},
		{Path: "updatedAt", Value: firestore.ServerTimestamp},
	})
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrPortfolioNotFound
		}
		return fmt.Errorf("%w: firestore set published: %v", ErrUpstream, err)
	}
	return nil
}
