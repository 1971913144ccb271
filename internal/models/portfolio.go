package models

import (
	"time"
)

type PaymentStatus string

const (
	PaymentStatusNone    PaymentStatus = "none"
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
)

// Portfolio is a portfolio-site document stored in Firestore.
// The document id doubles as the public site id.
type Portfolio struct {
	ID         string `firestore:"-" json:"id"`
	UserID     string `firestore:"userId" json:"user_id"`
	Name       string `firestore:"name" json:"name"`
	TemplateID string `firestore:"templateId" json:"template_id"`
	Published  bool   `firestore:"published" json:"published"`

	// Payment fields, owned by the checkout/webhook flow.
	// paymentStatus is monotonic: none -> pending -> paid.
	PaymentSessionID string        `firestore:"paymentSessionId,omitempty" json:"payment_session_id,omitempty"`
	PaymentStatus    PaymentStatus `firestore:"paymentStatus,omitempty" json:"payment_status"`
	PaidAt           *time.Time    `firestore:"paidAt,omitempty" json:"paid_at,omitempty"`

	CreatedAt time.Time `firestore:"createdAt" json:"created_at"`
	UpdatedAt time.Time `firestore:"updatedAt" json:"updated_at"`
}

// IsPaid reports whether the portfolio reached the terminal payment state.
func (p *Portfolio) IsPaid() bool {
	return p.PaymentStatus == PaymentStatusPaid
}
