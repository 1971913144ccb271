package models

import (
	"encoding/json"
	"time"

	"gorm.io/gorm"
)

type PaymentGateway string

const (
	PaymentGatewayStripe PaymentGateway = "stripe"
)

// PaymentCallbackHistory records every verified webhook delivery, including
// duplicates and event types we ignore. Audit only, never read on the hot path.
type PaymentCallbackHistory struct {
	ID             uint            `gorm:"primaryKey" json:"id"`
	PaymentGateway PaymentGateway  `gorm:"type:varchar(50);not null" json:"payment_gateway"`
	EventID        string          `gorm:"type:varchar(100);index" json:"event_id"`
	EventType      string          `gorm:"type:varchar(100)" json:"event_type"`
	Payload        json.RawMessage `gorm:"type:jsonb" json:"payload"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	DeletedAt      gorm.DeletedAt  `gorm:"index" json:"deleted_at,omitempty"`
}

// WebhookDeadLetter holds verified completion events whose portfolio update
// failed after the webhook was already acknowledged. The redrive worker
// re-applies them until resolved.
type WebhookDeadLetter struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	EventID     string          `gorm:"type:varchar(100);uniqueIndex" json:"event_id"`
	EventType   string          `gorm:"type:varchar(100)" json:"event_type"`
	PortfolioID string          `gorm:"type:varchar(100);index" json:"portfolio_id"`
	Payload     json.RawMessage `gorm:"type:jsonb" json:"payload"`
	LastError   string          `gorm:"type:text" json:"last_error"`
	Attempts    int             `gorm:"default:0" json:"attempts"`
	Resolved    bool            `gorm:"default:false;index" json:"resolved"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}
