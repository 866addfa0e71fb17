package billing

import (
	"time"

	"github.com/google/uuid"
)

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionInactive  SubscriptionStatus = "inactive"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionPastDue   SubscriptionStatus = "past_due"
)

// MonthlyCycle is the length of one monthly billing cycle.
const MonthlyCycle = 30 * 24 * time.Hour

// Subscription is the single entitlement grant row of a user.
// EndDate is nil for one-time purchases.
type Subscription struct {
	ID                      uuid.UUID          `json:"id"`
	UserID                  uuid.UUID          `json:"user_id"`
	Plan                    Plan               `json:"plan"`
	ProcessorSubscriptionID string             `json:"processor_subscription_id,omitempty"`
	Status                  SubscriptionStatus `json:"status"`
	StartDate               time.Time          `json:"start_date"`
	EndDate                 *time.Time         `json:"end_date,omitempty"`
	LastPaymentDate         time.Time          `json:"last_payment_date"`
	CreatedAt               time.Time          `json:"created_at"`
	UpdatedAt               time.Time          `json:"updated_at"`
}

// Merge overwrites existing with the grant in s, keeping the existing id,
// creation time and processor subscription id when s has none.
func (s *Subscription) Merge(existing *Subscription) {
	s.ID = existing.ID
	s.CreatedAt = existing.CreatedAt
	if s.ProcessorSubscriptionID == "" {
		s.ProcessorSubscriptionID = existing.ProcessorSubscriptionID
	}
}
