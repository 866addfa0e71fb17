package billing

import (
	"context"

	"github.com/google/uuid"
)

// AttemptStore is the payment ledger. Attempts are never deleted.
type AttemptStore interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, id uuid.UUID) (*Attempt, error)
	GetAttemptBySessionID(ctx context.Context, sessionID string) (*Attempt, error)

	// LatestSucceededAttempt returns the user's most recently succeeded
	// attempt, or ErrAttemptNotFound when the user has none.
	LatestSucceededAttempt(ctx context.Context, userID uuid.UUID) (*Attempt, error)

	// UpdateAttemptStatus applies u only while the stored status is one of
	// from, as a single conditional write. It returns ErrInvalidTransition
	// when the stored status is not in from.
	UpdateAttemptStatus(ctx context.Context, id uuid.UUID, from []Status, u AttemptUpdate) (*Attempt, error)
}

// SubscriptionStore keeps at most one subscription per user.
type SubscriptionStore interface {
	GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*Subscription, error)

	// UpsertSubscription inserts sub or overwrites the user's existing row
	// using Subscription.Merge, and returns the stored row.
	UpsertSubscription(ctx context.Context, sub *Subscription) (*Subscription, error)

	SetSubscriptionStatus(ctx context.Context, userID uuid.UUID, status SubscriptionStatus) error
}
