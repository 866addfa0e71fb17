package billing

import "context"

// CheckoutMode selects a one-off payment or a recurring subscription.
type CheckoutMode string

const (
	ModePayment      CheckoutMode = "payment"
	ModeSubscription CheckoutMode = "subscription"
)

// ModeFor returns the checkout mode used to sell plan.
func ModeFor(plan Plan) CheckoutMode {
	if plan == PlanMonthly {
		return ModeSubscription
	}
	return ModePayment
}

// CheckoutRequest describes a hosted checkout to create.
type CheckoutRequest struct {
	Plan        Plan
	AmountCents int64
	Currency    Currency
	Mode        CheckoutMode
	Metadata    map[string]string
	SuccessURL  string
	CancelURL   string
}

// Checkout is a created hosted checkout. URL is empty when the processor
// needs no redirect.
type Checkout struct {
	ID  string
	URL string
}

// CheckoutOutcome is the processor state normalized across vendors.
type CheckoutOutcome string

const (
	OutcomePaid    CheckoutOutcome = "paid"
	OutcomeOpen    CheckoutOutcome = "open"
	OutcomeExpired CheckoutOutcome = "expired"
	OutcomeFailed  CheckoutOutcome = "failed"
)

// CheckoutResult is the processor's view of a checkout.
type CheckoutResult struct {
	ID               string
	Outcome          CheckoutOutcome
	RawStatus        string
	AmountTotalCents int64
	Currency         string
	Metadata         map[string]string
	PaymentReference string
	SubscriptionID   string
}

// CardProcessor is a hosted card checkout provider.
type CardProcessor interface {
	Name() string
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	RetrieveCheckout(ctx context.Context, id string) (*CheckoutResult, error)
}
