package billing

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Plan is a purchasable entitlement.
type Plan string

const (
	PlanOneTime Plan = "one_time"
	PlanMonthly Plan = "monthly"
)

// ParsePlan validates a plan name.
func ParsePlan(s string) (Plan, error) {
	switch p := Plan(s); p {
	case PlanOneTime, PlanMonthly:
		return p, nil
	}
	return "", ErrInvalidPlan
}

type Method string

const (
	MethodCard   Method = "card"
	MethodCrypto Method = "crypto_transfer"
)

type Currency string

const (
	CurrencyUSD  Currency = "usd"
	CurrencyUSDT Currency = "usdt"
)

// Status is the state of a payment attempt.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRequiresAction Status = "requires_action"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusAbandoned      Status = "abandoned"
)

var transitions = map[Status][]Status{
	StatusPending:        {StatusSucceeded, StatusFailed, StatusRequiresAction, StatusAbandoned},
	StatusRequiresAction: {StatusSucceeded, StatusFailed, StatusAbandoned},
}

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// CanTransition reports whether from may move to to.
func CanTransition(from, to Status) bool {
	return slices.Contains(transitions[from], to)
}

// Transition returns to when the move is allowed and ErrInvalidTransition otherwise.
func Transition(from, to Status) (Status, error) {
	if !CanTransition(from, to) {
		return from, ErrInvalidTransition
	}
	return to, nil
}

// SourcesFor lists the statuses that may move to to.
func SourcesFor(to Status) []Status {
	var from []Status
	for _, s := range []Status{StatusPending, StatusRequiresAction} {
		if CanTransition(s, to) {
			from = append(from, s)
		}
	}
	return from
}

// CardMetadata correlates a card attempt with the processor checkout.
type CardMetadata struct {
	SessionID string `json:"session_id"`
	Processor string `json:"processor"`
}

// CryptoMetadata holds what the user was asked to transfer.
type CryptoMetadata struct {
	ExpectedUSD   decimal.Decimal `json:"expected_usd"`
	WalletAddress string          `json:"wallet_address"`
}

// Metadata is the typed correlation data of an attempt. Extra is for
// vendor debug fields only.
type Metadata struct {
	Plan          string            `json:"plan"`
	Card          *CardMetadata     `json:"card,omitempty"`
	Crypto        *CryptoMetadata   `json:"crypto,omitempty"`
	FailureReason string            `json:"failure_reason,omitempty"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Attempt is one initiated payment.
type Attempt struct {
	ID            uuid.UUID       `json:"id"`
	UserID        uuid.UUID       `json:"user_id"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      Currency        `json:"currency"`
	Method        Method          `json:"method"`
	Processor     string          `json:"processor,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	Status        Status          `json:"status"`
	Metadata      Metadata        `json:"metadata"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// AttemptUpdate is applied together with a status transition.
// Empty fields are left unchanged.
type AttemptUpdate struct {
	Status        Status
	TransactionID string
	FailureReason string
	At            time.Time
}

// Apply writes u into a. In-memory stores use it directly.
func (u AttemptUpdate) Apply(a *Attempt) {
	a.Status = u.Status
	if u.TransactionID != "" {
		a.TransactionID = u.TransactionID
	}
	if u.FailureReason != "" {
		a.Metadata.FailureReason = u.FailureReason
	}
	a.UpdatedAt = u.At
}
