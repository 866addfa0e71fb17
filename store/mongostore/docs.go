package mongostore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Documents keep ids and amounts as strings so they stay readable in the
// shell and sort the same way they print.

type userDoc struct {
	ID                string     `bson:"_id"`
	Email             string     `bson:"email"`
	PasswordHash      string     `bson:"password_hash,omitempty"`
	GoogleID          string     `bson:"google_id,omitempty"`
	FullName          string     `bson:"full_name,omitempty"`
	IsActive          bool       `bson:"is_active"`
	EntitlementState  string     `bson:"entitlement_state"`
	MonthlyCycleEnd   *time.Time `bson:"monthly_cycle_end"`
	FreeUnitsUsed     int        `bson:"free_units_used"`
	MonthlyUnitsUsed  int        `bson:"monthly_units_used"`
	LastActionAt      *time.Time `bson:"last_action_at"`
	SubscriptionID    string     `bson:"subscription_id,omitempty"`
	SubscriptionStart *time.Time `bson:"subscription_start"`
	LastResetCycleEnd *time.Time `bson:"last_reset_cycle_end"`
	CreatedAt         time.Time  `bson:"created_at"`
	UpdatedAt         time.Time  `bson:"updated_at"`
}

func toUserDoc(u *identity.User) userDoc {
	d := userDoc{
		ID:                u.ID.String(),
		Email:             u.Email,
		PasswordHash:      u.PasswordHash,
		GoogleID:          u.GoogleID,
		FullName:          u.FullName,
		IsActive:          u.IsActive,
		EntitlementState:  string(u.EntitlementState),
		MonthlyCycleEnd:   u.MonthlyCycleEnd,
		FreeUnitsUsed:     u.FreeUnitsUsed,
		MonthlyUnitsUsed:  u.MonthlyUnitsUsed,
		LastActionAt:      u.LastActionAt,
		SubscriptionStart: u.SubscriptionStart,
		LastResetCycleEnd: u.LastResetCycleEnd,
		CreatedAt:         u.CreatedAt,
		UpdatedAt:         u.UpdatedAt,
	}
	if u.SubscriptionID != nil {
		d.SubscriptionID = u.SubscriptionID.String()
	}
	return d
}

func (d userDoc) user() (*identity.User, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	u := &identity.User{
		ID:                id,
		Email:             d.Email,
		PasswordHash:      d.PasswordHash,
		GoogleID:          d.GoogleID,
		FullName:          d.FullName,
		IsActive:          d.IsActive,
		EntitlementState:  identity.EntitlementState(d.EntitlementState),
		MonthlyCycleEnd:   d.MonthlyCycleEnd,
		FreeUnitsUsed:     d.FreeUnitsUsed,
		MonthlyUnitsUsed:  d.MonthlyUnitsUsed,
		LastActionAt:      d.LastActionAt,
		SubscriptionStart: d.SubscriptionStart,
		LastResetCycleEnd: d.LastResetCycleEnd,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
	if d.SubscriptionID != "" {
		sid, err := uuid.Parse(d.SubscriptionID)
		if err != nil {
			return nil, err
		}
		u.SubscriptionID = &sid
	}
	return u, nil
}

type cardDoc struct {
	SessionID string `bson:"session_id"`
	Processor string `bson:"processor"`
}

type cryptoDoc struct {
	ExpectedUSD   string `bson:"expected_usd"`
	WalletAddress string `bson:"wallet_address"`
}

type metadataDoc struct {
	Plan          string            `bson:"plan"`
	Card          *cardDoc          `bson:"card,omitempty"`
	Crypto        *cryptoDoc        `bson:"crypto,omitempty"`
	FailureReason string            `bson:"failure_reason,omitempty"`
	Extra         map[string]string `bson:"extra,omitempty"`
}

type attemptDoc struct {
	ID            string      `bson:"_id"`
	UserID        string      `bson:"user_id"`
	Amount        string      `bson:"amount"`
	Currency      string      `bson:"currency"`
	Method        string      `bson:"method"`
	Processor     string      `bson:"processor,omitempty"`
	TransactionID string      `bson:"transaction_id,omitempty"`
	Status        string      `bson:"status"`
	Metadata      metadataDoc `bson:"metadata"`
	CreatedAt     time.Time   `bson:"created_at"`
	UpdatedAt     time.Time   `bson:"updated_at"`
}

func toAttemptDoc(a *billing.Attempt) attemptDoc {
	d := attemptDoc{
		ID:            a.ID.String(),
		UserID:        a.UserID.String(),
		Amount:        a.Amount.String(),
		Currency:      string(a.Currency),
		Method:        string(a.Method),
		Processor:     a.Processor,
		TransactionID: a.TransactionID,
		Status:        string(a.Status),
		Metadata: metadataDoc{
			Plan:          a.Metadata.Plan,
			FailureReason: a.Metadata.FailureReason,
			Extra:         a.Metadata.Extra,
		},
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if c := a.Metadata.Card; c != nil {
		d.Metadata.Card = &cardDoc{SessionID: c.SessionID, Processor: c.Processor}
	}
	if c := a.Metadata.Crypto; c != nil {
		d.Metadata.Crypto = &cryptoDoc{ExpectedUSD: c.ExpectedUSD.String(), WalletAddress: c.WalletAddress}
	}
	return d
}

func (d attemptDoc) attempt() (*billing.Attempt, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(d.Amount)
	if err != nil {
		return nil, err
	}
	a := &billing.Attempt{
		ID:            id,
		UserID:        userID,
		Amount:        amount,
		Currency:      billing.Currency(d.Currency),
		Method:        billing.Method(d.Method),
		Processor:     d.Processor,
		TransactionID: d.TransactionID,
		Status:        billing.Status(d.Status),
		Metadata: billing.Metadata{
			Plan:          d.Metadata.Plan,
			FailureReason: d.Metadata.FailureReason,
			Extra:         d.Metadata.Extra,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if c := d.Metadata.Card; c != nil {
		a.Metadata.Card = &billing.CardMetadata{SessionID: c.SessionID, Processor: c.Processor}
	}
	if c := d.Metadata.Crypto; c != nil {
		expected, err := decimal.NewFromString(c.ExpectedUSD)
		if err != nil {
			return nil, err
		}
		a.Metadata.Crypto = &billing.CryptoMetadata{ExpectedUSD: expected, WalletAddress: c.WalletAddress}
	}
	return a, nil
}

type subscriptionDoc struct {
	ID                      string     `bson:"_id"`
	UserID                  string     `bson:"user_id"`
	Plan                    string     `bson:"plan"`
	ProcessorSubscriptionID string     `bson:"processor_subscription_id"`
	Status                  string     `bson:"status"`
	StartDate               time.Time  `bson:"start_date"`
	EndDate                 *time.Time `bson:"end_date"`
	LastPaymentDate         time.Time  `bson:"last_payment_date"`
	CreatedAt               time.Time  `bson:"created_at"`
	UpdatedAt               time.Time  `bson:"updated_at"`
}

func (d subscriptionDoc) subscription() (*billing.Subscription, error) {
	id, err := uuid.Parse(d.ID)
	if err != nil {
		return nil, err
	}
	userID, err := uuid.Parse(d.UserID)
	if err != nil {
		return nil, err
	}
	return &billing.Subscription{
		ID:                      id,
		UserID:                  userID,
		Plan:                    billing.Plan(d.Plan),
		ProcessorSubscriptionID: d.ProcessorSubscriptionID,
		Status:                  billing.SubscriptionStatus(d.Status),
		StartDate:               d.StartDate,
		EndDate:                 d.EndDate,
		LastPaymentDate:         d.LastPaymentDate,
		CreatedAt:               d.CreatedAt,
		UpdatedAt:               d.UpdatedAt,
	}, nil
}
