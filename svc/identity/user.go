package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EntitlementState is the paid tier a user currently holds.
type EntitlementState string

const (
	StateNone              EntitlementState = "none"
	StateFreeTierExhausted EntitlementState = "free_tier_exhausted"
	StateOneTime           EntitlementState = "one_time"
	StateMonthly           EntitlementState = "monthly"
)

// Valid reports whether s is a known state.
func (s EntitlementState) Valid() bool {
	switch s {
	case StateNone, StateFreeTierExhausted, StateOneTime, StateMonthly:
		return true
	}
	return false
}

// UsageCounter names the metered counter a commit increments.
// CounterNone records the action time without counting it.
type UsageCounter string

const (
	CounterNone    UsageCounter = "none"
	CounterFree    UsageCounter = "free"
	CounterMonthly UsageCounter = "monthly"
)

// Valid reports whether c is a known counter.
func (c UsageCounter) Valid() bool {
	return c == CounterNone || c == CounterFree || c == CounterMonthly
}

// User is an account together with its entitlement and usage counters.
// MonthlyCycleEnd is set exactly when EntitlementState is StateMonthly.
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	FullName     string    `json:"full_name,omitempty"`
	IsActive     bool      `json:"is_active"`

	EntitlementState EntitlementState `json:"entitlement_state"`
	MonthlyCycleEnd  *time.Time       `json:"monthly_cycle_end,omitempty"`
	FreeUnitsUsed    int              `json:"free_units_used"`
	MonthlyUnitsUsed int              `json:"monthly_units_used"`
	LastActionAt     *time.Time       `json:"last_action_at,omitempty"`

	SubscriptionID    *uuid.UUID `json:"subscription_id,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	LastResetCycleEnd *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPassword reports whether the user can log in with a password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// NewUser returns an active user with a fresh id and no entitlement.
func NewUser(email, fullName string, now time.Time) *User {
	return &User{
		ID:               uuid.New(),
		Email:            NormalizeEmail(email),
		FullName:         fullName,
		IsActive:         true,
		EntitlementState: StateNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// SubscriptionMirror is the copy of the subscription row kept on the user.
type SubscriptionMirror struct {
	ID    uuid.UUID
	Start time.Time
	End   *time.Time
}

// UserMutation is a partial update of entitlement fields. Nil fields are left
// unchanged. CycleEnd is applied only together with State, and a nil CycleEnd
// with a non-nil State clears the cycle end.
type UserMutation struct {
	State             *EntitlementState
	CycleEnd          *time.Time
	Subscription      *SubscriptionMirror
	ResetMonthlyUsage bool
	LastResetCycleEnd *time.Time
}

// Empty reports whether applying m would change nothing.
func (m *UserMutation) Empty() bool {
	return m == nil || (m.State == nil && m.Subscription == nil && !m.ResetMonthlyUsage && m.LastResetCycleEnd == nil)
}

// Apply writes m into u. Stores that keep users in memory use it directly;
// the others translate the same rules into their update statements.
func (m *UserMutation) Apply(u *User, now time.Time) {
	if m.Empty() {
		return
	}
	if m.State != nil {
		u.EntitlementState = *m.State
		u.MonthlyCycleEnd = copyTime(m.CycleEnd)
	}
	if m.Subscription != nil {
		id := m.Subscription.ID
		start := m.Subscription.Start
		u.SubscriptionID = &id
		u.SubscriptionStart = &start
	}
	if m.ResetMonthlyUsage {
		u.MonthlyUnitsUsed = 0
	}
	if m.LastResetCycleEnd != nil {
		u.LastResetCycleEnd = copyTime(m.LastResetCycleEnd)
	}
	u.UpdatedAt = now
}

// UserStore persists users. Implementations must make IncrementUsage a single
// conditional write so two concurrent increments can never both pass limit.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (*User, error)
	LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string) error

	// IncrementUsage adds one to counter when it is below limit and records
	// at as the last action time. It returns ErrUsageLimitReached otherwise.
	// CounterNone only records the action time and ignores limit.
	IncrementUsage(ctx context.Context, id uuid.UUID, counter UsageCounter, limit int, at time.Time) (*User, error)

	// ApplyMutation applies m atomically and returns the updated user.
	ApplyMutation(ctx context.Context, id uuid.UUID, m UserMutation) (*User, error)
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
