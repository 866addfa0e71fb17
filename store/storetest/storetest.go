// Package storetest holds the behaviour every store backend must share.
// Backends call Run from their own tests with a constructor for the stores
// under test.
package storetest

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Stores groups the three persistence interfaces of one backend.
type Stores struct {
	Users         identity.UserStore
	Attempts      billing.AttemptStore
	Subscriptions billing.SubscriptionStore
}

// Run executes the shared contract. newStores may return the same backing
// database on every call; each subtest works on fresh ids and emails.
func Run(t *testing.T, newStores func(t *testing.T) Stores) {
	t.Run("users", func(t *testing.T) { testUsers(t, newStores(t)) })
	t.Run("usage", func(t *testing.T) { testUsage(t, newStores(t)) })
	t.Run("mutation", func(t *testing.T) { testMutation(t, newStores(t)) })
	t.Run("attempts", func(t *testing.T) { testAttempts(t, newStores(t)) })
	t.Run("subscriptions", func(t *testing.T) { testSubscriptions(t, newStores(t)) })
}

// Now returns a millisecond-precision UTC time every backend round-trips.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// NewUser stores a fresh user with a unique email.
func NewUser(t *testing.T, s identity.UserStore) *identity.User {
	t.Helper()
	u := identity.NewUser(uuid.NewString()+"@example.com", "Test User", Now())
	u.PasswordHash = "hash"
	require.NoError(t, s.CreateUser(context.Background(), u))
	return u
}

func testUsers(t *testing.T, s Stores) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		u := NewUser(t, s.Users)

		got, err := s.Users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, got.Email)
		assert.Equal(t, "hash", got.PasswordHash)
		assert.Equal(t, identity.StateNone, got.EntitlementState)
		assert.True(t, got.IsActive)
		assert.Nil(t, got.MonthlyCycleEnd)
		assert.Zero(t, got.FreeUnitsUsed)

		byEmail, err := s.Users.GetUserByEmail(ctx, u.Email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email", func(t *testing.T) {
		u := NewUser(t, s.Users)
		dup := identity.NewUser(u.Email, "", Now())
		assert.ErrorIs(t, s.Users.CreateUser(ctx, dup), identity.ErrEmailAlreadyExists)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Users.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
		_, err = s.Users.GetUserByEmail(ctx, uuid.NewString()+"@example.com")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
		_, err = s.Users.GetUserByGoogleID(ctx, "")
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("link google id", func(t *testing.T) {
		u := NewUser(t, s.Users)
		gid := "g-" + uuid.NewString()
		require.NoError(t, s.Users.LinkGoogleID(ctx, u.ID, gid))

		got, err := s.Users.GetUserByGoogleID(ctx, gid)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.ID)

		other := NewUser(t, s.Users)
		assert.ErrorIs(t, s.Users.LinkGoogleID(ctx, other.ID, gid), identity.ErrProviderLinked)
		assert.ErrorIs(t, s.Users.LinkGoogleID(ctx, uuid.New(), "g-"+uuid.NewString()), identity.ErrUserNotFound)
	})
}

func testUsage(t *testing.T, s Stores) {
	ctx := context.Background()

	t.Run("free counter stops at limit", func(t *testing.T) {
		u := NewUser(t, s.Users)
		at := Now()

		got, err := s.Users.IncrementUsage(ctx, u.ID, identity.CounterFree, 1, at)
		require.NoError(t, err)
		assert.Equal(t, 1, got.FreeUnitsUsed)
		require.NotNil(t, got.LastActionAt)
		assert.True(t, at.Equal(*got.LastActionAt))

		_, err = s.Users.IncrementUsage(ctx, u.ID, identity.CounterFree, 1, at)
		assert.ErrorIs(t, err, identity.ErrUsageLimitReached)

		stored, err := s.Users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, stored.FreeUnitsUsed)
	})

	t.Run("none counter only records time", func(t *testing.T) {
		u := NewUser(t, s.Users)
		at := Now()
		got, err := s.Users.IncrementUsage(ctx, u.ID, identity.CounterNone, 0, at)
		require.NoError(t, err)
		assert.Zero(t, got.FreeUnitsUsed)
		assert.Zero(t, got.MonthlyUnitsUsed)
		require.NotNil(t, got.LastActionAt)
	})

	t.Run("invalid counter", func(t *testing.T) {
		u := NewUser(t, s.Users)
		_, err := s.Users.IncrementUsage(ctx, u.ID, identity.UsageCounter("bonus"), 5, Now())
		assert.ErrorIs(t, err, identity.ErrInvalidUsageCounter)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Users.IncrementUsage(ctx, uuid.New(), identity.CounterMonthly, 5, Now())
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})

	t.Run("concurrent increments never pass limit", func(t *testing.T) {
		u := NewUser(t, s.Users)
		const limit, workers = 3, 16

		var ok atomic.Int32
		var wg sync.WaitGroup
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Users.IncrementUsage(ctx, u.ID, identity.CounterMonthly, limit, Now())
				if err == nil {
					ok.Add(1)
					return
				}
				assert.ErrorIs(t, err, identity.ErrUsageLimitReached)
			}()
		}
		wg.Wait()

		assert.EqualValues(t, limit, ok.Load())
		stored, err := s.Users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, limit, stored.MonthlyUnitsUsed)
	})
}

func testMutation(t *testing.T, s Stores) {
	ctx := context.Background()

	t.Run("grant monthly", func(t *testing.T) {
		u := NewUser(t, s.Users)
		_, err := s.Users.IncrementUsage(ctx, u.ID, identity.CounterMonthly, 40, Now())
		require.NoError(t, err)

		start := Now()
		end := start.Add(30 * 24 * time.Hour)
		state := identity.StateMonthly
		subID := uuid.New()
		got, err := s.Users.ApplyMutation(ctx, u.ID, identity.UserMutation{
			State:             &state,
			CycleEnd:          &end,
			Subscription:      &identity.SubscriptionMirror{ID: subID, Start: start, End: &end},
			ResetMonthlyUsage: true,
			LastResetCycleEnd: &end,
		})
		require.NoError(t, err)
		assert.Equal(t, identity.StateMonthly, got.EntitlementState)
		require.NotNil(t, got.MonthlyCycleEnd)
		assert.True(t, end.Equal(*got.MonthlyCycleEnd))
		assert.Zero(t, got.MonthlyUnitsUsed)
		require.NotNil(t, got.SubscriptionID)
		assert.Equal(t, subID, *got.SubscriptionID)
		require.NotNil(t, got.LastResetCycleEnd)
		assert.True(t, end.Equal(*got.LastResetCycleEnd))

		stored, err := s.Users.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, identity.StateMonthly, stored.EntitlementState)
		require.NotNil(t, stored.SubscriptionStart)
		assert.True(t, start.Equal(*stored.SubscriptionStart))
	})

	t.Run("state change clears cycle end", func(t *testing.T) {
		u := NewUser(t, s.Users)
		end := Now().Add(time.Hour)
		monthly := identity.StateMonthly
		_, err := s.Users.ApplyMutation(ctx, u.ID, identity.UserMutation{State: &monthly, CycleEnd: &end})
		require.NoError(t, err)

		exhausted := identity.StateFreeTierExhausted
		got, err := s.Users.ApplyMutation(ctx, u.ID, identity.UserMutation{State: &exhausted})
		require.NoError(t, err)
		assert.Equal(t, identity.StateFreeTierExhausted, got.EntitlementState)
		assert.Nil(t, got.MonthlyCycleEnd)
	})

	t.Run("empty mutation", func(t *testing.T) {
		u := NewUser(t, s.Users)
		got, err := s.Users.ApplyMutation(ctx, u.ID, identity.UserMutation{})
		require.NoError(t, err)
		assert.Equal(t, identity.StateNone, got.EntitlementState)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Users.ApplyMutation(ctx, uuid.New(), identity.UserMutation{ResetMonthlyUsage: true})
		assert.ErrorIs(t, err, identity.ErrUserNotFound)
	})
}

// NewCardAttempt builds a pending card attempt for userID.
func NewCardAttempt(userID uuid.UUID) *billing.Attempt {
	now := Now()
	return &billing.Attempt{
		ID:       uuid.New(),
		UserID:   userID,
		Amount:   decimal.RequireFromString("29.99"),
		Currency: billing.CurrencyUSD,
		Method:   billing.MethodCard,
		Status:   billing.StatusPending,
		Metadata: billing.Metadata{
			Plan: string(billing.PlanOneTime),
			Card: &billing.CardMetadata{SessionID: "cs_" + uuid.NewString(), Processor: "stripe"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func testAttempts(t *testing.T, s Stores) {
	ctx := context.Background()

	t.Run("create and load", func(t *testing.T) {
		u := NewUser(t, s.Users)
		a := NewCardAttempt(u.ID)
		require.NoError(t, s.Attempts.CreateAttempt(ctx, a))

		got, err := s.Attempts.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, u.ID, got.UserID)
		assert.True(t, a.Amount.Equal(got.Amount))
		assert.Equal(t, billing.StatusPending, got.Status)
		assert.Equal(t, billing.MethodCard, got.Method)
		require.NotNil(t, got.Metadata.Card)
		assert.Equal(t, a.Metadata.Card.SessionID, got.Metadata.Card.SessionID)
		assert.Equal(t, string(billing.PlanOneTime), got.Metadata.Plan)

		bySession, err := s.Attempts.GetAttemptBySessionID(ctx, a.Metadata.Card.SessionID)
		require.NoError(t, err)
		assert.Equal(t, a.ID, bySession.ID)
	})

	t.Run("crypto metadata", func(t *testing.T) {
		u := NewUser(t, s.Users)
		a := NewCardAttempt(u.ID)
		a.Method = billing.MethodCrypto
		a.Currency = billing.CurrencyUSDT
		a.Metadata.Card = nil
		a.Metadata.Crypto = &billing.CryptoMetadata{
			ExpectedUSD:   decimal.RequireFromString("2.99"),
			WalletAddress: "0xabc",
		}
		require.NoError(t, s.Attempts.CreateAttempt(ctx, a))

		got, err := s.Attempts.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		require.NotNil(t, got.Metadata.Crypto)
		assert.True(t, decimal.RequireFromString("2.99").Equal(got.Metadata.Crypto.ExpectedUSD))
		assert.Equal(t, "0xabc", got.Metadata.Crypto.WalletAddress)
	})

	t.Run("unknown attempt", func(t *testing.T) {
		_, err := s.Attempts.GetAttempt(ctx, uuid.New())
		assert.ErrorIs(t, err, billing.ErrAttemptNotFound)
		_, err = s.Attempts.GetAttemptBySessionID(ctx, "cs_missing")
		assert.ErrorIs(t, err, billing.ErrAttemptNotFound)
		_, err = s.Attempts.UpdateAttemptStatus(ctx, uuid.New(), billing.SourcesFor(billing.StatusFailed),
			billing.AttemptUpdate{Status: billing.StatusFailed, At: Now()})
		assert.ErrorIs(t, err, billing.ErrAttemptNotFound)
	})

	t.Run("latest succeeded attempt", func(t *testing.T) {
		u := NewUser(t, s.Users)
		_, err := s.Attempts.LatestSucceededAttempt(ctx, u.ID)
		assert.ErrorIs(t, err, billing.ErrAttemptNotFound)

		base := Now()
		older, newer, open := NewCardAttempt(u.ID), NewCardAttempt(u.ID), NewCardAttempt(u.ID)
		for _, a := range []*billing.Attempt{older, newer, open} {
			require.NoError(t, s.Attempts.CreateAttempt(ctx, a))
		}
		for i, a := range []*billing.Attempt{older, newer} {
			_, err := s.Attempts.UpdateAttemptStatus(ctx, a.ID, billing.SourcesFor(billing.StatusSucceeded), billing.AttemptUpdate{
				Status: billing.StatusSucceeded,
				At:     base.Add(time.Duration(i) * time.Minute),
			})
			require.NoError(t, err)
		}

		got, err := s.Attempts.LatestSucceededAttempt(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, newer.ID, got.ID)

		other := NewUser(t, s.Users)
		_, err = s.Attempts.LatestSucceededAttempt(ctx, other.ID)
		assert.ErrorIs(t, err, billing.ErrAttemptNotFound)
	})

	t.Run("conditional status update", func(t *testing.T) {
		u := NewUser(t, s.Users)
		a := NewCardAttempt(u.ID)
		require.NoError(t, s.Attempts.CreateAttempt(ctx, a))

		got, err := s.Attempts.UpdateAttemptStatus(ctx, a.ID, billing.SourcesFor(billing.StatusSucceeded), billing.AttemptUpdate{
			Status:        billing.StatusSucceeded,
			TransactionID: "pi_123",
			At:            Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, billing.StatusSucceeded, got.Status)
		assert.Equal(t, "pi_123", got.TransactionID)

		_, err = s.Attempts.UpdateAttemptStatus(ctx, a.ID, billing.SourcesFor(billing.StatusFailed), billing.AttemptUpdate{
			Status:        billing.StatusFailed,
			FailureReason: "late",
			At:            Now(),
		})
		assert.ErrorIs(t, err, billing.ErrInvalidTransition)

		stored, err := s.Attempts.GetAttempt(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.StatusSucceeded, stored.Status)
		assert.Empty(t, stored.Metadata.FailureReason)
	})

	t.Run("failure reason is stored", func(t *testing.T) {
		u := NewUser(t, s.Users)
		a := NewCardAttempt(u.ID)
		require.NoError(t, s.Attempts.CreateAttempt(ctx, a))

		got, err := s.Attempts.UpdateAttemptStatus(ctx, a.ID, billing.SourcesFor(billing.StatusFailed), billing.AttemptUpdate{
			Status:        billing.StatusFailed,
			FailureReason: "amount_below_price",
			At:            Now(),
		})
		require.NoError(t, err)
		assert.Equal(t, "amount_below_price", got.Metadata.FailureReason)
		require.NotNil(t, got.Metadata.Card)
	})

	t.Run("one concurrent transition wins", func(t *testing.T) {
		u := NewUser(t, s.Users)
		a := NewCardAttempt(u.ID)
		require.NoError(t, s.Attempts.CreateAttempt(ctx, a))

		var won atomic.Int32
		var wg sync.WaitGroup
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Attempts.UpdateAttemptStatus(ctx, a.ID, billing.SourcesFor(billing.StatusSucceeded),
					billing.AttemptUpdate{Status: billing.StatusSucceeded, At: Now()})
				if err == nil {
					won.Add(1)
					return
				}
				assert.ErrorIs(t, err, billing.ErrInvalidTransition)
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, won.Load())
	})
}

func testSubscriptions(t *testing.T, s Stores) {
	ctx := context.Background()

	t.Run("upsert keeps one row per user", func(t *testing.T) {
		u := NewUser(t, s.Users)
		now := Now()
		end := now.Add(30 * 24 * time.Hour)

		first, err := s.Subscriptions.UpsertSubscription(ctx, &billing.Subscription{
			ID:                      uuid.New(),
			UserID:                  u.ID,
			Plan:                    billing.PlanMonthly,
			ProcessorSubscriptionID: "sub_1",
			Status:                  billing.SubscriptionActive,
			StartDate:               now,
			EndDate:                 &end,
			LastPaymentDate:         now,
			CreatedAt:               now,
			UpdatedAt:               now,
		})
		require.NoError(t, err)

		later := now.Add(time.Hour)
		second, err := s.Subscriptions.UpsertSubscription(ctx, &billing.Subscription{
			ID:              uuid.New(),
			UserID:          u.ID,
			Plan:            billing.PlanOneTime,
			Status:          billing.SubscriptionActive,
			StartDate:       later,
			LastPaymentDate: later,
			CreatedAt:       later,
			UpdatedAt:       later,
		})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.True(t, now.Equal(second.CreatedAt))
		assert.Equal(t, "sub_1", second.ProcessorSubscriptionID)

		got, err := s.Subscriptions.GetSubscriptionByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, billing.PlanOneTime, got.Plan)
		assert.Nil(t, got.EndDate)
		assert.True(t, later.Equal(got.StartDate))
	})

	t.Run("set status", func(t *testing.T) {
		u := NewUser(t, s.Users)
		now := Now()
		_, err := s.Subscriptions.UpsertSubscription(ctx, &billing.Subscription{
			ID: uuid.New(), UserID: u.ID, Plan: billing.PlanMonthly, Status: billing.SubscriptionActive,
			StartDate: now, LastPaymentDate: now, CreatedAt: now, UpdatedAt: now,
		})
		require.NoError(t, err)

		require.NoError(t, s.Subscriptions.SetSubscriptionStatus(ctx, u.ID, billing.SubscriptionInactive))
		got, err := s.Subscriptions.GetSubscriptionByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, billing.SubscriptionInactive, got.Status)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		_, err := s.Subscriptions.GetSubscriptionByUser(ctx, uuid.New())
		assert.ErrorIs(t, err, billing.ErrSubscriptionNotFound)
		assert.ErrorIs(t, s.Subscriptions.SetSubscriptionStatus(ctx, uuid.New(), billing.SubscriptionInactive), billing.ErrSubscriptionNotFound)
	})
}
