package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/svc/identity"
)

func TestMemoryStateStore(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consumes once", func(t *testing.T) {
		t.Parallel()
		s := identity.NewMemoryStateStore()
		require.NoError(t, s.Save(ctx, "abc", time.Minute))
		require.NoError(t, s.Consume(ctx, "abc"))
		assert.ErrorIs(t, s.Consume(ctx, "abc"), identity.ErrInvalidState)
	})

	t.Run("expired state is rejected", func(t *testing.T) {
		t.Parallel()
		s := identity.NewMemoryStateStore()
		require.NoError(t, s.Save(ctx, "old", -time.Second))
		assert.ErrorIs(t, s.Consume(ctx, "old"), identity.ErrInvalidState)
	})
}

func TestUserMutation_Apply(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(30 * 24 * time.Hour)

	t.Run("state change clears cycle end when none given", func(t *testing.T) {
		t.Parallel()
		u := identity.NewUser("a@example.com", "", now)
		u.EntitlementState = identity.StateMonthly
		u.MonthlyCycleEnd = &end

		state := identity.StateNone
		m := identity.UserMutation{State: &state}
		m.Apply(u, now)

		assert.Equal(t, identity.StateNone, u.EntitlementState)
		assert.Nil(t, u.MonthlyCycleEnd)
	})

	t.Run("reset keeps free usage", func(t *testing.T) {
		t.Parallel()
		u := identity.NewUser("b@example.com", "", now)
		u.FreeUnitsUsed = 1
		u.MonthlyUnitsUsed = 39

		m := identity.UserMutation{ResetMonthlyUsage: true, LastResetCycleEnd: &end}
		m.Apply(u, now)

		assert.Equal(t, 1, u.FreeUnitsUsed)
		assert.Equal(t, 0, u.MonthlyUnitsUsed)
		require.NotNil(t, u.LastResetCycleEnd)
		assert.True(t, u.LastResetCycleEnd.Equal(end))
	})

	t.Run("empty mutation", func(t *testing.T) {
		t.Parallel()
		assert.True(t, (&identity.UserMutation{}).Empty())
		var nilMut *identity.UserMutation
		assert.True(t, nilMut.Empty())
	})
}
