package entitlement

import (
	"fmt"
	"time"

	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Status is the entitlement summary reported to the user.
// RemainingUnits is nil when usage is unlimited.
type Status struct {
	IsActive       bool
	Plan           identity.EntitlementState
	RemainingUnits *int
	CycleEnd       *time.Time
	Message        string
	// Lapsed is set when this derivation ended an expired monthly cycle.
	Lapsed bool
}

// DeriveStatus computes the status of u at now together with the mutation
// that brings the stored record in line with it. The mutation is nil when the
// record is already consistent.
func DeriveStatus(u identity.User, limits Limits, now time.Time) (Status, *identity.UserMutation) {
	switch {
	case u.EntitlementState == identity.StateOneTime:
		return Status{
			IsActive: true,
			Plan:     identity.StateOneTime,
			Message:  "One-time purchase: unlimited access.",
		}, nil

	case cycleActive(&u, now):
		var mut *identity.UserMutation
		used := u.MonthlyUnitsUsed
		if u.LastResetCycleEnd == nil || !u.LastResetCycleEnd.Equal(*u.MonthlyCycleEnd) {
			end := *u.MonthlyCycleEnd
			mut = &identity.UserMutation{ResetMonthlyUsage: true, LastResetCycleEnd: &end}
			used = 0
		}
		remaining := clamp(limits.Monthly - used)
		end := *u.MonthlyCycleEnd
		return Status{
			IsActive:       true,
			Plan:           identity.StateMonthly,
			RemainingUnits: &remaining,
			CycleEnd:       &end,
			Message:        fmt.Sprintf("Monthly subscription active. %d units remaining this cycle.", remaining),
		}, mut

	case u.EntitlementState == identity.StateMonthly:
		remaining := clamp(limits.Free - u.FreeUnitsUsed)
		next := identity.StateNone
		if remaining == 0 {
			next = identity.StateFreeTierExhausted
		}
		msg := "Monthly subscription expired."
		if u.MonthlyCycleEnd != nil {
			msg = fmt.Sprintf("Monthly subscription expired on %s.", u.MonthlyCycleEnd.UTC().Format(time.RFC3339))
		}
		st := Status{
			Plan:           next,
			RemainingUnits: &remaining,
			Message:        msg,
			Lapsed:         true,
		}
		return st, &identity.UserMutation{State: &next, ResetMonthlyUsage: true}

	default:
		remaining := clamp(limits.Free - u.FreeUnitsUsed)
		st := Status{
			Plan:           u.EntitlementState,
			RemainingUnits: &remaining,
			Message:        fmt.Sprintf("Free tier: %d units remaining.", remaining),
		}
		if remaining > 0 {
			return st, nil
		}
		st.Message = "Free tier used up. Purchase a plan to continue."
		if u.EntitlementState != identity.StateNone {
			return st, nil
		}
		exhausted := identity.StateFreeTierExhausted
		st.Plan = exhausted
		return st, &identity.UserMutation{State: &exhausted}
	}
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
