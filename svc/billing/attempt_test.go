package billing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/faceswap/svc/billing"
)

func TestTransition(t *testing.T) {
	t.Parallel()

	all := []billing.Status{
		billing.StatusPending,
		billing.StatusRequiresAction,
		billing.StatusSucceeded,
		billing.StatusFailed,
		billing.StatusAbandoned,
	}
	allowed := map[billing.Status][]billing.Status{
		billing.StatusPending:        {billing.StatusSucceeded, billing.StatusFailed, billing.StatusRequiresAction, billing.StatusAbandoned},
		billing.StatusRequiresAction: {billing.StatusSucceeded, billing.StatusFailed, billing.StatusAbandoned},
	}

	for _, from := range all {
		for _, to := range all {
			want := false
			for _, s := range allowed[from] {
				if s == to {
					want = true
				}
			}
			got, err := billing.Transition(from, to)
			if want {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.Equal(t, to, got)
			} else {
				assert.ErrorIs(t, err, billing.ErrInvalidTransition, "%s -> %s", from, to)
				assert.Equal(t, from, got)
			}
		}
	}

	assert.True(t, billing.StatusSucceeded.Terminal())
	assert.True(t, billing.StatusFailed.Terminal())
	assert.True(t, billing.StatusAbandoned.Terminal())
	assert.False(t, billing.StatusPending.Terminal())
	assert.ElementsMatch(t, []billing.Status{billing.StatusPending}, billing.SourcesFor(billing.StatusRequiresAction))
	assert.ElementsMatch(t, []billing.Status{billing.StatusPending, billing.StatusRequiresAction}, billing.SourcesFor(billing.StatusSucceeded))
}

func TestValidTransactionHash(t *testing.T) {
	t.Parallel()

	valid := "0x" + "ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ab12cd34ef56ABCD"
	assert.True(t, billing.ValidTransactionHash(valid))

	for _, h := range []string{"", "notahash", valid[2:], valid + "0", "0x" + valid[3:] + "g", "0X" + valid[2:]} {
		assert.False(t, billing.ValidTransactionHash(h), h)
	}
}

func TestParsePlan(t *testing.T) {
	t.Parallel()

	p, err := billing.ParsePlan("monthly")
	assert.NoError(t, err)
	assert.Equal(t, billing.PlanMonthly, p)

	_, err = billing.ParsePlan("lifetime")
	assert.ErrorIs(t, err, billing.ErrInvalidPlan)

	assert.Equal(t, billing.ModeSubscription, billing.ModeFor(billing.PlanMonthly))
	assert.Equal(t, billing.ModePayment, billing.ModeFor(billing.PlanOneTime))
}
