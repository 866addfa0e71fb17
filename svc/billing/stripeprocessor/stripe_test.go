package stripeprocessor_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"

	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/billing/stripeprocessor"
)

func newProcessor(t *testing.T, handler http.HandlerFunc) *stripeprocessor.Processor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	p, err := stripeprocessor.New(stripeprocessor.Config{SecretKey: "sk_test_123"}, stripeprocessor.WithBackend(backend))
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Parallel()
	_, err := stripeprocessor.New(stripeprocessor.Config{})
	assert.ErrorIs(t, err, stripeprocessor.ErrMissingSecretKey)
}

func TestProcessor_CreateCheckout(t *testing.T) {
	t.Parallel()

	var form url.Values
	p := newProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/checkout/sessions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		form, _ = url.ParseQuery(string(body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":"cs_test_1","object":"checkout.session","status":"open","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`)
	})

	checkout, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{
		Plan:        billing.PlanMonthly,
		AmountCents: 299,
		Currency:    billing.CurrencyUSD,
		Mode:        billing.ModeSubscription,
		Metadata:    map[string]string{"user_id": "u-1", "plan": "monthly"},
		SuccessURL:  "https://app.example.com/success",
		CancelURL:   "https://app.example.com/cancel",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", checkout.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", checkout.URL)

	assert.Equal(t, "subscription", form.Get("mode"))
	assert.Equal(t, "299", form.Get("line_items[0][price_data][unit_amount]"))
	assert.Equal(t, "month", form.Get("line_items[0][price_data][recurring][interval]"))
	assert.Equal(t, "monthly", form.Get("metadata[plan]"))
	assert.Equal(t, "u-1", form.Get("client_reference_id"))
}

func TestProcessor_RetrieveCheckout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		outcome billing.CheckoutOutcome
	}{
		{
			name:    "paid",
			body:    `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"paid","amount_total":2999,"currency":"usd","metadata":{"plan":"one_time"},"payment_intent":"pi_1"}`,
			outcome: billing.OutcomePaid,
		},
		{
			name:    "open",
			body:    `{"id":"cs_1","object":"checkout.session","status":"open","payment_status":"unpaid","amount_total":2999}`,
			outcome: billing.OutcomeOpen,
		},
		{
			name:    "complete awaiting funds",
			body:    `{"id":"cs_1","object":"checkout.session","status":"complete","payment_status":"unpaid","amount_total":2999}`,
			outcome: billing.OutcomeOpen,
		},
		{
			name:    "expired",
			body:    `{"id":"cs_1","object":"checkout.session","status":"expired","payment_status":"unpaid"}`,
			outcome: billing.OutcomeExpired,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := newProcessor(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/v1/checkout/sessions/cs_1", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, tt.body)
			})

			res, err := p.RetrieveCheckout(context.Background(), "cs_1")
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			if tt.outcome == billing.OutcomePaid {
				assert.Equal(t, int64(2999), res.AmountTotalCents)
				assert.Equal(t, "pi_1", res.PaymentReference)
				assert.Equal(t, "one_time", res.Metadata["plan"])
			}
		})
	}
}

func TestProcessor_RetrieveCheckoutError(t *testing.T) {
	t.Parallel()

	p := newProcessor(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"type":"invalid_request_error","message":"No such checkout.session"}}`)
	})

	_, err := p.RetrieveCheckout(context.Background(), "cs_missing")
	assert.Error(t, err)
}
