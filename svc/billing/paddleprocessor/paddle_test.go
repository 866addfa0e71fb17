package paddleprocessor_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/billing/paddleprocessor"
)

func newProcessor(t *testing.T, handler http.HandlerFunc) *paddleprocessor.Processor {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p, err := paddleprocessor.New(paddleprocessor.Config{
		APIKey:         "pdl_test_key",
		OneTimePriceID: "pri_once",
		MonthlyPriceID: "pri_month",
	}, paddle.WithBaseURL(srv.URL))
	require.NoError(t, err)
	return p
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := paddleprocessor.New(paddleprocessor.Config{})
	assert.ErrorIs(t, err, paddleprocessor.ErrMissingAPIKey)

	_, err = paddleprocessor.New(paddleprocessor.Config{APIKey: "k", Environment: "staging"})
	assert.ErrorIs(t, err, paddleprocessor.ErrInvalidEnvironment)
}

func TestProcessor_CreateCheckout(t *testing.T) {
	t.Parallel()

	var body map[string]any
	p := newProcessor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/transactions", r.URL.Path)
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"data":{"id":"txn_01","status":"ready","checkout":{"url":"https://pay.example.com/?_ptxn=txn_01"}}}`)
	})

	checkout, err := p.CreateCheckout(context.Background(), billing.CheckoutRequest{
		Plan:       billing.PlanMonthly,
		Metadata:   map[string]string{"user_id": "u-1", "plan": "monthly"},
		SuccessURL: "https://app.example.com/success",
	})
	require.NoError(t, err)
	assert.Equal(t, "txn_01", checkout.ID)
	assert.Equal(t, "https://pay.example.com/?_ptxn=txn_01", checkout.URL)

	items, ok := body["items"].([]any)
	require.True(t, ok)
	require.Len(t, items, 1)
	assert.Equal(t, "pri_month", items[0].(map[string]any)["price_id"])
	assert.Equal(t, "monthly", body["custom_data"].(map[string]any)["plan"])
}

func TestProcessor_CreateCheckoutWithoutPrice(t *testing.T) {
	t.Parallel()

	p, err := paddleprocessor.New(paddleprocessor.Config{APIKey: "k"})
	require.NoError(t, err)
	_, err = p.CreateCheckout(context.Background(), billing.CheckoutRequest{Plan: billing.PlanOneTime})
	assert.ErrorIs(t, err, paddleprocessor.ErrMissingPriceID)
}

func TestProcessor_RetrieveCheckout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status  string
		outcome billing.CheckoutOutcome
	}{
		{"completed", billing.OutcomePaid},
		{"paid", billing.OutcomePaid},
		{"ready", billing.OutcomeOpen},
		{"canceled", billing.OutcomeExpired},
		{"past_due", billing.OutcomeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.status, func(t *testing.T) {
			t.Parallel()
			p := newProcessor(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodGet, r.Method)
				assert.Equal(t, "/transactions/txn_01", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				_, _ = io.WriteString(w, `{"data":{"id":"txn_01","status":"`+tt.status+`","currency_code":"USD",`+
					`"custom_data":{"plan":"monthly","user_id":"u-1"},"subscription_id":"sub_01",`+
					`"details":{"totals":{"grand_total":"299"}}}}`)
			})

			res, err := p.RetrieveCheckout(context.Background(), "txn_01")
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, res.Outcome)
			assert.Equal(t, int64(299), res.AmountTotalCents)
			assert.Equal(t, "usd", res.Currency)
			assert.Equal(t, "monthly", res.Metadata["plan"])
			assert.Equal(t, "sub_01", res.SubscriptionID)
		})
	}
}
