// Package paddleprocessor implements billing.CardProcessor with Paddle Billing
// transactions.
package paddleprocessor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/faceswap/svc/billing"
)

// Name identifies Paddle on payment attempts.
const Name = "paddle"

var (
	ErrMissingAPIKey      = errors.New("paddleprocessor: api key is required")
	ErrMissingPriceID     = errors.New("paddleprocessor: no price id configured for plan")
	ErrInvalidEnvironment = errors.New("paddleprocessor: invalid environment")
	ErrNoCheckoutURL      = errors.New("paddleprocessor: transaction has no checkout url")
)

// Config holds the Paddle credentials and the catalog prices per plan.
type Config struct {
	APIKey         string `env:"PADDLE_API_KEY"`
	Environment    string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
	OneTimePriceID string `env:"PADDLE_ONE_TIME_PRICE_ID"`
	MonthlyPriceID string `env:"PADDLE_MONTHLY_PRICE_ID"`
}

// Processor creates Paddle transactions and reads them back.
type Processor struct {
	client *paddle.SDK
	prices map[billing.Plan]string
}

// New creates a Processor. Extra SDK options are passed to the client.
func New(cfg Config, opts ...paddle.Option) (*Processor, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, opts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, opts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("create paddle client: %w", err)
	}

	return &Processor{
		client: client,
		prices: map[billing.Plan]string{
			billing.PlanOneTime: cfg.OneTimePriceID,
			billing.PlanMonthly: cfg.MonthlyPriceID,
		},
	}, nil
}

func (p *Processor) Name() string {
	return Name
}

// CreateCheckout sells the catalog price of the plan. Amount and mode are
// defined by the price in Paddle, not by the request.
func (p *Processor) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.Checkout, error) {
	priceID := p.prices[req.Plan]
	if priceID == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingPriceID, req.Plan)
	}

	custom := paddle.CustomData{}
	for k, v := range req.Metadata {
		custom[k] = v
	}

	txReq := &paddle.CreateTransactionRequest{
		Items: []paddle.CreateTransactionItems{
			*paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
				PriceID:  priceID,
				Quantity: 1,
			}),
		},
		CustomData: custom,
	}
	if req.SuccessURL != "" {
		txReq.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(req.SuccessURL)}
	}

	tx, err := p.client.TransactionsClient.CreateTransaction(ctx, txReq)
	if err != nil {
		return nil, err
	}
	if tx.Checkout == nil || tx.Checkout.URL == nil {
		return nil, ErrNoCheckoutURL
	}
	return &billing.Checkout{ID: tx.ID, URL: *tx.Checkout.URL}, nil
}

func (p *Processor) RetrieveCheckout(ctx context.Context, id string) (*billing.CheckoutResult, error) {
	tx, err := p.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{TransactionID: id})
	if err != nil {
		return nil, err
	}

	// totals are strings in the lowest currency unit
	total, err := decimal.NewFromString(tx.Details.Totals.GrandTotal)
	if err != nil && tx.Details.Totals.GrandTotal != "" {
		return nil, fmt.Errorf("parse paddle grand total %q: %w", tx.Details.Totals.GrandTotal, err)
	}

	res := &billing.CheckoutResult{
		ID:               tx.ID,
		Outcome:          outcome(tx.Status),
		RawStatus:        string(tx.Status),
		AmountTotalCents: total.IntPart(),
		Currency:         strings.ToLower(string(tx.CurrencyCode)),
		Metadata:         metadata(tx.CustomData),
		PaymentReference: tx.ID,
	}
	if tx.SubscriptionID != nil {
		res.SubscriptionID = *tx.SubscriptionID
	}
	return res, nil
}

func outcome(s paddle.TransactionStatus) billing.CheckoutOutcome {
	switch s {
	case paddle.TransactionStatusCompleted, paddle.TransactionStatusPaid:
		return billing.OutcomePaid
	case paddle.TransactionStatusDraft, paddle.TransactionStatusReady, paddle.TransactionStatusBilled:
		return billing.OutcomeOpen
	case paddle.TransactionStatusCanceled:
		return billing.OutcomeExpired
	}
	return billing.OutcomeFailed
}

func metadata(custom paddle.CustomData) map[string]string {
	out := make(map[string]string, len(custom))
	for k, v := range custom {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}

var _ billing.CardProcessor = (*Processor)(nil)
