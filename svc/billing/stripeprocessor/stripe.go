// Package stripeprocessor implements billing.CardProcessor with Stripe Checkout.
package stripeprocessor

import (
	"context"
	"errors"

	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/checkout/session"

	"github.com/dmitrymomot/faceswap/svc/billing"
)

// Name identifies Stripe on payment attempts.
const Name = "stripe"

var ErrMissingSecretKey = errors.New("stripeprocessor: secret key is required")

// Config holds the Stripe credentials.
type Config struct {
	SecretKey   string `env:"STRIPE_SECRET_KEY"`
	ProductName string `env:"STRIPE_PRODUCT_NAME" envDefault:"Faceswap"`
}

// Processor creates and reads Stripe Checkout sessions.
type Processor struct {
	sessions    *session.Client
	productName string
}

// Option configures a Processor.
type Option func(*options)

type options struct {
	backend stripe.Backend
}

// WithBackend replaces the Stripe API backend.
func WithBackend(b stripe.Backend) Option {
	return func(o *options) {
		o.backend = b
	}
}

// New returns ErrMissingSecretKey when cfg has no key.
func New(cfg Config, opts ...Option) (*Processor, error) {
	if cfg.SecretKey == "" {
		return nil, ErrMissingSecretKey
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.backend == nil {
		o.backend = stripe.GetBackend(stripe.APIBackend)
	}
	name := cfg.ProductName
	if name == "" {
		name = "Faceswap"
	}
	return &Processor{
		sessions:    &session.Client{B: o.backend, Key: cfg.SecretKey},
		productName: name,
	}, nil
}

func (p *Processor) Name() string {
	return Name
}

func (p *Processor) CreateCheckout(ctx context.Context, req billing.CheckoutRequest) (*billing.Checkout, error) {
	price := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(string(req.Currency)),
		UnitAmount: stripe.Int64(req.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(p.productName + " " + string(req.Plan)),
		},
	}
	mode := stripe.CheckoutSessionModePayment
	if req.Mode == billing.ModeSubscription {
		mode = stripe.CheckoutSessionModeSubscription
		price.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(string(stripe.PriceRecurringIntervalMonth)),
		}
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(mode)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{PriceData: price, Quantity: stripe.Int64(1)},
		},
		SuccessURL:        stripe.String(req.SuccessURL),
		CancelURL:         stripe.String(req.CancelURL),
		ClientReferenceID: stripe.String(req.Metadata["user_id"]),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := p.sessions.New(params)
	if err != nil {
		return nil, err
	}
	return &billing.Checkout{ID: s.ID, URL: s.URL}, nil
}

func (p *Processor) RetrieveCheckout(ctx context.Context, id string) (*billing.CheckoutResult, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := p.sessions.Get(id, params)
	if err != nil {
		return nil, err
	}

	res := &billing.CheckoutResult{
		ID:               s.ID,
		Outcome:          outcome(s),
		RawStatus:        string(s.Status),
		AmountTotalCents: s.AmountTotal,
		Currency:         string(s.Currency),
		Metadata:         s.Metadata,
	}
	if s.PaymentIntent != nil {
		res.PaymentReference = s.PaymentIntent.ID
	}
	if s.Subscription != nil {
		res.SubscriptionID = s.Subscription.ID
	}
	return res, nil
}

func outcome(s *stripe.CheckoutSession) billing.CheckoutOutcome {
	switch s.Status {
	case stripe.CheckoutSessionStatusComplete:
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid {
			return billing.OutcomePaid
		}
		// async payment methods complete the session before funds settle
		if s.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			return billing.OutcomeOpen
		}
		return billing.OutcomeFailed
	case stripe.CheckoutSessionStatusOpen:
		return billing.OutcomeOpen
	case stripe.CheckoutSessionStatusExpired:
		return billing.OutcomeExpired
	}
	return billing.OutcomeFailed
}

var _ billing.CardProcessor = (*Processor)(nil)
