package billing

import "github.com/shopspring/decimal"

// Config is the billing configuration.
type Config struct {
	OneTimePriceCents   int64  `env:"BILLING_ONE_TIME_PRICE_CENTS" envDefault:"2999"`
	MonthlyPriceCents   int64  `env:"BILLING_MONTHLY_PRICE_CENTS" envDefault:"299"`
	Currency            string `env:"BILLING_CURRENCY" envDefault:"usd"`
	SuccessURL          string `env:"BILLING_SUCCESS_URL" envDefault:"http://localhost:3000/payment/success?session_id={CHECKOUT_SESSION_ID}"`
	CancelURL           string `env:"BILLING_CANCEL_URL" envDefault:"http://localhost:3000/payment/cancel"`
	CryptoWalletAddress string `env:"BILLING_USDT_WALLET_ADDRESS"`
	Processor           string `env:"BILLING_CARD_PROCESSOR" envDefault:"stripe"`
}

// DefaultConfig returns the default prices with no wallet configured.
func DefaultConfig() Config {
	return Config{
		OneTimePriceCents: 2999,
		MonthlyPriceCents: 299,
		Currency:          string(CurrencyUSD),
	}
}

// PriceCents returns the configured price of plan.
func (c Config) PriceCents(plan Plan) (int64, error) {
	switch plan {
	case PlanOneTime:
		return c.OneTimePriceCents, nil
	case PlanMonthly:
		return c.MonthlyPriceCents, nil
	}
	return 0, ErrInvalidPlan
}

// Price returns the configured price of plan in currency units.
func (c Config) Price(plan Plan) (decimal.Decimal, error) {
	cents, err := c.PriceCents(plan)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.New(cents, -2), nil
}
