package entitlement

// Limits are the per-tier usage quotas.
type Limits struct {
	Free    int `env:"ENTITLEMENT_FREE_LIMIT" envDefault:"1"`
	Monthly int `env:"ENTITLEMENT_MONTHLY_LIMIT" envDefault:"40"`
}

// DefaultLimits returns one free unit and forty units per monthly cycle.
func DefaultLimits() Limits {
	return Limits{Free: 1, Monthly: 40}
}
