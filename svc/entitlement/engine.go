package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Consumption is the counter an allowed action is charged to.
type Consumption string

const (
	ConsumeNone    Consumption = "none"
	ConsumeFree    Consumption = "free"
	ConsumeMonthly Consumption = "monthly"
)

// Reason explains a denial.
type Reason string

const (
	ReasonFreeLimitReached    Reason = "free_limit_reached"
	ReasonMonthlyLimitReached Reason = "monthly_limit_reached"
)

// Decision is the outcome of CheckAndReserve.
type Decision struct {
	Allowed     bool
	Consumption Consumption
	Reason      Reason
}

// Err returns a *LimitError for a denial and nil otherwise.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return &LimitError{Reason: d.Reason}
}

// DecisionRecorder observes metering decisions. *metrics.Metrics implements it.
type DecisionRecorder interface {
	MeteredDecision(allowed bool, consumption, reason string)
}

// Engine decides and commits metered actions.
type Engine struct {
	users    identity.UserStore
	limits   Limits
	recorder DecisionRecorder
	logger   *slog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithRecorder reports every decision to r.
func WithRecorder(r DecisionRecorder) EngineOption {
	return func(e *Engine) {
		e.recorder = r
	}
}

// NewEngine creates an Engine with the given quotas.
func NewEngine(users identity.UserStore, limits Limits, opts ...EngineOption) *Engine {
	e := &Engine{
		users:  users,
		limits: limits,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Limits returns the configured quotas.
func (e *Engine) Limits() Limits {
	return e.limits
}

// CheckAndReserve applies the decision procedure to a user snapshot.
// The first matching rule wins.
func (e *Engine) CheckAndReserve(u *identity.User, now time.Time) Decision {
	d := decide(u, e.limits, now)
	if e.recorder != nil {
		e.recorder.MeteredDecision(d.Allowed, string(d.Consumption), string(d.Reason))
	}
	return d
}

func decide(u *identity.User, limits Limits, now time.Time) Decision {
	switch {
	case u.EntitlementState == identity.StateOneTime:
		return Decision{Allowed: true, Consumption: ConsumeNone}
	case cycleActive(u, now) && u.MonthlyUnitsUsed < limits.Monthly:
		return Decision{Allowed: true, Consumption: ConsumeMonthly}
	case cycleActive(u, now):
		return Decision{Reason: ReasonMonthlyLimitReached}
	case u.FreeUnitsUsed < limits.Free:
		return Decision{Allowed: true, Consumption: ConsumeFree}
	default:
		return Decision{Reason: ReasonFreeLimitReached}
	}
}

func cycleActive(u *identity.User, now time.Time) bool {
	return u.EntitlementState == identity.StateMonthly &&
		u.MonthlyCycleEnd != nil &&
		u.MonthlyCycleEnd.After(now)
}

// Commit charges one unit of consumption to the user and records the action
// time. The store applies it as a conditional increment, so a commit that
// would push a counter past its limit fails with a *LimitError.
func (e *Engine) Commit(ctx context.Context, userID uuid.UUID, c Consumption, now time.Time) (*identity.User, error) {
	counter, limit, reason, err := e.counterFor(c)
	if err != nil {
		return nil, err
	}

	user, err := e.users.IncrementUsage(ctx, userID, counter, limit, now)
	if err != nil {
		if errors.Is(err, identity.ErrUsageLimitReached) {
			e.logger.WarnContext(ctx, "usage commit rejected at limit",
				logger.Component("entitlement"),
				logger.UserID(userID),
				logger.Reason(string(reason)),
			)
			return nil, errors.Join(&LimitError{Reason: reason}, err)
		}
		return nil, err
	}

	e.logger.DebugContext(ctx, "usage committed",
		logger.Component("entitlement"),
		logger.UserID(userID),
		slog.String("consumption", string(c)),
	)
	return user, nil
}

func (e *Engine) counterFor(c Consumption) (identity.UsageCounter, int, Reason, error) {
	switch c {
	case ConsumeNone:
		return identity.CounterNone, 0, "", nil
	case ConsumeFree:
		return identity.CounterFree, e.limits.Free, ReasonFreeLimitReached, nil
	case ConsumeMonthly:
		return identity.CounterMonthly, e.limits.Monthly, ReasonMonthlyLimitReached, nil
	}
	return "", 0, "", ErrUnknownConsumption
}
