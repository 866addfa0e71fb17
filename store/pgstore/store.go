// Package pgstore persists users, payment attempts and subscriptions in
// PostgreSQL. Guarded writes are single UPDATE statements whose WHERE clause
// carries the guard.
package pgstore

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/faceswap/pkg/pg"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

//go:embed migrations/*.sql
var migrations embed.FS

const googleIDIndex = "users_google_id_unique"

var ErrCorruptRow = errors.New("pgstore: corrupt row")

// Migrate applies the embedded schema migrations.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	return pg.Migrate(ctx, pool, migrations, "migrations", cfg, log)
}

// Store implements identity.UserStore, billing.AttemptStore and
// billing.SubscriptionStore.
type Store struct {
	db  *pgxpool.Pool
	now func() time.Time
}

// New wraps a pgx pool.
func New(db *pgxpool.Pool) *Store {
	return &Store{db: db, now: time.Now}
}

const userColumns = `id, email, password_hash, google_id, full_name, is_active,
	entitlement_state, monthly_cycle_end, free_units_used, monthly_units_used,
	last_action_at, subscription_id, subscription_start, last_reset_cycle_end,
	created_at, updated_at`

func scanUser(row pgx.Row) (*identity.User, error) {
	var (
		u        identity.User
		googleID *string
		state    string
	)
	err := row.Scan(
		&u.ID, &u.Email, &u.PasswordHash, &googleID, &u.FullName, &u.IsActive,
		&state, &u.MonthlyCycleEnd, &u.FreeUnitsUsed, &u.MonthlyUnitsUsed,
		&u.LastActionAt, &u.SubscriptionID, &u.SubscriptionStart, &u.LastResetCycleEnd,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	if googleID != nil {
		u.GoogleID = *googleID
	}
	u.EntitlementState = identity.EntitlementState(state)
	return &u, nil
}

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, u *identity.User) error {
	_, err := s.db.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`,
		u.ID, u.Email, u.PasswordHash, u.GoogleID, u.FullName, u.IsActive,
		string(u.EntitlementState), u.MonthlyCycleEnd, u.FreeUnitsUsed, u.MonthlyUnitsUsed,
		u.LastActionAt, u.SubscriptionID, u.SubscriptionStart, u.LastResetCycleEnd,
		u.CreatedAt, u.UpdatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		if pg.ConstraintName(err) == googleIDIndex {
			return identity.ErrProviderLinked
		}
		return identity.ErrEmailAlreadyExists
	}
	return err
}

// GetUserByID returns identity.ErrUserNotFound when no row matches.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// GetUserByEmail looks up a user by email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email))
}

// GetUserByGoogleID never matches an empty id.
func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (*identity.User, error) {
	if googleID == "" {
		return nil, identity.ErrUserNotFound
	}
	return scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID))
}

// LinkGoogleID stores googleID on the user. A unique violation maps to
// identity.ErrProviderLinked.
func (s *Store) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string) error {
	tag, err := s.db.Exec(ctx, `UPDATE users SET google_id = $2, updated_at = $3 WHERE id = $1`,
		id, googleID, s.now().UTC())
	if err != nil {
		if pg.IsDuplicateKeyError(err) {
			return identity.ErrProviderLinked
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// IncrementUsage increments counter in one UPDATE guarded by the limit.
func (s *Store) IncrementUsage(ctx context.Context, id uuid.UUID, counter identity.UsageCounter, limit int, at time.Time) (*identity.User, error) {
	var query string
	args := []any{id, at}
	switch counter {
	case identity.CounterNone:
		query = `UPDATE users SET last_action_at = $2, updated_at = $2 WHERE id = $1`
	case identity.CounterFree:
		query = `UPDATE users SET free_units_used = free_units_used + 1, last_action_at = $2, updated_at = $2
			WHERE id = $1 AND free_units_used < $3`
		args = append(args, limit)
	case identity.CounterMonthly:
		query = `UPDATE users SET monthly_units_used = monthly_units_used + 1, last_action_at = $2, updated_at = $2
			WHERE id = $1 AND monthly_units_used < $3`
		args = append(args, limit)
	default:
		return nil, identity.ErrInvalidUsageCounter
	}

	u, err := scanUser(s.db.QueryRow(ctx, query+` RETURNING `+userColumns, args...))
	if errors.Is(err, identity.ErrUserNotFound) {
		if _, err := s.GetUserByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, identity.ErrUsageLimitReached
	}
	return u, err
}

// ApplyMutation updates the columns set in m in a single statement and
// returns the resulting row.
func (s *Store) ApplyMutation(ctx context.Context, id uuid.UUID, m identity.UserMutation) (*identity.User, error) {
	if m.Empty() {
		return s.GetUserByID(ctx, id)
	}

	var sets []string
	args := []any{id}
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	set("updated_at", s.now().UTC())
	if m.State != nil {
		set("entitlement_state", string(*m.State))
		set("monthly_cycle_end", m.CycleEnd)
	}
	if m.Subscription != nil {
		set("subscription_id", m.Subscription.ID)
		set("subscription_start", m.Subscription.Start)
	}
	if m.ResetMonthlyUsage {
		sets = append(sets, "monthly_units_used = 0")
	}
	if m.LastResetCycleEnd != nil {
		set("last_reset_cycle_end", *m.LastResetCycleEnd)
	}

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = $1 RETURNING ` + userColumns
	return scanUser(s.db.QueryRow(ctx, query, args...))
}

const attemptColumns = `id, user_id, amount::text, currency, method, processor,
	transaction_id, status, metadata, created_at, updated_at`

func scanAttempt(row pgx.Row) (*billing.Attempt, error) {
	var (
		a        billing.Attempt
		amount   string
		metadata []byte
	)
	err := row.Scan(&a.ID, &a.UserID, &amount, &a.Currency, &a.Method, &a.Processor,
		&a.TransactionID, &a.Status, &metadata, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrAttemptNotFound
		}
		return nil, err
	}
	if a.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, errors.Join(ErrCorruptRow, err)
	}
	if err := json.Unmarshal(metadata, &a.Metadata); err != nil {
		return nil, errors.Join(ErrCorruptRow, err)
	}
	return &a, nil
}

// CreateAttempt inserts a payment attempt row.
func (s *Store) CreateAttempt(ctx context.Context, a *billing.Attempt) error {
	metadata, err := json.Marshal(a.Metadata)
	if err != nil {
		return err
	}
	var sessionID *string
	if a.Metadata.Card != nil && a.Metadata.Card.SessionID != "" {
		sessionID = &a.Metadata.Card.SessionID
	}
	_, err = s.db.Exec(ctx, `INSERT INTO payment_attempts
		(id, user_id, amount, currency, method, processor, transaction_id, status, session_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		a.ID, a.UserID, a.Amount.String(), string(a.Currency), string(a.Method), a.Processor,
		a.TransactionID, string(a.Status), sessionID, metadata, a.CreatedAt, a.UpdatedAt,
	)
	return err
}

// GetAttempt loads an attempt by id.
func (s *Store) GetAttempt(ctx context.Context, id uuid.UUID) (*billing.Attempt, error) {
	return scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE id = $1`, id))
}

// GetAttemptBySessionID matches the indexed session_id column.
func (s *Store) GetAttemptBySessionID(ctx context.Context, sessionID string) (*billing.Attempt, error) {
	return scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts WHERE session_id = $1`, sessionID))
}

// LatestSucceededAttempt returns the user's newest succeeded attempt, or
// billing.ErrAttemptNotFound.
func (s *Store) LatestSucceededAttempt(ctx context.Context, userID uuid.UUID) (*billing.Attempt, error) {
	return scanAttempt(s.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM payment_attempts
		WHERE user_id = $1 AND status = $2
		ORDER BY updated_at DESC
		LIMIT 1`, userID, string(billing.StatusSucceeded)))
}

// UpdateAttemptStatus transitions the attempt only when its status is in
// from. An empty TransactionID or FailureReason leaves the stored value as is.
func (s *Store) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, from []billing.Status, u billing.AttemptUpdate) (*billing.Attempt, error) {
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	a, err := scanAttempt(s.db.QueryRow(ctx, `UPDATE payment_attempts SET
			status = $3,
			transaction_id = CASE WHEN $4 = '' THEN transaction_id ELSE $4 END,
			metadata = CASE WHEN $5 = '' THEN metadata ELSE jsonb_set(metadata, '{failure_reason}', to_jsonb($5::text)) END,
			updated_at = $6
		WHERE id = $1 AND status = ANY($2)
		RETURNING `+attemptColumns,
		id, allowed, string(u.Status), u.TransactionID, u.FailureReason, u.At,
	))
	if errors.Is(err, billing.ErrAttemptNotFound) {
		if _, err := s.GetAttempt(ctx, id); err != nil {
			return nil, err
		}
		return nil, billing.ErrInvalidTransition
	}
	return a, err
}

const subscriptionColumns = `id, user_id, plan, processor_subscription_id, status,
	start_date, end_date, last_payment_date, created_at, updated_at`

func scanSubscription(row pgx.Row) (*billing.Subscription, error) {
	var sub billing.Subscription
	err := row.Scan(&sub.ID, &sub.UserID, &sub.Plan, &sub.ProcessorSubscriptionID, &sub.Status,
		&sub.StartDate, &sub.EndDate, &sub.LastPaymentDate, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

// GetSubscriptionByUser loads the user's subscription row.
func (s *Store) GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	return scanSubscription(s.db.QueryRow(ctx, `SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1`, userID))
}

// UpsertSubscription keys the row on user_id. The conflict branch keeps the
// stored id and creation time, which gives Subscription.Merge semantics.
func (s *Store) UpsertSubscription(ctx context.Context, sub *billing.Subscription) (*billing.Subscription, error) {
	return scanSubscription(s.db.QueryRow(ctx, `INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			processor_subscription_id = CASE
				WHEN EXCLUDED.processor_subscription_id = '' THEN subscriptions.processor_subscription_id
				ELSE EXCLUDED.processor_subscription_id END,
			status = EXCLUDED.status,
			start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date,
			last_payment_date = EXCLUDED.last_payment_date,
			updated_at = EXCLUDED.updated_at
		RETURNING `+subscriptionColumns,
		sub.ID, sub.UserID, string(sub.Plan), sub.ProcessorSubscriptionID, string(sub.Status),
		sub.StartDate, sub.EndDate, sub.LastPaymentDate, sub.CreatedAt, sub.UpdatedAt,
	))
}

// SetSubscriptionStatus returns billing.ErrSubscriptionNotFound when the
// user has no subscription.
func (s *Store) SetSubscriptionStatus(ctx context.Context, userID uuid.UUID, status billing.SubscriptionStatus) error {
	tag, err := s.db.Exec(ctx, `UPDATE subscriptions SET status = $2, updated_at = $3 WHERE user_id = $1`,
		userID, string(status), s.now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

var (
	_ identity.UserStore        = (*Store)(nil)
	_ billing.AttemptStore      = (*Store)(nil)
	_ billing.SubscriptionStore = (*Store)(nil)
)
