package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmitrymomot/faceswap/pkg/locker"
	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// CardCheckout is returned by InitiateCardPayment.
type CardCheckout struct {
	RedirectURL string    `json:"redirect_url,omitempty"`
	SessionID   string    `json:"session_id"`
	AttemptID   uuid.UUID `json:"attempt_id"`
}

// CryptoTransfer tells the user where to send funds.
type CryptoTransfer struct {
	AttemptID      uuid.UUID       `json:"payment_attempt_id"`
	WalletAddress  string          `json:"wallet_address"`
	ExpectedAmount decimal.Decimal `json:"expected_amount_usd"`
	Plan           Plan            `json:"payment_type"`
	Message        string          `json:"message"`
}

// PaymentStatus is the user's current entitlement as reported by the API.
type PaymentStatus struct {
	UserID         uuid.UUID  `json:"user_id"`
	Plan           string     `json:"subscription_type"`
	IsActive       bool       `json:"is_active_subscriber"`
	RemainingUnits *int       `json:"requests_remaining"`
	CycleEnd       *time.Time `json:"subscription_end_date"`
	Message        string     `json:"message"`
}

// Service initiates and reconciles payments.
type Service interface {
	InitiateCardPayment(ctx context.Context, userID uuid.UUID, plan Plan) (*CardCheckout, error)
	InitiateCryptoTransfer(ctx context.Context, userID uuid.UUID, plan Plan) (*CryptoTransfer, error)
	VerifyCardPayment(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatus, error)
	ConfirmCryptoTransfer(ctx context.Context, userID, attemptID uuid.UUID, hash string) (*PaymentStatus, error)
	UpsertSubscription(ctx context.Context, userID uuid.UUID, plan Plan, processorSubscriptionID string) (*Subscription, error)
	GetStatus(ctx context.Context, userID uuid.UUID) (*PaymentStatus, error)
}

// Recorder observes payment events. *metrics.Metrics implements it.
type Recorder interface {
	PaymentInitiated(method, plan string)
	Reconciled(method, status string)
}

type service struct {
	cfg       Config
	limits    entitlement.Limits
	users     identity.UserStore
	attempts  AttemptStore
	subs      SubscriptionStore
	locker    locker.Locker
	processor CardProcessor
	verifier  TransferVerifier
	recorder  Recorder
	now       func() time.Time
	logger    *slog.Logger
}

// ServiceOption configures the billing service.
type ServiceOption func(*service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithCardProcessor enables card payments. Without it card operations fail
// with ErrProcessorNotConfigured.
func WithCardProcessor(p CardProcessor) ServiceOption {
	return func(s *service) {
		s.processor = p
	}
}

// WithTransferVerifier replaces StubVerifier.
func WithTransferVerifier(v TransferVerifier) ServiceOption {
	return func(s *service) {
		if v != nil {
			s.verifier = v
		}
	}
}

// WithRecorder reports payment events to r.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *service) {
		s.recorder = r
	}
}

// WithLimits sets the quotas used to report remaining units.
func WithLimits(l entitlement.Limits) ServiceOption {
	return func(s *service) {
		s.limits = l
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the billing service.
func NewService(cfg Config, users identity.UserStore, attempts AttemptStore, subs SubscriptionStore, l locker.Locker, opts ...ServiceOption) Service {
	s := &service{
		cfg:      cfg,
		limits:   entitlement.DefaultLimits(),
		users:    users,
		attempts: attempts,
		subs:     subs,
		locker:   l,
		verifier: StubVerifier{},
		now:      time.Now,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) InitiateCardPayment(ctx context.Context, userID uuid.UUID, plan Plan) (*CardCheckout, error) {
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	if s.processor == nil {
		return nil, ErrProcessorNotConfigured
	}
	cents, err := s.cfg.PriceCents(plan)
	if err != nil {
		return nil, err
	}

	checkout, err := s.processor.CreateCheckout(ctx, CheckoutRequest{
		Plan:        plan,
		AmountCents: cents,
		Currency:    Currency(s.cfg.Currency),
		Mode:        ModeFor(plan),
		Metadata: map[string]string{
			"user_id": userID.String(),
			"plan":    string(plan),
		},
		SuccessURL: s.cfg.SuccessURL,
		CancelURL:  s.cfg.CancelURL,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "create checkout failed",
			logger.Component("billing"),
			logger.UserID(userID),
			logger.Processor(s.processor.Name()),
			logger.Error(err),
		)
		return nil, errors.Join(ErrUpstream, err)
	}

	status := StatusPending
	if checkout.URL != "" {
		status = StatusRequiresAction
	}
	now := s.now().UTC()
	attempt := &Attempt{
		ID:        uuid.New(),
		UserID:    userID,
		Amount:    decimal.New(cents, -2),
		Currency:  Currency(s.cfg.Currency),
		Method:    MethodCard,
		Processor: s.processor.Name(),
		Status:    status,
		Metadata: Metadata{
			Plan: string(plan),
			Card: &CardMetadata{SessionID: checkout.ID, Processor: s.processor.Name()},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	s.recordInitiated(MethodCard, plan)
	s.logger.InfoContext(ctx, "card checkout created",
		logger.Component("billing"),
		logger.UserID(userID),
		logger.AttemptID(attempt.ID),
		logger.Plan(string(plan)),
		logger.Processor(s.processor.Name()),
	)

	return &CardCheckout{RedirectURL: checkout.URL, SessionID: checkout.ID, AttemptID: attempt.ID}, nil
}

func (s *service) InitiateCryptoTransfer(ctx context.Context, userID uuid.UUID, plan Plan) (*CryptoTransfer, error) {
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	if s.cfg.CryptoWalletAddress == "" {
		return nil, ErrCryptoNotConfigured
	}
	price, err := s.cfg.Price(plan)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	attempt := &Attempt{
		ID:       uuid.New(),
		UserID:   userID,
		Amount:   price,
		Currency: CurrencyUSDT,
		Method:   MethodCrypto,
		Status:   StatusPending,
		Metadata: Metadata{
			Plan:   string(plan),
			Crypto: &CryptoMetadata{ExpectedUSD: price, WalletAddress: s.cfg.CryptoWalletAddress},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}

	s.recordInitiated(MethodCrypto, plan)
	s.logger.InfoContext(ctx, "crypto transfer initiated",
		logger.Component("billing"),
		logger.UserID(userID),
		logger.AttemptID(attempt.ID),
		logger.Plan(string(plan)),
	)

	return &CryptoTransfer{
		AttemptID:      attempt.ID,
		WalletAddress:  s.cfg.CryptoWalletAddress,
		ExpectedAmount: price,
		Plan:           plan,
		Message:        "Send the expected amount in USDT to the wallet address, then submit the transaction hash.",
	}, nil
}

func (s *service) VerifyCardPayment(ctx context.Context, userID uuid.UUID, reference string) (*PaymentStatus, error) {
	attempt, err := s.attempts.GetAttemptBySessionID(ctx, reference)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		s.logger.ErrorContext(ctx, "checkout verified by a different user",
			logger.Component("billing"),
			logger.UserID(userID),
			logger.AttemptID(attempt.ID),
		)
		return nil, ErrOwnershipMismatch
	}

	switch {
	case attempt.Status == StatusSucceeded:
		// GetStatus also restores a grant whose upsert failed last time.
		return s.GetStatus(ctx, userID)
	case attempt.Status.Terminal():
		return nil, ErrAttemptFailed
	case s.processor == nil:
		return nil, ErrProcessorNotConfigured
	}

	result, err := s.processor.RetrieveCheckout(ctx, reference)
	if err != nil {
		s.logger.ErrorContext(ctx, "retrieve checkout failed",
			logger.Component("billing"),
			logger.AttemptID(attempt.ID),
			logger.Processor(s.processor.Name()),
			logger.Error(err),
		)
		return nil, errors.Join(ErrUpstream, err)
	}

	plan, err := ParsePlan(attempt.Metadata.Plan)
	if err != nil || (result.Metadata["plan"] != "" && result.Metadata["plan"] != attempt.Metadata.Plan) {
		if ferr := s.closeAttempt(ctx, attempt, StatusFailed, "invalid_plan_metadata", ""); ferr != nil {
			return nil, ferr
		}
		return nil, ErrIntegrity
	}

	switch result.Outcome {
	case OutcomeOpen:
		return nil, ErrPaymentPending
	case OutcomeExpired:
		if err := s.closeAttempt(ctx, attempt, StatusAbandoned, "checkout_expired", ""); err != nil {
			return nil, err
		}
		return nil, ErrPaymentFailed
	case OutcomePaid:
		// price lookups cannot fail for a parsed plan
		cents, _ := s.cfg.PriceCents(plan)
		if result.AmountTotalCents < cents {
			if err := s.closeAttempt(ctx, attempt, StatusFailed, "amount_below_price", ""); err != nil {
				return nil, err
			}
			return nil, ErrPaymentFailed
		}
	default:
		if err := s.closeAttempt(ctx, attempt, StatusFailed, "processor_status_"+strings.ToLower(result.RawStatus), ""); err != nil {
			return nil, err
		}
		return nil, ErrPaymentFailed
	}

	txID := result.PaymentReference
	if txID == "" {
		txID = result.ID
	}
	return s.grant(ctx, attempt, plan, txID, result.SubscriptionID)
}

func (s *service) ConfirmCryptoTransfer(ctx context.Context, userID, attemptID uuid.UUID, hash string) (*PaymentStatus, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID || attempt.Method != MethodCrypto {
		return nil, ErrAttemptNotFound
	}

	switch attempt.Status {
	case StatusSucceeded:
		return nil, ErrAlreadySucceeded
	case StatusFailed, StatusAbandoned:
		return nil, ErrAttemptFailed
	}

	if !ValidTransactionHash(hash) {
		return nil, ErrInvalidTransactionHash
	}

	if err := s.verifier.Verify(ctx, attempt, hash); err != nil {
		if errors.Is(err, ErrTransferRejected) {
			if ferr := s.closeAttempt(ctx, attempt, StatusFailed, "transfer_rejected", hash); ferr != nil {
				return nil, ferr
			}
			return nil, errors.Join(ErrPaymentFailed, err)
		}
		return nil, errors.Join(ErrUpstream, err)
	}

	plan, err := ParsePlan(attempt.Metadata.Plan)
	if err != nil {
		if ferr := s.closeAttempt(ctx, attempt, StatusFailed, "invalid_plan_metadata", hash); ferr != nil {
			return nil, ferr
		}
		return nil, ErrIntegrity
	}

	return s.grant(ctx, attempt, plan, hash, "")
}

// grant marks attempt succeeded and upserts the subscription. The status
// change is conditional, so only one of several concurrent confirmations of
// the same attempt reaches the upsert.
func (s *service) grant(ctx context.Context, attempt *Attempt, plan Plan, txID, processorSubID string) (*PaymentStatus, error) {
	_, err := s.attempts.UpdateAttemptStatus(ctx, attempt.ID, SourcesFor(StatusSucceeded), AttemptUpdate{
		Status:        StatusSucceeded,
		TransactionID: txID,
		At:            s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, s.lostRace(ctx, attempt)
		}
		return nil, err
	}
	s.recordReconciled(attempt.Method, StatusSucceeded)

	if _, err := s.UpsertSubscription(ctx, attempt.UserID, plan, processorSubID); err != nil {
		s.logger.ErrorContext(ctx, "subscription grant failed after payment succeeded",
			logger.Component("billing"),
			logger.UserID(attempt.UserID),
			logger.AttemptID(attempt.ID),
			logger.Error(err),
		)
		return nil, err
	}

	s.logger.InfoContext(ctx, "payment reconciled",
		logger.Component("billing"),
		logger.UserID(attempt.UserID),
		logger.AttemptID(attempt.ID),
		logger.Plan(string(plan)),
		logger.PaymentStatus(string(StatusSucceeded)),
	)
	return s.GetStatus(ctx, attempt.UserID)
}

// lostRace reports why a conditional transition found the attempt already
// moved by a concurrent request.
func (s *service) lostRace(ctx context.Context, attempt *Attempt) error {
	current, err := s.attempts.GetAttempt(ctx, attempt.ID)
	if err != nil {
		return err
	}
	if current.Status == StatusSucceeded {
		return ErrAlreadySucceeded
	}
	return ErrAttemptFailed
}

// closeAttempt moves attempt to a failed or abandoned state with reason.
// A non-empty txID records the reference the client submitted.
func (s *service) closeAttempt(ctx context.Context, attempt *Attempt, to Status, reason, txID string) error {
	_, err := s.attempts.UpdateAttemptStatus(ctx, attempt.ID, SourcesFor(to), AttemptUpdate{
		Status:        to,
		TransactionID: txID,
		FailureReason: reason,
		At:            s.now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return s.lostRace(ctx, attempt)
		}
		return err
	}
	s.recordReconciled(attempt.Method, to)
	s.logger.WarnContext(ctx, "payment attempt closed",
		logger.Component("billing"),
		logger.UserID(attempt.UserID),
		logger.AttemptID(attempt.ID),
		logger.PaymentStatus(string(to)),
		logger.Reason(reason),
	)
	return nil
}

func (s *service) UpsertSubscription(ctx context.Context, userID uuid.UUID, plan Plan, processorSubscriptionID string) (*Subscription, error) {
	if _, err := ParsePlan(string(plan)); err != nil {
		return nil, err
	}
	release, err := s.locker.Lock(ctx, entitlement.UserLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()
	return s.upsertLocked(ctx, userID, plan, processorSubscriptionID)
}

// upsertLocked writes the subscription row and mirrors it onto the user.
// The caller holds the user's lock.
func (s *service) upsertLocked(ctx context.Context, userID uuid.UUID, plan Plan, processorSubscriptionID string) (*Subscription, error) {
	// stores keep millisecond precision; cycle ends are compared with Equal
	now := s.now().UTC().Truncate(time.Millisecond)
	var end *time.Time
	if plan == PlanMonthly {
		e := now.Add(MonthlyCycle)
		end = &e
	}

	sub, err := s.subs.UpsertSubscription(ctx, &Subscription{
		ID:                      uuid.New(),
		UserID:                  userID,
		Plan:                    plan,
		ProcessorSubscriptionID: processorSubscriptionID,
		Status:                  SubscriptionActive,
		StartDate:               now,
		EndDate:                 end,
		LastPaymentDate:         now,
		CreatedAt:               now,
		UpdatedAt:               now,
	})
	if err != nil {
		return nil, err
	}

	if _, err := s.users.ApplyMutation(ctx, userID, grantMutation(sub, true)); err != nil {
		return nil, err
	}
	return sub, nil
}

// grantMutation mirrors sub onto the user. Monthly grants restart the usage
// counter when resetUsage is set.
func grantMutation(sub *Subscription, resetUsage bool) identity.UserMutation {
	state := identity.EntitlementState(sub.Plan)
	m := identity.UserMutation{
		State:        &state,
		CycleEnd:     sub.EndDate,
		Subscription: &identity.SubscriptionMirror{ID: sub.ID, Start: sub.StartDate, End: sub.EndDate},
	}
	if sub.Plan == PlanMonthly && resetUsage {
		m.ResetMonthlyUsage = true
		m.LastResetCycleEnd = sub.EndDate
	}
	return m
}

func (s *service) GetStatus(ctx context.Context, userID uuid.UUID) (*PaymentStatus, error) {
	release, err := s.locker.Lock(ctx, entitlement.UserLockKey(userID))
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()

	if user, err = s.restoreLostGrant(ctx, user); err != nil {
		return nil, err
	}
	if user, err = s.repairGrant(ctx, user, now); err != nil {
		return nil, err
	}

	status, mut := entitlement.DeriveStatus(*user, s.limits, now)
	if mut != nil {
		if user, err = s.users.ApplyMutation(ctx, userID, *mut); err != nil {
			return nil, err
		}
	}
	if status.Lapsed {
		if err := s.subs.SetSubscriptionStatus(ctx, userID, SubscriptionInactive); err != nil && !errors.Is(err, ErrSubscriptionNotFound) {
			return nil, err
		}
		s.logger.InfoContext(ctx, "monthly subscription lapsed",
			logger.Component("billing"),
			logger.UserID(userID),
			logger.Plan(string(status.Plan)),
		)
	}

	return &PaymentStatus{
		UserID:         user.ID,
		Plan:           string(status.Plan),
		IsActive:       status.IsActive,
		RemainingUnits: status.RemainingUnits,
		CycleEnd:       status.CycleEnd,
		Message:        status.Message,
	}, nil
}

// restoreLostGrant re-runs the subscription upsert for the user's latest
// succeeded attempt when no subscription row records that payment. This
// happens when the upsert failed after the attempt was marked succeeded.
// The caller holds the user's lock.
func (s *service) restoreLostGrant(ctx context.Context, user *identity.User) (*identity.User, error) {
	attempt, err := s.attempts.LatestSucceededAttempt(ctx, user.ID)
	if errors.Is(err, ErrAttemptNotFound) {
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	sub, err := s.subs.GetSubscriptionByUser(ctx, user.ID)
	switch {
	case errors.Is(err, ErrSubscriptionNotFound):
	case err != nil:
		return nil, err
	case grantCovers(sub, attempt):
		return user, nil
	}

	plan, err := ParsePlan(attempt.Metadata.Plan)
	if err != nil {
		return nil, errors.Join(ErrIntegrity, err)
	}
	if _, err := s.upsertLocked(ctx, user.ID, plan, ""); err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "subscription restored from succeeded attempt",
		logger.Component("billing"),
		logger.UserID(user.ID),
		logger.AttemptID(attempt.ID),
		logger.Plan(string(plan)),
	)
	return s.users.GetUserByID(ctx, user.ID)
}

// grantCovers reports whether sub was written at or after attempt succeeded.
func grantCovers(sub *Subscription, attempt *Attempt) bool {
	return !sub.LastPaymentDate.Before(attempt.UpdatedAt.Truncate(time.Millisecond))
}

// repairGrant re-applies an active subscription that the user record does
// not reflect, which happens when the user write of an upsert failed.
func (s *service) repairGrant(ctx context.Context, user *identity.User, now time.Time) (*identity.User, error) {
	sub, err := s.subs.GetSubscriptionByUser(ctx, user.ID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return user, nil
	}
	if err != nil {
		return nil, err
	}
	if !grantDiverged(user, sub, now) {
		return user, nil
	}

	resetUsage := sub.EndDate != nil && (user.LastResetCycleEnd == nil || !user.LastResetCycleEnd.Equal(*sub.EndDate))
	repaired, err := s.users.ApplyMutation(ctx, user.ID, grantMutation(sub, resetUsage))
	if err != nil {
		return nil, err
	}
	s.logger.WarnContext(ctx, "user entitlement repaired from subscription",
		logger.Component("billing"),
		logger.UserID(user.ID),
		logger.Plan(string(sub.Plan)),
	)
	return repaired, nil
}

func grantDiverged(user *identity.User, sub *Subscription, now time.Time) bool {
	if sub.Status != SubscriptionActive {
		return false
	}
	switch sub.Plan {
	case PlanOneTime:
		return user.EntitlementState != identity.StateOneTime
	case PlanMonthly:
		if sub.EndDate == nil || !sub.EndDate.After(now) {
			return false
		}
		return user.EntitlementState != identity.StateMonthly ||
			user.MonthlyCycleEnd == nil ||
			!user.MonthlyCycleEnd.Equal(*sub.EndDate)
	}
	return false
}

func (s *service) recordInitiated(m Method, plan Plan) {
	if s.recorder != nil {
		s.recorder.PaymentInitiated(string(m), string(plan))
	}
}

func (s *service) recordReconciled(m Method, st Status) {
	if s.recorder != nil {
		s.recorder.Reconciled(string(m), string(st))
	}
}

var _ Service = (*service)(nil)
