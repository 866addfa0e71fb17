// Package mongostore persists users, payment attempts and subscriptions in
// MongoDB. Every guarded write is a single FindOneAndUpdate whose filter
// carries the guard, so concurrent writers cannot both pass it.
package mongostore

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	mongox "github.com/dmitrymomot/faceswap/pkg/mongo"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

const (
	UsersCollection         = "users"
	AttemptsCollection      = "payment_attempts"
	SubscriptionsCollection = "subscriptions"

	googleIDIndex = "users_google_id_unique"
)

var ErrCorruptDocument = errors.New("mongostore: corrupt document")

// Store implements identity.UserStore, billing.AttemptStore and
// billing.SubscriptionStore.
type Store struct {
	users    *mongo.Collection
	attempts *mongo.Collection
	subs     *mongo.Collection
	now      func() time.Time
}

// New returns a store over db. Call EnsureIndexes once at startup.
func New(db *mongo.Database) *Store {
	return &Store{
		users:    db.Collection(UsersCollection),
		attempts: db.Collection(AttemptsCollection),
		subs:     db.Collection(SubscriptionsCollection),
		now:      time.Now,
	}
}

// Indexes lists the indexes the store relies on for uniqueness and lookups.
func Indexes() []mongox.Index {
	return []mongox.Index{
		{Collection: UsersCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetName("users_email_unique").SetUnique(true),
		}},
		{Collection: UsersCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "google_id", Value: 1}},
			Options: options.Index().SetName(googleIDIndex).SetUnique(true).SetSparse(true),
		}},
		{Collection: AttemptsCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("attempts_user_created"),
		}},
		{Collection: AttemptsCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "metadata.card.session_id", Value: 1}},
			Options: options.Index().SetName("attempts_session_id").SetSparse(true),
		}},
		{Collection: SubscriptionsCollection, Model: mongo.IndexModel{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetName("subscriptions_user_unique").SetUnique(true),
		}},
	}
}

// EnsureIndexes creates the store indexes in db.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	return mongox.EnsureIndexes(ctx, db, Indexes()...)
}

func afterUpdate() *options.FindOneAndUpdateOptionsBuilder {
	return options.FindOneAndUpdate().SetReturnDocument(options.After)
}

// CreateUser inserts user. Duplicate keys map to identity.ErrProviderLinked
// for the google_id index and identity.ErrEmailAlreadyExists otherwise.
func (s *Store) CreateUser(ctx context.Context, user *identity.User) error {
	if _, err := s.users.InsertOne(ctx, toUserDoc(user)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			if strings.Contains(err.Error(), googleIDIndex) {
				return identity.ErrProviderLinked
			}
			return identity.ErrEmailAlreadyExists
		}
		return err
	}
	return nil
}

// GetUserByID loads a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*identity.User, error) {
	return s.findUser(ctx, bson.M{"_id": id.String()})
}

// GetUserByEmail matches the email exactly.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*identity.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// GetUserByGoogleID loads the user linked to googleID.
func (s *Store) GetUserByGoogleID(ctx context.Context, googleID string) (*identity.User, error) {
	if googleID == "" {
		return nil, identity.ErrUserNotFound
	}
	return s.findUser(ctx, bson.M{"google_id": googleID})
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*identity.User, error) {
	var d userDoc
	if err := s.users.FindOne(ctx, filter).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(d)
}

func decodeUser(d userDoc) (*identity.User, error) {
	u, err := d.user()
	if err != nil {
		return nil, errors.Join(ErrCorruptDocument, err)
	}
	return u, nil
}

// LinkGoogleID sets google_id on the user document.
func (s *Store) LinkGoogleID(ctx context.Context, id uuid.UUID, googleID string) error {
	res, err := s.users.UpdateOne(ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"google_id": googleID, "updated_at": s.now().UTC()}},
	)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return identity.ErrProviderLinked
		}
		return err
	}
	if res.MatchedCount == 0 {
		return identity.ErrUserNotFound
	}
	return nil
}

// IncrementUsage increments counter with a single conditional update, so
// concurrent callers never push it past limit. It returns
// identity.ErrUsageLimitReached when the filter matches nothing.
func (s *Store) IncrementUsage(ctx context.Context, id uuid.UUID, counter identity.UsageCounter, limit int, at time.Time) (*identity.User, error) {
	filter := bson.M{"_id": id.String()}
	update := bson.M{"$set": bson.M{"last_action_at": at, "updated_at": at}}

	switch counter {
	case identity.CounterNone:
	case identity.CounterFree:
		filter["free_units_used"] = bson.M{"$lt": limit}
		update["$inc"] = bson.M{"free_units_used": 1}
	case identity.CounterMonthly:
		filter["monthly_units_used"] = bson.M{"$lt": limit}
		update["$inc"] = bson.M{"monthly_units_used": 1}
	default:
		return nil, identity.ErrInvalidUsageCounter
	}

	var d userDoc
	err := s.users.FindOneAndUpdate(ctx, filter, update, afterUpdate()).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := s.GetUserByID(ctx, id); err != nil {
			return nil, err
		}
		return nil, identity.ErrUsageLimitReached
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(d)
}

// ApplyMutation writes the fields set in m and returns the stored document.
func (s *Store) ApplyMutation(ctx context.Context, id uuid.UUID, m identity.UserMutation) (*identity.User, error) {
	if m.Empty() {
		return s.GetUserByID(ctx, id)
	}

	set := bson.M{"updated_at": s.now().UTC()}
	if m.State != nil {
		set["entitlement_state"] = string(*m.State)
		set["monthly_cycle_end"] = m.CycleEnd
	}
	if m.Subscription != nil {
		set["subscription_id"] = m.Subscription.ID.String()
		set["subscription_start"] = m.Subscription.Start
	}
	if m.ResetMonthlyUsage {
		set["monthly_units_used"] = 0
	}
	if m.LastResetCycleEnd != nil {
		set["last_reset_cycle_end"] = *m.LastResetCycleEnd
	}

	var d userDoc
	err := s.users.FindOneAndUpdate(ctx, bson.M{"_id": id.String()}, bson.M{"$set": set}, afterUpdate()).Decode(&d)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, identity.ErrUserNotFound
		}
		return nil, err
	}
	return decodeUser(d)
}

// CreateAttempt inserts a pending payment attempt.
func (s *Store) CreateAttempt(ctx context.Context, a *billing.Attempt) error {
	_, err := s.attempts.InsertOne(ctx, toAttemptDoc(a))
	return err
}

// GetAttempt loads an attempt by id.
func (s *Store) GetAttempt(ctx context.Context, id uuid.UUID) (*billing.Attempt, error) {
	return s.findAttempt(ctx, bson.M{"_id": id.String()})
}

// GetAttemptBySessionID finds an attempt by its processor session id.
func (s *Store) GetAttemptBySessionID(ctx context.Context, sessionID string) (*billing.Attempt, error) {
	return s.findAttempt(ctx, bson.M{"metadata.card.session_id": sessionID})
}

// LatestSucceededAttempt returns the user's succeeded attempt with the
// newest updated_at.
func (s *Store) LatestSucceededAttempt(ctx context.Context, userID uuid.UUID) (*billing.Attempt, error) {
	return s.findAttempt(ctx,
		bson.M{"user_id": userID.String(), "status": string(billing.StatusSucceeded)},
		options.FindOne().SetSort(bson.D{{Key: "updated_at", Value: -1}}),
	)
}

func (s *Store) findAttempt(ctx context.Context, filter bson.M, opts ...options.Lister[options.FindOneOptions]) (*billing.Attempt, error) {
	var d attemptDoc
	if err := s.attempts.FindOne(ctx, filter, opts...).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrAttemptNotFound
		}
		return nil, err
	}
	return decodeAttempt(d)
}

func decodeAttempt(d attemptDoc) (*billing.Attempt, error) {
	a, err := d.attempt()
	if err != nil {
		return nil, errors.Join(ErrCorruptDocument, err)
	}
	return a, nil
}

// UpdateAttemptStatus is a compare-and-set on status: the update only
// applies when the stored status is one of from.
func (s *Store) UpdateAttemptStatus(ctx context.Context, id uuid.UUID, from []billing.Status, u billing.AttemptUpdate) (*billing.Attempt, error) {
	allowed := make([]string, 0, len(from))
	for _, st := range from {
		allowed = append(allowed, string(st))
	}

	set := bson.M{"status": string(u.Status), "updated_at": u.At}
	if u.TransactionID != "" {
		set["transaction_id"] = u.TransactionID
	}
	if u.FailureReason != "" {
		set["metadata.failure_reason"] = u.FailureReason
	}

	var d attemptDoc
	err := s.attempts.FindOneAndUpdate(ctx,
		bson.M{"_id": id.String(), "status": bson.M{"$in": allowed}},
		bson.M{"$set": set},
		afterUpdate(),
	).Decode(&d)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if _, err := s.GetAttempt(ctx, id); err != nil {
			return nil, err
		}
		return nil, billing.ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	return decodeAttempt(d)
}

// GetSubscriptionByUser loads the subscription keyed by user id.
func (s *Store) GetSubscriptionByUser(ctx context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	var d subscriptionDoc
	if err := s.subs.FindOne(ctx, bson.M{"user_id": userID.String()}).Decode(&d); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, billing.ErrSubscriptionNotFound
		}
		return nil, err
	}
	return decodeSubscription(d)
}

// UpsertSubscription keys the row on user_id. The id and creation time are
// only written on insert, which gives Subscription.Merge semantics.
func (s *Store) UpsertSubscription(ctx context.Context, sub *billing.Subscription) (*billing.Subscription, error) {
	set := bson.M{
		"plan":              string(sub.Plan),
		"status":            string(sub.Status),
		"start_date":        sub.StartDate,
		"end_date":          sub.EndDate,
		"last_payment_date": sub.LastPaymentDate,
		"updated_at":        sub.UpdatedAt,
	}
	onInsert := bson.M{"_id": sub.ID.String(), "created_at": sub.CreatedAt}
	if sub.ProcessorSubscriptionID != "" {
		set["processor_subscription_id"] = sub.ProcessorSubscriptionID
	} else {
		onInsert["processor_subscription_id"] = ""
	}

	filter := bson.M{"user_id": sub.UserID.String()}
	update := bson.M{"$set": set, "$setOnInsert": onInsert}

	var d subscriptionDoc
	err := s.subs.FindOneAndUpdate(ctx, filter, update, afterUpdate().SetUpsert(true)).Decode(&d)
	if mongo.IsDuplicateKeyError(err) {
		// A concurrent upsert inserted first; the retry takes the update path.
		err = s.subs.FindOneAndUpdate(ctx, filter, update, afterUpdate().SetUpsert(true)).Decode(&d)
	}
	if err != nil {
		return nil, err
	}
	return decodeSubscription(d)
}

// SetSubscriptionStatus updates status on an existing subscription.
func (s *Store) SetSubscriptionStatus(ctx context.Context, userID uuid.UUID, status billing.SubscriptionStatus) error {
	res, err := s.subs.UpdateOne(ctx,
		bson.M{"user_id": userID.String()},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": s.now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return billing.ErrSubscriptionNotFound
	}
	return nil
}

func decodeSubscription(d subscriptionDoc) (*billing.Subscription, error) {
	sub, err := d.subscription()
	if err != nil {
		return nil, errors.Join(ErrCorruptDocument, err)
	}
	return sub, nil
}

var (
	_ identity.UserStore        = (*Store)(nil)
	_ billing.AttemptStore      = (*Store)(nil)
	_ billing.SubscriptionStore = (*Store)(nil)
)
