// Package memstore keeps users, payment attempts and subscriptions in memory.
// It backs unit tests and single-process development runs.
package memstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Store implements every store interface behind one mutex.
type Store struct {
	mu       sync.RWMutex
	users    map[uuid.UUID]*identity.User
	attempts map[uuid.UUID]*billing.Attempt
	subs     map[uuid.UUID]*billing.Subscription // by user id
	now      func() time.Time
}

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[uuid.UUID]*identity.User),
		attempts: make(map[uuid.UUID]*billing.Attempt),
		subs:     make(map[uuid.UUID]*billing.Subscription),
		now:      time.Now,
	}
}

// CreateUser stores a copy of user. It returns identity.ErrEmailAlreadyExists
// or identity.ErrProviderLinked when the email or Google ID is in use.
func (s *Store) CreateUser(_ context.Context, user *identity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return identity.ErrEmailAlreadyExists
		}
		if user.GoogleID != "" && u.GoogleID == user.GoogleID {
			return identity.ErrProviderLinked
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

// GetUserByID returns a copy of the user or identity.ErrUserNotFound.
func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail looks the user up by email.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*identity.User, error) {
	return s.findUser(func(u *identity.User) bool { return u.Email == email })
}

// GetUserByGoogleID looks the user up by linked Google account.
func (s *Store) GetUserByGoogleID(_ context.Context, googleID string) (*identity.User, error) {
	if googleID == "" {
		return nil, identity.ErrUserNotFound
	}
	return s.findUser(func(u *identity.User) bool { return u.GoogleID == googleID })
}

func (s *Store) findUser(match func(*identity.User) bool) (*identity.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, identity.ErrUserNotFound
}

// LinkGoogleID attaches googleID to the user. It fails with
// identity.ErrProviderLinked when another user already holds it.
func (s *Store) LinkGoogleID(_ context.Context, id uuid.UUID, googleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return identity.ErrUserNotFound
	}
	for _, other := range s.users {
		if other.ID != id && other.GoogleID == googleID {
			return identity.ErrProviderLinked
		}
	}
	u.GoogleID = googleID
	u.UpdatedAt = s.now().UTC()
	return nil
}

// IncrementUsage bumps counter when it is below limit and returns the updated
// user, or identity.ErrUsageLimitReached once the limit is hit.
func (s *Store) IncrementUsage(_ context.Context, id uuid.UUID, counter identity.UsageCounter, limit int, at time.Time) (*identity.User, error) {
	if !counter.Valid() {
		return nil, identity.ErrInvalidUsageCounter
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}

	switch counter {
	case identity.CounterFree:
		if u.FreeUnitsUsed >= limit {
			return nil, identity.ErrUsageLimitReached
		}
		u.FreeUnitsUsed++
	case identity.CounterMonthly:
		if u.MonthlyUnitsUsed >= limit {
			return nil, identity.ErrUsageLimitReached
		}
		u.MonthlyUnitsUsed++
	}
	t := at
	u.LastActionAt = &t
	u.UpdatedAt = at

	cp := *u
	return &cp, nil
}

// ApplyMutation applies m under the store lock.
func (s *Store) ApplyMutation(_ context.Context, id uuid.UUID, m identity.UserMutation) (*identity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, identity.ErrUserNotFound
	}
	m.Apply(u, s.now().UTC())
	cp := *u
	return &cp, nil
}

// CreateAttempt stores a copy of a.
func (s *Store) CreateAttempt(_ context.Context, a *billing.Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.attempts[a.ID] = &cp
	return nil
}

// GetAttempt returns a copy of the attempt or billing.ErrAttemptNotFound.
func (s *Store) GetAttempt(_ context.Context, id uuid.UUID) (*billing.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, billing.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

// GetAttemptBySessionID scans attempts for the processor session id.
func (s *Store) GetAttemptBySessionID(_ context.Context, sessionID string) (*billing.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.attempts {
		if a.Metadata.Card != nil && a.Metadata.Card.SessionID == sessionID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, billing.ErrAttemptNotFound
}

// LatestSucceededAttempt returns the user's most recently updated succeeded
// attempt.
func (s *Store) LatestSucceededAttempt(_ context.Context, userID uuid.UUID) (*billing.Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *billing.Attempt
	for _, a := range s.attempts {
		if a.UserID != userID || a.Status != billing.StatusSucceeded {
			continue
		}
		if latest == nil || a.UpdatedAt.After(latest.UpdatedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, billing.ErrAttemptNotFound
	}
	cp := *latest
	return &cp, nil
}

// UpdateAttemptStatus applies u when the attempt's current status is one of
// from, otherwise it returns billing.ErrInvalidTransition.
func (s *Store) UpdateAttemptStatus(_ context.Context, id uuid.UUID, from []billing.Status, u billing.AttemptUpdate) (*billing.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, billing.ErrAttemptNotFound
	}
	allowed := false
	for _, st := range from {
		if a.Status == st {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, billing.ErrInvalidTransition
	}
	u.Apply(a)
	cp := *a
	return &cp, nil
}

// CountAttempts returns the number of attempts owned by userID.
func (s *Store) CountAttempts(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.attempts {
		if a.UserID == userID {
			n++
		}
	}
	return n
}

// GetSubscriptionByUser returns the user's subscription or
// billing.ErrSubscriptionNotFound.
func (s *Store) GetSubscriptionByUser(_ context.Context, userID uuid.UUID) (*billing.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[userID]
	if !ok {
		return nil, billing.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

// UpsertSubscription replaces the user's row, keeping the id and fields
// that Merge carries over from the existing one.
func (s *Store) UpsertSubscription(_ context.Context, sub *billing.Subscription) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	if existing, ok := s.subs[sub.UserID]; ok {
		cp.Merge(existing)
	}
	s.subs[sub.UserID] = &cp
	out := cp
	return &out, nil
}

// SetSubscriptionStatus changes only the status field.
func (s *Store) SetSubscriptionStatus(_ context.Context, userID uuid.UUID, status billing.SubscriptionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[userID]
	if !ok {
		return billing.ErrSubscriptionNotFound
	}
	sub.Status = status
	sub.UpdatedAt = s.now().UTC()
	return nil
}

// CountSubscriptions returns the number of subscription rows for userID,
// which is zero or one by construction.
func (s *Store) CountSubscriptions(userID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.subs[userID]; ok {
		return 1
	}
	return 0
}

var (
	_ identity.UserStore        = (*Store)(nil)
	_ billing.AttemptStore      = (*Store)(nil)
	_ billing.SubscriptionStore = (*Store)(nil)
)
