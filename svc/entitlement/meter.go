package entitlement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/pkg/locker"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// UserLockKey is the lock key shared by every writer of a user's
// entitlement fields.
func UserLockKey(id uuid.UUID) string {
	return "user:" + id.String()
}

// Meter runs the reserve and commit sequence under a per-user lock.
type Meter struct {
	engine *Engine
	users  identity.UserStore
	locker locker.Locker
	now    func() time.Time
}

// MeterOption configures a Meter.
type MeterOption func(*Meter)

// WithMeterClock overrides the time source.
func WithMeterClock(now func() time.Time) MeterOption {
	return func(m *Meter) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMeter creates a Meter.
func NewMeter(engine *Engine, users identity.UserStore, l locker.Locker, opts ...MeterOption) *Meter {
	m := &Meter{engine: engine, users: users, locker: l, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reserve locks the user, reloads it and decides. On a denial the lock is
// released and a *LimitError is returned. On success the caller must end the
// reservation with Commit or Release.
func (m *Meter) Reserve(ctx context.Context, userID uuid.UUID) (*Reservation, error) {
	release, err := m.locker.Lock(ctx, UserLockKey(userID))
	if err != nil {
		return nil, err
	}

	user, err := m.users.GetUserByID(ctx, userID)
	if err != nil {
		release()
		return nil, err
	}

	d := m.engine.CheckAndReserve(user, m.now())
	if !d.Allowed {
		release()
		return nil, d.Err()
	}

	return &Reservation{
		Decision: d,
		User:     user,
		meter:    m,
		release:  release,
	}, nil
}

// Reservation is an allowed metered action that has not been charged yet.
type Reservation struct {
	Decision Decision
	User     *identity.User

	meter   *Meter
	release locker.ReleaseFunc
	mu      sync.Mutex
	done    bool
}

// Commit charges the reservation and releases the lock.
func (r *Reservation) Commit(ctx context.Context) (*identity.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return nil, ErrReservationClosed
	}
	r.done = true
	defer r.release()

	return r.meter.engine.Commit(ctx, r.User.ID, r.Decision.Consumption, r.meter.now())
}

// Release discards the reservation without charging it. It is a no-op after
// Commit.
func (r *Reservation) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done {
		return
	}
	r.done = true
	r.release()
}
