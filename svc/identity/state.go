package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"sync"
	"time"

	"github.com/dmitrymomot/faceswap/pkg/redis"
)

// StateStore keeps OAuth state values between the redirect and the callback.
// Consume must succeed at most once per saved state.
type StateStore interface {
	Save(ctx context.Context, state string, ttl time.Duration) error
	Consume(ctx context.Context, state string) error
}

func newState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// MemoryStateStore is a process-local StateStore.
type MemoryStateStore struct {
	mu     sync.Mutex
	states map[string]time.Time
	now    func() time.Time
}

// NewMemoryStateStore creates an empty store.
func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStateStore) Save(_ context.Context, state string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.states {
		if now.After(exp) {
			delete(s.states, k)
		}
	}
	s.states[state] = now.Add(ttl)
	return nil
}

func (s *MemoryStateStore) Consume(_ context.Context, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.states[state]
	if !ok {
		return ErrInvalidState
	}
	delete(s.states, state)
	if s.now().After(exp) {
		return ErrInvalidState
	}
	return nil
}

// RedisStateStore shares OAuth state across API replicas.
type RedisStateStore struct {
	storage *redis.Storage
}

// NewRedisStateStore wraps a key-value storage.
func NewRedisStateStore(storage *redis.Storage) *RedisStateStore {
	return &RedisStateStore{storage: storage}
}

func (s *RedisStateStore) Save(ctx context.Context, state string, ttl time.Duration) error {
	return s.storage.Set(ctx, state, []byte{1}, ttl)
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) error {
	if _, err := s.storage.Take(ctx, state); err != nil {
		if errors.Is(err, redis.ErrKeyNotFound) {
			return ErrInvalidState
		}
		return err
	}
	return nil
}

var (
	_ StateStore = (*MemoryStateStore)(nil)
	_ StateStore = (*RedisStateStore)(nil)
)
