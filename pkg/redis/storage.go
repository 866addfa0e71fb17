package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Storage is a key-value store scoped to a key prefix.
type Storage struct {
	db     redis.UniversalClient
	prefix string
}

// NewStorage wraps client. Every key is stored as prefix + key.
func NewStorage(client redis.UniversalClient, prefix string) *Storage {
	return &Storage{db: client, prefix: prefix}
}

// Set stores val under key. A zero ttl keeps the key forever.
func (s *Storage) Set(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	return s.db.Set(ctx, s.prefix+key, val, ttl).Err()
}

// Get returns the value for key or ErrKeyNotFound.
func (s *Storage) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.db.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

// Take returns the value for key and deletes it in one round trip,
// so a value can be consumed at most once.
func (s *Storage) Take(ctx context.Context, key string) ([]byte, error) {
	val, err := s.db.GetDel(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	return val, err
}

// Delete removes key. Missing keys are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	return s.db.Del(ctx, s.prefix+key).Err()
}
