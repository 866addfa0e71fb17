package locker

import (
	"context"
	"errors"
	"sync"
)

// Memory is an in-process Locker. Entries are dropped once no goroutine holds
// or waits for them, so the map does not grow with the number of users.
type Memory struct {
	mu    sync.Mutex
	locks map[string]*memLock
}

type memLock struct {
	ch      chan struct{}
	waiters int
}

// NewMemory returns an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{locks: make(map[string]*memLock)}
}

// Lock blocks until key is free or ctx is done.
func (m *Memory) Lock(ctx context.Context, key string) (ReleaseFunc, error) {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &memLock{ch: make(chan struct{}, 1)}
		m.locks[key] = l
	}
	l.waiters++
	m.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
	case <-ctx.Done():
		m.drop(key, l)
		return nil, errors.Join(ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.ch
			m.drop(key, l)
		})
	}, nil
}

func (m *Memory) drop(key string, l *memLock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l.waiters--
	if l.waiters == 0 {
		delete(m.locks, key)
	}
}

var _ Locker = (*Memory)(nil)
