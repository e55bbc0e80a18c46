// Package lock provides named, non-reentrant locks used to keep scheduled
// jobs from overlapping with themselves or with interactive invocations.
package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotAcquired is returned when the lock is held by someone else.
var ErrNotAcquired = errors.New("lock is held by another holder")

// Locker hands out named locks. Release must be called exactly once.
type Locker interface {
	TryLock(ctx context.Context, name string, ttl time.Duration) (release func(), err error)
}

// MemoryLocker is a process-local Locker.
type MemoryLocker struct {
	mu   sync.Mutex
	held map[string]time.Time
	now  func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		held: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryLocker) TryLock(_ context.Context, name string, ttl time.Duration) (func(), error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if expires, ok := m.held[name]; ok && now.Before(expires) {
		return nil, ErrNotAcquired
	}
	expires := now.Add(ttl)
	m.held[name] = expires

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			// A lease that expired and was taken over belongs to the new holder.
			if m.held[name].Equal(expires) {
				delete(m.held, name)
			}
		})
	}, nil
}
