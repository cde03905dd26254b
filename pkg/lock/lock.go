// Package lock provides per-repository run locks so two generations of the
// same repository never overlap.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrLocked is returned when the key is already held.
var ErrLocked = errors.New("a generation is already running for this repository")

// Locker acquires named locks without waiting.
type Locker interface {
	// TryLock acquires key or returns ErrLocked. The returned func releases it.
	TryLock(ctx context.Context, key string) (unlock func(), err error)
}

// Memory is an in-process Locker.
type Memory struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewMemory creates an in-process Locker.
func NewMemory() *Memory {
	return &Memory{held: make(map[string]struct{})}
}

func (m *Memory) TryLock(ctx context.Context, key string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.held[key]; ok {
		return nil, ErrLocked
	}
	m.held[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.held, key)
			m.mu.Unlock()
		})
	}, nil
}
