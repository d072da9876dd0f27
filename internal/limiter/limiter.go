// Package limiter caps concurrent work per key, in process or across replicas via Redis.
package limiter

import (
	"context"
	"errors"
	"sync"
)

var ErrLimitReached = errors.New("concurrency limit reached")

type Limiter interface {
	// Acquire takes a slot for key or returns ErrLimitReached.
	Acquire(ctx context.Context, key string) error
	// Release gives back a slot taken by Acquire.
	Release(ctx context.Context, key string)
}

// MemoryLimiter counts slots in a map guarded by a mutex.
type MemoryLimiter struct {
	mu     sync.Mutex
	max    int
	active map[string]int
}

func NewMemoryLimiter(max int) *MemoryLimiter {
	return &MemoryLimiter{
		max:    max,
		active: make(map[string]int),
	}
}

func (l *MemoryLimiter) Acquire(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.active[key] >= l.max {
		return ErrLimitReached
	}
	l.active[key]++
	return nil
}

func (l *MemoryLimiter) Release(_ context.Context, key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.active[key]--
	if l.active[key] <= 0 {
		delete(l.active, key)
	}
}

// Current reports the slots in use for key.
func (l *MemoryLimiter) Current(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active[key]
}
