package market

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ndewijer/networth-tracker/internal/apperrors"
)

// KeyedLocks is a lazily populated map of named locks whose acquisition can time out.
// The mutex only guards lock creation; holders of different keys never contend.
type KeyedLocks struct {
	mu    sync.Mutex
	locks map[string]*semaphore.Weighted
}

// NewKeyedLocks creates an empty lock map.
func NewKeyedLocks() *KeyedLocks {
	return &KeyedLocks{locks: make(map[string]*semaphore.Weighted)}
}

func (k *KeyedLocks) get(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = semaphore.NewWeighted(1)
		k.locks[key] = l
	}
	return l
}

// Acquire locks key, waiting at most timeout. The returned release func must be called exactly once.
// It returns apperrors.ErrLockTimeout when the wait times out, or ctx's error when ctx ends first.
func (k *KeyedLocks) Acquire(ctx context.Context, key string, timeout time.Duration) (func(), error) {
	l := k.get(key)

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := l.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s after %s", apperrors.ErrLockTimeout, key, timeout)
	}

	var once sync.Once
	return func() { once.Do(func() { l.Release(1) }) }, nil
}
