// Package userlock serializes compound ledger operations per user. Two
// devices editing the same user's budgets contend on one lock; operations
// for different users never coordinate. Acquisition is bounded: callers
// that cannot get the lock within the timeout receive ErrTimeout rather
// than waiting indefinitely.
package userlock

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when the per-user lock cannot be acquired
// within the configured timeout.
var ErrTimeout = errors.New("userlock: acquisition timed out")

// DefaultTimeout bounds lock acquisition when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// Locker hands out one weighted semaphore per user ID. Semaphores are
// retained for the life of the process; the map is bounded by the number
// of distinct users served.
type Locker struct {
	mu      sync.Mutex
	sems    map[string]*semaphore.Weighted
	timeout time.Duration
}

// New creates a Locker with the given acquisition timeout.
// A non-positive timeout falls back to DefaultTimeout.
func New(timeout time.Duration) *Locker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Locker{
		sems:    make(map[string]*semaphore.Weighted),
		timeout: timeout,
	}
}

func (l *Locker) sem(userID string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[userID]
	if !ok {
		s = semaphore.NewWeighted(1)
		l.sems[userID] = s
	}
	return s
}

// Acquire takes the lock for the given user, waiting at most the
// configured timeout (or less if ctx is cancelled first). On success it
// returns a release function that must be called on every exit path.
func (l *Locker) Acquire(ctx context.Context, userID string) (func(), error) {
	s := l.sem(userID)

	acquireCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	if err := s.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, ErrTimeout
	}
	return func() { s.Release(1) }, nil
}
