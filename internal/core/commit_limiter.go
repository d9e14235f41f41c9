package core

// commit_limiter.go bounds how many commits write to the store at once.
//
// Each commit holds one semaphore slot for its whole run. When all slots are
// taken a new commit waits up to maxWait, then fails with ErrTooManyImports.
// WaitForDrain lets shutdown wait for running commits to settle.

import (
	"context"
	"sync"
	"time"

	"github.com/JonMunkholm/fleetimport/internal/metrics"
)

// DefaultMaxConcurrentCommits is the default limit for parallel commits.
const DefaultMaxConcurrentCommits = 4

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// CommitLimiter controls concurrent commits using a semaphore.
type CommitLimiter struct {
	semaphore chan struct{}
	maxWait   time.Duration

	mu     sync.RWMutex
	active int
}

// NewCommitLimiter creates a limiter that allows at most maxConcurrent commits.
func NewCommitLimiter(maxConcurrent int, maxWait time.Duration) *CommitLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentCommits
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}

	return &CommitLimiter{
		semaphore: make(chan struct{}, maxConcurrent),
		maxWait:   maxWait,
	}
}

// Acquire waits for a commit slot.
// Returns ErrTooManyImports if none frees up within maxWait.
// The caller must call Release when the commit finishes.
func (l *CommitLimiter) Acquire(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, l.maxWait)
	defer cancel()

	select {
	case l.semaphore <- struct{}{}:
		l.inc(1)
		return nil

	case <-waitCtx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrTooManyImports
	}
}

// TryAcquire takes a slot without blocking.
func (l *CommitLimiter) TryAcquire() bool {
	select {
	case l.semaphore <- struct{}{}:
		l.inc(1)
		return true
	default:
		return false
	}
}

// Release frees a slot taken by Acquire or TryAcquire.
func (l *CommitLimiter) Release() {
	l.inc(-1)
	<-l.semaphore
}

func (l *CommitLimiter) inc(delta int) {
	l.mu.Lock()
	l.active += delta
	n := l.active
	l.mu.Unlock()
	metrics.SetActiveCommits(n)
}

// ActiveCount returns the number of running commits.
func (l *CommitLimiter) ActiveCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.active
}

// MaxConcurrent returns the slot count.
func (l *CommitLimiter) MaxConcurrent() int {
	return cap(l.semaphore)
}

// Available returns the number of free slots.
func (l *CommitLimiter) Available() int {
	return cap(l.semaphore) - len(l.semaphore)
}

// WaitForDrain blocks until no commit holds a slot or ctx is done.
func (l *CommitLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if l.ActiveCount() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// CommitLimiterStatus is a snapshot of the limiter.
type CommitLimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state for health checks.
func (l *CommitLimiter) Status() CommitLimiterStatus {
	return CommitLimiterStatus{
		Active:        l.ActiveCount(),
		Available:     l.Available(),
		MaxConcurrent: cap(l.semaphore),
	}
}
