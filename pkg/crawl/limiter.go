package crawl

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Limiter caps the number of fetches in flight. Its capacity is fixed for
// its lifetime.
type Limiter struct {
	sem      *semaphore.Weighted
	capacity int

	mu       sync.Mutex
	inFlight int
	peak     int
}

// NewLimiter creates a limiter admitting at most capacity holders.
// Capacities below 1 are raised to 1.
func NewLimiter(capacity int) *Limiter {
	if capacity < 1 {
		capacity = 1
	}
	return &Limiter{
		sem:      semaphore.NewWeighted(int64(capacity)),
		capacity: capacity,
	}
}

// Do runs fn while holding a permit. The permit is released when fn
// returns, whatever happens inside it. If ctx ends before a permit is
// available, fn is not run and the context error is returned.
func (l *Limiter) Do(ctx context.Context, fn func()) error {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	l.enter()
	defer func() {
		l.leave()
		l.sem.Release(1)
	}()

	fn()
	return nil
}

// Capacity returns the configured permit count.
func (l *Limiter) Capacity() int {
	return l.capacity
}

// InFlight returns the number of permits currently held.
func (l *Limiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}

// Peak returns the highest number of permits held at once.
func (l *Limiter) Peak() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peak
}

func (l *Limiter) enter() {
	l.mu.Lock()
	l.inFlight++
	if l.inFlight > l.peak {
		l.peak = l.inFlight
	}
	l.mu.Unlock()
}

func (l *Limiter) leave() {
	l.mu.Lock()
	l.inFlight--
	l.mu.Unlock()
}
