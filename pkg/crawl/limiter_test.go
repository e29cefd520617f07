package crawl

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_CapacityFloor(t *testing.T) {
	assert.Equal(t, 1, NewLimiter(0).Capacity())
	assert.Equal(t, 1, NewLimiter(-3).Capacity())
	assert.Equal(t, 4, NewLimiter(4).Capacity())
}

func TestLimiter_NeverExceedsCapacity(t *testing.T) {
	l := NewLimiter(3)

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.Do(context.Background(), func() {
				time.Sleep(2 * time.Millisecond)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, l.Peak(), 3)
	assert.Equal(t, 0, l.InFlight())
}

func TestLimiter_ReleasesOnPanic(t *testing.T) {
	l := NewLimiter(1)

	func() {
		defer func() { _ = recover() }()
		_ = l.Do(context.Background(), func() { panic("boom") })
	}()

	assert.Equal(t, 0, l.InFlight())

	ran := false
	require.NoError(t, l.Do(context.Background(), func() { ran = true }))
	assert.True(t, ran)
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	l := NewLimiter(1)
	hold := make(chan struct{})
	acquired := make(chan struct{})

	go func() {
		_ = l.Do(context.Background(), func() {
			close(acquired)
			<-hold
		})
	}()
	<-acquired

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	ran := false
	err := l.Do(ctx, func() { ran = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)

	close(hold)
}
