package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivant/lexfetch/internal/core"
)

func TestAcquireSucceedsWithinCapacity(t *testing.T) {
	l := New(10)
	defer l.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, l.Acquire(ctx))
}

func TestZeroRateBlocksEveryAcquire(t *testing.T) {
	l := New(0)
	defer l.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestZeroRateBlocksMultipleConcurrentAcquires(t *testing.T) {
	l := New(0)
	defer l.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- l.Acquire(ctx) }()
	}
	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, context.DeadlineExceeded)
	}
}

func TestCancelUnblocksAllWaiters(t *testing.T) {
	l := New(0)

	errs := make(chan error, 3)
	for i := 0; i < 3; i++ {
		go func() { errs <- l.Acquire(context.Background()) }()
	}

	time.Sleep(20 * time.Millisecond) // let Acquire calls enqueue as waiters
	l.Cancel()

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, <-errs, core.ErrCancelled)
	}
}

func TestCancelledLimiterRejectsFutureAcquires(t *testing.T) {
	l := New(10)
	l.Cancel()

	err := l.Acquire(context.Background())
	assert.ErrorIs(t, err, core.ErrCancelled)
}

func TestRefillGrantsTokensOverTime(t *testing.T) {
	l := New(20) // 20/sec: 20 seeded tokens, refill tick is 50ms
	defer l.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for i := 0; i < 20; i++ {
		require.NoError(t, l.Acquire(ctx)) // drains the seeded tokens
	}
	require.NoError(t, l.Acquire(ctx)) // must wait for a refill tick
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	l := New(0)
	defer l.Cancel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
