// Package ratelimit implements the token-bucket gate shared by a source's
// Discovery and Fetch Worker actors.
package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/tevino/abool"

	"github.com/archivant/lexfetch/internal/core"
)

// Limiter is a token-bucket rate gate. A bucket of capacity ceil(R) refills
// at R tokens/sec; Acquire suspends the caller until a token is available or
// the limiter is cancelled. Fairness is FIFO: callers queue on a channel and
// are served in arrival order.
type Limiter struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64 // tokens/sec
	lastFill time.Time

	cancelled *abool.AtomicBool
	waiters   chan chan struct{}
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// New creates a Limiter for the given requests-per-second rate. R=0 means
// the bucket never refills; every Acquire blocks until Cancel is called.
func New(requestsPerSecond float64) *Limiter {
	capacity := math.Ceil(requestsPerSecond)
	if capacity < 1 {
		capacity = 1
	}
	tokens := capacity
	if requestsPerSecond <= 0 {
		// Nothing to seed: a zero rate must never satisfy an Acquire.
		tokens = 0
	}
	l := &Limiter{
		tokens:    tokens,
		capacity:  capacity,
		rate:      requestsPerSecond,
		lastFill:  time.Now(),
		cancelled: abool.New(),
		waiters:   make(chan chan struct{}, 4096),
		stopCh:    make(chan struct{}),
	}
	go l.refillLoop()
	return l
}

// refillLoop ticks every 50ms, adds tokens proportional to elapsed time, and
// wakes the oldest waiter(s) it can satisfy.
func (l *Limiter) refillLoop() {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-l.stopCh:
			return
		case now := <-ticker.C:
			l.mu.Lock()
			if l.rate > 0 {
				elapsed := now.Sub(l.lastFill).Seconds()
				l.tokens += elapsed * l.rate
				if l.tokens > l.capacity {
					l.tokens = l.capacity
				}
			}
			l.lastFill = now
			for l.rate > 0 && l.tokens >= 1 {
				select {
				case w := <-l.waiters:
					l.tokens--
					close(w)
				default:
					goto done
				}
			}
		done:
			l.mu.Unlock()
		}
	}
}

// Acquire blocks until a token is available, ctx is done, or Cancel has been
// called. Returns ctx.Err() when ctx is done first, and core.ErrCancelled,
// without consuming a token, once Cancel has been called.
func (l *Limiter) Acquire(ctx context.Context) error {
	if l.cancelled.IsSet() {
		return core.ErrCancelled
	}

	l.mu.Lock()
	if l.rate > 0 && l.tokens >= 1 {
		l.tokens--
		l.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	l.waiters <- wait
	l.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopCh:
		return core.ErrCancelled
	}
}

// Cancel causes every blocked and future Acquire to return core.ErrCancelled
// immediately, without consuming a token.
func (l *Limiter) Cancel() {
	l.cancelled.Set()
	l.stopOnce.Do(func() { close(l.stopCh) })
}
