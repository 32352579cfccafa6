// Package backoff implements the full-jitter exponential backoff shared by
// the Fetch Worker and Persistence actors' retry loops: sleep =
// random(0, base*2^attempt), capped at 30s to avoid thundering herds on
// source recovery.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/archivant/lexfetch/internal/core"
)

const (
	// Base is the starting delay before the first retry.
	Base = time.Second
	// Factor is the exponential growth factor per attempt.
	Factor = 2.0
	// Cap bounds the maximum delay regardless of attempt count.
	Cap = 30 * time.Second
)

// Delay returns a full-jitter delay for the given zero-based attempt number:
// random(0, min(Cap, Base*Factor^attempt)).
func Delay(attempt int) time.Duration {
	max := float64(Base) * math.Pow(Factor, float64(attempt))
	if max > float64(Cap) {
		max = float64(Cap)
	}
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Sleep waits for the computed delay or returns core.ErrCancelled if ctx is
// cancelled first.
func Sleep(ctx context.Context, attempt int) error {
	timer := time.NewTimer(Delay(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return core.ErrCancelled
	}
}
