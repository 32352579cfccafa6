package discovery

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/ratelimit"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// pagedIndex serves a fixed sequence of pages, one per FetchPage call.
type pagedIndex struct {
	pages []plugin.IndexPage
	calls atomic.Int32
}

func (p *pagedIndex) Name() string               { return "stub" }
func (p *pagedIndex) Init(_ map[string]any) error { return nil }
func (p *pagedIndex) FetchPage(_ context.Context, _ plugin.IndexQuery) (plugin.IndexPage, error) {
	i := p.calls.Add(1) - 1
	if int(i) >= len(p.pages) {
		return plugin.IndexPage{}, fmt.Errorf("no more pages configured")
	}
	return p.pages[i], nil
}

func waitFor(t *testing.T, f func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if f() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestDiscovery_PaginatesUntilNoMorePages(t *testing.T) {
	idx := &pagedIndex{pages: []plugin.IndexPage{
		{References: []core.Reference{{ExternalID: "a"}, {ExternalID: "b"}}, HasMore: true, NextCursor: "p2"},
		{References: []core.Reference{{ExternalID: "c"}}, HasMore: false},
	}}

	var mu sync.Mutex
	var enqueued []string
	done := make(chan struct{})

	d := New(Config{
		SourceID: "gazette",
		Index:    idx,
		Limiter:  ratelimit.New(1000),
		Callbacks: Callbacks{
			EnqueueReference: func(ref core.Reference) {
				mu.Lock()
				enqueued = append(enqueued, ref.ExternalID)
				mu.Unlock()
			},
			Done: func() { close(done) },
		},
	})
	defer d.Stop()

	d.Run(context.Background(), plugin.IndexQuery{Mode: core.ModeToday}, -1)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("discovery did not finish")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"a", "b", "c"}, enqueued)
}

func TestDiscovery_SkipsSeenReferences(t *testing.T) {
	idx := &pagedIndex{pages: []plugin.IndexPage{
		{References: []core.Reference{{ExternalID: "a"}, {ExternalID: "b"}}, HasMore: false},
	}}

	var enqueued []string
	done := make(chan struct{})

	d := New(Config{
		SourceID: "gazette",
		Index:    idx,
		Limiter:  ratelimit.New(1000),
		Callbacks: Callbacks{
			Seen: func(externalID string) bool { return externalID == "a" },
			EnqueueReference: func(ref core.Reference) {
				enqueued = append(enqueued, ref.ExternalID)
			},
			Done: func() { close(done) },
		},
	})
	defer d.Stop()

	d.Run(context.Background(), plugin.IndexQuery{Mode: core.ModeToday}, -1)

	<-done
	assert.Equal(t, []string{"b"}, enqueued)
}

func TestDiscovery_StopsAtMaxResults(t *testing.T) {
	idx := &pagedIndex{pages: []plugin.IndexPage{
		{References: []core.Reference{{ExternalID: "a"}, {ExternalID: "b"}, {ExternalID: "c"}}, HasMore: true, NextCursor: "p2"},
	}}

	var count atomic.Int32
	done := make(chan struct{})

	d := New(Config{
		SourceID: "gazette",
		Index:    idx,
		Limiter:  ratelimit.New(1000),
		Callbacks: Callbacks{
			EnqueueReference: func(ref core.Reference) { count.Add(1) },
			Done:             func() { close(done) },
		},
	})
	defer d.Stop()

	d.Run(context.Background(), plugin.IndexQuery{Mode: core.ModeToday}, 2)

	<-done
	assert.Equal(t, int32(2), count.Load())
}

func TestDiscovery_ZeroMaxResultsDiscoversNothing(t *testing.T) {
	idx := &pagedIndex{pages: []plugin.IndexPage{
		{References: []core.Reference{{ExternalID: "a"}}, HasMore: true, NextCursor: "p2"},
	}}

	var count atomic.Int32
	done := make(chan struct{})

	d := New(Config{
		SourceID: "gazette",
		Index:    idx,
		Limiter:  ratelimit.New(1000),
		Callbacks: Callbacks{
			EnqueueReference: func(ref core.Reference) { count.Add(1) },
			Done:             func() { close(done) },
		},
	})
	defer d.Stop()

	d.Run(context.Background(), plugin.IndexQuery{Mode: core.ModeToday}, 0)

	<-done
	assert.Equal(t, int32(0), count.Load())
	assert.Equal(t, int32(0), idx.calls.Load())
}

func TestDiscovery_FailsAfterRetriesExhausted(t *testing.T) {
	idx := &pagedIndex{} // zero pages configured: every FetchPage call errors

	var reason string
	failed := make(chan struct{})

	d := New(Config{
		SourceID:    "gazette",
		Index:       idx,
		Limiter:     ratelimit.New(1000),
		MaxAttempts: 2,
		Callbacks: Callbacks{
			Failed: func(r string) {
				reason = r
				close(failed)
			},
		},
	})
	defer d.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	d.Run(ctx, plugin.IndexQuery{Mode: core.ModeToday}, -1)

	require.Eventually(t, func() bool {
		select {
		case <-failed:
			return true
		default:
			return false
		}
	}, 5*time.Second, 20*time.Millisecond)
	assert.Contains(t, reason, "index page unparseable")
}
