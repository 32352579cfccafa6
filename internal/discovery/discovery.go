// Package discovery implements the Discovery Actor: it paginates a source's
// index collaborator, canonicalizes and dedup-consults each candidate
// reference with the Coordinator, and enqueues the unseen ones. The loop is
// context-cancellable and advances one page at a time, yielding at I/O.
package discovery

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/archivant/lexfetch/internal/actor"
	"github.com/archivant/lexfetch/internal/backoff"
	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/ratelimit"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// defaultStopDeadline bounds how long Stop waits to drain.
const defaultStopDeadline = 10 * time.Second

// Callbacks is Discovery's hand-off to the owning Coordinator.
type Callbacks struct {
	// Seen asks the Coordinator whether external_id is already in the job's
	// seen-set (ask).
	Seen func(externalID string) bool
	// EnqueueReference hands an unseen reference into the work queue.
	EnqueueReference func(ref core.Reference)
	// Failed reports an unrecoverable index error, transitioning the job
	// to Failed.
	Failed func(reason string)
	// Done reports pagination finished (no more pages or max_results hit),
	// letting the Coordinator decide Completed vs staying in Fetching.
	Done func()
}

// Config configures a Discovery actor.
type Config struct {
	SourceID    string
	Index       plugin.SourceIndex
	Limiter     *ratelimit.Limiter
	MaxAttempts int // retries for a single unparseable page, default 3
	Callbacks   Callbacks
}

// Discovery is the Discovery Actor. The zero value is not usable; use New.
type Discovery struct {
	a           *actor.Actor
	sourceID    string
	index       plugin.SourceIndex
	limiter     *ratelimit.Limiter
	maxAttempts int
	cb          Callbacks
}

// New starts a Discovery actor.
func New(cfg Config) *Discovery {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	d := &Discovery{
		sourceID:    cfg.SourceID,
		index:       cfg.Index,
		limiter:     cfg.Limiter,
		maxAttempts: maxAttempts,
		cb:          cfg.Callbacks,
	}
	d.a = actor.New("discovery:"+cfg.SourceID, func(err error) {
		slog.Error("discovery actor error", "source", cfg.SourceID, "error", err)
	})
	return d
}

// Run starts paginating the index according to q, tell-based so the caller
// is never blocked by however long discovery runs. maxResults<0 means
// unbounded: running out of pages is the only stop condition in that case.
// maxResults==0 discovers nothing and reports Done immediately.
func (d *Discovery) Run(ctx context.Context, q plugin.IndexQuery, maxResults int) {
	d.a.Tell(func() {
		d.paginate(ctx, q, maxResults)
	})
}

func (d *Discovery) paginate(ctx context.Context, q plugin.IndexQuery, maxResults int) {
	if maxResults == 0 {
		if d.cb.Done != nil {
			d.cb.Done()
		}
		return
	}

	discovered := 0
	attempt := 0

	for {
		if err := d.limiter.Acquire(ctx); err != nil {
			return // Cancel propagated via the shared rate limiter
		}

		page, err := d.index.FetchPage(ctx, q)
		if err != nil {
			attempt++
			if attempt >= d.maxAttempts {
				if d.cb.Failed != nil {
					d.cb.Failed("index page unparseable after retries: " + err.Error())
				}
				return
			}
			if err := backoff.Sleep(ctx, attempt-1); err != nil {
				return
			}
			continue
		}
		attempt = 0

		for _, ref := range page.References {
			ref.ExternalID = canonicalize(ref.ExternalID)
			if d.cb.Seen != nil && d.cb.Seen(ref.ExternalID) {
				continue
			}
			if d.cb.EnqueueReference != nil {
				d.cb.EnqueueReference(ref)
			}
			discovered++
			if maxResults > 0 && discovered >= maxResults {
				if d.cb.Done != nil {
					d.cb.Done()
				}
				return
			}
		}

		if !page.HasMore {
			if d.cb.Done != nil {
				d.cb.Done()
			}
			return
		}
		q.Cursor = page.NextCursor
	}
}

// canonicalize normalizes an external_id so the same logical document never
// produces two distinct dedup keys (e.g. leading/trailing whitespace
// differences across index page renderings). Casing is left unchanged.
func canonicalize(id string) string {
	return strings.TrimSpace(id)
}

// Stop drains the mailbox and stops the underlying actor.
func (d *Discovery) Stop() {
	d.a.Stop(defaultStopDeadline)
}
