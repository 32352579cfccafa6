// Package fetch implements the Fetch Worker Actor pool: each Worker acquires
// a rate-limit token, performs an HTTP GET through the HTTPClient
// collaborator, parses the body via the source's Parser collaborator, hands
// the resulting Document to Persistence, and reports the outcome back to the
// Coordinator. Each worker runs a context-cancellable, single-threaded,
// one-item-at-a-time processing loop.
package fetch

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/archivant/lexfetch/internal/actor"
	"github.com/archivant/lexfetch/internal/backoff"
	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/metrics"
	"github.com/archivant/lexfetch/internal/persistence"
	"github.com/archivant/lexfetch/internal/ratelimit"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// defaultStopDeadline bounds how long a worker's Stop waits to drain.
const defaultStopDeadline = 10 * time.Second

// Callbacks is the Fetch Worker's hand-off to the owning Coordinator. Every
// callback carries the reporting worker's ID so one Callbacks value can be
// shared across an entire Pool instead of closing over a per-worker index.
type Callbacks struct {
	// FetchedOk reports a successfully fetched and parsed reference whose
	// Document has been handed to Persistence; the save itself runs later.
	FetchedOk func(workerID int, externalID string)
	// FetchFailed reports a per-item terminal failure.
	FetchFailed func(workerID int, externalID string, status int, reason string)
	// EnqueueReference hands an inline-discovered reference (e.g. a PDF URL
	// found in an HTML page) back into the work queue, when
	// JobConfig.DownloadPayloads is true.
	EnqueueReference func(ref core.Reference)
}

// Config configures a Worker.
type Config struct {
	ID                int
	SourceID          string
	HTTPClient        plugin.HTTPClient
	Parser            plugin.Parser
	Limiter           *ratelimit.Limiter
	Persistence       *persistence.Persistence
	MaxAttempts       int // default 3
	DownloadPayloads  bool
	Headers           map[string]string
	Callbacks         Callbacks
}

// Worker is a single Fetch Worker Actor. The zero value is not usable; use
// New.
type Worker struct {
	a                *actor.Actor
	id               int
	sourceID         string
	client           plugin.HTTPClient
	parser           plugin.Parser
	limiter          *ratelimit.Limiter
	persist          *persistence.Persistence
	maxAttempts      int
	downloadPayloads bool
	headers          map[string]string
	cb               Callbacks
}

// New starts a Fetch Worker actor.
func New(cfg Config) *Worker {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	w := &Worker{
		id:               cfg.ID,
		sourceID:         cfg.SourceID,
		client:           cfg.HTTPClient,
		parser:           cfg.Parser,
		limiter:          cfg.Limiter,
		persist:          cfg.Persistence,
		maxAttempts:      maxAttempts,
		downloadPayloads: cfg.DownloadPayloads,
		headers:          cfg.Headers,
		cb:               cfg.Callbacks,
	}
	w.a = actor.New("fetch:"+cfg.SourceID+":"+strconv.Itoa(cfg.ID), func(err error) {
		slog.Error("fetch worker actor error", "source", cfg.SourceID, "worker", cfg.ID, "error", err)
	})
	return w
}

// Fetch enqueues ref for processing.
func (w *Worker) Fetch(ctx context.Context, ref core.Reference) {
	w.a.Tell(func() {
		w.handle(ctx, ref)
	})
}

func (w *Worker) handle(ctx context.Context, ref core.Reference) {
	start := time.Now()

	var (
		resp    *plugin.HTTPResponse
		lastErr error
		status  int
	)

	for attempt := 0; attempt < w.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := backoff.Sleep(ctx, attempt-1); err != nil {
				// Cancellation during backoff still reports a terminal outcome
				// so the Coordinator's active work count reaches zero.
				w.fail(ref.ExternalID, 0, "cancelled")
				return
			}
		}

		waitStart := time.Now()
		if err := w.limiter.Acquire(ctx); err != nil {
			// Cancel propagated via the shared rate limiter.
			w.fail(ref.ExternalID, 0, "cancelled")
			return
		}
		metrics.RateLimiterWaitSeconds.WithLabelValues(w.sourceID).Observe(time.Since(waitStart).Seconds())

		r, err := w.client.Get(ctx, ref.URL, w.headers)
		if err != nil {
			lastErr = err
			metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "transient_error").Inc()
			slog.Debug("fetch worker: network error, retrying", "source", w.sourceID, "external_id", ref.ExternalID, "attempt", attempt+1, "error", err)
			continue
		}

		if r.Status >= 500 {
			lastErr = core.NewFetchError(core.KindTransient, ref.ExternalID, r.Status, nil)
			status = r.Status
			metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "transient_status").Inc()
			slog.Debug("fetch worker: 5xx, retrying", "source", w.sourceID, "external_id", ref.ExternalID, "status", r.Status, "attempt", attempt+1)
			continue
		}

		if r.Status >= 400 {
			// HTTP 4xx is terminal.
			metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "terminal_status").Inc()
			metrics.FetchLatencySeconds.WithLabelValues(w.sourceID).Observe(time.Since(start).Seconds())
			w.fail(ref.ExternalID, r.Status, "http status "+strconv.Itoa(r.Status))
			return
		}

		resp = r
		break
	}

	metrics.FetchLatencySeconds.WithLabelValues(w.sourceID).Observe(time.Since(start).Seconds())

	if resp == nil {
		// Every attempt was transient and all were exhausted.
		metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "exhausted").Inc()
		reason := "max attempts exceeded"
		if lastErr != nil {
			reason = lastErr.Error()
		}
		w.fail(ref.ExternalID, status, reason)
		return
	}

	result := w.parser.Parse(ref, resp.Body, resp.ContentType)
	if len(result.Errors) > 0 || result.Document == nil {
		metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "parse_error").Inc()
		reason := "parse failed"
		if len(result.Errors) > 0 {
			reason = result.Errors[0].Error()
		}
		w.fail(ref.ExternalID, 0, reason)
		return
	}

	if w.downloadPayloads {
		for _, extra := range result.ExtraRefs {
			if w.cb.EnqueueReference != nil {
				w.cb.EnqueueReference(extra)
			}
		}
	}

	w.persist.SaveDocument(ctx, result.Document, resp.Body)

	metrics.FetchAttemptsTotal.WithLabelValues(w.sourceID, "ok").Inc()
	if w.cb.FetchedOk != nil {
		w.cb.FetchedOk(w.id, ref.ExternalID)
	}
}

func (w *Worker) fail(externalID string, status int, reason string) {
	if w.cb.FetchFailed != nil {
		w.cb.FetchFailed(w.id, externalID, status, reason)
	}
}

// Stop drains the mailbox and stops the underlying actor.
func (w *Worker) Stop() {
	w.a.Stop(defaultStopDeadline)
}

// Pool is a fixed-size set of Fetch Workers sharing one limiter, parser,
// persistence and HTTP client: the Coordinator runs a pool of N Fetcher
// actors (default 3), each processing sequentially, with the pool providing
// the parallelism. Assignment across workers is the caller's job: Dispatch
// offers plain round-robin for callers with no per-worker bookkeeping of
// their own; AssignTo lets a caller (like the Coordinator, which tracks
// idle/busy state to bound per-worker backlog at one in-flight item) target
// a specific worker directly.
type Pool struct {
	workers []*Worker
	next    int
}

// NewPool starts n Fetch Workers sharing limiter/parser/persistence/client.
func NewPool(n int, base Config) *Pool {
	if n <= 0 {
		n = 3
	}
	p := &Pool{workers: make([]*Worker, n)}
	for i := 0; i < n; i++ {
		cfg := base
		cfg.ID = i
		p.workers[i] = New(cfg)
	}
	return p
}

// Len reports how many workers the pool holds.
func (p *Pool) Len() int { return len(p.workers) }

// Dispatch hands ref to the next worker in round-robin order.
func (p *Pool) Dispatch(ctx context.Context, ref core.Reference) {
	w := p.workers[p.next%len(p.workers)]
	p.next++
	w.Fetch(ctx, ref)
}

// AssignTo hands ref directly to the worker at idx, bypassing round-robin
// selection.
func (p *Pool) AssignTo(ctx context.Context, idx int, ref core.Reference) {
	p.workers[idx].Fetch(ctx, ref)
}

// Stop stops every worker in the pool.
func (p *Pool) Stop() {
	for _, w := range p.workers {
		w.Stop()
	}
}
