// Package coordinator implements the per-source Coordinator Actor: the
// pipeline's sole owner of JobConfig, PipelineState and Progress, the FIFO
// work-queue/round-robin dispatcher over a Fetch Worker pool, the checkpoint
// writer, and the external control surface (Start/Pause/Resume/Cancel/
// Status/Logs) that the daemon's command layer binds to.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	uuid "github.com/satori/go.uuid"

	"github.com/archivant/lexfetch/internal/actor"
	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/discovery"
	"github.com/archivant/lexfetch/internal/eventbus"
	"github.com/archivant/lexfetch/internal/fetch"
	"github.com/archivant/lexfetch/internal/metrics"
	"github.com/archivant/lexfetch/internal/persistence"
	"github.com/archivant/lexfetch/internal/ratelimit"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const (
	defaultStopDeadline = 15 * time.Second
	logRingCapacity     = 500
)

// Collaborators bundles the resolved, named collaborators a job needs. The
// Coordinator never imports a concrete parser/storage/index package — it
// only ever sees these interfaces, resolved by ResolveFunc, so parsers and
// storage backends stay replaceable without touching the runtime.
type Collaborators struct {
	HTTPClient  plugin.HTTPClient
	Parser      plugin.Parser
	Index       plugin.SourceIndex
	Storage     plugin.Storage
	ObjectStore plugin.ObjectStore
	Headers     map[string]string
}

// ResolveFunc resolves the collaborators a JobConfig needs, typically by
// looking up names from the daemon's per-source configuration through
// pkg/plugin's registry.
type ResolveFunc func(cfg core.JobConfig) (Collaborators, error)

// Coordinator is the per-source Coordinator Actor. The zero value is not
// usable; use New.
type Coordinator struct {
	a        *actor.Actor
	sourceID string
	resolve  ResolveFunc
	bus      eventbus.Bus

	jobID     string
	cfg       core.JobConfig
	state     core.PipelineState
	progress  core.Progress
	seen      map[string]bool
	queue     []core.Reference // FIFO backlog, bounded only by memory
	buffered  []core.Reference // refs enqueued while Paused
	failedIDs []string
	logs      []core.LogEntry

	limiter *ratelimit.Limiter
	disc    *discovery.Discovery
	persist *persistence.Persistence

	pool      *fetch.Pool
	workerBsy []bool
	nextIdle  int

	discoveryDone            bool
	completedSinceCheckpoint int

	runCtx    context.Context
	runCancel context.CancelFunc
	stopped   bool
}

// New creates a Coordinator for sourceID. bus may be nil to disable the
// progress event stream.
func New(sourceID string, resolve ResolveFunc, bus eventbus.Bus) *Coordinator {
	c := &Coordinator{
		sourceID: sourceID,
		resolve:  resolve,
		bus:      bus,
		state:    core.StateIdle,
	}
	c.a = actor.New("coordinator:"+sourceID, func(err error) {
		slog.Error("coordinator actor error", "source", sourceID, "error", err)
	})
	return c
}

// SourceID returns the source this Coordinator owns.
func (c *Coordinator) SourceID() string { return c.sourceID }

// Start begins a new job: Idle -> Discovering. A Coordinator that just
// finished a prior job (Completed/Failed) accepts a
// new Start as if it were Idle — a single daemon process runs one
// Coordinator per source across many sequential jobs.
func (c *Coordinator) Start(ctx context.Context, cfg core.JobConfig) (string, error) {
	var (
		jobID string
		err   error
	)
	askErr := c.a.Ask(ctx, func() {
		jobID, err = c.handleStart(cfg)
	})
	if askErr != nil {
		return "", askErr
	}
	return jobID, err
}

func (c *Coordinator) handleStart(cfg core.JobConfig) (string, error) {
	if c.state != core.StateIdle && c.state != core.StateCompleted && c.state != core.StateFailed {
		return "", fmt.Errorf("coordinator: start: %w (current state %s)", core.ErrInvalidState, c.state)
	}
	if err := cfg.Validate(); err != nil {
		c.state = core.StateFailed
		c.addLog(slog.LevelError, "coordinator", "configuration invalid: "+err.Error(), "", "job_fatal")
		c.publish()
		return "", err
	}

	collab, err := c.resolve(cfg)
	if err != nil {
		c.state = core.StateFailed
		c.addLog(slog.LevelError, "coordinator", "collaborator resolution failed: "+err.Error(), "", "job_fatal")
		c.publish()
		return "", err
	}

	c.cfg = cfg
	c.jobID = uuid.NewV4().String()
	c.seen = make(map[string]bool)
	c.queue = nil
	c.buffered = nil
	c.failedIDs = nil
	c.progress = core.Progress{}
	c.discoveryDone = false
	c.completedSinceCheckpoint = 0
	c.stopped = false
	c.runCtx, c.runCancel = context.WithCancel(context.Background())
	c.limiter = ratelimit.New(cfg.RateLimitRPS)

	c.persist = persistence.New(persistence.Config{
		SourceID:    c.sourceID,
		Storage:     collab.Storage,
		ObjectStore: collab.ObjectStore,
		MaxAttempts: cfg.MaxFetchAttempts,
		OnFailed: func(externalID, reason string) {
			c.a.Tell(func() { c.handlePersistFailed(externalID, reason) })
		},
	})

	if cfg.CheckpointID != "" {
		cp, cpErr := c.persist.LoadCheckpoint(c.runCtx, cfg.CheckpointID)
		if cpErr != nil {
			c.state = core.StateFailed
			c.addLog(slog.LevelError, "coordinator", "checkpoint load failed: "+cpErr.Error(), "", "job_fatal")
			c.publish()
			return "", cpErr
		}
		if cp != nil {
			c.jobID = cp.SessionID
			for _, id := range cp.SeenIDs {
				c.seen[id] = true
			}
			c.failedIDs = append(c.failedIDs, cp.FailedIDs...)
		}
	}

	c.buildFetchers(collab)
	c.buildDiscovery(collab)

	c.state = core.StateDiscovering
	c.addLog(slog.LevelInfo, "coordinator", "job started", "", "")
	c.publish()

	maxResults := -1 // unbounded
	if cfg.MaxResults != nil {
		maxResults = *cfg.MaxResults
	}
	c.disc.Run(c.runCtx, buildIndexQuery(cfg), maxResults)
	return c.jobID, nil
}

// buildFetchers constructs the Fetch Worker pool. Assignment across workers
// stays the Coordinator's job (dispatchOrQueue/dequeueNext track per-worker
// idle/busy state so the shared FIFO backlog bounds each worker to one
// in-flight item), so Callbacks report the worker ID and the Coordinator
// assigns by index via Pool.AssignTo rather than using Pool's own
// round-robin Dispatch.
func (c *Coordinator) buildFetchers(collab Collaborators) {
	n := c.cfg.Concurrency
	c.pool = fetch.NewPool(n, fetch.Config{
		SourceID:         c.sourceID,
		HTTPClient:       collab.HTTPClient,
		Parser:           collab.Parser,
		Limiter:          c.limiter,
		Persistence:      c.persist,
		MaxAttempts:      c.cfg.MaxFetchAttempts,
		DownloadPayloads: c.cfg.DownloadPayloads,
		Headers:          collab.Headers,
		Callbacks: fetch.Callbacks{
			FetchedOk: func(workerID int, externalID string) {
				c.a.Tell(func() { c.handleFetchedOk(workerID, externalID) })
			},
			FetchFailed: func(workerID int, externalID string, status int, reason string) {
				c.a.Tell(func() { c.handleFetchFailed(workerID, externalID, status, reason) })
			},
			EnqueueReference: func(ref core.Reference) {
				c.a.Tell(func() { c.handleEnqueueReference(ref) })
			},
		},
	})
	c.workerBsy = make([]bool, c.pool.Len())
	c.nextIdle = 0
}

func (c *Coordinator) buildDiscovery(collab Collaborators) {
	c.disc = discovery.New(discovery.Config{
		SourceID:    c.sourceID,
		Index:       collab.Index,
		Limiter:     c.limiter,
		MaxAttempts: c.cfg.MaxFetchAttempts,
		Callbacks: discovery.Callbacks{
			Seen: func(externalID string) bool {
				var found bool
				_ = c.a.Ask(c.runCtx, func() { found = c.seen[externalID] })
				return found
			},
			EnqueueReference: func(ref core.Reference) {
				c.a.Tell(func() { c.handleEnqueueReference(ref) })
			},
			Failed: func(reason string) {
				c.a.Tell(func() { c.handleDiscoveryFailed(reason) })
			},
			Done: func() {
				c.a.Tell(func() { c.handleDiscoveryDone() })
			},
		},
	})
}

// buildIndexQuery maps the Coordinator-owned JobConfig onto the Discovery
// collaborator's query shape, unifying the today/date/range/category/search
// variants into one adapter call, per pkg/plugin.IndexQuery.
func buildIndexQuery(cfg core.JobConfig) plugin.IndexQuery {
	return plugin.IndexQuery{
		Mode:        cfg.Mode,
		Date:        cfg.Date,
		DateStart:   cfg.DateStart,
		DateEnd:     cfg.DateEnd,
		Category:    cfg.Category,
		Scope:       cfg.Scope,
		Status:      cfg.Status,
		SearchQuery: cfg.Query,
		Filters:     cfg.Filters,
	}
}

func (c *Coordinator) handleEnqueueReference(ref core.Reference) {
	if c.state != core.StateDiscovering && c.state != core.StateFetching && c.state != core.StatePaused {
		return // not accepting new work (Cancelling or terminal)
	}
	if c.seen[ref.ExternalID] {
		return // Discovery never emits a duplicate within the same job
	}
	c.seen[ref.ExternalID] = true
	c.progress.Discovered++
	c.progress.Pending++
	metrics.SeenSetSize.WithLabelValues(c.sourceID).Set(float64(len(c.seen)))

	if c.state == core.StateDiscovering {
		c.state = core.StateFetching
	}
	if c.state == core.StatePaused {
		c.buffered = append(c.buffered, ref)
		c.publish()
		return
	}
	c.dispatchOrQueue(ref)
	c.publish()
}

// dispatchOrQueue hands ref straight to an idle Fetcher, or appends it to
// the FIFO queue when every Fetcher already has one in flight — this bounds
// per-Fetcher backlog at one message.
func (c *Coordinator) dispatchOrQueue(ref core.Reference) {
	n := len(c.workerBsy)
	for i := 0; i < n; i++ {
		idx := (c.nextIdle + i) % n
		if !c.workerBsy[idx] {
			c.workerBsy[idx] = true
			c.nextIdle = (idx + 1) % n
			c.pool.AssignTo(c.runCtx, idx, ref)
			return
		}
	}
	c.queue = append(c.queue, ref)
}

// dequeueNext frees worker idx and, if the queue is non-empty, immediately
// hands it the next pending reference.
func (c *Coordinator) dequeueNext(idx int) {
	if idx < 0 || idx >= len(c.workerBsy) {
		return
	}
	c.workerBsy[idx] = false
	if len(c.queue) == 0 {
		return
	}
	ref := c.queue[0]
	c.queue = c.queue[1:]
	c.workerBsy[idx] = true
	c.pool.AssignTo(c.runCtx, idx, ref)
}

func (c *Coordinator) handleFetchedOk(workerIdx int, externalID string) {
	c.progress.Downloaded++
	c.progress.Pending--
	c.completedSinceCheckpoint++
	c.dequeueNext(workerIdx)
	c.maybeCheckpoint()
	c.checkCompletion()
	c.publish()
}

func (c *Coordinator) handleFetchFailed(workerIdx int, externalID string, status int, reason string) {
	c.progress.Errors++
	c.progress.Pending--
	c.failedIDs = append(c.failedIDs, externalID)
	c.addLog(slog.LevelWarn, "fetch", reason, externalID, "per_item_terminal")
	c.dequeueNext(workerIdx)
	c.maybeCheckpoint()
	c.checkCompletion()
	c.publish()
}

// handlePersistFailed reacts to a Persistence actor's PersistFailed hand-off,
// which always arrives after the matching FetchedOk already counted the item
// as Downloaded and freed its Fetcher — so this only moves
// the counter from Downloaded to Errors; it never touches Pending or the
// Fetcher pool.
func (c *Coordinator) handlePersistFailed(externalID, reason string) {
	c.progress.Downloaded--
	c.progress.Errors++
	c.failedIDs = append(c.failedIDs, externalID)
	c.addLog(slog.LevelWarn, "persistence", reason, externalID, "per_item_terminal")
	c.publish()
}

func (c *Coordinator) handleDiscoveryDone() {
	c.discoveryDone = true
	if c.state == core.StateDiscovering {
		// Empty result: Discovering -> Completed directly.
		c.state = core.StateCompleted
		c.writeCheckpoint(true)
		c.stopActors()
	} else {
		c.checkCompletion()
	}
	c.publish()
}

func (c *Coordinator) handleDiscoveryFailed(reason string) {
	if isTerminal(c.state) {
		return
	}
	c.state = core.StateFailed
	c.addLog(slog.LevelError, "discovery", reason, "", "job_fatal")
	c.stopActors()
	c.publish()
}

// checkCompletion applies the two terminal-transition rules: Fetching
// completes once the queue has drained and Discovery is done;
// Cancelling completes as soon as active work reaches zero, regardless of
// Discovery's status.
func (c *Coordinator) checkCompletion() {
	switch c.state {
	case core.StateFetching:
		if c.progress.Pending <= 0 && c.discoveryDone {
			c.state = core.StateCompleted
			c.writeCheckpoint(true)
			c.stopActors()
		}
	case core.StateCancelling:
		if c.progress.Pending <= 0 {
			c.state = core.StateCompleted
			c.progress.Cancelled = true
			c.writeCheckpoint(true)
			c.stopActors()
		}
	}
}

func (c *Coordinator) maybeCheckpoint() {
	interval := c.cfg.CheckpointInterval
	if interval <= 0 {
		interval = 10
	}
	if c.completedSinceCheckpoint >= interval {
		c.completedSinceCheckpoint = 0
		c.writeCheckpoint(false)
	}
}

func (c *Coordinator) writeCheckpoint(final bool) {
	if c.persist == nil {
		return
	}
	pendingIDs := make([]string, 0, len(c.queue))
	for _, ref := range c.queue {
		pendingIDs = append(pendingIDs, ref.ExternalID)
	}
	seenIDs := make([]string, 0, len(c.seen))
	for id := range c.seen {
		seenIDs = append(seenIDs, id)
	}
	cp := &core.Checkpoint{
		SessionID:  c.jobID,
		SourceID:   c.sourceID,
		PendingIDs: pendingIDs,
		FailedIDs:  append([]string(nil), c.failedIDs...),
		SeenIDs:    seenIDs,
		CreatedAt:  time.Now(),
	}
	if len(seenIDs) > 0 {
		cp.LastProcessedExternalID = seenIDs[len(seenIDs)-1]
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.persist.SaveCheckpoint(ctx, cp); err != nil {
		slog.Error("coordinator: checkpoint save failed", "source", c.sourceID, "job", c.jobID, "final", final, "error", err)
	}
}

func (c *Coordinator) stopActors() {
	if c.stopped {
		return
	}
	c.stopped = true
	c.disc.Stop()
	if c.pool != nil {
		c.pool.Stop()
	}
	c.persist.Stop()
	c.limiter.Cancel()
}

// Pause freezes dispatch; in-flight fetches complete normally.
func (c *Coordinator) Pause(ctx context.Context) error {
	var err error
	askErr := c.a.Ask(ctx, func() {
		if c.state != core.StateFetching {
			err = fmt.Errorf("coordinator: pause: %w (current state %s)", core.ErrInvalidState, c.state)
			return
		}
		c.state = core.StatePaused
		c.addLog(slog.LevelInfo, "coordinator", "paused", "", "")
		c.publish()
	})
	if askErr != nil {
		return askErr
	}
	return err
}

// Resume drains the pause buffer back into the Fetcher pool.
func (c *Coordinator) Resume(ctx context.Context) error {
	var err error
	askErr := c.a.Ask(ctx, func() {
		if c.state != core.StatePaused {
			err = fmt.Errorf("coordinator: resume: %w (current state %s)", core.ErrInvalidState, c.state)
			return
		}
		c.state = core.StateFetching
		buffered := c.buffered
		c.buffered = nil
		for _, ref := range buffered {
			c.dispatchOrQueue(ref)
		}
		c.addLog(slog.LevelInfo, "coordinator", "resumed", "", "")
		c.publish()
	})
	if askErr != nil {
		return askErr
	}
	return err
}

// Cancel aborts the job cooperatively: the shared rate limiter and fetch
// retries are signalled to abort, and the job reaches Completed(cancelled)
// once active work drains.
func (c *Coordinator) Cancel(ctx context.Context) error {
	var err error
	askErr := c.a.Ask(ctx, func() {
		if isTerminal(c.state) {
			err = fmt.Errorf("coordinator: cancel: %w (current state %s)", core.ErrInvalidState, c.state)
			return
		}
		c.state = core.StateCancelling
		if c.runCancel != nil {
			c.runCancel()
		}
		if c.limiter != nil {
			c.limiter.Cancel()
		}
		c.addLog(slog.LevelInfo, "coordinator", "cancel requested", "", "")
		c.checkCompletion()
		c.publish()
	})
	if askErr != nil {
		return askErr
	}
	return err
}

// Status returns a snapshot of state and progress.
func (c *Coordinator) Status(ctx context.Context) (core.JobStatus, error) {
	var status core.JobStatus
	askErr := c.a.Ask(ctx, func() {
		status = core.JobStatus{
			JobID:    c.jobID,
			SourceID: c.sourceID,
			State:    c.state,
			Progress: c.progress,
		}
	})
	return status, askErr
}

// Logs returns the most recent limit entries from the ring buffer.
// limit<=0 returns everything retained.
func (c *Coordinator) Logs(ctx context.Context, limit int) ([]core.LogEntry, error) {
	var out []core.LogEntry
	askErr := c.a.Ask(ctx, func() {
		if limit <= 0 || limit >= len(c.logs) {
			out = append(out, c.logs...)
			return
		}
		out = append(out, c.logs[len(c.logs)-limit:]...)
	})
	return out, askErr
}

func (c *Coordinator) addLog(level slog.Level, component, message, externalID, errorKind string) {
	c.logs = append(c.logs, core.LogEntry{
		Timestamp:  time.Now(),
		Level:      level.String(),
		Component:  component,
		Message:    message,
		ExternalID: externalID,
		ErrorKind:  errorKind,
	})
	if len(c.logs) > logRingCapacity {
		c.logs = c.logs[len(c.logs)-logRingCapacity:]
	}
	switch level {
	case slog.LevelError:
		slog.Error(message, "source", c.sourceID, "job", c.jobID, "external_id", externalID)
	case slog.LevelWarn:
		slog.Warn(message, "source", c.sourceID, "job", c.jobID, "external_id", externalID)
	default:
		slog.Info(message, "source", c.sourceID, "job", c.jobID)
	}
}

// publish pushes the current metrics and, if a bus is attached, the current
// Progress snapshot onto the job's event topic.
func (c *Coordinator) publish() {
	c.progress.State = c.state
	metrics.SetJobStatus(c.sourceID, string(c.state))
	metrics.ProgressDiscovered.WithLabelValues(c.sourceID).Set(float64(c.progress.Discovered))
	metrics.ProgressDownloaded.WithLabelValues(c.sourceID).Set(float64(c.progress.Downloaded))
	metrics.ProgressErrors.WithLabelValues(c.sourceID).Set(float64(c.progress.Errors))
	metrics.ProgressPending.WithLabelValues(c.sourceID).Set(float64(c.progress.Pending))

	if c.bus == nil || c.jobID == "" {
		return
	}
	if err := c.bus.Publish(&eventbus.Event{Topic: c.jobID, Key: c.jobID, Payload: c.progress}); err != nil {
		slog.Debug("coordinator: progress publish dropped", "source", c.sourceID, "job", c.jobID, "error", err)
	}
}

func isTerminal(s core.PipelineState) bool {
	return s == core.StateCompleted || s == core.StateFailed
}

// Stop shuts down the Coordinator's own actor along with any still-running
// job actors, used by the daemon during process shutdown.
func (c *Coordinator) Stop() {
	c.a.Ask(context.Background(), func() {
		if c.runCancel != nil {
			c.runCancel()
		}
		c.stopActors()
	})
	c.a.Stop(defaultStopDeadline)
}
