// Package persistence implements the Persistence Actor: a single-writer
// actor that serializes Documents and Checkpoints to the configured Storage
// collaborator, idempotent on (source_id, external_id), with retry+backoff
// on transient storage errors.
package persistence

import (
	"context"
	"log/slog"
	"time"

	"github.com/archivant/lexfetch/internal/actor"
	"github.com/archivant/lexfetch/internal/backoff"
	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/metrics"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// defaultStopDeadline bounds how long Stop waits for the mailbox to drain.
const defaultStopDeadline = 5 * time.Second

// FailureHandler is invoked when a document exhausts max_attempts; it is the
// Persistence actor's `tell(coordinator, PersistFailed(external_id, reason))`
// hand-off.
type FailureHandler func(externalID, reason string)

// Config configures a Persistence actor.
type Config struct {
	SourceID    string
	Storage     plugin.Storage
	ObjectStore plugin.ObjectStore // optional; nil disables raw-blob retention
	MaxAttempts int                // retries for transient storage errors, default 3
	OnFailed    FailureHandler
}

// Persistence is the Persistence Actor. The zero value is not usable; use
// New.
type Persistence struct {
	a           *actor.Actor
	sourceID    string
	storage     plugin.Storage
	objectStore plugin.ObjectStore
	maxAttempts int
	onFailed    FailureHandler
}

// New starts a Persistence actor.
func New(cfg Config) *Persistence {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	p := &Persistence{
		sourceID:    cfg.SourceID,
		storage:     cfg.Storage,
		objectStore: cfg.ObjectStore,
		maxAttempts: maxAttempts,
		onFailed:    cfg.OnFailed,
	}
	p.a = actor.New("persistence:"+cfg.SourceID, func(err error) {
		slog.Error("persistence actor error", "source", cfg.SourceID, "error", err)
	})
	return p
}

// SaveDocument enqueues doc for durable storage, keyed by
// (source_id, external_id). Fire-and-forget: the caller learns of terminal
// failure only via the configured FailureHandler.
func (p *Persistence) SaveDocument(ctx context.Context, doc *core.Document, raw []byte) {
	p.a.Tell(func() {
		p.saveOne(ctx, doc, raw)
	})
}

func (p *Persistence) saveOne(ctx context.Context, doc *core.Document, raw []byte) {
	key := plugin.StorageKey{SourceID: p.sourceID, ExternalID: doc.ExternalID}

	exists, err := p.storage.Exists(key)
	if err != nil {
		slog.Warn("persistence: exists check failed, proceeding with save",
			"source", p.sourceID, "external_id", doc.ExternalID, "error", err)
	} else if exists {
		slog.Debug("persistence: document already persisted, skipping",
			"source", p.sourceID, "external_id", doc.ExternalID)
		return
	}

	if len(raw) > 0 && p.objectStore != nil {
		ref, err := p.objectStore.Put(doc.ExternalID, raw)
		if err != nil {
			slog.Warn("persistence: raw blob store failed, continuing without it",
				"source", p.sourceID, "external_id", doc.ExternalID, "error", err)
		} else {
			doc.RawBlobRef = ref
		}
	}

	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			metrics.PersistErrorsTotal.WithLabelValues(p.sourceID, "retry").Inc()
			if err := backoff.Sleep(ctx, attempt-1); err != nil {
				p.fail(doc.ExternalID, "cancelled during backoff")
				return
			}
		}
		if err := p.storage.Save(key, doc); err != nil {
			lastErr = err
			slog.Warn("persistence: save attempt failed",
				"source", p.sourceID, "external_id", doc.ExternalID,
				"attempt", attempt+1, "error", err)
			continue
		}
		return
	}

	metrics.PersistErrorsTotal.WithLabelValues(p.sourceID, "failed").Inc()
	p.fail(doc.ExternalID, lastErr.Error())
}

func (p *Persistence) fail(externalID, reason string) {
	if p.onFailed != nil {
		p.onFailed(externalID, reason)
	}
}

// Flush blocks until every SaveDocument enqueued before this call has either
// succeeded or failed terminally — the actor's single-consumer ordering
// makes this a plain no-op ask: by the time it runs, every prior Tell has
// already been processed.
func (p *Persistence) Flush(ctx context.Context) error {
	return p.a.Ask(ctx, func() {})
}

// SaveCheckpoint durably records a resume point.
func (p *Persistence) SaveCheckpoint(ctx context.Context, c *core.Checkpoint) error {
	var err error
	askErr := p.a.Ask(ctx, func() {
		err = p.storage.SaveCheckpoint(c)
	})
	if askErr != nil {
		return askErr
	}
	return err
}

// LoadCheckpoint reads a prior checkpoint for resume, used when
// Start is given a checkpoint id to resume from.
func (p *Persistence) LoadCheckpoint(ctx context.Context, sessionID string) (*core.Checkpoint, error) {
	var (
		cp  *core.Checkpoint
		err error
	)
	askErr := p.a.Ask(ctx, func() {
		cp, err = p.storage.LoadCheckpoint(sessionID)
	})
	if askErr != nil {
		return nil, askErr
	}
	return cp, err
}

// Stop drains the mailbox and stops the underlying actor.
func (p *Persistence) Stop() {
	p.a.Stop(defaultStopDeadline)
}
