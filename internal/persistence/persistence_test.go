package persistence

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
	"github.com/archivant/lexfetch/pkg/storage/memory"
)

func TestPersistence_SaveAndFlush(t *testing.T) {
	store := memory.New()
	p := New(Config{SourceID: "gazette", Storage: store})
	defer p.Stop()

	ctx := context.Background()
	doc := &core.Document{SourceID: "gazette", ExternalID: "doc-1", Title: "t"}
	p.SaveDocument(ctx, doc, nil)

	require.NoError(t, p.Flush(ctx))

	saved := store.Documents()
	got, ok := saved[plugin.StorageKey{SourceID: "gazette", ExternalID: "doc-1"}]
	require.True(t, ok)
	assert.Equal(t, "t", got.Title)
}

func TestPersistence_IdempotentSecondSave(t *testing.T) {
	store := memory.New()
	p := New(Config{SourceID: "gazette", Storage: store})
	defer p.Stop()

	ctx := context.Background()
	doc := &core.Document{SourceID: "gazette", ExternalID: "doc-1", Title: "first"}
	p.SaveDocument(ctx, doc, nil)
	require.NoError(t, p.Flush(ctx))

	// A second save for the same key must be a no-op: the stored title
	// must not be overwritten by a differently-titled duplicate.
	dup := &core.Document{SourceID: "gazette", ExternalID: "doc-1", Title: "second"}
	p.SaveDocument(ctx, dup, nil)
	require.NoError(t, p.Flush(ctx))

	saved := store.Documents()
	assert.Equal(t, "first", saved[plugin.StorageKey{SourceID: "gazette", ExternalID: "doc-1"}].Title)
}

// retryingStore fails the first failuresLeft Save calls with a transient
// error, then delegates to the wrapped memory.Store.
type retryingStore struct {
	*memory.Store
	failuresLeft int32
}

func (r *retryingStore) Save(key plugin.StorageKey, doc *core.Document) error {
	if atomic.AddInt32(&r.failuresLeft, -1) >= 0 {
		return fmt.Errorf("simulated transient storage error")
	}
	return r.Store.Save(key, doc)
}

func TestPersistence_RetryThenSucceed(t *testing.T) {
	store := memory.New()
	p := New(Config{SourceID: "gazette", Storage: &retryingStore{Store: store, failuresLeft: 2}, MaxAttempts: 3})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := &core.Document{SourceID: "gazette", ExternalID: "doc-1", Title: "t"}
	p.SaveDocument(ctx, doc, nil)
	require.NoError(t, p.Flush(ctx))

	saved := store.Documents()
	_, ok := saved[plugin.StorageKey{SourceID: "gazette", ExternalID: "doc-1"}]
	assert.True(t, ok)
}

func TestPersistence_ExhaustedRetriesCallsOnFailed(t *testing.T) {
	store := memory.New()
	var failed atomic.Bool
	var failedID string
	p := New(Config{
		SourceID:    "gazette",
		Storage:     &retryingStore{Store: store, failuresLeft: 100},
		MaxAttempts: 2,
		OnFailed: func(externalID, reason string) {
			failed.Store(true)
			failedID = externalID
		},
	})
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	doc := &core.Document{SourceID: "gazette", ExternalID: "doc-2", Title: "t"}
	p.SaveDocument(ctx, doc, nil)
	require.NoError(t, p.Flush(ctx))

	assert.True(t, failed.Load())
	assert.Equal(t, "doc-2", failedID)

	_, ok := store.Documents()[plugin.StorageKey{SourceID: "gazette", ExternalID: "doc-2"}]
	assert.False(t, ok)
}
