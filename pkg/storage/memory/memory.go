// Package memory implements an in-process Storage + ObjectStore collaborator
// for tests and dry runs — no filesystem or network I/O.
package memory

import (
	"sync"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// Store is a map-backed Storage + ObjectStore, safe for concurrent use.
type Store struct {
	mu          sync.RWMutex
	documents   map[plugin.StorageKey]*core.Document
	checkpoints map[string]*core.Checkpoint
	blobs       map[string][]byte
}

// New creates an empty in-memory Store.
func New() *Store {
	return &Store{
		documents:   make(map[plugin.StorageKey]*core.Document),
		checkpoints: make(map[string]*core.Checkpoint),
		blobs:       make(map[string][]byte),
	}
}

func init() {
	plugin.RegisterStorage("memory", func() plugin.Storage { return New() })
	plugin.RegisterObjectStore("memory", func() plugin.ObjectStore { return New() })
}

var _ plugin.Storage = (*Store)(nil)
var _ plugin.ObjectStore = (*Store)(nil)

func (s *Store) Name() string             { return "memory" }
func (s *Store) Init(_ map[string]any) error { return nil }

func (s *Store) Save(key plugin.StorageKey, doc *core.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[key] = doc
	return nil
}

func (s *Store) Exists(key plugin.StorageKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.documents[key]
	return ok, nil
}

func (s *Store) LoadCheckpoint(sessionID string) (*core.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkpoints[sessionID], nil
}

func (s *Store) SaveCheckpoint(c *core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[c.SessionID] = c
	return nil
}

func (s *Store) Put(path string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[path] = cp
	return "memory://" + path, nil
}

// Documents returns a snapshot of every saved document, for test assertions.
func (s *Store) Documents() map[plugin.StorageKey]*core.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[plugin.StorageKey]*core.Document, len(s.documents))
	for k, v := range s.documents {
		out[k] = v
	}
	return out
}
