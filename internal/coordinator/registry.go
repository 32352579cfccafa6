package coordinator

import (
	"fmt"
	"sort"
	"sync"

	"github.com/archivant/lexfetch/internal/core"
)

// Registry holds one Coordinator per configured source, built once at daemon
// startup from config.GlobalConfig.Sources and looked up by source_id on
// every control-surface call, since every operation is source-scoped.
type Registry struct {
	mu    sync.RWMutex
	byID  map[string]*Coordinator
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Coordinator)}
}

// Add registers c under sourceID. Panics on duplicate registration, matching
// pkg/plugin's registry discipline — a daemon's source set is fixed at
// startup, so a collision means misconfiguration, not a runtime race.
func (r *Registry) Add(sourceID string, c *Coordinator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[sourceID]; exists {
		panic(fmt.Sprintf("coordinator: source %q already registered", sourceID))
	}
	r.byID[sourceID] = c
}

// Get returns the Coordinator for sourceID, or core.ErrJobNotFound if no
// such source was configured.
func (r *Registry) Get(sourceID string) (*Coordinator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byID[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", sourceID, core.ErrJobNotFound)
	}
	return c, nil
}

// List returns every registered source_id, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns every registered Coordinator, for daemon-wide operations
// (shutdown, stats aggregation).
func (r *Registry) All() []*Coordinator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Coordinator, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, c)
	}
	return out
}
