// Package plugin provides the global collaborator registry. Factories are
// registered from each parser/storage package's init() and resolved by name
// when a job starts, keeping the Coordinator free of concrete source imports
// so parsers stay replaceable without touching the runtime.
package plugin

import (
	"fmt"
	"sort"
	"sync"

	"github.com/archivant/lexfetch/internal/core"
)

// Factory types — zero-parameter functions returning an uninitialized
// collaborator instance. Configuration is injected afterwards via Init().
type (
	ParserFactory      func() Parser
	StorageFactory     func() Storage
	ObjectStoreFactory func() ObjectStore
	SourceIndexFactory func() SourceIndex
)

// registry is a generic, panic-on-duplicate named factory table. One generic
// implementation stands in for four hand-copied map+Register+Get+List
// groups, one per plugin kind.
type registry[F any] struct {
	mu   sync.RWMutex
	kind string
	m    map[string]F
}

func newRegistry[F any](kind string) *registry[F] {
	return &registry[F]{kind: kind, m: make(map[string]F)}
}

func (r *registry[F]) Register(name string, factory F, isNil bool) {
	if name == "" {
		panic(fmt.Sprintf("plugin: %s name cannot be empty", r.kind))
	}
	if isNil {
		panic(fmt.Sprintf("plugin: %s factory cannot be nil", r.kind))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.m[name]; exists {
		panic(fmt.Sprintf("plugin: %s %q already registered", r.kind, name))
	}
	r.m[name] = factory
}

func (r *registry[F]) Get(name string) (F, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.m[name]
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, core.ErrJobNotFound)
	}
	return factory, nil
}

func (r *registry[F]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.m))
	for name := range r.m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Reset clears the registry. Test-only.
func (r *registry[F]) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m = make(map[string]F)
}

var (
	parserReg      = newRegistry[ParserFactory]("parser")
	storageReg     = newRegistry[StorageFactory]("storage")
	objectStoreReg = newRegistry[ObjectStoreFactory]("object_store")
	sourceIndexReg = newRegistry[SourceIndexFactory]("source_index")
)

func RegisterParser(name string, factory ParserFactory) {
	parserReg.Register(name, factory, factory == nil)
}

func RegisterStorage(name string, factory StorageFactory) {
	storageReg.Register(name, factory, factory == nil)
}

func RegisterObjectStore(name string, factory ObjectStoreFactory) {
	objectStoreReg.Register(name, factory, factory == nil)
}

func RegisterSourceIndex(name string, factory SourceIndexFactory) {
	sourceIndexReg.Register(name, factory, factory == nil)
}

func GetParserFactory(name string) (ParserFactory, error)   { return parserReg.Get(name) }
func GetStorageFactory(name string) (StorageFactory, error) { return storageReg.Get(name) }
func GetObjectStoreFactory(name string) (ObjectStoreFactory, error) {
	return objectStoreReg.Get(name)
}
func GetSourceIndexFactory(name string) (SourceIndexFactory, error) {
	return sourceIndexReg.Get(name)
}

func ListParsers() []string         { return parserReg.List() }
func ListStorageBackends() []string { return storageReg.List() }
func ListObjectStores() []string    { return objectStoreReg.List() }
func ListSourceIndexes() []string   { return sourceIndexReg.List() }

// ResetRegistries clears every registry. Test-only.
func ResetRegistries() {
	parserReg.Reset()
	storageReg.Reset()
	objectStoreReg.Reset()
	sourceIndexReg.Reset()
}
