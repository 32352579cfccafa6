// Package plugin defines the external collaborator contracts: Parser,
// HTTPClient, Storage and ObjectStore, plus the registry that resolves a
// named Parser for a source at runtime. The Coordinator and Fetch Worker
// depend only on these interfaces, never on a concrete source implementation.
package plugin

import "context"

// Plugin is the lifecycle every named collaborator implementation shares.
type Plugin interface {
	Name() string
	Init(cfg map[string]any) error
}

// Startable is implemented by collaborators that own background resources
// (a Kafka producer, a pooled HTTP transport) needing explicit shutdown.
type Startable interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}
