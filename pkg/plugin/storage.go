package plugin

import "github.com/archivant/lexfetch/internal/core"

// StorageKey identifies a persisted Document.
type StorageKey struct {
	SourceID   string
	ExternalID string
}

// Storage is the persistence collaborator. Implementations must make
// Save idempotent on the same key.
type Storage interface {
	Plugin
	Save(key StorageKey, doc *core.Document) error
	Exists(key StorageKey) (bool, error)
	LoadCheckpoint(sessionID string) (*core.Checkpoint, error)
	SaveCheckpoint(c *core.Checkpoint) error
}

// ObjectStore is the optional raw-blob collaborator, for PDFs and other
// payloads the Persistence actor chooses to retain alongside the Document.
type ObjectStore interface {
	Plugin
	Put(path string, data []byte) (blobRef string, err error)
}
