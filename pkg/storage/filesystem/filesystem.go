// Package filesystem implements the Storage and ObjectStore collaborators
// against an afero.Fs, using the on-disk layout: documents/, checkpoints/,
// raw/. Writes go through a temp-file-plus-rename for crash-safe atomic
// durability.
package filesystem

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/afero"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

const (
	documentsDir   = "documents"
	checkpointsDir = "checkpoints"
	rawDir         = "raw"
)

// Store is a Storage + ObjectStore collaborator rooted at a base directory.
type Store struct {
	fs      afero.Fs
	baseDir string
}

// New creates a Store rooted at baseDir using the real OS filesystem.
func New(baseDir string) *Store {
	return &Store{fs: afero.NewOsFs(), baseDir: baseDir}
}

// NewWithFs creates a Store over an arbitrary afero.Fs, for tests
// (afero.NewMemMapFs()).
func NewWithFs(fs afero.Fs, baseDir string) *Store {
	return &Store{fs: fs, baseDir: baseDir}
}

var _ plugin.Storage = (*Store)(nil)
var _ plugin.ObjectStore = (*Store)(nil)

func init() {
	plugin.RegisterStorage("filesystem", func() plugin.Storage { return New("") })
	plugin.RegisterObjectStore("filesystem", func() plugin.ObjectStore { return New("") })
}

// Name identifies this collaborator in the plugin registry.
func (s *Store) Name() string { return "filesystem" }

type filesystemConfig struct {
	OutputDirectory string `mapstructure:"output_directory"`
}

// Init wires output_directory from the collaborator config map, falling
// back to the directory passed to New/NewWithFs when absent.
func (s *Store) Init(cfg map[string]any) error {
	var c filesystemConfig
	if err := mapstructure.Decode(cfg, &c); err != nil {
		return fmt.Errorf("filesystem store: decode config: %w", err)
	}
	if c.OutputDirectory != "" {
		s.baseDir = c.OutputDirectory
	}
	for _, dir := range []string{documentsDir, checkpointsDir, rawDir} {
		if err := s.fs.MkdirAll(filepath.Join(s.baseDir, dir), 0o750); err != nil {
			return fmt.Errorf("filesystem store: create %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes doc to documents/<external_id>.json via temp-file+rename.
// Idempotent: a second Save for the same key overwrites with identical
// content, a no-op in effect.
func (s *Store) Save(key plugin.StorageKey, doc *core.Document) error {
	return s.writeJSON(filepath.Join(s.baseDir, documentsDir, key.ExternalID+".json"), doc)
}

// Exists reports whether a Document has already been persisted for key.
func (s *Store) Exists(key plugin.StorageKey) (bool, error) {
	_, err := s.fs.Stat(filepath.Join(s.baseDir, documentsDir, key.ExternalID+".json"))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// LoadCheckpoint reads checkpoints/<session_id>.json, returning
// (nil, nil) when no checkpoint exists for sessionID.
func (s *Store) LoadCheckpoint(sessionID string) (*core.Checkpoint, error) {
	data, err := afero.ReadFile(s.fs, filepath.Join(s.baseDir, checkpointsDir, sessionID+".json"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("filesystem store: load checkpoint %q: %w", sessionID, err)
	}
	var cp core.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrCheckpointCorrupt, err)
	}
	return &cp, nil
}

// SaveCheckpoint writes c to checkpoints/<session_id>.json.
func (s *Store) SaveCheckpoint(c *core.Checkpoint) error {
	return s.writeJSON(filepath.Join(s.baseDir, checkpointsDir, c.SessionID+".json"), c)
}

// Put writes a raw blob (PDF/HTML) under raw/<path> and returns a blob_ref
// usable as Document.RawBlobRef.
func (s *Store) Put(path string, data []byte) (string, error) {
	full := filepath.Join(s.baseDir, rawDir, path)
	if err := s.fs.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return "", fmt.Errorf("filesystem store: create raw dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, full, data, 0o640); err != nil {
		return "", fmt.Errorf("filesystem store: write raw blob %q: %w", path, err)
	}
	return full, nil
}

// writeJSON marshals v with canonical field order and writes it atomically:
// a unique temp file in the target directory, then a rename, so a crash
// mid-write never leaves a partial file at the final path.
func (s *Store) writeJSON(finalPath string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("filesystem store: marshal: %w", err)
	}

	dir := filepath.Dir(finalPath)
	if err := s.fs.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("filesystem store: create dir %q: %w", dir, err)
	}

	tmp, err := afero.TempFile(s.fs, dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("filesystem store: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("filesystem store: write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("filesystem store: close temp file: %w", err)
	}
	if err := s.fs.Rename(tmpName, finalPath); err != nil {
		_ = s.fs.Remove(tmpName)
		return fmt.Errorf("filesystem store: rename to %q: %w", finalPath, err)
	}
	return nil
}
