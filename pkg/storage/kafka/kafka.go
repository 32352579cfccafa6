// Package kafka implements a fan-out Storage decorator: every document saved
// through the wrapped primary Storage is also published to a Kafka topic,
// for downstream indexing/search systems outside this pipeline's scope.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	kafkacompress "github.com/segmentio/kafka-go/compress"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/pkg/plugin"
)

// Config configures the Kafka fan-out Store.
type Config struct {
	Brokers         []string
	Topic           string
	Compression     string // "none" | "gzip" | "snappy" | "lz4"
	MaxMessageBytes int
}

// Store wraps a primary Storage, publishing a JSON copy of every saved
// Document to Kafka. Storage reads (Exists, checkpoints) pass straight
// through to the primary; Kafka has no read path.
type Store struct {
	primary plugin.Storage
	cfg     Config
	writer  *kafka.Writer
}

// New creates a Kafka fan-out Store wrapping primary.
func New(primary plugin.Storage, cfg Config) (*Store, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, fmt.Errorf("kafka store: brokers and topic are required")
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    100,
		BatchTimeout: 100 * time.Millisecond,
		MaxAttempts:  3,
		Compression:  compressionCodec(cfg.Compression),
	}

	return &Store{primary: primary, cfg: cfg, writer: w}, nil
}

var _ plugin.Storage = (*Store)(nil)

func compressionCodec(name string) kafka.Compression {
	switch name {
	case "gzip":
		return kafka.Compression(kafkacompress.Gzip)
	case "snappy":
		return kafka.Compression(kafkacompress.Snappy)
	case "lz4":
		return kafka.Compression(kafkacompress.Lz4)
	default:
		return kafka.Compression(kafkacompress.None)
	}
}

// Name identifies this collaborator in the plugin registry.
func (s *Store) Name() string { return "kafka" }

// Init is a no-op; Config is supplied to New directly.
func (s *Store) Init(_ map[string]any) error { return nil }

type documentEnvelope struct {
	SourceID   string         `json:"source_id"`
	ExternalID string         `json:"external_id"`
	Document   *core.Document `json:"document"`
}

// Save persists via the primary, then publishes a best-effort copy to
// Kafka — a publish failure is logged, never returned, since Kafka here is
// a fan-out sink, not the record of truth. Idempotency and retry semantics
// apply only to the primary store.
func (s *Store) Save(key plugin.StorageKey, doc *core.Document) error {
	if err := s.primary.Save(key, doc); err != nil {
		return err
	}

	data, err := json.Marshal(documentEnvelope{SourceID: key.SourceID, ExternalID: key.ExternalID, Document: doc})
	if err != nil {
		slog.Warn("kafka store: marshal envelope failed", "external_id", key.ExternalID, "error", err)
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key.ExternalID), Value: data}); err != nil {
		slog.Warn("kafka store: fan-out publish failed", "external_id", key.ExternalID, "error", err)
	}
	return nil
}

func (s *Store) Exists(key plugin.StorageKey) (bool, error) { return s.primary.Exists(key) }

func (s *Store) LoadCheckpoint(sessionID string) (*core.Checkpoint, error) {
	return s.primary.LoadCheckpoint(sessionID)
}

func (s *Store) SaveCheckpoint(c *core.Checkpoint) error { return s.primary.SaveCheckpoint(c) }

// Stop flushes and closes the Kafka writer (plugin.Startable).
func (s *Store) Stop(_ context.Context) error { return s.writer.Close() }

// Start is a no-op; the writer connects lazily on first write.
func (s *Store) Start(_ context.Context) error { return nil }

var _ plugin.Startable = (*Store)(nil)
