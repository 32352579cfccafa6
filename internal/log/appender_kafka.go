package log

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaAppenderOpt configures the Kafka log-shipping writer.
type KafkaAppenderOpt struct {
	Brokers []string
	Topic   string
}

// KafkaWriter implements io.Writer by publishing each write as a single
// Kafka message, keyed by nothing (round-robin across partitions).
type KafkaWriter struct {
	writer *kafka.Writer
}

// NewKafkaWriter creates a Kafka-backed log writer.
func NewKafkaWriter(opt KafkaAppenderOpt) (*KafkaWriter, error) {
	w := &kafka.Writer{
		Addr:         kafka.TCP(opt.Brokers...),
		Topic:        opt.Topic,
		Balancer:     &kafka.RoundRobin{},
		BatchTimeout: 500 * time.Millisecond,
		Async:        true,
	}
	return &KafkaWriter{writer: w}, nil
}

// Write implements io.Writer. Errors are returned to the caller (the
// package's own MultiWriter aggregates write errors across destinations
// rather than letting one broken appender hide a write failure).
func (kw *KafkaWriter) Write(p []byte) (int, error) {
	msg := make([]byte, len(p))
	copy(msg, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := kw.writer.WriteMessages(ctx, kafka.Message{Value: msg}); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close flushes and closes the underlying Kafka writer.
func (kw *KafkaWriter) Close() error {
	return kw.writer.Close()
}
