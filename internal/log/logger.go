// Package log implements structured logging using slog, fanning each record
// out to however many of stdout/file/Loki/Kafka the configuration enables.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/archivant/lexfetch/internal/config"
)

// Init initializes the global logger based on configuration.
func Init(cfg config.LogConfig) error {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	mw := NewMultiWriter()
	enabled := false

	if cfg.Outputs.File.Enabled {
		w, err := createFileWriter(cfg.Outputs.File)
		if err != nil {
			return fmt.Errorf("failed to create file output: %w", err)
		}
		mw.Add(w)
		enabled = true
	}

	if cfg.Outputs.Loki.Enabled {
		w, err := createLokiWriter(cfg.Outputs.Loki)
		if err != nil {
			return fmt.Errorf("failed to create loki output: %w", err)
		}
		mw.Add(w)
		enabled = true
	}

	if cfg.Outputs.Kafka.Enabled {
		w, err := createKafkaWriter(cfg.Outputs.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create kafka output: %w", err)
		}
		mw.Add(w)
		enabled = true
	}

	if !enabled {
		mw.Add(os.Stdout)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		handler = slog.NewJSONHandler(mw, opts)
	case "text":
		handler = slog.NewTextHandler(mw, opts)
	default:
		return fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// parseLevel converts string level to slog.Level.
func parseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown level: %s", levelStr)
	}
}

// createFileWriter builds a rotating file writer via lumberjack.
func createFileWriter(fc config.FileOutputConfig) (io.Writer, error) {
	if fc.Path == "" {
		return nil, fmt.Errorf("file output requires 'path' field")
	}
	return &lumberjack.Logger{
		Filename:   fc.Path,
		MaxSize:    fc.Rotation.MaxSizeMB,
		MaxBackups: fc.Rotation.MaxBackups,
		MaxAge:     fc.Rotation.MaxAgeDays,
		Compress:   fc.Rotation.Compress,
	}, nil
}

// createLokiWriter builds a batching Loki push writer.
func createLokiWriter(lc config.LokiOutputConfig) (io.Writer, error) {
	if lc.Endpoint == "" {
		return nil, fmt.Errorf("loki output requires 'endpoint' field")
	}
	return NewLokiWriter(LokiConfig{
		Endpoint:      lc.Endpoint,
		Labels:        lc.Labels,
		BatchSize:     lc.BatchSize,
		FlushInterval: lc.BatchTimeout,
	})
}

// createKafkaWriter builds a Kafka-backed log shipping writer.
func createKafkaWriter(kc config.KafkaOutputConfig) (io.Writer, error) {
	if len(kc.Brokers) == 0 || kc.Topic == "" {
		return nil, fmt.Errorf("kafka output requires 'brokers' and 'topic' fields")
	}
	return NewKafkaWriter(KafkaAppenderOpt{
		Brokers: kc.Brokers,
		Topic:   kc.Topic,
	})
}
