// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// GlobalConfig represents the top-level global static configuration.
// Maps to the `lexfetch:` root key in YAML.
type GlobalConfig struct {
	Node            NodeConfig            `mapstructure:"node"`
	Control         ControlConfig         `mapstructure:"control"`
	Kafka           GlobalKafkaConfig     `mapstructure:"kafka"`
	CommandChannel  CommandChannelConfig  `mapstructure:"command_channel"`
	Reporters       ReportersConfig       `mapstructure:"reporters"`
	Resources       ResourcesConfig       `mapstructure:"resources"`
	Backpressure    BackpressureConfig    `mapstructure:"backpressure"`
	Metrics         MetricsConfig         `mapstructure:"metrics"`
	Log             LogConfig             `mapstructure:"log"`
	DataDir         string                `mapstructure:"data_dir"` // /var/lib/lexfetch
	TaskPersistence TaskPersistenceConfig `mapstructure:"task_persistence"`
	Sources         map[string]SourceConfig `mapstructure:"sources"` // per-source JobConfig defaults, keyed by source_id
}

// ─── Source Defaults ───

// SourceConfig holds the default JobConfig fields for a registered document
// source, overridden per-run by the fields a job request actually sets via
// the control surface's Start operation.
type SourceConfig struct {
	RateLimitRPS       float64  `mapstructure:"rate_limit_rps"`
	Concurrency        int      `mapstructure:"concurrency"`
	MaxFetchAttempts   int      `mapstructure:"max_fetch_attempts"`
	CheckpointInterval int      `mapstructure:"checkpoint_interval"`
	DownloadPayloads   bool     `mapstructure:"download_payloads"`
	Parser             string   `mapstructure:"parser"`
	Storage            string   `mapstructure:"storage"`
	BaseURL            string   `mapstructure:"base_url"`
	Headers            map[string]string `mapstructure:"headers"`
}

// ─── Node Identity ───

// NodeConfig contains node identification settings.
type NodeConfig struct {
	IP       string            `mapstructure:"ip"`       // Empty = auto-detect
	Hostname string            `mapstructure:"hostname"` // Empty = os.Hostname()
	Tags     map[string]string `mapstructure:"tags"`
}

// ─── Control Plane ───

// ControlConfig contains local control plane settings.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
	// SocketMode is the UDS control socket's permission bits as an octal
	// string (e.g. "0600"). Empty defaults to owner-only (0600); widen it
	// (e.g. "0660") only when a trusted group needs job control without
	// root, since every command on this socket runs with the daemon's
	// privileges.
	SocketMode string `mapstructure:"socket_mode"`
}

// ─── Kafka Global Default (ADR-024) ───

// GlobalKafkaConfig provides shared Kafka connection defaults.
// command_channel.kafka and reporters.kafka inherit from here when their fields are zero.
type GlobalKafkaConfig struct {
	Brokers []string   `mapstructure:"brokers"`
	SASL    SASLConfig `mapstructure:"sasl"`
	TLS     TLSConfig  `mapstructure:"tls"`
}

// SASLConfig contains SASL authentication settings.
type SASLConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Mechanism string `mapstructure:"mechanism"` // PLAIN | SCRAM-SHA-256 | SCRAM-SHA-512
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
}

// TLSConfig contains TLS settings.
type TLSConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	CACert             string `mapstructure:"ca_cert"`
	ClientCert         string `mapstructure:"client_cert"`
	ClientKey          string `mapstructure:"client_key"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
}

// ─── Command Channel ───

// CommandChannelConfig configures the remote command channel.
type CommandChannelConfig struct {
	Enabled    bool               `mapstructure:"enabled"`
	Type       string             `mapstructure:"type"` // "kafka"
	Kafka      CommandKafkaConfig `mapstructure:"kafka"`
	CommandTTL string             `mapstructure:"command_ttl"` // Default "5m"
}

// CommandKafkaConfig contains Kafka-specific command channel settings.
// Brokers/SASL/TLS inherit from GlobalKafkaConfig when empty/zero.
type CommandKafkaConfig struct {
	Brokers         []string   `mapstructure:"brokers"`
	Topic           string     `mapstructure:"topic"`
	ResponseTopic   string     `mapstructure:"response_topic"` // ADR-029: write responses here; empty = disabled
	GroupID         string     `mapstructure:"group_id"`
	AutoOffsetReset string     `mapstructure:"auto_offset_reset"`
	SASL            SASLConfig `mapstructure:"sasl"`
	TLS             TLSConfig  `mapstructure:"tls"`
}

// ─── Shared Reporter Connection ───

// ReportersConfig holds shared reporter connection configurations.
type ReportersConfig struct {
	Kafka KafkaReporterConnectionConfig `mapstructure:"kafka"`
}

// KafkaReporterConnectionConfig is the shared Kafka reporter connection config.
// Brokers/SASL/TLS inherit from GlobalKafkaConfig when empty/zero.
type KafkaReporterConnectionConfig struct {
	Brokers         []string   `mapstructure:"brokers"`
	Compression     string     `mapstructure:"compression"`
	MaxMessageBytes int        `mapstructure:"max_message_bytes"`
	SASL            SASLConfig `mapstructure:"sasl"`
	TLS             TLSConfig  `mapstructure:"tls"`
}

// ─── Resources & Backpressure ───

// ResourcesConfig contains global resource limits.
type ResourcesConfig struct {
	MaxWorkers int `mapstructure:"max_workers"` // 0 = auto (GOMAXPROCS)
}

// BackpressureConfig contains backpressure control settings.
type BackpressureConfig struct {
	PipelineChannel PipelineChannelConfig      `mapstructure:"pipeline_channel"`
	SendBuffer      SendBufferConfig           `mapstructure:"send_buffer"`
	Reporter        ReporterBackpressureConfig `mapstructure:"reporter"`
}

// PipelineChannelConfig configures the pipeline input channel.
type PipelineChannelConfig struct {
	Capacity   int    `mapstructure:"capacity"`
	DropPolicy string `mapstructure:"drop_policy"` // "tail" | "head"
}

// SendBufferConfig configures the send buffer between pipelines and reporters.
type SendBufferConfig struct {
	Capacity      int     `mapstructure:"capacity"`
	DropPolicy    string  `mapstructure:"drop_policy"`
	HighWatermark float64 `mapstructure:"high_watermark"`
	LowWatermark  float64 `mapstructure:"low_watermark"`
}

// ReporterBackpressureConfig configures reporter-level backpressure.
type ReporterBackpressureConfig struct {
	SendTimeout string `mapstructure:"send_timeout"`
	MaxRetries  int    `mapstructure:"max_retries"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	Listen          string `mapstructure:"listen"`
	Path            string `mapstructure:"path"`
	CollectInterval string `mapstructure:"collect_interval"` // e.g. "5s", hot-reloadable
}

// ─── Log (ADR-025) ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File  FileOutputConfig  `mapstructure:"file"`
	Loki  LokiOutputConfig  `mapstructure:"loki"`
	Kafka KafkaOutputConfig `mapstructure:"kafka"`
}

// KafkaOutputConfig ships log lines to a Kafka topic for centralized
// collection, independent of the pipeline's own Kafka fan-out (ADR-024
// inheritance does not apply here — log shipping is a distinct concern).
type KafkaOutputConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation (ADR-025: numeric fields).
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`  // MB
	MaxAgeDays int  `mapstructure:"max_age_days"` // Days
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// ─── Task Persistence (ADR-030, ADR-031) ───

// TaskPersistenceConfig controls checkpoint/session-history persistence and
// GC. Not yet consumed by the daemon: checkpoint writing itself lives on the
// Storage collaborator (SaveCheckpoint/LoadCheckpoint), and daemon startup
// does not yet auto-resume a source's last session from its checkpoint.
type TaskPersistenceConfig struct {
	Enabled        bool   `mapstructure:"enabled"`          // false = disable (dev/test)
	AutoRestart    bool   `mapstructure:"auto_restart"`     // true = auto-restart running tasks on startup
	GCInterval     string `mapstructure:"gc_interval"`      // default "1h"
	MaxTaskHistory int    `mapstructure:"max_task_history"` // 0 = disable in-process GC
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `lexfetch: ...`.
type configRoot struct {
	Lexfetch GlobalConfig `mapstructure:"lexfetch"`
}

// Load loads configuration from file.
// The YAML file uses `lexfetch:` as root key; env vars use LEXFETCH_ prefix (e.g., LEXFETCH_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()

	// Set config file path
	v.SetConfigFile(path)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides.
	// No explicit env prefix — the `lexfetch.` key prefix naturally maps to `LEXFETCH_`
	// in env vars via the key replacer (e.g., key "lexfetch.log.level" → env "LEXFETCH_LOG_LEVEL").
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set defaults with "lexfetch." prefix to match the YAML structure
	setDefaults(v)

	// Unmarshal into wrapper → extract inner GlobalConfig
	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Lexfetch

	// Validate and apply defaults
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration.
// All keys use "lexfetch." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Control defaults
	v.SetDefault("lexfetch.control.pid_file", "/var/run/lexfetch.pid")
	v.SetDefault("lexfetch.control.socket", "/var/run/lexfetch.sock")

	// Log defaults
	v.SetDefault("lexfetch.log.level", "info")
	v.SetDefault("lexfetch.log.format", "json")
	v.SetDefault("lexfetch.log.outputs.file.enabled", false)
	v.SetDefault("lexfetch.log.outputs.file.path", "/var/log/lexfetch/lexfetch.log")
	v.SetDefault("lexfetch.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("lexfetch.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("lexfetch.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("lexfetch.log.outputs.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("lexfetch.metrics.enabled", true)
	v.SetDefault("lexfetch.metrics.listen", ":9091")
	v.SetDefault("lexfetch.metrics.path", "/metrics")
	v.SetDefault("lexfetch.metrics.collect_interval", "5s")

	// Command channel defaults
	v.SetDefault("lexfetch.command_channel.enabled", false)
	v.SetDefault("lexfetch.command_channel.type", "kafka")
	v.SetDefault("lexfetch.command_channel.kafka.auto_offset_reset", "latest")
	v.SetDefault("lexfetch.command_channel.command_ttl", "5m")

	// Backpressure defaults
	v.SetDefault("lexfetch.backpressure.pipeline_channel.capacity", 65536)
	v.SetDefault("lexfetch.backpressure.pipeline_channel.drop_policy", "tail")
	v.SetDefault("lexfetch.backpressure.send_buffer.capacity", 16384)
	v.SetDefault("lexfetch.backpressure.send_buffer.drop_policy", "head")
	v.SetDefault("lexfetch.backpressure.send_buffer.high_watermark", 0.8)
	v.SetDefault("lexfetch.backpressure.send_buffer.low_watermark", 0.3)
	v.SetDefault("lexfetch.backpressure.reporter.send_timeout", "3s")
	v.SetDefault("lexfetch.backpressure.reporter.max_retries", 1)

	// Task persistence defaults (ADR-030, ADR-031)
	v.SetDefault("lexfetch.data_dir", "/var/lib/lexfetch")
	v.SetDefault("lexfetch.task_persistence.enabled", true)
	v.SetDefault("lexfetch.task_persistence.auto_restart", true)
	v.SetDefault("lexfetch.task_persistence.gc_interval", "1h")
	v.SetDefault("lexfetch.task_persistence.max_task_history", 100)

	// Reporter defaults
	v.SetDefault("lexfetch.reporters.kafka.compression", "snappy")
	v.SetDefault("lexfetch.reporters.kafka.max_message_bytes", 1048576)
}

// ValidateAndApplyDefaults validates configuration and applies runtime defaults.
// Implements Kafka inheritance (ADR-024) and Node IP resolution (ADR-023).
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}

	// ── Node hostname auto-detect ──
	if cfg.Node.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("failed to get hostname: %w", err)
		}
		cfg.Node.Hostname = hostname
	}

	// ── Node IP resolution (ADR-023) ──
	resolvedIP, err := resolveNodeIP(&cfg.Node)
	if err != nil {
		return err
	}
	cfg.Node.IP = resolvedIP

	// ── Kafka inheritance (ADR-024) ──
	applyKafkaInheritance(cfg)

	// ── Command channel validation ──
	if cfg.CommandChannel.Enabled {
		if cfg.CommandChannel.Type != "kafka" {
			return fmt.Errorf("unsupported command_channel.type: %s (only 'kafka' supported)", cfg.CommandChannel.Type)
		}
		if len(cfg.CommandChannel.Kafka.Brokers) == 0 {
			return fmt.Errorf("command_channel.kafka.brokers is required when command_channel.enabled=true")
		}
		if cfg.CommandChannel.Kafka.Topic == "" {
			return fmt.Errorf("command_channel.kafka.topic is required when command_channel.enabled=true")
		}
		if cfg.CommandChannel.Kafka.GroupID == "" {
			cfg.CommandChannel.Kafka.GroupID = "lexfetch-" + cfg.Node.Hostname
		}
	}

	return nil
}

// resolveNodeIP resolves the node IP address (ADR-023).
// Priority: env/config explicit value → auto-detect → error.
func resolveNodeIP(node *NodeConfig) (string, error) {
	// 1. Explicit value from config/env (Viper already merged)
	if node.IP != "" {
		return node.IP, nil
	}

	// 2. Auto-detect: first non-loopback, non-link-local IPv4
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", fmt.Errorf("cannot resolve node IP: failed to list interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil {
				continue
			}
			// Skip link-local 169.254.x.x
			if ip4[0] == 169 && ip4[1] == 254 {
				continue
			}
			return ip4.String(), nil
		}
	}

	return "", fmt.Errorf("cannot resolve node IP: set LEXFETCH_NODE_IP or lexfetch.node.ip")
}

// applyKafkaInheritance applies ADR-024 Kafka global config inheritance.
// Global lexfetch.kafka fields are inherited by command_channel.kafka and reporters.kafka
// when their local fields are empty/zero.
func applyKafkaInheritance(cfg *GlobalConfig) {
	global := &cfg.Kafka

	// ── command_channel.kafka ──
	cc := &cfg.CommandChannel.Kafka
	if len(cc.Brokers) == 0 {
		cc.Brokers = global.Brokers
	}
	if !cc.SASL.Enabled && global.SASL.Enabled {
		cc.SASL = global.SASL
	}
	if !cc.TLS.Enabled && global.TLS.Enabled {
		cc.TLS = global.TLS
	}

	// ── reporters.kafka ──
	rk := &cfg.Reporters.Kafka
	if len(rk.Brokers) == 0 {
		rk.Brokers = global.Brokers
	}
	if !rk.SASL.Enabled && global.SASL.Enabled {
		rk.SASL = global.SASL
	}
	if !rk.TLS.Enabled && global.TLS.Enabled {
		rk.TLS = global.TLS
	}
}
