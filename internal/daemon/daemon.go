// Package daemon implements the daemon lifecycle manager.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/archivant/lexfetch/internal/command"
	"github.com/archivant/lexfetch/internal/config"
	"github.com/archivant/lexfetch/internal/coordinator"
	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/eventbus"
	logpkg "github.com/archivant/lexfetch/internal/log"
	"github.com/archivant/lexfetch/internal/metrics"
	"github.com/archivant/lexfetch/pkg/httpclient"
	"github.com/archivant/lexfetch/pkg/plugin"
	storagekafka "github.com/archivant/lexfetch/pkg/storage/kafka"
)

// Daemon manages the lexfetch daemon process lifecycle: one Coordinator per
// configured source, a shared progress event bus, and the control surface
// (UDS + optional Kafka) that drives them.
type Daemon struct {
	// Configuration
	config     *config.GlobalConfig
	configPath string
	socketPath string
	pidFile    string

	// Core components
	registry      *coordinator.Registry
	bus           eventbus.Bus
	cmdHandler    *command.CommandHandler
	udsServer     *command.UDSServer
	kafkaConsumer *command.KafkaCommandConsumer // nil if command channel disabled
	metricsServer *metrics.Server               // nil if metrics disabled

	// Lifecycle management
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal // promoted from Run() local for cleanup in Stop()
}

// New creates a new Daemon instance.
func New(configPath, socketPath, pidFile string) (*Daemon, error) {
	globalConfig, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	d := &Daemon{
		config:       globalConfig,
		configPath:   configPath,
		socketPath:   socketPath,
		pidFile:      pidFile,
		shutdownChan: make(chan struct{}),
	}

	d.ctx, d.cancel = context.WithCancel(context.Background())

	return d, nil
}

// Start initializes and starts all daemon components.
func (d *Daemon) Start() error {
	slog.Info("starting lexfetch daemon",
		"version", "0.1.0",
		"hostname", d.config.Node.Hostname,
		"config", d.configPath,
		"socket", d.socketPath,
	)

	// 1. Initialize logging system
	if err := d.initLogging(); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	// 2. Write PID file
	if err := d.writePIDFile(); err != nil {
		return fmt.Errorf("failed to write PID file: %w", err)
	}

	// 3. Start metrics server
	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	// 4. Build the progress event bus and one Coordinator per configured source.
	d.bus = eventbus.NewInMemoryBus(8, 256)
	d.registry = coordinator.NewRegistry()
	for sourceID, sc := range d.config.Sources {
		d.registry.Add(sourceID, coordinator.New(sourceID, d.resolveCollaborators(sourceID, sc), d.bus))
	}

	// 5. Create command handler
	d.cmdHandler = command.NewCommandHandler(d.registry, d)

	// 6. Wire shutdown handler so daemon_shutdown command can trigger graceful stop
	d.cmdHandler.SetShutdownFunc(func() {
		slog.Info("shutdown triggered via daemon_shutdown command")
		close(d.shutdownChan)
	})

	// 7. Start UDS server for CLI control
	d.udsServer = command.NewUDSServerWithMode(d.socketPath, socketModeFromConfig(d.config.Control.SocketMode), d.cmdHandler)
	go func() {
		if err := d.udsServer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("uds server failed", "error", err)
		}
	}()

	// 8. Start Kafka command consumer (if enabled)
	if d.config.CommandChannel.Enabled && d.config.CommandChannel.Type == "kafka" {
		if err := d.startKafkaConsumer(); err != nil {
			slog.Error("failed to start kafka consumer", "error", err)
			// Non-fatal: daemon can still run with UDS-only control
		}
	}

	slog.Info("daemon started successfully", "sources", d.registry.List())
	return nil
}

// resolveCollaborators builds a coordinator.ResolveFunc for one source,
// looking up its Parser/SourceIndex/Storage by name in the plugin registry
// and giving the source its own HTTP client.
func (d *Daemon) resolveCollaborators(sourceID string, sc config.SourceConfig) coordinator.ResolveFunc {
	hc := httpclient.New(httpclient.Config{})

	return func(cfg core.JobConfig) (coordinator.Collaborators, error) {
		parserFactory, err := plugin.GetParserFactory(sc.Parser)
		if err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: %w", sourceID, err)
		}
		indexFactory, err := plugin.GetSourceIndexFactory(sc.Parser)
		if err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: %w", sourceID, err)
		}
		storageFactory, err := plugin.GetStorageFactory(storageBackendName(sc.Storage))
		if err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: %w", sourceID, err)
		}

		parser := parserFactory()
		index := indexFactory()
		store := storageFactory()

		collabCfg := map[string]any{
			"base_url":         sc.BaseURL,
			"output_directory": cfg.OutputDirectory,
			"http_client":      plugin.HTTPClient(hc),
		}
		if err := parser.Init(collabCfg); err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: init parser: %w", sourceID, err)
		}
		if err := index.Init(collabCfg); err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: init index: %w", sourceID, err)
		}
		if err := store.Init(collabCfg); err != nil {
			return coordinator.Collaborators{}, fmt.Errorf("source %s: init storage: %w", sourceID, err)
		}

		storage := store
		if sc.Storage == "kafka" {
			kc := d.config.Reporters.Kafka
			brokers := kc.Brokers
			if len(brokers) == 0 {
				brokers = d.config.Kafka.Brokers
			}
			fanout, err := storagekafka.New(store, storagekafka.Config{
				Brokers:         brokers,
				Topic:           "lexfetch.documents." + sourceID,
				Compression:     kc.Compression,
				MaxMessageBytes: kc.MaxMessageBytes,
			})
			if err != nil {
				return coordinator.Collaborators{}, fmt.Errorf("source %s: kafka fan-out: %w", sourceID, err)
			}
			storage = fanout
		}

		objFactory, err := plugin.GetObjectStoreFactory(storageBackendName(sc.Storage))
		var objStore plugin.ObjectStore
		if err == nil {
			objStore = objFactory()
			_ = objStore.Init(collabCfg)
		}

		return coordinator.Collaborators{
			HTTPClient:  hc,
			Parser:      parser,
			Index:       index,
			Storage:     storage,
			ObjectStore: objStore,
			Headers:     sc.Headers,
		}, nil
	}
}

// storageBackendName maps a source's configured storage choice to the
// registered collaborator name; "kafka" always wraps a filesystem backend,
// since the fan-out decorator has no read path of its own.
func storageBackendName(configured string) string {
	if configured == "" || configured == "kafka" {
		return "filesystem"
	}
	return configured
}

// socketModeFromConfig parses control.socket_mode (an octal string like
// "0600") into an os.FileMode, falling back to the UDS server's own default
// when unset or unparseable.
func socketModeFromConfig(mode string) os.FileMode {
	if mode == "" {
		return 0
	}
	parsed, err := strconv.ParseUint(mode, 8, 32)
	if err != nil {
		slog.Warn("invalid control.socket_mode, using default", "value", mode, "error", err)
		return 0
	}
	return os.FileMode(parsed)
}

// Stop performs graceful shutdown of all daemon components.
func (d *Daemon) Stop() {
	slog.Info("initiating graceful shutdown")

	// 1. Stop Kafka command consumer first (no new commands)
	if d.kafkaConsumer != nil {
		slog.Info("stopping kafka command consumer")
		if err := d.kafkaConsumer.Stop(); err != nil {
			slog.Error("error stopping kafka consumer", "error", err)
		}
		d.kafkaConsumer = nil // prevent double-stop on repeated calls
	}

	// 2. Stop every source's Coordinator
	if d.registry != nil {
		slog.Info("stopping all sources")
		for _, c := range d.registry.All() {
			c.Stop()
		}
	}

	// 3. Stop UDS server (no new CLI commands)
	slog.Info("stopping uds server")
	d.udsServer.Stop()

	// 4. Stop metrics server
	if d.metricsServer != nil {
		slog.Info("stopping metrics server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := d.metricsServer.Stop(shutdownCtx); err != nil {
			slog.Error("error stopping metrics server", "error", err)
		}
	}

	// 5. Close the progress event bus
	if d.bus != nil {
		if err := d.bus.Close(); err != nil {
			slog.Error("error closing event bus", "error", err)
		}
	}

	// 6. Cancel context to signal all goroutines
	d.cancel()

	// 7. Unregister signal handler to prevent goroutine leak
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}

	// 8. Remove PID file
	if err := d.removePIDFile(); err != nil {
		slog.Error("error removing PID file", "error", err)
	}

	slog.Info("daemon stopped gracefully")
}

// Run runs the daemon main loop, blocking until shutdown is triggered.
// Shutdown can be triggered by:
//  1. OS signals (SIGTERM, SIGINT)
//  2. daemon_shutdown command via UDS/Kafka
//  3. SIGHUP triggers config reload
func (d *Daemon) Run() error {
	// Setup signal handling
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	slog.Info("daemon running, waiting for signals or commands")

	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				slog.Info("received shutdown signal", "signal", sig)
				d.Stop()
				return nil

			case syscall.SIGHUP:
				slog.Info("received reload signal")
				if err := d.Reload(); err != nil {
					slog.Error("failed to reload config", "error", err)
				} else {
					slog.Info("configuration reloaded successfully")
				}
			}

		case <-d.shutdownChan:
			// Shutdown triggered by daemon_shutdown command
			slog.Info("shutdown triggered by command")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			// Context cancelled externally
			slog.Info("context cancelled", "error", d.ctx.Err())
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// Reload reloads the global configuration.
// Hot-reloadable: log level/format, metrics collect interval.
// Cold (requires restart): node.hostname, source set, listen addresses.
// Implements ConfigReloader interface for CommandHandler.
func (d *Daemon) Reload() error {
	slog.Info("reloading configuration", "path", d.configPath)

	newConfig, err := config.Load(d.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	// Track what was hot-reloaded for the log message
	hotReloaded := []string{}

	// 1. Re-initialize logging with new config (log level + format)
	oldLevel := d.config.Log.Level
	oldFormat := d.config.Log.Format
	oldConfig := d.config
	d.config = newConfig
	if err := d.initLogging(); err != nil {
		slog.Error("failed to reinitialize logging", "error", err)
		// Non-fatal: old logging continues
	} else if newConfig.Log.Level != oldLevel || newConfig.Log.Format != oldFormat {
		hotReloaded = append(hotReloaded, "log")
	}

	// 2. Warn about cold-reload items that changed
	requiresRestart := []string{}
	if newConfig.Node.Hostname != oldConfig.Node.Hostname {
		requiresRestart = append(requiresRestart, "node.hostname")
	}
	if newConfig.Metrics.Listen != oldConfig.Metrics.Listen {
		requiresRestart = append(requiresRestart, "metrics.listen")
	}
	if len(newConfig.Sources) != len(oldConfig.Sources) {
		requiresRestart = append(requiresRestart, "sources")
	}

	slog.Info("configuration reloaded",
		"hot_reloaded", hotReloaded,
		"requires_restart", requiresRestart,
	)

	return nil
}

// TriggerShutdown signals the main run loop's shutdownChan case directly,
// for callers outside the UDS/Kafka command path (the daemon_shutdown
// command instead closes shutdownChan via the callback set in Start).
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
		// Shutdown signal sent
	default:
		// No receiver is waiting on the unbuffered channel: the signal is dropped
	}
}

// initLogging initializes the logging system from config.
func (d *Daemon) initLogging() error {
	if err := logpkg.Init(d.config.Log); err != nil {
		return err
	}

	slog.Debug("logging initialized",
		"level", d.config.Log.Level,
		"format", d.config.Log.Format,
	)

	return nil
}

// startKafkaConsumer starts the Kafka command consumer in background.
func (d *Daemon) startKafkaConsumer() error {
	consumer, err := command.NewKafkaCommandConsumer(
		d.config.CommandChannel,
		d.config.Node.Hostname,
		d.cmdHandler,
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}

	d.kafkaConsumer = consumer

	// Start consumer in background goroutine
	go func() {
		if err := consumer.Start(d.ctx); err != nil && err != context.Canceled {
			slog.Error("kafka consumer stopped with error", "error", err)
		}
	}()

	return nil
}

// startMetrics starts the metrics HTTP server if enabled.
func (d *Daemon) startMetrics() error {
	if !d.config.Metrics.Enabled {
		slog.Info("metrics server disabled")
		return nil
	}

	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	if err := d.metricsServer.Start(d.ctx); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	slog.Info("metrics server started",
		"addr", d.config.Metrics.Listen,
		"path", d.config.Metrics.Path,
	)

	return nil
}

// writePIDFile writes the current process ID to the PID file.
func (d *Daemon) writePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	pid := os.Getpid()
	data := []byte(strconv.Itoa(pid) + "\n")

	if err := os.WriteFile(d.pidFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file written", "path", d.pidFile, "pid", pid)
	return nil
}

// removePIDFile removes the PID file.
func (d *Daemon) removePIDFile() error {
	if d.pidFile == "" {
		return nil
	}

	if err := os.Remove(d.pidFile); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove PID file %s: %w", d.pidFile, err)
	}

	slog.Debug("PID file removed", "path", d.pidFile)
	return nil
}
