// Package command implements control plane command handling.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/archivant/lexfetch/internal/core"
	"github.com/archivant/lexfetch/internal/coordinator"
)

// CommandHandler handles control plane commands against a set of per-source
// Coordinators.
type CommandHandler struct {
	registry       *coordinator.Registry
	configReloader ConfigReloader
	shutdownFunc   func() // called by daemon_shutdown to trigger graceful stop
	startTime      int64  // unix timestamp of daemon start, for uptime calc
}

// ConfigReloader is the interface for reloading global configuration.
type ConfigReloader interface {
	Reload() error
}

// NewCommandHandler creates a new command handler.
func NewCommandHandler(registry *coordinator.Registry, reloader ConfigReloader) *CommandHandler {
	return &CommandHandler{
		registry:       registry,
		configReloader: reloader,
		startTime:      time.Now().Unix(),
	}
}

// SetShutdownFunc sets the callback invoked by the daemon_shutdown command.
func (h *CommandHandler) SetShutdownFunc(fn func()) {
	h.shutdownFunc = fn
}

// Command represents a control plane command.
type Command struct {
	Method string          `json:"method"` // e.g., "job_start", "job_cancel"
	Params json.RawMessage `json:"params"` // command-specific parameters
	ID     string          `json:"id"`     // request ID for tracking
}

// Response represents a command response.
type Response struct {
	ID     string      `json:"id"`               // matches request ID
	Result interface{} `json:"result,omitempty"` // success result
	Error  *ErrorInfo  `json:"error,omitempty"`  // error info if failed
}

// ErrorInfo represents an error in the response.
type ErrorInfo struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeParseError     = -32700 // Invalid JSON
	ErrCodeInvalidRequest = -32600 // Invalid request object
	ErrCodeMethodNotFound = -32601 // Method not found
	ErrCodeInvalidParams  = -32602 // Invalid method parameters
	ErrCodeInternalError  = -32603 // Internal error
)

// Handle processes a command and returns a response.
func (h *CommandHandler) Handle(ctx context.Context, cmd Command) Response {
	slog.Info("handling command", "method", cmd.Method, "id", cmd.ID)

	switch cmd.Method {
	case "job_start":
		return h.handleJobStart(ctx, cmd)
	case "job_pause":
		return h.handleJobPause(ctx, cmd)
	case "job_resume":
		return h.handleJobResume(ctx, cmd)
	case "job_cancel":
		return h.handleJobCancel(ctx, cmd)
	case "job_status":
		return h.handleJobStatus(ctx, cmd)
	case "job_logs":
		return h.handleJobLogs(ctx, cmd)
	case "job_list":
		return h.handleJobList(ctx, cmd)
	case "config_reload":
		return h.handleConfigReload(ctx, cmd)
	case "daemon_shutdown":
		return h.handleDaemonShutdown(ctx, cmd)
	case "daemon_status":
		return h.handleDaemonStatus(ctx, cmd)
	case "daemon_stats":
		return h.handleDaemonStats(ctx, cmd)
	default:
		return Response{
			ID: cmd.ID,
			Error: &ErrorInfo{
				Code:    ErrCodeMethodNotFound,
				Message: fmt.Sprintf("method %q not found", cmd.Method),
			},
		}
	}
}

func errInvalidParams(cmd Command, err error) Response {
	return Response{
		ID: cmd.ID,
		Error: &ErrorInfo{
			Code:    ErrCodeInvalidParams,
			Message: fmt.Sprintf("invalid params: %v", err),
		},
	}
}

func errInternal(cmd Command, format string, args ...interface{}) Response {
	return Response{
		ID: cmd.ID,
		Error: &ErrorInfo{
			Code:    ErrCodeInternalError,
			Message: fmt.Sprintf(format, args...),
		},
	}
}

// sourceParams is the shape shared by every job_* command: every operation
// is scoped to a single configured source.
type sourceParams struct {
	SourceID string `json:"source_id"`
}

func (h *CommandHandler) lookup(cmd Command, sourceID string) (*coordinator.Coordinator, *Response) {
	c, err := h.registry.Get(sourceID)
	if err != nil {
		resp := errInternal(cmd, "lookup source %q: %v", sourceID, err)
		return nil, &resp
	}
	return c, nil
}

// JobStartParams represents parameters for the job_start command.
type JobStartParams struct {
	SourceID string         `json:"source_id"`
	Config   core.JobConfig `json:"config"`
}

func (h *CommandHandler) handleJobStart(ctx context.Context, cmd Command) Response {
	var params JobStartParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errInvalidParams(cmd, err)
	}
	c, errResp := h.lookup(cmd, params.SourceID)
	if errResp != nil {
		return *errResp
	}

	params.Config.SourceID = params.SourceID
	jobID, err := c.Start(ctx, params.Config)
	if err != nil {
		return errInternal(cmd, "start job on %q failed: %v", params.SourceID, err)
	}

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"source_id": params.SourceID,
			"job_id":    jobID,
			"status":    "started",
		},
	}
}

func (h *CommandHandler) handleJobPause(ctx context.Context, cmd Command) Response {
	var params sourceParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errInvalidParams(cmd, err)
	}
	c, errResp := h.lookup(cmd, params.SourceID)
	if errResp != nil {
		return *errResp
	}
	if err := c.Pause(ctx); err != nil {
		return errInternal(cmd, "pause %q failed: %v", params.SourceID, err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"source_id": params.SourceID, "status": "paused"}}
}

func (h *CommandHandler) handleJobResume(ctx context.Context, cmd Command) Response {
	var params sourceParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errInvalidParams(cmd, err)
	}
	c, errResp := h.lookup(cmd, params.SourceID)
	if errResp != nil {
		return *errResp
	}
	if err := c.Resume(ctx); err != nil {
		return errInternal(cmd, "resume %q failed: %v", params.SourceID, err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"source_id": params.SourceID, "status": "resumed"}}
}

func (h *CommandHandler) handleJobCancel(ctx context.Context, cmd Command) Response {
	var params sourceParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errInvalidParams(cmd, err)
	}
	c, errResp := h.lookup(cmd, params.SourceID)
	if errResp != nil {
		return *errResp
	}
	if err := c.Cancel(ctx); err != nil {
		return errInternal(cmd, "cancel %q failed: %v", params.SourceID, err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"source_id": params.SourceID, "status": "cancelling"}}
}

func (h *CommandHandler) handleJobStatus(ctx context.Context, cmd Command) Response {
	var params sourceParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return errInvalidParams(cmd, err)
		}
	}

	if params.SourceID != "" {
		c, errResp := h.lookup(cmd, params.SourceID)
		if errResp != nil {
			return *errResp
		}
		status, err := c.Status(ctx)
		if err != nil {
			return errInternal(cmd, "status %q failed: %v", params.SourceID, err)
		}
		return Response{ID: cmd.ID, Result: status}
	}

	all := make(map[string]core.JobStatus)
	for _, c := range h.registry.All() {
		status, err := c.Status(ctx)
		if err != nil {
			continue
		}
		all[c.SourceID()] = status
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"sources": all}}
}

// JobLogsParams represents parameters for the job_logs command.
type JobLogsParams struct {
	SourceID string `json:"source_id"`
	Limit    int    `json:"limit,omitempty"`
}

func (h *CommandHandler) handleJobLogs(ctx context.Context, cmd Command) Response {
	var params JobLogsParams
	if err := json.Unmarshal(cmd.Params, &params); err != nil {
		return errInvalidParams(cmd, err)
	}
	c, errResp := h.lookup(cmd, params.SourceID)
	if errResp != nil {
		return *errResp
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 100
	}
	logs, err := c.Logs(ctx, limit)
	if err != nil {
		return errInternal(cmd, "logs %q failed: %v", params.SourceID, err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"source_id": params.SourceID, "logs": logs}}
}

func (h *CommandHandler) handleJobList(_ context.Context, cmd Command) Response {
	ids := h.registry.List()
	return Response{ID: cmd.ID, Result: map[string]interface{}{"sources": ids, "count": len(ids)}}
}

func (h *CommandHandler) handleConfigReload(_ context.Context, cmd Command) Response {
	if h.configReloader == nil {
		return errInternal(cmd, "config reloader not available")
	}
	if err := h.configReloader.Reload(); err != nil {
		return errInternal(cmd, "reload config failed: %v", err)
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"status": "reloaded"}}
}

func (h *CommandHandler) handleDaemonShutdown(_ context.Context, cmd Command) Response {
	if h.shutdownFunc == nil {
		return errInternal(cmd, "shutdown handler not registered")
	}
	slog.Info("daemon_shutdown command received, initiating graceful shutdown")
	go h.shutdownFunc() // non-blocking: let the response be sent first
	return Response{ID: cmd.ID, Result: map[string]interface{}{"status": "shutting_down"}}
}

func (h *CommandHandler) handleDaemonStatus(_ context.Context, cmd Command) Response {
	sourceIDs := h.registry.List()
	uptimeSeconds := time.Now().Unix() - h.startTime

	return Response{
		ID: cmd.ID,
		Result: map[string]interface{}{
			"version":      "0.1.0",
			"uptime_sec":   uptimeSeconds,
			"sources":      sourceIDs,
			"source_count": len(sourceIDs),
		},
	}
}

func (h *CommandHandler) handleDaemonStats(ctx context.Context, cmd Command) Response {
	stats := make(map[string]interface{})
	for _, c := range h.registry.All() {
		status, err := c.Status(ctx)
		if err != nil {
			continue
		}
		stats[c.SourceID()] = map[string]interface{}{
			"state":      status.State,
			"discovered": status.Progress.Discovered,
			"downloaded": status.Progress.Downloaded,
			"pending":    status.Progress.Pending,
			"errors":     status.Progress.Errors,
		}
	}
	return Response{ID: cmd.ID, Result: map[string]interface{}{"sources": stats}}
}
