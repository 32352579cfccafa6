// Package command implements command channels.
package command

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// UDSClient is a JSON-RPC client over Unix Domain Socket.
type UDSClient struct {
	socketPath string
	timeout    time.Duration
}

// NewUDSClient creates a new UDS client.
func NewUDSClient(socketPath string, timeout time.Duration) *UDSClient {
	if timeout == 0 {
		timeout = 10 * time.Second // Default timeout
	}
	return &UDSClient{
		socketPath: socketPath,
		timeout:    timeout,
	}
}

// Call sends a command and waits for response.
func (c *UDSClient) Call(ctx context.Context, method string, params interface{}) (*Response, error) {
	// Create connection with timeout
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to socket %s: %w", c.socketPath, err)
	}
	defer conn.Close()

	// Set deadline
	deadline := time.Now().Add(c.timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	conn.SetDeadline(deadline)

	// Marshal params
	var paramsJSON json.RawMessage
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal params: %w", err)
		}
		paramsJSON = data
	}

	// Create JSON-RPC request
	reqID := fmt.Sprintf("req-%d", time.Now().UnixNano()) // Use string ID
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
		ID:      reqID,
	}

	// Send request
	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	// Read response
	scanner := bufio.NewScanner(conn)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
		return nil, fmt.Errorf("connection closed without response")
	}

	// Parse JSON-RPC response
	var jsonrpcResp JSONRPCResponse
	if err := json.Unmarshal(scanner.Bytes(), &jsonrpcResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Verify response ID matches (convert both to string for comparison)
	respIDStr := fmt.Sprintf("%v", jsonrpcResp.ID)
	if respIDStr != reqID {
		return nil, fmt.Errorf("response ID mismatch: expected %v, got %v", reqID, respIDStr)
	}

	// Convert to internal Response format
	resp := &Response{
		ID:     fmt.Sprintf("%v", jsonrpcResp.ID),
		Result: jsonrpcResp.Result,
		Error:  jsonrpcResp.Error,
	}

	return resp, nil
}

// JobStart is a convenience method for the job_start command.
func (c *UDSClient) JobStart(ctx context.Context, params JobStartParams) (*Response, error) {
	return c.Call(ctx, "job_start", params)
}

// JobPause is a convenience method for the job_pause command.
func (c *UDSClient) JobPause(ctx context.Context, sourceID string) (*Response, error) {
	return c.Call(ctx, "job_pause", sourceParams{SourceID: sourceID})
}

// JobResume is a convenience method for the job_resume command.
func (c *UDSClient) JobResume(ctx context.Context, sourceID string) (*Response, error) {
	return c.Call(ctx, "job_resume", sourceParams{SourceID: sourceID})
}

// JobCancel is a convenience method for the job_cancel command.
func (c *UDSClient) JobCancel(ctx context.Context, sourceID string) (*Response, error) {
	return c.Call(ctx, "job_cancel", sourceParams{SourceID: sourceID})
}

// JobStatus is a convenience method for the job_status command.
// An empty sourceID returns status for every configured source.
func (c *UDSClient) JobStatus(ctx context.Context, sourceID string) (*Response, error) {
	params := sourceParams{}
	if sourceID != "" {
		params.SourceID = sourceID
	}
	return c.Call(ctx, "job_status", params)
}

// JobLogs is a convenience method for the job_logs command.
func (c *UDSClient) JobLogs(ctx context.Context, sourceID string, limit int) (*Response, error) {
	return c.Call(ctx, "job_logs", JobLogsParams{SourceID: sourceID, Limit: limit})
}

// JobList is a convenience method for the job_list command.
func (c *UDSClient) JobList(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "job_list", nil)
}

// ConfigReload is a convenience method for the config_reload command.
func (c *UDSClient) ConfigReload(ctx context.Context) (*Response, error) {
	return c.Call(ctx, "config_reload", nil)
}

// Ping sends a simple ping command to check if daemon is alive.
// This is a convenience wrapper around daemon_status.
func (c *UDSClient) Ping(ctx context.Context) error {
	_, err := c.Call(ctx, "daemon_status", nil)
	return err
}
