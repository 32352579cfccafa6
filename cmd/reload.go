// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/archivant/lexfetch/internal/command"
)

// reloadCmd represents the reload command
var reloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Reload the lexfetch daemon configuration",
	Long: `Reload the global configuration of the lexfetch daemon.

This command sends a config_reload command to the running daemon via Unix
Domain Socket. The daemon reloads hot-reloadable settings (log level/format,
metrics interval) without restarting; changes to node identity, listen
addresses, or the configured source set require a full restart.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReload(cmd.Context(), GetClient(), cmd.OutOrStdout())
	},
}

// ClientInterface abstracts daemon control operations so CLI commands can be
// tested without a running UDS server.
type ClientInterface interface {
	Reload(ctx context.Context) error
	Close() error
}

var globalClient ClientInterface

// GetClient returns the shared daemon client, creating it from the global
// --socket flag on first use.
func GetClient() ClientInterface {
	if globalClient == nil {
		globalClient = newDaemonClient()
	}
	return globalClient
}

// SetClient overrides the shared daemon client; used by tests to inject a mock.
func SetClient(c ClientInterface) {
	globalClient = c
}

type daemonClient struct {
	uds *command.UDSClient
}

func newDaemonClient() *daemonClient {
	return &daemonClient{uds: command.NewUDSClient(socketPath, 10*time.Second)}
}

func (d *daemonClient) Reload(ctx context.Context) error {
	resp, err := d.uds.ConfigReload(ctx)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return fmt.Errorf("%s", resp.Error.Message)
	}
	return nil
}

func (d *daemonClient) Close() error { return nil }

func runReload(ctx context.Context, client ClientInterface, out io.Writer) error {
	if err := client.Reload(ctx); err != nil {
		return fmt.Errorf("failed to reload: %w", err)
	}
	fmt.Fprintln(out, "✓ Configuration reloaded successfully")
	return nil
}
