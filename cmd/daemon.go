// Package cmd implements CLI commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/archivant/lexfetch/internal/daemon"
)

// daemonCmd represents the daemon command
var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the lexfetch daemon in foreground",
	Long: `Run the lexfetch daemon process in foreground.

The daemon will:
  1. Load global configuration from the config file
  2. Initialize logging and metrics
  3. Build one Coordinator per configured source
  4. Start the UDS server for CLI control
  5. Start the Kafka command consumer (if configured)
  6. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)`,
	Run: func(cmd *cobra.Command, args []string) {
		runDaemon()
	},
}

var (
	daemonForeground bool
	pidFile          string
)

func init() {
	daemonCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", true,
		"run in foreground (default: true)")
	daemonCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "/var/run/lexfetch.pid",
		"PID file path")
}

func runDaemon() {
	d, err := daemon.New(configFile, socketPath, pidFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to create daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	if err := d.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: daemon exited with error: %v\n", err)
		os.Exit(1)
	}
}
