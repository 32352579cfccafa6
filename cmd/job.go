// Package cmd implements CLI commands.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/archivant/lexfetch/internal/command"
	"github.com/archivant/lexfetch/internal/core"
)

// jobCmd represents the job command group
var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage document acquisition jobs",
	Long: `Manage per-source document acquisition jobs on the lexfetch daemon.

Subcommands:
  start   - Start a job on a configured source
  pause   - Pause a running job
  resume  - Resume a paused job
  cancel  - Cancel a job
  list    - List configured sources
  status  - Get job status
  logs    - Tail recent job log lines`,
}

var jobStartCmd = &cobra.Command{
	Use:   "start <source-id>",
	Short: "Start a job on a configured source",
	Long: `Start a document acquisition job against a configured source.

Example job configuration (JSON):
  {
    "mode": "range",
    "date_start": "2026-01-01T00:00:00Z",
    "date_end": "2026-01-31T00:00:00Z",
    "download_payloads": true
  }`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runJobStart(args[0])
	},
}

var jobPauseCmd = &cobra.Command{
	Use:   "pause <source-id>",
	Short: "Pause a running job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runJobSimple("job_pause", args[0], "paused")
	},
}

var jobResumeCmd = &cobra.Command{
	Use:   "resume <source-id>",
	Short: "Resume a paused job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runJobSimple("job_resume", args[0], "resumed")
	},
}

var jobCancelCmd = &cobra.Command{
	Use:   "cancel <source-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runJobSimple("job_cancel", args[0], "cancelled")
	},
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources",
	Run: func(cmd *cobra.Command, args []string) {
		runJobList()
	},
}

var jobStatusCmd = &cobra.Command{
	Use:   "status [source-id]",
	Short: "Get job status",
	Long: `Get the status of one or all sources.

If source-id is provided, shows detailed status for that source.
If no source-id is provided, shows status of every configured source.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var sourceID string
		if len(args) > 0 {
			sourceID = args[0]
		}
		runJobStatus(sourceID)
	},
}

var jobLogsCmd = &cobra.Command{
	Use:   "logs <source-id>",
	Short: "Tail recent log lines for a source's job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runJobLogs(args[0])
	},
}

var (
	jobConfigFile string
	jobLogsLimit  int
)

func init() {
	jobCmd.AddCommand(jobStartCmd)
	jobCmd.AddCommand(jobPauseCmd)
	jobCmd.AddCommand(jobResumeCmd)
	jobCmd.AddCommand(jobCancelCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobStatusCmd)
	jobCmd.AddCommand(jobLogsCmd)

	jobStartCmd.Flags().StringVarP(&jobConfigFile, "file", "f", "",
		"job configuration file (JSON), omit for a today-mode default run")
	jobLogsCmd.Flags().IntVarP(&jobLogsLimit, "limit", "n", 100, "maximum number of log lines")
}

func runJobStart(sourceID string) {
	var jobConfig core.JobConfig
	if jobConfigFile != "" {
		data, err := os.ReadFile(jobConfigFile)
		if err != nil {
			exitWithError(fmt.Sprintf("failed to read config file %s", jobConfigFile), err)
		}
		if err := json.Unmarshal(data, &jobConfig); err != nil {
			exitWithError("failed to parse job config", err)
		}
	} else {
		jobConfig.Mode = core.ModeToday
	}
	jobConfig.SourceID = sourceID

	client := command.NewUDSClient(socketPath, 30*time.Second)
	ctx := context.Background()

	fmt.Printf("Starting job on source %s...\n", sourceID)
	resp, err := client.JobStart(ctx, command.JobStartParams{SourceID: sourceID, Config: jobConfig})
	if err != nil {
		exitWithError("failed to send job_start command", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("job_start failed: %s", resp.Error.Message), nil)
	}

	fmt.Printf("Job started on source %s.\n", sourceID)
}

func runJobSimple(method, sourceID, verb string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	var resp *command.Response
	var err error
	switch method {
	case "job_pause":
		resp, err = client.JobPause(ctx, sourceID)
	case "job_resume":
		resp, err = client.JobResume(ctx, sourceID)
	case "job_cancel":
		resp, err = client.JobCancel(ctx, sourceID)
	}
	if err != nil {
		exitWithError(fmt.Sprintf("failed to send %s command", method), err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("%s failed: %s", method, resp.Error.Message), nil)
	}

	fmt.Printf("Source %s %s.\n", sourceID, verb)
}

func runJobList() {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.JobList(ctx)
	if err != nil {
		exitWithError("failed to send job_list command", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("job_list failed: %s", resp.Error.Message), nil)
	}

	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		exitWithError("invalid response format", nil)
	}

	sources, ok := result["sources"].([]interface{})
	if !ok {
		exitWithError("invalid source list format", nil)
	}

	if len(sources) == 0 {
		fmt.Println("No configured sources.")
		return
	}

	fmt.Printf("Configured sources (%d):\n", len(sources))
	for _, s := range sources {
		fmt.Printf("  - %s\n", s)
	}
}

func runJobStatus(sourceID string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.JobStatus(ctx, sourceID)
	if err != nil {
		exitWithError("failed to send job_status command", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("job_status failed: %s", resp.Error.Message), nil)
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(resultJSON))
}

func runJobLogs(sourceID string) {
	client := command.NewUDSClient(socketPath, 10*time.Second)
	ctx := context.Background()

	resp, err := client.JobLogs(ctx, sourceID, jobLogsLimit)
	if err != nil {
		exitWithError("failed to send job_logs command", err)
	}
	if resp.Error != nil {
		exitWithError(fmt.Sprintf("job_logs failed: %s", resp.Error.Message), nil)
	}

	resultJSON, err := json.MarshalIndent(resp.Result, "", "  ")
	if err != nil {
		exitWithError("failed to format result", err)
	}
	fmt.Println(string(resultJSON))
}
