// Package cmd implements CLI commands.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/archivant/lexfetch/internal/core"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a job configuration file",
	Long: `Validate a job configuration file (JSON) without starting a job.

This is useful for pre-checking configuration before sending it to the
daemon with "job start".

Example:
  lexfetchctl validate -f job.json`,
	Run: func(cmd *cobra.Command, args []string) {
		runValidateCommand()
	},
}

var validateConfigFile string

func init() {
	validateCmd.Flags().StringVarP(&validateConfigFile, "file", "f", "",
		"job configuration file to validate (required)")
	validateCmd.MarkFlagRequired("file")
}

func runValidateCommand() {
	data, err := os.ReadFile(validateConfigFile)
	if err != nil {
		exitWithError(fmt.Sprintf("failed to read file %s", validateConfigFile), err)
	}

	var jobConfig core.JobConfig
	if err := json.Unmarshal(data, &jobConfig); err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}
	// source_id is supplied on the command line at start time, not required here.
	if jobConfig.SourceID == "" {
		jobConfig.SourceID = "validate-placeholder"
	}

	if err := jobConfig.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "INVALID: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("VALID: mode=%s concurrency=%d max_fetch_attempts=%d checkpoint_interval=%d\n",
		jobConfig.Mode,
		jobConfig.Concurrency,
		jobConfig.MaxFetchAttempts,
		jobConfig.CheckpointInterval,
	)
}
