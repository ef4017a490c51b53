// Package main provides reelctl, the operator CLI for the reel scheduler.
//
// Subcommands:
//   - register          — register a content item for scheduled publishing
//   - tick              — run one scheduler tick (local, --remote, or --dry-run)
//   - serve             — local cron loop driving ticks (no Lambda needed)
//   - status            — inspect job records
//   - requeue           — reopen a failed job
//   - schedule install  — create the EventBridge rule targeting the Lambda
//   - token refresh     — refresh the long-lived Instagram token
//
// Configuration comes from the environment; a .env file in the working
// directory is loaded first for local runs.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/fpang/reel-scheduler/internal/lambdaboot"
	"github.com/fpang/reel-scheduler/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "reelctl",
	Short: "Operator CLI for the reel scheduler",
	Long: `reelctl manages the scheduled reel publishing pipeline: registering
content items, running scheduler ticks locally or against the deployed
Lambda, inspecting job state, and installing the EventBridge schedule.

Examples:
  reelctl register --source s3://my-content/clips/morning.mp4 --at 2026-09-01T09:00:00Z --quote "Stay intentional"
  reelctl tick
  reelctl tick --remote
  reelctl serve
  reelctl status --status failed
  reelctl requeue reel-3f2a9c1d8e7b6a54
  reelctl schedule install --function-arn arn:aws:lambda:...:function:scheduler-lambda`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
		lambdaboot.LoadDotEnv()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
