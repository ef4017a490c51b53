package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reel-scheduler/internal/store"
)

var requeueAtFlag string

var requeueCmd = &cobra.Command{
	Use:   "requeue <job-id>",
	Short: "Reopen a failed job",
	Long: `Requeue moves a failed job back to pending so the next tick picks it
up. Only failed jobs can be requeued; published jobs stay published.`,
	Args: cobra.ExactArgs(1),
	Run:  runRequeue,
}

func init() {
	requeueCmd.Flags().StringVar(&requeueAtFlag, "at", "", "New publication time, RFC 3339 (default now)")
	rootCmd.AddCommand(requeueCmd)
}

func runRequeue(cmd *cobra.Command, args []string) {
	id := args[0]
	at := time.Now()
	if requeueAtFlag != "" {
		parsed, err := time.Parse(time.RFC3339, requeueAtFlag)
		if err != nil {
			log.Fatal().Err(err).Str("at", requeueAtFlag).Msg("Invalid time, expected RFC 3339")
		}
		at = parsed
	}

	_, jobs := buildStore()
	if err := jobs.Requeue(context.Background(), id, at); err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			log.Fatal().Str("jobId", id).Msg("Job not found")
		case errors.Is(err, store.ErrTerminal):
			log.Fatal().Str("jobId", id).Msg("Job is already published")
		default:
			log.Fatal().Err(err).Str("jobId", id).Msg("Requeue failed")
		}
	}

	fmt.Printf("Requeued %s for %s\n", id, at.Format(time.RFC3339))
}
