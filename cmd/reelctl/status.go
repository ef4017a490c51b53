package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reel-scheduler/internal/store"
)

var (
	statusStatusFlag string
	statusLimitFlag  int
)

var statusCmd = &cobra.Command{
	Use:   "status [job-id]",
	Short: "Inspect job records",
	Long: `Status shows jobs in a given state, or the full record for one job.

Examples:
  reelctl status                      # pending jobs
  reelctl status --status failed
  reelctl status reel-3f2a9c1d8e7b6a54`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusStatusFlag, "status", "pending", "Status to list (pending, claimed, transforming, publishing, published, failed)")
	statusCmd.Flags().IntVar(&statusLimitFlag, "limit", 20, "Maximum records to list")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	_, jobs := buildStore()

	if len(args) == 1 {
		showJob(ctx, jobs, args[0])
		return
	}

	status := store.Status(strings.ToLower(statusStatusFlag))
	recs, err := jobs.ListByStatus(ctx, status, statusLimitFlag)
	if err != nil {
		log.Fatal().Err(err).Str("status", statusStatusFlag).Msg("ListByStatus failed")
	}
	if len(recs) == 0 {
		fmt.Printf("No %s jobs.\n", status)
		return
	}

	fmt.Printf("%-28s %-13s %-8s %-20s %s\n", "ID", "STATUS", "ATTEMPTS", "SCHEDULED", "LAST ERROR")
	for _, rec := range recs {
		lastError := rec.LastError
		if len(lastError) > 48 {
			lastError = lastError[:45] + "..."
		}
		fmt.Printf("%-28s %-13s %-8d %-20s %s\n",
			rec.Item.ID, rec.Status, rec.AttemptCount,
			rec.ScheduledAt.Format("2006-01-02 15:04:05"), lastError)
	}
}

func showJob(ctx context.Context, jobs *store.DynamoStore, id string) {
	rec, err := jobs.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Fatal().Str("jobId", id).Msg("Job not found")
		}
		log.Fatal().Err(err).Str("jobId", id).Msg("Get failed")
	}

	fmt.Printf("Job %s\n", rec.Item.ID)
	fmt.Printf("  status:    %s\n", rec.Status)
	fmt.Printf("  source:    %s\n", rec.Item.SourceAssetRef)
	fmt.Printf("  scheduled: %s\n", rec.ScheduledAt.Format(time.RFC3339))
	fmt.Printf("  updated:   %s\n", rec.UpdatedAt.Format(time.RFC3339))
	fmt.Printf("  attempts:  %d\n", rec.AttemptCount)
	if rec.PublishedAssetID != "" {
		fmt.Printf("  media id:  %s\n", rec.PublishedAssetID)
	}
	if rec.Permalink != "" {
		fmt.Printf("  permalink: %s\n", rec.Permalink)
	}
	if rec.LastError != "" {
		fmt.Printf("  last error [%s]: %s\n", rec.LastErrorKind, rec.LastError)
	}
	if len(rec.Attempts) > 0 {
		fmt.Println("  attempt history:")
		for _, a := range rec.Attempts {
			outcome := "ok"
			if a.Error != "" {
				outcome = fmt.Sprintf("[%s] %s", a.ErrorKind, a.Error)
			}
			fmt.Printf("    %2d. %s  %s\n", a.Number, a.StartedAt.Format(time.RFC3339), outcome)
		}
	}
}
