package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCronFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduler locally on a cron loop",
	Long: `Serve drives ticks from a local cron schedule instead of EventBridge.
The schedule is a standard 5-field cron expression, from --cron or the
CRON_STR environment variable (default "* * * * *", every minute).
Stops on SIGINT/SIGTERM.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveCronFlag, "cron", "", "Cron expression for ticks (default $CRON_STR or \"* * * * *\")")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	expr := serveCronFlag
	if expr == "" {
		expr = os.Getenv("CRON_STR")
	}
	if expr == "" {
		expr = "* * * * *"
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	schedule, err := parser.Parse(expr)
	if err != nil {
		log.Fatal().Err(err).Str("expression", expr).Msg("Invalid cron expression")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := buildStack(ctx)
	fmt.Printf("Serving ticks on %q — next at %s (Ctrl-C to stop)\n",
		expr, schedule.Next(time.Now()).Format(time.RFC3339))

	runner := cron.New(cron.WithParser(parser))
	_, err = runner.AddFunc(expr, func() {
		report, err := st.sched.Tick(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Tick failed")
			return
		}
		if report.Due > 0 || report.Stale > 0 || report.Skipped {
			log.Info().
				Int("due", report.Due).
				Int("stale", report.Stale).
				Int("executed", report.Executed).
				Bool("skipped", report.Skipped).
				Msg("Tick complete")
		}
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule tick loop")
	}

	runner.Start()
	<-ctx.Done()

	log.Info().Msg("Shutting down — waiting for in-flight tick")
	<-runner.Stop().Done()
}
