// Package main provides the scheduler Lambda entry point.
//
// Triggered by an EventBridge schedule rule every minute, each invocation
// runs one tick: stale claims are recovered first, then due jobs are
// executed one at a time through the single worker slot.
//
// Container: Heavy (Dockerfile — ffmpeg required for transforms)
// Memory: 2048 MB
// Timeout: 10 minutes
package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/executor"
	"github.com/fpang/reel-scheduler/internal/lambdaboot"
	"github.com/fpang/reel-scheduler/internal/logging"
	"github.com/fpang/reel-scheduler/internal/quote"
	"github.com/fpang/reel-scheduler/internal/scheduler"
	"github.com/fpang/reel-scheduler/internal/transform"
	"github.com/fpang/reel-scheduler/internal/worker"
)

const transformTimeout = 5 * time.Minute

var coldStart = true

var errMissingCreds = errors.New("instagram credentials not configured")

var (
	sched     *scheduler.Scheduler
	depsReady bool
)

func init() {
	initStart := time.Now()
	logging.Init()

	aws := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(aws.Config, "RENDER_BUCKET_NAME")
	jobs := lambdaboot.InitJobStore(aws.Config, "DYNAMO_TABLE_NAME")
	igClient := lambdaboot.LoadInstagramCreds(aws.SSM)

	var quotes quote.Generator
	if key := lambdaboot.LoadGeminiKey(aws.SSM); key != "" {
		g, err := quote.NewGeminiGenerator(context.Background(), key)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini client init failed — using static quotes")
		} else {
			quotes = g
		}
	}

	adapter := transform.New(transformTimeout)
	if err := transform.CheckToolsAvailable(); err != nil {
		log.Error().Err(err).Msg("ffmpeg/ffprobe not available — transforms will fail")
	}

	depsReady = igClient != nil
	if depsReady {
		media := executor.NewS3Media(s3s.Client, s3s.Bucket)
		exec := executor.New(jobs, media, adapter, igClient, executor.Options{
			WorkRoot: os.TempDir(),
			Quotes:   quotes,
			Hashtags: lambdaboot.SplitCSV("REEL_HASHTAGS"),
			Keywords: lambdaboot.SplitCSV("REEL_KEYWORDS"),
		})
		sched = scheduler.New(jobs, exec, worker.NewSlot())
	}

	lambdaboot.StartupLog("scheduler-lambda", initStart).
		S3Bucket("renderBucket", s3s.Bucket).
		DynamoTable("jobs", os.Getenv("DYNAMO_TABLE_NAME")).
		SSMParam("instagramToken", logging.EnvOrDefault("SSM_INSTAGRAM_TOKEN_PARAM", "/reel-scheduler/prod/instagram-access-token")).
		SSMParam("instagramUserId", logging.EnvOrDefault("SSM_INSTAGRAM_USER_ID_PARAM", "/reel-scheduler/prod/instagram-user-id")).
		Feature("instagram", igClient != nil).
		Feature("gemini", quotes != nil).
		Config("claimTimeout", lambdaboot.ClaimTimeout().String()).
		Log()
}

func main() {
	lambda.Start(handler)
}

// TickEvent is the EventBridge scheduled event payload. The schedule rule
// sends an empty object; any extra fields are ignored.
type TickEvent struct{}

type TickResult struct {
	Due      int  `json:"due"`
	Stale    int  `json:"stale"`
	Executed int  `json:"executed"`
	Skipped  bool `json:"skipped"`
}

func handler(ctx context.Context, event TickEvent) (*TickResult, error) {
	if coldStart {
		coldStart = false
		log.Info().Str("function", "scheduler-lambda").Msg("Cold start — first invocation")
	}
	if !depsReady {
		log.Error().Msg("Scheduler not initialized — Instagram credentials missing")
		return nil, errMissingCreds
	}

	tickStart := time.Now()
	report, err := sched.Tick(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Tick failed")
		return nil, err
	}

	log.Info().
		Int("due", report.Due).
		Int("stale", report.Stale).
		Int("executed", report.Executed).
		Bool("skipped", report.Skipped).
		Dur("duration", time.Since(tickStart)).
		Msg("Tick complete")

	return &TickResult{
		Due:      report.Due,
		Stale:    report.Stale,
		Executed: report.Executed,
		Skipped:  report.Skipped,
	}, nil
}
