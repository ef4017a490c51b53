package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/executor"
	"github.com/fpang/reel-scheduler/internal/lambdaboot"
	"github.com/fpang/reel-scheduler/internal/quote"
	"github.com/fpang/reel-scheduler/internal/scheduler"
	"github.com/fpang/reel-scheduler/internal/store"
	"github.com/fpang/reel-scheduler/internal/transform"
	"github.com/fpang/reel-scheduler/internal/worker"
)

const localTransformTimeout = 5 * time.Minute

// stack is the fully wired pipeline for local ticks. It is the same
// composition the scheduler Lambda performs at cold start.
type stack struct {
	aws   lambdaboot.AWSClients
	jobs  *store.DynamoStore
	sched *scheduler.Scheduler
}

// buildAWS wires only the base AWS clients.
func buildAWS() lambdaboot.AWSClients {
	return lambdaboot.InitAWS()
}

// buildStore wires only the job store, for read-side commands.
func buildStore() (lambdaboot.AWSClients, *store.DynamoStore) {
	aws := lambdaboot.InitAWS()
	return aws, lambdaboot.InitJobStore(aws.Config, "DYNAMO_TABLE_NAME")
}

// buildStack wires the complete execution pipeline. Fatals when required
// configuration (bucket, table, Instagram credentials) is missing.
func buildStack(ctx context.Context) *stack {
	aws := lambdaboot.InitAWS()
	s3s := lambdaboot.InitS3(aws.Config, "RENDER_BUCKET_NAME")
	jobs := lambdaboot.InitJobStore(aws.Config, "DYNAMO_TABLE_NAME")

	igClient := lambdaboot.LoadInstagramCreds(aws.SSM)
	if igClient == nil {
		log.Fatal().Msg("Instagram credentials are required to execute jobs")
	}

	var quotes quote.Generator
	if key := lambdaboot.LoadGeminiKey(aws.SSM); key != "" {
		g, err := quote.NewGeminiGenerator(ctx, key)
		if err != nil {
			log.Warn().Err(err).Msg("Gemini client init failed — using static quotes")
		} else {
			quotes = g
		}
	}

	adapter := transform.New(localTransformTimeout)
	if err := transform.CheckToolsAvailable(); err != nil {
		log.Fatal().Err(err).Msg("ffmpeg and ffprobe are required on PATH")
	}

	media := executor.NewS3Media(s3s.Client, s3s.Bucket)
	exec := executor.New(jobs, media, adapter, igClient, executor.Options{
		Quotes:   quotes,
		Hashtags: lambdaboot.SplitCSV("REEL_HASHTAGS"),
		Keywords: lambdaboot.SplitCSV("REEL_KEYWORDS"),
	})

	return &stack{
		aws:   aws,
		jobs:  jobs,
		sched: scheduler.New(jobs, exec, worker.NewSlot()),
	}
}
