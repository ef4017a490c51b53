package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	tickRemoteFlag   bool
	tickDryRunFlag   bool
	tickFunctionFlag string
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one scheduler tick",
	Long: `Tick processes due and stale jobs once. By default it runs the full
pipeline locally (requires ffmpeg and Instagram credentials). With
--remote it invokes the deployed scheduler Lambda instead. With
--dry-run it only reports what a tick would execute, without claiming
anything.`,
	Run: runTick,
}

func init() {
	tickCmd.Flags().BoolVar(&tickRemoteFlag, "remote", false, "Invoke the deployed scheduler Lambda")
	tickCmd.Flags().BoolVar(&tickDryRunFlag, "dry-run", false, "Report due/stale jobs without executing")
	tickCmd.Flags().StringVar(&tickFunctionFlag, "function", "", "Scheduler Lambda name or ARN (default $REEL_SCHEDULER_FUNCTION)")
	rootCmd.AddCommand(tickCmd)
}

func runTick(cmd *cobra.Command, args []string) {
	ctx := context.Background()

	switch {
	case tickRemoteFlag:
		runRemoteTick(ctx)
	case tickDryRunFlag:
		runDryRunTick(ctx)
	default:
		runLocalTick(ctx)
	}
}

func runLocalTick(ctx context.Context) {
	st := buildStack(ctx)
	tickStart := time.Now()
	report, err := st.sched.Tick(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Tick failed")
	}
	fmt.Printf("Tick complete in %s: due=%d stale=%d executed=%d skipped=%t\n",
		time.Since(tickStart).Round(time.Millisecond), report.Due, report.Stale, report.Executed, report.Skipped)
}

// runDryRunTick lists what a tick would pick up. Reads only — no claims,
// no transforms, no publishes.
func runDryRunTick(ctx context.Context) {
	_, jobs := buildStore()
	now := time.Now()

	stale, err := jobs.ListStale(ctx, now)
	if err != nil {
		log.Fatal().Err(err).Msg("ListStale failed")
	}
	due, err := jobs.ListDue(ctx, now)
	if err != nil {
		log.Fatal().Err(err).Msg("ListDue failed")
	}

	fmt.Printf("Dry run at %s\n", now.Format(time.RFC3339))
	if len(stale) == 0 && len(due) == 0 {
		fmt.Println("Nothing to do.")
		return
	}
	for _, id := range stale {
		fmt.Printf("  would recover stale claim: %s\n", id)
	}
	for _, id := range due {
		fmt.Printf("  would execute: %s\n", id)
	}
}

func runRemoteTick(ctx context.Context) {
	functionName := tickFunctionFlag
	if functionName == "" {
		functionName = os.Getenv("REEL_SCHEDULER_FUNCTION")
	}
	if functionName == "" {
		log.Fatal().Msg("Scheduler Lambda not specified: set --function or REEL_SCHEDULER_FUNCTION")
	}

	awsClients := buildAWS()
	lambdaClient := lambdasvc.NewFromConfig(awsClients.Config)

	result, err := lambdaClient.Invoke(ctx, &lambdasvc.InvokeInput{
		FunctionName: aws.String(functionName),
		Payload:      []byte("{}"),
	})
	if err != nil {
		log.Fatal().Err(err).Str("function", functionName).Msg("Lambda invocation failed")
	}
	if result.FunctionError != nil {
		log.Fatal().Str("function", functionName).Str("error", *result.FunctionError).
			RawJSON("payload", result.Payload).Msg("Scheduler Lambda returned an error")
	}

	var report struct {
		Due      int  `json:"due"`
		Stale    int  `json:"stale"`
		Executed int  `json:"executed"`
		Skipped  bool `json:"skipped"`
	}
	if err := json.Unmarshal(result.Payload, &report); err != nil {
		fmt.Printf("Tick complete (unparsed response): %s\n", result.Payload)
		return
	}
	fmt.Printf("Remote tick complete: due=%d stale=%d executed=%d skipped=%t\n",
		report.Due, report.Stale, report.Executed, report.Skipped)
}
