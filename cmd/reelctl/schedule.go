package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	eventbridgetypes "github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	lambdasvc "github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	scheduleRuleFlag       string
	scheduleExpressionFlag string
	scheduleFunctionFlag   string
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Manage the EventBridge tick schedule",
}

var scheduleInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Create the EventBridge rule that triggers the scheduler Lambda",
	Long: `Install creates (or updates) the EventBridge rule that invokes the
scheduler Lambda on a fixed schedule, wires the Lambda as its target, and
grants EventBridge permission to invoke it. Idempotent — re-running
updates the rule in place.`,
	Run: runScheduleInstall,
}

func init() {
	scheduleInstallCmd.Flags().StringVar(&scheduleRuleFlag, "rule-name", "reel-scheduler-tick", "EventBridge rule name")
	scheduleInstallCmd.Flags().StringVar(&scheduleExpressionFlag, "expression", "rate(1 minute)", "Schedule expression (rate(...) or cron(...))")
	scheduleInstallCmd.Flags().StringVar(&scheduleFunctionFlag, "function-arn", "", "Scheduler Lambda ARN")
	_ = scheduleInstallCmd.MarkFlagRequired("function-arn")
	scheduleCmd.AddCommand(scheduleInstallCmd)
	rootCmd.AddCommand(scheduleCmd)
}

func runScheduleInstall(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	awsClients := buildAWS()
	ebClient := eventbridge.NewFromConfig(awsClients.Config)
	lambdaClient := lambdasvc.NewFromConfig(awsClients.Config)

	ruleResult, err := ebClient.PutRule(ctx, &eventbridge.PutRuleInput{
		Name:               aws.String(scheduleRuleFlag),
		ScheduleExpression: aws.String(scheduleExpressionFlag),
		State:              eventbridgetypes.RuleStateEnabled,
		Description:        aws.String("Triggers one reel scheduler tick"),
	})
	if err != nil {
		log.Fatal().Err(err).Str("rule", scheduleRuleFlag).Msg("PutRule failed")
	}
	log.Debug().Str("ruleArn", aws.ToString(ruleResult.RuleArn)).Msg("Rule created")

	targetsResult, err := ebClient.PutTargets(ctx, &eventbridge.PutTargetsInput{
		Rule: aws.String(scheduleRuleFlag),
		Targets: []eventbridgetypes.Target{
			{
				Id:    aws.String("scheduler-lambda"),
				Arn:   aws.String(scheduleFunctionFlag),
				Input: aws.String("{}"),
			},
		},
	})
	if err != nil {
		log.Fatal().Err(err).Str("rule", scheduleRuleFlag).Msg("PutTargets failed")
	}
	if targetsResult.FailedEntryCount > 0 {
		for _, entry := range targetsResult.FailedEntries {
			log.Error().
				Str("errorCode", aws.ToString(entry.ErrorCode)).
				Str("errorMessage", aws.ToString(entry.ErrorMessage)).
				Msg("PutTargets entry failed")
		}
		log.Fatal().Str("rule", scheduleRuleFlag).Msg("Failed to attach Lambda target")
	}

	// Grant EventBridge permission to invoke the Lambda. A repeat install
	// hits ResourceConflictException for the existing statement; that is
	// the idempotent path, not a failure.
	_, err = lambdaClient.AddPermission(ctx, &lambdasvc.AddPermissionInput{
		FunctionName: aws.String(scheduleFunctionFlag),
		StatementId:  aws.String(scheduleRuleFlag + "-invoke"),
		Action:       aws.String("lambda:InvokeFunction"),
		Principal:    aws.String("events.amazonaws.com"),
		SourceArn:    ruleResult.RuleArn,
	})
	if err != nil {
		var conflict *lambdatypes.ResourceConflictException
		if !errors.As(err, &conflict) {
			log.Fatal().Err(err).Msg("AddPermission failed")
		}
		log.Debug().Msg("Invoke permission already present")
	}

	fmt.Printf("Installed rule %q (%s) → %s\n", scheduleRuleFlag, scheduleExpressionFlag, scheduleFunctionFlag)
}
