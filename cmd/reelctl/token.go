package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reel-scheduler/internal/lambdaboot"
)

var tokenWriteSSMFlag bool

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage Instagram credentials",
}

var tokenRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the long-lived Instagram access token",
	Long: `Refresh exchanges the current long-lived token for a new 60-day one.
With --write-ssm the new token is stored back in Parameter Store so the
Lambdas pick it up on their next cold start.`,
	Run: runTokenRefresh,
}

func init() {
	tokenRefreshCmd.Flags().BoolVar(&tokenWriteSSMFlag, "write-ssm", false, "Store the refreshed token in SSM Parameter Store")
	tokenCmd.AddCommand(tokenRefreshCmd)
	rootCmd.AddCommand(tokenCmd)
}

func runTokenRefresh(cmd *cobra.Command, args []string) {
	ctx := context.Background()
	awsClients := buildAWS()

	igClient := lambdaboot.LoadInstagramCreds(awsClients.SSM)
	if igClient == nil {
		log.Fatal().Msg("Instagram credentials not configured")
	}

	info, err := igClient.RefreshToken(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Token refresh failed")
	}
	fmt.Printf("Token refreshed — expires %s\n", info.ExpiresAt.Format(time.RFC3339))

	if !tokenWriteSSMFlag {
		fmt.Println("Run again with --write-ssm to persist it to Parameter Store.")
		return
	}

	paramName := os.Getenv("SSM_INSTAGRAM_TOKEN_PARAM")
	if paramName == "" {
		paramName = "/reel-scheduler/prod/instagram-access-token"
	}
	_, err = awsClients.SSM.PutParameter(ctx, &ssm.PutParameterInput{
		Name:      aws.String(paramName),
		Value:     aws.String(info.AccessToken),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	})
	if err != nil {
		log.Fatal().Err(err).Str("param", paramName).Msg("Failed to store refreshed token")
	}
	fmt.Printf("Stored in %s\n", paramName)
}
