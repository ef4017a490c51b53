// Package lambdaboot provides shared cold-start bootstrap logic.
//
// Both Lambdas and the reelctl CLI need some subset of: AWS config, S3,
// DynamoDB, SSM parameter fetch, and startup logging. This package
// extracts the common init patterns so each entrypoint's init() is a
// short composition of helpers.
package lambdaboot

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/instagram"
	"github.com/fpang/reel-scheduler/internal/logging"
	"github.com/fpang/reel-scheduler/internal/store"
)

// DefaultClaimTimeout is how long an in-flight claim may go without a
// heartbeat write before a later tick is allowed to take the job over.
const DefaultClaimTimeout = 10 * time.Minute

// AWSClients holds the core AWS SDK clients used across entrypoints.
type AWSClients struct {
	Config aws.Config
	SSM    *ssm.Client
}

// S3Clients holds S3 client, presigner, and bucket name.
type S3Clients struct {
	Client    *s3.Client
	Presigner *s3.PresignClient
	Bucket    string
}

// LoadDotEnv loads a .env file when present. Local reelctl runs keep
// their configuration there; in Lambda the file never exists and this is
// a no-op.
func LoadDotEnv() {
	if err := godotenv.Load(); err == nil {
		log.Debug().Msg(".env file loaded")
	}
}

// InitAWS loads the default AWS config and returns it along with common clients.
func InitAWS() AWSClients {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load AWS config")
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return AWSClients{
		Config: cfg,
		SSM:    ssm.NewFromConfig(cfg),
	}
}

// InitS3 creates an S3 client, presigner, and reads the bucket name from the
// given environment variable. Fatals if the env var is empty.
func InitS3(cfg aws.Config, bucketEnvVar string) S3Clients {
	client := s3.NewFromConfig(cfg)
	bucket := os.Getenv(bucketEnvVar)
	if bucket == "" {
		log.Fatal().Str("envVar", bucketEnvVar).Msg("Bucket environment variable is required")
	}
	return S3Clients{
		Client:    client,
		Presigner: s3.NewPresignClient(client),
		Bucket:    bucket,
	}
}

// ClaimTimeout resolves the claim timeout from REEL_CLAIM_TIMEOUT
// (a Go duration string), falling back to the default.
func ClaimTimeout() time.Duration {
	if v := os.Getenv("REEL_CLAIM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Warn().Str("value", v).Msg("Invalid REEL_CLAIM_TIMEOUT, using default")
	}
	return DefaultClaimTimeout
}

// InitJobStore creates the DynamoDB job store from the given config and
// table name environment variable. Fatals if the env var is empty.
func InitJobStore(cfg aws.Config, tableEnvVar string) *store.DynamoStore {
	tableName := os.Getenv(tableEnvVar)
	if tableName == "" {
		log.Fatal().Str("envVar", tableEnvVar).Msg("DynamoDB table environment variable is required")
	}
	ddbClient := dynamodb.NewFromConfig(cfg)
	return store.NewDynamoStore(ddbClient, tableName, ClaimTimeout())
}

// LoadGeminiKey fetches the Gemini API key from SSM Parameter Store if not
// already set via GEMINI_API_KEY env var. Non-fatal: quote generation
// degrades to static fallbacks without it.
func LoadGeminiKey(ssmClient *ssm.Client) string {
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		return key
	}
	paramName := os.Getenv("SSM_GEMINI_KEY_PARAM")
	if paramName == "" {
		paramName = "/reel-scheduler/prod/gemini-api-key"
	}
	ssmStart := time.Now()
	result, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
		Name:           &paramName,
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		log.Warn().Err(err).Str("param", paramName).Msg("Gemini API key not found in SSM — quote generation disabled")
		return ""
	}
	log.Debug().Str("param", paramName).Dur("elapsed", time.Since(ssmStart)).Msg("Gemini API key loaded from SSM")
	return *result.Parameter.Value
}

// LoadInstagramCreds fetches Instagram access token and user ID from SSM
// Parameter Store. Returns an Instagram client if both are available, nil otherwise.
// Non-fatal: logs a warning if credentials are missing.
func LoadInstagramCreds(ssmClient *ssm.Client) *instagram.Client {
	igAccessToken := os.Getenv("INSTAGRAM_ACCESS_TOKEN")
	igUserID := os.Getenv("INSTAGRAM_USER_ID")

	if igAccessToken == "" || igUserID == "" {
		tokenParam := os.Getenv("SSM_INSTAGRAM_TOKEN_PARAM")
		if tokenParam == "" {
			tokenParam = "/reel-scheduler/prod/instagram-access-token"
		}
		userIDParam := os.Getenv("SSM_INSTAGRAM_USER_ID_PARAM")
		if userIDParam == "" {
			userIDParam = "/reel-scheduler/prod/instagram-user-id"
		}

		ssmStart := time.Now()
		tokenResult, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
			Name:           &tokenParam,
			WithDecryption: aws.Bool(true),
		})
		if err == nil {
			igAccessToken = *tokenResult.Parameter.Value
			log.Debug().Str("param", tokenParam).Dur("elapsed", time.Since(ssmStart)).Msg("Instagram token loaded from SSM")
		} else {
			log.Warn().Err(err).Str("param", tokenParam).Msg("Instagram access token not found in SSM — publishing disabled")
		}

		ssmStart = time.Now()
		userIDResult, err := ssmClient.GetParameter(context.Background(), &ssm.GetParameterInput{
			Name:           &userIDParam,
			WithDecryption: aws.Bool(false),
		})
		if err == nil {
			igUserID = *userIDResult.Parameter.Value
			log.Debug().Str("param", userIDParam).Dur("elapsed", time.Since(ssmStart)).Msg("Instagram user ID loaded from SSM")
		} else {
			log.Warn().Err(err).Str("param", userIDParam).Msg("Instagram user ID not found in SSM — publishing disabled")
		}
	}

	if igAccessToken != "" && igUserID != "" {
		client := instagram.NewClient(igAccessToken, igUserID)
		log.Info().Str("userId", igUserID).Msg("Instagram client initialized")
		return client
	}
	log.Warn().Msg("Instagram credentials not configured — publishing disabled")
	return nil
}

// SplitCSV reads a comma-separated env var into a trimmed slice.
func SplitCSV(envVar string) []string {
	raw := os.Getenv(envVar)
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// StartupLog is a convenience wrapper for the startup logger.
func StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	return logging.NewStartupLogger(name).InitDuration(time.Since(initStart))
}
