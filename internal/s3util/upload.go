package s3util

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
)

// projectTag is the URL-encoded S3 object tagging string for cost allocation.
const projectTag = "Project=reel-scheduler"

// Keys under renders/{jobID}/ hold attempt outputs; Instagram fetches
// them through short-lived presigned URLs during publish.
const (
	renderKeyFmt = "renders/%s/reel.mp4"
	coverKeyFmt  = "renders/%s/cover.jpg"
)

// PresignExpiry is how long publish URLs stay valid. Instagram fetches
// the video during container processing, which can take minutes.
const PresignExpiry = 30 * time.Minute

func uploadFile(ctx context.Context, client *s3.Client, bucket, key, localPath, contentType string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	tagging := projectTag
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        f,
		ContentType: &contentType,
		Tagging:     &tagging,
	})
	if err != nil {
		return fmt.Errorf("upload s3://%s/%s: %w", bucket, key, err)
	}

	log.Info().Str("bucket", bucket).Str("key", key).Msg("Uploaded to S3")
	return nil
}

// UploadRenderedReel uploads the rendered MP4 for a job and returns its key.
func UploadRenderedReel(ctx context.Context, client *s3.Client, bucket, jobID, localPath string) (string, error) {
	key := fmt.Sprintf(renderKeyFmt, jobID)
	if err := uploadFile(ctx, client, bucket, key, localPath, "video/mp4"); err != nil {
		return "", err
	}
	return key, nil
}

// UploadCover uploads the extracted cover frame for a job and returns its key.
func UploadCover(ctx context.Context, client *s3.Client, bucket, jobID, localPath string) (string, error) {
	key := fmt.Sprintf(coverKeyFmt, jobID)
	if err := uploadFile(ctx, client, bucket, key, localPath, "image/jpeg"); err != nil {
		return "", err
	}
	return key, nil
}

// GeneratePresignedURL creates a pre-signed GET URL for an S3 object.
func GeneratePresignedURL(ctx context.Context, presignClient *s3.PresignClient, bucket, key string, expiry time.Duration) (string, error) {
	result, err := presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	}, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return "", fmt.Errorf("presign GetObject: %w", err)
	}
	return result.URL, nil
}
