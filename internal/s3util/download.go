// Package s3util provides the S3 helpers shared by the executor and the
// CLI: source asset download, render/cover upload, presigned publish
// URLs, and failed-attempt tool log archival.
package s3util

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/content"
)

// DownloadToFile downloads an S3 object to a local path.
func DownloadToFile(ctx context.Context, client *s3.Client, bucket, key, localPath string) error {
	log.Debug().Str("bucket", bucket).Str("key", key).Str("localPath", localPath).Msg("Downloading from S3")
	result, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &bucket, Key: &key,
	})
	if err != nil {
		return fmt.Errorf("S3 GetObject s3://%s/%s: %w", bucket, key, err)
	}
	defer result.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, result.Body); err != nil {
		return fmt.Errorf("download s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

// DownloadRef downloads an s3:// asset ref to localPath.
func DownloadRef(ctx context.Context, client *s3.Client, ref, localPath string) error {
	bucket, key, ok := content.SplitS3Ref(ref)
	if !ok {
		return fmt.Errorf("not an s3 ref: %s", ref)
	}
	return DownloadToFile(ctx, client, bucket, key, localPath)
}
