package s3util

import (
	"bytes"
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"
)

// UploadToolLog gzips the combined ffmpeg/ffprobe output of a failed
// attempt and archives it under logs/{jobID}/attempt-{n}.log.gz so
// render failures can be diagnosed after the work directory is gone.
func UploadToolLog(ctx context.Context, client *s3.Client, bucket, jobID string, attempt int, toolLog []byte) (string, error) {
	if len(toolLog) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	gz, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := gz.Write(toolLog); err != nil {
		return "", fmt.Errorf("compress tool log: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", fmt.Errorf("compress tool log: %w", err)
	}

	key := fmt.Sprintf("logs/%s/attempt-%d.log.gz", jobID, attempt)
	contentType := "application/gzip"
	tagging := projectTag
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: &contentType,
		Tagging:     &tagging,
	})
	if err != nil {
		return "", fmt.Errorf("upload tool log s3://%s/%s: %w", bucket, key, err)
	}

	log.Debug().
		Str("key", key).
		Int("rawBytes", len(toolLog)).
		Int("compressedBytes", buf.Len()).
		Msg("Tool log archived")
	return key, nil
}
