package executor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/fpang/reel-scheduler/internal/content"
	"github.com/fpang/reel-scheduler/internal/s3util"
)

// S3Media implements MediaStore on S3. Source assets are fetched into
// the work directory, renders are staged under the render bucket and
// exposed through presigned GET URLs for the publish call.
type S3Media struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	renderBucket  string
}

var _ MediaStore = (*S3Media)(nil)

// NewS3Media creates an S3-backed MediaStore staging renders in renderBucket.
func NewS3Media(client *s3.Client, renderBucket string) *S3Media {
	return &S3Media{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		renderBucket:  renderBucket,
	}
}

// fetch copies ref into workDir under name, preserving the extension.
// Local paths (used by one-off CLI runs) are read directly.
func (m *S3Media) fetch(ctx context.Context, ref, workDir, name string) (string, error) {
	localPath := filepath.Join(workDir, name+filepath.Ext(ref))
	if _, _, ok := content.SplitS3Ref(ref); ok {
		if err := s3util.DownloadRef(ctx, m.client, ref, localPath); err != nil {
			return "", err
		}
		return localPath, nil
	}
	if _, err := os.Stat(ref); err != nil {
		return "", fmt.Errorf("source asset %s: %w", ref, err)
	}
	return ref, nil
}

func (m *S3Media) FetchSource(ctx context.Context, item *content.Item, workDir string) (string, string, error) {
	sourcePath, err := m.fetch(ctx, item.SourceAssetRef, workDir, "source")
	if err != nil {
		return "", "", err
	}
	var audioPath string
	if ref := item.Transform.AudioTrackRef; ref != "" {
		audioPath, err = m.fetch(ctx, ref, workDir, "audio")
		if err != nil {
			return "", "", err
		}
	}
	return sourcePath, audioPath, nil
}

func (m *S3Media) StageRender(ctx context.Context, jobID, videoPath, coverPath string) (string, string, error) {
	videoKey, err := s3util.UploadRenderedReel(ctx, m.client, m.renderBucket, jobID, videoPath)
	if err != nil {
		return "", "", err
	}
	videoURL, err := s3util.GeneratePresignedURL(ctx, m.presignClient, m.renderBucket, videoKey, s3util.PresignExpiry)
	if err != nil {
		return "", "", err
	}

	var coverURL string
	if coverPath != "" {
		coverKey, err := s3util.UploadCover(ctx, m.client, m.renderBucket, jobID, coverPath)
		if err != nil {
			return "", "", err
		}
		coverURL, err = s3util.GeneratePresignedURL(ctx, m.presignClient, m.renderBucket, coverKey, s3util.PresignExpiry)
		if err != nil {
			return "", "", err
		}
	}
	return videoURL, coverURL, nil
}

func (m *S3Media) ArchiveToolLog(ctx context.Context, jobID string, attempt int, toolLog []byte) error {
	_, err := s3util.UploadToolLog(ctx, m.client, m.renderBucket, jobID, attempt, toolLog)
	return err
}
