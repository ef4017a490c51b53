// Package executor drives one reel job through its lifecycle: claim,
// transform, publish, confirm. Exactly one process works a job at a time
// (the claim token gates every store write), attempts are bounded, and a
// publish is never repeated once the platform has accepted it.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/backoff"
	"github.com/fpang/reel-scheduler/internal/content"
	"github.com/fpang/reel-scheduler/internal/instagram"
	"github.com/fpang/reel-scheduler/internal/jobutil"
	"github.com/fpang/reel-scheduler/internal/metrics"
	"github.com/fpang/reel-scheduler/internal/quote"
	"github.com/fpang/reel-scheduler/internal/seo"
	"github.com/fpang/reel-scheduler/internal/store"
	"github.com/fpang/reel-scheduler/internal/transform"
)

// DefaultMaxAttempts bounds how many times a job is tried before it is
// failed terminally.
const DefaultMaxAttempts = 5

// Publisher is the slice of the Instagram client the executor needs.
type Publisher interface {
	PublishReel(ctx context.Context, req instagram.PublishRequest) (*instagram.PublishResult, error)
	LookupPublished(ctx context.Context, idempotencyKey string) (*instagram.PublishResult, bool, error)
}

// Transformer renders a source asset into a reel inside workDir.
type Transformer interface {
	Transform(ctx context.Context, workDir string, req transform.Request) (*transform.Result, error)
}

// MediaStore moves assets between object storage and the work directory.
type MediaStore interface {
	// FetchSource downloads the job's source asset (and optional audio
	// track) into workDir, returning local paths. audioPath is "" when
	// the job has no replacement audio.
	FetchSource(ctx context.Context, item *content.Item, workDir string) (sourcePath, audioPath string, err error)
	// StageRender uploads the rendered video and optional cover, and
	// returns public URLs Instagram can fetch during publish.
	StageRender(ctx context.Context, jobID, videoPath, coverPath string) (videoURL, coverURL string, err error)
	// ArchiveToolLog stores the tool output of a failed attempt.
	ArchiveToolLog(ctx context.Context, jobID string, attempt int, toolLog []byte) error
}

// Options configures an Executor.
type Options struct {
	MaxAttempts int
	Backoff     backoff.Strategy
	WorkRoot    string           // parent dir for per-attempt work directories
	Quotes      quote.Generator  // optional; nil skips caption enrichment
	Hashtags    []string
	Keywords    []string
	Clock       func() time.Time // test seam; defaults to time.Now
}

// Executor runs single job attempts end to end.
type Executor struct {
	store       store.JobStore
	media       MediaStore
	transformer Transformer
	publisher   Publisher
	opts        Options
}

// New creates an Executor. Zero-value option fields get defaults.
func New(jobs store.JobStore, media MediaStore, transformer Transformer, publisher Publisher, opts Options) *Executor {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Backoff == nil {
		opts.Backoff = backoff.Default()
	}
	if opts.WorkRoot == "" {
		opts.WorkRoot = os.TempDir()
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Executor{
		store:       jobs,
		media:       media,
		transformer: transformer,
		publisher:   publisher,
		opts:        opts,
	}
}

// Execute claims a job and runs one attempt. A job that is already
// claimed, already terminal, or missing is skipped without error; that
// is the normal outcome of racing ticks.
func (e *Executor) Execute(ctx context.Context, id string) error {
	now := e.opts.Clock()
	token, rec, err := e.store.Claim(ctx, id, now)
	switch {
	case errors.Is(err, store.ErrAlreadyClaimed), errors.Is(err, store.ErrTerminal), errors.Is(err, store.ErrNotFound):
		log.Debug().Str("jobId", id).AnErr("reason", err).Msg("Skipping job")
		return nil
	case err != nil:
		return fmt.Errorf("claim %s: %w", id, err)
	}

	attempt := rec.AttemptCount
	started := now
	rec.Item.ID = id

	log.Info().
		Str("jobId", id).
		Int("attempt", attempt).
		Int("maxAttempts", e.opts.MaxAttempts).
		Msg("Starting attempt")

	result, err := e.runAttempt(ctx, token, rec)
	if err != nil {
		return e.failAttempt(ctx, id, token, attempt, started, err)
	}

	m := metrics.New(metrics.Namespace)
	m.Property("jobId", id).
		Count("JobsPublished").
		Metric("AttemptsToPublish", float64(attempt), metrics.UnitCount).
		Duration("AttemptMs", e.opts.Clock().Sub(started)).
		Flush()

	log.Info().
		Str("jobId", id).
		Str("mediaId", result.MediaID).
		Str("permalink", result.Permalink).
		Msg("Attempt succeeded")
	return nil
}

// runAttempt is the happy path: transform, stage, publish, confirm.
func (e *Executor) runAttempt(ctx context.Context, token string, rec *store.JobRecord) (*instagram.PublishResult, error) {
	id := rec.Item.ID
	idemKey := content.IdempotencyKey(id)

	// A previous attempt may have published and crashed before recording
	// it. Check before doing any work.
	if found, result, err := e.resolveAmbiguous(ctx, token, rec, idemKey); err != nil {
		return nil, err
	} else if found {
		return result, nil
	}

	if err := e.store.Transition(ctx, id, token, store.StatusTransforming, e.opts.Clock()); err != nil {
		return nil, fmt.Errorf("transition to transforming: %w", err)
	}

	workDir, err := os.MkdirTemp(e.opts.WorkRoot, "reel-"+filepath.Base(id)+"-*")
	if err != nil {
		return nil, jobutil.E(jobutil.KindInternal, "create work dir", err)
	}
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			log.Warn().Err(err).Str("workDir", workDir).Msg("Failed to remove work directory")
		}
	}()

	sourcePath, audioPath, err := e.media.FetchSource(ctx, &rec.Item, workDir)
	if err != nil {
		return nil, jobutil.E(jobutil.KindTransientNetwork, "fetch source", err)
	}

	transformStart := e.opts.Clock()
	rendered, err := e.transformer.Transform(ctx, workDir, transform.Request{
		InputPath: sourcePath,
		AudioPath: audioPath,
		Spec:      rec.Item.Transform,
	})
	if rendered != nil && len(rendered.ToolLog) > 0 && err != nil {
		if archiveErr := e.media.ArchiveToolLog(ctx, id, rec.AttemptCount, rendered.ToolLog); archiveErr != nil {
			log.Warn().Err(archiveErr).Str("jobId", id).Msg("Failed to archive tool log")
		}
	}
	if err != nil {
		return nil, err
	}
	metrics.New(metrics.Namespace).
		Property("jobId", id).
		Duration("TransformMs", e.opts.Clock().Sub(transformStart)).
		Flush()

	if err := e.store.Transition(ctx, id, token, store.StatusPublishing, e.opts.Clock()); err != nil {
		return nil, fmt.Errorf("transition to publishing: %w", err)
	}

	videoURL, coverURL, err := e.media.StageRender(ctx, id, rendered.VideoPath, rendered.CoverPath)
	if err != nil {
		return nil, jobutil.E(jobutil.KindTransientNetwork, "stage render", err)
	}

	publishStart := e.opts.Clock()
	result, err := e.publisher.PublishReel(ctx, instagram.PublishRequest{
		VideoURL:       videoURL,
		CoverURL:       coverURL,
		Caption:        e.caption(ctx, rec),
		IdempotencyKey: idemKey,
		ShareToFeed:    true,
	})
	if err != nil {
		// A transient failure mid-publish is ambiguous: the reel may have
		// gone live before the connection dropped.
		if jobutil.KindOf(err) == jobutil.KindTransientNetwork {
			if lookup, found, lookupErr := e.publisher.LookupPublished(ctx, idemKey); lookupErr == nil && found {
				log.Info().Str("jobId", id).Str("mediaId", lookup.MediaID).
					Msg("Publish call failed but reel is live, confirming")
				return lookup, e.confirm(ctx, id, token, lookup)
			}
		}
		return nil, err
	}
	metrics.New(metrics.Namespace).
		Property("jobId", id).
		Duration("PublishMs", e.opts.Clock().Sub(publishStart)).
		Flush()

	return result, e.confirm(ctx, id, token, result)
}

// resolveAmbiguous checks the platform for an existing publish when the
// record shows earlier attempts. Claiming a pending first attempt skips
// the lookup.
func (e *Executor) resolveAmbiguous(ctx context.Context, token string, rec *store.JobRecord, idemKey string) (bool, *instagram.PublishResult, error) {
	if rec.AttemptCount <= 1 {
		return false, nil, nil
	}
	result, found, err := e.publisher.LookupPublished(ctx, idemKey)
	if err != nil {
		log.Warn().Err(err).Str("jobId", rec.Item.ID).Msg("Published lookup failed, proceeding with attempt")
		return false, nil, nil
	}
	if !found {
		return false, nil, nil
	}
	log.Info().
		Str("jobId", rec.Item.ID).
		Str("mediaId", result.MediaID).
		Msg("Reel already live from earlier attempt, confirming")
	// MarkPublished requires publishing status.
	if err := e.store.Transition(ctx, rec.Item.ID, token, store.StatusPublishing, e.opts.Clock()); err != nil {
		return false, nil, fmt.Errorf("transition to publishing: %w", err)
	}
	return true, result, e.confirm(ctx, rec.Item.ID, token, result)
}

// confirm records the publish outcome. ErrStaleClaim here means another
// runner finished the same job; the platform-side idempotency key kept
// the post unique, so it is not an attempt failure.
func (e *Executor) confirm(ctx context.Context, id, token string, result *instagram.PublishResult) error {
	err := e.store.MarkPublished(ctx, id, token, result.MediaID, result.Permalink, e.opts.Clock())
	if errors.Is(err, store.ErrStaleClaim) {
		log.Warn().Str("jobId", id).Msg("Claim lost at confirmation, publish recorded by another runner")
		return nil
	}
	if err != nil {
		return fmt.Errorf("mark published %s: %w", id, err)
	}
	return nil
}

// failAttempt records the failed attempt and either reschedules with
// backoff or fails the job for good.
func (e *Executor) failAttempt(ctx context.Context, id, token string, attempt int, started time.Time, attemptErr error) error {
	now := e.opts.Clock()
	kind := jobutil.KindOf(attemptErr)
	record := store.AttemptRecord{
		Number:    attempt,
		StartedAt: started,
		EndedAt:   now,
		Error:     attemptErr.Error(),
		ErrorKind: string(kind),
	}

	retryable := kind.Retryable()
	exhausted := attempt >= e.opts.MaxAttempts

	m := metrics.New(metrics.Namespace).
		Property("jobId", id).
		Property("errorKind", string(kind)).
		Count("AttemptFailures")

	if retryable && !exhausted {
		delay := e.opts.Backoff.Delay(attempt)
		next := now.Add(delay)
		if err := e.store.Reschedule(ctx, id, token, next, record); err != nil {
			if errors.Is(err, store.ErrStaleClaim) || errors.Is(err, store.ErrNotFound) {
				log.Warn().Str("jobId", id).Msg("Claim lost while recording failure")
				return nil
			}
			return fmt.Errorf("reschedule %s: %w", id, err)
		}
		m.Flush()
		log.Warn().
			Str("jobId", id).
			Int("attempt", attempt).
			Str("errorKind", string(kind)).
			Dur("backoff", delay).
			Err(attemptErr).
			Msg("Attempt failed, rescheduled")
		return nil
	}

	if retryable && exhausted {
		record.ErrorKind = string(jobutil.KindAttemptsExhausted)
		record.Error = fmt.Sprintf("attempts exhausted (%d/%d): %s", attempt, e.opts.MaxAttempts, attemptErr.Error())
	}
	if err := e.store.MarkFailed(ctx, id, token, record, now); err != nil {
		if errors.Is(err, store.ErrStaleClaim) || errors.Is(err, store.ErrNotFound) {
			log.Warn().Str("jobId", id).Msg("Claim lost while recording terminal failure")
			return nil
		}
		return fmt.Errorf("mark failed %s: %w", id, err)
	}
	m.Count("JobsFailed").Flush()
	log.Error().
		Str("jobId", id).
		Int("attempt", attempt).
		Str("errorKind", record.ErrorKind).
		Err(attemptErr).
		Msg("Job failed terminally")
	return nil
}

// caption returns the item's pinned caption, or composes one from the
// overlay quote, generated body, hashtags and keywords.
func (e *Executor) caption(ctx context.Context, rec *store.JobRecord) string {
	if rec.Item.Caption != "" {
		return rec.Item.Caption
	}

	quoteText := rec.Item.Transform.QuoteText
	var body string
	if e.opts.Quotes != nil {
		if quoteText == "" {
			if generated, err := e.opts.Quotes.Quote(ctx); err == nil {
				quoteText = generated
			}
		}
		if quoteText != "" {
			if generated, err := e.opts.Quotes.EngagingCaption(ctx, quoteText); err == nil {
				body = generated
			}
		}
	}
	return seo.Compose(seo.CaptionInput{
		Quote:    quoteText,
		Body:     body,
		Hashtags: e.opts.Hashtags,
		Keywords: e.opts.Keywords,
		Date:     e.opts.Clock(),
	})
}
