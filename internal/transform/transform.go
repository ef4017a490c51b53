// Package transform renders a source video into a reel-ready MP4 using
// ffmpeg, and extracts the cover frame Instagram shows in the grid.
package transform

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/content"
	"github.com/fpang/reel-scheduler/internal/jobutil"
)

// Output encoding targets for Instagram reels. H.264 High profile in an
// MP4 container with AAC audio is what the Graph API accepts without
// server-side re-encoding.
const (
	videoCodec   = "libx264"
	videoCRF     = 23
	videoPreset  = "medium"
	audioCodec   = "aac"
	audioBitrate = "128k"
	pixelFormat  = "yuv420p"

	// Reels are capped at 90 seconds by the platform.
	maxReelDuration = 90 * time.Second
)

// Runner executes an external tool and returns its combined output.
// The production runner shells out; tests substitute a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return nil, fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return exec.CommandContext(ctx, path, args...).CombinedOutput()
}

// Adapter turns source assets into publishable reels. Every attempt runs
// inside a caller-provided work directory; the adapter never writes
// outside it.
type Adapter struct {
	runner  Runner
	timeout time.Duration
}

// New creates an Adapter that shells out to ffmpeg/ffprobe with the given
// per-attempt timeout.
func New(timeout time.Duration) *Adapter {
	return NewWithRunner(execRunner{}, timeout)
}

// NewWithRunner creates an Adapter with a custom tool runner.
func NewWithRunner(runner Runner, timeout time.Duration) *Adapter {
	return &Adapter{runner: runner, timeout: timeout}
}

// CheckToolsAvailable reports whether ffmpeg and ffprobe are on PATH.
// Called at startup so a missing install fails fast instead of on the
// first due job.
func CheckToolsAvailable() error {
	for _, tool := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(tool); err != nil {
			return fmt.Errorf("%s not found in PATH: %w", tool, err)
		}
	}
	return nil
}

// Request describes one transform attempt. InputPath and AudioPath are
// local files already downloaded into the work directory.
type Request struct {
	InputPath string
	AudioPath string // optional replacement audio track
	Spec      content.TransformSpec
}

// Result is the rendered output of a transform attempt.
type Result struct {
	VideoPath string
	CoverPath string // empty when no cover frame was requested
	Duration  time.Duration
	Width     int
	Height    int
	ToolLog   []byte // combined ffmpeg/ffprobe output, archived on failure
}

// Transform validates the source, renders the reel and extracts the cover
// frame. All outputs land in workDir. Errors carry a jobutil kind:
// unsupported_format for sources ffmpeg cannot use, timeout when the
// attempt deadline fires, tool_execution for everything ffmpeg rejects.
func (a *Adapter) Transform(ctx context.Context, workDir string, req Request) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	var toolLog []byte

	info, probeOut, err := a.probe(ctx, req.InputPath)
	toolLog = append(toolLog, probeOut...)
	if err != nil {
		return &Result{ToolLog: toolLog}, a.classify(ctx, "probe source", err)
	}
	if err := validateSource(info, req.Spec); err != nil {
		return &Result{ToolLog: toolLog}, err
	}

	outPath := filepath.Join(workDir, "reel.mp4")
	args := buildRenderArgs(req, outPath)
	log.Debug().Strs("args", args).Msg("Running ffmpeg render")

	out, err := a.runner.Run(ctx, "ffmpeg", args...)
	toolLog = append(toolLog, out...)
	if err != nil {
		return &Result{ToolLog: toolLog}, a.classify(ctx, "render reel", err)
	}

	rendered, probeOut, err := a.probe(ctx, outPath)
	toolLog = append(toolLog, probeOut...)
	if err != nil {
		return &Result{ToolLog: toolLog}, a.classify(ctx, "probe output", err)
	}

	result := &Result{
		VideoPath: outPath,
		Duration:  rendered.Duration,
		Width:     rendered.Width,
		Height:    rendered.Height,
		ToolLog:   toolLog,
	}

	if req.Spec.ThumbnailAt > 0 {
		coverPath, out, err := a.extractCover(ctx, workDir, outPath, req.Spec.ThumbnailAt)
		result.ToolLog = append(result.ToolLog, out...)
		if err != nil {
			return result, a.classify(ctx, "extract cover", err)
		}
		result.CoverPath = coverPath
	}

	log.Info().
		Str("output", outPath).
		Dur("duration", result.Duration).
		Int("width", result.Width).
		Int("height", result.Height).
		Dur("renderTime", time.Since(start)).
		Msg("Transform complete")
	return result, nil
}

// classify maps a tool failure to an executor-visible error kind.
func (a *Adapter) classify(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return jobutil.E(jobutil.KindTimeout, op, fmt.Errorf("exceeded %s: %w", a.timeout, err))
	}
	return jobutil.E(jobutil.KindToolExecution, op, err)
}

// validateSource rejects sources the render step cannot fix.
func validateSource(info *SourceInfo, spec content.TransformSpec) error {
	if info.Width == 0 || info.Height == 0 {
		return jobutil.Ef(jobutil.KindUnsupportedFormat, "validate source",
			"no video stream in source (format %q)", info.FormatName)
	}
	if spec.TrimEnd > 0 {
		if spec.TrimEnd <= spec.TrimStart {
			return jobutil.Ef(jobutil.KindValidation, "validate source",
				"trim range %s..%s is empty", spec.TrimStart, spec.TrimEnd)
		}
		if spec.TrimStart >= info.Duration {
			return jobutil.Ef(jobutil.KindValidation, "validate source",
				"trim start %s past source duration %s", spec.TrimStart, info.Duration)
		}
		if spec.TrimEnd-spec.TrimStart > maxReelDuration {
			return jobutil.Ef(jobutil.KindValidation, "validate source",
				"trimmed clip %s exceeds reel limit %s", spec.TrimEnd-spec.TrimStart, maxReelDuration)
		}
	} else if info.Duration > maxReelDuration {
		return jobutil.Ef(jobutil.KindValidation, "validate source",
			"source duration %s exceeds reel limit %s and no trim was given", info.Duration, maxReelDuration)
	}
	return nil
}

// buildRenderArgs assembles the single ffmpeg invocation that trims,
// scales, overlays the quote and muxes the replacement audio.
func buildRenderArgs(req Request, outputPath string) []string {
	spec := req.Spec
	args := []string{"-y", "-hide_banner"}

	if spec.TrimStart > 0 {
		args = append(args, "-ss", formatSeconds(spec.TrimStart))
	}
	if spec.TrimEnd > 0 {
		args = append(args, "-to", formatSeconds(spec.TrimEnd))
	}
	args = append(args, "-i", req.InputPath)

	hasReplacementAudio := req.AudioPath != ""
	if hasReplacementAudio {
		args = append(args, "-i", req.AudioPath)
	}

	if vf := buildVideoFilter(spec); vf != "" {
		args = append(args, "-vf", vf)
	}

	args = append(args,
		"-c:v", videoCodec,
		"-preset", videoPreset,
		"-crf", fmt.Sprintf("%d", videoCRF),
		"-pix_fmt", pixelFormat,
		"-c:a", audioCodec,
		"-b:a", audioBitrate,
	)

	if hasReplacementAudio {
		// Video from input 0, audio from input 1; -shortest stops the mux
		// when the clip ends even if the track is longer.
		args = append(args, "-map", "0:v:0", "-map", "1:a:0", "-shortest")
	} else {
		args = append(args, "-map", "0:v:0", "-map", "0:a?")
	}

	args = append(args, "-movflags", "+faststart", outputPath)
	return args
}

// buildVideoFilter chains scale and the optional drawtext quote overlay.
func buildVideoFilter(spec content.TransformSpec) string {
	var filters []string
	if spec.TargetWidth > 0 && spec.TargetHeight > 0 {
		// Scale to fit inside the target and pad to exact dimensions so
		// arbitrary sources come out 9:16 without distortion.
		filters = append(filters,
			fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", spec.TargetWidth, spec.TargetHeight),
			fmt.Sprintf("pad=%d:%d:(ow-iw)/2:(oh-ih)/2", spec.TargetWidth, spec.TargetHeight),
		)
	}
	if spec.QuoteText != "" {
		fontSize := spec.QuoteFontSize
		if fontSize <= 0 {
			fontSize = 48
		}
		color := spec.QuoteColor
		if color == "" {
			color = "white"
		}
		filters = append(filters, fmt.Sprintf(
			"drawtext=text='%s':fontcolor=%s:fontsize=%d:x=(w-text_w)/2:y=h*0.12:shadowcolor=black:shadowx=2:shadowy=2",
			escapeDrawtext(spec.QuoteText), color, fontSize))
	}
	return strings.Join(filters, ",")
}

// escapeDrawtext escapes the characters drawtext treats specially.
func escapeDrawtext(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`, `:`, `\:`, `%`, `\%`)
	return r.Replace(s)
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%.3f", d.Seconds())
}

// extractCover pulls a single frame as JPEG and checks it decodes as an
// image before handing it to the publish step.
func (a *Adapter) extractCover(ctx context.Context, workDir, videoPath string, at time.Duration) (string, []byte, error) {
	coverPath := filepath.Join(workDir, "cover.jpg")
	args := []string{
		"-y", "-hide_banner",
		"-ss", formatSeconds(at),
		"-i", videoPath,
		"-frames:v", "1",
		"-q:v", "2",
		coverPath,
	}
	out, err := a.runner.Run(ctx, "ffmpeg", args...)
	if err != nil {
		return "", out, fmt.Errorf("extract frame at %s: %w", at, err)
	}
	if err := validateCoverImage(coverPath); err != nil {
		return "", out, err
	}
	return coverPath, out, nil
}
