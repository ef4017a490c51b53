package transform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/fpang/reel-scheduler/internal/content"
	"github.com/fpang/reel-scheduler/internal/jobutil"
)

// Minimal JPEG header (SOI + APP0) so image type detection accepts the
// fake cover frames.
var jpegHeader = []byte{
	0xFF, 0xD8, 0xFF, 0xE0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00,
	0x01, 0x01, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xFF, 0xD9,
}

func probeJSON(duration string, width, height int, audio bool) string {
	streams := fmt.Sprintf(`{"codec_name":"h264","codec_type":"video","width":%d,"height":%d}`, width, height)
	if audio {
		streams += `,{"codec_name":"aac","codec_type":"audio"}`
	}
	return fmt.Sprintf(`{"format":{"duration":"%s","format_name":"mov,mp4,m4a,3gp,3g2,mj2"},"streams":[%s]}`, duration, streams)
}

// fakeRunner simulates ffmpeg/ffprobe: canned probe output per path, and
// render calls that create their output file.
type fakeRunner struct {
	probes    map[string]string
	renderErr error
	block     bool // hang until the context is cancelled
	calls     [][]string
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, append([]string{name}, args...))
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	switch name {
	case "ffprobe":
		path := args[len(args)-1]
		js, ok := f.probes[path]
		if !ok {
			return []byte("probe error"), errors.New("exit status 1")
		}
		return []byte(js), nil
	case "ffmpeg":
		if f.renderErr != nil {
			return []byte("ffmpeg error output"), f.renderErr
		}
		out := args[len(args)-1]
		data := []byte("rendered")
		if strings.HasSuffix(out, ".jpg") {
			data = jpegHeader
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return nil, err
		}
		return []byte("frame=100"), nil
	}
	return nil, fmt.Errorf("unexpected tool %s", name)
}

func writeSource(t *testing.T, dir string) string {
	t.Helper()
	path := dir + "/source.mp4"
	if err := os.WriteFile(path, []byte("source"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTransformRendersAndExtractsCover(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	runner := &fakeRunner{probes: map[string]string{
		src:                   probeJSON("60.0", 1920, 1080, true),
		workDir + "/reel.mp4": probeJSON("30.0", 1080, 1920, true),
	}}
	a := NewWithRunner(runner, time.Minute)

	result, err := a.Transform(context.Background(), workDir, Request{
		InputPath: src,
		Spec: content.TransformSpec{
			TrimStart:    10 * time.Second,
			TrimEnd:      40 * time.Second,
			TargetWidth:  1080,
			TargetHeight: 1920,
			QuoteText:    "stay hungry",
			ThumbnailAt:  2 * time.Second,
		},
	})
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	if result.VideoPath != workDir+"/reel.mp4" {
		t.Errorf("VideoPath = %s", result.VideoPath)
	}
	if result.CoverPath != workDir+"/cover.jpg" {
		t.Errorf("CoverPath = %s", result.CoverPath)
	}
	if result.Duration != 30*time.Second || result.Width != 1080 || result.Height != 1920 {
		t.Errorf("rendered info = %s %dx%d", result.Duration, result.Width, result.Height)
	}

	// Render call carries trim, scale and the quote overlay.
	var render []string
	for _, call := range runner.calls {
		if call[0] == "ffmpeg" && !contains(call, "-frames:v") {
			render = call
		}
	}
	joined := strings.Join(render, " ")
	for _, want := range []string{"-ss 10.000", "-to 40.000", "scale=1080:1920", "drawtext=text='stay hungry'", "-c:v libx264"} {
		if !strings.Contains(joined, want) {
			t.Errorf("render args missing %q: %s", want, joined)
		}
	}
}

func contains(args []string, s string) bool {
	for _, a := range args {
		if a == s {
			return true
		}
	}
	return false
}

func TestTransformRejectsSourceWithoutVideo(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	runner := &fakeRunner{probes: map[string]string{
		src: `{"format":{"duration":"60.0","format_name":"mp3"},"streams":[{"codec_name":"mp3","codec_type":"audio"}]}`,
	}}
	a := NewWithRunner(runner, time.Minute)

	_, err := a.Transform(context.Background(), workDir, Request{InputPath: src})
	if jobutil.KindOf(err) != jobutil.KindUnsupportedFormat {
		t.Errorf("kind = %s, want unsupported_format (err: %v)", jobutil.KindOf(err), err)
	}
}

func TestTransformRejectsEmptyTrimRange(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	runner := &fakeRunner{probes: map[string]string{src: probeJSON("60.0", 1920, 1080, true)}}
	a := NewWithRunner(runner, time.Minute)

	_, err := a.Transform(context.Background(), workDir, Request{
		InputPath: src,
		Spec:      content.TransformSpec{TrimStart: 20 * time.Second, TrimEnd: 20 * time.Second},
	})
	if jobutil.KindOf(err) != jobutil.KindValidation {
		t.Errorf("kind = %s, want validation (err: %v)", jobutil.KindOf(err), err)
	}
}

func TestTransformRejectsOverlongSource(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	runner := &fakeRunner{probes: map[string]string{src: probeJSON("120.0", 1920, 1080, true)}}
	a := NewWithRunner(runner, time.Minute)

	_, err := a.Transform(context.Background(), workDir, Request{InputPath: src})
	if jobutil.KindOf(err) != jobutil.KindValidation {
		t.Errorf("kind = %s, want validation (err: %v)", jobutil.KindOf(err), err)
	}
}

func TestTransformClassifiesToolFailure(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	runner := &fakeRunner{
		probes:    map[string]string{src: probeJSON("60.0", 1920, 1080, true)},
		renderErr: errors.New("exit status 1"),
	}
	a := NewWithRunner(runner, time.Minute)

	result, err := a.Transform(context.Background(), workDir, Request{
		InputPath: src,
		Spec:      content.TransformSpec{TrimStart: 0, TrimEnd: 30 * time.Second},
	})
	if jobutil.KindOf(err) != jobutil.KindToolExecution {
		t.Errorf("kind = %s, want tool_execution (err: %v)", jobutil.KindOf(err), err)
	}
	if !strings.Contains(string(result.ToolLog), "ffmpeg error output") {
		t.Error("tool log does not carry the ffmpeg output")
	}
}

func TestTransformClassifiesTimeout(t *testing.T) {
	workDir := t.TempDir()
	src := writeSource(t, workDir)

	a := NewWithRunner(&fakeRunner{block: true}, 20*time.Millisecond)
	_, err := a.Transform(context.Background(), workDir, Request{InputPath: src})
	if jobutil.KindOf(err) != jobutil.KindTimeout {
		t.Errorf("kind = %s, want timeout (err: %v)", jobutil.KindOf(err), err)
	}
}

func TestBuildRenderArgsAudioMux(t *testing.T) {
	args := buildRenderArgs(Request{
		InputPath: "in.mp4",
		AudioPath: "track.mp3",
		Spec:      content.TransformSpec{},
	}, "out.mp4")
	joined := strings.Join(args, " ")
	for _, want := range []string{"-i in.mp4", "-i track.mp3", "-map 0:v:0", "-map 1:a:0", "-shortest"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestEscapeDrawtext(t *testing.T) {
	got := escapeDrawtext(`it's 100%: win`)
	want := `it\'s 100\%\: win`
	if got != want {
		t.Errorf("escapeDrawtext = %q, want %q", got, want)
	}
}
