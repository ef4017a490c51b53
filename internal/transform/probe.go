package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/evanoberholster/imagemeta/imagetype"
	"github.com/rs/zerolog/log"
)

// SourceInfo is the subset of ffprobe output the adapter acts on.
type SourceInfo struct {
	Duration   time.Duration
	Width      int
	Height     int
	VideoCodec string
	HasAudio   bool
	FormatName string
}

// ffprobeOutput mirrors ffprobe's JSON shape.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration   string `json:"duration"`
	FormatName string `json:"format_name"`
}

type ffprobeStream struct {
	CodecName string `json:"codec_name"`
	CodecType string `json:"codec_type"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// probe runs ffprobe and parses the stream layout. The raw output is
// returned for the attempt's tool log.
func (a *Adapter) probe(ctx context.Context, path string) (*SourceInfo, []byte, error) {
	out, err := a.runner.Run(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	if err != nil {
		return nil, out, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	var probe ffprobeOutput
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, out, fmt.Errorf("parse ffprobe output for %s: %w", path, err)
	}

	info := &SourceInfo{FormatName: probe.Format.FormatName}
	if probe.Format.Duration != "" {
		if secs, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
			info.Duration = time.Duration(secs * float64(time.Second))
		}
	}
	for _, stream := range probe.Streams {
		switch stream.CodecType {
		case "video":
			if info.Width == 0 {
				info.Width = stream.Width
				info.Height = stream.Height
				info.VideoCodec = stream.CodecName
			}
		case "audio":
			info.HasAudio = true
		}
	}

	log.Debug().
		Str("path", path).
		Str("format", info.FormatName).
		Dur("duration", info.Duration).
		Int("width", info.Width).
		Int("height", info.Height).
		Msg("Probed media file")
	return info, out, nil
}

// validateCoverImage confirms the extracted frame is a real JPEG before
// it gets uploaded as the reel cover.
func validateCoverImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open cover %s: %w", path, err)
	}
	defer f.Close()

	it, err := imagetype.Scan(f)
	if err != nil {
		return fmt.Errorf("scan cover %s: %w", path, err)
	}
	if it != imagetype.ImageJPEG {
		return fmt.Errorf("cover %s is %s, expected JPEG", path, it)
	}
	return nil
}
