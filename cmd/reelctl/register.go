package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/reel-scheduler/internal/content"
)

var (
	registerSourceFlag    string
	registerAtFlag        string
	registerCaptionFlag   string
	registerWidthFlag     int
	registerHeightFlag    int
	registerTrimStartFlag time.Duration
	registerTrimEndFlag   time.Duration
	registerThumbnailFlag time.Duration
	registerQuoteFlag     string
	registerFontSizeFlag  int
	registerColorFlag     string
	registerAudioFlag     string
)

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a content item for scheduled publishing",
	Long: `Register creates a pending job for a source video. The job id is
derived from the source reference and transform settings, so registering
the same item twice is a no-op.

Examples:
  reelctl register --source s3://content/clips/morning.mp4 --at 2026-09-01T09:00:00Z
  reelctl register --source s3://content/clips/gym.mp4 --at 2026-09-02T07:30:00Z \
      --quote "One more rep" --trim-start 2s --trim-end 45s --thumbnail-at 5s`,
	Run: runRegister,
}

func init() {
	registerCmd.Flags().StringVarP(&registerSourceFlag, "source", "s", "", "Source video reference (s3://bucket/key)")
	registerCmd.Flags().StringVar(&registerAtFlag, "at", "", "Publication time, RFC 3339 (e.g. 2026-09-01T09:00:00Z)")
	registerCmd.Flags().StringVarP(&registerCaptionFlag, "caption", "c", "", "Pinned caption (skips generated captions)")
	registerCmd.Flags().IntVar(&registerWidthFlag, "width", 1080, "Target video width")
	registerCmd.Flags().IntVar(&registerHeightFlag, "height", 1920, "Target video height")
	registerCmd.Flags().DurationVar(&registerTrimStartFlag, "trim-start", 0, "Trim start offset into the source")
	registerCmd.Flags().DurationVar(&registerTrimEndFlag, "trim-end", 0, "Trim end offset into the source (0 = end)")
	registerCmd.Flags().DurationVar(&registerThumbnailFlag, "thumbnail-at", 0, "Cover frame offset (0 = platform default)")
	registerCmd.Flags().StringVar(&registerQuoteFlag, "quote", "", "Quote text overlaid on the video")
	registerCmd.Flags().IntVar(&registerFontSizeFlag, "quote-font-size", 0, "Quote overlay font size (0 = default)")
	registerCmd.Flags().StringVar(&registerColorFlag, "quote-color", "", "Quote overlay colour (ffmpeg colour name)")
	registerCmd.Flags().StringVar(&registerAudioFlag, "audio", "", "Replacement audio track reference (s3://bucket/key)")
	_ = registerCmd.MarkFlagRequired("source")
	_ = registerCmd.MarkFlagRequired("at")
	rootCmd.AddCommand(registerCmd)
}

func runRegister(cmd *cobra.Command, args []string) {
	if err := content.ValidateRef(registerSourceFlag); err != nil {
		log.Fatal().Err(err).Str("source", registerSourceFlag).Msg("Invalid source reference")
	}
	scheduledAt, err := time.Parse(time.RFC3339, registerAtFlag)
	if err != nil {
		log.Fatal().Err(err).Str("at", registerAtFlag).Msg("Invalid publication time, expected RFC 3339")
	}
	if registerAudioFlag != "" {
		if err := content.ValidateRef(registerAudioFlag); err != nil {
			log.Fatal().Err(err).Str("audio", registerAudioFlag).Msg("Invalid audio reference")
		}
	}

	spec := content.TransformSpec{
		TrimStart:     registerTrimStartFlag,
		TrimEnd:       registerTrimEndFlag,
		TargetWidth:   registerWidthFlag,
		TargetHeight:  registerHeightFlag,
		ThumbnailAt:   registerThumbnailFlag,
		QuoteText:     registerQuoteFlag,
		QuoteFontSize: registerFontSizeFlag,
		QuoteColor:    registerColorFlag,
		AudioTrackRef: registerAudioFlag,
	}
	item := content.NewItem(registerSourceFlag, scheduledAt, spec, registerCaptionFlag)

	_, jobs := buildStore()
	rec, err := jobs.Register(context.Background(), item)
	if err != nil {
		log.Fatal().Err(err).Msg("Register failed")
	}

	fmt.Printf("Registered %s\n", rec.Item.ID)
	fmt.Printf("  source:    %s\n", rec.Item.SourceAssetRef)
	fmt.Printf("  scheduled: %s\n", rec.ScheduledAt.Format(time.RFC3339))
	fmt.Printf("  status:    %s\n", rec.Status)
}
