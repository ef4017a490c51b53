// Package quote generates the short quote overlaid on a reel and the
// engaging caption body, using Gemini in JSON mode. Generation failures
// never block a publish: every entry point falls back to a static line.
package quote

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"google.golang.org/genai"

	"github.com/fpang/reel-scheduler/internal/jsonutil"
)

// DefaultModelName is used unless GEMINI_MODEL overrides it.
const DefaultModelName = "gemini-2.5-flash"

// Fallback lines used when the API key is missing or generation fails.
const (
	fallbackQuote = "Falling in love with you every single day."
)

// Generator produces quote text and caption bodies.
type Generator interface {
	Quote(ctx context.Context) (string, error)
	EngagingCaption(ctx context.Context, quote string) (string, error)
}

// generateFunc runs one JSON-mode completion. Split out so tests can run
// without the API.
type generateFunc func(ctx context.Context, systemPrompt, userPrompt string) (string, error)

// GeminiGenerator implements Generator on the Gemini API.
type GeminiGenerator struct {
	generate generateFunc
}

// ModelName returns the configured Gemini model.
func ModelName() string {
	if env := os.Getenv("GEMINI_MODEL"); env != "" {
		return env
	}
	return DefaultModelName
}

// NewGeminiGenerator creates a generator backed by the Gemini API.
func NewGeminiGenerator(ctx context.Context, apiKey string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create Gemini client: %w", err)
	}

	model := ModelName()
	gen := func(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
		config := &genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{
				Parts: []*genai.Part{{Text: systemPrompt}},
			},
			ResponseMIMEType: "application/json",
		}
		resp, err := client.Models.GenerateContent(ctx, model, genai.Text(userPrompt), config)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	}
	return &GeminiGenerator{generate: gen}, nil
}

// newWithGenerate is the test seam.
func newWithGenerate(gen generateFunc) *GeminiGenerator {
	return &GeminiGenerator{generate: gen}
}

// Quote generates a one-liner romantic quote. Falls back to a static
// line on any failure.
func (g *GeminiGenerator) Quote(ctx context.Context) (string, error) {
	raw, err := g.generate(ctx,
		"You are a romantic poet. Generate a unique, short, one-liner romantic quote. Output in JSON format with a 'quote' key.",
		"Give me a beautiful romantic one-liner for my love.")
	if err != nil {
		log.Warn().Err(err).Msg("Quote generation failed, using fallback")
		return fallbackQuote, nil
	}

	parsed, err := jsonutil.ParseJSON[struct {
		Quote string `json:"quote"`
	}](raw)
	if err != nil || parsed.Quote == "" {
		log.Warn().Str("raw", raw).Msg("Quote response unparseable, using fallback")
		return fallbackQuote, nil
	}

	log.Info().Str("quote", parsed.Quote).Msg("Quote generated")
	return parsed.Quote, nil
}

// EngagingCaption generates a story-driven caption body based on the
// quote. Returns "" when generation fails, letting the caption composer
// use its structured fallback.
func (g *GeminiGenerator) EngagingCaption(ctx context.Context, quote string) (string, error) {
	systemPrompt := "You are a social media strategist for a romantic aesthetic page. " +
		"Create a high-engagement Instagram caption for a Reel based on a quote. " +
		"Do not use any markdown formatting. Structure: an emotional hook related to the quote, " +
		"a short relatable reflection on being intentional in love, then a gentle call to action " +
		"encouraging a save or a share. Keep it aesthetic, vulnerable, and minimalist. " +
		"Use plain text with line breaks. Output in JSON format with a 'caption' key."

	raw, err := g.generate(ctx, systemPrompt, fmt.Sprintf("The quote is: %q", quote))
	if err != nil {
		log.Warn().Err(err).Msg("Caption generation failed, using structured fallback")
		return "", nil
	}

	parsed, err := jsonutil.ParseJSON[struct {
		Caption string `json:"caption"`
	}](raw)
	if err != nil {
		log.Warn().Str("raw", raw).Msg("Caption response unparseable, using structured fallback")
		return "", nil
	}
	return parsed.Caption, nil
}

// Static is a Generator that always returns fixed text. Used in dry runs
// and when no API key is configured.
type Static struct {
	QuoteText string
}

func (s Static) Quote(context.Context) (string, error) {
	if s.QuoteText != "" {
		return s.QuoteText, nil
	}
	return fallbackQuote, nil
}

func (s Static) EngagingCaption(context.Context, string) (string, error) {
	return "", nil
}
