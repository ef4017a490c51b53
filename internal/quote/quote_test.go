package quote

import (
	"context"
	"errors"
	"testing"
)

func TestQuoteParsesJSONResponse(t *testing.T) {
	g := newWithGenerate(func(ctx context.Context, system, user string) (string, error) {
		return `{"quote":"Every sunset reminds me of you."}`, nil
	})
	got, err := g.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got != "Every sunset reminds me of you." {
		t.Errorf("quote = %q", got)
	}
}

func TestQuoteFallsBackOnError(t *testing.T) {
	g := newWithGenerate(func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("quota exceeded")
	})
	got, err := g.Quote(context.Background())
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if got != fallbackQuote {
		t.Errorf("quote = %q, want fallback", got)
	}
}

func TestQuoteUnwrapsFencedResponse(t *testing.T) {
	g := newWithGenerate(func(ctx context.Context, system, user string) (string, error) {
		return "```json\n{\"quote\":\"Grow together.\"}\n```", nil
	})
	got, _ := g.Quote(context.Background())
	if got != "Grow together." {
		t.Errorf("quote = %q", got)
	}
}

func TestQuoteFallsBackOnGarbage(t *testing.T) {
	g := newWithGenerate(func(ctx context.Context, system, user string) (string, error) {
		return "not json at all", nil
	})
	got, _ := g.Quote(context.Background())
	if got != fallbackQuote {
		t.Errorf("quote = %q, want fallback", got)
	}
}

func TestEngagingCaptionEmptyOnFailure(t *testing.T) {
	g := newWithGenerate(func(ctx context.Context, system, user string) (string, error) {
		return "", errors.New("unavailable")
	})
	got, err := g.EngagingCaption(context.Background(), "a quote")
	if err != nil {
		t.Fatalf("EngagingCaption: %v", err)
	}
	if got != "" {
		t.Errorf("caption = %q, want empty for fallback", got)
	}
}

func TestStaticGenerator(t *testing.T) {
	s := Static{QuoteText: "pinned quote"}
	got, _ := s.Quote(context.Background())
	if got != "pinned quote" {
		t.Errorf("quote = %q", got)
	}
	if got, _ := (Static{}).Quote(context.Background()); got != fallbackQuote {
		t.Errorf("default quote = %q, want fallback", got)
	}
}
