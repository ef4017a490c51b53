package jsonutil

import "testing"

type quotePayload struct {
	Quote string `json:"quote"`
}

func TestParseJSONPlain(t *testing.T) {
	got, err := ParseJSON[quotePayload](`{"quote":"hello"}`)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if got.Quote != "hello" {
		t.Errorf("quote = %q", got.Quote)
	}
}

func TestParseJSONFenced(t *testing.T) {
	raw := "```json\n{\"quote\":\"fenced\"}\n```"
	got, err := ParseJSON[quotePayload](raw)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if got.Quote != "fenced" {
		t.Errorf("quote = %q", got.Quote)
	}
}

func TestParseJSONEmbeddedInProse(t *testing.T) {
	raw := `Here is the quote you asked for: {"quote":"embedded"} — enjoy!`
	got, err := ParseJSON[quotePayload](raw)
	if err != nil {
		t.Fatalf("ParseJSON: %v", err)
	}
	if got.Quote != "embedded" {
		t.Errorf("quote = %q", got.Quote)
	}
}

func TestParseJSONNoContent(t *testing.T) {
	if _, err := ParseJSON[quotePayload]("no json here"); err == nil {
		t.Error("expected error for non-JSON input")
	}
}
