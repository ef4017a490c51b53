// Package seo composes the Instagram caption and alt-text for a reel.
package seo

import (
	"fmt"
	"strings"
	"time"
)

// CaptionInput holds everything the composer needs for one reel.
type CaptionInput struct {
	Quote    string
	Body     string // generated engaging body; empty triggers the structured fallback
	Reminder string // optional structured reminder used when Body is empty
	Hashtags []string
	Keywords []string
	Date     time.Time
}

// Compose builds the full caption: quote hook, body, separator, hashtags
// and keyword line. The body prefers generated content, then the
// structured reminder, then a dated default.
func Compose(in CaptionInput) string {
	dateStr := in.Date.Format("Monday, January 2, 2006")

	var body string
	switch {
	case in.Body != "":
		body = in.Body
	case in.Reminder != "":
		body = fmt.Sprintf("Remember <3\n%s\n\nToday is %s. Let this be your sign to stay intentional.",
			in.Reminder, dateStr)
	default:
		body = fmt.Sprintf("Daily Reminder <3\nIt's %s. Falling in love with you every single day.", dateStr)
	}

	var b strings.Builder
	if in.Quote != "" {
		b.WriteString(fmt.Sprintf("✨ %s ✨", in.Quote))
		b.WriteString("\n\n")
	}
	b.WriteString(body)
	if len(in.Hashtags) > 0 || len(in.Keywords) > 0 {
		b.WriteString("\n\n---")
	}
	if len(in.Hashtags) > 0 {
		b.WriteString("\n\n")
		b.WriteString(strings.Join(in.Hashtags, " "))
	}
	if len(in.Keywords) > 0 {
		b.WriteString("\n\n")
		b.WriteString("Keywords: ")
		b.WriteString(strings.Join(in.Keywords, ", "))
	}
	return strings.TrimSpace(b.String())
}

// AltText builds the accessibility description for a reel with an
// overlaid quote.
func AltText(quoteText string) string {
	return fmt.Sprintf("A romantic video Reel with text: %s. The background shows personal moments with a soft aesthetic.", quoteText)
}
