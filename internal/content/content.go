// Package content defines the schedulable unit of work: a reel to be
// transformed and published. Item IDs are derived from the content itself
// (source asset plus transform spec), never from the wall clock, so
// registering the same reel twice always yields the same ID and the job
// store's duplicate check can do its job.
package content

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// IDPrefix is prepended to every content-derived item ID.
const IDPrefix = "reel-"

// Item is one schedulable reel. ID is immutable once created;
// ScheduledAt may only be edited while the job is still Pending.
type Item struct {
	ID             string            `json:"id" dynamodbav:"-"`
	SourceAssetRef string            `json:"sourceAssetRef" dynamodbav:"sourceAssetRef"`
	ScheduledAt    time.Time         `json:"scheduledAt" dynamodbav:"scheduledAt"`
	Transform      TransformSpec     `json:"transform" dynamodbav:"transform"`
	Caption        string            `json:"caption,omitempty" dynamodbav:"caption,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty" dynamodbav:"metadata,omitempty"`
}

// TransformSpec declaratively describes the media transform for one reel.
// Zero values mean "leave as-is": a zero TrimEnd keeps the full source,
// zero target dimensions keep the source resolution.
type TransformSpec struct {
	TrimStart     time.Duration `json:"trimStart,omitempty" dynamodbav:"trimStart,omitempty"`
	TrimEnd       time.Duration `json:"trimEnd,omitempty" dynamodbav:"trimEnd,omitempty"`
	TargetWidth   int           `json:"targetWidth,omitempty" dynamodbav:"targetWidth,omitempty"`
	TargetHeight  int           `json:"targetHeight,omitempty" dynamodbav:"targetHeight,omitempty"`
	ThumbnailAt   time.Duration `json:"thumbnailAt,omitempty" dynamodbav:"thumbnailAt,omitempty"`
	QuoteText     string        `json:"quoteText,omitempty" dynamodbav:"quoteText,omitempty"`
	QuoteFontSize int           `json:"quoteFontSize,omitempty" dynamodbav:"quoteFontSize,omitempty"`
	QuoteColor    string        `json:"quoteColor,omitempty" dynamodbav:"quoteColor,omitempty"`
	AudioTrackRef string        `json:"audioTrackRef,omitempty" dynamodbav:"audioTrackRef,omitempty"`
}

// canonical renders the spec as a stable string for ID derivation.
// Field order is fixed; durations are rendered in nanoseconds so the
// encoding never depends on time.Duration's String heuristics.
func (s TransformSpec) canonical() string {
	return fmt.Sprintf("trim=%d:%d|res=%dx%d|thumb=%d|quote=%s:%d:%s|audio=%s",
		s.TrimStart.Nanoseconds(), s.TrimEnd.Nanoseconds(),
		s.TargetWidth, s.TargetHeight,
		s.ThumbnailAt.Nanoseconds(),
		s.QuoteText, s.QuoteFontSize, s.QuoteColor,
		s.AudioTrackRef,
	)
}

// DeriveID computes the content-derived item ID for a source asset and
// transform spec: IDPrefix plus the first 16 bytes of the SHA-256 of the
// canonical (ref, spec) encoding, hex-encoded.
func DeriveID(sourceAssetRef string, spec TransformSpec) string {
	h := sha256.Sum256([]byte(sourceAssetRef + "\x00" + spec.canonical()))
	return IDPrefix + hex.EncodeToString(h[:16])
}

// NewItem builds an Item with its ID derived from the source asset and spec.
func NewItem(sourceAssetRef string, scheduledAt time.Time, spec TransformSpec, caption string) *Item {
	return &Item{
		ID:             DeriveID(sourceAssetRef, spec),
		SourceAssetRef: sourceAssetRef,
		ScheduledAt:    scheduledAt,
		Transform:      spec,
		Caption:        caption,
	}
}

// IdempotencyKey returns the stable publish idempotency key for an item ID.
// The platform sees only this opaque value, so re-deriving it from the same
// ID after a crash always identifies the same publish action.
func IdempotencyKey(itemID string) string {
	h := sha256.Sum256([]byte("publish\x00" + itemID))
	return "idem-" + hex.EncodeToString(h[:])
}

// ValidateRef rejects asset refs that are obviously unusable before a job
// is ever registered. Accepted forms: s3://bucket/key or a local path.
func ValidateRef(ref string) error {
	if ref == "" {
		return fmt.Errorf("source asset ref is empty")
	}
	if strings.HasPrefix(ref, "s3://") {
		rest := strings.TrimPrefix(ref, "s3://")
		if !strings.Contains(rest, "/") {
			return fmt.Errorf("s3 ref %q is missing an object key", ref)
		}
	}
	return nil
}

// SplitS3Ref splits an s3://bucket/key ref into bucket and key.
// Returns ok=false for non-S3 refs.
func SplitS3Ref(ref string) (bucket, key string, ok bool) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return "", "", false
	}
	bucket, key, found = strings.Cut(rest, "/")
	if !found || bucket == "" || key == "" {
		return "", "", false
	}
	return bucket, key, true
}
