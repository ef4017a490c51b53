package content

import (
	"strings"
	"testing"
	"time"
)

func TestDeriveIDStable(t *testing.T) {
	spec := TransformSpec{TrimStart: 2 * time.Second, TargetWidth: 1080, TargetHeight: 1920}

	a := DeriveID("s3://media/raw/clip.mp4", spec)
	b := DeriveID("s3://media/raw/clip.mp4", spec)
	if a != b {
		t.Errorf("same inputs produced different IDs: %s vs %s", a, b)
	}
	if !strings.HasPrefix(a, IDPrefix) {
		t.Errorf("ID %s missing prefix %s", a, IDPrefix)
	}
}

func TestDeriveIDDistinguishesInputs(t *testing.T) {
	base := TransformSpec{TargetWidth: 1080, TargetHeight: 1920}
	trimmed := base
	trimmed.TrimStart = time.Second

	ids := map[string]string{
		"other source": DeriveID("s3://media/raw/other.mp4", base),
		"other spec":   DeriveID("s3://media/raw/clip.mp4", trimmed),
	}
	orig := DeriveID("s3://media/raw/clip.mp4", base)
	for name, id := range ids {
		if id == orig {
			t.Errorf("%s produced the same ID as the original", name)
		}
	}
}

func TestIdempotencyKeyStable(t *testing.T) {
	id := DeriveID("s3://media/raw/clip.mp4", TransformSpec{})
	k1 := IdempotencyKey(id)
	k2 := IdempotencyKey(id)
	if k1 != k2 {
		t.Errorf("idempotency key not stable: %s vs %s", k1, k2)
	}
	if !strings.HasPrefix(k1, "idem-") {
		t.Errorf("unexpected key format: %s", k1)
	}
	if k1 == IdempotencyKey("reel-other") {
		t.Error("different item IDs produced the same idempotency key")
	}
}

func TestValidateRef(t *testing.T) {
	tests := []struct {
		ref     string
		wantErr bool
	}{
		{"s3://media/raw/clip.mp4", false},
		{"/var/media/clip.mp4", false},
		{"s3://bucket-only", true},
		{"", true},
	}
	for _, tt := range tests {
		err := ValidateRef(tt.ref)
		if (err != nil) != tt.wantErr {
			t.Errorf("ValidateRef(%q) error = %v, wantErr %v", tt.ref, err, tt.wantErr)
		}
	}
}

func TestSplitS3Ref(t *testing.T) {
	bucket, key, ok := SplitS3Ref("s3://media/raw/clip.mp4")
	if !ok || bucket != "media" || key != "raw/clip.mp4" {
		t.Errorf("SplitS3Ref = (%s, %s, %v), want (media, raw/clip.mp4, true)", bucket, key, ok)
	}
	if _, _, ok := SplitS3Ref("/local/clip.mp4"); ok {
		t.Error("local path should not parse as S3 ref")
	}
}
