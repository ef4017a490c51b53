package jobutil

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindRetryable(t *testing.T) {
	retryable := []Kind{KindTimeout, KindToolExecution, KindRateLimited, KindTransientNetwork}
	terminal := []Kind{KindUnsupportedFormat, KindAuth, KindValidation, KindAttemptsExhausted, KindInternal}

	for _, k := range retryable {
		if !k.Retryable() {
			t.Errorf("%s should be retryable", k)
		}
	}
	for _, k := range terminal {
		if k.Retryable() {
			t.Errorf("%s should be terminal", k)
		}
	}
}

func TestKindOfWrappedError(t *testing.T) {
	inner := E(KindRateLimited, "publish", errors.New("429 from platform"))
	wrapped := fmt.Errorf("attempt 3: %w", inner)

	if got := KindOf(wrapped); got != KindRateLimited {
		t.Errorf("KindOf = %s, want %s", got, KindRateLimited)
	}
	if !Retryable(wrapped) {
		t.Error("wrapped rate-limit error should stay retryable")
	}
}

func TestKindOfUnclassified(t *testing.T) {
	if got := KindOf(errors.New("mystery")); got != KindInternal {
		t.Errorf("unclassified error KindOf = %s, want %s", got, KindInternal)
	}
	if Retryable(errors.New("mystery")) {
		t.Error("unclassified errors must not be retryable")
	}
}

func TestErrorString(t *testing.T) {
	err := Ef(KindUnsupportedFormat, "transform", "probe rejected %s", "clip.xyz")
	want := "transform: unsupported_format: probe rejected clip.xyz"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}
