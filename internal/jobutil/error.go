// Package jobutil provides the shared failure classification for the job
// pipeline. Every error surfaced by the transform adapter or the publish
// client is wrapped in a classified Error so the executor can decide
// between backing off and giving up without inspecting collaborator
// internals.
package jobutil

import (
	"errors"
	"fmt"
)

// Kind identifies one classified failure condition.
type Kind string

// Transform failures.
const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindToolExecution     Kind = "tool_execution"
	KindTimeout           Kind = "timeout"
)

// Publish failures.
const (
	KindAuth             Kind = "auth"
	KindRateLimited      Kind = "rate_limited"
	KindValidation       Kind = "validation"
	KindTransientNetwork Kind = "transient_network"
)

// Pipeline failures.
const (
	KindAttemptsExhausted Kind = "attempts_exhausted"
	KindInternal          Kind = "internal"
)

// Retryable reports whether failures of this kind may be retried with
// backoff. Everything else is terminal and requires operator attention.
func (k Kind) Retryable() bool {
	switch k {
	case KindTimeout, KindToolExecution, KindRateLimited, KindTransientNetwork:
		return true
	}
	return false
}

// Error is a classified pipeline failure.
type Error struct {
	Kind Kind
	Op   string // short operation name, e.g. "transform", "publish"
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// E wraps err as a classified Error.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Ef wraps a formatted message as a classified Error.
func Ef(kind Kind, op, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the classification from err. Unclassified errors are
// reported as KindInternal, which is terminal: an error nobody classified
// is a bug, not something to retry blindly.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindInternal
}

// Retryable reports whether err is a classified retryable failure.
func Retryable(err error) bool {
	return KindOf(err).Retryable()
}
