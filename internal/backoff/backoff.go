// Package backoff computes retry delays for failed publish attempts.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before a retry attempt. Attempt 1 is the
// first retry after the initial failure.
type Strategy interface {
	Delay(attempt int) time.Duration
}

// Exponential doubles the delay each attempt, capped at Max.
// Delay = min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Default returns the retry schedule used by the executor:
// 30s, 1m, 2m, 4m, ... capped at 15m.
func Default() *Exponential {
	return NewExponential(30*time.Second, 15*time.Minute)
}

// Delay returns Initial * 2^(attempt-1), capped at Max. Attempts below 1
// are treated as 1.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if d < 0 || (e.Max > 0 && d > e.Max) {
		return e.Max
	}
	return d
}
