// Package store provides the durable job state store: one JobRecord per
// registered reel, mutated exclusively through token-gated compare-and-swap
// operations. The store is the single source of truth for idempotency —
// a record reaches Published at most once, and every claim hands out a
// fresh token that all later mutations must present.
//
// Two implementations exist: DynamoStore (DynamoDB single-table, conditional
// writes enforce every CAS) and MemoryStore (mutex-guarded map for tests and
// dry runs). Both satisfy JobStore and share semantics exactly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/fpang/reel-scheduler/internal/content"
)

// Status is the lifecycle state of a JobRecord.
type Status string

const (
	StatusPending      Status = "pending"
	StatusClaimed      Status = "claimed"
	StatusTransforming Status = "transforming"
	StatusPublishing   Status = "publishing"
	StatusPublished    Status = "published"
	StatusFailed       Status = "failed"
)

// Terminal reports whether the status is final. Terminal records are kept
// forever for audit and duplicate prevention; they are never claimable.
func (s Status) Terminal() bool {
	return s == StatusPublished || s == StatusFailed
}

// InFlight reports whether the status indicates a live execution attempt.
func (s Status) InFlight() bool {
	return s == StatusClaimed || s == StatusTransforming || s == StatusPublishing
}

// Sentinel errors returned by JobStore implementations.
var (
	// ErrNotFound: no JobRecord exists for the requested id.
	ErrNotFound = errors.New("job record not found")

	// ErrAlreadyClaimed: another live claim holds the record.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// ErrStaleClaim: the presented token no longer matches the record's
	// claim token — a newer claim has taken over.
	ErrStaleClaim = errors.New("stale claim token")

	// ErrTerminal: the record is Published or Failed and cannot be claimed.
	ErrTerminal = errors.New("job in terminal status")
)

// AttemptRecord is the audit entry for one finished execution attempt.
type AttemptRecord struct {
	Number    int       `json:"number"`
	StartedAt time.Time `json:"startedAt"`
	EndedAt   time.Time `json:"endedAt"`
	Error     string    `json:"error,omitempty"`
	ErrorKind string    `json:"errorKind,omitempty"`
}

// JobRecord is the durable execution record for one content item.
//
// Invariants:
//   - PublishedAssetID is set if and only if Status is Published.
//   - AttemptCount strictly increases with every claim and never decreases.
//   - UpdatedAt is monotonically non-decreasing.
type JobRecord struct {
	Item content.Item

	Status           Status
	AttemptCount     int
	LastError        string
	LastErrorKind    string
	PublishedAssetID string
	Permalink        string
	ClaimToken       string

	// ScheduledAt is the next eligibility time. It starts as the item's
	// requested publication time and is pushed forward by retry backoff.
	ScheduledAt time.Time
	UpdatedAt   time.Time

	Attempts []AttemptRecord
}

// JobStore is the persistence contract for JobRecords. All mutation after
// Claim is token-gated: implementations must apply each operation as a
// single atomic compare-and-swap so two executors can never both believe
// they own a record.
type JobStore interface {
	// Register creates a Pending JobRecord for the item. Registering an id
	// that already exists is a no-op returning the existing record — the
	// content-derived id makes re-registration safe by construction.
	Register(ctx context.Context, item *content.Item) (*JobRecord, error)

	// Get returns the record for id, or ErrNotFound.
	Get(ctx context.Context, id string) (*JobRecord, error)

	// ListDue returns the ids of Pending records with ScheduledAt <= now,
	// ordered by ScheduledAt ascending, ties broken by id.
	ListDue(ctx context.Context, now time.Time) ([]string, error)

	// ListStale returns ids of in-flight records whose UpdatedAt is older
	// than the claim timeout — crash leftovers eligible for re-claim.
	ListStale(ctx context.Context, now time.Time) ([]string, error)

	// Claim atomically takes ownership of a record that is Pending, or
	// in-flight with an expired claim. It assigns a fresh claim token and
	// increments AttemptCount. Returns ErrAlreadyClaimed if a live claim
	// exists, ErrTerminal for Published/Failed records.
	Claim(ctx context.Context, id string, now time.Time) (token string, rec *JobRecord, err error)

	// Transition moves an in-flight record to newStatus if token matches
	// the current claim token; ErrStaleClaim otherwise.
	Transition(ctx context.Context, id, token string, newStatus Status, now time.Time) error

	// Reschedule records a retryable failure: appends the attempt to the
	// audit trail, sets LastError, reverts the record to Pending with
	// ScheduledAt pushed to at. Token-gated.
	Reschedule(ctx context.Context, id, token string, at time.Time, attempt AttemptRecord) error

	// MarkFailed records a terminal failure. Token-gated.
	MarkFailed(ctx context.Context, id, token string, attempt AttemptRecord, now time.Time) error

	// MarkPublished is the terminal success transition. Calling it twice
	// with the same token and asset id succeeds both times without
	// changing the record — this absorbs publish-confirmation retries.
	MarkPublished(ctx context.Context, id, token, publishedAssetID, permalink string, now time.Time) error

	// ListByStatus returns up to limit records in the given status,
	// newest-updated first. Operator/diagnostic surface.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*JobRecord, error)
}
