package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fpang/reel-scheduler/internal/content"
)

var testBase = time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

func newTestStore() *MemoryStore {
	return NewMemoryStore(10 * time.Minute)
}

func registerItem(t *testing.T, s *MemoryStore, ref string, at time.Time) *content.Item {
	t.Helper()
	item := content.NewItem(ref, at, content.TransformSpec{TargetWidth: 1080, TargetHeight: 1920}, "caption")
	if _, err := s.Register(context.Background(), item); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return item
}

func TestRegisterIsIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	token, _, err := s.Claim(ctx, item.ID, testBase)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if err := s.Transition(ctx, item.ID, token, StatusTransforming, testBase); err != nil {
		t.Fatalf("Transition: %v", err)
	}

	// Re-registering the same content must not reset progress.
	rec, err := s.Register(ctx, item)
	if err != nil {
		t.Fatalf("re-Register: %v", err)
	}
	if rec.Status != StatusTransforming {
		t.Errorf("status after re-register = %s, want %s", rec.Status, StatusTransforming)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attemptCount after re-register = %d, want 1", rec.AttemptCount)
	}
}

func TestClaimExcludesSecondClaimer(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	token, rec, err := s.Claim(ctx, item.ID, testBase)
	if err != nil {
		t.Fatalf("first Claim: %v", err)
	}
	if token == "" {
		t.Fatal("first Claim returned empty token")
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attemptCount = %d, want 1", rec.AttemptCount)
	}

	if _, _, err := s.Claim(ctx, item.ID, testBase.Add(time.Minute)); !errors.Is(err, ErrAlreadyClaimed) {
		t.Errorf("second Claim error = %v, want ErrAlreadyClaimed", err)
	}
}

func TestClaimMissingAndTerminal(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	if _, _, err := s.Claim(ctx, "reel-nope", testBase); !errors.Is(err, ErrNotFound) {
		t.Errorf("Claim missing = %v, want ErrNotFound", err)
	}

	item := registerItem(t, s, "s3://reels/a.mp4", testBase)
	token, _, _ := s.Claim(ctx, item.ID, testBase)
	attempt := AttemptRecord{Number: 1, StartedAt: testBase, EndedAt: testBase, Error: "boom", ErrorKind: "validation"}
	if err := s.MarkFailed(ctx, item.ID, token, attempt, testBase); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	if _, _, err := s.Claim(ctx, item.ID, testBase.Add(time.Hour)); !errors.Is(err, ErrTerminal) {
		t.Errorf("Claim terminal = %v, want ErrTerminal", err)
	}
}

func TestStaleClaimTakeover(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	oldToken, _, err := s.Claim(ctx, item.ID, testBase)
	if err != nil {
		t.Fatalf("Claim: %v", err)
	}

	// Past the claim timeout the record is reclaimable.
	later := testBase.Add(11 * time.Minute)
	if ids, _ := s.ListStale(ctx, later); len(ids) != 1 || ids[0] != item.ID {
		t.Fatalf("ListStale = %v, want [%s]", ids, item.ID)
	}
	newToken, rec, err := s.Claim(ctx, item.ID, later)
	if err != nil {
		t.Fatalf("takeover Claim: %v", err)
	}
	if newToken == oldToken {
		t.Error("takeover reused the old claim token")
	}
	if rec.AttemptCount != 2 {
		t.Errorf("attemptCount after takeover = %d, want 2", rec.AttemptCount)
	}

	// The old token is dead: every token-gated write must be rejected.
	if err := s.Transition(ctx, item.ID, oldToken, StatusTransforming, later); !errors.Is(err, ErrStaleClaim) {
		t.Errorf("Transition with old token = %v, want ErrStaleClaim", err)
	}
	if err := s.MarkPublished(ctx, item.ID, oldToken, "asset-1", "https://ig/p/1", later); !errors.Is(err, ErrStaleClaim) {
		t.Errorf("MarkPublished with old token = %v, want ErrStaleClaim", err)
	}
}

func TestMarkPublishedIsIdempotent(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	token, _, _ := s.Claim(ctx, item.ID, testBase)
	if err := s.Transition(ctx, item.ID, token, StatusTransforming, testBase); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.Transition(ctx, item.ID, token, StatusPublishing, testBase); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.MarkPublished(ctx, item.ID, token, "asset-1", "https://ig/p/1", testBase); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	// Confirmation retry with the same token and asset id succeeds silently.
	if err := s.MarkPublished(ctx, item.ID, token, "asset-1", "https://ig/p/1", testBase.Add(time.Second)); err != nil {
		t.Errorf("repeat MarkPublished = %v, want nil", err)
	}
	rec, _ := s.Get(ctx, item.ID)
	if rec.Status != StatusPublished || rec.PublishedAssetID != "asset-1" {
		t.Errorf("record = %s/%s, want published/asset-1", rec.Status, rec.PublishedAssetID)
	}

	// A different token must not re-publish.
	if err := s.MarkPublished(ctx, item.ID, "other-token", "asset-2", "", testBase); !errors.Is(err, ErrStaleClaim) {
		t.Errorf("MarkPublished other token = %v, want ErrStaleClaim", err)
	}
	rec, _ = s.Get(ctx, item.ID)
	if rec.PublishedAssetID != "asset-1" {
		t.Errorf("publishedAssetId changed to %s", rec.PublishedAssetID)
	}
}

func TestRescheduleRecordsAttemptAndReopens(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	token, _, _ := s.Claim(ctx, item.ID, testBase)
	next := testBase.Add(30 * time.Second)
	attempt := AttemptRecord{
		Number:    1,
		StartedAt: testBase,
		EndedAt:   testBase.Add(2 * time.Second),
		Error:     "publish: 500",
		ErrorKind: "transient_network",
	}
	if err := s.Reschedule(ctx, item.ID, token, next, attempt); err != nil {
		t.Fatalf("Reschedule: %v", err)
	}

	rec, _ := s.Get(ctx, item.ID)
	if rec.Status != StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if !rec.ScheduledAt.Equal(next) {
		t.Errorf("scheduledAt = %s, want %s", rec.ScheduledAt, next)
	}
	if len(rec.Attempts) != 1 || rec.Attempts[0].Error != "publish: 500" {
		t.Errorf("attempts = %+v, want one entry with error", rec.Attempts)
	}

	// Not due before the backoff deadline, due at it.
	if ids, _ := s.ListDue(ctx, next.Add(-time.Second)); len(ids) != 0 {
		t.Errorf("ListDue before deadline = %v, want empty", ids)
	}
	if ids, _ := s.ListDue(ctx, next); len(ids) != 1 {
		t.Errorf("ListDue at deadline = %v, want one", ids)
	}

	// The released token is no longer usable.
	if err := s.Transition(ctx, item.ID, token, StatusTransforming, next); !errors.Is(err, ErrStaleClaim) {
		t.Errorf("Transition after Reschedule = %v, want ErrStaleClaim", err)
	}
}

func TestListDueOrdering(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	// b is scheduled earlier than a; c shares a's time so the id breaks the tie.
	a := registerItem(t, s, "s3://reels/a.mp4", testBase)
	b := registerItem(t, s, "s3://reels/b.mp4", testBase.Add(-time.Hour))
	c := registerItem(t, s, "s3://reels/c.mp4", testBase)
	registerItem(t, s, "s3://reels/future.mp4", testBase.Add(time.Hour))

	ids, err := s.ListDue(ctx, testBase)
	if err != nil {
		t.Fatalf("ListDue: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("ListDue returned %d ids, want 3", len(ids))
	}
	if ids[0] != b.ID {
		t.Errorf("ids[0] = %s, want earliest %s", ids[0], b.ID)
	}
	first, second := a.ID, c.ID
	if second < first {
		first, second = second, first
	}
	if ids[1] != first || ids[2] != second {
		t.Errorf("tie-break order = %v, want [%s %s]", ids[1:], first, second)
	}
}

func TestListByStatus(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()

	a := registerItem(t, s, "s3://reels/a.mp4", testBase)
	registerItem(t, s, "s3://reels/b.mp4", testBase)

	token, _, _ := s.Claim(ctx, a.ID, testBase)
	attempt := AttemptRecord{Number: 1, StartedAt: testBase, EndedAt: testBase, Error: "bad ref", ErrorKind: "validation"}
	if err := s.MarkFailed(ctx, a.ID, token, attempt, testBase); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	failed, err := s.ListByStatus(ctx, StatusFailed, 0)
	if err != nil {
		t.Fatalf("ListByStatus: %v", err)
	}
	if len(failed) != 1 || failed[0].Item.ID != a.ID {
		t.Errorf("failed = %d records, want the failed job", len(failed))
	}
	if failed[0].LastErrorKind != "validation" {
		t.Errorf("lastErrorKind = %s, want validation", failed[0].LastErrorKind)
	}

	pending, _ := s.ListByStatus(ctx, StatusPending, 0)
	if len(pending) != 1 {
		t.Errorf("pending = %d records, want 1", len(pending))
	}
}

func TestRequeueReopensFailedJob(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	if err := s.Requeue(ctx, item.ID, testBase); err == nil {
		t.Error("Requeue on a pending job succeeded, want error")
	}

	token, _, _ := s.Claim(ctx, item.ID, testBase)
	attempt := AttemptRecord{Number: 1, StartedAt: testBase, EndedAt: testBase, Error: "bad ref", ErrorKind: "validation"}
	if err := s.MarkFailed(ctx, item.ID, token, attempt, testBase); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	at := testBase.Add(time.Hour)
	if err := s.Requeue(ctx, item.ID, at); err != nil {
		t.Fatalf("Requeue: %v", err)
	}
	rec, _ := s.Get(ctx, item.ID)
	if rec.Status != StatusPending {
		t.Errorf("status = %s, want pending", rec.Status)
	}
	if !rec.ScheduledAt.Equal(at) {
		t.Errorf("scheduledAt = %s, want %s", rec.ScheduledAt, at)
	}
	if rec.AttemptCount != 1 {
		t.Errorf("attemptCount = %d, want 1 (history is kept)", rec.AttemptCount)
	}

	if err := s.Requeue(ctx, "reel-nope", at); !errors.Is(err, ErrNotFound) {
		t.Errorf("Requeue missing = %v, want ErrNotFound", err)
	}
}

func TestRequeueRejectsPublished(t *testing.T) {
	s := newTestStore()
	ctx := context.Background()
	item := registerItem(t, s, "s3://reels/a.mp4", testBase)

	token, _, _ := s.Claim(ctx, item.ID, testBase)
	if err := s.Transition(ctx, item.ID, token, StatusTransforming, testBase); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.Transition(ctx, item.ID, token, StatusPublishing, testBase); err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if err := s.MarkPublished(ctx, item.ID, token, "asset-1", "", testBase); err != nil {
		t.Fatalf("MarkPublished: %v", err)
	}

	if err := s.Requeue(ctx, item.ID, testBase); !errors.Is(err, ErrTerminal) {
		t.Errorf("Requeue published = %v, want ErrTerminal", err)
	}
}
