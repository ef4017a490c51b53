package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fpang/reel-scheduler/internal/content"
)

// MemoryStore is an in-process JobStore used by local runs (reelctl
// --dry-run) and tests. It enforces the same token-gated transition rules
// as DynamoStore, just under a mutex instead of condition expressions.
type MemoryStore struct {
	mu           sync.Mutex
	jobs         map[string]*JobRecord
	claimTimeout time.Duration
}

var _ JobStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore with the given claim timeout.
func NewMemoryStore(claimTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		jobs:         make(map[string]*JobRecord),
		claimTimeout: claimTimeout,
	}
}

// clone returns a copy so callers never share the stored record.
func clone(rec *JobRecord) *JobRecord {
	cp := *rec
	cp.Attempts = append([]AttemptRecord(nil), rec.Attempts...)
	if rec.Item.Metadata != nil {
		cp.Item.Metadata = make(map[string]string, len(rec.Item.Metadata))
		for k, v := range rec.Item.Metadata {
			cp.Item.Metadata[k] = v
		}
	}
	return &cp
}

func (s *MemoryStore) Register(_ context.Context, item *content.Item) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.jobs[item.ID]; ok {
		return clone(existing), nil
	}
	rec := &JobRecord{
		Item:        *item,
		Status:      StatusPending,
		ScheduledAt: item.ScheduledAt,
		UpdatedAt:   time.Now().UTC(),
	}
	s.jobs[item.ID] = rec
	return clone(rec), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) ListDue(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*JobRecord
	for _, rec := range s.jobs {
		if rec.Status == StatusPending && !rec.ScheduledAt.After(now) {
			due = append(due, rec)
		}
	}
	return sortedIDs(due), nil
}

func (s *MemoryStore) ListStale(_ context.Context, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.claimTimeout)
	var stale []*JobRecord
	for _, rec := range s.jobs {
		if rec.Status.InFlight() && !rec.UpdatedAt.After(cutoff) {
			stale = append(stale, rec)
		}
	}
	return sortedIDs(stale), nil
}

func sortedIDs(recs []*JobRecord) []string {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].ScheduledAt.Equal(recs[j].ScheduledAt) {
			return recs[i].ScheduledAt.Before(recs[j].ScheduledAt)
		}
		return recs[i].Item.ID < recs[j].Item.ID
	})
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		ids = append(ids, rec.Item.ID)
	}
	return ids
}

func (s *MemoryStore) Claim(_ context.Context, id string, now time.Time) (string, *JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return "", nil, ErrNotFound
	}
	if rec.Status.Terminal() {
		return "", nil, ErrTerminal
	}
	if rec.Status != StatusPending {
		// In flight: only a stale claim may be taken over.
		if rec.UpdatedAt.After(now.Add(-s.claimTimeout)) {
			return "", nil, ErrAlreadyClaimed
		}
	}

	token := uuid.NewString()
	rec.Status = StatusClaimed
	rec.ClaimToken = token
	rec.AttemptCount++
	rec.UpdatedAt = now
	return token, clone(rec), nil
}

// checkToken validates the caller still owns an in-flight record.
func (s *MemoryStore) checkToken(id, token string) (*JobRecord, error) {
	rec, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.ClaimToken != token || !rec.Status.InFlight() {
		return nil, ErrStaleClaim
	}
	return rec, nil
}

func (s *MemoryStore) Transition(_ context.Context, id, token string, newStatus Status, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.checkToken(id, token)
	if err != nil {
		return err
	}
	rec.Status = newStatus
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) Reschedule(_ context.Context, id, token string, at time.Time, attempt AttemptRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.checkToken(id, token)
	if err != nil {
		return err
	}
	rec.Status = StatusPending
	rec.ScheduledAt = at
	rec.Item.ScheduledAt = at
	rec.LastError = attempt.Error
	rec.LastErrorKind = attempt.ErrorKind
	rec.ClaimToken = ""
	rec.UpdatedAt = attempt.EndedAt
	rec.Attempts = append(rec.Attempts, attempt)
	return nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id, token string, attempt AttemptRecord, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.checkToken(id, token)
	if err != nil {
		return err
	}
	rec.Status = StatusFailed
	rec.LastError = attempt.Error
	rec.LastErrorKind = attempt.ErrorKind
	rec.ClaimToken = ""
	rec.UpdatedAt = now
	rec.Attempts = append(rec.Attempts, attempt)
	return nil
}

func (s *MemoryStore) MarkPublished(_ context.Context, id, token, publishedAssetID, permalink string, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	// Repeat confirmation with the same token and asset id is absorbed.
	if rec.Status == StatusPublished {
		if rec.ClaimToken == token && rec.PublishedAssetID == publishedAssetID {
			return nil
		}
		return ErrStaleClaim
	}
	if rec.ClaimToken != token || rec.Status != StatusPublishing {
		return ErrStaleClaim
	}
	rec.Status = StatusPublished
	rec.PublishedAssetID = publishedAssetID
	rec.Permalink = permalink
	rec.UpdatedAt = now
	return nil
}

func (s *MemoryStore) ListByStatus(_ context.Context, status Status, limit int) ([]*JobRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var recs []*JobRecord
	for _, rec := range s.jobs {
		if rec.Status == status {
			recs = append(recs, clone(rec))
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].UpdatedAt.After(recs[j].UpdatedAt) })
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs, nil
}

// Requeue reopens a Failed record, mirroring DynamoStore.Requeue.
func (s *MemoryStore) Requeue(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.jobs[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Status == StatusPublished {
		return ErrTerminal
	}
	if rec.Status != StatusFailed {
		return fmt.Errorf("requeue %s: job is not failed", id)
	}
	rec.Status = StatusPending
	rec.ScheduledAt = at
	rec.ClaimToken = ""
	rec.UpdatedAt = time.Now()
	return nil
}
