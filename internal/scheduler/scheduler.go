// Package scheduler turns clock ticks into job executions. Each tick
// lists stale in-flight jobs and due pending jobs and runs them in
// deterministic order through the shared worker slot.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fpang/reel-scheduler/internal/metrics"
	"github.com/fpang/reel-scheduler/internal/store"
	"github.com/fpang/reel-scheduler/internal/worker"
)

// Runner executes one job attempt. Implemented by executor.Executor.
type Runner interface {
	Execute(ctx context.Context, id string) error
}

// Scheduler lists eligible jobs on each tick and hands them to the runner.
type Scheduler struct {
	store  store.JobStore
	runner Runner
	slot   *worker.Slot
	clock  func() time.Time
}

// New creates a Scheduler sharing the given worker slot.
func New(jobs store.JobStore, runner Runner, slot *worker.Slot) *Scheduler {
	return &Scheduler{
		store:  jobs,
		runner: runner,
		slot:   slot,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the tick clock.
func (s *Scheduler) WithClock(clock func() time.Time) *Scheduler {
	s.clock = clock
	return s
}

// TickReport summarizes one tick.
type TickReport struct {
	Due      int
	Stale    int
	Executed int
	Skipped  bool // slot was busy, nothing ran
}

// Tick processes everything currently eligible: stale in-flight jobs
// first (crash recovery), then due pending jobs in scheduled order. Jobs
// run one at a time; a tick that overlaps a running one is skipped
// entirely and the work waits for the next tick.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	now := s.clock()

	stale, err := s.store.ListStale(ctx, now)
	if err != nil {
		return TickReport{}, fmt.Errorf("tick: %w", err)
	}
	due, err := s.store.ListDue(ctx, now)
	if err != nil {
		return TickReport{}, fmt.Errorf("tick: %w", err)
	}

	report := TickReport{Due: len(due), Stale: len(stale)}
	if len(stale) == 0 && len(due) == 0 {
		return report, nil
	}

	ids := dedupe(append(stale, due...))
	err = s.slot.Do(func() {
		for _, id := range ids {
			if ctx.Err() != nil {
				log.Warn().Err(ctx.Err()).Msg("Tick interrupted")
				return
			}
			if err := s.runner.Execute(ctx, id); err != nil {
				// One broken job must not starve the rest of the tick.
				log.Error().Err(err).Str("jobId", id).Msg("Job execution error")
				continue
			}
			report.Executed++
		}
	})
	if errors.Is(err, worker.ErrBusy) {
		report.Skipped = true
		log.Info().Int("due", len(due)).Int("stale", len(stale)).Msg("Tick skipped, previous tick still running")
		return report, nil
	}

	metrics.New(metrics.Namespace).
		Metric("TickDueJobs", float64(report.Due), metrics.UnitCount).
		Metric("TickStaleJobs", float64(report.Stale), metrics.UnitCount).
		Metric("TickExecuted", float64(report.Executed), metrics.UnitCount).
		Flush()

	log.Info().
		Int("due", report.Due).
		Int("stale", report.Stale).
		Int("executed", report.Executed).
		Msg("Tick complete")
	return report, nil
}

// dedupe preserves first-occurrence order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
