package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
)

// Reconciler recomputes the per-round counters from ground truth and repairs
// drift. The counters are maintained incrementally by the hot path; drift
// appears when a process dies between a store mutation and its counter
// update. Intended to run offline or from a cron, not on the hot path.
type Reconciler struct {
	directory domain.ConnectionDirectory
	rounds    domain.RoundRepository
	pool      domain.QuestionPool
	DryRun    bool
}

func NewReconciler(directory domain.ConnectionDirectory, rounds domain.RoundRepository, pool domain.QuestionPool) *Reconciler {
	return &Reconciler{
		directory: directory,
		rounds:    rounds,
		pool:      pool,
	}
}

// Drift describes one counter mismatch found during a run.
type Drift struct {
	RoundID string
	Field   string
	Stored  int64
	Actual  int64
}

// Report summarises one reconciliation run.
type Report struct {
	RoundsChecked int
	Drifts        []Drift
	Repaired      int
	Removed       int
}

// Run scans every round, compares stored counters against recounted ground
// truth and writes back the recounts where they differ. Rounds that exist
// only in connection or question rows get their counter row recreated.
func (r *Reconciler) Run(ctx context.Context) (*Report, error) {
	memberCounts, err := r.directory.ListRoundIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	questionCounts, err := r.pool.CountByRound(ctx)
	if err != nil {
		return nil, fmt.Errorf("count questions: %w", err)
	}
	roundIDs, err := r.rounds.ListIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rounds: %w", err)
	}

	seen := make(map[string]bool, len(roundIDs))
	for _, id := range roundIDs {
		seen[id] = true
	}
	for id := range memberCounts {
		if !seen[id] {
			roundIDs = append(roundIDs, id)
			seen[id] = true
		}
	}
	for id := range questionCounts {
		if !seen[id] {
			roundIDs = append(roundIDs, id)
			seen[id] = true
		}
	}

	report := &Report{}
	for _, roundID := range roundIDs {
		if err := r.reconcileRound(ctx, roundID, memberCounts[roundID], questionCounts[roundID], report); err != nil {
			return nil, fmt.Errorf("round %s: %w", roundID, err)
		}
	}
	return report, nil
}

func (r *Reconciler) reconcileRound(ctx context.Context, roundID string, members, pending int64, report *Report) error {
	report.RoundsChecked++

	var storedMembers, storedPending int64
	round, err := r.rounds.Get(ctx, roundID)
	switch {
	case err == nil:
		storedMembers = round.MemberCount
		storedPending = round.PendingQuestionCount
	case errors.Is(err, domain.ErrRoundNotFound):
		// counter row missing but connections or questions reference the
		// round; treat both stored counters as zero and recreate below
	default:
		return err
	}

	// No live members means the round should not exist at all; run the same
	// cascade the last disconnect would have.
	if members == 0 {
		slog.Warn("orphaned round", "round_id", roundID, "pending_questions", pending)
		if r.DryRun {
			return nil
		}
		// Questions first, so a failure here leaves the round row behind as
		// the retrigger for the next run.
		removed, err := r.pool.DeleteAll(ctx, roundID)
		if err != nil {
			return fmt.Errorf("delete orphan questions: %w", err)
		}
		if err := r.rounds.Delete(ctx, roundID); err != nil {
			return fmt.Errorf("delete orphan round: %w", err)
		}
		metrics.OrphanRoundsCleaned.Inc()
		metrics.OrphanQuestionsCleaned.Add(float64(removed))
		report.Removed++
		slog.Info("orphaned round removed", "round_id", roundID, "questions_removed", removed)
		return nil
	}

	drifted := false
	if storedMembers != members {
		drifted = true
		metrics.CounterDriftDetected.WithLabelValues("member_count").Inc()
		report.Drifts = append(report.Drifts, Drift{RoundID: roundID, Field: "member_count", Stored: storedMembers, Actual: members})
		slog.Warn("member count drift", "round_id", roundID, "stored", storedMembers, "actual", members)
	}
	if storedPending != pending {
		drifted = true
		metrics.CounterDriftDetected.WithLabelValues("pending_question_count").Inc()
		report.Drifts = append(report.Drifts, Drift{RoundID: roundID, Field: "pending_question_count", Stored: storedPending, Actual: pending})
		slog.Warn("pending question count drift", "round_id", roundID, "stored", storedPending, "actual", pending)
	}
	if !drifted || r.DryRun {
		return nil
	}

	if err := r.rounds.SetCounts(ctx, roundID, members, pending); err != nil {
		return fmt.Errorf("repair counts: %w", err)
	}
	if storedMembers != members {
		metrics.CounterDriftFixed.WithLabelValues("member_count").Inc()
	}
	if storedPending != pending {
		metrics.CounterDriftFixed.WithLabelValues("pending_question_count").Inc()
	}
	report.Repaired++
	slog.Info("round counters repaired", "round_id", roundID, "member_count", members, "pending_question_count", pending)
	return nil
}
