package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
)

// Sweeper periodically removes rounds whose member count has reached zero
// without the cascade firing, along with their questions. That happens when
// the last Disconnect crashed between the decrement and the cleanup.
type Sweeper struct {
	service  *Service
	rounds   domain.RoundRepository
	clock    clockwork.Clock
	interval time.Duration
}

func NewSweeper(service *Service, rounds domain.RoundRepository, clock clockwork.Clock, interval time.Duration) *Sweeper {
	return &Sweeper{
		service:  service,
		rounds:   rounds,
		clock:    clock,
		interval: interval,
	}
}

// Run sweeps on the configured interval until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			s.Sweep(ctx)
		}
	}
}

// Sweep runs a single pass over all rounds.
func (s *Sweeper) Sweep(ctx context.Context) {
	metrics.OrphanSweepsTotal.Inc()

	ids, err := s.rounds.ListIDs(ctx)
	if err != nil {
		slog.Error("orphan sweep: listing rounds failed", "error", err)
		return
	}

	candidates := make(map[string]bool, len(ids))
	for _, id := range ids {
		candidates[id] = true
	}
	// Question rows can outlive their round row when a cascade died halfway;
	// those rounds never show up in the round scan.
	questionCounts, err := s.service.pool.CountByRound(ctx)
	if err != nil {
		slog.Error("orphan sweep: counting questions failed", "error", err)
	} else {
		for id := range questionCounts {
			candidates[id] = true
		}
	}

	for roundID := range candidates {
		round, err := s.rounds.Get(ctx, roundID)
		switch {
		case errors.Is(err, domain.ErrRoundNotFound):
			// question-only orphan, fall through to the cascade
		case err != nil:
			continue
		case round.MemberCount > 0:
			continue
		}
		slog.Info("orphan sweep: removing empty round", "round_id", roundID)
		s.service.cleanupRound(ctx, roundID)
	}
}
