package app

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
)

func TestSweepRemovesEmptyRounds(t *testing.T) {
	counts := map[string]int64{"empty": 0, "busy": 2}
	deleted := make(map[string]bool)

	rounds := &mockRounds{
		listIDsFn: func(_ context.Context) ([]string, error) {
			return []string{"empty", "busy"}, nil
		},
		getFn: func(_ context.Context, roundID string) (*domain.Round, error) {
			return &domain.Round{ID: roundID, MemberCount: counts[roundID]}, nil
		},
		deleteFn: func(_ context.Context, roundID string) error {
			deleted[roundID] = true
			return nil
		},
	}
	pool := &mockPool{
		countByRoundFn: func(_ context.Context) (map[string]int64, error) {
			return map[string]int64{}, nil
		},
	}
	svc, _ := newTestService(&mockDirectory{}, rounds, pool)
	sweeper := NewSweeper(svc, rounds, clockwork.NewFakeClock(), time.Minute)

	sweeper.Sweep(context.Background())

	assert.True(t, deleted["empty"])
	assert.False(t, deleted["busy"])
}

func TestSweepRecoversQuestionOnlyOrphan(t *testing.T) {
	// A cascade that died between deleting the round row and its questions
	// leaves rows only the question scan can see.
	var roundDeleted, questionsDeleted bool
	rounds := &mockRounds{
		listIDsFn: func(_ context.Context) ([]string, error) {
			return nil, nil
		},
		getFn: func(_ context.Context, _ string) (*domain.Round, error) {
			return nil, domain.ErrRoundNotFound
		},
		deleteFn: func(_ context.Context, roundID string) error {
			assert.Equal(t, "ghost", roundID)
			roundDeleted = true
			return nil
		},
	}
	pool := &mockPool{
		countByRoundFn: func(_ context.Context) (map[string]int64, error) {
			return map[string]int64{"ghost": 4}, nil
		},
		deleteAllFn: func(_ context.Context, roundID string) (int, error) {
			assert.Equal(t, "ghost", roundID)
			questionsDeleted = true
			return 4, nil
		},
	}
	svc, _ := newTestService(&mockDirectory{}, rounds, pool)
	sweeper := NewSweeper(svc, rounds, clockwork.NewFakeClock(), time.Minute)

	sweeper.Sweep(context.Background())

	assert.True(t, questionsDeleted)
	assert.True(t, roundDeleted)
}

func TestSweeperRunsOnTicks(t *testing.T) {
	listed := make(chan struct{}, 4)
	rounds := &mockRounds{
		listIDsFn: func(_ context.Context) ([]string, error) {
			listed <- struct{}{}
			return nil, nil
		},
	}
	svc, _ := newTestService(&mockDirectory{}, rounds, &mockPool{})

	clock := clockwork.NewFakeClock()
	sweeper := NewSweeper(svc, rounds, clock, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sweeper.Run(ctx)

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Minute)

	select {
	case <-listed:
	case <-time.After(time.Second):
		t.Fatal("sweep did not run after a tick")
	}
}
