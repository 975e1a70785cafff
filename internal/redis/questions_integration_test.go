package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
)

func testQuestion(roundID, id, text string) domain.Question {
	return domain.Question{RoundID: roundID, ID: id, Text: text, AuthorID: "conn-" + id}
}

func TestPoolAddIncrementsPending(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	rounds := NewRoundRepo(client)
	ctx := context.Background()

	require.NoError(t, rounds.EnsureRound(ctx, "round-1"))

	pending, err := pool.Add(ctx, testQuestion("round-1", "q1", "first"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	pending, err = pool.Add(ctx, testQuestion("round-1", "q2", "second"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	round, err := rounds.Get(ctx, "round-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), round.PendingQuestionCount)
}

func TestPoolGetAndUpdate(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	ctx := context.Background()

	_, err := pool.Add(ctx, testQuestion("round-1", "q1", "original"))
	require.NoError(t, err)

	q, err := pool.Get(ctx, "round-1", "q1")
	require.NoError(t, err)
	assert.Equal(t, "original", q.Text)
	assert.Equal(t, "conn-q1", q.AuthorID)

	require.NoError(t, pool.Update(ctx, "round-1", "q1", "edited"))

	q, err = pool.Get(ctx, "round-1", "q1")
	require.NoError(t, err)
	assert.Equal(t, "edited", q.Text)
}

func TestPoolUpdateMissingQuestion(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)

	err := pool.Update(context.Background(), "round-1", "nope", "text")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)

	// Update must not have created the row.
	_, err = pool.Get(context.Background(), "round-1", "nope")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestPoolListScopedToRound(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	ctx := context.Background()

	_, err := pool.Add(ctx, testQuestion("round-1", "q1", "a"))
	require.NoError(t, err)
	_, err = pool.Add(ctx, testQuestion("round-1", "q2", "b"))
	require.NoError(t, err)
	_, err = pool.Add(ctx, testQuestion("round-2", "q3", "c"))
	require.NoError(t, err)

	questions, err := pool.List(ctx, "round-1")
	require.NoError(t, err)
	require.Len(t, questions, 2)
	for _, q := range questions {
		assert.Equal(t, "round-1", q.RoundID)
	}
}

func TestPoolSampleBounds(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	ctx := context.Background()

	// Empty pool yields an empty sample.
	sample, err := pool.Sample(ctx, "round-1", 5)
	require.NoError(t, err)
	assert.Empty(t, sample)

	for i := range 8 {
		_, err := pool.Add(ctx, testQuestion("round-1", fmt.Sprintf("q%d", i), "text"))
		require.NoError(t, err)
	}

	// Fewer than k questions: all of them come back.
	sample, err = pool.Sample(ctx, "round-1", 10)
	require.NoError(t, err)
	assert.Len(t, sample, 8)

	// More than k: exactly k distinct ids.
	sample, err = pool.Sample(ctx, "round-1", 5)
	require.NoError(t, err)
	assert.Len(t, sample, 5)

	seen := make(map[string]bool)
	for _, id := range sample {
		assert.False(t, seen[id], "sample contains duplicate id %s", id)
		seen[id] = true
	}
}

func TestPoolConsumeRemovesAndDecrements(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	rounds := NewRoundRepo(client)
	ctx := context.Background()

	require.NoError(t, rounds.EnsureRound(ctx, "round-1"))
	_, err := pool.Add(ctx, testQuestion("round-1", "q1", "the text"))
	require.NoError(t, err)

	q, pending, err := pool.Consume(ctx, "round-1", "q1")
	require.NoError(t, err)
	assert.Equal(t, "the text", q.Text)
	assert.Equal(t, "conn-q1", q.AuthorID)
	assert.Zero(t, pending)

	_, err = pool.Get(ctx, "round-1", "q1")
	assert.ErrorIs(t, err, domain.ErrQuestionNotFound)
}

func TestPoolConsumeConcurrentExactlyOnce(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	rounds := NewRoundRepo(client)
	ctx := context.Background()

	require.NoError(t, rounds.EnsureRound(ctx, "round-1"))
	_, err := pool.Add(ctx, testQuestion("round-1", "q1", "contested"))
	require.NoError(t, err)

	const callers = 10
	var wins, misses atomic.Int64
	var wg sync.WaitGroup
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := pool.Consume(ctx, "round-1", "q1")
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, domain.ErrQuestionNotFound):
				misses.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), wins.Load())
	assert.Equal(t, int64(callers-1), misses.Load())

	// The losers must not have decremented the counter.
	round, err := rounds.Get(ctx, "round-1")
	require.NoError(t, err)
	assert.Zero(t, round.PendingQuestionCount)
}

func TestPoolDeleteAllIsIdempotent(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	ctx := context.Background()

	for i := range 3 {
		_, err := pool.Add(ctx, testQuestion("round-1", fmt.Sprintf("q%d", i), "text"))
		require.NoError(t, err)
	}

	deleted, err := pool.DeleteAll(ctx, "round-1")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	deleted, err = pool.DeleteAll(ctx, "round-1")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestPoolCountByRound(t *testing.T) {
	client := setupTestClient(t)
	pool := NewPool(client)
	ctx := context.Background()

	_, err := pool.Add(ctx, testQuestion("round-1", "q1", "a"))
	require.NoError(t, err)
	_, err = pool.Add(ctx, testQuestion("round-1", "q2", "b"))
	require.NoError(t, err)
	_, err = pool.Add(ctx, testQuestion("round-2", "q3", "c"))
	require.NoError(t, err)

	counts, err := pool.CountByRound(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"round-1": 2, "round-2": 1}, counts)
}
