package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Pool is the Redis-backed question pool. One hash row per question keyed by
// the (round, question) pair; the pending counter on the round row moves in
// the same atomic step as the row mutation wherever possible.
type Pool struct {
	rdb *goredis.Client
}

var _ domain.QuestionPool = (*Pool)(nil)

func NewPool(rdb *goredis.Client) *Pool {
	return &Pool{rdb: rdb}
}

// Add stores the question and increments the round's pending counter,
// returning the new pending count.
func (p *Pool) Add(ctx context.Context, q domain.Question) (int64, error) {
	pipe := p.rdb.TxPipeline()
	pipe.HSet(ctx, questionKey(q.RoundID, q.ID), map[string]any{
		fieldText:     q.Text,
		fieldAuthorID: q.AuthorID,
	})
	incr := pipe.HIncrBy(ctx, roundKey(q.RoundID), fieldPendingCount, 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to store question: %w", err)
	}
	return incr.Val(), nil
}

func (p *Pool) Get(ctx context.Context, roundID, questionID string) (*domain.Question, error) {
	fields, err := p.rdb.HGetAll(ctx, questionKey(roundID, questionID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read question: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrQuestionNotFound
	}
	return &domain.Question{
		RoundID:  roundID,
		ID:       questionID,
		Text:     fields[fieldText],
		AuthorID: fields[fieldAuthorID],
	}, nil
}

// Update rewrites the question text. Fails with ErrQuestionNotFound rather
// than resurrecting a consumed question.
func (p *Pool) Update(ctx context.Context, roundID, questionID, text string) error {
	qk := questionKey(roundID, questionID)
	exists, err := p.rdb.Exists(ctx, qk).Result()
	if err != nil {
		return fmt.Errorf("failed to check question existence: %w", err)
	}
	if exists == 0 {
		return domain.ErrQuestionNotFound
	}
	return p.rdb.HSet(ctx, qk, fieldText, text).Err()
}

func (p *Pool) List(ctx context.Context, roundID string) ([]domain.Question, error) {
	keys, err := p.scanKeys(ctx, questionPattern(roundID))
	if err != nil {
		return nil, err
	}

	questions := make([]domain.Question, 0, len(keys))
	for _, key := range keys {
		fields, err := p.rdb.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read question row %s: %w", key, err)
		}
		if len(fields) == 0 {
			// Consumed between SCAN and HGETALL.
			continue
		}
		rid, qid, ok := splitQuestionKey(key)
		if !ok {
			continue
		}
		questions = append(questions, domain.Question{
			RoundID:  rid,
			ID:       qid,
			Text:     fields[fieldText],
			AuthorID: fields[fieldAuthorID],
		})
	}
	return questions, nil
}

// Sample returns up to k question ids chosen uniformly without replacement.
// An empty pool yields an empty slice.
func (p *Pool) Sample(ctx context.Context, roundID string, k int) ([]string, error) {
	keys, err := p.scanKeys(ctx, questionPattern(roundID))
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		if _, qid, ok := splitQuestionKey(key); ok {
			ids = append(ids, qid)
		}
	}

	if len(ids) <= k {
		return ids, nil
	}

	rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
	return ids[:k], nil
}

// Consume atomically removes the question and decrements the round's pending
// counter. Exactly one of two racing callers gets the question; the other gets
// ErrQuestionNotFound and the counter is decremented only once.
func (p *Pool) Consume(ctx context.Context, roundID, questionID string) (*domain.Question, int64, error) {
	keys := []string{questionKey(roundID, questionID), roundKey(roundID)}
	result, err := consumeQuestionScript.Run(ctx, p.rdb, keys).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, 0, domain.ErrQuestionNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("consume question script failed: %w", err)
	}

	reply, ok := result.([]any)
	if !ok || len(reply) != 3 {
		return nil, 0, fmt.Errorf("unexpected consume script reply: %v", result)
	}
	text, _ := reply[0].(string)
	author, _ := reply[1].(string)
	pending, _ := reply[2].(int64)

	q := &domain.Question{
		RoundID:  roundID,
		ID:       questionID,
		Text:     text,
		AuthorID: author,
	}
	return q, pending, nil
}

// DeleteAll removes every question row of a round. Idempotent: rows already
// gone are skipped, so the orphan cascade can be re-run safely.
func (p *Pool) DeleteAll(ctx context.Context, roundID string) (int, error) {
	keys, err := p.scanKeys(ctx, questionPattern(roundID))
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, key := range keys {
		n, err := p.rdb.Del(ctx, key).Result()
		if err != nil {
			return deleted, fmt.Errorf("failed to delete question row %s: %w", key, err)
		}
		deleted += int(n)
	}
	return deleted, nil
}

// CountByRound returns the ground-truth pending count per round via a full
// scan. Reconciler path only.
func (p *Pool) CountByRound(ctx context.Context) (map[string]int64, error) {
	keys, err := p.scanKeys(ctx, "question:*")
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, key := range keys {
		if rid, _, ok := splitQuestionKey(key); ok {
			counts[rid]++
		}
	}
	return counts, nil
}

func (p *Pool) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("question scan cancelled: %w", ctx.Err())
		default:
		}

		batch, nextCursor, err := p.rdb.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("question scan failed: %w", err)
		}
		keys = append(keys, uniqueKeys(seen, batch)...)

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
