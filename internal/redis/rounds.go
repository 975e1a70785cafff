package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// RoundRepo owns the per-round counter row. Counters are only ever moved with
// HINCRBY so concurrent joins, leaves and submissions never lose updates to a
// read-modify-write.
type RoundRepo struct {
	rdb *goredis.Client
}

var _ domain.RoundRepository = (*RoundRepo)(nil)

func NewRoundRepo(rdb *goredis.Client) *RoundRepo {
	return &RoundRepo{rdb: rdb}
}

// EnsureRound initializes the round row if absent: phase forming, both
// counters zero. Safe to call on every join.
func (r *RoundRepo) EnsureRound(ctx context.Context, roundID string) error {
	rk := roundKey(roundID)

	pipe := r.rdb.Pipeline()
	pipe.HSetNX(ctx, rk, fieldPhase, string(domain.PhaseForming))
	pipe.HSetNX(ctx, rk, fieldMemberCount, "0")
	pipe.HSetNX(ctx, rk, fieldPendingCount, "0")
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to init round row: %w", err)
	}
	return nil
}

func (r *RoundRepo) Get(ctx context.Context, roundID string) (*domain.Round, error) {
	fields, err := r.rdb.HGetAll(ctx, roundKey(roundID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read round: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrRoundNotFound
	}

	round := &domain.Round{
		ID:       roundID,
		Phase:    domain.Phase(fields[fieldPhase]),
		Answerer: fields[fieldAnswerer],
	}
	if round.MemberCount, err = parseCount(fields[fieldMemberCount]); err != nil {
		return nil, fmt.Errorf("bad member count for round %s: %w", roundID, err)
	}
	if round.PendingQuestionCount, err = parseCount(fields[fieldPendingCount]); err != nil {
		return nil, fmt.Errorf("bad pending count for round %s: %w", roundID, err)
	}
	return round, nil
}

// IncrMembers atomically moves the member counter and returns the new value.
func (r *RoundRepo) IncrMembers(ctx context.Context, roundID string, delta int64) (int64, error) {
	return r.rdb.HIncrBy(ctx, roundKey(roundID), fieldMemberCount, delta).Result()
}

// SetCounts overwrites both counters. Reconciler repair path only.
func (r *RoundRepo) SetCounts(ctx context.Context, roundID string, members, pending int64) error {
	return r.rdb.HSet(ctx, roundKey(roundID),
		fieldMemberCount, strconv.FormatInt(members, 10),
		fieldPendingCount, strconv.FormatInt(pending, 10),
	).Err()
}

func (r *RoundRepo) SetAnswerer(ctx context.Context, roundID, answerer string) error {
	return r.rdb.HSet(ctx, roundKey(roundID), fieldAnswerer, answerer).Err()
}

func (r *RoundRepo) SetPhase(ctx context.Context, roundID string, phase domain.Phase) error {
	return r.rdb.HSet(ctx, roundKey(roundID), fieldPhase, string(phase)).Err()
}

// ClaimStart atomically flips forming -> answering and records the answerer.
// Returns false if another start already claimed the transition.
func (r *RoundRepo) ClaimStart(ctx context.Context, roundID, answerer string) (bool, error) {
	result, err := claimStartScript.Run(ctx, r.rdb, []string{roundKey(roundID)}, answerer).Int()
	if err != nil {
		return false, fmt.Errorf("claim start script failed: %w", err)
	}
	return result == 1, nil
}

// Delete removes the round row. No-op if already gone.
func (r *RoundRepo) Delete(ctx context.Context, roundID string) error {
	return r.rdb.Del(ctx, roundKey(roundID)).Err()
}

// ListIDs scans all round rows. Reconciler/sweeper path only.
func (r *RoundRepo) ListIDs(ctx context.Context) ([]string, error) {
	var ids []string
	var cursor uint64

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("round scan cancelled: %w", ctx.Err())
		default:
		}

		keys, nextCursor, err := r.rdb.Scan(ctx, cursor, "round:*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("round scan failed: %w", err)
		}
		for _, key := range keys {
			ids = append(ids, strings.TrimPrefix(key, "round:"))
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return ids, nil
}

func parseCount(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseInt(s, 10, 64)
}
