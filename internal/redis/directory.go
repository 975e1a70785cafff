package redis

import (
	"context"
	"fmt"
	"strings"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	goredis "github.com/redis/go-redis/v9"
)

// Directory is the Redis-backed connection directory. One hash row per
// connection; member counters live on the round row and are updated by the
// RoundRepo, never derived here.
type Directory struct {
	rdb *goredis.Client
}

var _ domain.ConnectionDirectory = (*Directory)(nil)

func NewDirectory(rdb *goredis.Client) *Directory {
	return &Directory{rdb: rdb}
}

// Register creates the connection row with no round association. Idempotent:
// re-registering an existing connection is a no-op.
func (d *Directory) Register(ctx context.Context, connID string) error {
	return d.rdb.HSetNX(ctx, connectionKey(connID), fieldHasAnswered, "0").Err()
}

// Join records round membership and display name and resets the answered flag.
func (d *Directory) Join(ctx context.Context, connID, roundID, displayName string) error {
	return d.rdb.HSet(ctx, connectionKey(connID), map[string]any{
		fieldRoundID:     roundID,
		fieldDisplayName: displayName,
		fieldHasAnswered: "0",
	}).Err()
}

func (d *Directory) Get(ctx context.Context, connID string) (*domain.Connection, error) {
	fields, err := d.rdb.HGetAll(ctx, connectionKey(connID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read connection: %w", err)
	}
	if len(fields) == 0 {
		return nil, domain.ErrConnectionNotFound
	}
	return connectionFromFields(connID, fields), nil
}

// Delete removes the connection row. Deleting an absent row is a no-op so the
// lazy gone-cleanup path stays idempotent.
func (d *Directory) Delete(ctx context.Context, connID string) error {
	return d.rdb.Del(ctx, connectionKey(connID)).Err()
}

func (d *Directory) MarkAnswered(ctx context.Context, connID string) error {
	return d.rdb.HSet(ctx, connectionKey(connID), fieldHasAnswered, "1").Err()
}

// ResetAnswered clears the answered flag for every member of the round so the
// lobby can play again.
func (d *Directory) ResetAnswered(ctx context.Context, roundID string) error {
	members, err := d.ListMembers(ctx, roundID)
	if err != nil {
		return err
	}
	for _, m := range members {
		if err := d.rdb.HSet(ctx, connectionKey(m.ID), fieldHasAnswered, "0").Err(); err != nil {
			return fmt.Errorf("failed to reset answered flag: %w", err)
		}
	}
	return nil
}

func (d *Directory) ListMembers(ctx context.Context, roundID string) ([]domain.Connection, error) {
	return d.scanConnections(ctx, func(c domain.Connection) bool {
		return c.RoundID == roundID
	})
}

func (d *Directory) ListUnanswered(ctx context.Context, roundID string) ([]domain.Connection, error) {
	return d.scanConnections(ctx, func(c domain.Connection) bool {
		return c.RoundID == roundID && !c.HasAnswered
	})
}

// ListRoundIDs returns the ground-truth member count per round, computed by a
// full scan. Used by the reconciler, not the hot path.
func (d *Directory) ListRoundIDs(ctx context.Context) (map[string]int64, error) {
	counts := make(map[string]int64)
	all, err := d.scanConnections(ctx, func(c domain.Connection) bool { return c.Joined() })
	if err != nil {
		return nil, err
	}
	for _, c := range all {
		counts[c.RoundID]++
	}
	return counts, nil
}

// scanConnections walks all connection rows with a cursor SCAN and returns
// those matching the filter.
func (d *Directory) scanConnections(ctx context.Context, match func(domain.Connection) bool) ([]domain.Connection, error) {
	var result []domain.Connection
	var cursor uint64
	seen := make(map[string]struct{})

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("connection scan cancelled: %w", ctx.Err())
		default:
		}

		keys, nextCursor, err := d.rdb.Scan(ctx, cursor, "connection:*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("connection scan failed: %w", err)
		}

		for _, key := range uniqueKeys(seen, keys) {
			fields, err := d.rdb.HGetAll(ctx, key).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read connection row %s: %w", key, err)
			}
			if len(fields) == 0 {
				// Row deleted between SCAN and HGETALL.
				continue
			}
			conn := connectionFromFields(strings.TrimPrefix(key, "connection:"), fields)
			if match(*conn) {
				result = append(result, *conn)
			}
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func connectionFromFields(connID string, fields map[string]string) *domain.Connection {
	return &domain.Connection{
		ID:          connID,
		RoundID:     fields[fieldRoundID],
		DisplayName: fields[fieldDisplayName],
		HasAnswered: fields[fieldHasAnswered] == "1",
	}
}
