package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
)

// fakeGateway records posts and fails for configured connection ids.
type fakeGateway struct {
	mu     sync.Mutex
	posts  map[string][][]byte
	gone   map[string]bool
	broken map[string]bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		posts:  make(map[string][][]byte),
		gone:   make(map[string]bool),
		broken: make(map[string]bool),
	}
}

func (g *fakeGateway) Post(_ context.Context, connID string, data []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gone[connID] {
		return domain.ErrConnectionGone
	}
	if g.broken[connID] {
		return errors.New("write failed")
	}
	g.posts[connID] = append(g.posts[connID], data)
	return nil
}

func (g *fakeGateway) delivered(connID string) [][]byte {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.posts[connID]
}

func TestSendDeliversMarshalledEvent(t *testing.T) {
	gateway := newFakeGateway()
	fanout := NewFanout(gateway, nil)

	fanout.Send(context.Background(), "conn-1", domain.RoundEnd())

	posts := gateway.delivered("conn-1")
	require.Len(t, posts, 1)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(posts[0], &payload))
	assert.Equal(t, "roundEnd", payload["type"])
}

func TestBroadcastReachesAllRecipients(t *testing.T) {
	gateway := newFakeGateway()
	fanout := NewFanout(gateway, nil)

	fanout.Broadcast(context.Background(), []string{"a", "b", "c"}, domain.NewPlayer([]string{"alice"}))

	for _, connID := range []string{"a", "b", "c"} {
		assert.Len(t, gateway.delivered(connID), 1)
	}
}

func TestBroadcastSurvivesFailedRecipient(t *testing.T) {
	gateway := newFakeGateway()
	gateway.broken["b"] = true
	fanout := NewFanout(gateway, nil)

	fanout.Broadcast(context.Background(), []string{"a", "b", "c"}, domain.RoundEnd())

	assert.Len(t, gateway.delivered("a"), 1)
	assert.Empty(t, gateway.delivered("b"))
	assert.Len(t, gateway.delivered("c"), 1)
}

func TestGoneRecipientTriggersCleanup(t *testing.T) {
	gateway := newFakeGateway()
	gateway.gone["stale"] = true

	var cleaned []string
	fanout := NewFanout(gateway, func(_ context.Context, connID string) {
		cleaned = append(cleaned, connID)
	})

	fanout.Broadcast(context.Background(), []string{"live", "stale"}, domain.RoundEnd())

	assert.Equal(t, []string{"stale"}, cleaned)
	assert.Len(t, gateway.delivered("live"), 1)
}

func TestPlainFailureDoesNotTriggerCleanup(t *testing.T) {
	gateway := newFakeGateway()
	gateway.broken["flaky"] = true

	var cleaned []string
	fanout := NewFanout(gateway, func(_ context.Context, connID string) {
		cleaned = append(cleaned, connID)
	})

	fanout.Send(context.Background(), "flaky", domain.RoundEnd())

	assert.Empty(t, cleaned)
}
