// Package broadcast implements the fanout of round events to connections.
//
// Delivery is best effort, at most once, with no ordering guarantee across
// recipients. A gone signal from the gateway triggers lazy cleanup of the stale
// connection via callback; nothing is retried and nothing surfaces to the
// action that triggered the fanout.
package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
)

// GoneHandler is invoked when the gateway reports a recipient as no longer
// reachable. It runs the stale-connection cleanup (row delete, member
// decrement, zero-member cascade).
type GoneHandler func(ctx context.Context, connID string)

// Fanout delivers events through the push gateway.
type Fanout struct {
	gateway domain.PushGateway
	onGone  GoneHandler
}

var _ domain.Broadcaster = (*Fanout)(nil)

func NewFanout(gateway domain.PushGateway, onGone GoneHandler) *Fanout {
	return &Fanout{gateway: gateway, onGone: onGone}
}

// Send delivers one event to one connection. Failures are absorbed: a gone
// recipient is cleaned up, anything else is logged and counted.
func (f *Fanout) Send(ctx context.Context, connID string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "event_type", event.EventType(), "error", err)
		return
	}
	f.post(ctx, connID, event.EventType(), data)
}

// Broadcast delivers one event to every recipient independently. A failure for
// one recipient never aborts delivery to the others.
func (f *Fanout) Broadcast(ctx context.Context, recipients []string, event domain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal event", "event_type", event.EventType(), "error", err)
		return
	}
	for _, connID := range recipients {
		f.post(ctx, connID, event.EventType(), data)
	}
}

func (f *Fanout) post(ctx context.Context, connID, eventType string, data []byte) {
	err := f.gateway.Post(ctx, connID, data)
	switch {
	case err == nil:
		metrics.BroadcastSendsTotal.WithLabelValues("ok").Inc()
	case errors.Is(err, domain.ErrConnectionGone):
		metrics.BroadcastSendsTotal.WithLabelValues("gone").Inc()
		slog.Debug("Recipient gone, cleaning up", "connection_id", connID, "event_type", eventType)
		if f.onGone != nil {
			f.onGone(ctx, connID)
		}
	default:
		metrics.BroadcastSendsTotal.WithLabelValues("error").Inc()
		slog.Warn("Push delivery failed", "connection_id", connID, "event_type", eventType, "error", err)
	}
}
