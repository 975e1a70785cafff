// Package websocket implements the push gateway: delivery of payloads to
// clients addressed by opaque connection id.
//
// The Hub is an actor: a single goroutine owns the connection map and consumes
// commands from a channel (no mutexes). Each connection gets a buffered writer
// goroutine; clients that cannot drain their buffer are evicted and reported
// gone on the next post.
package websocket

import (
	"context"
	"log/slog"
	"time"

	"github.com/finnlinderman-RL/fwsl-questions-api/internal/domain"
	"github.com/finnlinderman-RL/fwsl-questions-api/internal/metrics"
	"github.com/gorilla/websocket"
)

const (
	writeDeadline  = 5 * time.Second
	sendBufferSize = 16
)

// --- Command types ---

type hubCmd interface{ hubCmd() }

type cmdRegister struct {
	connID string
	conn   *websocket.Conn
}

func (cmdRegister) hubCmd() {}

type cmdUnregister struct {
	connID string
}

func (cmdUnregister) hubCmd() {}

type cmdPost struct {
	connID string
	data   []byte
	errCh  chan error
}

func (cmdPost) hubCmd() {}

type cmdCount struct {
	replyCh chan int
}

func (cmdCount) hubCmd() {}

type cmdStop struct{}

func (cmdStop) hubCmd() {}

// --- Per-connection writer ---

type clientWriter struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
}

func newClientWriter(conn *websocket.Conn) *clientWriter {
	cw := &clientWriter{
		conn:   conn,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
	go cw.run()
	return cw
}

func (cw *clientWriter) run() {
	for {
		select {
		case msg, ok := <-cw.sendCh:
			if !ok {
				return
			}
			cw.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := cw.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-cw.done:
			return
		}
	}
}

func (cw *clientWriter) stop() {
	close(cw.done)
	cw.conn.Close()
}

// --- Hub ---

// Hub tracks registered connections and posts payloads to them by id.
type Hub struct {
	cmdCh   chan hubCmd
	done    chan struct{}
	clients map[string]*clientWriter
}

var _ domain.PushGateway = (*Hub)(nil)

func NewHub() *Hub {
	hub := &Hub{
		cmdCh:   make(chan hubCmd, 256),
		done:    make(chan struct{}),
		clients: make(map[string]*clientWriter),
	}
	go hub.run()
	return hub
}

func (h *Hub) run() {
	for cmd := range h.cmdCh {
		switch c := cmd.(type) {
		case cmdRegister:
			h.handleRegister(c)
		case cmdUnregister:
			h.handleUnregister(c.connID)
		case cmdPost:
			c.errCh <- h.handlePost(c)
		case cmdCount:
			c.replyCh <- len(h.clients)
		case cmdStop:
			h.handleStop()
			return
		}
	}
}

func (h *Hub) handleRegister(c cmdRegister) {
	if old, exists := h.clients[c.connID]; exists {
		// Duplicate id from the transport; drop the stale writer.
		old.stop()
	}
	h.clients[c.connID] = newClientWriter(c.conn)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client registered", "connection_id", c.connID, "total_clients", len(h.clients))
}

func (h *Hub) handleUnregister(connID string) {
	cw, exists := h.clients[connID]
	if !exists {
		return
	}
	cw.stop()
	delete(h.clients, connID)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	slog.Debug("Client unregistered", "connection_id", connID, "remaining_clients", len(h.clients))
}

func (h *Hub) handlePost(c cmdPost) error {
	cw, exists := h.clients[c.connID]
	if !exists {
		return domain.ErrConnectionGone
	}

	select {
	case cw.sendCh <- c.data:
		return nil
	default:
		// Client cannot drain its buffer; evict it. The caller sees the same
		// gone signal a closed transport would produce.
		slog.Info("Evicting slow client", "connection_id", c.connID)
		metrics.SlowClientsEvicted.Inc()
		h.handleUnregister(c.connID)
		return domain.ErrConnectionGone
	}
}

func (h *Hub) handleStop() {
	// Closing done unblocks callers whose commands were enqueued after the
	// stop and will never be consumed.
	close(h.done)
	for connID, cw := range h.clients {
		cw.stop()
		delete(h.clients, connID)
	}
	metrics.ConnectedClients.Set(0)
}

// --- Public API ---

// Register adds a connection under the given id.
func (h *Hub) Register(connID string, conn *websocket.Conn) {
	select {
	case h.cmdCh <- cmdRegister{connID: connID, conn: conn}:
	case <-h.done:
		conn.Close()
	}
}

// Unregister removes a connection and closes its writer.
func (h *Hub) Unregister(connID string) {
	select {
	case h.cmdCh <- cmdUnregister{connID: connID}:
	case <-h.done:
	}
}

// Post enqueues a payload for one connection. Returns domain.ErrConnectionGone
// if the connection is unknown, was evicted, or the hub has stopped; all other
// failures surface from the writer asynchronously and are not reported here.
func (h *Hub) Post(_ context.Context, connID string, data []byte) error {
	errCh := make(chan error, 1)
	select {
	case h.cmdCh <- cmdPost{connID: connID, data: data, errCh: errCh}:
	case <-h.done:
		return domain.ErrConnectionGone
	}
	select {
	case err := <-errCh:
		return err
	case <-h.done:
		return domain.ErrConnectionGone
	}
}

// ClientCount returns the number of registered connections.
func (h *Hub) ClientCount() int {
	replyCh := make(chan int, 1)
	select {
	case h.cmdCh <- cmdCount{replyCh: replyCh}:
	case <-h.done:
		return 0
	}
	select {
	case n := <-replyCh:
		return n
	case <-h.done:
		return 0
	}
}

// Stop shuts down the hub, closing all client connections. Idempotent.
func (h *Hub) Stop() {
	select {
	case h.cmdCh <- cmdStop{}:
	case <-h.done:
	}
}
