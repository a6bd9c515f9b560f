// Package live streams relay activity to connected dashboards over WebSocket.
package live

import (
	"net/http"
	"sync"

	"golang.org/x/net/websocket"

	"github.com/dmarin/chatrelay/internal/relay"
	"github.com/dmarin/chatrelay/pkg/logging"
)

const (
	// replayDepth bounds the recent events replayed to a new connection.
	replayDepth = 50
	// clientBuffer bounds per-connection pending events; slow clients drop.
	clientBuffer = 32
)

type client struct {
	events chan relay.Event
	done   chan struct{}
}

// Hub fans relay events out to every connected WebSocket client. It is the
// relay's event sink; Publish never blocks on slow consumers.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	recent  []relay.Event
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Default()
	}
	return &Hub{
		logger:  logger,
		clients: make(map[*client]struct{}),
	}
}

// Publish records the event and forwards it to every connected client.
// Events for clients whose buffer is full are dropped.
func (h *Hub) Publish(event relay.Event) {
	h.mu.Lock()
	h.recent = append(h.recent, event)
	if len(h.recent) > replayDepth {
		h.recent = append(h.recent[:0:0], h.recent[len(h.recent)-replayDepth:]...)
	}
	for c := range h.clients {
		select {
		case c.events <- event:
		default:
			h.logger.Debug("live: dropping event for slow client", "kind", event.Kind)
		}
	}
	h.mu.Unlock()
}

// Handler upgrades requests to WebSocket and streams events.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serveWS)
}

func (h *Hub) serveWS(conn *websocket.Conn) {
	c := &client{
		events: make(chan relay.Event, clientBuffer),
		done:   make(chan struct{}),
	}

	h.mu.Lock()
	replay := append([]relay.Event(nil), h.recent...)
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
	}()

	h.logger.Debug("live: connection opened", "clients", h.ClientCount())

	for _, event := range replay {
		if err := websocket.JSON.Send(conn, event); err != nil {
			return
		}
	}

	// The feed is one-way; the read loop only detects disconnects.
	go func() {
		var discard string
		for {
			if err := websocket.Message.Receive(conn, &discard); err != nil {
				close(c.done)
				return
			}
		}
	}()

	for {
		select {
		case <-c.done:
			h.logger.Debug("live: connection closed")
			return
		case event := <-c.events:
			if err := websocket.JSON.Send(conn, event); err != nil {
				return
			}
		}
	}
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
