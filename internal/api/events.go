// SPDX-License-Identifier: MIT

package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ManuGH/relinkd/internal/log"
	"github.com/ManuGH/relinkd/internal/supervisor"
)

const (
	clientBuffer = 16
	writeWait    = 5 * time.Second
	pingPeriod   = 30 * time.Second
	pongWait     = pingPeriod + 10*time.Second
)

// Event is one message on the events stream.
type Event struct {
	Type  string           `json:"type"`
	State supervisor.State `json:"reconnection"`
	At    time.Time        `json:"at"`
}

// Hub fans supervisor transitions out to websocket clients. Publish is meant
// to be the supervisor's single observer. A client that cannot keep up is
// disconnected rather than slowing the others.
type Hub struct {
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	mu      sync.Mutex
	last    Event
	clients map[*client]struct{}
	closed  bool
	wg      sync.WaitGroup
}

type client struct {
	conn *websocket.Conn
	send chan Event
	done chan struct{}
	once sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewHub returns a hub whose initial snapshot is initial.
func NewHub(initial supervisor.State) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  log.WithComponent("events"),
		last:    Event{Type: "state", State: initial, At: time.Now().UTC()},
		clients: make(map[*client]struct{}),
	}
}

// Publish records st and forwards it to every client.
func (h *Hub) Publish(st supervisor.State) {
	ev := Event{Type: "state", State: st, At: time.Now().UTC()}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = ev
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
			h.logger.Warn().Str(log.FieldEvent, "events.client_slow").Msg("dropping slow events client")
			delete(h.clients, c)
			c.stop()
		}
	}
}

// Clients returns the number of attached clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until either side closes.
// The current state is sent first.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := log.WithComponentFromContext(r.Context(), "events")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug().Err(err).Str(log.FieldEvent, "events.upgrade_failed").Msg("websocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan Event, clientBuffer), done: make(chan struct{})}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), time.Now().Add(writeWait))
		_ = conn.Close()
		return
	}
	c.send <- h.last
	h.clients[c] = struct{}{}
	h.wg.Add(2)
	h.mu.Unlock()

	logger.Debug().Str(log.FieldEvent, "events.client_attached").Msg("events client attached")
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) detach(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

// readPump discards client frames; it exists to process control frames and
// to notice a closed connection.
func (h *Hub) readPump(c *client) {
	defer h.wg.Done()
	defer h.detach(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	defer h.wg.Done()
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case ev := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(ev); err != nil {
				h.detach(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.detach(c)
				return
			}
		case <-c.done:
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// Close disconnects every client and waits for their goroutines.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.stop()
	}
	h.mu.Unlock()
	h.wg.Wait()
}
