// Package relay serves one connected session over HTTP: video frames fan
// out to websocket clients and controller input flows back in as JSON.
package relay

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/remoteplay/rpctl/internal/constants"
	"github.com/remoteplay/rpctl/internal/controller"
	"github.com/remoteplay/rpctl/internal/h264"
)

const clientSendBuffer = 256

type outboundMessage struct {
	messageType int
	payload     []byte
}

// client is one websocket viewer.
type client struct {
	id   string
	conn *websocket.Conn
	send chan outboundMessage
	hub  *Hub
	// synced is set once the client has been sent a keyframe; earlier
	// frames would be undecodable.
	synced  atomic.Bool
	dropped atomic.Uint64
}

// Hub fans frames out to websocket clients. It implements stream.Sink and
// never fails, so the stream keeps running with no viewers attached.
type Hub struct {
	ctrl     *controller.Controller
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[*client]bool
	lastKey []byte

	frames atomic.Uint64
	bytes  atomic.Uint64
}

// NewHub creates a hub that applies client input to ctrl. originAllowed
// validates the Origin header of upgrade requests; requests without one are
// always accepted.
func NewHub(ctrl *controller.Controller, originAllowed func(string) bool) *Hub {
	return &Hub{
		ctrl:    ctrl,
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				return originAllowed != nil && originAllowed(origin)
			},
		},
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns frames and bytes broadcast so far.
func (h *Hub) Stats() (frames, bytes uint64) {
	return h.frames.Load(), h.bytes.Load()
}

// Write implements stream.Sink.
func (h *Hub) Write(frame []byte) error {
	key := h264.IsKeyframe(frame)
	payload := append([]byte(nil), frame...)

	h.frames.Add(1)
	h.bytes.Add(uint64(len(frame)))

	h.mu.Lock()
	defer h.mu.Unlock()
	if key {
		h.lastKey = payload
	}
	for c := range h.clients {
		if !c.synced.Load() {
			if !key {
				continue
			}
			c.synced.Store(true)
		}
		c.enqueue(outboundMessage{messageType: websocket.BinaryMessage, payload: payload})
	}
	return nil
}

// enqueue never blocks. Callers hold hub.mu so send cannot be closed
// underneath them.
func (c *client) enqueue(msg outboundMessage) {
	select {
	case c.send <- msg:
	default:
		if n := c.dropped.Add(1); n == 1 || n%100 == 0 {
			log.Warn().Str("client", c.id).Uint64("dropped", n).Msg("relay client too slow, dropping frames")
		}
		// A gap leaves the decoder without references; wait for the next
		// keyframe.
		if msg.messageType == websocket.BinaryMessage {
			c.synced.Store(false)
		}
	}
}

// reply queues a text message for c if it is still registered.
func (h *Hub) reply(c *client, payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.clients[c] {
		c.enqueue(outboundMessage{messageType: websocket.TextMessage, payload: payload})
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	h.clients[c] = true
	if h.lastKey != nil {
		c.synced.Store(true)
		c.enqueue(outboundMessage{messageType: websocket.BinaryMessage, payload: h.lastKey})
	}
	count := len(h.clients)
	h.mu.Unlock()
	log.Info().Str("client", c.id).Int("clients", count).Msg("relay client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
	log.Info().Str("client", c.id).Msg("relay client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]bool)
	h.mu.Unlock()
	for c := range clients {
		close(c.send)
	}
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan outboundMessage, clientSendBuffer),
		hub:  h,
	}
	h.register(c)
	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(64 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(constants.RelayPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(constants.RelayPongWait))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Warn().Err(err).Str("client", c.id).Msg("websocket read error")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		if reply := c.hub.handleInput(data); reply != nil {
			c.hub.reply(c, reply)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(constants.RelayPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(constants.RelayWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(msg.messageType, msg.payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(constants.RelayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
