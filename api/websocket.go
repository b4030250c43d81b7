package api

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/splitlease/nightbid/events"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Send pings to peer with this period
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is enforced by the gateway in front of this service
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// client is one websocket watcher of a session.
type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub relays bidding events to websocket watchers. It subscribes to the
// Redis Pub/Sub channels the engine's relay publishes to and fans each
// session's events out to that session's watchers.
type Hub struct {
	redis *redis.Client

	sessionClients map[string]map[*client]bool

	register   chan registration
	unregister chan registration
	broadcast  chan sessionMessage
}

type registration struct {
	sessionID string
	client    *client
}

type sessionMessage struct {
	sessionID string
	payload   []byte
}

// NewHub creates a Hub over the given Redis connection.
func NewHub(redisClient *redis.Client) *Hub {
	return &Hub{
		redis:          redisClient,
		sessionClients: make(map[string]map[*client]bool),
		register:       make(chan registration),
		unregister:     make(chan registration),
		broadcast:      make(chan sessionMessage),
	}
}

// Run pumps registrations and messages until the context is cancelled.
// Call in a goroutine alongside Listen.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case reg := <-h.register:
			watchers, ok := h.sessionClients[reg.sessionID]
			if !ok {
				watchers = make(map[*client]bool)
				h.sessionClients[reg.sessionID] = watchers
			}
			watchers[reg.client] = true
		case reg := <-h.unregister:
			if watchers, ok := h.sessionClients[reg.sessionID]; ok {
				if _, ok := watchers[reg.client]; ok {
					delete(watchers, reg.client)
					close(reg.client.send)
				}
				if len(watchers) == 0 {
					delete(h.sessionClients, reg.sessionID)
				}
			}
		case msg := <-h.broadcast:
			for c := range h.sessionClients[msg.sessionID] {
				select {
				case c.send <- msg.payload:
				default:
					close(c.send)
					delete(h.sessionClients[msg.sessionID], c)
				}
			}
		}
	}
}

// Listen subscribes to every session's event channel and feeds the hub.
// Blocking; run in a goroutine.
func (h *Hub) Listen(ctx context.Context) error {
	pubsub := h.redis.PSubscribe(ctx, events.ChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			sessionID := strings.TrimPrefix(msg.Channel, events.ChannelPrefix)
			h.broadcast <- sessionMessage{sessionID: sessionID, payload: []byte(msg.Payload)}
		}
	}
}

// ServeSession upgrades the request and streams the session's events until
// the peer disconnects.
func (h *Hub) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ERROR: Websocket upgrade failed: %v", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, 16)}
	h.register <- registration{sessionID: sessionID, client: c}

	go h.writePump(c)
	h.readPump(sessionID, c)
}

// readPump discards inbound frames (watchers are read-only) and detects
// disconnects.
func (h *Hub) readPump(sessionID string, c *client) {
	defer func() {
		h.unregister <- registration{sessionID: sessionID, client: c}
		c.conn.Close()
	}()

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
