// Package hub fans board events out to WebSocket clients.
//
// Every connected client receives each broadcast as one JSON text frame. A
// newly registered client is first sent a welcome payload, normally the
// current board, so it never has to wait for the next change to render.
// The hub pings clients periodically and drops those that stop answering.
package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// Config controls keepalive and buffering.
type Config struct {
	// PingInterval is how often clients are pinged.
	PingInterval time.Duration

	// PongWait is how long a client may stay silent before it is dropped.
	PongWait time.Duration

	// WriteTimeout bounds each frame write.
	WriteTimeout time.Duration

	// BroadcastBuffer is the number of queued broadcasts before new ones are
	// dropped.
	BroadcastBuffer int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval:    20 * time.Second,
		PongWait:        60 * time.Second,
		WriteTimeout:    3 * time.Second,
		BroadcastBuffer: 256,
	}
}

// Hub manages client connections. Registration, removal and broadcast all go
// through the Run loop, which owns the client set.
type Hub struct {
	cfg    Config
	logger *slog.Logger

	clients    map[*websocket.Conn]struct{}
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	upgrader   websocket.Upgrader

	welcome func() any
	done    chan struct{} // closed when Run returns
	count   atomic.Int64
	dropped atomic.Int64
}

// New allocates a hub. welcome, if non-nil, produces the first message each
// client receives. Call Run in a goroutine to start the event loop.
func New(cfg Config, welcome func() any, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.BroadcastBuffer <= 0 {
		cfg.BroadcastBuffer = def.BroadcastBuffer
	}

	return &Hub{
		cfg:        cfg,
		logger:     logger.With("component", "hub"),
		clients:    make(map[*websocket.Conn]struct{}),
		register:   make(chan *websocket.Conn, 16),
		unregister: make(chan *websocket.Conn, 16),
		broadcast:  make(chan []byte, cfg.BroadcastBuffer),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		welcome: welcome,
		done:    make(chan struct{}),
	}
}

// Run processes registrations, removals, broadcasts and keepalive pings
// until ctx ends, then closes every client. It must be called once.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	ping := time.NewTicker(h.cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				h.drop(c)
			}
			return nil

		case c := <-h.register:
			if !h.greet(c) {
				_ = c.Close()
				continue
			}
			h.clients[c] = struct{}{}
			h.count.Store(int64(len(h.clients)))
			h.logger.Debug("client connected", "remote", c.RemoteAddr().String(), "clients", len(h.clients))

		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				h.drop(c)
			}

		case msg := <-h.broadcast:
			for c := range h.clients {
				if err := h.write(c, websocket.TextMessage, msg); err != nil {
					h.logger.Debug("dropping client", "remote", c.RemoteAddr().String(), "error", err)
					h.drop(c)
				}
			}

		case <-ping.C:
			for c := range h.clients {
				if err := h.write(c, websocket.PingMessage, nil); err != nil {
					h.drop(c)
				}
			}
		}
	}
}

// Handler upgrades requests to WebSocket connections and registers them.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// The upgrader has already replied.
			h.logger.Debug("websocket upgrade failed", "error", err)
			return
		}
		select {
		case h.register <- conn:
		case <-h.done:
			_ = conn.Close()
			return
		}

		go h.readLoop(conn)
	})
}

// BroadcastJSON marshals v and queues it for every client. When the queue is
// full the message is dropped so callers never block.
func (h *Hub) BroadcastJSON(v any) {
	b, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("marshal broadcast", "error", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.dropped.Add(1)
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	return int(h.count.Load())
}

// Dropped returns the number of broadcasts discarded because the queue was
// full.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// readLoop discards client frames and keeps the read deadline moving on
// pongs. It unregisters the client once reading fails.
func (h *Hub) readLoop(conn *websocket.Conn) {
	defer func() {
		select {
		case h.unregister <- conn:
		case <-h.done:
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) greet(c *websocket.Conn) bool {
	if h.welcome == nil {
		return true
	}
	b, err := json.Marshal(h.welcome())
	if err != nil {
		h.logger.Error("marshal welcome", "error", err)
		return true
	}
	return h.write(c, websocket.TextMessage, b) == nil
}

func (h *Hub) write(c *websocket.Conn, kind int, msg []byte) error {
	_ = c.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
	return c.WriteMessage(kind, msg)
}

func (h *Hub) drop(c *websocket.Conn) {
	delete(h.clients, c)
	h.count.Store(int64(len(h.clients)))
	_ = c.Close()
}
