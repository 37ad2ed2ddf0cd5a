// Package websocket pushes invalidation events to connected live preview
// clients. The Hub is itself an invalidation target, so it can sit in the
// same fan-out as the page caches.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/gitcms/internal/logging"
	"github.com/conneroisu/gitcms/internal/ratelimit"
)

const (
	pingInterval = 54 * time.Second
	writeTimeout = 10 * time.Second
	readLimit    = 1024
	sendBuffer   = 64
)

// Event types sent to clients.
const (
	EventInvalidate = "invalidate"
	EventHello      = "hello"
)

// Event is one message sent to every client.
type Event struct {
	Type      string    `json:"type"`
	Tag       string    `json:"tag,omitempty"`
	Path      string    `json:"path,omitempty"`
	ClientID  string    `json:"clientId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Options configure a Hub.
type Options struct {
	// OriginPatterns lists host patterns allowed to connect cross-origin.
	OriginPatterns []string
	// Limiter and ConnectLimit bound connection attempts per client IP
	// and limiter window. A nil Limiter disables the check.
	Limiter      ratelimit.Limiter
	ConnectLimit int
	// ClientIP keys the connection limit; ratelimit.ClientIP when nil.
	ClientIP func(*http.Request) string
}

type client struct {
	id   string
	ip   string
	conn *websocket.Conn
	send chan []byte
}

// Hub tracks connected clients and broadcasts events to them.
type Hub struct {
	opts   Options
	logger logging.Logger
	now    func() time.Time

	register   chan *client
	unregister chan *client
	broadcast  chan []byte

	connected atomic.Int64
	sent      atomic.Int64
	dropped   atomic.Int64

	ctx          context.Context
	cancel       context.CancelFunc
	done         chan struct{}
	shutdownOnce sync.Once
}

// NewHub creates a Hub and starts its loop.
func NewHub(opts Options, logger logging.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	if opts.ClientIP == nil {
		opts.ClientIP = ratelimit.ClientIP
	}
	ctx, cancel := context.WithCancel(context.Background())

	h := &Hub{
		opts:       opts,
		logger:     logger.WithComponent("websocket"),
		now:        time.Now,
		register:   make(chan *client, 32),
		unregister: make(chan *client, 32),
		broadcast:  make(chan []byte, 256),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.done)

	clients := make(map[*client]struct{})
	for {
		select {
		case c := <-h.register:
			clients[c] = struct{}{}
			h.connected.Store(int64(len(clients)))
			h.logger.Debug(h.ctx, "Preview client connected", "client", c.id, "clients", len(clients))

		case c := <-h.unregister:
			if _, ok := clients[c]; ok {
				delete(clients, c)
				close(c.send)
				h.connected.Store(int64(len(clients)))
				h.logger.Debug(h.ctx, "Preview client disconnected", "client", c.id, "clients", len(clients))
			}

		case msg := <-h.broadcast:
			for c := range clients {
				select {
				case c.send <- msg:
					h.sent.Add(1)
				default:
					// Slow consumer.
					delete(clients, c)
					close(c.send)
					h.dropped.Add(1)
				}
			}
			h.connected.Store(int64(len(clients)))

		case <-h.ctx.Done():
			for c := range clients {
				close(c.send)
			}
			h.connected.Store(0)
			return
		}
	}
}

// ServeHTTP upgrades the request and streams events until the client or
// the hub goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.ctx.Err() != nil {
		http.Error(w, "Service Unavailable", http.StatusServiceUnavailable)
		return
	}

	ip := h.opts.ClientIP(r)
	if h.opts.Limiter != nil && h.opts.ConnectLimit > 0 {
		res, err := h.opts.Limiter.Check(r.Context(), h.opts.ConnectLimit, "ws:"+ip)
		if err != nil {
			h.logger.Warn(r.Context(), err, "Connection limiter unavailable", "client_ip", ip)
		} else if !res.Success {
			h.logger.Warn(r.Context(), nil, "Preview connection rejected: rate limit exceeded", "client_ip", ip)
			http.Error(w, "Rate limit exceeded", http.StatusTooManyRequests)
			return
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  h.opts.OriginPatterns,
		CompressionMode: websocket.CompressionDisabled,
	})
	if err != nil {
		// Accept has already written the response.
		h.logger.Warn(r.Context(), err, "WebSocket upgrade failed", "client_ip", ip)
		return
	}
	conn.SetReadLimit(readLimit)

	c := &client{
		id:   uuid.NewString(),
		ip:   ip,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	if hello, err := h.encode(Event{Type: EventHello, ClientID: c.id}); err == nil {
		c.send <- hello
	}

	select {
	case h.register <- c:
	case <-h.ctx.Done():
		_ = conn.Close(websocket.StatusGoingAway, "Server shutting down")
		return
	}

	go h.writePump(c)
	h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *Hub) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.ctx.Done():
		}
	}()

	for {
		_, msg, err := c.conn.Read(h.ctx)
		if err != nil {
			if status := websocket.CloseStatus(err); status != websocket.StatusNormalClosure && status != websocket.StatusGoingAway && h.ctx.Err() == nil {
				h.logger.Debug(h.ctx, "Preview client read ended", "client", c.id, "error", err.Error())
			}
			return
		}
		h.logger.Debug(h.ctx, "Ignoring preview client message", "client", c.id, "bytes", len(msg))
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				status, reason := websocket.StatusNormalClosure, ""
				if h.ctx.Err() != nil {
					status, reason = websocket.StatusGoingAway, "Server shutting down"
				}
				_ = c.conn.Close(status, reason)
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Write(ctx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				h.logger.Debug(h.ctx, "Preview client write failed", "client", c.id, "error", err.Error())
				_ = c.conn.CloseNow()
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				_ = c.conn.CloseNow()
				return
			}
		}
	}
}

func (h *Hub) encode(ev Event) ([]byte, error) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = h.now().UTC()
	}
	return json.Marshal(ev)
}

// Publish queues ev for every connected client. Events are dropped when the
// hub is shut down or its queue is full.
func (h *Hub) Publish(ev Event) {
	data, err := h.encode(ev)
	if err != nil {
		h.logger.Error(h.ctx, err, "Failed to encode preview event")
		return
	}

	select {
	case h.broadcast <- data:
	case <-h.ctx.Done():
	default:
		h.dropped.Add(1)
		h.logger.Warn(h.ctx, nil, "Broadcast queue full, dropping preview event", "type", ev.Type)
	}
}

// InvalidateTag tells clients that every document carrying tag is stale.
func (h *Hub) InvalidateTag(_ context.Context, tag string) error {
	h.Publish(Event{Type: EventInvalidate, Tag: tag})
	return nil
}

// InvalidatePath tells clients that the document at path is stale.
func (h *Hub) InvalidatePath(_ context.Context, path string) error {
	h.Publish(Event{Type: EventInvalidate, Path: path})
	return nil
}

// Stats is a snapshot of hub counters.
type Stats struct {
	Clients int   `json:"clients"`
	Sent    int64 `json:"sent"`
	Dropped int64 `json:"dropped"`
}

// Stats returns the current counters.
func (h *Hub) Stats() Stats {
	return Stats{
		Clients: int(h.connected.Load()),
		Sent:    h.sent.Load(),
		Dropped: h.dropped.Load(),
	}
}

// Shutdown disconnects every client and stops the hub loop.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.shutdownOnce.Do(h.cancel)

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
