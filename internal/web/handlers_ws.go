package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"zigbee-bridge/internal/codec"
)

const (
	wsSendBuffer   = 64
	wsReadLimit    = 4096
	wsWriteTimeout = 10 * time.Second
)

// WSHub fans bus envelopes out to WebSocket clients. Each client picks its
// encoding and the envelope types it wants; clients that cannot keep up are
// dropped.
type WSHub struct {
	clients map[*wsClient]struct{}
	mu      sync.RWMutex
	logger  *slog.Logger

	register   chan *wsClient
	unregister chan *wsClient
	broadcast  chan codec.Envelope

	done     chan struct{}
	stopOnce sync.Once
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	format codec.Format
	// types limits the stream to these envelope types; empty means all.
	types map[string]struct{}
}

func (c *wsClient) wants(typ string) bool {
	if len(c.types) == 0 {
		return true
	}
	_, ok := c.types[typ]
	return ok
}

func (c *wsClient) messageType() websocket.MessageType {
	if c.format == codec.FormatCBOR {
		return websocket.MessageBinary
	}
	return websocket.MessageText
}

func NewWSHub(logger *slog.Logger) *WSHub {
	return &WSHub{
		clients:    make(map[*wsClient]struct{}),
		logger:     logger,
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
		broadcast:  make(chan codec.Envelope, 256),
		done:       make(chan struct{}),
	}
}

// Run owns the client set until Stop is called.
func (h *WSHub) Run() {
	for {
		select {
		case <-h.done:
			h.closeAll()
			return
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c, "disconnected")
		case env := <-h.broadcast:
			h.fanout(env)
		}
	}
}

func (h *WSHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("ws client connected", "format", c.format, "total", total)
}

// remove closes c.send once; unknown clients are ignored.
func (h *WSHub) remove(c *wsClient, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		h.logger.Debug("ws client removed", "reason", reason, "total", total)
	}
}

func (h *WSHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// fanout encodes env at most once per format in use.
func (h *WSHub) fanout(env codec.Envelope) {
	typ := env.Type()
	frames := make(map[codec.Format][]byte, 2)

	var slow []*wsClient
	h.mu.RLock()
	for c := range h.clients {
		if !c.wants(typ) {
			continue
		}
		data, ok := frames[c.format]
		if !ok {
			var err error
			if data, err = codec.Marshal(env, c.format); err != nil {
				h.logger.Error("ws marshal", "type", typ, "format", c.format, "err", err)
			}
			frames[c.format] = data
		}
		if data == nil {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.logger.Warn("ws client evicted (too slow)", "type", typ)
		h.remove(c, "slow")
	}
}

// Stop signals the hub to shut down. Safe to call multiple times.
func (h *WSHub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
	})
}

// Broadcast queues an envelope for all interested clients. It never blocks;
// when the queue is full the envelope is dropped.
func (h *WSHub) Broadcast(env codec.Envelope) {
	select {
	case h.broadcast <- env:
	default:
		h.logger.Warn("ws broadcast channel full, dropping envelope", "type", env.Type())
	}
}

// parseTypes reads the ?types=a,b stream filter.
func parseTypes(q string) map[string]struct{} {
	types := make(map[string]struct{})
	for _, t := range strings.Split(q, ",") {
		if t = strings.TrimSpace(t); t != "" {
			types[t] = struct{}{}
		}
	}
	return types
}

// handleWS streams envelopes. Query parameters: types=a,b limits the stream,
// format=json|cbor picks text or binary frames.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	format, err := codec.ParseFormat(q.Get("format"))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", codec.ErrInvalidInput, err))
		return
	}

	opts := &websocket.AcceptOptions{}
	if len(s.allowedOrigins) > 0 {
		opts.OriginPatterns = s.allowedOrigins
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		s.logger.Error("ws accept", "err", err)
		return
	}
	conn.SetReadLimit(wsReadLimit)

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, wsSendBuffer),
		format: format,
		types:  parseTypes(q.Get("types")),
	}

	select {
	case s.wsHub.register <- client:
	case <-s.wsHub.done:
		conn.Close(websocket.StatusGoingAway, "server shutdown")
		return
	}

	go s.wsWritePump(client)
	s.wsReadPump(client)
}

func (s *Server) wsWritePump(client *wsClient) {
	typ := client.messageType()
	for msg := range client.send {
		ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
		err := client.conn.Write(ctx, typ, msg)
		cancel()
		if err != nil {
			return
		}
	}
	client.conn.Close(websocket.StatusNormalClosure, "")
}

// wsReadPump discards client messages and unregisters on disconnect or hub
// shutdown.
func (s *Server) wsReadPump(client *wsClient) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	defer func() {
		select {
		case s.wsHub.unregister <- client:
		case <-s.wsHub.done:
			client.conn.Close(websocket.StatusGoingAway, "server shutdown")
		}
	}()

	go func() {
		select {
		case <-s.wsHub.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		if _, _, err := client.conn.Read(ctx); err != nil {
			return
		}
	}
}
