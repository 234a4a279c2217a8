// Package ws broadcasts poller events to websocket clients as JSON.
//
// A new client first receives the latest snapshot of every system and then
// every event as it is emitted. Clients that cannot keep up are disconnected.
package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/oshokin/plc-monitor/internal/api/wire"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

const (
	// Path is the websocket endpoint.
	Path = "/ws"

	sendBuffer      = 256
	writeWait       = 10 * time.Second
	pongWait        = 60 * time.Second
	pingPeriod      = 54 * time.Second
	maxMessageSize  = 4 * 1024
	shutdownTimeout = 5 * time.Second
)

// SnapshotFunc returns the latest snapshot of every system.
type SnapshotFunc func() []*plc.SystemInfo

// Hub tracks websocket clients and implements poller.Sink.
type Hub struct {
	// snapshot provides the initial state for new clients; optional.
	snapshot SnapshotFunc
	// upgrader upgrades HTTP requests.
	upgrader websocket.Upgrader

	// mu protects clients and nextID.
	mu sync.Mutex
	// clients maps client ids to their send queues.
	clients map[uint64]chan []byte
	// nextID is the id of the next client.
	nextID uint64
}

// NewHub creates a hub.
func NewHub(snapshot SnapshotFunc) *Hub {
	return &Hub{
		snapshot: snapshot,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 64 * 1024,
			// Dashboards are served from other origins on the plant network.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[uint64]chan []byte),
	}
}

// Emit implements poller.Sink.
func (h *Hub) Emit(ctx context.Context, event poller.Event) {
	if event.Kind() == poller.KindReady {
		return
	}

	data, err := wire.Marshal(event)
	if err != nil {
		logger.WarnKV(ctx, "Failed to marshal websocket event", "kind", event.Kind(), "error", err)

		return
	}

	h.broadcast(ctx, data)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.clients)
}

func (h *Hub) broadcast(ctx context.Context, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, send := range h.clients {
		select {
		case send <- data:
		default:
			logger.WarnKV(ctx, "Websocket client too slow, disconnecting", "client", id)

			delete(h.clients, id)
			close(send)
		}
	}
}

// register adds a client whose queue starts with the current snapshot.
// The snapshot is queued under mu so no broadcast can precede it.
func (h *Hub) register(ctx context.Context) (uint64, chan []byte) {
	send := make(chan []byte, sendBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()

	h.queueSnapshot(ctx, send)

	id := h.nextID
	h.nextID++
	h.clients[id] = send

	return id, send
}

func (h *Hub) unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if send, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(send)
	}
}

// ServeHTTP upgrades the request and streams events to the client.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithName(r.Context(), "ws")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.WarnKV(ctx, "Failed to upgrade websocket connection", "error", err)

		return
	}

	id, send := h.register(ctx)
	ctx = logger.WithKV(ctx, "client", id, "remote", r.RemoteAddr)

	logger.InfoKV(ctx, "Websocket client connected")

	go h.readPump(ctx, id, conn)

	h.writePump(ctx, conn, send)

	logger.InfoKV(ctx, "Websocket client disconnected")
}

// queueSnapshot queues the latest state of every system.
func (h *Hub) queueSnapshot(ctx context.Context, send chan<- []byte) {
	if h.snapshot == nil {
		return
	}

	for _, system := range h.snapshot() {
		data, err := wire.Marshal(poller.Updated{At: time.Now(), System: system})
		if err != nil {
			logger.WarnKV(ctx, "Failed to marshal snapshot", "system", system.Name, "error", err)

			continue
		}

		select {
		case send <- data:
		default:
			return
		}
	}
}

// readPump discards client messages and unregisters the client on close.
func (h *Hub) readPump(ctx context.Context, id uint64, conn *websocket.Conn) {
	defer h.unregister(id)

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.DebugKV(ctx, "Websocket read failed", "error", err)
			}

			return
		}
	}
}

// writePump writes queued messages and keepalive pings until the queue is closed.
func (h *Hub) writePump(ctx context.Context, conn *websocket.Conn, send <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()

		_ = conn.Close()
	}()

	for {
		select {
		case data, ok := <-send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

				return
			}

			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logger.DebugKV(ctx, "Websocket write failed", "error", err)

				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))

			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, send := range h.clients {
		delete(h.clients, id)
		close(send)
	}
}

// Serve exposes the hub at Path on address until ctx is canceled.
func (h *Hub) Serve(ctx context.Context, address string) error {
	ctx = logger.WithName(ctx, "ws")

	mux := http.NewServeMux()
	mux.Handle(Path, h)

	lc := net.ListenConfig{}

	lis, err := lc.Listen(ctx, "tcp", address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	go func() {
		<-ctx.Done()

		h.Close()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WarnKV(ctx, "Failed to shut down websocket server cleanly", "error", err)
		}
	}()

	logger.InfoKV(ctx, "Websocket endpoint listening", "address", lis.Addr().String(), "path", Path)

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve websocket: %w", err)
	}

	return nil
}
