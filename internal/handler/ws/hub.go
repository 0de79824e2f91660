package ws

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"InvSight/internal/domain/models"
	"InvSight/internal/middleware"
	xhttp "InvSight/pkg/http"
	applogger "InvSight/pkg/logger"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 256
)

type filter struct {
	role    models.Role
	subject string
}

func (f filter) match(r *models.PredictionResult) bool {
	if f.role != "" && f.role != r.Role {
		return false
	}
	return f.subject == "" || f.subject == r.Subject
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	f    filter
}

// Hub fans prediction results out to websocket subscribers. Slow subscribers
// lose messages rather than stall the pipeline.
type Hub struct {
	mu       sync.RWMutex
	clients  map[*client]struct{}
	upgrader websocket.Upgrader
	dropped  atomic.Int64
	l        *applogger.Logger
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) SetLogger(l *applogger.Logger) { h.l = l }

func (h *Hub) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/stream/predictions", h.Serve)
}

// Serve upgrades the connection. Optional role and subject query parameters
// narrow the stream.
func (h *Hub) Serve(c echo.Context) error {
	f := filter{role: models.Role(c.QueryParam("role")), subject: c.QueryParam("subject")}
	if f.role != "" && !f.role.Valid() {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("unknown role %q", f.role))
	}
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		if h.l != nil {
			h.l.Warn("websocket upgrade failed", applogger.Error(err))
		}
		return nil
	}

	cl := &client{conn: conn, send: make(chan []byte, sendBuffer), f: f}
	h.mu.Lock()
	h.clients[cl] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	if h.l != nil {
		h.l.Debug("stream subscriber joined",
			applogger.String("remote", c.RealIP()),
			applogger.String("role", string(f.role)),
			applogger.Int("subscribers", n))
	}

	go h.writePump(cl)
	h.readPump(cl)
	return nil
}

// Broadcast queues r for every matching subscriber.
func (h *Hub) Broadcast(r *models.PredictionResult) {
	b, err := json.Marshal(r)
	if err != nil {
		if h.l != nil {
			h.l.Error("stream encode failed", applogger.String("request_id", r.RequestID), applogger.Error(err))
		}
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for cl := range h.clients {
		if !cl.f.match(r) {
			continue
		}
		select {
		case cl.send <- b:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribers returns the number of connected clients.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped counts messages lost to slow subscribers.
func (h *Hub) Dropped() int64 { return h.dropped.Load() }

// Close disconnects every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for cl := range h.clients {
		close(cl.send)
		delete(h.clients, cl)
	}
}

func (h *Hub) remove(cl *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[cl]; ok {
		close(cl.send)
		delete(h.clients, cl)
	}
}

// readPump discards client frames and keeps the read deadline alive.
func (h *Hub) readPump(cl *client) {
	defer func() {
		h.remove(cl)
		_ = cl.conn.Close()
	}()
	cl.conn.SetReadLimit(512)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(cl *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		_ = cl.conn.Close()
	}()
	for {
		select {
		case b, ok := <-cl.send:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			if err := cl.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var (
	_ middleware.Broadcaster = (*Hub)(nil)
	_ xhttp.Handler          = (*Hub)(nil)
)
