package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nobconsult/internal/domain"
	"nobconsult/internal/middleware"
)

// SnapshotReader authorizes a read and returns the caller's current view.
type SnapshotReader interface {
	Get(ctx context.Context, actor domain.Actor, id int64) (*domain.Application, error)
}

type Handler struct {
	hub         *Hub
	reader      SnapshotReader
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	log         *zap.Logger
}

// NewHandler builds the websocket endpoint. allowedOrigins empty means any
// origin is accepted.
func NewHandler(hub *Hub, reader SnapshotReader, allowedOrigins []string, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &Handler{
		hub:    hub,
		reader: reader,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(origins) == 0 {
					return true
				}
				return origins[r.Header.Get("Origin")]
			},
		},
		readTimeout: 5 * time.Second,
		log:         log,
	}
}

// ServeWS expects middleware.JWTAuth in front; browsers pass ?token=.
//
// GET /api/v1/ws
func (h *Handler) ServeWS(c *gin.Context) {
	actor, ok := middleware.MustActor(c)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	cl := &client{actor: actor, conn: conn, send: make(chan []byte, sendBuffer), subs: map[int64]int64{}}
	h.hub.register(cl)
	h.log.Debug("realtime client connected", zap.Int64("user_id", actor.UserID))

	go h.writePump(cl)
	h.readPump(cl)
}

func (h *Handler) readPump(c *client) {
	defer func() {
		h.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("realtime read error", zap.Error(err))
			}
			return
		}

		var frame ClientFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.hub.sendError(c, 0, "malformed frame")
			continue
		}
		switch frame.Type {
		case FrameSubscribe:
			h.handleSubscribe(c, frame.ApplicationID)
		case FrameUnsubscribe:
			h.hub.unsubscribe(c, frame.ApplicationID)
		default:
			h.hub.sendError(c, frame.ApplicationID, "unknown frame type")
		}
	}
}

func (h *Handler) handleSubscribe(c *client, id int64) {
	if id <= 0 {
		h.hub.sendError(c, id, "application_id is required")
		return
	}
	h.hub.reserve(c, id)
	ctx, cancel := context.WithTimeout(context.Background(), h.readTimeout)
	defer cancel()

	app, err := h.reader.Get(ctx, c.actor, id)
	if err != nil {
		h.hub.release(c, id)
		h.hub.sendError(c, id, err.Error())
		return
	}
	h.hub.subscribe(c, app)
}

func (h *Handler) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
