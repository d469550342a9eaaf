package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"nobconsult/internal/domain"
	"nobconsult/internal/events"
	"nobconsult/internal/metrics"
	"nobconsult/internal/modules/access"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameSnapshot    = "snapshot"
	FrameError       = "error"
)

// ClientFrame is what a browser sends.
type ClientFrame struct {
	Type          string `json:"type"`
	ApplicationID int64  `json:"application_id"`
}

// ServerFrame is what the hub pushes.
type ServerFrame struct {
	Type          string `json:"type"`
	ApplicationID int64  `json:"application_id,omitempty"`
	Event         string `json:"event,omitempty"`
	Revision      int64  `json:"revision,omitempty"`
	Payload       any    `json:"payload,omitempty"`
}

// Render shapes an already redacted view into the frame payload.
type Render func(view *domain.Application, role domain.UserRole) any

func defaultRender(view *domain.Application, _ domain.UserRole) any {
	return view
}

type client struct {
	actor domain.Actor
	conn  *websocket.Conn
	send  chan []byte
	// subs maps application id to the newest revision already sent.
	subs map[int64]int64
}

// Hub fans committed application snapshots out to websocket subscribers.
// Each subscriber gets the view of its own role, and never an older
// revision than one it has already seen.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]bool
	render  Render
	log     *zap.Logger
}

func NewHub(render Render, log *zap.Logger) *Hub {
	if render == nil {
		render = defaultRender
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Hub{clients: make(map[*client]bool), render: render, log: log}
}

// Publish delivers locally; it lets the hub stand in for events.Publisher
// when no cross-replica relay is configured.
func (h *Hub) Publish(_ context.Context, e events.Event) error {
	h.Deliver(e)
	return nil
}

func (h *Hub) Deliver(e events.Event) {
	if e.Snapshot == nil {
		return
	}
	res := access.ResourceOf(e.Snapshot)
	views := map[domain.UserRole][]byte{}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		last, ok := c.subs[e.ApplicationID]
		if !ok || e.Revision <= last {
			continue
		}
		if !access.CanPerform(c.actor, access.ActionRead, res) {
			// lost access, e.g. reassigned to another staff member
			delete(c.subs, e.ApplicationID)
			h.enqueue(c, mustMarshal(ServerFrame{Type: FrameError, ApplicationID: e.ApplicationID, Payload: "access revoked"}))
			continue
		}
		data, ok := views[c.actor.Role]
		if !ok {
			data = mustMarshal(ServerFrame{
				Type:          FrameSnapshot,
				ApplicationID: e.ApplicationID,
				Event:         string(e.Type),
				Revision:      e.Revision,
				Payload:       h.render(e.Snapshot.ViewFor(c.actor.Role), c.actor.Role),
			})
			views[c.actor.Role] = data
		}
		c.subs[e.ApplicationID] = e.Revision
		h.enqueue(c, data)
	}
}

// enqueue must be called with h.mu held. A client that cannot keep up is
// disconnected; on reconnect it resubscribes and receives a fresh snapshot.
func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("dropping slow realtime client", zap.Int64("user_id", c.actor.UserID))
		h.removeLocked(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = true
	metrics.RealtimeConnections.Inc()
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(c)
}

func (h *Hub) removeLocked(c *client) {
	if !h.clients[c] {
		return
	}
	delete(h.clients, c)
	close(c.send)
	metrics.RealtimeConnections.Dec()
}

// reserve marks id as subscribed before its snapshot is read, so a commit
// landing during the read is delivered instead of lost. Revision 0 means
// nothing has been sent yet.
func (h *Hub) reserve(c *client, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := c.subs[id]; !ok {
		c.subs[id] = 0
	}
}

// release drops a reservation whose snapshot read failed. A subscription
// that already received a revision is kept.
func (h *Hub) release(c *client, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if last, ok := c.subs[id]; ok && last == 0 {
		delete(c.subs, id)
	}
}

// subscribe queues the initial snapshot of a reserved subscription unless a
// newer revision already went out. It is a no-op when the reservation was
// dropped meanwhile (unsubscribe or lost access).
func (h *Hub) subscribe(c *client, app *domain.Application) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.clients[c] {
		return
	}
	last, ok := c.subs[app.ID]
	if !ok || last >= app.Revision {
		return
	}
	c.subs[app.ID] = app.Revision
	h.enqueue(c, mustMarshal(ServerFrame{
		Type:          FrameSnapshot,
		ApplicationID: app.ID,
		Revision:      app.Revision,
		Payload:       h.render(app.ViewFor(c.actor.Role), c.actor.Role),
	}))
}

func (h *Hub) unsubscribe(c *client, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(c.subs, id)
}

func (h *Hub) sendError(c *client, id int64, msg string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[c] {
		h.enqueue(c, mustMarshal(ServerFrame{Type: FrameError, ApplicationID: id, Payload: msg}))
	}
}

// Connections reports the number of open websocket clients.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func mustMarshal(f ServerFrame) []byte {
	data, err := json.Marshal(f)
	if err != nil {
		data, _ = json.Marshal(ServerFrame{Type: FrameError, ApplicationID: f.ApplicationID, Payload: "encoding failed"})
	}
	return data
}
