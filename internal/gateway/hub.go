// Package gateway fans engine output to websocket consumers. Each streaming
// endpoint (order flow, trading data, indicators) runs its own Hub; sessions
// carry symbol and data-type filters and are removed when they cannot keep
// up with the broadcast rate.
package gateway

import (
	"log"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"marketflow/internal/model"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// ControlFunc extends a Hub with endpoint-specific control actions, e.g.
// indicator instance management. It returns false for unknown actions.
type ControlFunc func(s *Session, action, reqID string, payload []byte) bool

// Hub owns the sessions of one streaming endpoint.
type Hub struct {
	name           string
	intervals      []string
	supportedTypes []string
	providers      func() []string
	control        ControlFunc
	onClose        func(sessionID string)
	stats          *Stats

	mu       sync.RWMutex
	sessions map[*Session]struct{}
}

// NewHub creates a hub. supportedTypes is advertised in the welcome frame
// and documents which data types the endpoint carries. providers is
// consulted live so late-registered providers show up; it may be nil.
func NewHub(name string, intervals, supportedTypes []string, providers func() []string) *Hub {
	if providers == nil {
		providers = func() []string { return nil }
	}
	return &Hub{
		name:           name,
		intervals:      intervals,
		supportedTypes: supportedTypes,
		providers:      providers,
		stats:          NewStats(),
		sessions:       make(map[*Session]struct{}, 16),
	}
}

// SetControl installs the endpoint-specific control extension.
func (h *Hub) SetControl(fn ControlFunc) { h.control = fn }

// SetOnClose installs a callback fired once per removed session.
func (h *Hub) SetOnClose(fn func(sessionID string)) { h.onClose = fn }

// Stats exposes the hub's counters.
func (h *Hub) Stats() *Stats { return h.stats }

// ServeHTTP upgrades the request and runs the session until it drops.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[gateway:%s] upgrade failed: %v", h.name, err)
		return
	}
	h.attach(conn)
}

// attach registers a connection as a new session and greets it.
func (h *Hub) attach(conn *websocket.Conn) *Session {
	s := &Session{
		ID:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	h.sessions[s] = struct{}{}
	count := len(h.sessions)
	h.mu.Unlock()
	h.stats.sessionOpened()

	log.Printf("[gateway:%s] session %s connected (%d total)", h.name, s.ID, count)

	s.push(connectedEnvelope(s.ID, h.name, h.supportedTypes, h.providers(), h.intervals))
	go s.writePump()
	go s.readPump()
	return s
}

// remove unregisters a session and closes its queue. Safe to call twice.
func (h *Hub) remove(s *Session, reason string) {
	h.mu.Lock()
	_, present := h.sessions[s]
	delete(h.sessions, s)
	count := len(h.sessions)
	h.mu.Unlock()

	if !present {
		return
	}
	s.markClosed()
	h.stats.sessionClosed()
	if h.onClose != nil {
		h.onClose(s.ID)
	}
	log.Printf("[gateway:%s] session %s removed (%s, %d left)", h.name, s.ID, reason, count)
}

// Broadcast delivers a frame to every session whose filters match. Slow
// sessions are removed rather than allowed to stall the fan-out.
func (h *Hub) Broadcast(symbol string, dt model.DataType, frame []byte) {
	h.mu.RLock()
	var slow []*Session
	for s := range h.sessions {
		if !s.matches(symbol, dt) {
			continue
		}
		if s.push(frame) {
			h.stats.sent(symbol, len(frame))
		} else {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.stats.droppedSlow()
		h.remove(s, "slow consumer")
	}
}

// BroadcastAll delivers a frame to every session regardless of filters.
func (h *Hub) BroadcastAll(frame []byte) {
	h.mu.RLock()
	var slow []*Session
	for s := range h.sessions {
		if !s.push(frame) {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.stats.droppedSlow()
		h.remove(s, "slow consumer")
	}
}

// SessionCount returns the number of live sessions.
func (h *Hub) SessionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
