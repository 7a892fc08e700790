package gateway

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"marketflow/internal/model"
)

const (
	// sendBuffer is the per-session outbound queue. A session that cannot
	// drain it is considered slow and is removed.
	sendBuffer = 256

	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	readLimit  = 4096
)

// Session is one websocket peer of a Hub. Broadcasts reach it only when
// they pass its symbol and data-type filters; an empty filter set matches
// everything.
type Session struct {
	ID   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu        sync.RWMutex
	symbols   map[string]struct{}
	dataTypes map[model.DataType]struct{}
	closed    bool

	closeOnce sync.Once
}

// SetFilters replaces the session's subscription filters.
func (s *Session) SetFilters(symbols []string, dataTypes []model.DataType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.symbols = make(map[string]struct{}, len(symbols))
	for _, sym := range symbols {
		s.symbols[sym] = struct{}{}
	}
	s.dataTypes = make(map[model.DataType]struct{}, len(dataTypes))
	for _, dt := range dataTypes {
		s.dataTypes[dt] = struct{}{}
	}
}

// subscribe adds one symbol to the filter set and replaces the data-type
// filter. An empty symbol widens the session to all symbols; empty types
// widen it to all data types.
func (s *Session) subscribe(symbol string, dataTypes []model.DataType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if symbol == "" {
		s.symbols = nil
	} else {
		if s.symbols == nil {
			s.symbols = make(map[string]struct{}, 4)
		}
		s.symbols[symbol] = struct{}{}
	}
	if len(dataTypes) == 0 {
		s.dataTypes = nil
		return
	}
	s.dataTypes = make(map[model.DataType]struct{}, len(dataTypes))
	for _, dt := range dataTypes {
		s.dataTypes[dt] = struct{}{}
	}
}

// unsubscribe drops one symbol from the filter set; with no symbol it
// clears every filter.
func (s *Session) unsubscribe(symbol string) {
	if symbol == "" {
		s.clearFilters()
		return
	}
	s.mu.Lock()
	delete(s.symbols, symbol)
	s.mu.Unlock()
}

// clearFilters returns the session to match-everything mode.
func (s *Session) clearFilters() {
	s.mu.Lock()
	s.symbols = nil
	s.dataTypes = nil
	s.mu.Unlock()
}

// matches applies the symbol and data-type filters.
func (s *Session) matches(symbol string, dt model.DataType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.symbols) > 0 {
		if _, ok := s.symbols[symbol]; !ok {
			return false
		}
	}
	if len(s.dataTypes) > 0 {
		if _, ok := s.dataTypes[dt]; !ok {
			return false
		}
	}
	return true
}

// Send enqueues a frame for this session without blocking. Returns false
// when the session is too slow to keep up.
func (s *Session) Send(frame []byte) bool { return s.push(frame) }

// push enqueues a frame without blocking. Returns false when the session
// is too slow to keep up or already closed. The closed check and the send
// share the filter lock so push never races the queue close.
func (s *Session) push(frame []byte) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// markClosed closes the send queue exactly once, excluding in-flight pushes.
func (s *Session) markClosed() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.send)
	})
}

func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))

			// Coalesce queued frames into one websocket message.
			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(s.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-s.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Session) readPump() {
	defer func() {
		s.hub.remove(s, "disconnected")
		s.conn.Close()
	}()

	s.conn.SetReadLimit(readLimit)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var ctrl controlMsg
		if err := json.Unmarshal(msg, &ctrl); err != nil {
			s.push(ErrorEnvelope("malformed control message", ""))
			continue
		}
		s.handleControl(ctrl)
	}
}

func (s *Session) handleControl(ctrl controlMsg) {
	switch ctrl.Action {
	case actionSubscribe:
		// All types must parse before any filter state changes.
		parsed := make([]model.DataType, 0, len(ctrl.Types))
		for _, raw := range ctrl.Types {
			dt, ok := model.ParseDataType(raw)
			if !ok {
				s.push(ErrorEnvelope("Invalid data type: "+raw, ctrl.ReqID))
				return
			}
			parsed = append(parsed, dt)
		}
		s.subscribe(ctrl.Symbol, parsed)
		log.Printf("[gateway:%s] session %s subscribed symbol=%q types=%v",
			s.hub.name, s.ID, ctrl.Symbol, ctrl.Types)

	case actionUnsubscribe:
		s.unsubscribe(ctrl.Symbol)
		log.Printf("[gateway:%s] session %s unsubscribed symbol=%q", s.hub.name, s.ID, ctrl.Symbol)

	case actionGetStats:
		b, _ := json.Marshal(map[string]any{
			"type":  TypeStats,
			"reqId": ctrl.ReqID,
			"stats": s.hub.stats.Snapshot(),
		})
		s.push(b)

	case actionGetProviders:
		b, _ := json.Marshal(map[string]any{
			"type":      TypeProviders,
			"reqId":     ctrl.ReqID,
			"providers": s.hub.providers(),
		})
		s.push(b)

	case actionGetIntervals:
		b, _ := json.Marshal(map[string]any{
			"type":      TypeIntervals,
			"reqId":     ctrl.ReqID,
			"intervals": s.hub.intervals,
		})
		s.push(b)

	default:
		if s.hub.control != nil {
			if handled := s.hub.control(s, ctrl.Action, ctrl.ReqID, ctrl.Payload); handled {
				return
			}
		}
		s.push(ErrorEnvelope("Unknown action: "+ctrl.Action, ctrl.ReqID))
	}
}
