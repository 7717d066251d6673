// Package notify delivers real-time events to connected users. Delivery is
// advisory and at-most-once; nothing here is a source of truth.
package notify

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"
)

// Event is the frame written to a user's socket.
type Event struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) send(ev Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(ev)
}

// Hub holds one live websocket session per user id. A user reconnecting
// replaces the previous session.
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*session
	logger   *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{sessions: make(map[string]*session), logger: logger}
}

func (h *Hub) Add(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if old, ok := h.sessions[userID]; ok {
		_ = old.conn.Close()
	}
	h.sessions[userID] = &session{conn: conn}
}

func (h *Hub) Remove(userID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[userID]; ok {
		_ = s.conn.Close()
		delete(h.sessions, userID)
	}
}

// Notify writes the event to the user's session if one is connected. A
// user without a session is not an error; a broken session is dropped.
func (h *Hub) Notify(userID, event string, payload any) error {
	h.mu.RLock()
	s, ok := h.sessions[userID]
	h.mu.RUnlock()
	if !ok {
		return nil
	}
	if err := s.send(Event{Event: event, Data: payload}); err != nil {
		h.logger.Debug("ws send failed, dropping session", "user_id", userID, "error", err)
		h.Remove(userID)
		return err
	}
	return nil
}
