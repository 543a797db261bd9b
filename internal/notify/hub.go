// Package notify is the notification transport named as an external
// collaborator in the matching engine's design: a per-user delivery
// interface keyed by user identifier, fed by staged events after a
// transaction commits. Delivery is best-effort per user channel.
package notify

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub fans events out to connected per-user websocket channels, keyed by
// user id.
type Hub struct {
	mu    sync.RWMutex
	conns map[int64][]*websocket.Conn
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[int64][]*websocket.Conn)}
}

// Register attaches a websocket connection to a user's channel. The caller
// owns the connection's read loop; Hub only ever writes to it.
func (h *Hub) Register(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[userID] = append(h.conns[userID], conn)
}

// Unregister detaches a connection, e.g. on disconnect.
func (h *Hub) Unregister(userID int64, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	conns := h.conns[userID]
	for i, c := range conns {
		if c == conn {
			h.conns[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.conns[userID]) == 0 {
		delete(h.conns, userID)
	}
}

// Send delivers a JSON-encodable payload to every connection registered for
// userID. A write failure on one connection does not block delivery to
// others; it is logged and the connection is dropped.
func (h *Hub) Send(userID int64, eventName string, payload any) {
	h.mu.RLock()
	conns := append([]*websocket.Conn(nil), h.conns[userID]...)
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	msg := struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}{Event: eventName, Data: payload}

	body, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("notify: failed to marshal event")
		return
	}

	for _, c := range conns {
		if err := c.WriteMessage(websocket.TextMessage, body); err != nil {
			log.Warn().Err(err).Int64("user_id", userID).Msg("notify: dropping dead connection")
			h.Unregister(userID, c)
		}
	}
}
