package session

import (
	"sync"

	"codesync/internal/models"
)

// Hub fans frames out to every connection subscribed to a room.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Client
}

func NewHub() *Hub { return &Hub{rooms: make(map[string]map[string]*Client)} }

func (h *Hub) Subscribe(roomID string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	group, ok := h.rooms[roomID]
	if !ok {
		group = make(map[string]*Client)
		h.rooms[roomID] = group
	}
	group[c.ID] = c
}

func (h *Hub) Unsubscribe(roomID, connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(roomID, connID)
}

// UnsubscribeAll drops connID from every room it is subscribed to.
func (h *Hub) UnsubscribeAll(connID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for roomID := range h.rooms {
		h.unsubscribeLocked(roomID, connID)
	}
}

func (h *Hub) unsubscribeLocked(roomID, connID string) {
	group, ok := h.rooms[roomID]
	if !ok {
		return
	}
	delete(group, connID)
	if len(group) == 0 {
		delete(h.rooms, roomID)
	}
}

// CloseRoom forgets every subscription of roomID.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.rooms, roomID)
}

func (h *Hub) Broadcast(roomID string, frame models.WSFrame) {
	h.BroadcastExcept(roomID, "", frame)
}

// BroadcastExcept sends frame to every subscriber of roomID other than exceptConnID.
func (h *Hub) BroadcastExcept(roomID, exceptConnID string, frame models.WSFrame) {
	for _, c := range h.subscribers(roomID) {
		if c.ID == exceptConnID {
			continue
		}
		c.Send(frame)
	}
}

func (h *Hub) SubscriberCount(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// snapshot so sends happen outside the hub lock
func (h *Hub) subscribers(roomID string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	group := h.rooms[roomID]
	out := make([]*Client, 0, len(group))
	for _, c := range group {
		out = append(out, c)
	}
	return out
}
