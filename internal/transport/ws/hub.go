package ws

import (
	"log/slog"
	"sync"

	"github.com/cwrk-planet/watchparty/internal/service"
)

// Hub — реестр живых соединений по комнатам. Доставка неблокирующая:
// каждое соединение само буферизует исходящие сообщения.
type Hub struct {
	mu    sync.RWMutex
	rooms map[string]map[service.Conn]struct{} // roomCode -> set of connections
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[service.Conn]struct{})}
}

func (h *Hub) Add(c service.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomCode()]
	if !ok {
		rs = make(map[service.Conn]struct{})
		h.rooms[c.RoomCode()] = rs
	}
	rs[c] = struct{}{}
}

func (h *Hub) Remove(c service.Conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	rs, ok := h.rooms[c.RoomCode()]
	if !ok {
		return 0
	}
	delete(rs, c)
	if len(rs) == 0 {
		delete(h.rooms, c.RoomCode())
		return 0
	}

	remaining := 0
	for other := range rs {
		if other.UserID() == c.UserID() {
			remaining++
		}
	}
	return remaining
}

func (h *Hub) targets(code string, exclude service.Conn) []service.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	rs := h.rooms[code]
	out := make([]service.Conn, 0, len(rs))
	for c := range rs {
		if c != exclude {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) Broadcast(code string, ev service.Event, exclude service.Conn) {
	for _, c := range h.targets(code, exclude) {
		h.Unicast(c, ev)
	}
}

// Unicast — best-effort: сбой закрывает только это соединение,
// его read loop завершится и запустит обработку отключения.
func (h *Hub) Unicast(c service.Conn, ev service.Event) {
	if err := c.Send(ev); err != nil {
		slog.Warn("ws deliver failed", "room", c.RoomCode(), "user", c.UserID(), "event", ev.Type, "err", err)
		_ = c.Close()
	}
}

func (h *Hub) ConnsOf(code, userID string) []service.Conn {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []service.Conn
	for c := range h.rooms[code] {
		if c.UserID() == userID {
			out = append(out, c)
		}
	}
	return out
}

func (h *Hub) CloseRoom(code string) {
	h.mu.Lock()
	rs := h.rooms[code]
	delete(h.rooms, code)
	h.mu.Unlock()

	for c := range rs {
		_ = c.Close()
	}
}

// Count — число живых соединений комнаты.
func (h *Hub) Count(code string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[code])
}

// CloseAll закрывает все соединения процесса (остановка сервера).
func (h *Hub) CloseAll() {
	h.mu.Lock()
	rooms := h.rooms
	h.rooms = make(map[string]map[service.Conn]struct{})
	h.mu.Unlock()

	for _, rs := range rooms {
		for c := range rs {
			_ = c.Close()
		}
	}
}
