package ws

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cwrk-planet/watchparty/internal/domain"
	"github.com/cwrk-planet/watchparty/internal/service"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

// wsConn — привязка сокета к комнате и пользователю.
// Писать в сокет может только writePump, остальные кладут сообщения в send.
type wsConn struct {
	conn     *websocket.Conn
	roomCode string
	identity domain.Identity

	mu     sync.Mutex
	send   chan []byte
	closed bool
	done   chan struct{}
}

func newWsConn(conn *websocket.Conn, roomCode string, id domain.Identity, queue int) *wsConn {
	return &wsConn{
		conn:     conn,
		roomCode: roomCode,
		identity: id,
		send:     make(chan []byte, queue),
		done:     make(chan struct{}),
	}
}

func (c *wsConn) Send(ev service.Event) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", ev.Type, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("connection closed: %w", domain.ErrTransportFailure)
	}
	select {
	case c.send <- b:
		return nil
	default:
		// медленный клиент: рвём сокет сразу, не дожидаясь очереди
		c.closeLocked()
		_ = c.conn.Close()
		return fmt.Errorf("send queue full: %w", domain.ErrTransportFailure)
	}
}

// Close закрывает очередь: writePump допишет накопленное, отправит close-фрейм и закроет сокет.
func (c *wsConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	return nil
}

func (c *wsConn) closeLocked() {
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *wsConn) UserID() string   { return c.identity.ID }
func (c *wsConn) RoomCode() string { return c.roomCode }

func (c *wsConn) writePump(pingEvery time.Duration) {
	ticker := time.NewTicker(pingEvery)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		_ = c.Close()
		close(c.done)
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
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
