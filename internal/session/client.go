package session

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"codesync/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// Client is one live websocket connection. Frames are queued on a buffered
// channel and written by WritePump, so a slow peer never blocks a broadcast.
type Client struct {
	ID   string
	Conn *websocket.Conn

	send       chan models.WSFrame
	done       chan struct{}
	closeOnce  sync.Once
	pongWait   time.Duration
	pingPeriod time.Duration

	mu   sync.Mutex
	hook func(models.WSFrame)
}

func NewClient(id string, conn *websocket.Conn) *Client {
	return &Client{
		ID:         id,
		Conn:       conn,
		send:       make(chan models.WSFrame, sendBuffer),
		done:       make(chan struct{}),
		pongWait:   pongWait,
		pingPeriod: pingPeriod,
	}
}

// SetSendHook replaces the default WebSocket sender (used in tests).
func (c *Client) SetSendHook(fn func(models.WSFrame)) {
	c.mu.Lock()
	c.hook = fn
	c.mu.Unlock()
}

// Send queues frame without blocking. A client whose buffer is full is
// closed and the frame dropped.
func (c *Client) Send(frame models.WSFrame) {
	c.mu.Lock()
	hook := c.hook
	c.mu.Unlock()
	if hook != nil {
		hook(frame)
		return
	}
	if c.Conn == nil {
		return
	}

	select {
	case <-c.done:
		return
	default:
	}

	select {
	case c.send <- frame:
	default:
		c.Close()
		_ = c.Conn.Close()
	}
}

// Close stops the write pump. Safe to call more than once.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// KeepAlive arms the read deadline; every pong from the peer extends it.
func (c *Client) KeepAlive() {
	_ = c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})
}

// WritePump drains the send queue and pings the peer until Close is called
// or a write fails. It owns every write on Conn.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteJSON(frame); err != nil {
				c.Close()
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}

		case <-c.done:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
