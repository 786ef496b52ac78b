package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"medportal/internal/dashboard"
	"medportal/internal/identity"
)

const (
	FrameSnapshot = "snapshot"
	FrameNotice   = "notice"
	FrameError    = "error"
)

// Frame is every message the server writes to a dashboard connection.
type Frame struct {
	Type  string      `json:"type"`
	Data  interface{} `json:"data,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Command is a message sent by the dashboard.
type Command struct {
	Action string `json:"action"`
	Wallet string `json:"wallet,omitempty"`
}

// Client represents one dashboard connection
type Client struct {
	ID     string
	Wallet string
	Role   identity.Role
	Conn   *websocket.Conn
	Send   chan []byte

	mu     sync.Mutex // conn writes
	sendMu sync.RWMutex
	closed bool
}

func NewClient(conn *websocket.Conn, wallet string, role identity.Role) *Client {
	return &Client{
		ID:     uuid.New().String(),
		Wallet: wallet,
		Role:   role,
		Conn:   conn,
		Send:   make(chan []byte, 256),
	}
}

// WriteLoop drains Send until it is closed or ctx ends.
func (c *Client) WriteLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.close()
			return
		case msg, ok := <-c.Send:
			if !ok {
				c.mu.Lock()
				_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
				_ = c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				c.mu.Unlock()
				c.close()
				return
			}
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			err := c.Conn.WriteMessage(websocket.TextMessage, msg)
			c.mu.Unlock()
			if err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			c.mu.Lock()
			_ = c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			_ = c.Conn.WriteMessage(websocket.PingMessage, []byte("ping"))
			c.mu.Unlock()
		}
	}
}

func (c *Client) close() {
	c.mu.Lock()
	_ = c.Conn.Close()
	c.mu.Unlock()
}

// SendMessage queues msg without blocking. It reports false when the queue
// is full or already closed.
func (c *Client) SendMessage(msg []byte) bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) SendFrame(f Frame) bool {
	payload, err := json.Marshal(f)
	if err != nil {
		return false
	}
	return c.SendMessage(payload)
}

// Deliver makes a Client usable as a dashboard sink.
func (c *Client) Deliver(s dashboard.Snapshot) {
	c.SendFrame(Frame{Type: FrameSnapshot, Data: s})
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.Send)
}

func (c *Client) isClosed() bool {
	c.sendMu.RLock()
	defer c.sendMu.RUnlock()
	return c.closed
}
