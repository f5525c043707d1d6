package websocket

import (
	"context"
	"time"

	ws "github.com/coder/websocket"
)

const pingInterval = 30 * time.Second

// Client is one live-feed connection. Its send slot holds at most one
// pending snapshot; a newer snapshot replaces an unsent one.
type Client struct {
	conn *ws.Conn
	send chan []byte
}

func NewClient(conn *ws.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, 1),
	}
}

// offer queues msg, dropping any snapshot the client has not yet received.
// It must only be called from one goroutine.
func (c *Client) offer(msg []byte) {
	for {
		select {
		case c.send <- msg:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// Run starts the write pump and runs the read pump. It blocks until the
// connection is closed.
func (c *Client) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writePump(ctx, cancel)
	c.readPump(ctx)
}

// readPump discards incoming messages and returns when the peer goes away.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump writes queued snapshots and pings to detect stale connections.
func (c *Client) writePump(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			if err := c.conn.Write(ctx, ws.MessageText, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.conn.Ping(ctx); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
