package ws

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/holoscene/presence-backend/internal/presence"
)

const (
	sendBuffer     = 256
	writeWait      = 10 * time.Second
	maxMessageSize = 4096
)

// ErrClosed is returned by Send and Ping after the client has shut down.
var ErrClosed = errors.New("ws: client closed")

// ErrSendBufferFull is returned by Send when the peer is not draining its
// connection fast enough; the caller drops that message for this peer.
var ErrSendBufferFull = errors.New("ws: send buffer full")

// Client adapts one gorilla/websocket connection to the presence registry's
// Conn interface. All frames go out through the write pump, since a websocket
// connection supports only one concurrent writer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	ping chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded websocket connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		ping: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Send queues a text frame for delivery. It never blocks.
func (c *Client) Send(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrSendBufferFull
	}
}

// Ping queues a liveness probe. A probe already in flight is enough.
func (c *Client) Ping() error {
	select {
	case <-c.done:
		return ErrClosed
	case c.ping <- struct{}{}:
	default:
	}
	return nil
}

// Close tears down the connection. Safe to call from any goroutine and more
// than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return c.conn.Close()
}

// ReadPump consumes inbound frames and feeds them to the registry until the
// connection drops, then disconnects the session. Pong control frames report
// into the registry's liveness flag; there is no read deadline, eviction is
// the liveness sweep's job.
func (c *Client) ReadPump(ctx context.Context, reg *presence.Registry, sess *presence.Session) {
	defer func() {
		c.Close()
		reg.Disconnect(ctx, sess)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetPongHandler(func(string) error {
		reg.MarkAlive(sess)
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[WS] Read error for client %s: %v", sess.User, err)
			}
			return
		}
		reg.HandleMessage(ctx, sess, string(msg))
	}
}

// WritePump drains queued frames and probes onto the connection until the
// client is closed or a write fails.
func (c *Client) WritePump() {
	defer c.conn.Close()
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("[WS] Write error: %v", err)
				return
			}
		case <-c.ping:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
