package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skyfence/utm/pkg/logger"
)

const writeWait = 10 * time.Second

// Client is one connected live-feed subscriber. Each client owns a bounded
// outgoing queue and an independent writer; a slow client only ever loses
// its own oldest messages.
type Client struct {
	server *Server
	conn   *websocket.Conn
	send      chan *Message
	done      chan struct{}
	closeOnce sync.Once
	logger    *logger.Logger
}

func newClient(server *Server, conn *websocket.Conn, bufferSize int, log *logger.Logger) *Client {
	return &Client{
		server: server,
		conn:   conn,
		send:   make(chan *Message, bufferSize),
		done:   make(chan struct{}),
		logger: log,
	}
}

// enqueue places a message on the client's outgoing queue. When the queue
// is full the oldest queued message is dropped so the publisher never
// blocks on a slow subscriber.
func (c *Client) enqueue(msg *Message) {
	for {
		select {
		case <-c.done:
			return
		case c.send <- msg:
			return
		default:
		}

		// Queue full: drop the oldest entry and retry
		select {
		case <-c.send:
			c.logger.Debug("Dropped oldest queued message for slow subscriber")
		default:
		}
	}
}

// writePump drains the outgoing queue onto the connection. It exits on the
// first write failure, which unregisters the client.
func (c *Client) writePump(pingInterval time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.server.unregister(c)
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Write to subscriber failed", logger.Error(err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards inbound frames; the feed is push-only. It exists to
// notice the peer closing the connection.
func (c *Client) readPump() {
	defer c.server.unregister(c)

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}
