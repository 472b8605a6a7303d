// internal/hub/client.go
package hub

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/erilali/chatwire/internal/protocol"
)

// Client represents one websocket connection. A connection is anonymous until
// a request on it authenticates, after which events for that login reach it.
type Client struct {
	Conn *websocket.Conn
	Send chan []byte

	mu     sync.Mutex
	login  string
	token  string
	codec  protocol.Codec
	closed bool
}

func newClient(conn *websocket.Conn, buffer int) *Client {
	return &Client{
		Conn:  conn,
		Send:  make(chan []byte, buffer),
		codec: mustCodec(protocol.Latest),
	}
}

func mustCodec(v protocol.Version) protocol.Codec {
	c, err := protocol.CodecFor(v)
	if err != nil {
		panic(err)
	}
	return c
}

// Login returns the authenticated login, or "" for anonymous connections.
func (c *Client) Login() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.login
}

// Codec returns the codec of the last request seen on the connection.
// Events are encoded with it.
func (c *Client) Codec() protocol.Codec {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codec
}

func (c *Client) setCodec(codec protocol.Codec) {
	c.mu.Lock()
	c.codec = codec
	c.mu.Unlock()
}

// trySend queues a frame without blocking. It fails when the client is
// closed or its buffer is full.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.Send <- data:
		return true
	default:
		return false
	}
}

// close stops the write pump. It is safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.Send)
	}
}
