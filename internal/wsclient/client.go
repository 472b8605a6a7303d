// internal/wsclient/client.go
// Provides a websocket client for the chat protocol: correlated calls plus a
// stream of pushed events.
package wsclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/erilali/chatwire/internal/logger"
	"github.com/erilali/chatwire/internal/protocol"
)

// ErrClosed is returned by calls made on, or pending on, a closed connection.
var ErrClosed = errors.New("wsclient: connection closed")

const defaultEventBuffer = 64

type call struct {
	id     uint32
	result chan protocol.RequestResult
}

// Client is safe for concurrent use.
type Client struct {
	conn   *websocket.Conn
	codec  protocol.Codec
	logger *logger.Logger

	nextID  atomic.Uint32
	writeMu sync.Mutex

	mu      sync.Mutex
	pending []call
	token   string
	err     error

	events chan protocol.Event
	done   chan struct{}
}

type Option func(*options)

type options struct {
	version     protocol.Version
	eventBuffer int
	logger      *logger.Logger
	dialer      *websocket.Dialer
}

// WithVersion selects the protocol version spoken on the connection.
func WithVersion(v protocol.Version) Option { return func(o *options) { o.version = v } }

// WithEventBuffer sets how many unread events are kept before new ones are dropped.
func WithEventBuffer(n int) Option { return func(o *options) { o.eventBuffer = n } }

func WithLogger(l *logger.Logger) Option { return func(o *options) { o.logger = l } }

func WithDialer(d *websocket.Dialer) Option { return func(o *options) { o.dialer = d } }

// Dial connects to a chat server websocket endpoint such as ws://host:8080/ws.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	o := options{
		version:     protocol.Latest,
		eventBuffer: defaultEventBuffer,
		dialer:      websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.NewLogger("wsclient")
	}
	codec, err := protocol.CodecFor(o.version)
	if err != nil {
		return nil, err
	}
	conn, _, err := o.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	c := &Client{
		conn:   conn,
		codec:  codec,
		logger: o.logger,
		events: make(chan protocol.Event, o.eventBuffer),
		done:   make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

// Events delivers pushed events. It is closed when the connection ends.
func (c *Client) Events() <-chan protocol.Event { return c.events }

// Version is the protocol version spoken on the connection.
func (c *Client) Version() protocol.Version { return c.codec.Version() }

// Token returns the session token sent with every request.
func (c *Client) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// SetToken replaces the session token, e.g. one issued to another connection.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// Call sends one request and waits for its result. A failed request is
// returned as a *protocol.RequestError.
func (c *Client) Call(ctx context.Context, m protocol.Method) (protocol.MethodResult, error) {
	req := protocol.Request{
		Version:      c.codec.Version(),
		ID:           c.nextID.Add(1),
		Method:       m,
		SessionToken: c.Token(),
	}
	data, err := c.codec.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	pc := call{id: req.ID, result: make(chan protocol.RequestResult, 1)}
	c.writeMu.Lock()
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		c.writeMu.Unlock()
		return nil, err
	}
	// Queue before writing so the result cannot arrive first.
	c.pending = append(c.pending, pc)
	c.mu.Unlock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		c.shutdown(fmt.Errorf("wsclient: write: %w", err))
		return nil, err
	}

	select {
	case res := <-pc.result:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Result, nil
	case <-ctx.Done():
		// The result channel is buffered; a late result is discarded.
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeErr()
	}
}

func (c *Client) readLoop() {
	defer close(c.events)
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.shutdown(err)
			return
		}
		// The server batches queued frames into one message.
		for _, raw := range bytes.Split(data, []byte{'\n'}) {
			if len(raw) == 0 {
				continue
			}
			frame, err := c.codec.DecodeFrame(raw)
			if err != nil {
				c.logger.Warnf("Ignoring undecodable frame: %v", err)
				continue
			}
			switch frame.Kind {
			case protocol.FrameResult:
				c.resolve(frame.Result)
			case protocol.FrameEvent:
				select {
				case c.events <- frame.Event:
				default:
					c.logger.Warnf("Event buffer full, dropping %s event", frame.Event.Kind())
				}
			}
		}
	}
}

// resolve hands a result to its pending call: by request id when the version
// is correlated, otherwise to the oldest call.
func (c *Client) resolve(res protocol.RequestResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := -1
	if c.codec.Correlated() {
		for i, pc := range c.pending {
			if pc.id == res.ID {
				idx = i
				break
			}
		}
	} else if len(c.pending) > 0 {
		idx = 0
	}
	if idx < 0 {
		c.logger.Warnf("Result %d for %s matches no pending call", res.ID, res.Method)
		return
	}
	pc := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	pc.result <- res
}

func (c *Client) shutdown(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure) || errors.Is(err, ErrClosed) {
		c.err = ErrClosed
	} else {
		c.err = fmt.Errorf("%w: %v", ErrClosed, err)
	}
	c.pending = nil
	close(c.done)
}

func (c *Client) closeErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Close sends a close frame and tears the connection down.
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	c.shutdown(ErrClosed)
	return c.conn.Close()
}
