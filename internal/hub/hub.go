// internal/hub/hub.go
// Provides the Hub: client registry, per-login event delivery and the bridge
// between websocket frames and the chat service.
package hub

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"

	"github.com/erilali/chatwire/internal/config"
	"github.com/erilali/chatwire/internal/logger"
	"github.com/erilali/chatwire/internal/protocol"
)

// Handler executes decoded requests. chat.Service implements it.
type Handler interface {
	Handle(ctx context.Context, req protocol.Request) protocol.RequestResult
	Authenticate(ctx context.Context, token string) (protocol.User, error)
}

type delivery struct {
	recipient string
	event     protocol.Event
}

// Hub manages connected clients and routes events to them.
type Hub struct {
	Clients    map[*Client]bool
	Register   chan *Client
	Unregister chan *Client
	deliver    chan delivery
	done       chan struct{}
	Mu         sync.Mutex

	byLogin map[string]map[*Client]bool

	NatsConn  *nats.Conn
	Js        nats.JetStreamContext
	natsSub   *nats.Subscription
	StartTime time.Time
	Logger    *logger.Logger

	handler    Handler
	sendBuffer int
	readLimit  int64
	upgrader   websocket.Upgrader
}

// NewHub creates a Hub. nc and js may be nil, in which case events are
// delivered only to clients connected to this process.
func NewHub(handler Handler, nc *nats.Conn, js nats.JetStreamContext, logger *logger.Logger, cfg config.ServerConfig) *Hub {
	h := &Hub{
		Clients:    make(map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		deliver:    make(chan delivery),
		done:       make(chan struct{}),
		byLogin:    make(map[string]map[*Client]bool),
		NatsConn:   nc,
		Js:         js,
		StartTime:  time.Now(),
		Logger:     logger,
		handler:    handler,
		sendBuffer: cfg.SendBuffer,
		readLimit:  cfg.ReadLimit,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
	return h
}

// originChecker allows every origin when the list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		return set[r.Header.Get("Origin")]
	}
}

// Run is the main event loop. It owns registration, unregistration and event
// delivery until ctx is cancelled, then closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.Mu.Lock()
			h.Clients[client] = true
			h.Mu.Unlock()
			h.Logger.Debugf("Client registered: %s", client.Conn.RemoteAddr())

		case client := <-h.Unregister:
			h.Mu.Lock()
			h.removeLocked(client)
			h.Mu.Unlock()

		case d := <-h.deliver:
			h.deliverLocal(d)

		case <-ctx.Done():
			h.Mu.Lock()
			for client := range h.Clients {
				h.removeLocked(client)
			}
			h.Mu.Unlock()
			if h.natsSub != nil {
				if err := h.natsSub.Unsubscribe(); err != nil {
					h.Logger.Warnf("Error unsubscribing from events: %v", err)
				}
			}
			return
		}
	}
}

// removeLocked drops a client from every index and stops its writer.
func (h *Hub) removeLocked(client *Client) {
	if _, ok := h.Clients[client]; !ok {
		return
	}
	delete(h.Clients, client)
	if login := client.Login(); login != "" {
		if set := h.byLogin[login]; set != nil {
			delete(set, client)
			if len(set) == 0 {
				delete(h.byLogin, login)
			}
		}
	}
	client.close()
	h.Logger.Debugf("Client unregistered: %s", client.Conn.RemoteAddr())
}

// bind attaches an authenticated login to a connection so events for that
// login reach it.
func (h *Hub) bind(client *Client, login, token string) {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	if _, ok := h.Clients[client]; !ok {
		return
	}
	client.mu.Lock()
	prev := client.login
	client.login = login
	client.token = token
	client.mu.Unlock()

	if prev == login {
		return
	}
	if set := h.byLogin[prev]; set != nil {
		delete(set, client)
		if len(set) == 0 {
			delete(h.byLogin, prev)
		}
	}
	if h.byLogin[login] == nil {
		h.byLogin[login] = make(map[*Client]bool)
	}
	h.byLogin[login][client] = true
	h.Logger.WithField("login", login).Info("Connection authenticated")
}

func (h *Hub) deliverLocal(d delivery) {
	// Copy the recipients so encoding happens without the lock held.
	h.Mu.Lock()
	targets := make([]*Client, 0, len(h.byLogin[d.recipient]))
	for client := range h.byLogin[d.recipient] {
		targets = append(targets, client)
	}
	h.Mu.Unlock()

	for _, client := range targets {
		data, err := client.Codec().EncodeEvent(d.event)
		if err != nil {
			h.Logger.Debugf("Skipping %s event for %s: %v", d.event.Kind(), d.recipient, err)
			continue
		}
		if !client.trySend(data) {
			// Slow or gone: drop it and let the pumps finish the cleanup.
			h.Mu.Lock()
			h.removeLocked(client)
			h.Mu.Unlock()
		}
	}
}

// PublishEvent routes an event to every connection of recipient. With NATS
// available the event goes through the bus so other instances see it too;
// this instance receives it back through its own subscription.
func (h *Hub) PublishEvent(ctx context.Context, recipient string, ev protocol.Event) error {
	if h.NatsConn != nil {
		err := h.publishEventToNATS(recipient, ev)
		if err == nil {
			return nil
		}
		h.Logger.Errorf("Failed to publish event to NATS, delivering locally: %v", err)
	}
	return h.enqueue(ctx, delivery{recipient: recipient, event: ev})
}

func (h *Hub) enqueue(ctx context.Context, d delivery) error {
	select {
	case h.deliver <- d:
		return nil
	case <-h.done:
		return errHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connected reports how many connections are registered.
func (h *Hub) Connected() int {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return len(h.Clients)
}

// Online reports how many connections are authenticated as login.
func (h *Hub) Online(login string) int {
	h.Mu.Lock()
	defer h.Mu.Unlock()
	return len(h.byLogin[login])
}
