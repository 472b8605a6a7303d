// internal/hub/websocket.go
package hub

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	webSocketReadDeadline  = 60 * time.Second
	webSocketWriteDeadline = 10 * time.Second
	webSocketPingPeriod    = (webSocketReadDeadline * 9) / 10 // Must be less than readDeadline
)

var errHubStopped = errors.New("hub: stopped")

// ServeWs upgrades the HTTP connection to a WebSocket and registers the client.
// Identity is established in-protocol by LogIn or a session token, not here.
func (h *Hub) ServeWs(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Logger.Errorf("WebSocket upgrade error: %v", err)
		return
	}

	client := newClient(conn, h.sendBuffer)
	select {
	case h.Register <- client:
	case <-h.done:
		conn.Close()
		return
	}
	go h.ReadPump(context.Background(), client)
	go h.WritePump(client)
}

// ReadPump reads frames from the connection and answers them in order.
func (h *Hub) ReadPump(ctx context.Context, client *Client) {
	defer func() {
		select {
		case h.Unregister <- client:
		case <-h.done:
		}
		client.Conn.Close()
	}()

	client.Conn.SetReadLimit(h.readLimit)
	client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(webSocketReadDeadline))
		return nil
	})

	for {
		_, data, err := client.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.Logger.Errorf("WebSocket error for %s: %v", client.Conn.RemoteAddr(), err)
			}
			return
		}
		if !h.HandleFrame(ctx, client, data) {
			return
		}
	}
}

// WritePump writes queued frames to the connection and keeps it alive with pings.
// Frames queued while a write is in progress go out in the same websocket
// message, separated by newlines.
func (h *Hub) WritePump(client *Client) {
	ticker := time.NewTicker(webSocketPingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if !ok {
				// The hub closed the channel.
				client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := client.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(client.Send)
			for i := 0; i < n; i++ {
				next, ok := <-client.Send
				if !ok {
					break
				}
				w.Write([]byte{'\n'})
				w.Write(next)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(webSocketWriteDeadline))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
