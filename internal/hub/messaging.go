// internal/hub/messaging.go
package hub

import (
	"context"

	"github.com/erilali/chatwire/internal/protocol"
)

// HandleFrame decodes one client frame, executes it and queues the result.
// It returns false when the connection should be dropped.
func (h *Hub) HandleFrame(ctx context.Context, client *Client, data []byte) bool {
	req, codec, err := protocol.DecodeAny(data)
	if codec == nil {
		// Unknown version or not JSON at all: answer in the last schema the
		// connection spoke.
		codec = client.Codec()
	} else {
		client.setCodec(codec)
	}

	var res protocol.RequestResult
	if err != nil {
		reqErr, ok := protocol.AsRequestError(err)
		if !ok {
			reqErr = protocol.NewRequestError(protocol.MalformedRequest)
		}
		h.Logger.WithField("remote", client.Conn.RemoteAddr().String()).Debugf("Rejected frame: %v", reqErr)
		res = protocol.Failure(req, reqErr.Reason)
	} else {
		res = h.handler.Handle(ctx, req)
		h.bindSession(ctx, client, req, res)
	}
	return h.SendResult(client, codec, res)
}

// bindSession ties the connection to the user behind a successful request's
// session, including the token a LogIn just issued.
func (h *Hub) bindSession(ctx context.Context, client *Client, req protocol.Request, res protocol.RequestResult) {
	if !res.OK() {
		return
	}
	token := req.SessionToken
	if login, ok := res.Result.(protocol.LogInResult); ok {
		token = login.SessionToken
	}
	if token == "" {
		return
	}
	client.mu.Lock()
	same := client.token == token
	client.mu.Unlock()
	if same {
		return
	}
	user, err := h.handler.Authenticate(ctx, token)
	if err != nil {
		return
	}
	h.bind(client, user.Login, token)
}

// SendResult encodes a result with codec and queues it. A full send buffer
// drops the client.
func (h *Hub) SendResult(client *Client, codec protocol.Codec, res protocol.RequestResult) bool {
	data, err := codec.EncodeResult(res)
	if err != nil {
		h.Logger.Errorf("Failed to encode %s result: %v", res.Method, err)
		data, err = codec.EncodeResult(protocol.RequestResult{
			ID:     res.ID,
			Method: res.Method,
			Err:    protocol.NewRequestError(protocol.Unavailable),
		})
		if err != nil {
			return false
		}
	}
	if !client.trySend(data) {
		h.Logger.Warnf("Dropping slow client %s", client.Conn.RemoteAddr())
		return false
	}
	return true
}
