// internal/hub/nats.go
package hub

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/erilali/chatwire/internal/protocol"
)

const (
	// EventSubjectPrefix is followed by the recipient login. Logins are
	// restricted to letters, digits and underscore, so they are valid tokens.
	EventSubjectPrefix = "events."
	EventSubjects      = EventSubjectPrefix + "*"
	EventStream        = "EVENTS"
)

// busEvent is the cross-instance form of an event. Unlike the client schemas
// it keeps both id and login of every user, so any codec can render it.
type busEvent struct {
	Recipient string             `json:"recipient"`
	Kind      protocol.EventKind `json:"kind"`
	Text      string             `json:"text"`
	Sender    protocol.User      `json:"sender"`
	Receiver  *protocol.User     `json:"receiver,omitempty"`
	ChatID    int32              `json:"chat_id,omitempty"`
	Timestamp int64              `json:"timestamp"`
}

func encodeBusEvent(recipient string, ev protocol.Event) ([]byte, error) {
	w := busEvent{Recipient: recipient, Kind: ev.Kind()}
	switch e := ev.(type) {
	case protocol.PrivateMessageEvent:
		receiver := e.Message.Receiver
		w.Text = e.Message.Text
		w.Sender = e.Message.Sender
		w.Receiver = &receiver
		w.Timestamp = e.Message.SentAt.Seconds()
	case protocol.ChatMessageEvent:
		w.Text = e.Message.Text
		w.Sender = e.Message.Sender
		w.ChatID = e.Message.ChatID
		w.Timestamp = e.Message.SentAt.Seconds()
	default:
		return nil, fmt.Errorf("hub: unsupported event %T", ev)
	}
	return json.Marshal(w)
}

func decodeBusEvent(data []byte) (string, protocol.Event, error) {
	var w busEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return "", nil, fmt.Errorf("hub: decode bus event: %w", err)
	}
	switch w.Kind {
	case protocol.EventNewPrivateMessage:
		if w.Receiver == nil {
			return "", nil, fmt.Errorf("hub: private event without receiver")
		}
		return w.Recipient, protocol.PrivateMessageEvent{Message: protocol.PrivateMessage{
			Text:     w.Text,
			Sender:   w.Sender,
			Receiver: *w.Receiver,
			SentAt:   protocol.FromEpochSeconds(w.Timestamp),
		}}, nil
	case protocol.EventNewChatMessage:
		return w.Recipient, protocol.ChatMessageEvent{Message: protocol.ChatMessage{
			Text:   w.Text,
			Sender: w.Sender,
			ChatID: w.ChatID,
			SentAt: protocol.FromEpochSeconds(w.Timestamp),
		}}, nil
	default:
		return "", nil, fmt.Errorf("hub: unknown bus event kind %q", w.Kind)
	}
}

// publishEventToNATS publishes an event on the recipient's subject, through
// JetStream when available so the EVENTS stream retains it.
func (h *Hub) publishEventToNATS(recipient string, ev protocol.Event) error {
	data, err := encodeBusEvent(recipient, ev)
	if err != nil {
		return err
	}
	subject := EventSubjectPrefix + recipient
	if h.Js != nil {
		if _, err := h.Js.Publish(subject, data); err != nil {
			return fmt.Errorf("jetstream publish %s: %w", subject, err)
		}
		return nil
	}
	return h.NatsConn.Publish(subject, data)
}

// SubscribeEvents starts feeding events published by any instance into the
// local delivery loop. It must be called before Run when NATS is in use.
func (h *Hub) SubscribeEvents() error {
	if h.NatsConn == nil {
		return nil
	}
	sub, err := h.NatsConn.Subscribe(EventSubjects, func(msg *nats.Msg) {
		recipient, ev, err := decodeBusEvent(msg.Data)
		if err != nil {
			h.Logger.Errorf("Dropping event from %s: %v", msg.Subject, err)
			return
		}
		select {
		case h.deliver <- delivery{recipient: recipient, event: ev}:
		case <-h.done:
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", EventSubjects, err)
	}
	h.natsSub = sub
	return nil
}
