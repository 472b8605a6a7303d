// internal/protocol/types.go
// Contains the value types exchanged between chat clients and the server.
package protocol

import "time"

// Version identifies a revision of the wire schema.
type Version uint8

const (
	// V1 addresses users by numeric id and carries no correlation id.
	V1 Version = 1
	// V2 addresses users by login and correlates results by request id.
	V2 Version = 2

	// Latest is the version new clients should speak.
	Latest = V2
)

// User is a directory entry.
type User struct {
	ID    int32  `json:"id"`
	Login string `json:"login"`
}

// Peer addresses another user. Exactly one of ID or Login is meaningful,
// depending on the protocol version that produced it.
type Peer struct {
	ID    int32
	Login string
}

// PeerByID addresses a user by numeric id.
func PeerByID(id int32) Peer { return Peer{ID: id} }

// PeerByLogin addresses a user by login.
func PeerByLogin(login string) Peer { return Peer{Login: login} }

// ByLogin reports whether the peer is addressed by login.
func (p Peer) ByLogin() bool { return p.Login != "" }

// PrivateMessage is a direct message between two users.
type PrivateMessage struct {
	Text     string
	Sender   User
	Receiver User
	SentAt   Timestamp
}

// NewPrivateMessage builds a message sent at the given time, truncated to seconds.
func NewPrivateMessage(text string, at time.Time, sender, receiver User) PrivateMessage {
	return PrivateMessage{Text: text, Sender: sender, Receiver: receiver, SentAt: FromTime(at)}
}

// Timestamp returns the send time as UTC calendar time.
func (m PrivateMessage) Timestamp() time.Time { return m.SentAt.Time() }

// Involves reports whether the message belongs to the conversation between a and b.
func (m PrivateMessage) Involves(a, b int32) bool {
	return (m.Sender.ID == a && m.Receiver.ID == b) || (m.Sender.ID == b && m.Receiver.ID == a)
}

// ChatMessage is a message posted to a group chat.
type ChatMessage struct {
	Text   string
	Sender User
	ChatID int32
	SentAt Timestamp
}

// NewChatMessage builds a chat message sent at the given time, truncated to seconds.
func NewChatMessage(text string, at time.Time, sender User, chatID int32) ChatMessage {
	return ChatMessage{Text: text, Sender: sender, ChatID: chatID, SentAt: FromTime(at)}
}

// Timestamp returns the send time as UTC calendar time.
func (m ChatMessage) Timestamp() time.Time { return m.SentAt.Time() }

// Chat is a group conversation.
type Chat struct {
	ID      int32  `json:"id"`
	Title   string `json:"title"`
	Members []User `json:"members"`
}

// HasMember reports whether the user id belongs to the chat.
func (c Chat) HasMember(id int32) bool {
	for _, m := range c.Members {
		if m.ID == id {
			return true
		}
	}
	return false
}

// Request is one client initiated call.
type Request struct {
	Version      Version
	ID           uint32
	Method       Method
	SessionToken string
}

// RequestResult is the response to a Request. Exactly one of Result and Err is set.
type RequestResult struct {
	ID     uint32
	Method MethodName
	Result MethodResult
	Err    *RequestError
}

// Success builds the result of a request that completed.
func Success(req Request, res MethodResult) RequestResult {
	return RequestResult{ID: req.ID, Method: res.Method(), Result: res}
}

// Failure builds the result of a request that failed.
func Failure(req Request, reason Reason) RequestResult {
	var name MethodName
	if req.Method != nil {
		name = req.Method.Name()
	}
	return RequestResult{ID: req.ID, Method: name, Err: NewRequestError(reason)}
}

// OK reports whether the request succeeded.
func (r RequestResult) OK() bool { return r.Err == nil }
