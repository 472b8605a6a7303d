// Package store holds the persistence collaborators of the chat service:
// accounts, sessions, private and group message history.
package store

import (
	"context"
	"errors"

	"github.com/erilali/chatwire/internal/protocol"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrExists   = errors.New("store: already exists")
)

// Account is a registered user together with its password hash.
type Account struct {
	protocol.User
	PasswordHash []byte
}

type Users interface {
	// Create registers a login and assigns it the next user id.
	// It returns ErrExists when the login is taken.
	Create(ctx context.Context, login string, passwordHash []byte) (protocol.User, error)
	ByLogin(ctx context.Context, login string) (Account, error)
	ByID(ctx context.Context, id int32) (Account, error)
	List(ctx context.Context) ([]protocol.User, error)
}

// Sessions maps tokens to the login they were issued for. Logins, unlike
// user ids, are stable across instances and restarts.
type Sessions interface {
	Put(ctx context.Context, token, login string) error
	// Lookup returns ErrNotFound for unknown or expired tokens.
	Lookup(ctx context.Context, token string) (string, error)
	Delete(ctx context.Context, token string) error
}

type Messages interface {
	AppendPrivate(ctx context.Context, msg protocol.PrivateMessage) error
	// PrivateConversation returns the messages between a and b ordered by
	// timestamp, keeping arrival order for equal timestamps.
	PrivateConversation(ctx context.Context, a, b int32) ([]protocol.PrivateMessage, error)
	// Counterparties returns the ids of every user that exchanged a private
	// message with userID.
	Counterparties(ctx context.Context, userID int32) ([]int32, error)
	AppendChat(ctx context.Context, msg protocol.ChatMessage) error
	ChatHistory(ctx context.Context, chatID int32) ([]protocol.ChatMessage, error)
}

type Chats interface {
	Create(ctx context.Context, title string, members []protocol.User) (protocol.Chat, error)
	Get(ctx context.Context, id int32) (protocol.Chat, error)
	ForMember(ctx context.Context, userID int32) ([]protocol.Chat, error)
}
