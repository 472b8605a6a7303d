package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/erilali/chatwire/internal/protocol"
)

// Memory keeps accounts, sessions and message history in process.
// It implements Users, Sessions and Messages; see Chats for group chats.
type Memory struct {
	mu sync.RWMutex

	accounts []Account
	byLogin  map[string]int

	sessions   map[string]memorySession
	sessionTTL time.Duration
	now        func() time.Time

	private []protocol.PrivateMessage
	chats   []protocol.Chat
	chatLog map[int32][]protocol.ChatMessage
}

type memorySession struct {
	login   string
	expires time.Time // zero means never
}

type MemoryOption func(*Memory)

// WithSessionTTL expires sessions ttl after they are issued. Zero keeps them
// until deleted, matching RedisSessions.
func WithSessionTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) { m.sessionTTL = ttl }
}

func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		byLogin:  make(map[string]int),
		sessions: make(map[string]memorySession),
		now:      time.Now,
		chatLog:  make(map[int32][]protocol.ChatMessage),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Create(_ context.Context, login string, passwordHash []byte) (protocol.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byLogin[login]; ok {
		return protocol.User{}, ErrExists
	}
	u := protocol.User{ID: int32(len(m.accounts) + 1), Login: login}
	m.byLogin[login] = len(m.accounts)
	m.accounts = append(m.accounts, Account{User: u, PasswordHash: append([]byte(nil), passwordHash...)})
	return u, nil
}

func (m *Memory) ByLogin(_ context.Context, login string) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	idx, ok := m.byLogin[login]
	if !ok {
		return Account{}, ErrNotFound
	}
	return m.accounts[idx], nil
}

func (m *Memory) ByID(_ context.Context, id int32) (Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if id < 1 || int(id) > len(m.accounts) {
		return Account{}, ErrNotFound
	}
	return m.accounts[id-1], nil
}

func (m *Memory) List(_ context.Context) ([]protocol.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	users := make([]protocol.User, 0, len(m.accounts))
	for _, a := range m.accounts {
		users = append(users, a.User)
	}
	return users, nil
}

// Chats returns the group chat view of the store. Users and Chats both
// declare Create, so the chat methods live on a separate type.
func (m *Memory) Chats() Chats { return memoryChats{m} }

func (m *Memory) Put(_ context.Context, token, login string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess := memorySession{login: login}
	if m.sessionTTL > 0 {
		sess.expires = m.now().Add(m.sessionTTL)
	}
	m.sessions[token] = sess
	return nil
}

func (m *Memory) Lookup(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[token]
	if !ok {
		return "", ErrNotFound
	}
	if !sess.expires.IsZero() && !m.now().Before(sess.expires) {
		delete(m.sessions, token)
		return "", ErrNotFound
	}
	return sess.login, nil
}

func (m *Memory) Delete(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, token)
	return nil
}

func (m *Memory) AppendPrivate(_ context.Context, msg protocol.PrivateMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.private = append(m.private, msg)
	return nil
}

func (m *Memory) PrivateConversation(_ context.Context, a, b int32) ([]protocol.PrivateMessage, error) {
	m.mu.RLock()
	var out []protocol.PrivateMessage
	for _, msg := range m.private {
		if msg.Involves(a, b) {
			out = append(out, msg)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt < out[j].SentAt })
	return out, nil
}

func (m *Memory) Counterparties(_ context.Context, userID int32) ([]int32, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[int32]bool)
	var out []int32
	for _, msg := range m.private {
		var other int32
		switch userID {
		case msg.Sender.ID:
			other = msg.Receiver.ID
		case msg.Receiver.ID:
			other = msg.Sender.ID
		default:
			continue
		}
		if !seen[other] {
			seen[other] = true
			out = append(out, other)
		}
	}
	return out, nil
}

func (m *Memory) AppendChat(_ context.Context, msg protocol.ChatMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.ChatID < 1 || int(msg.ChatID) > len(m.chats) {
		return ErrNotFound
	}
	m.chatLog[msg.ChatID] = append(m.chatLog[msg.ChatID], msg)
	return nil
}

func (m *Memory) ChatHistory(_ context.Context, chatID int32) ([]protocol.ChatMessage, error) {
	m.mu.RLock()
	out := append([]protocol.ChatMessage(nil), m.chatLog[chatID]...)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt < out[j].SentAt })
	return out, nil
}

type memoryChats struct{ m *Memory }

func (c memoryChats) Create(_ context.Context, title string, members []protocol.User) (protocol.Chat, error) {
	c.m.mu.Lock()
	defer c.m.mu.Unlock()
	chat := protocol.Chat{
		ID:      int32(len(c.m.chats) + 1),
		Title:   title,
		Members: append([]protocol.User(nil), members...),
	}
	c.m.chats = append(c.m.chats, chat)
	return chat, nil
}

func (c memoryChats) Get(_ context.Context, id int32) (protocol.Chat, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	if id < 1 || int(id) > len(c.m.chats) {
		return protocol.Chat{}, ErrNotFound
	}
	return c.m.chats[id-1], nil
}

func (c memoryChats) ForMember(_ context.Context, userID int32) ([]protocol.Chat, error) {
	c.m.mu.RLock()
	defer c.m.mu.RUnlock()
	var out []protocol.Chat
	for _, chat := range c.m.chats {
		if chat.HasMember(userID) {
			out = append(out, chat)
		}
	}
	return out, nil
}
