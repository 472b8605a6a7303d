// Package chat executes protocol methods against the stores: sign up, log in,
// private and group messaging. It is transport agnostic; the hub feeds it
// decoded requests and writes back the results it returns.
package chat

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/erilali/chatwire/internal/logger"
	"github.com/erilali/chatwire/internal/protocol"
	"github.com/erilali/chatwire/internal/store"
)

// EventPublisher delivers an event to every connection of a user.
type EventPublisher interface {
	PublishEvent(ctx context.Context, recipient string, ev protocol.Event) error
}

type nopPublisher struct{}

func (nopPublisher) PublishEvent(context.Context, string, protocol.Event) error { return nil }

// Stores groups the persistence collaborators of a Service.
type Stores struct {
	Users    store.Users
	Sessions store.Sessions
	Messages store.Messages
	Chats    store.Chats
}

// MemoryStores backs every store with a single in-process store.Memory.
func MemoryStores(opts ...store.MemoryOption) Stores {
	m := store.NewMemory(opts...)
	return Stores{Users: m, Sessions: m, Messages: m, Chats: m.Chats()}
}

type Service struct {
	users    store.Users
	sessions store.Sessions
	messages store.Messages
	chats    store.Chats

	events     EventPublisher
	now        func() time.Time
	newToken   func() string
	bcryptCost int
	logger     *logger.Logger
}

type Option func(*Service)

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithTokenSource(next func() string) Option { return func(s *Service) { s.newToken = next } }

func WithBcryptCost(cost int) Option { return func(s *Service) { s.bcryptCost = cost } }

func WithLogger(l *logger.Logger) Option { return func(s *Service) { s.logger = l } }

func NewService(stores Stores, opts ...Option) *Service {
	s := &Service{
		users:      stores.Users,
		sessions:   stores.Sessions,
		messages:   stores.Messages,
		chats:      stores.Chats,
		events:     nopPublisher{},
		now:        time.Now,
		newToken:   uuid.NewString,
		bcryptCost: bcrypt.DefaultCost,
		logger:     logger.NewLogger("chat"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetEvents replaces the event publisher. The hub calls it once it exists,
// since hub and service reference each other.
func (s *Service) SetEvents(p EventPublisher) {
	s.events = p
}

// Handle executes one request. The returned result always carries req.ID.
func (s *Service) Handle(ctx context.Context, req protocol.Request) protocol.RequestResult {
	if req.Method == nil {
		return protocol.Failure(req, protocol.MalformedRequest)
	}
	var caller protocol.User
	if req.Method.RequiresSession() {
		u, err := s.Authenticate(ctx, req.SessionToken)
		if err != nil {
			return s.fail(req, err)
		}
		caller = u
	}
	res, err := s.dispatch(ctx, caller, req.Method)
	if err != nil {
		return s.fail(req, err)
	}
	return protocol.Success(req, res)
}

func (s *Service) fail(req protocol.Request, err error) protocol.RequestResult {
	if reqErr, ok := protocol.AsRequestError(err); ok {
		return protocol.Failure(req, reqErr.Reason)
	}
	s.logger.WithError(err).WithField("method", req.Method.Name()).Error("request failed")
	return protocol.Failure(req, protocol.Unavailable)
}

// Authenticate resolves a session token to its user.
func (s *Service) Authenticate(ctx context.Context, token string) (protocol.User, error) {
	if token == "" {
		return protocol.User{}, protocol.IncorrectSessionToken
	}
	login, err := s.sessions.Lookup(ctx, token)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.User{}, protocol.IncorrectSessionToken
	}
	if err != nil {
		return protocol.User{}, fmt.Errorf("lookup session: %w", err)
	}
	acc, err := s.users.ByLogin(ctx, login)
	if errors.Is(err, store.ErrNotFound) {
		// Issued by an instance whose user is not registered here.
		if err := s.sessions.Delete(ctx, token); err != nil {
			s.logger.WithError(err).WithField("login", login).Warn("failed to drop stale session")
		}
		return protocol.User{}, protocol.IncorrectSessionToken
	}
	if err != nil {
		return protocol.User{}, fmt.Errorf("load session user: %w", err)
	}
	return acc.User, nil
}

func (s *Service) dispatch(ctx context.Context, caller protocol.User, method protocol.Method) (protocol.MethodResult, error) {
	switch m := method.(type) {
	case protocol.SignUp:
		return s.signUp(ctx, m)
	case protocol.LogIn:
		return s.logIn(ctx, m)
	case protocol.SendPrivateMessage:
		return s.sendPrivateMessage(ctx, caller, m)
	case protocol.GetPrivateChatMessages:
		return s.getPrivateChatMessages(ctx, caller, m)
	case protocol.GetUsers:
		return s.getUsers(ctx)
	case protocol.GetAvailableChats:
		return s.getAvailableChats(ctx, caller)
	case protocol.CreateChat:
		return s.createChat(ctx, caller, m)
	case protocol.SendChatMessage:
		return s.sendChatMessage(ctx, caller, m)
	case protocol.GetChatMessages:
		return s.getChatMessages(ctx, caller, m)
	default:
		return nil, protocol.UnknownMethod
	}
}

func (s *Service) signUp(ctx context.Context, m protocol.SignUp) (protocol.MethodResult, error) {
	if !validateLogin(m.Login) {
		return nil, protocol.InvalidLogin
	}
	if !validatePassword(m.Password) {
		return nil, protocol.InvalidPassword
	}
	_, err := s.users.ByLogin(ctx, m.Login)
	if err == nil {
		return nil, protocol.AlreadySignedUp
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("load user: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(m.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u, err := s.users.Create(ctx, m.Login, hash)
	if errors.Is(err, store.ErrExists) {
		return nil, protocol.AlreadySignedUp
	}
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.WithField("login", u.Login).Infof("User %d signed up", u.ID)
	return protocol.SignUpResult{}, nil
}

func (s *Service) logIn(ctx context.Context, m protocol.LogIn) (protocol.MethodResult, error) {
	acc, err := s.users.ByLogin(ctx, m.Login)
	if errors.Is(err, store.ErrNotFound) {
		return nil, protocol.IncorrectCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(acc.PasswordHash, []byte(m.Password)); err != nil {
		return nil, protocol.IncorrectCredentials
	}
	token := s.newToken()
	if err := s.sessions.Put(ctx, token, acc.Login); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	s.logger.WithField("login", acc.Login).Info("User logged in")
	return protocol.LogInResult{SessionToken: token}, nil
}

func (s *Service) resolvePeer(ctx context.Context, p protocol.Peer) (protocol.User, error) {
	var (
		acc store.Account
		err error
	)
	if p.ByLogin() {
		acc, err = s.users.ByLogin(ctx, p.Login)
	} else {
		acc, err = s.users.ByID(ctx, p.ID)
	}
	if errors.Is(err, store.ErrNotFound) {
		return protocol.User{}, protocol.UnknownUser
	}
	if err != nil {
		return protocol.User{}, fmt.Errorf("resolve peer: %w", err)
	}
	return acc.User, nil
}

func (s *Service) sendPrivateMessage(ctx context.Context, caller protocol.User, m protocol.SendPrivateMessage) (protocol.MethodResult, error) {
	if !validateMessage(m.Message) {
		return nil, protocol.InvalidMessage
	}
	recipient, err := s.resolvePeer(ctx, m.Recipient)
	if err != nil {
		return nil, err
	}
	msg := protocol.NewPrivateMessage(m.Message, s.now(), caller, recipient)
	if err := s.messages.AppendPrivate(ctx, msg); err != nil {
		return nil, fmt.Errorf("store private message: %w", err)
	}
	s.publish(ctx, recipient.Login, protocol.PrivateMessageEvent{Message: msg})
	return protocol.SendPrivateMessageResult{}, nil
}

func (s *Service) getPrivateChatMessages(ctx context.Context, caller protocol.User, m protocol.GetPrivateChatMessages) (protocol.MethodResult, error) {
	peer, err := s.resolvePeer(ctx, m.Counterparty)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.PrivateConversation(ctx, caller.ID, peer.ID)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	return protocol.GetPrivateChatMessagesResult{Messages: msgs}, nil
}

func (s *Service) getUsers(ctx context.Context) (protocol.MethodResult, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return protocol.GetUsersResult{Users: users}, nil
}

func (s *Service) getAvailableChats(ctx context.Context, caller protocol.User) (protocol.MethodResult, error) {
	ids, err := s.messages.Counterparties(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list counterparties: %w", err)
	}
	var res protocol.GetAvailableChatsResult
	for _, id := range ids {
		acc, err := s.users.ByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load counterparty %d: %w", id, err)
		}
		res.Private = append(res.Private, acc.User)
	}
	sort.Slice(res.Private, func(i, j int) bool { return res.Private[i].Login < res.Private[j].Login })

	groups, err := s.chats.ForMember(ctx, caller.ID)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].ID < groups[j].ID })
	res.Groups = groups
	return res, nil
}

func (s *Service) createChat(ctx context.Context, caller protocol.User, m protocol.CreateChat) (protocol.MethodResult, error) {
	if !validateTitle(m.Title) {
		return nil, protocol.InvalidChatTitle
	}
	members := []protocol.User{caller}
	seen := map[int32]bool{caller.ID: true}
	for _, p := range m.Members {
		u, err := s.resolvePeer(ctx, p)
		if err != nil {
			return nil, err
		}
		if !seen[u.ID] {
			seen[u.ID] = true
			members = append(members, u)
		}
	}
	chat, err := s.chats.Create(ctx, m.Title, members)
	if err != nil {
		return nil, fmt.Errorf("create chat: %w", err)
	}
	s.logger.WithFields(map[string]interface{}{
		"chat_id": chat.ID,
		"members": len(chat.Members),
	}).Info("Chat created")
	return protocol.CreateChatResult{Chat: chat}, nil
}

// memberChat loads a chat the caller belongs to. Chats the caller is not a
// member of are reported as unknown.
func (s *Service) memberChat(ctx context.Context, caller protocol.User, id int32) (protocol.Chat, error) {
	chat, err := s.chats.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return protocol.Chat{}, protocol.UnknownChat
	}
	if err != nil {
		return protocol.Chat{}, fmt.Errorf("load chat: %w", err)
	}
	if !chat.HasMember(caller.ID) {
		return protocol.Chat{}, protocol.UnknownChat
	}
	return chat, nil
}

func (s *Service) sendChatMessage(ctx context.Context, caller protocol.User, m protocol.SendChatMessage) (protocol.MethodResult, error) {
	if !validateMessage(m.Message) {
		return nil, protocol.InvalidMessage
	}
	chat, err := s.memberChat(ctx, caller, m.ChatID)
	if err != nil {
		return nil, err
	}
	msg := protocol.NewChatMessage(m.Message, s.now(), caller, chat.ID)
	if err := s.messages.AppendChat(ctx, msg); err != nil {
		return nil, fmt.Errorf("store chat message: %w", err)
	}
	ev := protocol.ChatMessageEvent{Message: msg}
	for _, member := range chat.Members {
		if member.ID != caller.ID {
			s.publish(ctx, member.Login, ev)
		}
	}
	return protocol.SendChatMessageResult{}, nil
}

func (s *Service) getChatMessages(ctx context.Context, caller protocol.User, m protocol.GetChatMessages) (protocol.MethodResult, error) {
	chat, err := s.memberChat(ctx, caller, m.ChatID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.messages.ChatHistory(ctx, chat.ID)
	if err != nil {
		return nil, fmt.Errorf("load chat history: %w", err)
	}
	return protocol.GetChatMessagesResult{Messages: msgs}, nil
}

// publish pushes an event without failing the request; the message is
// already stored and can be fetched with the history methods.
func (s *Service) publish(ctx context.Context, recipient string, ev protocol.Event) {
	if err := s.events.PublishEvent(ctx, recipient, ev); err != nil {
		s.logger.WithError(err).WithField("recipient", recipient).Warnf("Failed to publish %s event", ev.Kind())
	}
}
