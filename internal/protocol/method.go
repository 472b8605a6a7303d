// internal/protocol/method.go
// Method and result catalogs. Both are closed: only this package can add variants.
package protocol

// MethodName is the wire tag of a method and of the result it produces.
type MethodName string

const (
	MethodSignUp                 MethodName = "sign_up"
	MethodLogIn                  MethodName = "log_in"
	MethodSendPrivateMessage     MethodName = "send_private_message"
	MethodGetPrivateChatMessages MethodName = "get_private_chat_messages"
	MethodGetUsers               MethodName = "get_users"
	MethodGetAvailableChats      MethodName = "get_available_chats"
	MethodCreateChat             MethodName = "create_chat"
	MethodSendChatMessage        MethodName = "send_chat_message"
	MethodGetChatMessages        MethodName = "get_chat_messages"
)

// Method is an operation a client may invoke.
type Method interface {
	Name() MethodName
	// RequiresSession reports whether the request must carry a valid session token.
	RequiresSession() bool
	isMethod()
}

type SignUp struct {
	Login    string
	Password string
}

type LogIn struct {
	Login    string
	Password string
}

type SendPrivateMessage struct {
	Message   string
	Recipient Peer
}

type GetPrivateChatMessages struct {
	Counterparty Peer
}

type GetUsers struct{}

type GetAvailableChats struct{}

type CreateChat struct {
	Title   string
	Members []Peer
}

type SendChatMessage struct {
	Message string
	ChatID  int32
}

type GetChatMessages struct {
	ChatID int32
}

func (SignUp) Name() MethodName                 { return MethodSignUp }
func (LogIn) Name() MethodName                  { return MethodLogIn }
func (SendPrivateMessage) Name() MethodName     { return MethodSendPrivateMessage }
func (GetPrivateChatMessages) Name() MethodName { return MethodGetPrivateChatMessages }
func (GetUsers) Name() MethodName               { return MethodGetUsers }
func (GetAvailableChats) Name() MethodName      { return MethodGetAvailableChats }
func (CreateChat) Name() MethodName             { return MethodCreateChat }
func (SendChatMessage) Name() MethodName        { return MethodSendChatMessage }
func (GetChatMessages) Name() MethodName        { return MethodGetChatMessages }

func (SignUp) RequiresSession() bool                 { return false }
func (LogIn) RequiresSession() bool                  { return false }
func (SendPrivateMessage) RequiresSession() bool     { return true }
func (GetPrivateChatMessages) RequiresSession() bool { return true }
func (GetUsers) RequiresSession() bool               { return true }
func (GetAvailableChats) RequiresSession() bool      { return true }
func (CreateChat) RequiresSession() bool             { return true }
func (SendChatMessage) RequiresSession() bool        { return true }
func (GetChatMessages) RequiresSession() bool        { return true }

func (SignUp) isMethod()                 {}
func (LogIn) isMethod()                  {}
func (SendPrivateMessage) isMethod()     {}
func (GetPrivateChatMessages) isMethod() {}
func (GetUsers) isMethod()               {}
func (GetAvailableChats) isMethod()      {}
func (CreateChat) isMethod()             {}
func (SendChatMessage) isMethod()        {}
func (GetChatMessages) isMethod()        {}

// MethodResult is the success payload of a method. Its Method always equals
// the Name of the method that produced it.
type MethodResult interface {
	Method() MethodName
	isResult()
}

type SignUpResult struct{}

type LogInResult struct {
	SessionToken string
}

type SendPrivateMessageResult struct{}

type GetPrivateChatMessagesResult struct {
	Messages []PrivateMessage
}

type GetUsersResult struct {
	Users []User
}

type GetAvailableChatsResult struct {
	Private []User
	Groups  []Chat
}

type CreateChatResult struct {
	Chat Chat
}

type SendChatMessageResult struct{}

type GetChatMessagesResult struct {
	Messages []ChatMessage
}

func (SignUpResult) Method() MethodName                 { return MethodSignUp }
func (LogInResult) Method() MethodName                  { return MethodLogIn }
func (SendPrivateMessageResult) Method() MethodName     { return MethodSendPrivateMessage }
func (GetPrivateChatMessagesResult) Method() MethodName { return MethodGetPrivateChatMessages }
func (GetUsersResult) Method() MethodName               { return MethodGetUsers }
func (GetAvailableChatsResult) Method() MethodName      { return MethodGetAvailableChats }
func (CreateChatResult) Method() MethodName             { return MethodCreateChat }
func (SendChatMessageResult) Method() MethodName        { return MethodSendChatMessage }
func (GetChatMessagesResult) Method() MethodName        { return MethodGetChatMessages }

func (SignUpResult) isResult()                 {}
func (LogInResult) isResult()                  {}
func (SendPrivateMessageResult) isResult()     {}
func (GetPrivateChatMessagesResult) isResult() {}
func (GetUsersResult) isResult()               {}
func (GetAvailableChatsResult) isResult()      {}
func (CreateChatResult) isResult()             {}
func (SendChatMessageResult) isResult()        {}
func (GetChatMessagesResult) isResult()        {}

// Matches reports whether res is the result variant m produces.
func Matches(m Method, res MethodResult) bool {
	return m != nil && res != nil && m.Name() == res.Method()
}

// EventKind is the wire discriminator of an Event.
type EventKind string

const (
	EventNewPrivateMessage EventKind = "new_private_message"
	EventNewChatMessage    EventKind = "new_chat_message"
)

// Event is an unsolicited server push. Events are never correlated to a request.
type Event interface {
	Kind() EventKind
	isEvent()
}

type PrivateMessageEvent struct {
	Message PrivateMessage
}

type ChatMessageEvent struct {
	Message ChatMessage
}

func (PrivateMessageEvent) Kind() EventKind { return EventNewPrivateMessage }
func (ChatMessageEvent) Kind() EventKind    { return EventNewChatMessage }

func (PrivateMessageEvent) isEvent() {}
func (ChatMessageEvent) isEvent()    {}
