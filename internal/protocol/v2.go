// internal/protocol/v2.go
// Current schema: users addressed by login, results correlated by request id,
// group chats supported. GetUsers is no longer part of the catalog.
package protocol

type sendPrivateV2 struct {
	Message  string `json:"message"`
	Receiver string `json:"receiver"`
}

type historyV2 struct {
	SecondUser string `json:"second_user"`
}

type createChatV2 struct {
	Title   string   `json:"title"`
	Members []string `json:"members"`
}

type chatWire struct {
	Chat Chat `json:"chat"`
}

type sendChatV2 struct {
	Message string `json:"message"`
	ChatID  *int32 `json:"chat_id"`
}

type chatRefV2 struct {
	ChatID *int32 `json:"chat_id"`
}

type privateMessageV2 struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Receiver  string `json:"receiver"`
	Timestamp int64  `json:"timestamp"`
}

type privateMessagesV2 struct {
	Messages []privateMessageV2 `json:"messages"`
}

type chatMessageV2 struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	ChatID    int32  `json:"chat_id"`
	Timestamp int64  `json:"timestamp"`
}

type chatMessagesV2 struct {
	Messages []chatMessageV2 `json:"messages"`
}

type availableChatsV2 struct {
	Private []User `json:"private"`
	Groups  []Chat `json:"groups"`
}

func privateToV2(m PrivateMessage) privateMessageV2 {
	return privateMessageV2{
		Text:      m.Text,
		Sender:    m.Sender.Login,
		Receiver:  m.Receiver.Login,
		Timestamp: m.SentAt.Seconds(),
	}
}

func privateFromV2(w privateMessageV2) PrivateMessage {
	return PrivateMessage{
		Text:     w.Text,
		Sender:   User{Login: w.Sender},
		Receiver: User{Login: w.Receiver},
		SentAt:   FromEpochSeconds(w.Timestamp),
	}
}

func chatMessageToV2(m ChatMessage) chatMessageV2 {
	return chatMessageV2{Text: m.Text, Sender: m.Sender.Login, ChatID: m.ChatID, Timestamp: m.SentAt.Seconds()}
}

func chatMessageFromV2(w chatMessageV2) ChatMessage {
	return ChatMessage{Text: w.Text, Sender: User{Login: w.Sender}, ChatID: w.ChatID, SentAt: FromEpochSeconds(w.Timestamp)}
}

func peerLogin(p Peer) (string, error) {
	if !p.ByLogin() {
		return "", ErrNotExpressible
	}
	return p.Login, nil
}

var v2Codec = &codec{
	version:    V2,
	correlated: true,
	methods: map[MethodName]methodSpec{
		MethodSignUp: entry(
			func(w credentialsWire) (SignUp, error) { return SignUp{Login: w.Login, Password: w.Password}, nil },
			func(m SignUp) (credentialsWire, error) { return credentialsWire{m.Login, m.Password}, nil },
			func(emptyWire) (SignUpResult, error) { return SignUpResult{}, nil },
			func(SignUpResult) (emptyWire, error) { return emptyWire{}, nil },
		),
		MethodLogIn: entry(
			func(w credentialsWire) (LogIn, error) { return LogIn{Login: w.Login, Password: w.Password}, nil },
			func(m LogIn) (credentialsWire, error) { return credentialsWire{m.Login, m.Password}, nil },
			func(w sessionTokenWire) (LogInResult, error) { return LogInResult{SessionToken: w.SessionToken}, nil },
			func(r LogInResult) (sessionTokenWire, error) { return sessionTokenWire{r.SessionToken}, nil },
		),
		MethodSendPrivateMessage: entry(
			func(w sendPrivateV2) (SendPrivateMessage, error) {
				if w.Receiver == "" {
					return malformed[SendPrivateMessage]()
				}
				return SendPrivateMessage{Message: w.Message, Recipient: PeerByLogin(w.Receiver)}, nil
			},
			func(m SendPrivateMessage) (sendPrivateV2, error) {
				login, err := peerLogin(m.Recipient)
				if err != nil {
					return sendPrivateV2{}, err
				}
				return sendPrivateV2{Message: m.Message, Receiver: login}, nil
			},
			func(emptyWire) (SendPrivateMessageResult, error) { return SendPrivateMessageResult{}, nil },
			func(SendPrivateMessageResult) (emptyWire, error) { return emptyWire{}, nil },
		),
		MethodGetPrivateChatMessages: entry(
			func(w historyV2) (GetPrivateChatMessages, error) {
				if w.SecondUser == "" {
					return malformed[GetPrivateChatMessages]()
				}
				return GetPrivateChatMessages{Counterparty: PeerByLogin(w.SecondUser)}, nil
			},
			func(m GetPrivateChatMessages) (historyV2, error) {
				login, err := peerLogin(m.Counterparty)
				if err != nil {
					return historyV2{}, err
				}
				return historyV2{SecondUser: login}, nil
			},
			func(w privateMessagesV2) (GetPrivateChatMessagesResult, error) {
				msgs := make([]PrivateMessage, 0, len(w.Messages))
				for _, m := range w.Messages {
					msgs = append(msgs, privateFromV2(m))
				}
				return GetPrivateChatMessagesResult{Messages: nonEmpty(msgs)}, nil
			},
			func(r GetPrivateChatMessagesResult) (privateMessagesV2, error) {
				out := privateMessagesV2{Messages: make([]privateMessageV2, 0, len(r.Messages))}
				for _, m := range r.Messages {
					out.Messages = append(out.Messages, privateToV2(m))
				}
				return out, nil
			},
		),
		MethodGetAvailableChats: entry(
			func(emptyWire) (GetAvailableChats, error) { return GetAvailableChats{}, nil },
			func(GetAvailableChats) (emptyWire, error) { return emptyWire{}, nil },
			func(w availableChatsV2) (GetAvailableChatsResult, error) {
				return GetAvailableChatsResult{Private: nonEmpty(w.Private), Groups: nonEmpty(w.Groups)}, nil
			},
			func(r GetAvailableChatsResult) (availableChatsV2, error) {
				out := availableChatsV2{Private: r.Private, Groups: r.Groups}
				if out.Private == nil {
					out.Private = []User{}
				}
				if out.Groups == nil {
					out.Groups = []Chat{}
				}
				return out, nil
			},
		),
		MethodCreateChat: entry(
			func(w createChatV2) (CreateChat, error) {
				m := CreateChat{Title: w.Title}
				for _, login := range w.Members {
					if login == "" {
						return malformed[CreateChat]()
					}
					m.Members = append(m.Members, PeerByLogin(login))
				}
				return m, nil
			},
			func(m CreateChat) (createChatV2, error) {
				out := createChatV2{Title: m.Title, Members: make([]string, 0, len(m.Members))}
				for _, p := range m.Members {
					login, err := peerLogin(p)
					if err != nil {
						return createChatV2{}, err
					}
					out.Members = append(out.Members, login)
				}
				return out, nil
			},
			func(w chatWire) (CreateChatResult, error) { return CreateChatResult{Chat: w.Chat}, nil },
			func(r CreateChatResult) (chatWire, error) { return chatWire{Chat: r.Chat}, nil },
		),
		MethodSendChatMessage: entry(
			func(w sendChatV2) (SendChatMessage, error) {
				if w.ChatID == nil {
					return malformed[SendChatMessage]()
				}
				return SendChatMessage{Message: w.Message, ChatID: *w.ChatID}, nil
			},
			func(m SendChatMessage) (sendChatV2, error) {
				id := m.ChatID
				return sendChatV2{Message: m.Message, ChatID: &id}, nil
			},
			func(emptyWire) (SendChatMessageResult, error) { return SendChatMessageResult{}, nil },
			func(SendChatMessageResult) (emptyWire, error) { return emptyWire{}, nil },
		),
		MethodGetChatMessages: entry(
			func(w chatRefV2) (GetChatMessages, error) {
				if w.ChatID == nil {
					return malformed[GetChatMessages]()
				}
				return GetChatMessages{ChatID: *w.ChatID}, nil
			},
			func(m GetChatMessages) (chatRefV2, error) {
				id := m.ChatID
				return chatRefV2{ChatID: &id}, nil
			},
			func(w chatMessagesV2) (GetChatMessagesResult, error) {
				msgs := make([]ChatMessage, 0, len(w.Messages))
				for _, m := range w.Messages {
					msgs = append(msgs, chatMessageFromV2(m))
				}
				return GetChatMessagesResult{Messages: nonEmpty(msgs)}, nil
			},
			func(r GetChatMessagesResult) (chatMessagesV2, error) {
				out := chatMessagesV2{Messages: make([]chatMessageV2, 0, len(r.Messages))}
				for _, m := range r.Messages {
					out.Messages = append(out.Messages, chatMessageToV2(m))
				}
				return out, nil
			},
		),
	},
	events: map[EventKind]eventSpec{
		EventNewPrivateMessage: event(
			func(w privateMessageV2) (PrivateMessageEvent, error) {
				return PrivateMessageEvent{Message: privateFromV2(w)}, nil
			},
			func(e PrivateMessageEvent) (privateMessageV2, error) { return privateToV2(e.Message), nil },
		),
		EventNewChatMessage: event(
			func(w chatMessageV2) (ChatMessageEvent, error) {
				return ChatMessageEvent{Message: chatMessageFromV2(w)}, nil
			},
			func(e ChatMessageEvent) (chatMessageV2, error) { return chatMessageToV2(e.Message), nil },
		),
	},
}
