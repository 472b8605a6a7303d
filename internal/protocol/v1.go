// internal/protocol/v1.go
// Legacy schema: users addressed by numeric id, no correlation id, no group chats.
package protocol

type credentialsWire struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

type emptyWire struct{}

type sessionTokenWire struct {
	SessionToken string `json:"session_token"`
}

type usersWire struct {
	Users []User `json:"users"`
}

type sendPrivateV1 struct {
	Message    string `json:"message"`
	ReceiverID *int32 `json:"receiver_id"`
}

type historyV1 struct {
	SecondUserID *int32 `json:"second_user_id"`
}

type privateMessageV1 struct {
	Text         string `json:"text"`
	SenderID     int32  `json:"sender_id"`
	ReceiverID   int32  `json:"receiver_id"`
	RawTimestamp int64  `json:"raw_timestamp"`
}

type privateMessagesV1 struct {
	Messages []privateMessageV1 `json:"messages"`
}

type availableChatsV1 struct {
	Private []User `json:"private"`
}

func privateToV1(m PrivateMessage) privateMessageV1 {
	return privateMessageV1{
		Text:         m.Text,
		SenderID:     m.Sender.ID,
		ReceiverID:   m.Receiver.ID,
		RawTimestamp: m.SentAt.Seconds(),
	}
}

func privateFromV1(w privateMessageV1) PrivateMessage {
	return PrivateMessage{
		Text:     w.Text,
		Sender:   User{ID: w.SenderID},
		Receiver: User{ID: w.ReceiverID},
		SentAt:   FromEpochSeconds(w.RawTimestamp),
	}
}

func peerID(p Peer) (int32, error) {
	if p.ByLogin() {
		return 0, ErrNotExpressible
	}
	return p.ID, nil
}

func nonEmpty[T any](s []T) []T {
	if len(s) == 0 {
		return nil
	}
	return s
}

var v1Codec = &codec{
	version:    V1,
	correlated: false,
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
			func(w sendPrivateV1) (SendPrivateMessage, error) {
				if w.ReceiverID == nil {
					return malformed[SendPrivateMessage]()
				}
				return SendPrivateMessage{Message: w.Message, Recipient: PeerByID(*w.ReceiverID)}, nil
			},
			func(m SendPrivateMessage) (sendPrivateV1, error) {
				id, err := peerID(m.Recipient)
				if err != nil {
					return sendPrivateV1{}, err
				}
				return sendPrivateV1{Message: m.Message, ReceiverID: &id}, nil
			},
			func(emptyWire) (SendPrivateMessageResult, error) { return SendPrivateMessageResult{}, nil },
			func(SendPrivateMessageResult) (emptyWire, error) { return emptyWire{}, nil },
		),
		MethodGetPrivateChatMessages: entry(
			func(w historyV1) (GetPrivateChatMessages, error) {
				if w.SecondUserID == nil {
					return malformed[GetPrivateChatMessages]()
				}
				return GetPrivateChatMessages{Counterparty: PeerByID(*w.SecondUserID)}, nil
			},
			func(m GetPrivateChatMessages) (historyV1, error) {
				id, err := peerID(m.Counterparty)
				if err != nil {
					return historyV1{}, err
				}
				return historyV1{SecondUserID: &id}, nil
			},
			func(w privateMessagesV1) (GetPrivateChatMessagesResult, error) {
				msgs := make([]PrivateMessage, 0, len(w.Messages))
				for _, m := range w.Messages {
					msgs = append(msgs, privateFromV1(m))
				}
				return GetPrivateChatMessagesResult{Messages: nonEmpty(msgs)}, nil
			},
			func(r GetPrivateChatMessagesResult) (privateMessagesV1, error) {
				out := privateMessagesV1{Messages: make([]privateMessageV1, 0, len(r.Messages))}
				for _, m := range r.Messages {
					out.Messages = append(out.Messages, privateToV1(m))
				}
				return out, nil
			},
		),
		MethodGetUsers: entry(
			func(emptyWire) (GetUsers, error) { return GetUsers{}, nil },
			func(GetUsers) (emptyWire, error) { return emptyWire{}, nil },
			func(w usersWire) (GetUsersResult, error) { return GetUsersResult{Users: nonEmpty(w.Users)}, nil },
			func(r GetUsersResult) (usersWire, error) {
				if r.Users == nil {
					return usersWire{Users: []User{}}, nil
				}
				return usersWire{Users: r.Users}, nil
			},
		),
		MethodGetAvailableChats: entry(
			func(emptyWire) (GetAvailableChats, error) { return GetAvailableChats{}, nil },
			func(GetAvailableChats) (emptyWire, error) { return emptyWire{}, nil },
			func(w availableChatsV1) (GetAvailableChatsResult, error) {
				return GetAvailableChatsResult{Private: nonEmpty(w.Private)}, nil
			},
			// Group chats do not exist in v1 and are left out.
			func(r GetAvailableChatsResult) (availableChatsV1, error) {
				if r.Private == nil {
					return availableChatsV1{Private: []User{}}, nil
				}
				return availableChatsV1{Private: r.Private}, nil
			},
		),
	},
	events: map[EventKind]eventSpec{
		EventNewPrivateMessage: event(
			func(w privateMessageV1) (PrivateMessageEvent, error) {
				return PrivateMessageEvent{Message: privateFromV1(w)}, nil
			},
			func(e PrivateMessageEvent) (privateMessageV1, error) { return privateToV1(e.Message), nil },
		),
	},
}
