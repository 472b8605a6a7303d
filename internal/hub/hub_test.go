package hub

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/erilali/chatwire/internal/chat"
	"github.com/erilali/chatwire/internal/config"
	"github.com/erilali/chatwire/internal/logger"
	"github.com/erilali/chatwire/internal/protocol"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	svc := chat.NewService(chat.MemoryStores(),
		chat.WithBcryptCost(bcrypt.MinCost),
		chat.WithLogger(logger.Nop()),
	)
	h := NewHub(svc, nil, nil, logger.Nop(), config.Default().Server)
	svc.SetEvents(h)

	ctx, cancel := context.WithCancel(context.Background())
	go h.Run(ctx)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWs))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return h, srv
}

type testConn struct {
	t       *testing.T
	ws      *websocket.Conn
	codec   protocol.Codec
	nextID  uint32
	pending [][]byte
}

func dial(t *testing.T, srv *httptest.Server, v protocol.Version) *testConn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	codec, err := protocol.CodecFor(v)
	if err != nil {
		t.Fatal(err)
	}
	return &testConn{t: t, ws: ws, codec: codec}
}

func (c *testConn) writeRaw(data string) {
	c.t.Helper()
	if err := c.ws.WriteMessage(websocket.TextMessage, []byte(data)); err != nil {
		c.t.Fatalf("write: %v", err)
	}
}

func (c *testConn) send(token string, m protocol.Method) uint32 {
	c.t.Helper()
	c.nextID++
	data, err := c.codec.EncodeRequest(protocol.Request{
		Version:      c.codec.Version(),
		ID:           c.nextID,
		Method:       m,
		SessionToken: token,
	})
	if err != nil {
		c.t.Fatalf("encode %s: %v", m.Name(), err)
	}
	c.writeRaw(string(data))
	return c.nextID
}

// readRaw returns the next frame, splitting batched websocket messages.
func (c *testConn) readRaw() []byte {
	c.t.Helper()
	for len(c.pending) == 0 {
		c.ws.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.t.Fatalf("read: %v", err)
		}
		for _, part := range bytes.Split(data, []byte{'\n'}) {
			if len(part) > 0 {
				c.pending = append(c.pending, part)
			}
		}
	}
	next := c.pending[0]
	c.pending = c.pending[1:]
	return next
}

func (c *testConn) read() protocol.Frame {
	c.t.Helper()
	f, err := c.codec.DecodeFrame(c.readRaw())
	if err != nil {
		c.t.Fatalf("decode frame: %v", err)
	}
	return f
}

func (c *testConn) result() protocol.RequestResult {
	c.t.Helper()
	f := c.read()
	if f.Kind != protocol.FrameResult {
		c.t.Fatalf("got %s frame, want result", f.Kind)
	}
	return f.Result
}

func (c *testConn) mustOK(token string, m protocol.Method) protocol.MethodResult {
	c.t.Helper()
	id := c.send(token, m)
	res := c.result()
	if res.Err != nil {
		c.t.Fatalf("%s failed: %v", m.Name(), res.Err)
	}
	if c.codec.Correlated() && res.ID != id {
		c.t.Fatalf("result id = %d, want %d", res.ID, id)
	}
	return res.Result
}

func (c *testConn) login(name string) string {
	c.t.Helper()
	c.mustOK("", protocol.SignUp{Login: name, Password: "secret"})
	res := c.mustOK("", protocol.LogIn{Login: name, Password: "secret"})
	return res.(protocol.LogInResult).SessionToken
}

func waitOnline(t *testing.T, h *Hub, login string, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Online(login) != want {
		if time.Now().After(deadline) {
			t.Fatalf("Online(%q) = %d, want %d", login, h.Online(login), want)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestPrivateMessageReachesRecipient(t *testing.T) {
	h, srv := newTestServer(t)
	alice := dial(t, srv, protocol.V2)
	bob := dial(t, srv, protocol.V2)

	aliceToken := alice.login("alice")
	bob.login("bob")
	if got := h.Online("bob"); got != 1 {
		t.Fatalf("Online(bob) = %d, want 1", got)
	}

	alice.mustOK(aliceToken, protocol.SendPrivateMessage{Message: "hi bob", Recipient: protocol.PeerByLogin("bob")})

	f := bob.read()
	if f.Kind != protocol.FrameEvent {
		t.Fatalf("got %s frame, want event", f.Kind)
	}
	ev, ok := f.Event.(protocol.PrivateMessageEvent)
	if !ok {
		t.Fatalf("event = %T", f.Event)
	}
	if ev.Message.Text != "hi bob" || ev.Message.Sender.Login != "alice" || ev.Message.Receiver.Login != "bob" {
		t.Fatalf("event message = %+v", ev.Message)
	}
}

func TestResultsAreCorrelatedInOrder(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv, protocol.V2)
	token := c.login("alice")

	first := c.send(token, protocol.GetAvailableChats{})
	second := c.send(token, protocol.GetPrivateChatMessages{Counterparty: protocol.PeerByLogin("nobody")})

	r1 := c.result()
	r2 := c.result()
	if r1.ID != first || r1.Err != nil {
		t.Fatalf("first result = %+v", r1)
	}
	if r2.ID != second || !errors.Is(r2.Err, protocol.UnknownUser) {
		t.Fatalf("second result = %+v", r2)
	}
}

func TestLegacyClientGetsEventsFromNewerSender(t *testing.T) {
	_, srv := newTestServer(t)
	alice := dial(t, srv, protocol.V2)
	bob := dial(t, srv, protocol.V1)

	aliceToken := alice.login("alice")
	bobToken := bob.login("bob")

	users := bob.mustOK(bobToken, protocol.GetUsers{}).(protocol.GetUsersResult).Users
	var bobID int32
	for _, u := range users {
		if u.Login == "bob" {
			bobID = u.ID
		}
	}
	if bobID == 0 {
		t.Fatalf("bob missing from %+v", users)
	}

	alice.mustOK(aliceToken, protocol.SendPrivateMessage{Message: "hello", Recipient: protocol.PeerByLogin("bob")})

	raw := bob.readRaw()
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatal(err)
	}
	data, _ := wire["data"].(map[string]any)
	if wire["kind"] != "event" || data["receiver_id"] != float64(bobID) {
		t.Fatalf("legacy event = %s", raw)
	}
}

func TestUnversionedFrameIsAnsweredAsV1(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv, protocol.V1)

	c.writeRaw(`{"method":"sign_up","params":{"login":"dave","password":"pw"}}`)
	raw := c.readRaw()
	var wire map[string]any
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatal(err)
	}
	if _, ok := wire["request_id"]; ok {
		t.Fatalf("v1 result carries request_id: %s", raw)
	}
	if wire["kind"] != "result" || wire["method"] != "sign_up" || wire["error"] != nil {
		t.Fatalf("result = %s", raw)
	}
}

func TestRejectedFrames(t *testing.T) {
	_, srv := newTestServer(t)
	c := dial(t, srv, protocol.V2)

	tests := []struct {
		name  string
		frame string
		id    uint32
		want  protocol.Reason
	}{
		{"missing request id", `{"version":2,"method":"sign_up","params":{}}`, 0, protocol.MalformedRequest},
		{"unknown method", `{"version":2,"request_id":7,"method":"shout"}`, 7, protocol.UnknownMethod},
		{"unsupported version", `{"version":9,"request_id":8,"method":"sign_up"}`, 0, protocol.UnsupportedVersion},
		{"version above byte range", `{"version":256,"request_id":10,"method":"sign_up"}`, 0, protocol.UnsupportedVersion},
		{"not json", `hello`, 0, protocol.MalformedRequest},
		{"v1 only method", `{"version":2,"request_id":9,"method":"get_users"}`, 9, protocol.UnknownMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c.t = t
			c.writeRaw(tt.frame)
			res := c.result()
			if !errors.Is(res.Err, tt.want) {
				t.Fatalf("error = %v, want %v", res.Err, tt.want)
			}
			if res.ID != tt.id {
				t.Fatalf("id = %d, want %d", res.ID, tt.id)
			}
		})
	}
}

func TestSessionTokenBindsSecondConnection(t *testing.T) {
	h, srv := newTestServer(t)
	first := dial(t, srv, protocol.V2)
	token := first.login("bob")

	second := dial(t, srv, protocol.V2)
	second.mustOK(token, protocol.GetAvailableChats{})
	waitOnline(t, h, "bob", 2)

	first.ws.Close()
	waitOnline(t, h, "bob", 1)
}

func TestChatMessageEventSkipsSender(t *testing.T) {
	_, srv := newTestServer(t)
	alice := dial(t, srv, protocol.V2)
	bob := dial(t, srv, protocol.V2)
	aliceToken := alice.login("alice")
	bobToken := bob.login("bob")

	chatRes := alice.mustOK(aliceToken, protocol.CreateChat{Title: "team", Members: []protocol.Peer{protocol.PeerByLogin("bob")}})
	chatID := chatRes.(protocol.CreateChatResult).Chat.ID

	bob.mustOK(bobToken, protocol.SendChatMessage{Message: "ping", ChatID: chatID})
	f := alice.read()
	ev, ok := f.Event.(protocol.ChatMessageEvent)
	if !ok || ev.Message.ChatID != chatID || ev.Message.Text != "ping" {
		t.Fatalf("alice frame = %+v", f)
	}

	// Bob's next frame is the answer to his next request, not his own echo.
	bob.mustOK(bobToken, protocol.GetChatMessages{ChatID: chatID})
}

func TestClientSendIsNonBlocking(t *testing.T) {
	c := newClient(nil, 1)
	c.setCodec(mustCodec(protocol.V1))
	if c.Codec().Version() != protocol.V1 {
		t.Fatalf("setCodec: version %d", c.Codec().Version())
	}
	if !c.trySend([]byte("a")) {
		t.Fatal("first send failed")
	}
	if c.trySend([]byte("b")) {
		t.Fatal("send to a full buffer succeeded")
	}
	c.close()
	c.close()
	if c.trySend([]byte("c")) {
		t.Fatal("send after close succeeded")
	}
}

func TestBusEventRoundTrip(t *testing.T) {
	at := protocol.FromEpochSeconds(1_700_000_000)
	alice := protocol.User{ID: 1, Login: "alice"}
	bob := protocol.User{ID: 2, Login: "bob"}
	events := []protocol.Event{
		protocol.PrivateMessageEvent{Message: protocol.PrivateMessage{Text: "hi", Sender: alice, Receiver: bob, SentAt: at}},
		protocol.ChatMessageEvent{Message: protocol.ChatMessage{Text: "all", Sender: alice, ChatID: 3, SentAt: at}},
	}
	for _, ev := range events {
		data, err := encodeBusEvent("bob", ev)
		if err != nil {
			t.Fatalf("encode %s: %v", ev.Kind(), err)
		}
		recipient, got, err := decodeBusEvent(data)
		if err != nil {
			t.Fatalf("decode %s: %v", ev.Kind(), err)
		}
		if recipient != "bob" || got != ev {
			t.Fatalf("round trip = %q %+v, want %+v", recipient, got, ev)
		}
	}

	if _, _, err := decodeBusEvent([]byte(`{"recipient":"bob","kind":"typing"}`)); err == nil {
		t.Fatal("unknown kind decoded")
	}
	if _, _, err := decodeBusEvent([]byte(`{"recipient":"bob","kind":"new_private_message"}`)); err == nil {
		t.Fatal("private event without receiver decoded")
	}
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}
	open := originChecker(nil)
	if !open(req("https://evil.example")) {
		t.Fatal("empty allow list rejected an origin")
	}
	strict := originChecker([]string{"https://chat.example"})
	if !strict(req("https://chat.example")) {
		t.Fatal("allowed origin rejected")
	}
	if strict(req("https://evil.example")) {
		t.Fatal("foreign origin accepted")
	}
}
