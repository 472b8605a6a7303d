package store

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/erilali/chatwire/internal/protocol"
)

var (
	_ Users    = (*Memory)(nil)
	_ Sessions = (*Memory)(nil)
	_ Messages = (*Memory)(nil)
	_ Sessions = (*RedisSessions)(nil)
)

func TestMemoryUsers(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	alice, err := m.Create(ctx, "alice", []byte("h1"))
	if err != nil {
		t.Fatalf("create alice: %v", err)
	}
	bob, err := m.Create(ctx, "bob", []byte("h2"))
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}
	if alice.ID != 1 || bob.ID != 2 {
		t.Fatalf("expected sequential ids, got %d and %d", alice.ID, bob.ID)
	}
	if _, err := m.Create(ctx, "alice", nil); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	acc, err := m.ByLogin(ctx, "bob")
	if err != nil || acc.User != bob || string(acc.PasswordHash) != "h2" {
		t.Fatalf("unexpected account %#v err=%v", acc, err)
	}
	if _, err := m.ByID(ctx, 3); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := m.ByLogin(ctx, "carol"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	users, err := m.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(users, []protocol.User{alice, bob}) {
		t.Fatalf("unexpected users %#v", users)
	}
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	if err := m.Put(ctx, "tok", "alice"); err != nil {
		t.Fatalf("put: %v", err)
	}
	login, err := m.Lookup(ctx, "tok")
	if err != nil || login != "alice" {
		t.Fatalf("expected alice, got %q err=%v", login, err)
	}
	if err := m.Delete(ctx, "tok"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := m.Lookup(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestMemorySessionsExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(WithSessionTTL(time.Hour), WithMemoryClock(func() time.Time { return now }))

	if err := m.Put(ctx, "tok", "alice"); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(59 * time.Minute)
	if login, err := m.Lookup(ctx, "tok"); err != nil || login != "alice" {
		t.Fatalf("lookup before ttl = %q, %v", login, err)
	}
	now = now.Add(time.Minute)
	if _, err := m.Lookup(ctx, "tok"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("lookup at ttl = %v, want ErrNotFound", err)
	}
	m.mu.RLock()
	_, kept := m.sessions["tok"]
	m.mu.RUnlock()
	if kept {
		t.Fatal("expired session was not evicted")
	}
}

func TestMemorySessionsWithoutTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(WithMemoryClock(func() time.Time { return now }))

	if err := m.Put(ctx, "tok", "alice"); err != nil {
		t.Fatalf("put: %v", err)
	}
	now = now.Add(365 * 24 * time.Hour)
	if login, err := m.Lookup(ctx, "tok"); err != nil || login != "alice" {
		t.Fatalf("lookup = %q, %v", login, err)
	}
}

func TestPrivateConversationOrdering(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	alice := protocol.User{ID: 1, Login: "alice"}
	bob := protocol.User{ID: 2, Login: "bob"}
	carol := protocol.User{ID: 3, Login: "carol"}
	base := time.Unix(1000, 0)

	msgs := []protocol.PrivateMessage{
		protocol.NewPrivateMessage("late", base.Add(5*time.Second), alice, bob),
		protocol.NewPrivateMessage("tie-1", base, bob, alice),
		protocol.NewPrivateMessage("other", base, alice, carol),
		protocol.NewPrivateMessage("tie-2", base, alice, bob),
	}
	for _, msg := range msgs {
		if err := m.AppendPrivate(ctx, msg); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	got, err := m.PrivateConversation(ctx, 2, 1)
	if err != nil {
		t.Fatalf("conversation: %v", err)
	}
	var texts []string
	for _, msg := range got {
		texts = append(texts, msg.Text)
	}
	if want := []string{"tie-1", "tie-2", "late"}; !reflect.DeepEqual(texts, want) {
		t.Fatalf("expected %v, got %v", want, texts)
	}

	peers, err := m.Counterparties(ctx, 1)
	if err != nil {
		t.Fatalf("counterparties: %v", err)
	}
	if !reflect.DeepEqual(peers, []int32{2, 3}) {
		t.Fatalf("unexpected counterparties %v", peers)
	}
}

func TestMemoryChats(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	chats := m.Chats()
	alice := protocol.User{ID: 1, Login: "alice"}
	bob := protocol.User{ID: 2, Login: "bob"}

	chat, err := chats.Create(ctx, "team", []protocol.User{alice, bob})
	if err != nil {
		t.Fatalf("create chat: %v", err)
	}
	if _, err := chats.Create(ctx, "solo", []protocol.User{bob}); err != nil {
		t.Fatalf("create chat: %v", err)
	}

	got, err := chats.Get(ctx, chat.ID)
	if err != nil || !reflect.DeepEqual(got, chat) {
		t.Fatalf("unexpected chat %#v err=%v", got, err)
	}
	if _, err := chats.Get(ctx, 9); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	mine, err := chats.ForMember(ctx, alice.ID)
	if err != nil || len(mine) != 1 || mine[0].ID != chat.ID {
		t.Fatalf("unexpected chats for alice %#v err=%v", mine, err)
	}

	if err := m.AppendChat(ctx, protocol.NewChatMessage("hi", time.Unix(10, 0), alice, chat.ID)); err != nil {
		t.Fatalf("append chat: %v", err)
	}
	if err := m.AppendChat(ctx, protocol.NewChatMessage("lost", time.Unix(10, 0), alice, 42)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown chat, got %v", err)
	}
	history, err := m.ChatHistory(ctx, chat.ID)
	if err != nil || len(history) != 1 || history[0].Text != "hi" {
		t.Fatalf("unexpected history %#v err=%v", history, err)
	}
}

func TestMemoryConcurrentCreate(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var wg sync.WaitGroup
	var mu sync.Mutex
	created := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := m.Create(ctx, "same", nil); err == nil {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one successful create, got %d", created)
	}
}
