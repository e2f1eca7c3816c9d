package commands

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baubot/internal/storage"
	kit "baubot/internal/transport"
	logx "baubot/pkg/logx"
)

type sent struct {
	ChatID    int64
	MessageID int
	Text      string
}

type fakeReplier struct {
	mu   sync.Mutex
	sent []sent
}

func (f *fakeReplier) Notify(ctx context.Context, chatID int64, messageID int, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (f *fakeReplier) Sent() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.sent...)
}

type fakeRouter struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeRouter) HandleInbound(ctx context.Context, option string, chatID int64, messageID int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, option)
	return nil
}

func (f *fakeRouter) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type harness struct {
	store   storage.Store
	replier *fakeReplier
	router  *fakeRouter
	updates chan kit.Update
	m       *Manager
}

func start(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:   storage.NewMemory(),
		replier: &fakeReplier{},
		router:  &fakeRouter{},
		updates: make(chan kit.Update, 8),
	}
	h.m = New(h.store, h.replier, h.router, logx.Nop(), Options{Workers: 2})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.m.Run(ctx, h.updates) }()
	require.Eventually(t, func() bool { return h.m.Supervisor() != nil }, time.Second, time.Millisecond)
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Error("Run did not return")
		}
	})
	return h
}

func (h *harness) command(chatID int64, username, text string) {
	kind := kit.UpdateMessage
	if len(text) > 0 && text[0] == '/' {
		kind = kit.UpdateCommand
	}
	h.updates <- kit.Update{Kind: kind, Message: &kit.Message{ID: 1, ChatID: chatID, FromID: chatID, FromUsername: username, Text: text}}
}

func (h *harness) waitReply(t *testing.T, n int) []sent {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.replier.Sent()) >= n }, 2*time.Second, 5*time.Millisecond)
	return h.replier.Sent()
}

func TestStartRegisters(t *testing.T) {
	h := start(t)
	h.command(42, "Alice", "/start")

	got := h.waitReply(t, 1)
	assert.Equal(t, "🥳 Registered!\n\n🤗 Welcome to baubot's notification system.", got[0].Text)
	assert.Equal(t, int64(42), got[0].ChatID)

	id, ok, err := h.store.Resolve(context.Background(), "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), id)

	h.command(43, "alice", "/start@baubot")
	got = h.waitReply(t, 2)
	assert.Equal(t, "🥳 Registered! Your old registration of <code>42</code> has been updated.\n\n🤗 Welcome to baubot's notification system.", got[1].Text)
}

func TestStartWithoutUsername(t *testing.T) {
	h := start(t)
	h.command(42, "", "/start")
	got := h.waitReply(t, 1)
	assert.Equal(t, "ERROR: No username supplied.", got[0].Text)
}

func TestUnregister(t *testing.T) {
	h := start(t)
	_, _, err := h.store.Register(context.Background(), "bob", 7)
	require.NoError(t, err)

	h.command(7, "Bob", "/unregister")
	got := h.waitReply(t, 1)
	assert.Equal(t, "😞 Your chat_id <code>7</code> has been deleted", got[0].Text)

	h.command(7, "Bob", "/unregister")
	got = h.waitReply(t, 2)
	assert.Equal(t, "ERROR: Username <code>bob</code> was not registered.", got[1].Text)
}

func TestHelpAndUnknown(t *testing.T) {
	h := start(t)
	h.command(1, "x", "/help")
	got := h.waitReply(t, 1)
	assert.Equal(t, "/start - Registers you as a user of the baubot service\n"+
		"/unregister - Unregister you as a user of the baubot service\n"+
		"/help - Get list of available commands", got[0].Text)

	h.command(1, "x", "hello there")
	got = h.waitReply(t, 2)
	assert.Equal(t, "😞 Baubot does not know how to respond to your input. <b>Baubot is a bad elf!</b>", got[1].Text)

	h.command(1, "x", "/dance")
	got = h.waitReply(t, 3)
	assert.Equal(t, got[1].Text, got[2].Text)
}

func TestRepliesReachRouter(t *testing.T) {
	h := start(t)
	h.updates <- kit.Update{Kind: kit.UpdateReply, Reply: &kit.Reply{ChatID: 5, MessageID: 9, Option: "approve"}}
	require.Eventually(t, func() bool { return len(h.router.Calls()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"approve"}, h.router.Calls())
}

func TestRepliesRunInlineWithoutWorkers(t *testing.T) {
	r := &fakeRouter{}
	m := New(storage.NewMemory(), &fakeReplier{}, r, logx.Nop(), Options{})
	m.Route(context.Background(), kit.Update{Kind: kit.UpdateReply, Reply: &kit.Reply{ChatID: 5, MessageID: 9, Option: "deny"}})
	assert.Equal(t, []string{"deny"}, r.Calls())
}

func TestMenu(t *testing.T) {
	m := New(storage.NewMemory(), &fakeReplier{}, nil, logx.Nop(), Options{})
	names := []string{}
	for _, c := range m.Menu() {
		names = append(names, c.Command)
		assert.NotEmpty(t, c.Description)
	}
	assert.Equal(t, []string{"start", "unregister", "help"}, names)
}

func TestParseCommand(t *testing.T) {
	name, args := parseCommand("  /Start@baubot  a b ")
	assert.Equal(t, "start", name)
	assert.Equal(t, []string{"a", "b"}, args)

	name, args = parseCommand("")
	assert.Equal(t, "", name)
	assert.Nil(t, args)
}
