package broadcast

import (
	"context"
	"errors"
	"sync"
)

type delivery struct {
	ChatID    int64
	MessageID int
	Text      string
	Options   [][]string
}

type notice struct {
	ChatID    int64
	MessageID int
	Text      string
}

// fakeGateway records calls and hands out increasing message ids.
type fakeGateway struct {
	mu         sync.Mutex
	nextID     int
	deliveries []delivery
	retracted  []Key
	notices    []notice
	failFor    map[int64]bool

	delivered chan delivery
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextID: 100, failFor: map[int64]bool{}, delivered: make(chan delivery, 64)}
}

func (g *fakeGateway) Deliver(ctx context.Context, chatID int64, text string, options [][]string) (int, error) {
	g.mu.Lock()
	if g.failFor[chatID] {
		g.mu.Unlock()
		return 0, errors.New("chat not found")
	}
	g.nextID++
	d := delivery{ChatID: chatID, MessageID: g.nextID, Text: text, Options: options}
	g.deliveries = append(g.deliveries, d)
	g.mu.Unlock()
	g.delivered <- d
	return d.MessageID, nil
}

func (g *fakeGateway) RetractOptions(ctx context.Context, chatID int64, messageID int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.retracted = append(g.retracted, MakeKey(chatID, messageID))
	return nil
}

func (g *fakeGateway) Notify(ctx context.Context, chatID int64, messageID int, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notices = append(g.notices, notice{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (g *fakeGateway) Notices() []notice {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]notice(nil), g.notices...)
}

func (g *fakeGateway) Deliveries() []delivery {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]delivery(nil), g.deliveries...)
}

func (g *fakeGateway) Retracted() []Key {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Key(nil), g.retracted...)
}

func directory(entries map[string]int64) Directory {
	return DirectoryFunc(func(ctx context.Context, name string) (int64, bool) {
		id, ok := entries[name]
		return id, ok
	})
}

func collect(ch <-chan PendingResponse) []PendingResponse {
	var out []PendingResponse
	for r := range ch {
		out = append(out, r)
	}
	return out
}
