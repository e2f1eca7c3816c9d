package broadcast

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"baubot/internal/eventbus"
)

func prompt(timeout time.Duration, options ...[]string) *Prompt {
	return &Prompt{Timeout: timeout, Options: options}
}

func waitDelivery(t *testing.T, g *fakeGateway) delivery {
	t.Helper()
	select {
	case d := <-g.delivered:
		return d
	case <-time.After(2 * time.Second):
		t.Fatal("message was not delivered")
		return delivery{}
	}
}

func TestDispatchWithoutPromptEmitsNothing(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 1}), g, Options{})

	got := collect(d.Dispatch(context.Background(), Request{
		Sender:     "ci",
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Text:       "build passed",
	}))

	assert.Empty(t, got)
	assert.Equal(t, 0, d.Pending())
	require.Len(t, g.Deliveries(), 1)
	assert.Equal(t, "build passed", g.Deliveries()[0].Text)
	assert.Nil(t, g.Deliveries()[0].Options)
}

func TestDispatchEmptyGridSolicitsNothing(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 1}), g, Options{})

	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Text:       "hi",
		Prompt:     prompt(time.Second, []string{}),
	}))
	assert.Empty(t, got)
	assert.Equal(t, 0, d.Pending())
}

func TestDispatchNotWantingReplyGetsNoOptions(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 1}), g, Options{})

	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice"}},
		Text:       "fyi",
		Prompt:     prompt(time.Second, []string{"ok"}),
	}))
	assert.Empty(t, got)
	require.Len(t, g.Deliveries(), 1)
	assert.Nil(t, g.Deliveries()[0].Options)
}

func TestDispatchUncontactable(t *testing.T) {
	g := newFakeGateway()
	g.failFor[2] = true
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	d := NewDispatcher(directory(map[string]int64{"bob": 2}), g, Options{Bus: bus})
	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "ghost"}, {Name: "bob", WantsReply: true}},
		Text:       "hello",
		Prompt:     prompt(time.Second, []string{"a"}),
	}))

	assert.ElementsMatch(t, []PendingResponse{
		{Recipient: "ghost", Outcome: Fail(Uncontactable)},
		{Recipient: "bob", Outcome: Fail(Uncontactable)},
	}, got)
	assert.Equal(t, 0, d.Pending())

	for range 2 {
		e := <-events
		assert.Equal(t, eventbus.TypeUncontactable, e.Type)
	}
}

func TestDispatchTimeout(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})

	start := time.Now()
	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Text:       "deploy?",
		Prompt:     prompt(50*time.Millisecond, []string{"yes", "no"}),
	}))

	require.Len(t, got, 1)
	assert.Equal(t, PendingResponse{Recipient: "alice", Outcome: Fail(Timeout)}, got[0])
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 0, d.Pending())

	dl := g.Deliveries()[0]
	assert.Equal(t, [][]string{{"yes", "no"}}, dl.Options)
	assert.Eventually(t, func() bool {
		n := g.Notices()
		return len(n) == 1 && n[0].Text == "⌚ Timeout (50ms) exceeded" && n[0].MessageID == dl.MessageID
	}, time.Second, 5*time.Millisecond)
	assert.Contains(t, g.Retracted(), MakeKey(7, dl.MessageID))
}

func TestDispatchDefaultTimeout(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{DefaultTimeout: 20 * time.Millisecond})

	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Prompt:     prompt(0, []string{"yes"}),
	}))
	require.Len(t, got, 1)
	assert.Equal(t, Fail(Timeout), got[0].Outcome)
}

func TestDispatchReplyBeatsTimeout(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})
	r := d.Router()

	ch := d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Text:       "approve release?",
		Prompt:     prompt(300*time.Millisecond, []string{"approve", "deny"}),
	})

	dl := waitDelivery(t, g)
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, r.HandleInbound(context.Background(), "approve", dl.ChatID, dl.MessageID))

	got := collect(ch)
	require.Len(t, got, 1)
	assert.Equal(t, Ok("approve"), got[0].Outcome)
	assert.Equal(t, 0, d.Pending())

	// Let the timer fire; it must not add a timeout notice.
	time.Sleep(400 * time.Millisecond)
	notices := g.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, "🥳 <code>approve</code>", notices[0].Text)
}

func TestDispatchSameChatIndependentPrompts(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})
	r := d.Router()

	first := d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Prompt:     prompt(100*time.Millisecond, []string{"a"}),
	})
	d1 := waitDelivery(t, g)
	second := d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Prompt:     prompt(5*time.Second, []string{"b"}),
	})
	d2 := waitDelivery(t, g)
	require.NotEqual(t, d1.MessageID, d2.MessageID)
	require.Eventually(t, func() bool { return d.Pending() == 2 }, time.Second, time.Millisecond)

	require.NoError(t, r.HandleInbound(context.Background(), "b", d2.ChatID, d2.MessageID))

	got2 := collect(second)
	require.Len(t, got2, 1)
	assert.Equal(t, Ok("b"), got2[0].Outcome)
	assert.Equal(t, 1, d.Pending())

	got1 := collect(first)
	require.Len(t, got1, 1)
	assert.Equal(t, Fail(Timeout), got1[0].Outcome)
	assert.Equal(t, 0, d.Pending())
}

func TestReplyTimeoutRaceResolvesOnce(t *testing.T) {
	for i := range 50 {
		g := newFakeGateway()
		d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})
		r := d.Router()

		timeout := time.Duration(1+i%3) * time.Millisecond
		ch := d.Dispatch(context.Background(), Request{
			Recipients: []Recipient{{Name: "alice", WantsReply: true}},
			Prompt:     prompt(timeout, []string{"x"}),
		})
		dl := waitDelivery(t, g)

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			time.Sleep(timeout)
			_ = r.HandleInbound(context.Background(), "x", dl.ChatID, dl.MessageID)
		}()

		got := collect(ch)
		wg.Wait()
		require.Len(t, got, 1, "iteration %d", i)
		o := got[0].Outcome
		assert.True(t, o == Ok("x") || o == Fail(Timeout), "iteration %d: %+v", i, o)
		assert.Equal(t, 0, d.Pending())
	}
}

func TestDuplicateReplyIsNoop(t *testing.T) {
	g := newFakeGateway()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{Bus: bus})
	r := d.Router()

	ch := d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Prompt:     prompt(5*time.Second, []string{"x"}),
	})
	dl := waitDelivery(t, g)
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.HandleInbound(context.Background(), "x", dl.ChatID, dl.MessageID))
	require.NoError(t, r.HandleInbound(context.Background(), "x", dl.ChatID, dl.MessageID))

	got := collect(ch)
	require.Len(t, got, 1)
	assert.Equal(t, Ok("x"), got[0].Outcome)
	assert.Equal(t, 0, d.Pending())

	notices := g.Notices()
	require.Len(t, notices, 2)
	assert.Equal(t, "⌚ The recipient probably timed out 😭", notices[1].Text)
	assert.Equal(t, []Key{MakeKey(7, dl.MessageID)}, g.Retracted())

	var types []string
	for len(events) > 0 {
		types = append(types, (<-events).Type)
	}
	assert.Equal(t, []string{eventbus.TypeDelivered, eventbus.TypeClaimed, eventbus.TypeOrphaned}, types)
}

func TestDispatchMaxPending(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 1, "bob": 2}), g, Options{MaxPending: 1})

	got := collect(d.Dispatch(context.Background(), Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}, {Name: "bob", WantsReply: true}},
		Prompt:     prompt(50*time.Millisecond, []string{"ok"}),
	}))

	require.Len(t, got, 2)
	reasons := map[Reason]int{}
	for _, r := range got {
		reasons[r.Outcome.Err]++
	}
	assert.Equal(t, map[Reason]int{Uncontactable: 1, Timeout: 1}, reasons)
	assert.Len(t, g.Deliveries(), 1)
}

func TestDispatchCancelAbandonsPrompt(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})

	ctx, cancel := context.WithCancel(context.Background())
	ch := d.Dispatch(ctx, Request{
		Recipients: []Recipient{{Name: "alice", WantsReply: true}},
		Prompt:     prompt(5*time.Second, []string{"x"}),
	})
	dl := waitDelivery(t, g)
	require.Eventually(t, func() bool { return d.Pending() == 1 }, time.Second, time.Millisecond)
	cancel()

	assert.Empty(t, collect(ch))
	assert.Equal(t, 0, d.Pending())
	assert.Contains(t, g.Retracted(), MakeKey(7, dl.MessageID))
	assert.Empty(t, g.Notices())
}

func TestOrphanedPressKeepsOptions(t *testing.T) {
	g := newFakeGateway()
	d := NewDispatcher(directory(map[string]int64{"alice": 7}), g, Options{})

	require.NoError(t, d.Router().HandleInbound(context.Background(), "x", 7, 555))

	assert.Empty(t, g.Retracted())
	notices := g.Notices()
	require.Len(t, notices, 1)
	assert.Equal(t, notice{ChatID: 7, MessageID: 555, Text: "⌚ The recipient probably timed out 😭"}, notices[0])
}
