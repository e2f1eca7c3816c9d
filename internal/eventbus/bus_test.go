package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFansOut(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(4)
	defer unsubA()
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Publish(b, TypeClaimed, RecipientEvent{Recipient: "alice", Option: "yes"})

	for _, ch := range []<-chan Event{a, c} {
		select {
		case e := <-ch:
			assert.Equal(t, TypeClaimed, e.Type)
			assert.False(t, e.Time.IsZero())
			ev, ok := e.Data.(RecipientEvent)
			require.True(t, ok)
			assert.Equal(t, "yes", ev.Option)
		case <-time.After(time.Second):
			t.Fatal("event not delivered")
		}
	}
}

func TestPublishDropsWhenFull(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: TypeTimeout})
	b.Publish(Event{Type: TypeTimeout})
	assert.Equal(t, uint64(1), b.Dropped())
}

func TestUnsubscribeClosesAndPublishSurvives(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()

	_, open := <-ch
	assert.False(t, open)
	assert.NotPanics(t, func() { b.Publish(Event{Type: TypeOrphaned}) })
	Publish(nil, TypeOrphaned, nil)
}

func TestSubscribeFiltersByType(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(4, TypeTimeout, TypeOrphaned)
	defer unsub()

	Publish(b, TypeDelivered, nil)
	Publish(b, TypeTimeout, nil)
	Publish(b, TypeClaimed, nil)

	select {
	case e := <-ch:
		assert.Equal(t, TypeTimeout, e.Type)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
	select {
	case e := <-ch:
		t.Fatalf("unexpected event %s", e.Type)
	default:
	}
	assert.Zero(t, b.Dropped(), "filtered events are not drops")
}
