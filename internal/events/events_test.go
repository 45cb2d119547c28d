package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	defer unsub1()
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub2()

	bus.Publish(New(TypeJobCreated, map[string]int{"id": 1}))

	select {
	case ev := <-ch1:
		require.Equal(t, TypeJobCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}
	select {
	case ev := <-ch2:
		require.Equal(t, TypeJobCreated, ev.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(New(TypeJobProgress, i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber channel")
	}
	require.Len(t, ch, 1)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(1)
	unsub()

	_, ok := <-ch
	require.False(t, ok)
}

func TestNewEventHasIDAndTimestamp(t *testing.T) {
	ev := New(TypeConfigReload, nil)
	require.NotEmpty(t, ev.ID)
	require.False(t, ev.Time.IsZero())
	require.Equal(t, TypeConfigReload, ev.Type)
}
