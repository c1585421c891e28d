package realtime

import (
	"testing"
	"time"
)

func TestHub_DeliversInPublishOrder(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("chat_messages", "room-1")
	defer sub.Close()

	for i := 0; i < 5; i++ {
		hub.Publish(Event{Table: "chat_messages", Key: "room-1", Type: EventInsert, Payload: i})
	}

	for i := 0; i < 5; i++ {
		ev := <-sub.Events
		if ev.Payload.(int) != i {
			t.Fatalf("out of order: expected %d, got %v", i, ev.Payload)
		}
		if ev.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, ev.Seq)
		}
	}
}

func TestHub_KeyIsolation(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("chat_messages", "room-a")
	defer a.Close()

	hub.Publish(Event{Table: "chat_messages", Key: "room-b", Type: EventInsert})
	hub.Publish(Event{Table: "tickets", Key: "room-a", Type: EventUpdate})

	select {
	case ev := <-a.Events:
		t.Fatalf("subscriber received foreign event: %+v", ev)
	default:
	}
}

func TestHub_UnsubscribedSessionReceivesNothing(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("opportunities", "opp-1")
	sub.Close()

	hub.Publish(Event{Table: "opportunities", Key: "opp-1", Type: EventUpdate})

	if _, ok := <-sub.Events; ok {
		t.Fatal("closed subscription must deliver no further events")
	}
	if hub.SubscriberCount("opportunities", "opp-1") != 0 {
		t.Fatal("subscriber not removed")
	}
}

func TestHub_SlowSubscriberIsDropped(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("chat_messages", "room-1")

	// Never drained: overflow the buffer plus one.
	for i := 0; i < subscriberBuffer+1; i++ {
		hub.Publish(Event{Table: "chat_messages", Key: "room-1", Type: EventInsert, Payload: i})
	}

	// Drain: the channel must be closed after the buffered backlog.
	n := 0
	for range sub.Events {
		n++
	}
	if n != subscriberBuffer {
		t.Fatalf("expected %d buffered events before cutoff, got %d", subscriberBuffer, n)
	}
	if !sub.Lagged() {
		t.Fatal("dropped subscription must report lagged")
	}
	if hub.SubscriberCount("chat_messages", "room-1") != 0 {
		t.Fatal("lagged subscriber must be removed")
	}
}

func TestHub_CloseIsIdempotent(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("tickets", "t-1")
	sub.Close()
	sub.Close()
}

func TestTyping_WindowAndClear(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	hub := NewHub()
	ti := NewTypingIndicator(hub).WithClock(func() time.Time { return now })

	ti.Touch("room-1", "user-a")
	ti.Touch("room-1", "user-b")

	if got := len(ti.Active("room-1")); got != 2 {
		t.Fatalf("expected 2 active typists, got %d", got)
	}

	// user-a sends the message: cleared immediately.
	ti.Stop("room-1", "user-a")
	if got := ti.Active("room-1"); len(got) != 1 || got[0] != "user-b" {
		t.Fatalf("expected only user-b, got %v", got)
	}

	// Window elapses for user-b.
	now = now.Add(TypingWindow + time.Second)
	if got := len(ti.Active("room-1")); got != 0 {
		t.Fatalf("expected no typists after window, got %d", got)
	}
}

func TestTyping_BroadcastsEphemeralEvents(t *testing.T) {
	hub := NewHub()
	sub := hub.Subscribe("typing", "room-1")
	defer sub.Close()

	ti := NewTypingIndicator(hub)
	ti.Touch("room-1", "user-a")

	ev := <-sub.Events
	if ev.Table != "typing" || ev.Type != EventUpdate {
		t.Fatalf("unexpected event: %+v", ev)
	}
	active := ev.Payload.([]string)
	if len(active) != 1 || active[0] != "user-a" {
		t.Fatalf("expected [user-a], got %v", active)
	}
}
