package events

import (
	"testing"
	"time"
)

func TestPollReturnsOldestFirst(t *testing.T) {
	b := NewBus(16)
	b.Post("first", nil)
	b.Post("second", nil)
	b.Post("third", nil)

	evs := b.Poll(2)
	if len(evs) != 2 || evs[0].Name != "first" || evs[1].Name != "second" {
		t.Fatalf("Poll(2) = %v", evs)
	}

	evs = b.Poll(0)
	if len(evs) != 1 || evs[0].Name != "third" {
		t.Fatalf("Poll(0) = %v", evs)
	}
	if evs := b.Poll(0); len(evs) != 0 {
		t.Fatalf("queue not empty: %v", evs)
	}
}

func TestQueueDropsOldestWhenFull(t *testing.T) {
	b := NewBus(3)
	for _, name := range []string{"a", "b", "c", "d"} {
		b.Post(name, nil)
	}
	evs := b.Poll(0)
	if len(evs) != 3 {
		t.Fatalf("got %d events, want 3", len(evs))
	}
	if evs[0].Name != "b" || evs[2].Name != "d" {
		t.Fatalf("wrong survivors: %v", evs)
	}
}

func TestWaitReturnsQueuedEvent(t *testing.T) {
	b := NewBus(16)
	b.Post("ready", nil)
	ev, ok := b.Wait(time.Second)
	if !ok || ev.Name != "ready" {
		t.Fatalf("Wait = %v, %v", ev, ok)
	}
}

func TestWaitBlocksUntilPost(t *testing.T) {
	b := NewBus(16)
	go func() {
		time.Sleep(20 * time.Millisecond)
		b.Post("late", nil)
	}()
	ev, ok := b.Wait(2 * time.Second)
	if !ok || ev.Name != "late" {
		t.Fatalf("Wait = %v, %v", ev, ok)
	}
}

func TestWaitTimesOut(t *testing.T) {
	b := NewBus(16)
	start := time.Now()
	if _, ok := b.Wait(20 * time.Millisecond); ok {
		t.Fatal("Wait reported an event on an empty bus")
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("Wait returned before the timeout")
	}
}

func TestSubscribeReceivesEvents(t *testing.T) {
	b := NewBus(16)
	ch, cancel := b.Subscribe(4)
	defer cancel()

	b.Post("hello", map[string]any{"k": "v"})
	select {
	case ev := <-ch:
		if ev.Name != "hello" {
			t.Fatalf("got %q", ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber never received the event")
	}
}

func TestClearDiscardsQueue(t *testing.T) {
	b := NewBus(16)
	b.Post("stale", nil)
	b.Clear()
	if evs := b.Poll(0); len(evs) != 0 {
		t.Fatalf("queue not empty after Clear: %v", evs)
	}
}

func TestEventTimeIsSet(t *testing.T) {
	b := NewBus(16)
	before := time.Now().UnixMicro()
	b.Post("stamped", nil)
	ev, _ := b.Wait(time.Second)
	if ev.Time < before {
		t.Fatalf("event time %d predates post", ev.Time)
	}
}
