// Package events carries named events from the facades to the remote client.
//
// Facades post events; the client consumes them either by polling over RPC
// (eventPoll / eventWait) or by listening on the websocket push channel.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/khadas/scriptbridge/core/withlock"
)

// Event is one named notification, e.g. "WifiRttRangingResults_3".
type Event struct {
	Name string `json:"name"`
	Time int64  `json:"time"`
	Data any    `json:"data"`
}

// Bus fans posted events out to subscribers and keeps a bounded queue for
// the polling RPCs. When the queue is full the oldest event is dropped.
type Bus struct {
	mu       sync.Mutex
	capacity int
	queue    []Event
	subs     map[int]chan Event
	nextSub  int
	waiters  []chan struct{}
}

func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 256
	}
	return &Bus{
		capacity: capacity,
		subs:     make(map[int]chan Event),
	}
}

// Post publishes a named event. It never blocks: slow subscribers miss
// events rather than stalling a platform callback.
func (b *Bus) Post(name string, data any) {
	ev := Event{
		Name: name,
		Time: time.Now().UnixMicro(),
		Data: data,
	}
	slog.Debug("posting event", "name", name)

	withlock.Do(&b.mu, func() {
		b.queue = append(b.queue, ev)
		if len(b.queue) > b.capacity {
			over := len(b.queue) - b.capacity
			slog.Warn("event queue full, dropping oldest", "dropped", over)
			b.queue = append([]Event(nil), b.queue[over:]...)
		}

		// wake eventWait callers; they re-check the queue themselves
		for _, w := range b.waiters {
			close(w)
		}
		b.waiters = nil

		for id, ch := range b.subs {
			select {
			case ch <- ev:
			default:
				slog.Warn("subscriber too slow, dropping event", "sub", id, "name", name)
			}
		}
	})
}

// Subscribe returns a channel of future events and a cancel func. The
// channel is buffered; events overflowing the buffer are dropped for this
// subscriber only.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan Event, buffer)
	var id int
	withlock.Do(&b.mu, func() {
		id = b.nextSub
		b.nextSub++
		b.subs[id] = ch
	})
	cancel := func() {
		withlock.Do(&b.mu, func() {
			if _, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Poll removes and returns up to max queued events, oldest first.
// max <= 0 drains the whole queue.
func (b *Bus) Poll(max int) []Event {
	var out []Event
	withlock.Do(&b.mu, func() {
		n := len(b.queue)
		if max > 0 && max < n {
			n = max
		}
		out = append([]Event(nil), b.queue[:n]...)
		b.queue = append([]Event(nil), b.queue[n:]...)
	})
	return out
}

// Wait returns the next event: the oldest queued one if any, otherwise it
// blocks until one is posted or the timeout elapses.
func (b *Bus) Wait(timeout time.Duration) (Event, bool) {
	deadline := time.Now().Add(timeout)
	for {
		var ev Event
		var ok bool
		var kick chan struct{}
		withlock.Do(&b.mu, func() {
			if len(b.queue) > 0 {
				ev, ok = b.queue[0], true
				b.queue = append([]Event(nil), b.queue[1:]...)
				return
			}
			kick = make(chan struct{})
			b.waiters = append(b.waiters, kick)
		})
		if ok {
			return ev, true
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			b.dropWaiter(kick)
			return Event{}, false
		}
		timer := time.NewTimer(remaining)
		select {
		case <-kick:
			timer.Stop()
			// an event arrived; loop and race for it
		case <-timer.C:
			b.dropWaiter(kick)
			return Event{}, false
		}
	}
}

func (b *Bus) dropWaiter(kick chan struct{}) {
	withlock.Do(&b.mu, func() {
		for i, w := range b.waiters {
			if w == kick {
				b.waiters = append(b.waiters[:i:i], b.waiters[i+1:]...)
				break
			}
		}
	})
}

// Clear discards every queued event.
func (b *Bus) Clear() {
	withlock.Do(&b.mu, func() {
		b.queue = nil
	})
}
