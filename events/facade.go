package events

import (
	"time"

	"github.com/khadas/scriptbridge/rpcserver"
)

const defaultWaitTimeout = 60 * time.Second

// Facade exposes the event queue over RPC for clients that poll instead of
// holding a websocket open.
type Facade struct {
	bus *Bus
}

func NewFacade(bus *Bus) *Facade {
	return &Facade{bus: bus}
}

func (f *Facade) Name() string { return "events" }

func (f *Facade) Shutdown() {
	f.bus.Clear()
}

func (f *Facade) Methods() map[string]rpcserver.Handler {
	return map[string]rpcserver.Handler{
		"eventPoll":        f.eventPoll,
		"eventWait":        f.eventWait,
		"eventClearBuffer": f.eventClearBuffer,
	}
}

func (f *Facade) eventPoll(p rpcserver.Params) (any, error) {
	count, err := p.IntDefault(0, 0)
	if err != nil {
		return nil, err
	}
	return f.bus.Poll(count), nil
}

func (f *Facade) eventWait(p rpcserver.Params) (any, error) {
	timeoutMs, err := p.OptionalInt(0)
	if err != nil {
		return nil, err
	}
	timeout := defaultWaitTimeout
	if timeoutMs != nil {
		timeout = time.Duration(*timeoutMs) * time.Millisecond
	}
	ev, ok := f.bus.Wait(timeout)
	if !ok {
		return nil, nil
	}
	return ev, nil
}

func (f *Facade) eventClearBuffer(p rpcserver.Params) (any, error) {
	f.bus.Clear()
	return true, nil
}
