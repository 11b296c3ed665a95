package capture

import (
	"log/slog"

	"github.com/MrWong99/voxlink/pkg/device"
)

// Event is emitted for every frame read from the input device, before the
// frame is classified.
type Event struct {
	// Device is the device the frame came from.
	Device device.InputDevice

	// Samples is the raw frame. Listeners must not modify it.
	Samples []int16

	cancelled bool
	sendEnd   bool
}

// Cancel discards the frame.
func (e *Event) Cancel() { e.cancelled = true }

// Cancelled reports whether a listener discarded the frame.
func (e *Event) Cancelled() bool { return e.cancelled }

// EndVoice ends every active transmission instead of processing the frame.
func (e *Event) EndVoice() { e.sendEnd = true }

// SendEnd reports whether a listener ended transmission.
func (e *Event) SendEnd() bool { return e.sendEnd }

// Listener observes capture events. It runs on the worker goroutine and must
// return quickly.
type Listener func(e *Event)

type listenerEntry struct {
	id uint64
	fn Listener
}

// OnCapture registers l and returns a function that removes it.
func (p *Pipeline) OnCapture(l Listener) (remove func()) {
	p.listenerMu.Lock()
	defer p.listenerMu.Unlock()

	p.nextID++
	id := p.nextID
	var next []listenerEntry
	if cur := p.listeners.Load(); cur != nil {
		next = append(next, *cur...)
	}
	next = append(next, listenerEntry{id: id, fn: l})
	p.listeners.Store(&next)

	return func() {
		p.listenerMu.Lock()
		defer p.listenerMu.Unlock()
		cur := p.listeners.Load()
		if cur == nil {
			return
		}
		next := make([]listenerEntry, 0, len(*cur))
		for _, e := range *cur {
			if e.id != id {
				next = append(next, e)
			}
		}
		p.listeners.Store(&next)
	}
}

// notify runs every listener in registration order. A panicking listener is
// logged and skipped.
func (p *Pipeline) notify(e *Event) {
	cur := p.listeners.Load()
	if cur == nil {
		return
	}
	for _, l := range *cur {
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("capture: listener panicked", "listener", l.id, "panic", r)
				}
			}()
			l.fn(e)
		}()
	}
}
