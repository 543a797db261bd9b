package notify

import (
	"github.com/rs/zerolog/log"
	"gopkg.in/tomb.v2"

	"spotx/internal/events"
)

// Dispatcher drains a channel of staged events and routes each one to its
// recipients via a Hub. It is supervised by a tomb.Tomb the way fenrir
// supervises its matching goroutine, so the server can stop it cleanly on
// shutdown.
type Dispatcher struct {
	hub    *Hub
	events chan events.Event
	t      tomb.Tomb
}

// NewDispatcher constructs a Dispatcher with the given buffer size for its
// event queue.
func NewDispatcher(hub *Hub, bufferSize int) *Dispatcher {
	return &Dispatcher{
		hub:    hub,
		events: make(chan events.Event, bufferSize),
	}
}

// Start launches the dispatch loop under the tomb.
func (d *Dispatcher) Start() {
	d.t.Go(d.run)
}

// Stop signals the dispatch loop to exit and waits for it to finish.
func (d *Dispatcher) Stop() error {
	d.t.Kill(nil)
	return d.t.Wait()
}

// Publish enqueues events for delivery. It never blocks the caller's
// transaction: if the queue is full the event is dropped and logged, since
// delivery is best-effort by design.
func (d *Dispatcher) Publish(evts ...events.Event) {
	for _, e := range evts {
		select {
		case d.events <- e:
		default:
			log.Warn().Str("kind", string(e.Kind())).Msg("notify: event queue full, dropping event")
		}
	}
}

func (d *Dispatcher) run() error {
	for {
		select {
		case <-d.t.Dying():
			return nil
		case e := <-d.events:
			d.deliver(e)
		}
	}
}

func (d *Dispatcher) deliver(e events.Event) {
	switch evt := e.(type) {
	case events.OrderMatched:
		payload := map[string]any{"trade": toTradeWire(evt.Trade)}
		for _, uid := range evt.Recipients() {
			d.hub.Send(uid, string(events.KindOrderMatched), payload)
		}
	case events.OrderStatusUpdated:
		payload := map[string]any{"order": toOrderWire(evt.Order)}
		for _, uid := range evt.Recipients() {
			d.hub.Send(uid, string(events.KindOrderStatusUpdated), payload)
		}
	default:
		log.Warn().Str("kind", string(e.Kind())).Msg("notify: unknown event type")
	}
}
