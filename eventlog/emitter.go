package eventlog

import (
	"context"
	"log/slog"
	"sync"
)

// Emitter appends events to a store and fans them out to live subscribers.
// Appending is the authoritative part: an event is emitted only if the
// store accepted it, so subscribers never observe records that are not in
// the log.
type Emitter struct {
	store Store
	log   *slog.Logger

	mu     sync.Mutex
	subs   map[int]chan *Event
	nextID int
}

// NewEmitter creates an emitter over store.
func NewEmitter(store Store, log *slog.Logger) *Emitter {
	if log == nil {
		log = slog.Default()
	}
	return &Emitter{
		store: store,
		log:   log,
		subs:  make(map[int]chan *Event),
	}
}

// Emit appends event to the store and notifies subscribers. A subscriber
// that cannot keep up is skipped rather than blocking the emitting call.
func (e *Emitter) Emit(ctx context.Context, event *Event) error {
	if err := e.store.Append(ctx, event); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for id, ch := range e.subs {
		select {
		case ch <- event:
		default:
			e.log.Warn("dropping event for slow subscriber", "subscriber", id, "seq", event.Seq)
		}
	}
	return nil
}

// Subscribe returns a channel carrying future events and a cancel function
// that must be called to release the subscription. Missed events can be
// recovered from the store by sequence number.
func (e *Emitter) Subscribe(buffer int) (<-chan *Event, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	ch := make(chan *Event, buffer)
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

// Store exposes the backing store for range reads.
func (e *Emitter) Store() Store {
	return e.store
}
