package events

import (
	"sync"

	"github.com/google/uuid"
)

// Emitter stamps events with a strictly increasing sequence number and
// forwards them to the sink channel. Emit is called while the emitting
// service still holds its own lock, so sequence order matches the order
// in which operations finalized. Emit itself never blocks: events land
// in an ordered outbox that a dedicated goroutine drains into the sink,
// so a slow or busy consumer can never wedge a producer that is holding
// a service lock.
type Emitter struct {
	mu   sync.Mutex
	cond *sync.Cond

	seq    uint64
	outbox []Event
	sink   chan<- Event
}

func NewEmitter(sink chan<- Event) *Emitter {
	result := &Emitter{
		sink: sink,
	}

	result.cond = sync.NewCond(&result.mu)

	if sink != nil {
		go result.drain()
	}

	return result
}

func (e *Emitter) Emit(event Event) Event {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.seq++
	event.Seq = e.seq

	id, err := uuid.NewV7()
	if err == nil {
		event.ID = id.String()
	}

	if e.sink != nil {
		e.outbox = append(e.outbox, event)
		e.cond.Signal()
	}

	return event
}

// Seq returns the sequence number of the most recently emitted event.
func (e *Emitter) Seq() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.seq
}

func (e *Emitter) drain() {
	for {
		e.mu.Lock()

		for len(e.outbox) == 0 {
			e.cond.Wait()
		}

		event := e.outbox[0]
		e.outbox = e.outbox[1:]

		e.mu.Unlock()

		// The send happens outside the emitter lock, so a full sink
		// only ever stalls this goroutine.
		e.sink <- event
	}
}
