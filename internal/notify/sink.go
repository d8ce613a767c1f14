// Package notify carries room and task events from the services to connected
// clients. Emission is fire-and-forget: a Sink never reports delivery errors
// back to the caller, so a failed notification cannot undo committed state.
package notify

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sink receives events after the unit of work that produced them committed.
// A nil target means the event is not addressed to a single user.
type Sink interface {
	Emit(event string, payload any, target *uuid.UUID)
}

// Envelope is the wire form of an event on the bus and on client sockets.
type Envelope struct {
	Event     string          `json:"event"`
	Target    *uuid.UUID      `json:"target,omitempty"`
	Payload   json.RawMessage `json:"payload"`
	EmittedAt time.Time       `json:"emitted_at"`
}

func NewEnvelope(event string, payload any, target *uuid.UUID) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Event:     event,
		Target:    target,
		Payload:   data,
		EmittedAt: time.Now().UTC(),
	}, nil
}

type Nop struct{}

func (Nop) Emit(string, any, *uuid.UUID) {}

// Multi fans every event out to each sink in order.
type Multi []Sink

func (m Multi) Emit(event string, payload any, target *uuid.UUID) {
	for _, s := range m {
		s.Emit(event, payload, target)
	}
}

// Recorder keeps emitted events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
}

type Recorded struct {
	Event   string
	Payload any
	Target  *uuid.UUID
}

func (r *Recorder) Emit(event string, payload any, target *uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Event: event, Payload: payload, Target: target})
}

func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Named returns the recorded events with the given name.
func (r *Recorder) Named(event string) []Recorded {
	var out []Recorded
	for _, e := range r.Events() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
