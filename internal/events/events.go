// Package events implements the in-process event bus (C10) that the
// control surface's SSE endpoint and any other subscriber drain. The event
// envelope is trimmed from the teacher's CloudEvent shape
// (internal/lattice/events/types.go) down to what spec.md §6 needs: no
// NATS/JetStream transport, no multi-host clustering (see Non-goals).
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Type is the kind of orchestration event (spec.md §6 event stream).
type Type string

const (
	TypeJobCreated    Type = "job.created"
	TypeJobQueued     Type = "job.queued"
	TypeJobBlocked    Type = "job.blocked"
	TypeJobStarted    Type = "job.started"
	TypeJobProgress   Type = "job.progress"
	TypeJobDone       Type = "job.done"
	TypeJobFailed     Type = "job.failed"
	TypeJobRejected   Type = "job.rejected"
	TypeJobMerged     Type = "job.merged"
	TypeGroupUpdated  Type = "group.updated"
	TypeConfigReload  Type = "config.reloaded"
	TypeChainStep     Type = "chain.step_completed"
	TypeChainComplete Type = "chain.completed"
)

// Event is one item on the bus. Data carries a JSON-serializable payload
// specific to Type (e.g. a kyco.Job snapshot for job.* events).
type Event struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Time      time.Time       `json:"time"`
	JobID     uint64          `json:"job_id,omitempty"`
	GroupID   uint64          `json:"group_id,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// New builds an Event with a fresh id, mirroring the teacher's use of
// uuid.NewString() for CloudEvent IDs.
func New(typ Type, data any) Event {
	raw, _ := json.Marshal(data)
	return Event{
		ID:   uuid.NewString(),
		Type: typ,
		Time: time.Now(),
		Data: raw,
	}
}

// Bus fans out events to any number of subscribers. Each subscriber gets
// its own buffered channel (capacity per spec.md §9, ~100) so one slow
// reader cannot stall publishers; when a subscriber channel is full the
// new event is dropped for that subscriber (subscribers reconnecting via
// SSE are expected to re-sync via a GET snapshot, not rely on total
// delivery).
type Bus struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function the caller must call when done.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		if c, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(c)
		}
		b.mu.Unlock()
	}
}

// Publish delivers ev to every current subscriber, non-blocking.
func (b *Bus) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
