// Package history exports Lifecycle Manager state-change events to an
// external audit sink, generalized from the teacher's history.Sink
// interface (originally carrying start/stop events about supervised
// processes) to the orchestrator's state-changed events.
package history

import (
	"context"
	"time"
)

// EventType is the kind of lifecycle event being recorded.
type EventType string

const (
	EventStateChanged EventType = "state-changed"
)

// Event is one state-changed occurrence, shaped to mirror exactly what
// the RPC surface's state-changed frame carries (see internal/rpc).
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurredAt"`
	AppID      string    `json:"appId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Detail     string    `json:"detail,omitempty"`
}

// Sink is a destination for history events. Implementations must be safe
// for concurrent use; Send should not block the Lifecycle Manager's
// transition path for long, as it is called synchronously after every
// transition commits to the Registry.
type Sink interface {
	Send(ctx context.Context, e Event) error
}

// NopSink discards every event — the default when no audit sink is
// configured.
type NopSink struct{}

func (NopSink) Send(context.Context, Event) error { return nil }
