// ABOUTME: Fleet event types and the Recorder/Ledger interfaces used by the hub and control surface.
// ABOUTME: Nop is the ledger used when persistence is disabled.

package store

import (
	"context"
	"time"
)

// EventKind is what happened to an agent or the fleet.
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventIdentify   EventKind = "identify"
	EventDisconnect EventKind = "disconnect"
	EventEvict      EventKind = "evict"
	EventBroadcast  EventKind = "broadcast"
	EventUnicast    EventKind = "unicast"
)

// ValidEventKinds lists all valid event kinds.
var ValidEventKinds = []EventKind{
	EventConnect,
	EventIdentify,
	EventDisconnect,
	EventEvict,
	EventBroadcast,
	EventUnicast,
}

// Event is one ledger entry.
type Event struct {
	ID        string    // UUID v4, generated on append if empty
	Kind      EventKind // what happened
	AgentAddr string    // connection identity, empty for fleet-wide events
	Hostname  string    // announced hostname, if known
	Detail    string    // free-form context (reason, payload, delivery counts)
	Timestamp time.Time // generated on append if zero
}

// Recorder accepts ledger events.
type Recorder interface {
	Append(ctx context.Context, e *Event) error
}

// Ledger is a Recorder that can also list recent events.
type Ledger interface {
	Recorder
	// Recent returns up to limit events, newest first.
	Recent(ctx context.Context, limit int) ([]Event, error)
	Close() error
}

// Nop discards every event.
type Nop struct{}

var _ Ledger = Nop{}

func (Nop) Append(context.Context, *Event) error { return nil }

func (Nop) Recent(context.Context, int) ([]Event, error) { return nil, nil }

func (Nop) Close() error { return nil }
