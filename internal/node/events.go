package node

import (
	"context"
	"time"

	"github.com/nerrad567/infigrid-core/internal/ledger"
)

// EventType names a committed state change.
type EventType string

// Event types emitted after commit.
const (
	EventDeviceRegistered  EventType = "device.registered"
	EventDeviceStatus      EventType = "device.status"
	EventPermissionChanged EventType = "permission.changed"
	EventReadingStored     EventType = "reading.stored"
	EventTriggerUpdated    EventType = "trigger.updated"
	EventTriggerFired      EventType = "trigger.fired"
	EventGroupUpdated      EventType = "group.updated"
	EventAlertCreated      EventType = "alert.created"
	EventAlertResolved     EventType = "alert.resolved"
	EventGroupCritical     EventType = "group.critical"
)

// Event describes one committed state change. Events are produced only after
// the transaction is journalled and are never replayed.
type Event struct {
	Type      EventType        `json:"type"`
	Seq       uint64           `json:"seq"`
	Caller    ledger.Principal `json:"caller"`
	Device    ledger.Principal `json:"device,omitempty"`
	GroupID   string           `json:"group_id,omitempty"`
	Data      any              `json:"data"`
	Timestamp time.Time        `json:"timestamp"`
}

// Sink receives committed events. Publish is called from a single dispatch
// goroutine in commit order; an error is logged and otherwise ignored.
type Sink interface {
	Name() string
	Publish(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc struct {
	SinkName string
	Fn       func(ctx context.Context, ev Event) error
}

// Name returns the sink name used in logs.
func (s SinkFunc) Name() string { return s.SinkName }

// Publish calls Fn.
func (s SinkFunc) Publish(ctx context.Context, ev Event) error { return s.Fn(ctx, ev) }
