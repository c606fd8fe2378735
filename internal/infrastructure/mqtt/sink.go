package mqtt

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nerrad567/infigrid-core/internal/node"
)

// Publisher is the subset of Client the event sink needs.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// EventSink forwards committed ledger events to the broker as JSON.
//
// Each event goes to Topics.Event(type, subject) where subject is the
// group id for group-scoped events and the device principal otherwise.
type EventSink struct {
	pub    Publisher
	topics Topics
	qos    byte
}

// NewEventSink returns a node.Sink publishing through pub.
func NewEventSink(pub Publisher, topics Topics, qos byte) *EventSink {
	return &EventSink{pub: pub, topics: topics, qos: qos}
}

// Name identifies the sink in node logs.
func (s *EventSink) Name() string {
	return "mqtt"
}

// Publish encodes ev and sends it unretained.
func (s *EventSink) Publish(ctx context.Context, ev node.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", ev.Type, err)
	}

	subject := string(ev.Device)
	if ev.GroupID != "" {
		subject = ev.GroupID
	}
	return s.pub.Publish(s.topics.Event(string(ev.Type), subject), payload, s.qos, false)
}
