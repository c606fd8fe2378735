package influxdb

import (
	"context"
	"fmt"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/infigrid-core/internal/ledger"
	"github.com/nerrad567/infigrid-core/internal/node"
)

// PointWriter accepts points for asynchronous delivery.
type PointWriter interface {
	WritePoint(p *write.Point)
}

// TelemetrySink mirrors committed readings, trigger firings and alert
// changes into InfluxDB. Other event types are ignored.
type TelemetrySink struct {
	w PointWriter
}

// NewTelemetrySink returns a node.Sink writing through w.
func NewTelemetrySink(w PointWriter) *TelemetrySink {
	return &TelemetrySink{w: w}
}

// Name identifies the sink in node logs.
func (s *TelemetrySink) Name() string {
	return "influxdb"
}

// Publish converts ev to a point and queues it. Points are stamped with the
// event's commit time.
func (s *TelemetrySink) Publish(ctx context.Context, ev node.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var p *write.Point
	switch ev.Type {
	case node.EventReadingStored:
		res, ok := ev.Data.(ledger.StoreResult)
		if !ok {
			return unexpectedData(ev)
		}
		var err error
		if p, err = readingPoint(res, ev.Timestamp); err != nil {
			return err
		}
	case node.EventTriggerFired:
		f, ok := ev.Data.(ledger.Firing)
		if !ok {
			return unexpectedData(ev)
		}
		p = firingPoint(ev.Device, f, ev.Timestamp)
	case node.EventAlertCreated, node.EventAlertResolved:
		res, ok := ev.Data.(ledger.AlertResult)
		if !ok {
			return unexpectedData(ev)
		}
		p = alertPoint(res, ev.Timestamp)
	default:
		return nil
	}

	s.w.WritePoint(p)
	return nil
}

func unexpectedData(ev node.Event) error {
	return fmt.Errorf("%w: %s event carries %T", ErrWriteFailed, ev.Type, ev.Data)
}
