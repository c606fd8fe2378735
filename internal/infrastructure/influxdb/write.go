package influxdb

import (
	"fmt"
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/infigrid-core/internal/ledger"
)

// Measurement names written by the telemetry sink.
const (
	MeasurementTelemetry = "telemetry"
	MeasurementFirings   = "trigger_firings"
	MeasurementAlerts    = "group_alerts"
)

// WritePoint queues a point on the non-blocking write API.
// It is a no-op once the client is closed.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
}

// readingPoint converts an accepted reading into a telemetry point.
//
// Tags: device, data_type. Fields: value (as float), ledger_ts, and the
// running count, sum and average after the reading was applied.
func readingPoint(res ledger.StoreResult, at time.Time) (*write.Point, error) {
	value, err := strconv.ParseFloat(res.Record.Value, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q: %w", ErrWriteFailed, res.Record.Value, err)
	}

	return write.NewPoint(
		MeasurementTelemetry,
		map[string]string{
			"device":    string(res.Record.Device),
			"data_type": res.Record.DataType,
		},
		map[string]any{
			"value":     value,
			"ledger_ts": int64(res.Record.Timestamp),
			"count":     int64(res.Aggregation.Count),
			"sum":       res.Aggregation.Sum,
			"average":   res.Aggregation.Average,
		},
		at,
	), nil
}

// firingPoint records one trigger match.
func firingPoint(device ledger.Principal, f ledger.Firing, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementFirings,
		map[string]string{
			"device":     string(device),
			"trigger_id": strconv.FormatUint(f.TriggerID, 10),
			"condition":  string(f.Condition),
		},
		map[string]any{
			"threshold": f.Threshold,
			"action":    f.Action,
		},
		at,
	)
}

// alertPoint records a group's alert pressure after an alert is created or resolved.
func alertPoint(res ledger.AlertResult, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAlerts,
		map[string]string{
			"group_id":   res.Alert.GroupID,
			"alert_type": res.Alert.AlertType,
		},
		map[string]any{
			"alert_id":    int64(res.Alert.ID),
			"severity":    int64(res.Alert.Severity),
			"resolved":    res.Alert.Resolved,
			"open_alerts": int64(res.OpenAlerts),
			"critical":    res.Critical,
		},
		at,
	)
}
