// Package influxdb mirrors committed ledger data into InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched non-blocking writes and health monitoring, and
// provides TelemetrySink, a node.Sink that turns events into points.
//
// # Measurements
//
//   - telemetry: one point per accepted reading, tagged by device and data type
//   - trigger_firings: one point per matched trigger
//   - group_alerts: open-alert count and criticality after each alert change
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	n.AddSink(influxdb.NewTelemetrySink(client))
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are delivered via the
// SetOnError callback. Connection and health check errors are returned
// directly.
package influxdb
