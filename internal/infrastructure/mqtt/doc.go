// Package mqtt publishes committed ledger events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Event publishing with QoS guarantees
//   - A retained status topic with Last Will for offline detection
//
// # Architecture
//
// The node hands every committed event to its sinks in commit order. The
// EventSink in this package is one of them; it maps each event to a topic
// and publishes the JSON encoding. Subscribers never feed data back: writes
// reach the ledger only through the authenticated API.
//
//	Node dispatcher -> EventSink -> Broker -> dashboards, alerting
//
// # Topics
//
//	{prefix}/events/{event-type}/{device-or-group}
//	{prefix}/system/status   (retained)
//
// # Security Considerations
//
//   - TLS should be enabled for any broker outside the host (cfg.Broker.TLS=true)
//   - Event payloads carry principals and readings; restrict subscribe ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	n.AddSink(mqtt.NewEventSink(client, client.Topics(), byte(cfg.MQTT.QoS)))
package mqtt
