// Package node hosts the ledger: it totally orders transactions, journals
// every committed call, restores state by replay, and fans committed events
// out to sinks (MQTT, WebSocket, InfluxDB).
//
// # Transaction Flow
//
//	Submit(caller, call)
//	    │
//	    ├─ lock ─▶ Tx{caller, head+1} ─▶ call.apply(ledger)
//	    │                                   │
//	    │                      rejected ◀───┤ (no seq consumed, no entry)
//	    │                                   ▼
//	    │                         journal.Append(entry)
//	    │                                   │
//	    │          append failed ─▶ rebuild ledger from journal
//	    │                                   ▼
//	    └─ unlock ◀── enqueue events ◀── head = entry
//
// The ledger is deterministic, so replaying the journal from seq 1 always
// reproduces the state that existed when the last entry committed.
package node
