// Package ledger provides the deterministic state machine at the heart of
// InfiGrid Core.
//
// The ledger registers devices, gates who may write readings on a device's
// behalf, stores timestamped readings, keeps running aggregates per device
// and metric, evaluates threshold triggers on every write, and tracks device
// groups with their own alert lifecycle.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────────┐
//	│                              Ledger                               │
//	│                                                                   │
//	│  devices ──▶ permissions ──▶ StoreData ──▶ aggregates ──▶ triggers│
//	│                                                                   │
//	│  groups ──▶ alerts (Open ──▶ Resolved)                            │
//	└───────────────────────────────────────────────────────────────────┘
//	           ▲                                   │
//	           │ Tx{Caller, Seq}                   │ results / Firings
//	┌──────────┴───────────────────────────────────▼────────────────────┐
//	│                     node.Node (single writer)                     │
//	└───────────────────────────────────────────────────────────────────┘
//
// # Transactions
//
// Every mutating method takes a Tx supplied by the host: the caller identity
// and the host's transaction sequence number. A method either applies all of
// its mutations or returns an error having applied none. The ledger performs
// no I/O, holds no locks and never logs; observability is via returned
// results and lookups.
//
// # Authorization
//
// A device is keyed by the principal that registered it and implicitly holds
// every capability on itself. Other principals need a PermissionGrant with
// the relevant flag: CapWrite to store readings, CapManage to create or
// toggle triggers. Groups and alerts are open: any caller may create a
// group, add devices, and open or resolve alerts.
//
// # Numeric Semantics
//
// Readings are decimal text (-?[0-9]+(.[0-9]+)?). Aggregation accumulates
// the integer part truncated toward zero in an int64 and averages with
// integer division. Trigger comparison is exact, so 30.5 is ABOVE 30.
//
// # Errors
//
// Rejections are *Error values with a stable numeric Code (see CodeOf).
// They may be wrapped with context; test with errors.Is against the
// package sentinels.
package ledger
