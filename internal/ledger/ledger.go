package ledger

import "sort"

// Ledger owns the complete state of the telemetry ledger.
//
// Every exported mutating method is one transaction: it validates all of its
// preconditions before touching any table, so a method that returns an error
// leaves the state exactly as it found it. Lookups return copies; nothing
// handed to a caller aliases stored state.
//
// Thread Safety:
//   - Ledger is NOT safe for concurrent use. It is driven by a single
//     sequential processor that totally orders transactions (see package node).
type Ledger struct {
	devices     map[Principal]*Device
	permissions map[permissionKey]PermissionGrant
	records     map[recordKey]TelemetryRecord
	lastWrite   map[Principal]uint64
	aggregates  map[aggregateKey]*Aggregation
	triggers    map[Principal]map[uint64]*Trigger
	groups      map[string]*group
	alerts      map[alertKey]*GroupAlert
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		devices:     make(map[Principal]*Device),
		permissions: make(map[permissionKey]PermissionGrant),
		records:     make(map[recordKey]TelemetryRecord),
		lastWrite:   make(map[Principal]uint64),
		aggregates:  make(map[aggregateKey]*Aggregation),
		triggers:    make(map[Principal]map[uint64]*Trigger),
		groups:      make(map[string]*group),
		alerts:      make(map[alertKey]*GroupAlert),
	}
}

// Authorize reports whether caller holds capability c on device. The device
// itself implicitly holds every capability; anyone else needs a grant with
// the matching flag set.
func (l *Ledger) Authorize(device, caller Principal, c Capability) bool {
	if caller == device {
		return true
	}
	grant, ok := l.permissions[permissionKey{device: device, operator: caller}]
	return ok && grant.allows(c)
}

// Stats summarises table sizes for health reporting.
type Stats struct {
	Devices      int `json:"devices"`
	Permissions  int `json:"permissions"`
	Records      int `json:"records"`
	Aggregations int `json:"aggregations"`
	Triggers     int `json:"triggers"`
	Groups       int `json:"groups"`
	Alerts       int `json:"alerts"`
}

// GetStats returns current table sizes.
func (l *Ledger) GetStats() Stats {
	triggers := 0
	for _, byID := range l.triggers {
		triggers += len(byID)
	}
	return Stats{
		Devices:      len(l.devices),
		Permissions:  len(l.permissions),
		Records:      len(l.records),
		Aggregations: len(l.aggregates),
		Triggers:     triggers,
		Groups:       len(l.groups),
		Alerts:       len(l.alerts),
	}
}

// sortedTriggerIDs returns the device's trigger IDs in ascending order so
// evaluation is deterministic.
func (l *Ledger) sortedTriggerIDs(device Principal) []uint64 {
	byID := l.triggers[device]
	ids := make([]uint64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
