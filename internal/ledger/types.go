package ledger

import "sort"

// Principal is an opaque caller identity. A registered device is keyed by the
// principal that registered it: the device and its controlling identity are
// one entity.
type Principal string

// Tx is the per-transaction context supplied by the host.
type Tx struct {
	// Caller is the identity submitting the transaction.
	Caller Principal
	// Seq is the host's monotonically increasing transaction sequence number.
	// It doubles as the timestamp of any telemetry record the transaction creates.
	Seq uint64
}

// Capability is a delegated right an operator can hold on a device.
type Capability uint8

const (
	// CapWrite allows storing telemetry on the device's behalf.
	CapWrite Capability = iota + 1
	// CapManage allows creating and toggling the device's triggers.
	CapManage
)

// String returns the capability name.
func (c Capability) String() string {
	switch c {
	case CapWrite:
		return "write"
	case CapManage:
		return "manage"
	default:
		return "unknown"
	}
}

// Device is a registered telemetry producer.
type Device struct {
	ID         Principal `json:"id"`
	Name       string    `json:"name"`
	DeviceType string    `json:"device_type"`
	Active     bool      `json:"active"`
}

// PermissionGrant is the capability set an operator holds on a device.
type PermissionGrant struct {
	Device    Principal `json:"device"`
	Operator  Principal `json:"operator"`
	CanWrite  bool      `json:"can_write"`
	CanManage bool      `json:"can_manage"`
}

// allows reports whether the grant carries the capability.
func (g PermissionGrant) allows(c Capability) bool {
	switch c {
	case CapWrite:
		return g.CanWrite
	case CapManage:
		return g.CanManage
	default:
		return false
	}
}

// TelemetryRecord is one immutable timestamped reading.
type TelemetryRecord struct {
	Device    Principal `json:"device"`
	Timestamp uint64    `json:"timestamp"`
	DataType  string    `json:"data_type"`
	Value     string    `json:"value"`
	Verified  bool      `json:"verified"`
}

// Aggregation is the running summary of one metric on one device.
type Aggregation struct {
	Device   Principal `json:"device"`
	DataType string    `json:"data_type"`
	Count    uint64    `json:"count"`
	Sum      int64     `json:"sum"`
	Average  int64     `json:"average"`
}

// Trigger is a standing threshold rule on one metric of a device.
type Trigger struct {
	Device    Principal `json:"device"`
	ID        uint64    `json:"trigger_id"`
	DataType  string    `json:"data_type"`
	Condition Condition `json:"condition"`
	Threshold int64     `json:"threshold"`
	Action    string    `json:"action"`
	Active    bool      `json:"is_active"`
}

// Firing records that a trigger's condition matched an accepted reading.
type Firing struct {
	TriggerID uint64    `json:"trigger_id"`
	Condition Condition `json:"condition"`
	Threshold int64     `json:"threshold"`
	Action    string    `json:"action"`
}

// StoreResult is the outcome of an accepted telemetry write.
type StoreResult struct {
	Record      TelemetryRecord `json:"record"`
	Aggregation Aggregation     `json:"aggregation"`
	// Firings lists matched triggers in ascending trigger ID order. Empty when
	// nothing matched.
	Firings []Firing `json:"firings"`
}

// DeviceGroup is a named collection of devices with an alert-count threshold.
type DeviceGroup struct {
	ID             string      `json:"group_id"`
	Description    string      `json:"description"`
	AlertThreshold uint64      `json:"alert_threshold"`
	Members        []Principal `json:"members"`
	OpenAlerts     uint64      `json:"open_alerts"`
}

// GroupAlert is an incident record scoped to a group.
type GroupAlert struct {
	GroupID   string `json:"group_id"`
	ID        uint64 `json:"alert_id"`
	AlertType string `json:"alert_type"`
	Severity  uint64 `json:"severity"`
	Message   string `json:"message"`
	Resolved  bool   `json:"resolved"`
}

// AlertResult is the outcome of creating or resolving a group alert.
type AlertResult struct {
	Alert      GroupAlert `json:"alert"`
	OpenAlerts uint64     `json:"open_alerts"`
	// Critical is true when the group's open alerts reach its alert threshold.
	Critical bool `json:"critical"`
}

// group is the stored form of a DeviceGroup; members is a set.
type group struct {
	id             string
	description    string
	alertThreshold uint64
	members        map[Principal]struct{}
	openAlerts     uint64
}

// snapshot returns an independent copy with members in sorted order.
func (g *group) snapshot() DeviceGroup {
	members := make([]Principal, 0, len(g.members))
	for m := range g.members {
		members = append(members, m)
	}
	sort.Slice(members, func(i, j int) bool { return members[i] < members[j] })
	return DeviceGroup{
		ID:             g.id,
		Description:    g.description,
		AlertThreshold: g.alertThreshold,
		Members:        members,
		OpenAlerts:     g.openAlerts,
	}
}

// critical reports whether the open-alert count is at or above the threshold.
// A zero threshold disables the check.
func (g *group) critical() bool {
	return g.alertThreshold > 0 && g.openAlerts >= g.alertThreshold
}

type permissionKey struct {
	device   Principal
	operator Principal
}

type recordKey struct {
	device    Principal
	timestamp uint64
}

type aggregateKey struct {
	device   Principal
	dataType string
}

type alertKey struct {
	groupID string
	alertID uint64
}
