package node

import (
	"fmt"

	"github.com/nerrad567/infigrid-core/internal/journal"
	"github.com/nerrad567/infigrid-core/internal/ledger"
)

// Operation names as recorded in the journal. These are persisted and must
// never be renamed.
const (
	OpRegisterDevice   = "registerDevice"
	OpSetPermission    = "setPermission"
	OpSetDeviceActive  = "setDeviceActive"
	OpStoreData        = "storeData"
	OpCreateTrigger    = "createTrigger"
	OpSetTriggerActive = "setTriggerActive"
	OpCreateGroup      = "createGroup"
	OpAddDevice        = "addDevice"
	OpCreateAlert      = "createAlert"
	OpResolveAlert     = "resolveAlert"
)

// Call is one mutating ledger operation with its arguments. Calls are
// encoded into the journal and re-applied on replay, so apply must depend
// only on the ledger, the Tx and the call's own fields.
type Call interface {
	// Op returns the journal operation name.
	Op() string

	apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error)
}

// RegisterDevice registers the caller as a device.
type RegisterDevice struct {
	Name       string `cbor:"name" json:"name"`
	DeviceType string `cbor:"device_type" json:"device_type"`
}

func (RegisterDevice) Op() string { return OpRegisterDevice }

func (c RegisterDevice) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	d, err := l.RegisterDevice(tx, c.Name, c.DeviceType)
	if err != nil {
		return nil, nil, err
	}
	return d, []Event{{Type: EventDeviceRegistered, Device: d.ID, Data: d}}, nil
}

// SetPermission grants an operator capabilities on a device.
type SetPermission struct {
	Device    ledger.Principal `cbor:"device" json:"device"`
	Operator  ledger.Principal `cbor:"operator" json:"operator"`
	CanWrite  bool             `cbor:"can_write" json:"can_write"`
	CanManage bool             `cbor:"can_manage" json:"can_manage"`
}

func (SetPermission) Op() string { return OpSetPermission }

func (c SetPermission) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	g, err := l.SetPermission(tx, c.Device, c.Operator, c.CanWrite, c.CanManage)
	if err != nil {
		return nil, nil, err
	}
	return g, []Event{{Type: EventPermissionChanged, Device: g.Device, Data: g}}, nil
}

// SetDeviceActive changes a device's active flag.
type SetDeviceActive struct {
	Device ledger.Principal `cbor:"device" json:"device"`
	Active bool             `cbor:"active" json:"active"`
}

func (SetDeviceActive) Op() string { return OpSetDeviceActive }

func (c SetDeviceActive) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	d, err := l.SetDeviceActive(tx, c.Device, c.Active)
	if err != nil {
		return nil, nil, err
	}
	return d, []Event{{Type: EventDeviceStatus, Device: d.ID, Data: d}}, nil
}

// StoreData records a reading.
type StoreData struct {
	Device   ledger.Principal `cbor:"device" json:"device"`
	DataType string           `cbor:"data_type" json:"data_type"`
	Value    string           `cbor:"value" json:"value"`
}

func (StoreData) Op() string { return OpStoreData }

func (c StoreData) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	res, err := l.StoreData(tx, c.Device, c.DataType, c.Value)
	if err != nil {
		return nil, nil, err
	}
	events := make([]Event, 0, 1+len(res.Firings))
	events = append(events, Event{Type: EventReadingStored, Device: c.Device, Data: res})
	for _, f := range res.Firings {
		events = append(events, Event{Type: EventTriggerFired, Device: c.Device, Data: f})
	}
	return res, events, nil
}

// CreateTrigger installs a threshold rule.
type CreateTrigger struct {
	Device    ledger.Principal `cbor:"device" json:"device"`
	TriggerID uint64           `cbor:"trigger_id" json:"trigger_id"`
	DataType  string           `cbor:"data_type" json:"data_type"`
	Condition ledger.Condition `cbor:"condition" json:"condition"`
	Threshold int64            `cbor:"threshold" json:"threshold"`
	Action    string           `cbor:"action" json:"action"`
}

func (CreateTrigger) Op() string { return OpCreateTrigger }

func (c CreateTrigger) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	t, err := l.CreateTrigger(tx, c.Device, c.TriggerID, c.DataType, c.Condition, c.Threshold, c.Action)
	if err != nil {
		return nil, nil, err
	}
	return t, []Event{{Type: EventTriggerUpdated, Device: t.Device, Data: t}}, nil
}

// SetTriggerActive enables or disables a trigger.
type SetTriggerActive struct {
	Device    ledger.Principal `cbor:"device" json:"device"`
	TriggerID uint64           `cbor:"trigger_id" json:"trigger_id"`
	Active    bool             `cbor:"active" json:"active"`
}

func (SetTriggerActive) Op() string { return OpSetTriggerActive }

func (c SetTriggerActive) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	t, err := l.SetTriggerActive(tx, c.Device, c.TriggerID, c.Active)
	if err != nil {
		return nil, nil, err
	}
	return t, []Event{{Type: EventTriggerUpdated, Device: t.Device, Data: t}}, nil
}

// CreateGroup creates a device group.
type CreateGroup struct {
	GroupID        string `cbor:"group_id" json:"group_id"`
	Description    string `cbor:"description" json:"description"`
	AlertThreshold uint64 `cbor:"alert_threshold" json:"alert_threshold"`
}

func (CreateGroup) Op() string { return OpCreateGroup }

func (c CreateGroup) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	g, err := l.CreateGroup(tx, c.GroupID, c.Description, c.AlertThreshold)
	if err != nil {
		return nil, nil, err
	}
	return g, []Event{{Type: EventGroupUpdated, GroupID: g.ID, Data: g}}, nil
}

// AddDevice adds a device to a group.
type AddDevice struct {
	GroupID string           `cbor:"group_id" json:"group_id"`
	Device  ledger.Principal `cbor:"device" json:"device"`
}

func (AddDevice) Op() string { return OpAddDevice }

func (c AddDevice) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	g, err := l.AddDevice(tx, c.GroupID, c.Device)
	if err != nil {
		return nil, nil, err
	}
	return g, []Event{{Type: EventGroupUpdated, GroupID: g.ID, Device: c.Device, Data: g}}, nil
}

// CreateAlert opens a group alert.
type CreateAlert struct {
	GroupID   string `cbor:"group_id" json:"group_id"`
	AlertID   uint64 `cbor:"alert_id" json:"alert_id"`
	AlertType string `cbor:"alert_type" json:"alert_type"`
	Severity  uint64 `cbor:"severity" json:"severity"`
	Message   string `cbor:"message" json:"message"`
}

func (CreateAlert) Op() string { return OpCreateAlert }

func (c CreateAlert) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	res, err := l.CreateAlert(tx, c.GroupID, c.AlertID, c.AlertType, c.Severity, c.Message)
	if err != nil {
		return nil, nil, err
	}
	events := []Event{{Type: EventAlertCreated, GroupID: c.GroupID, Data: res}}
	if res.Critical {
		events = append(events, Event{Type: EventGroupCritical, GroupID: c.GroupID, Data: res})
	}
	return res, events, nil
}

// ResolveAlert resolves a group alert.
type ResolveAlert struct {
	GroupID string `cbor:"group_id" json:"group_id"`
	AlertID uint64 `cbor:"alert_id" json:"alert_id"`
}

func (ResolveAlert) Op() string { return OpResolveAlert }

func (c ResolveAlert) apply(l *ledger.Ledger, tx ledger.Tx) (any, []Event, error) {
	res, err := l.ResolveAlert(tx, c.GroupID, c.AlertID)
	if err != nil {
		return nil, nil, err
	}
	return res, []Event{{Type: EventAlertResolved, GroupID: c.GroupID, Data: res}}, nil
}

// decoders rebuild a Call from its journal form.
var decoders = map[string]func([]byte) (Call, error){
	OpRegisterDevice:   decodeCall[RegisterDevice],
	OpSetPermission:    decodeCall[SetPermission],
	OpSetDeviceActive:  decodeCall[SetDeviceActive],
	OpStoreData:        decodeCall[StoreData],
	OpCreateTrigger:    decodeCall[CreateTrigger],
	OpSetTriggerActive: decodeCall[SetTriggerActive],
	OpCreateGroup:      decodeCall[CreateGroup],
	OpAddDevice:        decodeCall[AddDevice],
	OpCreateAlert:      decodeCall[CreateAlert],
	OpResolveAlert:     decodeCall[ResolveAlert],
}

func decodeCall[C Call](args []byte) (Call, error) {
	var c C
	if err := journal.DecodeArgs(args, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// DecodeCall rebuilds the Call stored in a journal entry.
func DecodeCall(op string, args []byte) (Call, error) {
	dec, ok := decoders[op]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOp, op)
	}
	c, err := dec(args)
	if err != nil {
		return nil, fmt.Errorf("decoding %s arguments: %w", op, err)
	}
	return c, nil
}
