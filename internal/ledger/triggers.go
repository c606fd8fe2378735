package ledger

import "fmt"

// CreateTrigger installs an active threshold rule on a device. The caller
// must be the device or hold CapManage on it.
func (l *Ledger) CreateTrigger(tx Tx, device Principal, id uint64, dataType string, cond Condition, threshold int64, action string) (Trigger, error) {
	if _, ok := l.devices[device]; !ok {
		return Trigger{}, ErrDeviceNotFound
	}
	if !l.Authorize(device, tx.Caller, CapManage) {
		return Trigger{}, fmt.Errorf("%w: %s lacks %s on %s", ErrNotAuthorized, tx.Caller, CapManage, device)
	}
	if !cond.IsValid() {
		return Trigger{}, fmt.Errorf("%w: unknown condition %q", ErrInvalidInput, string(cond))
	}
	if err := validateFields(
		field{"data type", dataType, MaxDataTypeLength, true},
		field{"action", action, MaxActionLength, true},
	); err != nil {
		return Trigger{}, err
	}
	if _, exists := l.triggers[device][id]; exists {
		return Trigger{}, ErrTriggerAlreadyExists
	}

	t := &Trigger{
		Device:    device,
		ID:        id,
		DataType:  dataType,
		Condition: cond,
		Threshold: threshold,
		Action:    action,
		Active:    true,
	}
	byID, ok := l.triggers[device]
	if !ok {
		byID = make(map[uint64]*Trigger)
		l.triggers[device] = byID
	}
	byID[id] = t
	return *t, nil
}

// SetTriggerActive enables or disables a trigger. Disabled triggers are
// skipped during evaluation but keep their ID.
func (l *Ledger) SetTriggerActive(tx Tx, device Principal, id uint64, active bool) (Trigger, error) {
	if _, ok := l.devices[device]; !ok {
		return Trigger{}, ErrDeviceNotFound
	}
	if !l.Authorize(device, tx.Caller, CapManage) {
		return Trigger{}, fmt.Errorf("%w: %s lacks %s on %s", ErrNotAuthorized, tx.Caller, CapManage, device)
	}
	t, ok := l.triggers[device][id]
	if !ok {
		return Trigger{}, ErrTriggerNotFound
	}

	t.Active = active
	return *t, nil
}

// GetTrigger looks up a trigger.
func (l *Ledger) GetTrigger(device Principal, id uint64) (Trigger, bool) {
	t, ok := l.triggers[device][id]
	if !ok {
		return Trigger{}, false
	}
	return *t, true
}
