package ledger

import "fmt"

// RegisterDevice registers the caller as a device. The caller's identity
// becomes the device key, and the device starts active.
//
// Returns ErrDeviceAlreadyRegistered if the caller already has a record.
func (l *Ledger) RegisterDevice(tx Tx, name, deviceType string) (Device, error) {
	if err := ValidatePrincipal(tx.Caller); err != nil {
		return Device{}, err
	}
	if err := validateFields(
		field{"name", name, MaxNameLength, true},
		field{"device type", deviceType, MaxDeviceTypeLength, true},
	); err != nil {
		return Device{}, err
	}
	if _, exists := l.devices[tx.Caller]; exists {
		return Device{}, ErrDeviceAlreadyRegistered
	}

	d := &Device{
		ID:         tx.Caller,
		Name:       name,
		DeviceType: deviceType,
		Active:     true,
	}
	l.devices[tx.Caller] = d
	return *d, nil
}

// SetDeviceActive activates or deactivates a device. Only the device itself
// may change its status. Inactive devices reject telemetry writes.
func (l *Ledger) SetDeviceActive(tx Tx, device Principal, active bool) (Device, error) {
	d, ok := l.devices[device]
	if !ok {
		return Device{}, ErrDeviceNotFound
	}
	if tx.Caller != device {
		return Device{}, fmt.Errorf("%w: only the device may change its status", ErrNotAuthorized)
	}

	d.Active = active
	return *d, nil
}

// GetDevice looks up a device.
func (l *Ledger) GetDevice(device Principal) (Device, bool) {
	d, ok := l.devices[device]
	if !ok {
		return Device{}, false
	}
	return *d, true
}
