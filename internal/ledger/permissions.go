package ledger

// SetPermission grants or overwrites an operator's capabilities on a device.
// Only the device itself may grant; the grant for (device, operator) is
// replaced in place.
func (l *Ledger) SetPermission(tx Tx, device, operator Principal, canWrite, canManage bool) (PermissionGrant, error) {
	if err := ValidatePrincipal(operator); err != nil {
		return PermissionGrant{}, err
	}
	if _, ok := l.devices[device]; !ok {
		return PermissionGrant{}, ErrDeviceNotFound
	}
	if tx.Caller != device {
		return PermissionGrant{}, ErrNotAuthorized
	}

	grant := PermissionGrant{
		Device:    device,
		Operator:  operator,
		CanWrite:  canWrite,
		CanManage: canManage,
	}
	l.permissions[permissionKey{device: device, operator: operator}] = grant
	return grant, nil
}

// GetPermission looks up the grant an operator holds on a device.
func (l *Ledger) GetPermission(device, operator Principal) (PermissionGrant, bool) {
	grant, ok := l.permissions[permissionKey{device: device, operator: operator}]
	return grant, ok
}
