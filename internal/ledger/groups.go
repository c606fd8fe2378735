package ledger

// CreateGroup creates an empty device group. Any caller may create a group.
func (l *Ledger) CreateGroup(tx Tx, groupID, description string, alertThreshold uint64) (DeviceGroup, error) {
	if err := ValidatePrincipal(tx.Caller); err != nil {
		return DeviceGroup{}, err
	}
	if err := validateFields(
		field{"group id", groupID, MaxGroupIDLength, true},
		field{"description", description, MaxDescriptionLength, false},
	); err != nil {
		return DeviceGroup{}, err
	}
	if _, exists := l.groups[groupID]; exists {
		return DeviceGroup{}, ErrGroupAlreadyExists
	}

	g := &group{
		id:             groupID,
		description:    description,
		alertThreshold: alertThreshold,
		members:        make(map[Principal]struct{}),
	}
	l.groups[groupID] = g
	return g.snapshot(), nil
}

// AddDevice adds a registered device to a group. Adding an existing member
// is a no-op.
func (l *Ledger) AddDevice(tx Tx, groupID string, device Principal) (DeviceGroup, error) {
	g, ok := l.groups[groupID]
	if !ok {
		return DeviceGroup{}, ErrGroupNotFound
	}
	if _, ok := l.devices[device]; !ok {
		return DeviceGroup{}, ErrDeviceNotFound
	}

	g.members[device] = struct{}{}
	return g.snapshot(), nil
}

// GetGroup looks up a group. Members are returned in sorted order.
func (l *Ledger) GetGroup(groupID string) (DeviceGroup, bool) {
	g, ok := l.groups[groupID]
	if !ok {
		return DeviceGroup{}, false
	}
	return g.snapshot(), true
}
