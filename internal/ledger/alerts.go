package ledger

// CreateAlert opens an alert on a group. Any caller may open an alert.
//
// The result carries the group's open-alert count after the alert opened and
// whether that count has reached the group's alert threshold.
func (l *Ledger) CreateAlert(tx Tx, groupID string, alertID uint64, alertType string, severity uint64, message string) (AlertResult, error) {
	g, ok := l.groups[groupID]
	if !ok {
		return AlertResult{}, ErrGroupNotFound
	}
	if err := validateFields(
		field{"alert type", alertType, MaxAlertTypeLength, true},
		field{"message", message, MaxMessageLength, false},
	); err != nil {
		return AlertResult{}, err
	}
	key := alertKey{groupID: groupID, alertID: alertID}
	if _, exists := l.alerts[key]; exists {
		return AlertResult{}, ErrAlertAlreadyExists
	}

	a := &GroupAlert{
		GroupID:   groupID,
		ID:        alertID,
		AlertType: alertType,
		Severity:  severity,
		Message:   message,
	}
	l.alerts[key] = a
	g.openAlerts++
	return AlertResult{Alert: *a, OpenAlerts: g.openAlerts, Critical: g.critical()}, nil
}

// ResolveAlert moves an open alert to resolved. Resolution is one-way; a
// second resolve fails with ErrAlertAlreadyResolved.
func (l *Ledger) ResolveAlert(tx Tx, groupID string, alertID uint64) (AlertResult, error) {
	a, ok := l.alerts[alertKey{groupID: groupID, alertID: alertID}]
	if !ok {
		return AlertResult{}, ErrAlertNotFound
	}
	if a.Resolved {
		return AlertResult{}, ErrAlertAlreadyResolved
	}

	a.Resolved = true
	g := l.groups[groupID]
	g.openAlerts--
	return AlertResult{Alert: *a, OpenAlerts: g.openAlerts, Critical: g.critical()}, nil
}

// GetAlert looks up an alert.
func (l *Ledger) GetAlert(groupID string, alertID uint64) (GroupAlert, bool) {
	a, ok := l.alerts[alertKey{groupID: groupID, alertID: alertID}]
	if !ok {
		return GroupAlert{}, false
	}
	return *a, true
}
