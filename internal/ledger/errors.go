package ledger

import "errors"

// Code is the stable numeric identifier surfaced to callers for a rejected
// transaction. The numbering is part of the external interface and must not
// change between releases.
type Code uint32

// Error is a ledger rejection carrying its stable Code.
type Error struct {
	Code    Code
	message string
}

func (e *Error) Error() string { return e.message }

func newError(code Code, message string) *Error {
	return &Error{Code: code, message: message}
}

// Domain errors for the ledger package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, ledger.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrNotAuthorized is returned when the caller lacks the required capability.
	ErrNotAuthorized = newError(100, "ledger: not authorized")

	// ErrDeviceNotFound is returned when a referenced device is not registered.
	ErrDeviceNotFound = newError(101, "ledger: device not found")

	// ErrDeviceAlreadyRegistered is returned when an identity registers twice.
	ErrDeviceAlreadyRegistered = newError(102, "ledger: device already registered")

	// ErrDeviceInactive is returned when writing telemetry for a deactivated device.
	ErrDeviceInactive = newError(103, "ledger: device inactive")

	// ErrInvalidNumericValue is returned when a telemetry value cannot be parsed.
	ErrInvalidNumericValue = newError(104, "ledger: invalid numeric value")

	// ErrTriggerAlreadyExists is returned when a trigger ID is already taken for the device.
	ErrTriggerAlreadyExists = newError(105, "ledger: trigger already exists")

	// ErrTriggerNotFound is returned when a referenced trigger does not exist.
	ErrTriggerNotFound = newError(106, "ledger: trigger not found")

	// ErrGroupNotFound is returned when a referenced group does not exist.
	ErrGroupNotFound = newError(107, "ledger: group not found")

	// ErrGroupAlreadyExists is returned when a group ID is already taken.
	ErrGroupAlreadyExists = newError(108, "ledger: group already exists")

	// ErrAlertNotFound is returned when a referenced group alert does not exist.
	ErrAlertNotFound = newError(109, "ledger: alert not found")

	// ErrAlertAlreadyExists is returned when an alert ID is already taken for the group.
	ErrAlertAlreadyExists = newError(110, "ledger: alert already exists")

	// ErrAlertAlreadyResolved is returned when resolving an alert a second time.
	ErrAlertAlreadyResolved = newError(111, "ledger: alert already resolved")

	// ErrInvalidInput is returned when an argument is empty, too long, or not ASCII.
	ErrInvalidInput = newError(112, "ledger: invalid input")

	// ErrTimestampConflict is returned when a reading's timestamp does not advance
	// past the device's previous reading.
	ErrTimestampConflict = newError(113, "ledger: timestamp conflict")

	// ErrArithmeticOverflow is returned when an aggregate would leave the int64 domain.
	ErrArithmeticOverflow = newError(114, "ledger: arithmetic overflow")
)

// CodeOf returns the stable code of a ledger rejection anywhere in err's chain.
func CodeOf(err error) (Code, bool) {
	var le *Error
	if errors.As(err, &le) {
		return le.Code, true
	}
	return 0, false
}
