package ledger

import "fmt"

// Length limits for bounded string fields (bytes of printable ASCII).
const (
	MaxPrincipalLength   = 128
	MaxNameLength        = 50
	MaxDeviceTypeLength  = 20
	MaxDataTypeLength    = 20
	MaxValueLength       = 50
	MaxActionLength      = 50
	MaxGroupIDLength     = 50
	MaxDescriptionLength = 200
	MaxAlertTypeLength   = 50
	MaxMessageLength     = 200
)

// field describes one bounded string argument.
type field struct {
	name     string
	value    string
	max      int
	required bool
}

// validateFields checks every field and reports the first violation.
func validateFields(fields ...field) error {
	for _, f := range fields {
		if f.required && f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidInput, f.name)
		}
		if len(f.value) > f.max {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidInput, f.name, f.max)
		}
		if !isPrintableASCII(f.value) {
			return fmt.Errorf("%w: %s must be printable ASCII", ErrInvalidInput, f.name)
		}
	}
	return nil
}

// ValidatePrincipal checks that an identity is non-empty, bounded, and printable ASCII.
func ValidatePrincipal(p Principal) error {
	return validateFields(field{"principal", string(p), MaxPrincipalLength, true})
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
