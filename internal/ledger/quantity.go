package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// Condition is the comparison a trigger applies between a reading and its threshold.
type Condition string

const (
	// ConditionAbove matches when the reading is strictly greater than the threshold.
	ConditionAbove Condition = "ABOVE"
	// ConditionBelow matches when the reading is strictly less than the threshold.
	ConditionBelow Condition = "BELOW"
	// ConditionEqual matches when the reading equals the threshold exactly.
	ConditionEqual Condition = "EQUAL"
)

// ParseCondition converts a condition name to a Condition. Matching is
// case-insensitive; anything outside the closed set is ErrInvalidInput.
func ParseCondition(s string) (Condition, error) {
	switch c := Condition(strings.ToUpper(strings.TrimSpace(s))); c {
	case ConditionAbove, ConditionBelow, ConditionEqual:
		return c, nil
	default:
		return "", fmt.Errorf("%w: unknown condition %q", ErrInvalidInput, s)
	}
}

// IsValid reports whether c is one of the defined conditions.
func (c Condition) IsValid() bool {
	return c == ConditionAbove || c == ConditionBelow || c == ConditionEqual
}

// quantity is a parsed decimal reading.
//
// whole is the integer part truncated toward zero and is what aggregation
// accumulates. fractional records whether any non-zero digit follows the
// decimal point; together with negative it lets comparisons against integer
// thresholds stay exact without floating point.
type quantity struct {
	whole      int64
	negative   bool
	fractional bool
}

// parseQuantity parses text of the form -?[0-9]+(\.[0-9]+)?.
func parseQuantity(s string) (quantity, error) {
	body := s
	negative := false
	if strings.HasPrefix(body, "-") {
		negative = true
		body = body[1:]
	}

	intPart, fracPart, hasPoint := strings.Cut(body, ".")
	if intPart == "" || !allDigits(intPart) || (hasPoint && (fracPart == "" || !allDigits(fracPart))) {
		return quantity{}, fmt.Errorf("%w: %q", ErrInvalidNumericValue, s)
	}

	// Parsing the signed form keeps math.MinInt64 representable.
	signed := intPart
	if negative {
		signed = "-" + intPart
	}
	whole, err := strconv.ParseInt(signed, 10, 64)
	if err != nil {
		return quantity{}, fmt.Errorf("%w: %q out of range", ErrInvalidNumericValue, s)
	}

	return quantity{
		whole:      whole,
		negative:   negative,
		fractional: strings.Trim(fracPart, "0") != "",
	}, nil
}

// compare returns -1, 0 or +1 as q is less than, equal to, or greater than n.
func (q quantity) compare(n int64) int {
	switch {
	case q.whole < n:
		return -1
	case q.whole > n:
		return 1
	case !q.fractional:
		return 0
	case q.negative:
		// -30.5 truncates to -30 but lies below it.
		return -1
	default:
		return 1
	}
}

// matches evaluates the condition for a reading against a threshold.
func (c Condition) matches(q quantity, threshold int64) bool {
	cmp := q.compare(threshold)
	switch c {
	case ConditionAbove:
		return cmp > 0
	case ConditionBelow:
		return cmp < 0
	case ConditionEqual:
		return cmp == 0
	default:
		return false
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
