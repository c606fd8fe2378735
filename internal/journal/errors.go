package journal

import "errors"

// Domain errors for the journal package.
var (
	// ErrSequenceGap is returned when an appended entry does not directly
	// follow the current head, or when stored entries skip a sequence number.
	ErrSequenceGap = errors.New("journal: sequence gap")

	// ErrChainBroken is returned when a stored entry's hash or back-link does
	// not match its contents.
	ErrChainBroken = errors.New("journal: hash chain broken")

	// ErrEmptyCall is returned when appending a record with no caller or op.
	ErrEmptyCall = errors.New("journal: empty call")
)
