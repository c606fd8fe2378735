package node

import "errors"

// Domain errors for the node package.
var (
	// ErrNotCommitted is returned when the ledger accepted a call but the
	// journal append failed. The call had no effect.
	ErrNotCommitted = errors.New("node: transaction not committed")

	// ErrDegraded is returned for every mutation and read after the node
	// failed to restore its state from the journal.
	ErrDegraded = errors.New("node: degraded, restart required")

	// ErrReplayDiverged is returned by Open when a journalled call is rejected
	// on replay.
	ErrReplayDiverged = errors.New("node: journal replay diverged")

	// ErrUnknownOp is returned when a journal entry names an unknown operation.
	ErrUnknownOp = errors.New("node: unknown operation")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("node: closed")
)
