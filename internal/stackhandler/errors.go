package stackhandler

import (
	"errors"
	"fmt"
)

var (
	// ErrRolledBack means a placement failed and every order it created was
	// removed again. Safe to retry.
	ErrRolledBack          = errors.New("placement rolled back")
	ErrUnexpectedRollState = errors.New("unexpected roll state")
	ErrUnknownOperation    = errors.New("unknown stack handler operation")
)

// RollbackFailedError means orphaned children could not be removed. The
// parent stays locked on its stack as a sentinel until an operator acts.
type RollbackFailedError struct {
	Stack    string
	ParentID uint64
	Orphans  []uint64
	Cause    error
}

func (e *RollbackFailedError) Error() string {
	return fmt.Sprintf("rollback failed for %s order %d, orphaned children %v: %v", e.Stack, e.ParentID, e.Orphans, e.Cause)
}

func (e *RollbackFailedError) Unwrap() error { return e.Cause }
