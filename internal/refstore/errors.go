package refstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a reference does not exist.
var ErrNotFound = errors.New("reference not found")

// ErrLocked is returned by UpdateRef/CreateSymref when another writer
// already holds the lock file for the target reference.
var ErrLocked = errors.New("reference locked")

// ErrMismatch is returned by UpdateRef when the current value does
// not match the caller's expected value (compare-and-swap failure).
var ErrMismatch = errors.New("reference value mismatch")

// ErrSymrefCycle is returned when resolving a symbolic reference
// chain exceeds maxSymrefDepth.
var ErrSymrefCycle = errors.New("symbolic reference cycle")

// ErrInvalidName is returned for a reference name outside the allowed
// namespace: references must stay within refs/, plus the single
// top-level exception HEAD.
var ErrInvalidName = errors.New("invalid reference name")

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/gitcore/internal/refstore."+typeMethod+": "+format, a...)
}
