package resolve

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an expression names nothing reachable.
var ErrNotFound = errors.New("revision not found")

// ErrAmbiguous is returned when an abbreviated hex prefix matches more
// than one object.
var ErrAmbiguous = errors.New("ambiguous revision")

// ErrBadSyntax is returned for a malformed expression.
var ErrBadSyntax = errors.New("bad revision syntax")

// ErrUndefined is returned by Describe when no reference's history
// reaches the target object.
var ErrUndefined = errors.New("revision has no name")

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/gitcore/internal/resolve."+typeMethod+": "+format, a...)
}
