package objgraph

import (
	"errors"
	"fmt"
)

// ErrCycle is returned by TopologicalOrder when the input commit list
// is not well-formed: a non-empty residual after the algorithm
// terminates indicates a cycle, forbidden for well-formed commit
// graphs.
var ErrCycle = errors.New("cycle among input commits")

// ErrReachabilityDisabled is returned by MarkReachable when no flag
// bit has been reserved for it.
var ErrReachabilityDisabled = errors.New("reference tracking not enabled")

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/gitcore/internal/objgraph."+typeMethod+": "+format, a...)
}
