package config

import "fmt"

// ErrNoSection is returned when a lookup or removal names a section
// that is not present in the file.
var ErrNoSection = fmt.Errorf("section not found")

// ErrNoKey is returned when a lookup names a key absent from its section.
var ErrNoKey = fmt.Errorf("key not found")

// ErrAmbiguousKey is returned by Set/Unset when more than one value
// matches (section, subsection, key[, valueRegex]) and the caller did
// not ask for ReplaceAll.
var ErrAmbiguousKey = fmt.Errorf("multiple values match, and replace-all was not requested")

// ErrBadValueRegex is returned when WithValueRegex is given a pattern
// that does not compile.
var ErrBadValueRegex = fmt.Errorf("invalid value regex")

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/gitcore/internal/config."+typeMethod+": "+format, a...)
}
