package objstore

import "fmt"

func errorf(typeMethod, format string, a ...interface{}) error {
	return fmt.Errorf("github.com/nicolagi/gitcore/internal/objstore."+typeMethod+": "+format, a...)
}
