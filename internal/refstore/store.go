package refstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/gitcore/internal/objid"
)

// Store is the reference directory rooted at dir (a gitdir: HEAD
// lives at dir/HEAD, everything else under dir/refs/...). Updates go
// through a create-exclusive lock file and an atomic rename, the same
// discipline objstore's DiskBackend.Put uses for loose objects.
type Store struct {
	dir string
}

// New returns a Store rooted at dir.
func New(dir string) *Store {
	return &Store{dir: dir}
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, filepath.FromSlash(name))
}

// readRaw returns the trimmed content of the reference file, or
// ErrNotFound.
func (s *Store) readRaw(name string) (string, error) {
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return "", ErrNotFound
		}
		return "", err
	}
	return strings.TrimSpace(string(data)), nil
}

// ReadRef returns the immediate content of name: either a direct
// object id, or, for a symbolic reference, the "ref: " target it
// points to unresolved.
func (s *Store) ReadRef(name string) (target string, symbolic bool, err error) {
	if err := validateName(name); err != nil {
		return "", false, err
	}
	raw, err := s.readRaw(name)
	if err != nil {
		return "", false, err
	}
	if strings.HasPrefix(raw, "ref: ") {
		return strings.TrimSpace(strings.TrimPrefix(raw, "ref: ")), true, nil
	}
	return raw, false, nil
}

// Resolve follows name through any chain of symbolic references down
// to a direct object id, bounded by maxSymrefDepth.
func (s *Store) Resolve(name string) (objid.ID, error) {
	cur := name
	for depth := 0; depth < maxSymrefDepth; depth++ {
		target, symbolic, err := s.ReadRef(cur)
		if err != nil {
			return objid.Nil, err
		}
		if !symbolic {
			return objid.HexToID(target)
		}
		cur = target
	}
	return objid.Nil, errorf("Store.Resolve", "%w: %q", ErrSymrefCycle, name)
}

// lock creates name's ".lock" sibling with O_EXCL, failing with
// ErrLocked if another writer already holds it.
func (s *Store) lock(name string) (*os.File, string, error) {
	path := s.path(name)
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return nil, "", err
	}
	lockPath := path + ".lock"
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0666)
	if err != nil {
		if os.IsExist(err) {
			return nil, "", errorf("Store.lock", "%w: %q", ErrLocked, name)
		}
		return nil, "", err
	}
	return f, lockPath, nil
}

// UpdateRef writes newID as the direct value of name. When
// hasExpected is true, the update is a compare-and-swap against
// expectedID (objid.Nil meaning "must not currently exist"); the
// caller gets ErrMismatch if the precondition does not hold.
func (s *Store) UpdateRef(name string, newID objid.ID, expectedID objid.ID, hasExpected bool) error {
	if err := validateName(name); err != nil {
		return err
	}
	lockFile, lockPath, err := s.lock(name)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			lockFile.Close()
			os.Remove(lockPath)
		}
	}()

	if hasExpected {
		current, currentErr := s.readRaw(name)
		switch {
		case currentErr == ErrNotFound:
			if !expectedID.IsNil() {
				return errorf("Store.UpdateRef", "%w: %q absent, expected %s", ErrMismatch, name, expectedID)
			}
		case currentErr != nil:
			return currentErr
		default:
			if strings.HasPrefix(current, "ref: ") {
				return errorf("Store.UpdateRef", "%q is a symbolic reference, cannot compare-and-swap directly", name)
			}
			currentID, err := objid.HexToID(current)
			if err != nil {
				return errorf("Store.UpdateRef", "%q: %v", name, err)
			}
			if currentID != expectedID {
				return errorf("Store.UpdateRef", "%w: %q is %s, expected %s", ErrMismatch, name, currentID, expectedID)
			}
		}
	}

	if _, err := fmt.Fprintf(lockFile, "%s\n", newID.Hex()); err != nil {
		return err
	}
	if err := lockFile.Close(); err != nil {
		return err
	}
	if err := syscall.Rename(lockPath, s.path(name)); err != nil {
		return err
	}
	committed = true
	return nil
}

// CreateSymref writes name as a symbolic reference to target, through
// the same lock-and-rename discipline as UpdateRef.
func (s *Store) CreateSymref(name, target string) error {
	if err := validateName(name); err != nil {
		return err
	}
	if err := validateName(target); err != nil {
		return err
	}
	lockFile, lockPath, err := s.lock(name)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			lockFile.Close()
			os.Remove(lockPath)
		}
	}()
	if _, err := fmt.Fprintf(lockFile, "ref: %s\n", target); err != nil {
		return err
	}
	if err := lockFile.Close(); err != nil {
		return err
	}
	if err := syscall.Rename(lockPath, s.path(name)); err != nil {
		return err
	}
	committed = true
	return nil
}

// ForEachRef walks every reference under refs/, in sorted name order,
// calling fn with the name and its fully-resolved object id. Dangling
// references (a symref chain or direct id that does not resolve) are
// skipped with a warning rather than reported, matching the read-only
// nature of this enumeration.
func (s *Store) ForEachRef(fn func(name string, id objid.ID) error) error {
	root := filepath.Join(s.dir, "refs")
	var names []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if info.IsDir() || strings.HasSuffix(path, ".lock") {
			return nil
		}
		rel, err := filepath.Rel(s.dir, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, name := range names {
		id, err := s.Resolve(name)
		if err != nil {
			log.WithField("ref", name).WithError(err).Warning("Skipping ref that failed to resolve")
			continue
		}
		if id.IsNil() {
			log.WithField("ref", name).Warning("Skipping ref holding the null id")
			continue
		}
		if err := fn(name, id); err != nil {
			return err
		}
	}
	return nil
}
