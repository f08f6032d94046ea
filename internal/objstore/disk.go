package objstore

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/pkg/errors"
)

// DiskBackend is the loose-object directory: <objdir>/xy/<38-hex>,
// each file the zlib compression of "<kind> <length>\0<payload>".
type DiskBackend struct {
	dir string
}

// NewDiskBackend returns a backend rooted at dir.
func NewDiskBackend(dir string) *DiskBackend {
	return &DiskBackend{dir: dir}
}

func (d *DiskBackend) pathFor(id objid.ID) string {
	hex := id.Hex()
	return filepath.Join(d.dir, hex[:2], hex[2:])
}

// Get reads and inflates the loose file for id, returning its tag and
// payload as recorded in the zlib stream's own header.
func (d *DiskBackend) Get(id objid.ID) (RawObject, error) {
	f, err := os.Open(d.pathFor(id))
	if err != nil {
		if os.IsNotExist(err) {
			return RawObject{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return RawObject{}, err
	}
	defer f.Close()

	zr, err := zlib.NewReader(f)
	if err != nil {
		return RawObject{}, errors.Wrapf(err, "inflating %s", id)
	}
	defer zr.Close()
	raw, err := io.ReadAll(zr)
	if err != nil {
		return RawObject{}, errors.Wrapf(err, "reading inflated %s", id)
	}
	return parseLooseRecord(id, raw)
}

// parseLooseRecord splits "<kind> <length>\0<payload>" and verifies
// the recorded length matches the payload actually present.
func parseLooseRecord(id objid.ID, raw []byte) (RawObject, error) {
	nul := bytes.IndexByte(raw, 0)
	if nul < 0 {
		return RawObject{}, fmt.Errorf("%s: %w: no NUL in loose object header", id, ErrCorrupt)
	}
	header := raw[:nul]
	payload := raw[nul+1:]
	sp := bytes.IndexByte(header, ' ')
	if sp < 0 {
		return RawObject{}, fmt.Errorf("%s: %w: malformed loose object header %q", id, ErrCorrupt, header)
	}
	kind := string(header[:sp])
	var length int
	if _, err := fmt.Sscanf(string(header[sp+1:]), "%d", &length); err != nil {
		return RawObject{}, fmt.Errorf("%s: %w: non-numeric length in header %q", id, ErrCorrupt, header)
	}
	if length != len(payload) {
		return RawObject{}, fmt.Errorf("%s: %w: header length %d, payload length %d", id, ErrCorrupt, length, len(payload))
	}
	return RawObject{Kind: kind, Data: payload}, nil
}

// Has stats the loose file for id without reading or inflating it.
func (d *DiskBackend) Has(id objid.ID) (bool, error) {
	_, err := os.Stat(d.pathFor(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// Put computes id, writes the compressed record to a temporary file
// alongside the destination, then renames into place. Writing an
// existing id is a no-op (idempotent with the content-addressed
// identity round-trip property).
func (d *DiskBackend) Put(kind string, data []byte) (objid.ID, error) {
	id := objid.Hash(kind, data)
	if ok, err := d.Has(id); err != nil {
		return objid.Nil, err
	} else if ok {
		return id, nil
	}

	path := d.pathFor(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0777); err != nil {
		return objid.Nil, err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-obj-*")
	if err != nil {
		return objid.Nil, err
	}
	tmpName := tmp.Name()
	zw := zlib.NewWriter(tmp)
	if _, err := fmt.Fprintf(zw, "%s %d\x00", kind, len(data)); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return objid.Nil, err
	}
	if _, err := zw.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return objid.Nil, err
	}
	if err := zw.Close(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return objid.Nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return objid.Nil, err
	}
	if err := syscall.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return objid.Nil, err
	}
	return id, nil
}

// ForEach yields every 40-hex entry across every two-letter
// subdirectory, in directory-walk order.
func (d *DiskBackend) ForEach(fn func(objid.ID) error) error {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, sub := range entries {
		if !sub.IsDir() || len(sub.Name()) != 2 {
			continue
		}
		files, err := os.ReadDir(filepath.Join(d.dir, sub.Name()))
		if err != nil {
			return err
		}
		for _, f := range files {
			if f.IsDir() || len(f.Name()) != objid.Size*2-2 {
				continue
			}
			id, err := objid.HexToID(sub.Name() + f.Name())
			if err != nil {
				continue
			}
			if err := fn(id); err != nil {
				return err
			}
		}
	}
	return nil
}
