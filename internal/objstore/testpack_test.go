package objstore

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"sort"

	"github.com/nicolagi/gitcore/internal/objid"
)

// buildTestPack writes a minimal valid pack+index pair containing the
// given non-delta objects, for exercising Pack parsing without a real
// packer (pack creation is out of core scope; this is test-only
// fixture construction).
func buildTestPack(t testingT, dir string, objects []RawObject) {
	t.Helper()

	type built struct {
		id     objid.ID
		offset uint32
	}
	var buf bytes.Buffer
	buf.WriteString("PACK")
	var hdr [8]byte
	binary.BigEndian.PutUint32(hdr[0:4], 2)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(objects)))
	buf.Write(hdr[:])

	var entries []built
	kindType := map[string]uint8{"commit": 1, "tree": 2, "blob": 3, "tag": 4}
	for _, obj := range objects {
		offset := uint32(buf.Len())
		id := objid.Hash(obj.Kind, obj.Data)
		typ := kindType[obj.Kind]
		writeTypeAndSize(&buf, typ, uint64(len(obj.Data)))
		zw := zlib.NewWriter(&buf)
		zw.Write(obj.Data)
		zw.Close()
		entries = append(entries, built{id: id, offset: offset})
	}
	buf.Write(make([]byte, objid.Size)) // fake pack checksum

	sort.Slice(entries, func(i, j int) bool { return entries[i].id.Less(entries[j].id) })

	var idxBuf bytes.Buffer
	var fanout [256]uint32
	for _, e := range entries {
		for j := int(e.id[0]); j < 256; j++ {
			fanout[j]++
		}
	}
	for _, f := range fanout {
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], f)
		idxBuf.Write(b[:])
	}
	for _, e := range entries {
		idxBuf.Write(e.id[:])
		var b [4]byte
		binary.BigEndian.PutUint32(b[:], e.offset)
		idxBuf.Write(b[:])
	}
	idxBuf.Write(make([]byte, objid.Size)) // pack checksum (unverified by tests)
	idxBuf.Write(make([]byte, objid.Size)) // index checksum

	if err := os.MkdirAll(filepath.Join(dir, "pack"), 0777); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pack", "test.pack"), buf.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "pack", "test.idx"), idxBuf.Bytes(), 0666); err != nil {
		t.Fatal(err)
	}
}

func writeTypeAndSize(buf *bytes.Buffer, typ uint8, size uint64) {
	b := byte(typ<<4) | byte(size&0x0f)
	size >>= 4
	for size != 0 {
		buf.WriteByte(b | 0x80)
		b = byte(size & 0x7f)
		size >>= 7
	}
	buf.WriteByte(b)
}

// testingT is the subset of *testing.T this helper needs, so it can
// live in a _test.go file without importing "testing" at package
// scope elsewhere.
type testingT interface {
	Helper()
	Fatal(args ...interface{})
}
