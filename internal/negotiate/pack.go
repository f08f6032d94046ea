package negotiate

import (
	"bufio"
	"compress/zlib"
	"crypto/sha1"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objstore"
)

// packTypeForKind and kindForPackType map between the store's string
// kind tags and the packfile record's 3-bit type field.
var packTypeForKind = map[string]uint8{
	"commit": 1,
	"tree":   2,
	"blob":   3,
	"tag":    4,
}

var kindForPackType = map[uint8]string{
	1: "commit",
	2: "tree",
	3: "blob",
	4: "tag",
}

// writePack emits the pack stream SEND_PACK transmits: the "PACK"
// magic, big-endian version 2, big-endian object count, one
// zlib-compressed non-delta record per object in objs, and a trailing
// SHA-1 checksum of every byte written before it. Every record here
// is a full object, never a delta; selecting delta bases is a
// repacking concern, not a transfer one.
func writePack(w io.Writer, store *objstore.Store, objs []*objgraph.Node) error {
	h := sha1.New()
	tee := io.MultiWriter(w, h)

	var header [12]byte
	copy(header[:4], "PACK")
	binary.BigEndian.PutUint32(header[4:8], 2)
	binary.BigEndian.PutUint32(header[8:12], uint32(len(objs)))
	if _, err := tee.Write(header[:]); err != nil {
		return err
	}
	for _, n := range objs {
		raw, err := store.ReadRaw(n.ID())
		if err != nil {
			return err
		}
		if err := writePackRecord(tee, raw); err != nil {
			return err
		}
	}
	_, err := w.Write(h.Sum(nil))
	return err
}

func writePackRecord(w io.Writer, raw objstore.RawObject) error {
	typ, ok := packTypeForKind[raw.Kind]
	if !ok {
		return fmt.Errorf("negotiate: unknown object kind %q", raw.Kind)
	}
	size := len(raw.Data)
	first := typ<<4 | uint8(size&0x0f)
	size >>= 4
	if size > 0 {
		first |= 0x80
	}
	if _, err := w.Write([]byte{first}); err != nil {
		return err
	}
	for size > 0 {
		b := uint8(size & 0x7f)
		size >>= 7
		if size > 0 {
			b |= 0x80
		}
		if _, err := w.Write([]byte{b}); err != nil {
			return err
		}
	}
	zw := zlib.NewWriter(w)
	if _, err := zw.Write(raw.Data); err != nil {
		return err
	}
	return zw.Close()
}

// ReceivePack reads a pack stream written by writePack and writes
// every object it contains into store, returning the count received.
// Since SEND_PACK never emits OFS_DELTA/REF_DELTA records, no base
// resolution is needed on this side.
func ReceivePack(r io.Reader, store *objstore.Store) (int, error) {
	// The zlib reader consumes its input byte by byte only when the
	// source is an io.ByteReader; anything else gets buffered reads
	// that overshoot the record boundary and eat the next header.
	br := bufio.NewReader(r)
	var header [12]byte
	if _, err := io.ReadFull(br, header[:]); err != nil {
		return 0, err
	}
	if string(header[:4]) != "PACK" {
		return 0, fmt.Errorf("negotiate: bad pack magic %q", header[:4])
	}
	count := binary.BigEndian.Uint32(header[8:12])
	for i := uint32(0); i < count; i++ {
		typ, err := readPackRecordType(br)
		if err != nil {
			return int(i), err
		}
		kind, ok := kindForPackType[typ]
		if !ok {
			return int(i), fmt.Errorf("negotiate: unsupported pack record type %d", typ)
		}
		zr, err := zlib.NewReader(br)
		if err != nil {
			return int(i), err
		}
		data, err := io.ReadAll(zr)
		if err != nil {
			return int(i), err
		}
		if err := zr.Close(); err != nil {
			return int(i), err
		}
		if _, err := store.WriteRaw(kind, data); err != nil {
			return int(i), err
		}
	}
	var checksum [20]byte
	if _, err := io.ReadFull(br, checksum[:]); err != nil {
		return int(count), err
	}
	return int(count), nil
}

// readPackRecordType decodes the type+size varint header, discarding
// the size (advisory; the zlib reader validates actual length).
func readPackRecordType(r io.Reader) (uint8, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	typ := (b[0] >> 4) & 0x07
	for b[0]&0x80 != 0 {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
	}
	return typ, nil
}
