package objstore

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/nicolagi/gitcore/internal/objid"
)

const (
	fanoutEntries  = 256
	indexRecordLen = objid.Size + 4 // 20-byte id + 4-byte big-endian offset
)

// packIndexEntry is one (id, offset) record from the index, in
// on-disk sorted order.
type packIndexEntry struct {
	id     objid.ID
	offset uint32
}

// packIndex is the parsed form of an index file: the fanout table and
// the sorted entry list, plus the trailing pack/index checksums.
type packIndex struct {
	fanout       [fanoutEntries]uint32
	entries      []packIndexEntry
	packChecksum [objid.Size]byte
	idxChecksum  [objid.Size]byte
}

func readPackIndex(path string) (*packIndex, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	minLen := fanoutEntries*4 + 2*objid.Size
	if len(data) < minLen {
		return nil, fmt.Errorf("objstore: index %q too short: %d bytes", path, len(data))
	}
	trailer := data[len(data)-2*objid.Size:]
	body := data[:len(data)-2*objid.Size]

	var idx packIndex
	copy(idx.packChecksum[:], trailer[:objid.Size])
	copy(idx.idxChecksum[:], trailer[objid.Size:])

	for i := 0; i < fanoutEntries; i++ {
		idx.fanout[i] = binary.BigEndian.Uint32(body[i*4 : i*4+4])
	}
	count := idx.fanout[fanoutEntries-1]
	recordsStart := fanoutEntries * 4
	wantLen := recordsStart + int(count)*indexRecordLen
	if wantLen != len(body) {
		return nil, fmt.Errorf("objstore: index %q: fanout implies %d records, body has room for %d",
			path, count, (len(body)-recordsStart)/indexRecordLen)
	}
	idx.entries = make([]packIndexEntry, count)
	for i := 0; i < int(count); i++ {
		rec := body[recordsStart+i*indexRecordLen : recordsStart+(i+1)*indexRecordLen]
		var e packIndexEntry
		copy(e.id[:], rec[:objid.Size])
		e.offset = binary.BigEndian.Uint32(rec[objid.Size:])
		idx.entries[i] = e
	}
	if err := idx.validate(); err != nil {
		return nil, fmt.Errorf("objstore: index %q: %w", path, err)
	}
	return &idx, nil
}

// validate checks that entries are sorted by id and that the fanout
// table is consistent with the entry list.
func (idx *packIndex) validate() error {
	for i := 1; i < len(idx.entries); i++ {
		if !idx.entries[i-1].id.Less(idx.entries[i].id) {
			return fmt.Errorf("entries not strictly sorted at position %d", i)
		}
	}
	var exact [fanoutEntries]uint32
	for _, e := range idx.entries {
		for j := int(e.id[0]); j < fanoutEntries; j++ {
			exact[j]++
		}
	}
	for i := 0; i < fanoutEntries; i++ {
		if idx.fanout[i] != exact[i] {
			return fmt.Errorf("fanout[%d]=%d inconsistent with entry list (want %d)", i, idx.fanout[i], exact[i])
		}
	}
	return nil
}

// find returns the offset for id via binary search, or ok=false.
func (idx *packIndex) find(id objid.ID) (offset uint32, ok bool) {
	lo, hi := 0, len(idx.entries)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case idx.entries[mid].id == id:
			return idx.entries[mid].offset, true
		case idx.entries[mid].id.Less(id):
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return 0, false
}
