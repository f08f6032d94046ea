// Package objid implements the fixed-width content identifier used
// throughout the object graph: a 20-byte digest of an object's type
// tag, length, and payload.
package objid

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"sort"
)

// Size is the byte length of an ID.
const Size = 20

// ID is a 20-byte content digest. The zero value is not a valid ID for
// any object; it is used as a sentinel for "no id" in a few call sites
// (e.g., an unset parent).
type ID [Size]byte

// Nil is the zero ID, used where an optional ID is absent.
var Nil ID

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// String returns the lowercase hex encoding, same as Hex.
func (id ID) String() string { return id.Hex() }

// Hex returns the 40-character lowercase hex encoding of id.
func (id ID) Hex() string {
	return hex.EncodeToString(id[:])
}

// Bytes returns the raw 20 bytes of id.
func (id ID) Bytes() []byte {
	return id[:]
}

// Less reports whether id sorts before other, using the natural byte
// ordering of the digest. SortIDs and objgraph's Graph.Sorted order by
// it; the graph's node table itself is a map and is not kept sorted.
func (id ID) Less(other ID) bool {
	for i := 0; i < Size; i++ {
		if id[i] != other[i] {
			return id[i] < other[i]
		}
	}
	return false
}

// HexToID parses exactly 40 hex characters into an ID.
func HexToID(text string) (ID, error) {
	var id ID
	if len(text) != Size*2 {
		return id, fmt.Errorf("objid: %q: want %d hex characters, got %d", text, Size*2, len(text))
	}
	b, err := hex.DecodeString(text)
	if err != nil {
		return id, fmt.Errorf("objid: %q: %w", text, err)
	}
	copy(id[:], b)
	return id, nil
}

// Hash computes the identity of an object given its type tag (e.g.
// "blob", "tree", "commit", "tag") and its serialized payload, per the
// rule identity(o) = hash(tag + " " + len(payload) + "\x00" + payload).
func Hash(tag string, payload []byte) ID {
	h := sha1.New()
	fmt.Fprintf(h, "%s %d\x00", tag, len(payload))
	h.Write(payload)
	var id ID
	copy(id[:], h.Sum(nil))
	return id
}

// SortIDs sorts ids in place in ascending digest order.
func SortIDs(ids []ID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
}

// Abbreviate returns the shortest hex prefix of id, of length at least
// minLen, such that no other id in candidates shares that prefix. If
// no such prefix exists shorter than full length, it returns the full
// 40-character hex string and ok=false to signal that only the full id
// is unambiguous. candidates need not be sorted and need not exclude
// id itself.
func Abbreviate(id ID, minLen int, candidates []ID) (abbrev string, ok bool) {
	full := id.Hex()
	if minLen < 1 {
		minLen = 1
	}
	if minLen > len(full) {
		minLen = len(full)
	}
	for n := minLen; n < len(full); n++ {
		prefix := full[:n]
		unique := true
		for _, other := range candidates {
			if other == id {
				continue
			}
			if other.Hex()[:n] == prefix {
				unique = false
				break
			}
		}
		if unique {
			return prefix, true
		}
	}
	return full, false
}
