package objgraph

import "github.com/nicolagi/gitcore/internal/objid"

// Mode is a tree entry's file mode, restricted to two regular-file
// variants, symlinks, and directories.
type Mode uint32

const (
	ModeRegular755 Mode = 0100755
	ModeRegular644 Mode = 0100644
	ModeSymlink    Mode = 0120000
	ModeDirectory  Mode = 0040000
	// ModeRegular664 is accepted only when the reader is configured
	// lenient.
	ModeRegular664 Mode = 0100664
)

// IsDirectory reports whether m designates a subtree entry, which
// sorts as if its name had a trailing slash.
func (m Mode) IsDirectory() bool { return m == ModeDirectory }

// Valid reports whether m is one of the strict-mode entries, or, when
// lenient is true, also ModeRegular664.
func (m Mode) Valid(lenient bool) bool {
	switch m {
	case ModeRegular755, ModeRegular644, ModeSymlink, ModeDirectory:
		return true
	case ModeRegular664:
		return lenient
	default:
		return false
	}
}

// Blob is an opaque byte sequence; it carries no further structure.
type Blob struct {
	Data []byte
}

// TreeEntry is one (mode, name, child) triple of a Tree.
type TreeEntry struct {
	Mode  Mode
	Name  string
	Child objid.ID
}

// sortKey is the name used for canonical ordering: a directory entry
// sorts as if its name carried a trailing slash.
func (e TreeEntry) sortKey() string {
	if e.Mode.IsDirectory() {
		return e.Name + "/"
	}
	return e.Name
}

// Tree is an ordered, canonically-sorted list of entries.
type Tree struct {
	Entries []TreeEntry
}

// Signature is the author/committer line shape shared by commits and
// the tagger line of a tag: a name, an email, a Unix timestamp, and a
// timezone offset in the written form (e.g. "+0100").
type Signature struct {
	Name  string
	Email string
	When  int64
	TZ    string
}

// Commit is a tree snapshot plus zero or more parents (order
// significant), author/committer metadata, and a free-form message.
type Commit struct {
	TreeID    objid.ID
	Parents   []objid.ID
	Author    Signature
	Committer Signature
	Message   string
}

// Tag is a named pointer to another object plus tagger metadata and a
// message.
type Tag struct {
	Target     objid.ID
	TargetKind Kind
	Name       string
	Tagger     Signature
	Message    string
}
