package objgraph

import (
	"bufio"
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nicolagi/gitcore/internal/objid"
)

// EncodeTree serializes entries in canonical order: sorted by
// sortKey, which treats a directory entry as if its name carried a
// trailing slash. Each entry is one line: "<octal mode>
// <name>\0<20 raw id bytes>".
func EncodeTree(t *Tree) ([]byte, error) {
	entries := append([]TreeEntry(nil), t.Entries...)
	sort.Slice(entries, func(i, j int) bool { return entries[i].sortKey() < entries[j].sortKey() })
	for i := 1; i < len(entries); i++ {
		if entries[i-1].sortKey() == entries[i].sortKey() {
			return nil, fmt.Errorf("objgraph: duplicate tree entry name %q", entries[i].Name)
		}
	}
	var buf bytes.Buffer
	for _, e := range entries {
		fmt.Fprintf(&buf, "%o %s\x00", uint32(e.Mode), e.Name)
		buf.Write(e.Child.Bytes())
	}
	return buf.Bytes(), nil
}

// DecodeTree parses the on-disk tree format, validating that entries
// are sorted and unique per the directory-slash rule.
// When lenient is false, ModeRegular664 entries are rejected.
func DecodeTree(data []byte, lenient bool) (*Tree, error) {
	var entries []TreeEntry
	for len(data) > 0 {
		sp := bytes.IndexByte(data, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("objgraph: tree: missing space after mode")
		}
		modeNum, err := strconv.ParseUint(string(data[:sp]), 8, 32)
		if err != nil {
			return nil, fmt.Errorf("objgraph: tree: bad mode %q: %w", data[:sp], err)
		}
		mode := Mode(modeNum)
		if !mode.Valid(lenient) {
			return nil, fmt.Errorf("objgraph: tree: disallowed mode %o", modeNum)
		}
		data = data[sp+1:]
		nul := bytes.IndexByte(data, 0)
		if nul < 0 {
			return nil, fmt.Errorf("objgraph: tree: missing NUL after name")
		}
		name := string(data[:nul])
		if strings.Contains(name, "/") {
			return nil, fmt.Errorf("objgraph: tree: name %q contains /", name)
		}
		data = data[nul+1:]
		if len(data) < objid.Size {
			return nil, fmt.Errorf("objgraph: tree: truncated child id")
		}
		var child objid.ID
		copy(child[:], data[:objid.Size])
		data = data[objid.Size:]
		entries = append(entries, TreeEntry{Mode: mode, Name: name, Child: child})
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].sortKey() >= entries[i].sortKey() {
			return nil, fmt.Errorf("objgraph: tree: entries not strictly sorted at %q, %q", entries[i-1].Name, entries[i].Name)
		}
	}
	return &Tree{Entries: entries}, nil
}

// EncodeCommit writes the fixed header order: tree, parent*, author,
// committer, blank line, message.
func EncodeCommit(c *Commit) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "tree %s\n", c.TreeID.Hex())
	for _, p := range c.Parents {
		fmt.Fprintf(&buf, "parent %s\n", p.Hex())
	}
	fmt.Fprintf(&buf, "author %s\n", encodeSignature(c.Author))
	fmt.Fprintf(&buf, "committer %s\n", encodeSignature(c.Committer))
	buf.WriteByte('\n')
	buf.WriteString(c.Message)
	return buf.Bytes(), nil
}

// DecodeCommit parses the format EncodeCommit writes, enforcing the
// header order and that each id parses. A committer date that fails
// to parse is clamped to zero rather than failing the commit; the
// integrity checker flags non-positive dates separately.
func DecodeCommit(data []byte) (*Commit, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var c Commit
	sawTree := false
	sawAuthor := false
	sawCommitter := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		switch {
		case strings.HasPrefix(line, "tree "):
			if sawTree {
				return nil, fmt.Errorf("objgraph: commit: duplicate tree header")
			}
			id, err := objid.HexToID(strings.TrimPrefix(line, "tree "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: commit: tree: %w", err)
			}
			c.TreeID = id
			sawTree = true
		case strings.HasPrefix(line, "parent "):
			if !sawTree || sawAuthor {
				return nil, fmt.Errorf("objgraph: commit: parent header out of order")
			}
			id, err := objid.HexToID(strings.TrimPrefix(line, "parent "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: commit: parent: %w", err)
			}
			c.Parents = append(c.Parents, id)
		case strings.HasPrefix(line, "author "):
			if !sawTree || sawAuthor {
				return nil, fmt.Errorf("objgraph: commit: author header out of order")
			}
			sig, err := decodeSignature(strings.TrimPrefix(line, "author "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: commit: author: %w", err)
			}
			c.Author = sig
			sawAuthor = true
		case strings.HasPrefix(line, "committer "):
			if !sawAuthor || sawCommitter {
				return nil, fmt.Errorf("objgraph: commit: committer header out of order")
			}
			sig, err := decodeSignature(strings.TrimPrefix(line, "committer "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: commit: committer: %w", err)
			}
			c.Committer = sig
			sawCommitter = true
		default:
			return nil, fmt.Errorf("objgraph: commit: unexpected header line %q", line)
		}
	}
	if !sawTree {
		return nil, fmt.Errorf("objgraph: commit: missing tree header")
	}
	if !sawAuthor {
		return nil, fmt.Errorf("objgraph: commit: missing author header")
	}
	if !sawCommitter {
		return nil, fmt.Errorf("objgraph: commit: missing committer header")
	}
	rest, _ := drainScanner(sc)
	c.Message = rest
	return &c, sc.Err()
}

// drainScanner drains whatever remains of the scanner's
// underlying reader after Scan stopped at the blank-line boundary,
// reassembling the message body line by line joined with "\n"; the
// body's final newline is dropped.
func drainScanner(sc *bufio.Scanner) (string, error) {
	var buf bytes.Buffer
	for sc.Scan() {
		buf.WriteString(sc.Text())
		buf.WriteByte('\n')
	}
	msg := buf.String()
	return strings.TrimSuffix(msg, "\n"), sc.Err()
}

func encodeSignature(s Signature) string {
	return fmt.Sprintf("%s <%s> %d %s", s.Name, s.Email, s.When, s.TZ)
}

func decodeSignature(line string) (Signature, error) {
	lt := strings.IndexByte(line, '<')
	gt := strings.IndexByte(line, '>')
	if lt < 0 || gt < 0 || gt < lt {
		return Signature{}, fmt.Errorf("malformed signature %q", line)
	}
	name := strings.TrimSpace(line[:lt])
	email := line[lt+1 : gt]
	rest := strings.Fields(line[gt+1:])
	if len(rest) != 2 {
		return Signature{}, fmt.Errorf("malformed signature tail %q", line[gt+1:])
	}
	when, err := strconv.ParseInt(rest[0], 10, 64)
	if err != nil {
		// Lenient parse: clamp overflow/garbage to zero and continue.
		when = 0
	}
	return Signature{Name: name, Email: email, When: when, TZ: rest[1]}, nil
}

// EncodeTag writes the object/type/tag/tagger/blank/message format.
func EncodeTag(t *Tag) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "object %s\n", t.Target.Hex())
	fmt.Fprintf(&buf, "type %s\n", t.TargetKind)
	fmt.Fprintf(&buf, "tag %s\n", t.Name)
	fmt.Fprintf(&buf, "tagger %s\n", encodeSignature(t.Tagger))
	buf.WriteByte('\n')
	buf.WriteString(t.Message)
	return buf.Bytes(), nil
}

// DecodeTag parses the format EncodeTag writes.
func DecodeTag(data []byte) (*Tag, error) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	var t Tag
	haveTagger := false
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			break
		}
		switch {
		case strings.HasPrefix(line, "object "):
			id, err := objid.HexToID(strings.TrimPrefix(line, "object "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: tag: object: %w", err)
			}
			t.Target = id
		case strings.HasPrefix(line, "type "):
			kind, err := ParseKind(strings.TrimPrefix(line, "type "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: tag: %w", err)
			}
			t.TargetKind = kind
		case strings.HasPrefix(line, "tag "):
			t.Name = strings.TrimPrefix(line, "tag ")
		case strings.HasPrefix(line, "tagger "):
			sig, err := decodeSignature(strings.TrimPrefix(line, "tagger "))
			if err != nil {
				return nil, fmt.Errorf("objgraph: tag: tagger: %w", err)
			}
			t.Tagger = sig
			haveTagger = true
		default:
			return nil, fmt.Errorf("objgraph: tag: unexpected header line %q", line)
		}
	}
	if t.Target.IsNil() {
		return nil, fmt.Errorf("objgraph: tag: missing object header")
	}
	if t.Name == "" {
		return nil, fmt.Errorf("objgraph: tag: missing tag header")
	}
	if !haveTagger {
		return nil, fmt.Errorf("objgraph: tag: missing tagger header")
	}
	rest, _ := drainScanner(sc)
	t.Message = rest
	return &t, sc.Err()
}
