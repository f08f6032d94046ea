package objgraph

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/nicolagi/gitcore/internal/objid"
)

// Graft overrides the on-disk parent list of one commit identity
// during parsing. It is read once per process from a plain-text file.
type Graft struct {
	Child   objid.ID
	Parents []objid.ID
}

// Grafts is the graft list, kept sorted by child identity for binary
// search.
type Grafts struct {
	entries []Graft
}

// LoadGrafts reads path: one graft per line, "child parent1 parent2
// ..." in hex, "#" comment lines ignored. A missing file is not an
// error; it yields an empty, valid Grafts, so "file absent" and
// "loaded empty" behave identically and need no sentinel.
func LoadGrafts(path string) (*Grafts, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Grafts{}, nil
		}
		return nil, err
	}
	defer f.Close()

	var g Grafts
	s := bufio.NewScanner(f)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		child, err := objid.HexToID(fields[0])
		if err != nil {
			return nil, fmt.Errorf("objgraph: graft file %q: child: %w", path, err)
		}
		var parents []objid.ID
		for _, f := range fields[1:] {
			p, err := objid.HexToID(f)
			if err != nil {
				return nil, fmt.Errorf("objgraph: graft file %q: parent: %w", path, err)
			}
			parents = append(parents, p)
		}
		g.entries = append(g.entries, Graft{Child: child, Parents: parents})
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	sort.Slice(g.entries, func(i, j int) bool { return g.entries[i].Child.Less(g.entries[j].Child) })
	return &g, nil
}

// Lookup returns the overriding parent list for child, if any, via
// binary search over the sorted entry list.
func (g *Grafts) Lookup(child objid.ID) ([]objid.ID, bool) {
	if g == nil {
		return nil, false
	}
	i := sort.Search(len(g.entries), func(i int) bool { return !g.entries[i].Child.Less(child) })
	if i < len(g.entries) && g.entries[i].Child == child {
		return g.entries[i].Parents, true
	}
	return nil, false
}
