package resolve

import (
	"strconv"
	"strings"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
)

// refPrefixes is the lookup order for bare reference names: the bare
// name first (so a full ref path like "refs/heads/master" works directly),
// then under refs/, refs/tags/, refs/heads/.
var refPrefixes = []string{"", "refs/", "refs/tags/", "refs/heads/"}

// Resolver turns a revision expression into an object id, against a
// reference store, an object store (for abbreviated hex lookups), and
// an object graph (for parent/ancestor/peel traversal).
type Resolver struct {
	store *objstore.Store
	refs  *refstore.Store
	graph *objgraph.Graph
}

// New returns a Resolver over the given collaborators.
func New(store *objstore.Store, refs *refstore.Store, graph *objgraph.Graph) *Resolver {
	return &Resolver{store: store, refs: refs, graph: graph}
}

// Resolve parses and evaluates expr: a full or
// abbreviated hex id, a reference name tried against refPrefixes,
// possibly followed by one of "^N" (Nth parent, "^" short for "^1"),
// "~N" (Nth first-parent ancestor), or "^{kind}"/"^{}" (peel to kind,
// or to the first non-tag).
func (r *Resolver) Resolve(expr string) (objid.ID, error) {
	if expr == "" {
		return objid.Nil, errorf("Resolver.Resolve", "%w: empty expression", ErrBadSyntax)
	}
	return r.resolve(expr)
}

func (r *Resolver) resolve(name string) (objid.ID, error) {
	n := len(name)

	if n > 2 && name[n-2] == '^' && isDigit(name[n-1]) {
		return r.getParent(name[:n-2], int(name[n-1]-'0'))
	}
	if n > 1 && name[n-1] == '^' {
		return r.getParent(name[:n-1], 1)
	}

	if idx := tildeSplit(name); idx >= 0 {
		gen := 0
		if rest := name[idx+1:]; rest != "" {
			v, err := strconv.Atoi(rest)
			if err != nil {
				return objid.Nil, errorf("Resolver.resolve", "%w: bad ~ generation in %q", ErrBadSyntax, name)
			}
			gen = v
		}
		return r.nthAncestor(name[:idx], gen)
	}

	if strings.HasSuffix(name, "}") {
		if braceIdx := findCaretBrace(name); braceIdx >= 0 {
			base := name[:braceIdx-1]
			kindStr := name[braceIdx+1 : len(name)-1]
			return r.peelOnion(base, kindStr)
		}
	}

	return r.resolveBase(name)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// tildeSplit finds the '~' introducing a trailing run of digits (or
// no digits at all, meaning generation 0), mirroring get_sha1_1's
// backward scan. Returns -1 if name does not end this way.
func tildeSplit(name string) int {
	i := len(name) - 1
	for i >= 0 && isDigit(name[i]) {
		i--
	}
	if i >= 0 && name[i] == '~' {
		return i
	}
	return -1
}

// findCaretBrace locates the '^{' that opens the trailing "^{...}"
// suffix of name, which must already end in '}'. Returns -1 if name
// does not have this shape.
func findCaretBrace(name string) int {
	for i := len(name) - 2; i >= 1; i-- {
		if name[i] == '{' && name[i-1] == '^' {
			return i
		}
		if name[i] == '}' {
			break
		}
	}
	return -1
}

func (r *Resolver) getParent(base string, idx int) (objid.ID, error) {
	id, err := r.resolve(base)
	if err != nil {
		return objid.Nil, err
	}
	node := r.graph.Lookup(id)
	if err := r.graph.Parse(node); err != nil {
		return objid.Nil, err
	}
	// "tag^0" is the idiom for peeling a tag down to its commit, so
	// dereference tags before deciding what idx means.
	for node.Kind() == objgraph.KindTag {
		next := r.graph.Lookup(node.Tag().Target)
		if err := r.graph.Parse(next); err != nil {
			return objid.Nil, err
		}
		node = next
	}
	if node.Kind() != objgraph.KindCommit {
		return objid.Nil, errorf("Resolver.getParent", "%s is not a commit", node.ID())
	}
	if idx == 0 {
		return node.ID(), nil
	}
	parents := node.Commit().Parents
	if idx > len(parents) {
		return objid.Nil, errorf("Resolver.getParent", "%s has no parent number %d", node.ID(), idx)
	}
	return parents[idx-1], nil
}

func (r *Resolver) nthAncestor(base string, generation int) (objid.ID, error) {
	id, err := r.resolve(base)
	if err != nil {
		return objid.Nil, err
	}
	for ; generation > 0; generation-- {
		node := r.graph.Lookup(id)
		if err := r.graph.Parse(node); err != nil {
			return objid.Nil, err
		}
		if node.Kind() != objgraph.KindCommit || len(node.Commit().Parents) == 0 {
			return objid.Nil, errorf("Resolver.nthAncestor", "%s has no first parent", id)
		}
		id = node.Commit().Parents[0]
	}
	return id, nil
}

func (r *Resolver) peelOnion(base, kindStr string) (objid.ID, error) {
	id, err := r.resolve(base)
	if err != nil {
		return objid.Nil, err
	}
	node := r.graph.Lookup(id)
	if err := r.graph.Parse(node); err != nil {
		return objid.Nil, err
	}

	if kindStr == "" {
		for node.Kind() == objgraph.KindTag {
			next := r.graph.Lookup(node.Tag().Target)
			if err := r.graph.Parse(next); err != nil {
				return objid.Nil, err
			}
			node = next
		}
		return node.ID(), nil
	}

	want, err := objgraph.ParseKind(kindStr)
	if err != nil {
		return objid.Nil, errorf("Resolver.peelOnion", "%w: unknown peel type %q", ErrBadSyntax, kindStr)
	}
	for {
		if node.Kind() == want {
			return node.ID(), nil
		}
		var next *objgraph.Node
		switch node.Kind() {
		case objgraph.KindTag:
			next = r.graph.Lookup(node.Tag().Target)
		case objgraph.KindCommit:
			next = r.graph.Lookup(node.Commit().TreeID)
		default:
			return objid.Nil, errorf("Resolver.peelOnion", "%s: expected %s, dereferences to %s", id, want, node.Kind())
		}
		if err := r.graph.Parse(next); err != nil {
			return objid.Nil, err
		}
		node = next
	}
}

func (r *Resolver) resolveBase(name string) (objid.ID, error) {
	if len(name) == objid.Size*2 && isAllHex(name) {
		return objid.HexToID(name)
	}
	if !ambiguousPath(name) {
		for _, prefix := range refPrefixes {
			id, err := r.refs.Resolve(prefix + name)
			if err == nil {
				return id, nil
			}
		}
	}
	return r.expandAbbrev(name)
}

func isAllHex(s string) bool {
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}

// ambiguousPath rejects ref-path candidates built from directory
// traversal noise: empty, all-dot, or containing a doubled slash.
func ambiguousPath(path string) bool {
	slash := true
	for _, c := range path {
		switch c {
		case '/':
			if slash {
				return true
			}
			slash = true
		case '.':
		default:
			slash = false
		}
	}
	return slash
}

// Abbrev returns the shortest hex prefix of id, of length at least
// minLen, that no other object in the store (loose or packed) shares.
// ok is false when only the full 40 characters are unambiguous.
func (r *Resolver) Abbrev(id objid.ID, minLen int) (string, bool, error) {
	var candidates []objid.ID
	seen := make(map[objid.ID]bool)
	collect := func(c objid.ID) error {
		if !seen[c] {
			seen[c] = true
			candidates = append(candidates, c)
		}
		return nil
	}
	if err := r.store.EnumerateLoose(collect); err != nil {
		return "", false, err
	}
	for _, pack := range r.store.Packs() {
		if err := pack.ForEach(collect); err != nil {
			return "", false, err
		}
	}
	abbrev, ok := objid.Abbreviate(id, minLen, candidates)
	return abbrev, ok, nil
}

func (r *Resolver) expandAbbrev(prefix string) (objid.ID, error) {
	if len(prefix) < 4 || len(prefix) > objid.Size*2 || !isAllHex(prefix) {
		return objid.Nil, errorf("Resolver.expandAbbrev", "%w: %q", ErrNotFound, prefix)
	}
	lowerPrefix := strings.ToLower(prefix)

	var matches []objid.ID
	seen := make(map[objid.ID]bool)
	collect := func(id objid.ID) error {
		if seen[id] {
			return nil
		}
		seen[id] = true
		if strings.HasPrefix(id.Hex(), lowerPrefix) {
			matches = append(matches, id)
		}
		return nil
	}
	if err := r.store.EnumerateLoose(collect); err != nil {
		return objid.Nil, err
	}
	for _, pack := range r.store.Packs() {
		if err := pack.ForEach(collect); err != nil {
			return objid.Nil, err
		}
	}

	switch len(matches) {
	case 0:
		return objid.Nil, errorf("Resolver.expandAbbrev", "%w: %q", ErrNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return objid.Nil, errorf("Resolver.expandAbbrev", "%w: %q", ErrAmbiguous, prefix)
	}
}
