package objgraph

import (
	"sort"

	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
)

// ObjectReader is the collaborator a Graph needs to turn an identity
// into raw kind-tagged bytes. *objstore.Store satisfies this.
type ObjectReader interface {
	ReadRaw(id objid.ID) (objstore.RawObject, error)
}

// Option configures a Graph at construction time.
type Option func(*Graph)

// WithGrafts installs graft overrides applied when commits are parsed.
func WithGrafts(g *Grafts) Option {
	return func(gr *Graph) { gr.grafts = g }
}

// WithLenientTrees accepts ModeRegular664 tree entries.
func WithLenientTrees(lenient bool) Option {
	return func(gr *Graph) { gr.lenientTrees = lenient }
}

// Graph is the node table for one object store: every identity ever
// looked up gets exactly one Node, interned for the lifetime of the
// Graph.
type Graph struct {
	reader       ObjectReader
	grafts       *Grafts
	lenientTrees bool

	index map[objid.ID]*Node
	nodes []*Node
}

// NewGraph returns a Graph reading objects through reader.
func NewGraph(reader ObjectReader, opts ...Option) *Graph {
	g := &Graph{
		reader: reader,
		index:  make(map[objid.ID]*Node),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Lookup returns the Node for id, creating and interning an unparsed
// one on first reference.
func (g *Graph) Lookup(id objid.ID) *Node {
	if n, ok := g.index[id]; ok {
		return n
	}
	n := &Node{id: id}
	g.index[id] = n
	g.nodes = append(g.nodes, n)
	return n
}

// Sorted returns every interned node, ordered by identity, supporting
// binary search over the table.
func (g *Graph) Sorted() []*Node {
	out := append([]*Node(nil), g.nodes...)
	sort.Slice(out, func(i, j int) bool { return out[i].id.Less(out[j].id) })
	return out
}

// Parse fills in n's kind and payload by reading it through the
// Graph's object reader, interning every child/parent/target identity
// it references. It is idempotent: a second call on an already-parsed
// node is a no-op.
func (g *Graph) Parse(n *Node) error {
	if n.parsed {
		return nil
	}
	raw, err := g.reader.ReadRaw(n.id)
	if err != nil {
		return errorf("Graph.Parse", "read %s: %v", n.id, err)
	}
	kind, err := ParseKind(raw.Kind)
	if err != nil {
		return errorf("Graph.Parse", "%s: %v", n.id, err)
	}
	switch kind {
	case KindBlob:
		n.blob = &Blob{Data: raw.Data}
	case KindTree:
		tree, err := DecodeTree(raw.Data, g.lenientTrees)
		if err != nil {
			return errorf("Graph.Parse", "%s: %v", n.id, err)
		}
		n.tree = tree
		for _, e := range tree.Entries {
			g.Lookup(e.Child)
		}
	case KindCommit:
		commit, err := DecodeCommit(raw.Data)
		if err != nil {
			return errorf("Graph.Parse", "%s: %v", n.id, err)
		}
		if parents, ok := g.grafts.Lookup(n.id); ok {
			commit.Parents = parents
		}
		n.commit = commit
		g.Lookup(commit.TreeID)
		for _, p := range commit.Parents {
			g.Lookup(p)
		}
	case KindTag:
		tag, err := DecodeTag(raw.Data)
		if err != nil {
			return errorf("Graph.Parse", "%s: %v", n.id, err)
		}
		n.tag = tag
		g.Lookup(tag.Target)
	default:
		return errorf("Graph.Parse", "%s: unknown kind %q", n.id, raw.Kind)
	}
	n.kind = kind
	n.parsed = true
	return nil
}
