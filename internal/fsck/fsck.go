// Package fsck implements the integrity checker: a walk over every
// object known to a store that reports missing, broken, dangling, and
// unreachable objects. Structural validation (mode set, tree ordering,
// commit header order) is not duplicated here: objgraph's decoders
// already enforce those invariants at parse time, so a parse failure
// surfaces directly as an error finding. The one check layered on top
// is the strictly-positive committer date, which the decoder leaves
// lenient.
package fsck

import (
	"fmt"
	"io"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
)

// flagReachable and flagUsed are reserved on every node for the
// duration of one Check call.
const (
	flagReachable objgraph.Flag = 1 << 0
	flagUsed      objgraph.Flag = 1 << 1
)

// FindingKind classifies one line of the integrity report.
type FindingKind int

const (
	// Error is a structural decode failure: the object's bytes do not
	// parse as its recorded kind.
	Error FindingKind = iota
	// Missing is a referenced id absent from the store entirely.
	Missing
	// BrokenLink is a referenced id present but unparsable, or parsed
	// as a kind other than the one the reference expected.
	BrokenLink
	// Dangling is a present, parsed object with no inbound reference
	// from any other known object.
	Dangling
	// Unreachable is a present, parsed object not reached from the
	// reachability roots.
	Unreachable
)

// Finding is one reported issue. RefKind/RefID are set only for
// BrokenLink, where they describe the referenced (not referencing)
// object.
type Finding struct {
	Kind       FindingKind
	ObjectKind string
	ObjectID   objid.ID
	RefKind    string
	RefID      objid.ID
	Message    string
}

// Checker walks graph's underlying store, using refs (plus any extra
// roots given to Check) as the reachability root set.
type Checker struct {
	graph *objgraph.Graph
	store *objstore.Store
	refs  *refstore.Store
}

// New returns a Checker over graph/store/refs. graph should be a
// fresh graph dedicated to this check: Check reserves two flag bits
// for the duration of the call and does not clear them afterward.
func New(graph *objgraph.Graph, store *objstore.Store, refs *refstore.Store) *Checker {
	return &Checker{graph: graph, store: store, refs: refs}
}

// reference is one outgoing edge from a parsed object, labeled with
// the kind it is expected to resolve to.
type reference struct {
	kind string
	id   objid.ID
}

// Check walks every object the store can enumerate (loose and
// packed), in sorted id order so output is deterministic across runs,
// and returns every finding. extraRoots supplements the ref set as
// reachability roots (e.g., a working tree's current commit not yet
// pointed to by any ref).
func (c *Checker) Check(extraRoots []objid.ID) ([]Finding, error) {
	ids, err := c.collectIDs()
	if err != nil {
		return nil, err
	}

	nodes := make([]*objgraph.Node, len(ids))
	for i, id := range ids {
		nodes[i] = c.graph.Lookup(id)
	}

	var findings []Finding
	for _, n := range nodes {
		if n.Parsed() {
			continue
		}
		if err := c.graph.Parse(n); err != nil {
			findings = append(findings, Finding{
				Kind:     Error,
				ObjectID: n.ID(),
				Message:  err.Error(),
			})
		}
	}

	for _, n := range nodes {
		if n.Parsed() && n.Kind() == objgraph.KindCommit && n.Commit().Committer.When <= 0 {
			findings = append(findings, Finding{
				Kind:       Error,
				ObjectKind: "commit",
				ObjectID:   n.ID(),
				Message:    fmt.Sprintf("non-positive committer date %d", n.Commit().Committer.When),
			})
		}
	}

	for _, n := range nodes {
		if !n.Parsed() {
			continue
		}
		for _, ref := range c.references(n) {
			child := c.graph.Lookup(ref.id)
			child.SetFlag(flagUsed)
			has, err := c.store.Has(ref.id)
			if err != nil {
				return nil, err
			}
			if !has {
				// An absent referenced object is two findings: the
				// object itself is missing, and the referencing
				// object carries a broken link to it.
				findings = append(findings, Finding{
					Kind:       Missing,
					ObjectKind: ref.kind,
					ObjectID:   ref.id,
				})
				findings = append(findings, Finding{
					Kind:       BrokenLink,
					ObjectKind: n.Kind().String(),
					ObjectID:   n.ID(),
					RefKind:    ref.kind,
					RefID:      ref.id,
				})
				continue
			}
			if err := c.graph.Parse(child); err != nil || child.Kind().String() != ref.kind {
				findings = append(findings, Finding{
					Kind:       BrokenLink,
					ObjectKind: n.Kind().String(),
					ObjectID:   n.ID(),
					RefKind:    ref.kind,
					RefID:      ref.id,
				})
			}
		}
	}

	roots, err := c.roots(extraRoots)
	if err != nil {
		return nil, err
	}
	for _, root := range roots {
		// A ref (or explicit extra root) is itself an inbound
		// reference, matching fsck_handle_ref's obj->used = 1.
		root.SetFlag(flagUsed)
		if err := c.graph.MarkReachable(root, flagReachable); err != nil {
			return nil, err
		}
	}

	for _, n := range nodes {
		if !n.Parsed() {
			continue
		}
		if !n.HasFlag(flagReachable) {
			findings = append(findings, Finding{
				Kind:       Unreachable,
				ObjectKind: n.Kind().String(),
				ObjectID:   n.ID(),
			})
		}
		if !n.HasFlag(flagUsed) {
			findings = append(findings, Finding{
				Kind:       Dangling,
				ObjectKind: n.Kind().String(),
				ObjectID:   n.ID(),
			})
		}
	}

	return findings, nil
}

// collectIDs returns every id the store can enumerate, loose and
// packed, deduplicated and sorted.
func (c *Checker) collectIDs() ([]objid.ID, error) {
	seen := make(map[objid.ID]bool)
	var ids []objid.ID
	add := func(id objid.ID) error {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
		return nil
	}
	if err := c.store.EnumerateLoose(add); err != nil {
		return nil, err
	}
	for _, p := range c.store.Packs() {
		if err := p.ForEach(add); err != nil {
			return nil, err
		}
	}
	objid.SortIDs(ids)
	return ids, nil
}

// roots resolves every local ref plus extraRoots into nodes.
func (c *Checker) roots(extraRoots []objid.ID) ([]*objgraph.Node, error) {
	var roots []*objgraph.Node
	err := c.refs.ForEachRef(func(name string, id objid.ID) error {
		roots = append(roots, c.graph.Lookup(id))
		return nil
	})
	if err != nil {
		return nil, err
	}
	for _, id := range extraRoots {
		roots = append(roots, c.graph.Lookup(id))
	}
	return roots, nil
}

// references lists n's outgoing edges, each labeled with the kind the
// reference is expected to resolve to.
func (c *Checker) references(n *objgraph.Node) []reference {
	switch n.Kind() {
	case objgraph.KindTree:
		refs := make([]reference, 0, len(n.Tree().Entries))
		for _, e := range n.Tree().Entries {
			kind := "blob"
			if e.Mode.IsDirectory() {
				kind = "tree"
			}
			refs = append(refs, reference{kind: kind, id: e.Child})
		}
		return refs
	case objgraph.KindCommit:
		refs := make([]reference, 0, 1+len(n.Commit().Parents))
		refs = append(refs, reference{kind: "tree", id: n.Commit().TreeID})
		for _, p := range n.Commit().Parents {
			refs = append(refs, reference{kind: "commit", id: p})
		}
		return refs
	case objgraph.KindTag:
		return []reference{{kind: n.Tag().TargetKind.String(), id: n.Tag().Target}}
	default:
		return nil
	}
}

// WriteReport prints one line per finding (two for BrokenLink,
// mirroring fsck-objects.c's "broken link from"/"to" pair) to w.
func WriteReport(w io.Writer, findings []Finding) {
	for _, f := range findings {
		switch f.Kind {
		case Error:
			fmt.Fprintf(w, "error in %s: %s\n", f.ObjectID, f.Message)
		case Missing:
			fmt.Fprintf(w, "missing %s %s\n", f.ObjectKind, f.ObjectID)
		case BrokenLink:
			fmt.Fprintf(w, "broken link from %7s %s\n", f.ObjectKind, f.ObjectID)
			fmt.Fprintf(w, "              to %7s %s\n", f.RefKind, f.RefID)
		case Dangling:
			fmt.Fprintf(w, "dangling %s %s\n", f.ObjectKind, f.ObjectID)
		case Unreachable:
			fmt.Fprintf(w, "unreachable %s %s\n", f.ObjectKind, f.ObjectID)
		}
	}
}

// Clean reports whether findings contains nothing but Dangling
// entries; only error-class findings should make a command-line front
// end exit nonzero.
func Clean(findings []Finding) bool {
	for _, f := range findings {
		if f.Kind != Dangling {
			return false
		}
	}
	return true
}
