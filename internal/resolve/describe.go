package resolve

import (
	"fmt"
	"strings"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
)

// revName is the best name found so far for a commit during Describe:
// fewer merge traversals wins, then fewer generations along a
// first-parent chain.
type revName struct {
	tipName         string
	mergeTraversals int
	generation      int
}

// Describe returns a revision expression that Resolve would turn back
// into target, built by walking every reference's history and keeping
// the shortest/least-merge-hopping path to reach it. It returns
// ErrUndefined if no reference's history reaches target.
func (r *Resolver) Describe(target objid.ID) (string, error) {
	err := r.refs.ForEachRef(func(name string, id objid.ID) error {
		node := r.graph.Lookup(id)
		if err := r.graph.Parse(node); err != nil {
			return nil
		}
		deref := false
		for node.Kind() == objgraph.KindTag {
			next := r.graph.Lookup(node.Tag().Target)
			if err := r.graph.Parse(next); err != nil {
				return nil
			}
			node = next
			deref = true
		}
		if node.Kind() != objgraph.KindCommit {
			return nil
		}
		r.nameRev(node, shortRefName(name), 0, 0, deref)
		return nil
	})
	if err != nil {
		return "", err
	}

	node := r.graph.Lookup(target)
	rn, ok := node.Util().(*revName)
	if !ok || rn == nil {
		return "", errorf("Resolver.Describe", "%w: %s", ErrUndefined, target)
	}
	if rn.generation == 0 {
		return rn.tipName, nil
	}
	return fmt.Sprintf("%s~%d", rn.tipName, rn.generation), nil
}

func (r *Resolver) nameRev(commit *objgraph.Node, tipName string, mergeTraversals, generation int, deref bool) {
	if deref {
		tipName += "^0"
	}

	existing, _ := commit.Util().(*revName)
	switch {
	case existing == nil:
		commit.SetUtil(&revName{tipName: tipName, mergeTraversals: mergeTraversals, generation: generation})
	case existing.mergeTraversals > mergeTraversals,
		existing.mergeTraversals == mergeTraversals && existing.generation > generation:
		existing.tipName = tipName
		existing.mergeTraversals = mergeTraversals
		existing.generation = generation
	default:
		return
	}

	for i, parentID := range commit.Commit().Parents {
		parent := r.graph.Lookup(parentID)
		if err := r.graph.Parse(parent); err != nil || parent.Kind() != objgraph.KindCommit {
			continue
		}
		if i > 0 {
			var newName string
			if generation > 0 {
				newName = fmt.Sprintf("%s~%d^%d", tipName, generation, i+1)
			} else {
				newName = fmt.Sprintf("%s^%d", tipName, i+1)
			}
			r.nameRev(parent, newName, mergeTraversals+1, 0, false)
		} else {
			r.nameRev(parent, tipName, mergeTraversals, generation+1, false)
		}
	}
}

// shortRefName drops the "refs/heads/" or "refs/" prefix from a
// reference name, leaving a name that Resolve's refPrefixes lookup
// maps back to the same reference.
func shortRefName(name string) string {
	if s := strings.TrimPrefix(name, "refs/heads/"); s != name {
		return s
	}
	return strings.TrimPrefix(name, "refs/")
}
