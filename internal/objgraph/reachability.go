package objgraph

import "github.com/nicolagi/gitcore/internal/objid"

// MarkReachable sets bit on root and every node reachable from it by
// following tree entries, commit trees and parents, and tag targets,
// parsing nodes as needed along the way. bit must be
// nonzero: the caller is responsible for reserving it.
func (g *Graph) MarkReachable(root *Node, bit Flag) error {
	if bit == 0 {
		return ErrReachabilityDisabled
	}
	return g.markReachable(root, bit, make(map[objid.ID]bool))
}

func (g *Graph) markReachable(n *Node, bit Flag, visited map[objid.ID]bool) error {
	if visited[n.id] {
		return nil
	}
	visited[n.id] = true
	n.SetFlag(bit)
	if !n.parsed {
		// A missing or corrupt child is a dead end for this walk, not
		// a fatal error: the store/structural check already reports
		// it as Missing or Error on its own critical path.
		if err := g.Parse(n); err != nil {
			return nil
		}
	}
	switch n.kind {
	case KindTree:
		for _, e := range n.tree.Entries {
			if err := g.markReachable(g.Lookup(e.Child), bit, visited); err != nil {
				return err
			}
		}
	case KindCommit:
		if err := g.markReachable(g.Lookup(n.commit.TreeID), bit, visited); err != nil {
			return err
		}
		for _, p := range n.commit.Parents {
			if err := g.markReachable(g.Lookup(p), bit, visited); err != nil {
				return err
			}
		}
	case KindTag:
		if err := g.markReachable(g.Lookup(n.tag.Target), bit, visited); err != nil {
			return err
		}
	}
	return nil
}
