package objgraph

import "github.com/nicolagi/gitcore/internal/objid"

// Flag is one bit of the per-node scratch bitset used by traversals
// to mark transient state such as "reachable", "have", or "want".
// Components that need a flag reserve one of the 32 bits and are
// responsible for not colliding with another component's bit within
// the same Graph.
type Flag uint32

// Node is the single table entry for an identity: its kind (unknown
// until first parsed), the parsed payload once available, and a flags
// bitset plus an untyped scratch slot for traversal algorithms.
type Node struct {
	id     objid.ID
	kind   Kind
	parsed bool
	flags  Flag

	blob   *Blob
	tree   *Tree
	commit *Commit
	tag    *Tag

	util interface{}
}

// ID returns the node's identity.
func (n *Node) ID() objid.ID { return n.id }

// Kind returns the node's kind; KindUnknown before the first parse.
func (n *Node) Kind() Kind { return n.kind }

// Parsed reports whether Parse has successfully populated this node.
func (n *Node) Parsed() bool { return n.parsed }

// HasFlag reports whether every bit in f is set.
func (n *Node) HasFlag(f Flag) bool { return n.flags&f == f }

// SetFlag sets every bit in f.
func (n *Node) SetFlag(f Flag) { n.flags |= f }

// ClearFlag clears every bit in f.
func (n *Node) ClearFlag(f Flag) { n.flags &^= f }

// Util returns the traversal scratch slot.
func (n *Node) Util() interface{} { return n.util }

// SetUtil sets the traversal scratch slot. Callers that use this
// should clear it when they are done.
func (n *Node) SetUtil(v interface{}) { n.util = v }

// Blob returns the parsed blob payload; nil if not parsed or not a blob.
func (n *Node) Blob() *Blob { return n.blob }

// Tree returns the parsed tree payload; nil if not parsed or not a tree.
func (n *Node) Tree() *Tree { return n.tree }

// Commit returns the parsed commit payload; nil if not parsed or not a commit.
func (n *Node) Commit() *Commit { return n.commit }

// Tag returns the parsed tag payload; nil if not parsed or not a tag.
func (n *Node) Tag() *Tag { return n.tag }
