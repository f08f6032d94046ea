package fsck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
)

func newStore(t *testing.T) *objstore.Store {
	t.Helper()
	s, err := objstore.Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func writeTree(t *testing.T, s *objstore.Store, entries ...objgraph.TreeEntry) objid.ID {
	t.Helper()
	data, err := objgraph.EncodeTree(&objgraph.Tree{Entries: entries})
	require.NoError(t, err)
	id, err := s.WriteRaw("tree", data)
	require.NoError(t, err)
	return id
}

func writeCommit(t *testing.T, s *objstore.Store, tree objid.ID, parents []objid.ID, message string, when int64) objid.ID {
	t.Helper()
	sig := objgraph.Signature{Name: "A", Email: "a@example.com", When: when, TZ: "+0000"}
	data, err := objgraph.EncodeCommit(&objgraph.Commit{
		TreeID:    tree,
		Parents:   parents,
		Author:    sig,
		Committer: sig,
		Message:   message,
	})
	require.NoError(t, err)
	id, err := s.WriteRaw("commit", data)
	require.NoError(t, err)
	return id
}

func TestCheckCleanStoreReportsNothingButDangling(t *testing.T) {
	s := newStore(t)
	blobID, err := s.WriteRaw("blob", []byte("hello\n"))
	require.NoError(t, err)
	treeID := writeTree(t, s, objgraph.TreeEntry{Mode: objgraph.ModeRegular644, Name: "hello", Child: blobID})
	commitID := writeCommit(t, s, treeID, nil, "initial\n", 1000)

	refs := refstore.New(t.TempDir())
	require.NoError(t, refs.UpdateRef("refs/heads/master", commitID, objid.Nil, false))

	g := objgraph.NewGraph(s)
	c := New(g, s, refs)
	findings, err := c.Check(nil)
	require.NoError(t, err)
	assert.True(t, Clean(findings), "%+v", findings)
}

// A commit present in the store referencing a tree that is not must
// produce both a "missing tree" and a "broken link from commit"
// finding.
func TestCheckReportsMissingTreeAndBrokenLink(t *testing.T) {
	s := newStore(t)
	blobID, err := s.WriteRaw("blob", []byte("hello\n"))
	require.NoError(t, err)
	// Compute the tree's id without ever writing it to the store, so
	// the commit below references a tree the store never received.
	treeData, err := objgraph.EncodeTree(&objgraph.Tree{Entries: []objgraph.TreeEntry{
		{Mode: objgraph.ModeRegular644, Name: "hello", Child: blobID},
	}})
	require.NoError(t, err)
	treeID := objid.Hash("tree", treeData)
	commitID := writeCommit(t, s, treeID, nil, "initial\n", 1000)

	refs := refstore.New(t.TempDir())
	require.NoError(t, refs.UpdateRef("refs/heads/master", commitID, objid.Nil, false))

	g := objgraph.NewGraph(s)
	c := New(g, s, refs)
	findings, err := c.Check(nil)
	require.NoError(t, err)

	var sawMissing, sawBroken bool
	for _, f := range findings {
		if f.Kind == Missing && f.ObjectKind == "tree" && f.ObjectID == treeID {
			sawMissing = true
		}
		if f.Kind == BrokenLink && f.ObjectKind == "commit" && f.ObjectID == commitID && f.RefID == treeID {
			sawBroken = true
		}
	}
	assert.True(t, sawMissing, "%+v", findings)
	assert.True(t, sawBroken, "%+v", findings)
}

func TestCheckReportsUnreachable(t *testing.T) {
	s := newStore(t)
	blobID, err := s.WriteRaw("blob", []byte("hello\n"))
	require.NoError(t, err)
	treeID := writeTree(t, s, objgraph.TreeEntry{Mode: objgraph.ModeRegular644, Name: "hello", Child: blobID})
	reachableCommit := writeCommit(t, s, treeID, nil, "reachable\n", 1000)

	orphanBlobID, err := s.WriteRaw("blob", []byte("orphan\n"))
	require.NoError(t, err)
	orphanTreeID := writeTree(t, s, objgraph.TreeEntry{Mode: objgraph.ModeRegular644, Name: "orphan", Child: orphanBlobID})
	orphanCommit := writeCommit(t, s, orphanTreeID, nil, "orphan\n", 900)

	refs := refstore.New(t.TempDir())
	require.NoError(t, refs.UpdateRef("refs/heads/master", reachableCommit, objid.Nil, false))

	g := objgraph.NewGraph(s)
	c := New(g, s, refs)
	findings, err := c.Check(nil)
	require.NoError(t, err)

	var sawUnreachable bool
	for _, f := range findings {
		if f.Kind == Unreachable && f.ObjectID == orphanCommit {
			sawUnreachable = true
		}
	}
	assert.True(t, sawUnreachable, "%+v", findings)
	for _, f := range findings {
		assert.NotEqual(t, reachableCommit, f.ObjectID, "reachable commit should not be flagged")
	}
}
