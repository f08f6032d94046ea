package objgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objid"
)

func TestMarkReachableRequiresNonzeroBit(t *testing.T) {
	g := NewGraph(fakeReader{})
	n := g.Lookup(objid.Hash("blob", []byte("x")))
	err := g.MarkReachable(n, 0)
	assert.Equal(t, ErrReachabilityDisabled, err)
}

func TestMarkReachableCoversTreeAndCommit(t *testing.T) {
	reader := fakeReader{}
	blobID := put(reader, "blob", []byte("data"))
	treeData, err := EncodeTree(&Tree{Entries: []TreeEntry{
		{Mode: ModeRegular644, Name: "f", Child: blobID},
	}})
	require.NoError(t, err)
	treeID := put(reader, "tree", treeData)
	parentID := put(reader, "commit", mustEncodeCommit(t, treeID, nil, 1))
	commitID := put(reader, "commit", mustEncodeCommit(t, treeID, []objid.ID{parentID}, 2))

	g := NewGraph(reader)
	root := g.Lookup(commitID)
	const reachableBit Flag = 1
	require.NoError(t, g.MarkReachable(root, reachableBit))

	for _, id := range []objid.ID{commitID, parentID, treeID, blobID} {
		n := g.Lookup(id)
		assert.True(t, n.HasFlag(reachableBit), "expected %s reachable", id)
	}
}

func TestMarkReachableIsIdempotent(t *testing.T) {
	reader := fakeReader{}
	treeID := put(reader, "tree", mustEncodeEmptyTree(t))
	commitID := put(reader, "commit", mustEncodeCommit(t, treeID, nil, 1))

	g := NewGraph(reader)
	root := g.Lookup(commitID)
	const bit Flag = 1
	require.NoError(t, g.MarkReachable(root, bit))
	require.NoError(t, g.MarkReachable(root, bit))
	assert.True(t, root.HasFlag(bit))
}
