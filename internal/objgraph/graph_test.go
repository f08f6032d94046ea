package objgraph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
)

type fakeReader map[objid.ID]objstore.RawObject

func (f fakeReader) ReadRaw(id objid.ID) (objstore.RawObject, error) {
	raw, ok := f[id]
	if !ok {
		return objstore.RawObject{}, objstore.ErrNotFound
	}
	return raw, nil
}

func put(f fakeReader, kind string, data []byte) objid.ID {
	id := objid.Hash(kind, data)
	f[id] = objstore.RawObject{Kind: kind, Data: data}
	return id
}

func TestGraphLookupInterns(t *testing.T) {
	g := NewGraph(fakeReader{})
	id := objid.Hash("blob", []byte("x"))
	a := g.Lookup(id)
	b := g.Lookup(id)
	assert.Same(t, a, b)
}

func TestGraphParseBlob(t *testing.T) {
	reader := fakeReader{}
	id := put(reader, "blob", []byte("hello"))
	g := NewGraph(reader)
	n := g.Lookup(id)
	require.NoError(t, g.Parse(n))
	assert.True(t, n.Parsed())
	assert.Equal(t, KindBlob, n.Kind())
	assert.Equal(t, []byte("hello"), n.Blob().Data)
}

func TestGraphParseIsIdempotent(t *testing.T) {
	reader := fakeReader{}
	id := put(reader, "blob", []byte("hello"))
	g := NewGraph(reader)
	n := g.Lookup(id)
	require.NoError(t, g.Parse(n))
	require.NoError(t, g.Parse(n))
	assert.Equal(t, []byte("hello"), n.Blob().Data)
}

func TestGraphParseTreeInternsChildren(t *testing.T) {
	reader := fakeReader{}
	blobID := put(reader, "blob", []byte("data"))
	treeData, err := EncodeTree(&Tree{Entries: []TreeEntry{
		{Mode: ModeRegular644, Name: "file.txt", Child: blobID},
	}})
	require.NoError(t, err)
	treeID := put(reader, "tree", treeData)

	g := NewGraph(reader)
	n := g.Lookup(treeID)
	require.NoError(t, g.Parse(n))
	assert.Len(t, n.Tree().Entries, 1)
	child := g.Lookup(blobID)
	assert.False(t, child.Parsed())
}

func TestGraphParseCommitAppliesGraft(t *testing.T) {
	reader := fakeReader{}
	treeID := put(reader, "tree", mustEncodeEmptyTree(t))
	realParent := put(reader, "commit", mustEncodeCommit(t, treeID, nil, 1))
	graftedParent := objid.Hash("commit", []byte("synthetic"))

	commitData := mustEncodeCommit(t, treeID, []objid.ID{realParent}, 2)
	commitID := put(reader, "commit", commitData)

	grafts := &Grafts{entries: []Graft{{Child: commitID, Parents: []objid.ID{graftedParent}}}}
	g := NewGraph(reader, WithGrafts(grafts))
	n := g.Lookup(commitID)
	require.NoError(t, g.Parse(n))
	assert.Equal(t, []objid.ID{graftedParent}, n.Commit().Parents)
}

func TestGraphParseCommitRoundTripsEveryField(t *testing.T) {
	reader := fakeReader{}
	blobID := put(reader, "blob", []byte("data"))
	treeData, err := EncodeTree(&Tree{Entries: []TreeEntry{
		{Mode: ModeRegular644, Name: "file.txt", Child: blobID},
		{Mode: ModeDirectory, Name: "sub", Child: put(reader, "tree", mustEncodeEmptyTree(t))},
	}})
	require.NoError(t, err)
	treeID := put(reader, "tree", treeData)
	parentID := put(reader, "commit", mustEncodeCommit(t, treeID, nil, 1))

	want := &Commit{
		TreeID:  treeID,
		Parents: []objid.ID{parentID},
		Author:  Signature{Name: "A", Email: "a@example.com", When: 2, TZ: "+0000"},
		Committer: Signature{
			Name: "A", Email: "a@example.com", When: 2, TZ: "+0000",
		},
		Message: "msg",
	}
	commitData, err := EncodeCommit(want)
	require.NoError(t, err)
	commitID := put(reader, "commit", commitData)

	g := NewGraph(reader)
	n := g.Lookup(commitID)
	require.NoError(t, g.Parse(n))
	if diff := cmp.Diff(want, n.Commit()); diff != "" {
		t.Errorf("decoded commit mismatch (-want +got):\n%s", diff)
	}
}

func mustEncodeEmptyTree(t *testing.T) []byte {
	t.Helper()
	data, err := EncodeTree(&Tree{})
	require.NoError(t, err)
	return data
}

func mustEncodeCommit(t *testing.T, tree objid.ID, parents []objid.ID, when int64) []byte {
	t.Helper()
	sig := Signature{Name: "A", Email: "a@example.com", When: when, TZ: "+0000"}
	data, err := EncodeCommit(&Commit{TreeID: tree, Parents: parents, Author: sig, Committer: sig, Message: "msg"})
	require.NoError(t, err)
	return data
}
