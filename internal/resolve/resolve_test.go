package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
)

type fixture struct {
	store *objstore.Store
	refs  *refstore.Store
	graph *objgraph.Graph
	res   *Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store, err := objstore.Open(dir)
	require.NoError(t, err)
	refs := refstore.New(dir)
	reader := storeReader{store}
	graph := objgraph.NewGraph(reader)
	return &fixture{store: store, refs: refs, graph: graph, res: New(store, refs, graph)}
}

type storeReader struct{ s *objstore.Store }

func (r storeReader) ReadRaw(id objid.ID) (objstore.RawObject, error) { return r.s.ReadRaw(id) }

func (f *fixture) putBlob(t *testing.T, data []byte) objid.ID {
	t.Helper()
	id, err := f.store.WriteRaw("blob", data)
	require.NoError(t, err)
	return id
}

func (f *fixture) putTree(t *testing.T, entries []objgraph.TreeEntry) objid.ID {
	t.Helper()
	data, err := objgraph.EncodeTree(&objgraph.Tree{Entries: entries})
	require.NoError(t, err)
	id, err := f.store.WriteRaw("tree", data)
	require.NoError(t, err)
	return id
}

func (f *fixture) putCommit(t *testing.T, tree objid.ID, parents []objid.ID, when int64) objid.ID {
	t.Helper()
	sig := objgraph.Signature{Name: "A", Email: "a@example.com", When: when, TZ: "+0000"}
	data, err := objgraph.EncodeCommit(&objgraph.Commit{TreeID: tree, Parents: parents, Author: sig, Committer: sig, Message: "m"})
	require.NoError(t, err)
	id, err := f.store.WriteRaw("commit", data)
	require.NoError(t, err)
	return id
}

func TestResolveFullHex(t *testing.T) {
	f := newFixture(t)
	blobID := f.putBlob(t, []byte("hello"))
	got, err := f.res.Resolve(blobID.Hex())
	require.NoError(t, err)
	assert.Equal(t, blobID, got)
}

func TestResolveRefByShortName(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	commit := f.putCommit(t, tree, nil, 1)
	require.NoError(t, f.refs.UpdateRef("refs/heads/master", commit, objid.Nil, false))

	got, err := f.res.Resolve("master")
	require.NoError(t, err)
	assert.Equal(t, commit, got)
}

func TestResolveParentCaret(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	root := f.putCommit(t, tree, nil, 1)
	tip := f.putCommit(t, tree, []objid.ID{root}, 2)
	require.NoError(t, f.refs.UpdateRef("refs/heads/master", tip, objid.Nil, false))

	got, err := f.res.Resolve("master^")
	require.NoError(t, err)
	assert.Equal(t, root, got)

	got, err = f.res.Resolve("master^1")
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestResolveTildeAncestor(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	root := f.putCommit(t, tree, nil, 1)
	mid := f.putCommit(t, tree, []objid.ID{root}, 2)
	tip := f.putCommit(t, tree, []objid.ID{mid}, 3)
	require.NoError(t, f.refs.UpdateRef("refs/heads/master", tip, objid.Nil, false))

	got, err := f.res.Resolve("master~2")
	require.NoError(t, err)
	assert.Equal(t, root, got)
}

func TestResolvePeelToTree(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	commit := f.putCommit(t, tree, nil, 1)
	require.NoError(t, f.refs.UpdateRef("refs/heads/master", commit, objid.Nil, false))

	got, err := f.res.Resolve("master^{tree}")
	require.NoError(t, err)
	assert.Equal(t, tree, got)
}

func TestResolveAbbreviatedHex(t *testing.T) {
	f := newFixture(t)
	blobID := f.putBlob(t, []byte("hello world"))
	got, err := f.res.Resolve(blobID.Hex()[:8])
	require.NoError(t, err)
	assert.Equal(t, blobID, got)
}

func TestAbbrevRoundTripsThroughResolve(t *testing.T) {
	f := newFixture(t)
	var blobs []objid.ID
	for _, s := range []string{"one", "two", "three", "four"} {
		blobs = append(blobs, f.putBlob(t, []byte(s)))
	}

	for _, id := range blobs {
		abbrev, ok, err := f.res.Abbrev(id, 4)
		require.NoError(t, err)
		require.True(t, ok)
		assert.GreaterOrEqual(t, len(abbrev), 4)
		assert.Less(t, len(abbrev), 40)

		got, err := f.res.Resolve(abbrev)
		require.NoError(t, err)
		assert.Equal(t, id, got)
	}
}

func TestResolveRejectsDirectoryTraversal(t *testing.T) {
	f := newFixture(t)
	_, err := f.res.Resolve("a//../../etc")
	assert.Error(t, err)
}

func TestDescribeFindsTipName(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	root := f.putCommit(t, tree, nil, 1)
	tip := f.putCommit(t, tree, []objid.ID{root}, 2)
	require.NoError(t, f.refs.UpdateRef("refs/heads/master", tip, objid.Nil, false))

	name, err := f.res.Describe(tip)
	require.NoError(t, err)
	assert.Equal(t, "master", name)

	name, err = f.res.Describe(root)
	require.NoError(t, err)
	assert.Equal(t, "master~1", name)
}

func TestDescribeUndefinedForUnreachableCommit(t *testing.T) {
	f := newFixture(t)
	tree := f.putTree(t, nil)
	orphan := f.putCommit(t, tree, nil, 1)

	_, err := f.res.Describe(orphan)
	assert.ErrorIs(t, err, ErrUndefined)
}
