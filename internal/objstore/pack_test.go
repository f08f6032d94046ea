package objstore

import (
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackReadsNonDeltaObjects(t *testing.T) {
	dir := t.TempDir()
	blob := RawObject{Kind: "blob", Data: []byte("hello\n")}
	tree := RawObject{Kind: "tree", Data: []byte("fake-tree-bytes")}
	buildTestPack(t, dir, []RawObject{blob, tree})

	packs, err := loadPacks(dir)
	require.NoError(t, err)
	require.Len(t, packs, 1)

	blobID := objid.Hash(blob.Kind, blob.Data)
	got, err := packs[0].Get(blobID)
	require.NoError(t, err)
	assert.Equal(t, blob.Kind, got.Kind)
	assert.Equal(t, blob.Data, got.Data)
}

func TestPackForEachYieldsIndexOrder(t *testing.T) {
	dir := t.TempDir()
	objs := []RawObject{
		{Kind: "blob", Data: []byte("a")},
		{Kind: "blob", Data: []byte("b")},
		{Kind: "blob", Data: []byte("c")},
	}
	buildTestPack(t, dir, objs)
	packs, err := loadPacks(dir)
	require.NoError(t, err)

	var seen int
	var last string
	err = packs[0].ForEach(func(id objid.ID) error {
		hex := id.Hex()
		if last != "" {
			assert.True(t, last < hex, "expected ascending id order")
		}
		last = hex
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, seen)
}

func TestPackGetRoundTripsEveryObject(t *testing.T) {
	dir := t.TempDir()
	want := []RawObject{
		{Kind: "blob", Data: []byte("a")},
		{Kind: "tree", Data: []byte("fake-tree-bytes")},
		{Kind: "commit", Data: []byte("fake-commit-bytes")},
	}
	buildTestPack(t, dir, want)
	packs, err := loadPacks(dir)
	require.NoError(t, err)

	var got []RawObject
	err = packs[0].ForEach(func(id objid.ID) error {
		obj, err := packs[0].Get(id)
		if err != nil {
			return err
		}
		got = append(got, obj)
		return nil
	})
	require.NoError(t, err)

	byKind := func(s []RawObject) func(i, j int) bool {
		return func(i, j int) bool { return s[i].Kind < s[j].Kind }
	}
	sort.Slice(want, byKind(want))
	sort.Slice(got, byKind(got))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("pack contents mismatch (-want +got):\n%s", diff)
	}
}

func TestStoreOpenFindsPackedObject(t *testing.T) {
	dir := t.TempDir()
	blob := RawObject{Kind: "blob", Data: []byte("packed content\n")}
	buildTestPack(t, dir, []RawObject{blob})

	store, err := Open(dir)
	require.NoError(t, err)

	id := objid.Hash(blob.Kind, blob.Data)
	got, err := store.ReadRaw(id)
	require.NoError(t, err)
	assert.Equal(t, blob.Data, got.Data)

	ok, err := store.Has(id)
	require.NoError(t, err)
	assert.True(t, ok)
}
