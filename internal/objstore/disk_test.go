package objstore

import (
	"testing"
	"testing/quick"

	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiskBackendRoundTrip(t *testing.T) {
	backend := NewDiskBackend(t.TempDir())
	kinds := []string{"blob", "tree", "commit", "tag"}
	f := func(n uint8, data []byte) bool {
		kind := kinds[int(n)%len(kinds)]
		id, err := backend.Put(kind, data)
		if err != nil {
			t.Fatal(err)
		}
		got, err := backend.Get(id)
		if err != nil {
			t.Fatal(err)
		}
		return got.Kind == kind && string(got.Data) == string(data)
	}
	require.NoError(t, quick.Check(f, nil))
}

func TestDiskBackendPutIsIdempotent(t *testing.T) {
	backend := NewDiskBackend(t.TempDir())
	id1, err := backend.Put("blob", []byte("same content"))
	require.NoError(t, err)
	id2, err := backend.Put("blob", []byte("same content"))
	require.NoError(t, err)
	assert.Equal(t, id1, id2)
}

func TestDiskBackendGetMissingIsNotFound(t *testing.T) {
	backend := NewDiskBackend(t.TempDir())
	var id objid.ID
	id[0] = 0xab
	_, err := backend.Get(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDiskBackendForEachYieldsAllPut(t *testing.T) {
	backend := NewDiskBackend(t.TempDir())
	want := map[objid.ID]bool{}
	for _, s := range []string{"one", "two", "three"} {
		id, err := backend.Put("blob", []byte(s))
		require.NoError(t, err)
		want[id] = true
	}
	got := map[objid.ID]bool{}
	require.NoError(t, backend.ForEach(func(id objid.ID) error {
		got[id] = true
		return nil
	}))
	assert.Equal(t, want, got)
}
