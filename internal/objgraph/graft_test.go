package objgraph

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objid"
)

func TestLoadGraftsMissingFileIsEmpty(t *testing.T) {
	g, err := LoadGrafts(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	_, ok := g.Lookup(objid.Hash("commit", []byte("x")))
	assert.False(t, ok)
}

func TestLoadGraftsParsesEntries(t *testing.T) {
	child := objid.Hash("commit", []byte("child"))
	p1 := objid.Hash("commit", []byte("p1"))
	p2 := objid.Hash("commit", []byte("p2"))

	path := filepath.Join(t.TempDir(), "grafts")
	contents := "# comment\n" + child.Hex() + " " + p1.Hex() + " " + p2.Hex() + "\n"
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	g, err := LoadGrafts(path)
	require.NoError(t, err)
	parents, ok := g.Lookup(child)
	require.True(t, ok)
	assert.Equal(t, []objid.ID{p1, p2}, parents)
}

func TestLoadGraftsRejectsBadHex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grafts")
	require.NoError(t, os.WriteFile(path, []byte("notahex\n"), 0o644))
	_, err := LoadGrafts(path)
	assert.Error(t, err)
}

func TestGraftsLookupMissesUnknownChild(t *testing.T) {
	g := &Grafts{entries: []Graft{
		{Child: objid.Hash("commit", []byte("a"))},
	}}
	_, ok := g.Lookup(objid.Hash("commit", []byte("b")))
	assert.False(t, ok)
}
