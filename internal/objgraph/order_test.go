package objgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nicolagi/gitcore/internal/objid"
)

func chainCommit(t *testing.T, reader fakeReader, tree objid.ID, parents []objid.ID, when int64) *Node {
	t.Helper()
	id := put(reader, "commit", mustEncodeCommit(t, tree, parents, when))
	g := NewGraph(reader)
	n := g.Lookup(id)
	require.NoError(t, g.Parse(n))
	return n
}

func TestTopologicalOrderParentsAfterChildren(t *testing.T) {
	reader := fakeReader{}
	tree := put(reader, "tree", mustEncodeEmptyTree(t))
	g := NewGraph(reader)

	root := chainCommitIn(t, g, reader, tree, nil, 1)
	mid := chainCommitIn(t, g, reader, tree, []objid.ID{root.ID()}, 2)
	tip := chainCommitIn(t, g, reader, tree, []objid.ID{mid.ID()}, 3)

	order, err := TopologicalOrder([]*Node{root, tip, mid})
	require.NoError(t, err)
	pos := make(map[objid.ID]int, len(order))
	for i, n := range order {
		pos[n.ID()] = i
	}
	assert.Less(t, pos[tip.ID()], pos[mid.ID()])
	assert.Less(t, pos[mid.ID()], pos[root.ID()])
}

func chainCommitIn(t *testing.T, g *Graph, reader fakeReader, tree objid.ID, parents []objid.ID, when int64) *Node {
	t.Helper()
	id := put(reader, "commit", mustEncodeCommit(t, tree, parents, when))
	n := g.Lookup(id)
	require.NoError(t, g.Parse(n))
	return n
}

func TestSortByDateMostRecentFirst(t *testing.T) {
	reader := fakeReader{}
	tree := put(reader, "tree", mustEncodeEmptyTree(t))
	old := chainCommit(t, reader, tree, nil, 10)
	newer := chainCommit(t, reader, tree, nil, 20)

	sorted := SortByDate([]*Node{old, newer})
	assert.Equal(t, newer.ID(), sorted[0].ID())
	assert.Equal(t, old.ID(), sorted[1].ID())
}

func TestDateQueuePopMostRecentWalksParents(t *testing.T) {
	reader := fakeReader{}
	tree := put(reader, "tree", mustEncodeEmptyTree(t))
	g := NewGraph(reader)

	root := chainCommitIn(t, g, reader, tree, nil, 1)
	tip := chainCommitIn(t, g, reader, tree, []objid.ID{root.ID()}, 2)

	q := NewDateQueue()
	seen := map[objid.ID]bool{tip.ID(): true}
	q.Push(tip)

	var visited []objid.ID
	for q.Len() > 0 {
		n, err := q.PopMostRecent(g, seen)
		require.NoError(t, err)
		visited = append(visited, n.ID())
	}
	assert.Equal(t, []objid.ID{tip.ID(), root.ID()}, visited)
}
