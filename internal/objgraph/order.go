package objgraph

import (
	"sort"

	"github.com/nicolagi/gitcore/internal/objid"
)

// TopologicalOrder returns commits ordered so that every commit
// appears before each of its parents that is also in the input list.
// Nodes must already be parsed as commits. Ties are broken by input
// order. Returns ErrCycle if the input is not a DAG restricted to
// itself, which cannot happen for a well-formed commit graph but is
// checked defensively.
func TopologicalOrder(commits []*Node) ([]*Node, error) {
	index := make(map[objid.ID]int, len(commits))
	for i, n := range commits {
		index[n.id] = i
	}
	indegree := make([]int, len(commits))
	for _, n := range commits {
		for _, p := range n.commit.Parents {
			if j, ok := index[p]; ok {
				indegree[j]++
			}
		}
	}

	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	out := make([]*Node, 0, len(commits))
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		out = append(out, commits[i])
		for _, p := range commits[i].commit.Parents {
			j, ok := index[p]
			if !ok {
				continue
			}
			indegree[j]--
			if indegree[j] == 0 {
				queue = append(queue, j)
			}
		}
	}
	if len(out) != len(commits) {
		return nil, ErrCycle
	}
	return out, nil
}

// SortByDate returns commits ordered by committer date, most recent
// first, stable on ties.
func SortByDate(commits []*Node) []*Node {
	out := append([]*Node(nil), commits...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].commit.Committer.When > out[j].commit.Committer.When
	})
	return out
}

// DateQueue is the priority queue pop_most_recent walks over: a set of
// frontier commits kept in date-descending order, so the next commit
// to visit is always the most recent one not yet popped.
type DateQueue struct {
	items []*Node
}

// NewDateQueue returns an empty queue.
func NewDateQueue() *DateQueue { return &DateQueue{} }

// Push inserts n keeping the queue sorted by committer date, descending.
func (q *DateQueue) Push(n *Node) {
	i := sort.Search(len(q.items), func(i int) bool {
		return q.items[i].commit.Committer.When <= n.commit.Committer.When
	})
	q.items = append(q.items, nil)
	copy(q.items[i+1:], q.items[i:])
	q.items[i] = n
}

// Len reports the number of pending commits.
func (q *DateQueue) Len() int { return len(q.items) }

// PopMostRecent removes and returns the most recent commit in the
// queue, pushing any of its parents not yet seen, per graph.
func (q *DateQueue) PopMostRecent(g *Graph, seen map[objid.ID]bool) (*Node, error) {
	if len(q.items) == 0 {
		return nil, nil
	}
	n := q.items[0]
	q.items = q.items[1:]
	if !n.parsed {
		if err := g.Parse(n); err != nil {
			return nil, err
		}
	}
	for _, p := range n.commit.Parents {
		if seen[p] {
			continue
		}
		seen[p] = true
		pn := g.Lookup(p)
		if err := g.Parse(pn); err != nil {
			return nil, err
		}
		q.Push(pn)
	}
	return n, nil
}
