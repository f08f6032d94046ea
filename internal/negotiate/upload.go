package negotiate

import (
	"fmt"
	"io"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/pktline"
	"github.com/nicolagi/gitcore/internal/refstore"
)

// Flag bits the server reserves on objgraph.Node for the duration of
// one negotiation: which ids were advertised, which the client wants,
// and which the client already has.
const (
	flagOurRef   objgraph.Flag = 1 << 16
	flagWanted   objgraph.Flag = 1 << 17
	flagTheyHave objgraph.Flag = 1 << 18
)

// Upload runs the server side of the negotiation over one connection:
// ref advertisement, want/have negotiation, and pack transmission.
type Upload struct {
	graph   *objgraph.Graph
	store   *objstore.Store
	refs    *refstore.Store
	timeout time.Duration

	multiAck    bool
	commonFound bool
	lastCommon  objid.ID
	haveCount   int
}

// UploadOption configures an Upload.
type UploadOption func(*Upload)

// WithTimeout bounds how long Serve waits at each frame read; zero
// (the default) waits forever. It takes effect only when the incoming
// stream supports read deadlines (net.Conn and *os.File both do).
func WithTimeout(d time.Duration) UploadOption {
	return func(u *Upload) { u.timeout = d }
}

// NewUpload returns an Upload serving the given graph/store/refs.
func NewUpload(graph *objgraph.Graph, store *objstore.Store, refs *refstore.Store, opts ...UploadOption) *Upload {
	u := &Upload{graph: graph, store: store, refs: refs}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// deadlineReader arms a fresh read deadline before every Read, so a
// client that stops mid-negotiation fails the pending read instead of
// holding the serving process forever.
type deadlineReader struct {
	r       io.Reader
	setter  deadlineSetter
	timeout time.Duration
}

func (d *deadlineReader) Read(p []byte) (int, error) {
	if err := d.setter.SetReadDeadline(time.Now().Add(d.timeout)); err != nil {
		return 0, err
	}
	return d.r.Read(p)
}

func (u *Upload) boundedReader(r io.Reader) io.Reader {
	if u.timeout <= 0 {
		return r
	}
	setter, ok := r.(deadlineSetter)
	if !ok {
		log.WithField("timeout", u.timeout).Warning("Reader does not support deadlines, negotiation reads are unbounded")
		return r
	}
	return &deadlineReader{r: r, setter: setter, timeout: u.timeout}
}

// Serve drives the full ADVERTISE -> RECEIVE_WANTS -> NEGOTIATE ->
// SEND_PACK sequence: r carries frames from the client, w carries
// frames (and finally raw pack bytes) to it.
func (u *Upload) Serve(r io.Reader, w io.Writer) error {
	r = u.boundedReader(r)
	if err := u.advertise(w); err != nil {
		return err
	}
	wanted, err := u.receiveWants(r)
	if err != nil {
		return err
	}
	if len(wanted) == 0 {
		return nil
	}
	if err := u.negotiate(r, w); err != nil {
		return err
	}
	return u.sendPack(w, wanted)
}

// advertise sends one frame per local ref ("<id> <refname>"),
// appending the capability list as a NUL-separated tail on the first
// frame, then a flush. Every advertised id is flagged OUR_REF so
// RECEIVE_WANTS can validate later want frames against it.
func (u *Upload) advertise(w io.Writer) error {
	first := true
	err := u.refs.ForEachRef(func(name string, id objid.ID) error {
		u.graph.Lookup(id).SetFlag(flagOurRef)
		line := fmt.Sprintf("%s %s", id.Hex(), name)
		if first {
			line += "\x00 " + Capability
			first = false
		}
		return pktline.Writef(w, "%s\n", line)
	})
	if err != nil {
		return err
	}
	return pktline.Flush(w)
}

// receiveWants reads "want <id>[ capabilities...]" frames until the
// terminating flush, rejecting any id that was not advertised, and
// returns the (deduplicated) set of newly-wanted nodes.
func (u *Upload) receiveWants(r io.Reader) ([]*objgraph.Node, error) {
	var wanted []*objgraph.Node
	for {
		payload, ok, err := pktline.Read(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		line := strings.TrimSuffix(string(payload), "\n")
		if !strings.HasPrefix(line, "want ") {
			return nil, protocolf("expected want, got %q", line)
		}
		rest := strings.TrimPrefix(line, "want ")
		hexID := rest
		if len(rest) > objid.Size*2 {
			hexID = rest[:objid.Size*2]
			if strings.Contains(rest[objid.Size*2:], Capability) {
				u.multiAck = true
			}
		}
		id, err := objid.HexToID(hexID)
		if err != nil {
			return nil, protocolf("%v", err)
		}
		node := u.graph.Lookup(id)
		if !node.HasFlag(flagOurRef) {
			return nil, fmt.Errorf("%w: %s", ErrNotOurRef, id)
		}
		if !node.HasFlag(flagWanted) {
			node.SetFlag(flagWanted)
			wanted = append(wanted, node)
		}
	}
	return wanted, nil
}

// negotiate reads have/done frames, replying with ACK/NAK, until
// "done" ends the round (returning) or the underlying stream errors.
func (u *Upload) negotiate(r io.Reader, w io.Writer) error {
	for {
		payload, ok, err := pktline.Read(r)
		if err != nil {
			return err
		}
		if !ok {
			if !u.commonFound || u.multiAck {
				if err := pktline.Writef(w, "NAK\n"); err != nil {
					return err
				}
			}
			continue
		}
		line := strings.TrimSuffix(string(payload), "\n")
		switch {
		case strings.HasPrefix(line, "have "):
			id, err := objid.HexToID(strings.TrimPrefix(line, "have "))
			if err != nil {
				return protocolf("%v", err)
			}
			common, err := u.markHave(id)
			if err != nil {
				return err
			}
			if !common {
				continue
			}
			wasFirst := !u.commonFound
			u.commonFound = true
			u.lastCommon = id
			switch {
			case u.multiAck:
				if err := pktline.Writef(w, "ACK %s continue\n", id.Hex()); err != nil {
					return err
				}
			case wasFirst:
				if err := pktline.Writef(w, "ACK %s\n", id.Hex()); err != nil {
					return err
				}
			}
		case line == "done":
			if u.commonFound {
				if u.multiAck {
					return pktline.Writef(w, "ACK %s\n", u.lastCommon.Hex())
				}
				return nil
			}
			return pktline.Writef(w, "NAK\n")
		default:
			return protocolf("expected have/done, got %q", line)
		}
	}
}

// markHave reports whether id is present locally and, if so and under
// the maxHaves cap, flags it and its recursive commit-parent closure
// THEY_HAVE so SEND_PACK excludes them from the outgoing pack.
func (u *Upload) markHave(id objid.ID) (common bool, err error) {
	has, err := u.store.Has(id)
	if err != nil || !has {
		return has, err
	}
	node := u.graph.Lookup(id)
	if node.HasFlag(flagTheyHave) || u.haveCount >= maxHaves {
		return true, nil
	}
	if err := u.graph.Parse(node); err != nil {
		return false, err
	}
	u.haveCount++
	return true, u.markTheyHave(node)
}

func (u *Upload) markTheyHave(n *objgraph.Node) error {
	if n.HasFlag(flagTheyHave) {
		return nil
	}
	n.SetFlag(flagTheyHave)
	if n.Kind() != objgraph.KindCommit {
		return nil
	}
	for _, p := range n.Commit().Parents {
		pn := u.graph.Lookup(p)
		if err := u.graph.Parse(pn); err != nil {
			return err
		}
		if err := u.markTheyHave(pn); err != nil {
			return err
		}
	}
	return nil
}

// sendPack writes the pack stream covering every object reachable
// from wanted that is not flagged flagTheyHave.
func (u *Upload) sendPack(w io.Writer, wanted []*objgraph.Node) error {
	objs, err := u.closure(wanted)
	if err != nil {
		return err
	}
	return writePack(w, u.store, objs)
}

// closure walks roots (and their trees/parents/tag targets), stopping
// at any node flagged THEY_HAVE, and returns every node visited.
func (u *Upload) closure(roots []*objgraph.Node) ([]*objgraph.Node, error) {
	visited := make(map[objid.ID]bool)
	var order []*objgraph.Node
	var walk func(n *objgraph.Node) error
	walk = func(n *objgraph.Node) error {
		if visited[n.ID()] || n.HasFlag(flagTheyHave) {
			return nil
		}
		visited[n.ID()] = true
		if !n.Parsed() {
			if err := u.graph.Parse(n); err != nil {
				return err
			}
		}
		order = append(order, n)
		switch n.Kind() {
		case objgraph.KindCommit:
			if err := walk(u.graph.Lookup(n.Commit().TreeID)); err != nil {
				return err
			}
			for _, p := range n.Commit().Parents {
				if err := walk(u.graph.Lookup(p)); err != nil {
					return err
				}
			}
		case objgraph.KindTree:
			for _, e := range n.Tree().Entries {
				if err := walk(u.graph.Lookup(e.Child)); err != nil {
					return err
				}
			}
		case objgraph.KindTag:
			if err := walk(u.graph.Lookup(n.Tag().Target)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, root := range roots {
		if err := walk(root); err != nil {
			return nil, err
		}
	}
	return order, nil
}
