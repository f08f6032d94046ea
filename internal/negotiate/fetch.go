package negotiate

import (
	"io"
	"strings"

	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/pktline"
)

// batchSize is how many have ids a round sends before flushing.
// maxRounds bounds the negotiation so it terminates even against a
// server that never ACKs; together with the finite local have list it
// guarantees the exchange ends.
const (
	batchSize = 32
	maxRounds = 64
)

// AdvertisedRef is one line of the server's ref advertisement.
type AdvertisedRef struct {
	ID   objid.ID
	Name string
}

// Fetch runs the client side of the negotiation: reading the ref
// advertisement, sending wants, alternating have batches with ack
// reads, and writing the incoming pack through the object store.
type Fetch struct {
	store    *objstore.Store
	multiAck bool
}

// NewFetch returns a Fetch that writes received objects into store.
func NewFetch(store *objstore.Store) *Fetch {
	return &Fetch{store: store}
}

// ReadAdvertisement reads every advertised ref frame up to the
// terminating flush, noting whether the server offered the multi_ack
// capability on the first frame's NUL-separated tail.
func (f *Fetch) ReadAdvertisement(r io.Reader) ([]AdvertisedRef, error) {
	var refs []AdvertisedRef
	first := true
	for {
		payload, ok, err := pktline.Read(r)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		line := strings.TrimSuffix(string(payload), "\n")
		if first {
			if nul := strings.IndexByte(line, 0); nul >= 0 {
				if strings.Contains(line[nul+1:], Capability) {
					f.multiAck = true
				}
				line = line[:nul]
			}
			first = false
		}
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			return nil, protocolf("malformed ref advertisement %q", line)
		}
		id, err := objid.HexToID(line[:sp])
		if err != nil {
			return nil, protocolf("%v", err)
		}
		refs = append(refs, AdvertisedRef{ID: id, Name: line[sp+1:]})
	}
	return refs, nil
}

// SelectWants chooses which advertised ids to request: every ref
// whose name is listed in names, every id listed in ids, and, when
// both lists are empty, every advertised id not already present in
// the local store. The result is deduplicated in advertisement order.
func (f *Fetch) SelectWants(refs []AdvertisedRef, names []string, ids []objid.ID) ([]objid.ID, error) {
	wantName := make(map[string]bool, len(names))
	for _, n := range names {
		wantName[n] = true
	}
	wantID := make(map[objid.ID]bool, len(ids))
	for _, id := range ids {
		wantID[id] = true
	}
	everythingMissing := len(names) == 0 && len(ids) == 0
	seen := make(map[objid.ID]bool)
	var out []objid.ID
	for _, ref := range refs {
		take := wantName[ref.Name] || wantID[ref.ID]
		if everythingMissing {
			has, err := f.store.Has(ref.ID)
			if err != nil {
				return nil, err
			}
			take = !has
		}
		if take && !seen[ref.ID] {
			seen[ref.ID] = true
			out = append(out, ref.ID)
		}
	}
	return out, nil
}

// SendWants writes one "want <id>" frame per id, appending the
// multi_ack capability this client honors to the first, then flushes.
func (f *Fetch) SendWants(w io.Writer, ids []objid.ID) error {
	for i, id := range ids {
		if i == 0 {
			if err := pktline.Writef(w, "want %s %s\n", id.Hex(), Capability); err != nil {
				return err
			}
			continue
		}
		if err := pktline.Writef(w, "want %s\n", id.Hex()); err != nil {
			return err
		}
	}
	return pktline.Flush(w)
}

// Negotiate sends haves (already in date-descending order) in
// batches, reading the server's response after
// each flush, until a terminal ACK arrives, haves are exhausted, or
// maxRounds is reached; it then sends "done" and, unless the rounds
// ended on a terminal ACK, reads the final response. It returns
// whether any common commit was found.
func (f *Fetch) Negotiate(r io.Reader, w io.Writer, haves []objid.ID) (common bool, err error) {
	i := 0
	for round := 0; round < maxRounds && i < len(haves); round++ {
		end := i + batchSize
		if end > len(haves) {
			end = len(haves)
		}
		for _, id := range haves[i:end] {
			if err := pktline.Writef(w, "have %s\n", id.Hex()); err != nil {
				return common, err
			}
		}
		i = end
		if err := pktline.Flush(w); err != nil {
			return common, err
		}
		terminal, gotCommon, err := f.readRound(r)
		if err != nil {
			return common, err
		}
		common = common || gotCommon
		if terminal {
			return common, pktline.Writef(w, "done\n")
		}
	}
	if err := pktline.Writef(w, "done\n"); err != nil {
		return common, err
	}
	payload, ok, err := pktline.Read(r)
	if err != nil {
		return common, err
	}
	if ok && strings.HasPrefix(string(payload), "ACK ") {
		common = true
	}
	return common, nil
}

// readRound reads frames within one have-batch round: zero or more
// "ACK <id> continue" frames (each marking a common commit), ending
// either in "NAK" (nothing further this round, not terminal) or a
// bare "ACK <id>" (terminal, the server is done negotiating).
func (f *Fetch) readRound(r io.Reader) (terminal bool, common bool, err error) {
	for {
		payload, ok, err := pktline.Read(r)
		if err != nil {
			return false, common, err
		}
		if !ok {
			return false, common, nil
		}
		line := strings.TrimSuffix(string(payload), "\n")
		switch {
		case line == "NAK":
			return false, common, nil
		case strings.HasPrefix(line, "ACK "):
			common = true
			if strings.HasSuffix(line, " continue") {
				continue
			}
			return true, common, nil
		default:
			return false, common, protocolf("expected ACK/NAK, got %q", line)
		}
	}
}

// ReceivePack reads the pack stream SEND_PACK wrote and writes every
// object it contains into the store, returning the count received.
func (f *Fetch) ReceivePack(r io.Reader) (int, error) {
	return ReceivePack(r, f.store)
}

// HavesFromGraph extracts every parsed commit node in g's table
// (typically those reachable from local refs), sorted by committer
// date descending via objgraph.SortByDate, the order Negotiate sends
// haves in.
func HavesFromGraph(g *objgraph.Graph) []objid.ID {
	var commits []*objgraph.Node
	for _, n := range g.Sorted() {
		if n.Parsed() && n.Kind() == objgraph.KindCommit {
			commits = append(commits, n)
		}
	}
	ordered := objgraph.SortByDate(commits)
	ids := make([]objid.ID, len(ordered))
	for i, n := range ordered {
		ids[i] = n.ID()
	}
	return ids
}
