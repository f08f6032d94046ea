package main

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/nicolagi/gitcore/internal/config"
	"github.com/nicolagi/gitcore/internal/negotiate"
	"github.com/nicolagi/gitcore/internal/objgraph"
	"github.com/nicolagi/gitcore/internal/objid"
	"github.com/nicolagi/gitcore/internal/objstore"
	"github.com/nicolagi/gitcore/internal/refstore"
	"github.com/nicolagi/gitcore/internal/transport"
)

var globalContext struct {
	dir      string
	logLevel string
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.StringVar(&globalContext.dir, "dir", ".", "`directory` holding objects/ and refs/")
	var levels []string
	for _, l := range log.AllLevels {
		levels = append(levels, l.String())
	}
	fs.StringVar(&globalContext.logLevel, "verbosity", "warning", "sets the log `level`, among "+strings.Join(levels, ", "))
	return fs
}

// storeOptions derives object store options from the repository's
// config file: [s3] bucket/region adds a remote mirror backend, and
// core.lenient disables the post-read digest check.
func storeOptions(dir string) []objstore.Option {
	cfg := config.Open(filepath.Join(dir, "config"))
	var opts []objstore.Option
	if bucket, err := cfg.Get("s3", "", "bucket"); err == nil {
		region, err := cfg.Get("s3", "", "region")
		if err != nil {
			log.Fatalf("Config names an s3 bucket but no region: %v", err)
		}
		opts = append(opts, objstore.WithRemote(objstore.NewS3Backend(bucket, region)))
	}
	if lenient, err := cfg.GetBool("core", "", "lenient"); err == nil && lenient {
		opts = append(opts, objstore.WithStrictness(objstore.Lenient))
	}
	return opts
}

// localHaves parses the closure of every local ref into graph and
// returns the known commits in the date-descending order the
// negotiation sends haves in.
func localHaves(graph *objgraph.Graph, refs *refstore.Store) ([]objid.ID, error) {
	const reachableBit objgraph.Flag = 1
	err := refs.ForEachRef(func(name string, id objid.ID) error {
		return graph.MarkReachable(graph.Lookup(id), reachableBit)
	})
	if err != nil {
		return nil, err
	}
	return negotiate.HavesFromGraph(graph), nil
}

func main() {
	fs := newFlagSet("gitcore-fetch")
	var wantFlag, shellRunner, proxy, peerProg string
	fs.StringVar(&wantFlag, "want", "", "comma-separated ref `names` to fetch; empty fetches every advertised ref not already present")
	fs.StringVar(&shellRunner, "shell", "", "remote-shell `program` for host:path locations (default ssh)")
	fs.StringVar(&proxy, "proxy", "", "filter `program` spawned with \"host port\" instead of dialing tcp directly")
	fs.StringVar(&peerProg, "exec", "gitcore-upload-pack", "peer `program` to run on the remote side")
	_ = fs.Parse(os.Args[1:])
	if fs.NArg() != 1 {
		log.Fatalf("Usage: gitcore-fetch [flags] <location>")
	}
	location := fs.Arg(0)

	log.SetOutput(os.Stderr)
	ll, err := log.ParseLevel(globalContext.logLevel)
	if err != nil {
		log.Fatalf("Could not parse log level %q: %v", globalContext.logLevel, err)
	}
	log.SetLevel(ll)

	store, err := objstore.Open(filepath.Join(globalContext.dir, "objects"), storeOptions(globalContext.dir)...)
	if err != nil {
		log.Fatalf("Could not open object store: %v", err)
	}
	refs := refstore.New(globalContext.dir)
	grafts, err := objgraph.LoadGrafts(filepath.Join(globalContext.dir, "info", "grafts"))
	if err != nil {
		log.Fatalf("Could not load grafts: %v", err)
	}
	graph := objgraph.NewGraph(store, objgraph.WithGrafts(grafts))

	var dialOpts []transport.Option
	if shellRunner != "" {
		dialOpts = append(dialOpts, transport.WithShellRunner(shellRunner))
	}
	if proxy != "" {
		dialOpts = append(dialOpts, transport.WithProxy(proxy))
	}
	conn, err := transport.New(dialOpts...).Dial(location, peerProg)
	if err != nil {
		log.Fatalf("Could not connect to %q: %v", location, err)
	}
	defer conn.Close()

	fetch := negotiate.NewFetch(store)
	advertised, err := fetch.ReadAdvertisement(conn)
	if err != nil {
		log.Fatalf("Could not read ref advertisement: %v", err)
	}
	var names []string
	if wantFlag != "" {
		for _, name := range strings.Split(wantFlag, ",") {
			names = append(names, strings.TrimSpace(name))
		}
	}
	wants, err := fetch.SelectWants(advertised, names, nil)
	if err != nil {
		log.Fatalf("Could not select wanted refs: %v", err)
	}
	if len(wants) == 0 {
		log.Info("Nothing to fetch, already up to date")
		return
	}
	if err := fetch.SendWants(conn, wants); err != nil {
		log.Fatalf("Could not send wants: %v", err)
	}

	haves, err := localHaves(graph, refs)
	if err != nil {
		log.Fatalf("Could not enumerate local commits: %v", err)
	}
	common, err := fetch.Negotiate(conn, conn, haves)
	if err != nil {
		log.Fatalf("Negotiation failed: %v", err)
	}
	log.WithField("common", common).Debug("Negotiation finished, receiving pack")

	n, err := fetch.ReceivePack(conn)
	if err != nil {
		log.Fatalf("Could not receive pack: %v", err)
	}
	log.WithField("objects", n).Info("Pack received")

	wanted := make(map[objid.ID]bool, len(wants))
	for _, id := range wants {
		wanted[id] = true
	}
	for _, ref := range advertised {
		if !wanted[ref.ID] {
			continue
		}
		if err := refs.UpdateRef(ref.Name, ref.ID, objid.Nil, false); err != nil {
			log.WithField("ref", ref.Name).WithError(err).Warning("Could not update ref after fetch")
		}
	}

	if err := conn.Wait(); err != nil {
		log.WithError(err).Warning("Peer exited with an error")
	}
}
